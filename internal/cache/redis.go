package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// redisCache backs the Cache interface with a shared Redis instance, used
// when multiple replicas of the facade need to observe the same hot/stale
// entries. Every operation carries its own short timeout so a slow or
// unreachable Redis degrades to a miss rather than hanging the caller.
type redisCache struct {
	client *redis.Client
}

func newRedisCache(addr string) (Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &redisCache{client: client}, nil
}

func (r *redisCache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	v, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) Set(key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCache) Remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = r.client.Del(ctx, key).Err()
}

func (r *redisCache) Exists(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	n, err := r.client.Exists(ctx, key).Result()
	return err == nil && n > 0
}
