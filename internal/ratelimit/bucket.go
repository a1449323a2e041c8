// Package ratelimit implements the Rate Limiter: independent minute and
// day token buckets that refill wholesale at fixed wall-clock boundaries
// (top of minute UTC, midnight UTC), plus an optional intra-window
// smoothing pacer (pacer.go) built on golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
)

// bucket is a single wall-clock-boundary token bucket. Refill is applied
// lazily on access rather than via a background timer: any caller that
// touches the bucket after a boundary has passed observes the refilled
// state, which is equivalent to a proactive timer without the lifecycle
// overhead of one per bucket.
type bucket struct {
	mu        sync.Mutex
	capacity  int
	remaining int
	nextReset time.Time
	boundary  func(time.Time) time.Time
}

func newBucket(capacity int, boundary func(time.Time) time.Time) *bucket {
	now := time.Now().UTC()
	return &bucket{
		capacity:  capacity,
		remaining: capacity,
		nextReset: boundary(now),
		boundary:  boundary,
	}
}

// refillLocked resets the bucket if the current wall clock has passed the
// scheduled boundary. Caller must hold b.mu.
func (b *bucket) refillLocked(now time.Time) {
	if !now.Before(b.nextReset) {
		b.remaining = b.capacity
		b.nextReset = b.boundary(now)
	}
}

// tryTake attempts to consume one token; returns false without side effect
// if none is available.
func (b *bucket) tryTake() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now().UTC()
	b.refillLocked(now)
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// refund returns a token taken in error (used when the paired bucket in a
// dual-acquire fails after this one already succeeded).
func (b *bucket) refund() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now().UTC()
	b.refillLocked(now)
	if b.remaining < b.capacity {
		b.remaining++
	}
}

func (b *bucket) snapshot() (remaining, limit int, resetIn time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now().UTC()
	b.refillLocked(now)
	resetIn = b.nextReset.Sub(now)
	if resetIn < 0 {
		resetIn = 0
	}
	return b.remaining, b.capacity, resetIn
}

func nextMinuteBoundary(now time.Time) time.Time {
	return now.Truncate(time.Minute).Add(time.Minute)
}

func nextDayBoundary(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// Limiter is the process-wide dual-bucket rate limiter for one provider
// variant. tryAcquire is linearizable with respect to both buckets: a
// caller never observes the same minute or day token granted twice.
type Limiter struct {
	provider string
	minute   *bucket
	day      *bucket
	pacer    *pacer // optional intra-window smoothing, see pacer.go
}

// New builds a limiter with the given per-minute and per-day capacities.
// A capacity of 0 is treated as "unbounded" for that window.
func New(provider string, requestsPerMinute, requestsPerDay int) *Limiter {
	return &Limiter{
		provider: provider,
		minute:   newBucket(requestsPerMinute, nextMinuteBoundary),
		day:      newBucket(requestsPerDay, nextDayBoundary),
		pacer:    newPacer(requestsPerMinute),
	}
}

// TryAcquire atomically consumes one token from each of the minute and day
// buckets, or neither. Minute is checked first; if the day bucket is
// exhausted after the minute token was taken, the minute token is refunded
// and acquisition fails — satisfying the "apply minute refill before day
// refill" tie-break by construction (minute state is always evaluated,
// and potentially mutated, before day state).
func (l *Limiter) TryAcquire() bool {
	if l.minute.capacity > 0 && !l.minute.tryTake() {
		return false
	}
	if l.day.capacity > 0 && !l.day.tryTake() {
		if l.minute.capacity > 0 {
			l.minute.refund()
		}
		return false
	}
	return true
}

// WaitForAvailability blocks until TryAcquire succeeds or ctx is done,
// sleeping until the nearest window reset plus a small jitter between
// attempts. Reserved for back-end jobs (e.g. cache warming); the facade's
// request path never waits — it raises RateLimitExceeded immediately.
func (l *Limiter) WaitForAvailability(ctx context.Context) error {
	for {
		if l.TryAcquire() {
			return nil
		}
		wait := l.shortestResetWindow() + jitter()
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (l *Limiter) shortestResetWindow() time.Duration {
	_, _, minuteReset := l.minute.snapshot()
	_, _, dayReset := l.day.snapshot()
	if minuteReset < dayReset {
		return minuteReset
	}
	return dayReset
}

func jitter() time.Duration {
	return time.Duration(rand.Intn(250)) * time.Millisecond
}

// Status returns a read-out of both buckets for the facade/observability
// surface.
func (l *Limiter) Status() domain.RateLimitStatus {
	minuteRemaining, minuteLimit, minuteReset := l.minute.snapshot()
	dayRemaining, dayLimit, dayReset := l.day.snapshot()
	return domain.RateLimitStatus{
		MinuteRemaining: minuteRemaining,
		MinuteLimit:     minuteLimit,
		MinuteResetIn:   minuteReset,
		DayRemaining:    dayRemaining,
		DayLimit:        dayLimit,
		DayResetIn:      dayReset,
	}
}

// Pace blocks briefly to smooth outbound call spacing within the current
// minute window; see pacer.go. It never blocks past the caller's context
// deadline and never fails the request — worst case it returns immediately.
func (l *Limiter) Pace(ctx context.Context) {
	if l.pacer != nil {
		l.pacer.wait(ctx)
	}
}
