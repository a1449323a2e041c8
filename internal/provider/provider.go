// Package provider implements the Provider abstraction (SPEC_FULL.md C3):
// a uniform capability set backed by three concrete variants — Free
// (free.go), Premium (premium.go), and Mock (mock.go) — plus the shared
// HTTP pipeline, response classification, tolerant parsing, search
// scoring, and circuit-breaker wrapper they all lean on.
package provider

import (
	"context"
	"time"

	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
	"github.com/leonwooster/StockPlatform1-sub001/internal/ratelimit"
)

// Tag identifies a concrete provider variant.
type Tag string

const (
	TagFree    Tag = "free"
	TagPremium Tag = "premium"
	TagMock    Tag = "mock"
)

// Provider is the capability set every variant exposes, per SPEC_FULL.md
// §4.3. Every operation returns a normalized domain record or a
// *domain.MarketDataError.
type Provider interface {
	Tag() Tag
	Name() string

	Quote(ctx context.Context, symbol string) (domain.Quote, error)
	Quotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error)
	History(ctx context.Context, symbol string, start, end time.Time, interval domain.Interval) ([]domain.HistoricalBar, error)
	Fundamentals(ctx context.Context, symbol string) (domain.Fundamentals, error)
	Profile(ctx context.Context, symbol string) (domain.Profile, error)
	Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error)

	IsHealthy(ctx context.Context) error
}

// retryConfig is the shared exponential-backoff policy for variants making
// outbound HTTP calls: base 100ms, factor 2, applied only to network
// errors and timeouts (never to 4xx or parse errors) per §4.3 step 3.
type retryConfig struct {
	maxRetries int
	base       time.Duration
	factor     float64
}

func defaultRetryConfig(maxRetries int) retryConfig {
	return retryConfig{maxRetries: maxRetries, base: 100 * time.Millisecond, factor: 2}
}

func (r retryConfig) backoff(attempt int) time.Duration {
	d := r.base
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * r.factor)
	}
	return d
}

// acquireLimiter gates an outbound call on l. Interactive calls fail fast
// (TryAcquire): the facade's request path never waits, per §4.2. A ctx
// tagged via ratelimit.WithBackground (cache warming and other back-end
// jobs) instead blocks in WaitForAvailability until capacity frees up or
// ctx is done — this is the "reserved for back-end jobs" blocking acquire
// the spec documents, wired in rather than left unreachable.
func acquireLimiter(ctx context.Context, l *ratelimit.Limiter) bool {
	if ratelimit.IsBackground(ctx) {
		return l.WaitForAvailability(ctx) == nil
	}
	return l.TryAcquire()
}
