package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// pacer smooths outbound calls across a minute window instead of letting a
// provider burst every remaining token the instant the hard bucket
// refills. It is a pure quality-of-service refinement layered beneath the
// boundary-reset bucket above — it never grants a token the bucket
// wouldn't have granted anyway, and it never blocks past the caller's
// context deadline.
type pacer struct {
	limiter *rate.Limiter
}

func newPacer(requestsPerMinute int) *pacer {
	if requestsPerMinute <= 0 {
		return nil
	}
	perSecond := float64(requestsPerMinute) / 60.0
	return &pacer{limiter: rate.NewLimiter(rate.Limit(perSecond), requestsPerMinute)}
}

func (p *pacer) wait(ctx context.Context) {
	if p == nil {
		return
	}
	_ = p.limiter.Wait(ctx)
}
