package provider

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// newCircuitBreaker builds a per-variant gobreaker.CircuitBreaker guarding
// outbound HTTP calls. Selection-strategy fallback already covers
// cross-variant redirection (§4.7), so this breaker only ever protects its
// own variant's call path — it trips open on a sustained error rate or
// consecutive-failure run and half-opens after Timeout to probe recovery.
func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests >= 10 {
				errorRate := float64(counts.TotalFailures) / float64(counts.Requests) * 100
				if errorRate >= 30 {
					return true
				}
			}
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			log.Warn().
				Str("provider", breakerName).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
