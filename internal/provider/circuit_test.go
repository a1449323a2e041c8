package provider

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
)

func TestNewCircuitBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	cb := newCircuitBreaker("test-provider")

	failingCall := func() (interface{}, error) {
		return nil, errors.New("boom")
	}

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(failingCall)
	}

	if cb.State() != gobreaker.StateOpen {
		t.Errorf("expected breaker to trip open after 3 consecutive failures, got state=%v", cb.State())
	}
}

func TestNewCircuitBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb := newCircuitBreaker("healthy-provider")

	for i := 0; i < 5; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
		if err != nil {
			t.Fatalf("unexpected error from successful call: %v", err)
		}
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected breaker to remain closed on successes, got state=%v", cb.State())
	}
}
