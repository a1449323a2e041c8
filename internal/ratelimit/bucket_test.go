package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_TryAcquire_RespectsMinuteCapacity(t *testing.T) {
	l := New("test", 3, 1000)

	granted := 0
	for i := 0; i < 5; i++ {
		if l.TryAcquire() {
			granted++
		}
	}
	if granted != 3 {
		t.Errorf("expected exactly 3 grants within one minute window, got %d", granted)
	}
}

func TestLimiter_TryAcquire_DayExhaustionRefundsMinuteToken(t *testing.T) {
	l := New("test", 1000, 1)

	if !l.TryAcquire() {
		t.Fatal("expected first acquire to succeed")
	}
	if l.TryAcquire() {
		t.Fatal("expected second acquire to fail: day bucket exhausted")
	}

	// The first grant keeps its minute token; only the refused second
	// acquire's token is refunded, so 999 of 1000 remain (998 without refund).
	status := l.Status()
	if status.MinuteRemaining != 999 {
		t.Errorf("expected minute token refunded after day exhaustion, remaining=%d", status.MinuteRemaining)
	}
}

func TestLimiter_Status(t *testing.T) {
	l := New("test", 5, 100)
	l.TryAcquire()

	s := l.Status()
	if s.MinuteLimit != 5 || s.MinuteRemaining != 4 {
		t.Errorf("unexpected minute status: %+v", s)
	}
	if s.DayLimit != 100 || s.DayRemaining != 99 {
		t.Errorf("unexpected day status: %+v", s)
	}
	if s.MinuteResetIn <= 0 {
		t.Error("expected positive minute reset duration")
	}
}

func TestLimiter_WaitForAvailability_HonorsCancel(t *testing.T) {
	l := New("test", 1, 1000)
	l.TryAcquire() // exhaust the sole minute token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.WaitForAvailability(ctx)
	if err == nil {
		t.Fatal("expected context deadline error, got nil")
	}
}

func TestLimiter_UnboundedWhenCapacityZero(t *testing.T) {
	l := New("unbounded", 0, 0)
	for i := 0; i < 50; i++ {
		if !l.TryAcquire() {
			t.Fatalf("expected unbounded limiter to always grant, failed at iteration %d", i)
		}
	}
}
