package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
	"github.com/leonwooster/StockPlatform1-sub001/internal/provider"
)

// scriptedProber lets tests drive a deterministic sequence of probe
// outcomes instead of waiting on a real provider.
type scriptedProber struct {
	tag     provider.Tag
	mu      sync.Mutex
	results []error
	calls   int
}

func (s *scriptedProber) Tag() provider.Tag { return s.tag }

func (s *scriptedProber) IsHealthy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.results) {
		return nil
	}
	err := s.results[s.calls]
	s.calls++
	return err
}

func (s *scriptedProber) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	return domain.Quote{}, nil
}
func (s *scriptedProber) Quotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	return nil, nil
}
func (s *scriptedProber) History(ctx context.Context, symbol string, start, end time.Time, interval domain.Interval) ([]domain.HistoricalBar, error) {
	return nil, nil
}
func (s *scriptedProber) Fundamentals(ctx context.Context, symbol string) (domain.Fundamentals, error) {
	return domain.Fundamentals{}, nil
}
func (s *scriptedProber) Profile(ctx context.Context, symbol string) (domain.Profile, error) {
	return domain.Profile{}, nil
}
func (s *scriptedProber) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	return nil, nil
}
func (s *scriptedProber) Name() string { return string(s.tag) }

var _ provider.Provider = (*scriptedProber)(nil)

// TestMonitor_ThreeConsecutiveFailuresMarksUnhealthy grounds invariant 7:
// after N consecutive failed probes, isHealthy=true iff N<3; one success
// restores isHealthy=true and resets the counter.
func TestMonitor_ThreeConsecutiveFailuresMarksUnhealthy(t *testing.T) {
	p := &scriptedProber{
		tag:     provider.TagFree,
		results: []error{domain.NewAPIUnavailable("free", "", "down", nil), domain.NewAPIUnavailable("free", "", "down", nil), domain.NewAPIUnavailable("free", "", "down", nil)},
	}
	m := New([]provider.Provider{p}, time.Hour, time.Second)

	m.probeOne(p)
	h, _ := m.Get(provider.TagFree)
	if !h.IsHealthy || h.ConsecutiveFailures != 1 {
		t.Fatalf("expected healthy after 1 failure, got %+v", h)
	}

	m.probeOne(p)
	h, _ = m.Get(provider.TagFree)
	if !h.IsHealthy || h.ConsecutiveFailures != 2 {
		t.Fatalf("expected still healthy after 2 failures, got %+v", h)
	}

	m.probeOne(p)
	h, _ = m.Get(provider.TagFree)
	if h.IsHealthy || h.ConsecutiveFailures != 3 {
		t.Fatalf("expected unhealthy after 3 consecutive failures, got %+v", h)
	}

	// A subsequent success restores health immediately.
	m.probeOne(p)
	h, _ = m.Get(provider.TagFree)
	if !h.IsHealthy || h.ConsecutiveFailures != 0 {
		t.Fatalf("expected healthy with reset counter after a success, got %+v", h)
	}
}

func TestMonitor_RateLimitExceededCountsAsHealthy(t *testing.T) {
	p := &scriptedProber{
		tag:     provider.TagPremium,
		results: []error{domain.NewRateLimitExceeded("premium", "", time.Minute)},
	}
	m := New([]provider.Provider{p}, time.Hour, time.Second)

	m.probeOne(p)
	h, _ := m.Get(provider.TagPremium)
	if !h.IsHealthy || h.ConsecutiveFailures != 0 {
		t.Errorf("expected RateLimitExceeded to count as healthy, got %+v", h)
	}
}

func TestMonitor_GetAllReturnsIndependentCopies(t *testing.T) {
	p := &scriptedProber{tag: provider.TagMock}
	m := New([]provider.Provider{p}, time.Hour, time.Second)
	m.probeOne(p)

	all := m.GetAll()
	h := all[provider.TagMock]
	h.ConsecutiveFailures = 99 // mutating the copy must not affect monitor state

	fresh, _ := m.Get(provider.TagMock)
	if fresh.ConsecutiveFailures == 99 {
		t.Error("expected GetAll to return independent copies")
	}
}
