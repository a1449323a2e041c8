package facade

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonwooster/StockPlatform1-sub001/internal/cache"
	"github.com/leonwooster/StockPlatform1-sub001/internal/config"
	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
	"github.com/leonwooster/StockPlatform1-sub001/internal/factory"
	"github.com/leonwooster/StockPlatform1-sub001/internal/provider"
	"github.com/leonwooster/StockPlatform1-sub001/internal/strategy"
)

// fakeProvider is a scripted provider.Provider test double: each method
// defers to an injectable function so scenario tests can script exact
// upstream behavior (including failures) without standing up real HTTP.
type fakeProvider struct {
	tag   provider.Tag
	name  string
	calls int32

	quoteFn   func(ctx context.Context, symbol string) (domain.Quote, error)
	historyFn func(ctx context.Context, symbol string, start, end time.Time, interval domain.Interval) ([]domain.HistoricalBar, error)
	healthErr error
}

func (f *fakeProvider) Tag() provider.Tag { return f.tag }
func (f *fakeProvider) Name() string      { return f.name }

func (f *fakeProvider) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.quoteFn != nil {
		return f.quoteFn(ctx, symbol)
	}
	return domain.NewQuote(symbol, 100, 99), nil
}

func (f *fakeProvider) Quotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(symbols))
	for _, s := range symbols {
		q, err := f.Quote(ctx, s)
		if err != nil {
			return out, err
		}
		out[q.Symbol] = q
	}
	return out, nil
}

func (f *fakeProvider) History(ctx context.Context, symbol string, start, end time.Time, interval domain.Interval) ([]domain.HistoricalBar, error) {
	if f.historyFn != nil {
		return f.historyFn(ctx, symbol, start, end, interval)
	}
	return []domain.HistoricalBar{{Symbol: symbol, Date: start, Open: 10, High: 12, Low: 9, Close: 11, Volume: 1000}}, nil
}

func (f *fakeProvider) Fundamentals(ctx context.Context, symbol string) (domain.Fundamentals, error) {
	return domain.Fundamentals{Symbol: symbol, AsOf: time.Now().UTC()}, nil
}

func (f *fakeProvider) Profile(ctx context.Context, symbol string) (domain.Profile, error) {
	return domain.Profile{Symbol: symbol, Name: symbol + " Inc."}, nil
}

func (f *fakeProvider) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	return []domain.SearchHit{{Symbol: query}}, nil
}

func (f *fakeProvider) IsHealthy(ctx context.Context) error { return f.healthErr }

// fakeHealth is a canned HealthSource for scenario tests, avoiding the
// real probe loop's timing.
type fakeHealth map[provider.Tag]domain.ProviderHealth

func (h fakeHealth) GetAll() map[provider.Tag]domain.ProviderHealth { return h }

func healthy(tags ...provider.Tag) fakeHealth {
	out := make(fakeHealth, len(tags))
	for _, t := range tags {
		out[t] = domain.ProviderHealth{IsHealthy: true}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		DataProvider: config.DataProviderConfig{EnableAutomaticFallback: true},
		Providers: map[string]config.ProviderConfig{
			"premium": {
				DataEnrichment: config.DataEnrichmentConfig{
					EnableBidAsk:           true,
					Enable52Week:           true,
					EnableAvgVolume:        true,
					CalculatedFieldsTTLSec: 3600,
				},
			},
		},
		Cache: config.CacheConfig{Defaults: config.DefaultCacheTTLs()},
	}
}

func newTestFacade(t *testing.T, strat strategy.Strategy, providers ...*fakeProvider) (*Facade, cache.Cache) {
	t.Helper()
	store := cache.New()
	t.Cleanup(func() { cache.Close(store) })

	f := factory.New()
	for _, p := range providers {
		f.Register(p)
	}

	tags := make([]provider.Tag, 0, len(providers))
	for _, p := range providers {
		tags = append(tags, p.Tag())
	}
	return New(testConfig(), store, f, strat, healthy(tags...), nil), store
}

// S1 — cache hit short-circuits: a pre-seeded hot quote entry must be
// returned without any upstream call.
func TestFacade_S1_CacheHitShortCircuits(t *testing.T) {
	premium := &fakeProvider{tag: provider.TagPremium, name: "Premium"}
	free := &fakeProvider{tag: provider.TagFree, name: "Free"}
	svc, store := newTestFacade(t, &strategy.Primary{PrimaryTag: provider.TagPremium}, premium, free)

	seeded := domain.NewQuote("AAPL", 271.49, 270)
	raw, err := json.Marshal(seeded)
	require.NoError(t, err)
	store.Set("quote:AAPL", raw, time.Minute)

	got, err := svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 271.49, got.CurrentPrice)
	assert.Equal(t, int32(0), atomic.LoadInt32(&premium.calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&free.calls))
}

// S2 — cache miss then stale on failure: primary raises ApiUnavailable,
// strategy is Primary (no fallback), stale cache is seeded; the stale
// value must be returned and the primary called exactly once.
func TestFacade_S2_StaleOnFailure(t *testing.T) {
	primary := &fakeProvider{
		tag: provider.TagPremium, name: "Premium",
		quoteFn: func(ctx context.Context, symbol string) (domain.Quote, error) {
			return domain.Quote{}, domain.NewAPIUnavailable("Premium", symbol, "simulated outage", nil)
		},
	}
	svc, store := newTestFacade(t, &strategy.Primary{PrimaryTag: provider.TagPremium}, primary)

	stale := domain.NewQuote("MSFT", 380, 375)
	raw, err := json.Marshal(stale)
	require.NoError(t, err)
	store.Set("stale:quote:MSFT", raw, 24*time.Hour)

	got, err := svc.Quote(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 380.0, got.CurrentPrice)
	assert.Equal(t, int32(1), atomic.LoadInt32(&primary.calls))
}

// S3 — rate-limit induced fallback: primary refuses with
// RateLimitExceeded, strategy is Fallback with secondary=Free; the facade
// must re-invoke the fallback exactly once and return Free's result.
func TestFacade_S3_RateLimitFallback(t *testing.T) {
	primary := &fakeProvider{
		tag: provider.TagPremium, name: "Premium",
		quoteFn: func(ctx context.Context, symbol string) (domain.Quote, error) {
			return domain.Quote{}, domain.NewRateLimitExceeded("Premium", symbol, time.Minute)
		},
	}
	free := &fakeProvider{
		tag: provider.TagFree, name: "Free",
		quoteFn: func(ctx context.Context, symbol string) (domain.Quote, error) {
			return domain.NewQuote(symbol, 150, 148), nil
		},
	}
	fb := &strategy.Fallback{PrimaryTag: provider.TagPremium, SecondaryTag: provider.TagFree}
	svc, _ := newTestFacade(t, fb, primary, free)

	got, err := svc.Quote(context.Background(), "GOOGL")
	require.NoError(t, err)
	assert.Equal(t, 150.0, got.CurrentPrice)
	assert.Equal(t, int32(1), atomic.LoadInt32(&primary.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&free.calls))
}

// S4 — historical range clamp: an end date far in the future is clamped
// to today before any provider call; returned bars stay within
// [start, today] and remain strictly monotonic.
func TestFacade_S4_HistoricalRangeClamp(t *testing.T) {
	var receivedEnd time.Time
	mock := &fakeProvider{
		tag: provider.TagMock, name: "Mock",
		historyFn: func(ctx context.Context, symbol string, start, end time.Time, interval domain.Interval) ([]domain.HistoricalBar, error) {
			receivedEnd = end
			var bars []domain.HistoricalBar
			for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
				bars = append(bars, domain.HistoricalBar{Symbol: symbol, Date: d, Open: 10, High: 12, Low: 9, Close: 11, Volume: 500})
				if len(bars) > 5 {
					break
				}
			}
			return bars, nil
		},
	}
	svc, _ := newTestFacade(t, &strategy.Primary{PrimaryTag: provider.TagMock}, mock)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, err := svc.History(context.Background(), "TSLA", start, future, domain.IntervalDaily)
	require.NoError(t, err)
	assert.True(t, receivedEnd.Before(future))
	assert.True(t, domain.SeriesStrictlyMonotonic(bars))
	for _, b := range bars {
		assert.False(t, b.Date.Before(start))
		assert.False(t, b.Date.After(receivedEnd))
	}
}

// S5 — enrichment completes partially: premium's quote lacks bid/ask and
// 52-week fields; free's quote supplies bid/ask; the 365-day history call
// succeeds but the 30-day call fails. The final record must have bid/ask
// and 52-week filled, average volume nil, and no error surfaced.
func TestFacade_S5_PartialEnrichment(t *testing.T) {
	premium := &fakeProvider{
		tag: provider.TagPremium, name: "Premium",
		quoteFn: func(ctx context.Context, symbol string) (domain.Quote, error) {
			return domain.NewQuote(symbol, 200, 195), nil
		},
	}
	bid, ask := 199.5, 200.5
	free := &fakeProvider{
		tag: provider.TagFree, name: "Free",
		quoteFn: func(ctx context.Context, symbol string) (domain.Quote, error) {
			q := domain.NewQuote(symbol, 199, 198)
			q.BidPrice = &bid
			q.AskPrice = &ask
			return q, nil
		},
		historyFn: func(ctx context.Context, symbol string, start, end time.Time, interval domain.Interval) ([]domain.HistoricalBar, error) {
			span := end.Sub(start)
			if span > 60*24*time.Hour {
				// the 52-week window: succeed with a small monotonic series.
				return []domain.HistoricalBar{
					{Symbol: symbol, Date: start, Open: 90, High: 110, Low: 85, Close: 100, Volume: 1000},
					{Symbol: symbol, Date: start.AddDate(0, 1, 0), Open: 100, High: 120, Low: 95, Close: 110, Volume: 1200},
				}, nil
			}
			// the 30-day window: simulated upstream failure.
			return nil, domain.NewAPIUnavailable("Free", symbol, "simulated outage", nil)
		},
	}
	mock := &fakeProvider{tag: provider.TagMock, name: "Mock"}

	svc, _ := newTestFacade(t, &strategy.Primary{PrimaryTag: provider.TagPremium}, premium, free, mock)

	got, err := svc.Quote(context.Background(), "NVDA")
	require.NoError(t, err)
	require.NotNil(t, got.BidPrice)
	require.NotNil(t, got.AskPrice)
	assert.Equal(t, bid, *got.BidPrice)
	assert.Equal(t, ask, *got.AskPrice)
	require.NotNil(t, got.FiftyTwoWeekHigh)
	require.NotNil(t, got.FiftyTwoWeekLow)
	assert.Equal(t, 120.0, *got.FiftyTwoWeekHigh)
	assert.Equal(t, 85.0, *got.FiftyTwoWeekLow)
	assert.Nil(t, got.AverageVolume)
}

// Testable property 6: warm([S,S,S]) issues at most one successful
// upstream quote call for S.
func TestFacade_Warm_DeduplicatesRepeatedSymbol(t *testing.T) {
	mock := &fakeProvider{tag: provider.TagMock, name: "Mock"}
	svc, _ := newTestFacade(t, &strategy.Primary{PrimaryTag: provider.TagMock}, mock)

	result := svc.Warm(context.Background(), []string{"AAPL", "AAPL", "AAPL"})
	assert.Equal(t, 1, result.Requested)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&mock.calls))
}

// Testable property 5: round-trip through cache returns an equal record
// and a re-fetch within TTL makes zero further upstream calls.
func TestFacade_Quote_RoundTripThroughCache(t *testing.T) {
	mock := &fakeProvider{tag: provider.TagMock, name: "Mock"}
	svc, _ := newTestFacade(t, &strategy.Primary{PrimaryTag: provider.TagMock}, mock)

	first, err := svc.Quote(context.Background(), "IBM")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&mock.calls))

	second, err := svc.Quote(context.Background(), "IBM")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&mock.calls), "re-fetch within TTL must not call upstream again")
}

func TestFacade_History_RejectsInvalidRange(t *testing.T) {
	mock := &fakeProvider{tag: provider.TagMock, name: "Mock"}
	svc, _ := newTestFacade(t, &strategy.Primary{PrimaryTag: provider.TagMock}, mock)

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.History(context.Background(), "TSLA", start, end, domain.IntervalDaily)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidDateRange))
	assert.Equal(t, int32(0), atomic.LoadInt32(&mock.calls))
}
