package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
)

// MockVariant is a deterministic-from-seed provider used for local
// development and tests. It is always healthy, costs nothing, and never
// touches the rate limiter — per §4.3 "Mock variant is deterministic-from-
// seed, always healthy, zero cost, bypasses the rate limiter."
type MockVariant struct{}

// NewMock constructs the mock provider variant.
func NewMock() *MockVariant { return &MockVariant{} }

func (m *MockVariant) Tag() Tag     { return TagMock }
func (m *MockVariant) Name() string { return "Mock" }

func (m *MockVariant) IsHealthy(ctx context.Context) error { return nil }

// seedFor derives a stable pseudo-random basis from the symbol so repeated
// calls for the same symbol return identical prices and volumes (AsOf is
// the time of the call).
func seedFor(symbol string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(domain.NormalizeSymbol(symbol)))
	return h.Sum64()
}

func (m *MockVariant) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	seed := seedFor(symbol)
	base := 10 + float64(seed%49000)/100 // deterministic price in [10, 500)
	prevClose := base * 0.99

	q := domain.NewQuote(symbol, base, prevClose)
	q.Open = prevClose * 1.001
	q.DayHigh = base * 1.02
	q.DayLow = base * 0.98
	q.Volume = int64(seed%5_000_000) + 100_000
	q.Exchange = "MOCK"
	q.AsOf = time.Now().UTC()
	q.MarketState = domain.DeriveMarketState(q.AsOf, time.Now().UTC())
	return q, nil
}

func (m *MockVariant) Quotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(symbols))
	for _, s := range symbols {
		q, err := m.Quote(ctx, s)
		if err != nil {
			return out, err
		}
		out[q.Symbol] = q
	}
	return out, nil
}

func (m *MockVariant) History(ctx context.Context, symbol string, start, end time.Time, interval domain.Interval) ([]domain.HistoricalBar, error) {
	symbol = domain.NormalizeSymbol(symbol)
	seed := seedFor(symbol)
	base := 10 + float64(seed%49000)/100

	var bars []domain.HistoricalBar
	step := stepFor(interval)
	for d := start; d.Before(end) || d.Equal(end); d = d.AddDate(0, 0, step) {
		dayOffset := float64(d.Unix()%97) / 97
		open := base * (0.95 + 0.1*dayOffset)
		high := open * 1.03
		low := open * 0.97
		closePx := (open + high + low) / 3
		bars = append(bars, domain.HistoricalBar{
			Symbol:        symbol,
			Date:          time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
			Open:          open,
			High:          high,
			Low:           low,
			Close:         closePx,
			AdjustedClose: closePx,
			Volume:        int64(seed%1_000_000) + 10_000,
		})
	}
	return bars, nil
}

func stepFor(interval domain.Interval) int {
	switch interval {
	case domain.IntervalWeekly:
		return 7
	case domain.IntervalMonthly:
		return 30
	default:
		return 1
	}
}

func (m *MockVariant) Fundamentals(ctx context.Context, symbol string) (domain.Fundamentals, error) {
	symbol = domain.NormalizeSymbol(symbol)
	seed := seedFor(symbol)
	pe := 10 + float64(seed%40)
	eps := 1 + float64(seed%20)/10
	return domain.Fundamentals{
		Symbol:  symbol,
		PERatio: &pe,
		EPS:     &eps,
		AsOf:    time.Now().UTC(),
	}, nil
}

func (m *MockVariant) Profile(ctx context.Context, symbol string) (domain.Profile, error) {
	symbol = domain.NormalizeSymbol(symbol)
	return domain.Profile{
		Symbol:      symbol,
		Name:        fmt.Sprintf("%s Mock Corp", symbol),
		Sector:      "Technology",
		Industry:    "Software",
		Description: fmt.Sprintf("Deterministic mock profile for %s.", symbol),
		Exchange:    "MOCK",
		Currency:    "USD",
		Country:     "US",
	}, nil
}

func (m *MockVariant) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	q := domain.NormalizeSymbol(query)
	candidates := []domain.SearchHit{
		{Symbol: q, Name: fmt.Sprintf("%s Mock Corp", q), Exchange: "MOCK", AssetType: domain.AssetStock, Region: "US"},
	}
	for i := range candidates {
		candidates[i].MatchScore = scoreHit(query, candidates[i].Symbol, candidates[i].Name)
	}
	return rankHits(candidates, limit), nil
}
