// Package domain holds the normalized records the core hands back to
// callers, independent of which provider variant produced them.
package domain

import (
	"strings"
	"time"
)

// MarketState classifies a Quote's as-of time relative to the approximate
// US equity session. The heuristic is intentionally coarse; real exchange
// calendars are out of scope (see SPEC_FULL.md design notes).
type MarketState string

const (
	MarketOpen       MarketState = "Open"
	MarketPreMarket  MarketState = "PreMarket"
	MarketAfterHours MarketState = "AfterHours"
	MarketClosed     MarketState = "Closed"
)

// Interval is the granularity of a historical bar series.
type Interval string

const (
	IntervalDaily   Interval = "Daily"
	IntervalWeekly  Interval = "Weekly"
	IntervalMonthly Interval = "Monthly"
)

// AssetType classifies a SearchHit.
type AssetType string

const (
	AssetStock    AssetType = "Stock"
	AssetETF      AssetType = "ETF"
	AssetIndex    AssetType = "Index"
	AssetFund     AssetType = "Fund"
	AssetCurrency AssetType = "Currency"
	AssetCrypto   AssetType = "Crypto"
	AssetFuture   AssetType = "Future"
	AssetOption   AssetType = "Option"
	AssetUnknown  AssetType = "Unknown"
)

// NormalizeSymbol upper-cases and trims a ticker for cache-key and
// comparison purposes. All ingress paths must call this before touching
// a cache key or provider request.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Quote is a point-in-time price snapshot.
type Quote struct {
	Symbol           string
	CurrentPrice     float64
	PreviousClose    float64
	Change           float64
	ChangePercent    float64
	Open             float64
	DayHigh          float64
	DayLow           float64
	Volume           int64
	BidPrice         *float64
	AskPrice         *float64
	FiftyTwoWeekHigh *float64
	FiftyTwoWeekLow  *float64
	AverageVolume    *float64
	MarketCap        *float64
	Exchange         string
	MarketState      MarketState
	AsOf             time.Time
}

// NewQuote builds a Quote and derives Change/ChangePercent per the
// invariant: change = currentPrice - previousClose; changePercent =
// change/previousClose*100 when previousClose != 0, else 0.
func NewQuote(symbol string, currentPrice, previousClose float64) Quote {
	change := currentPrice - previousClose
	var changePercent float64
	if previousClose != 0 {
		changePercent = change / previousClose * 100
	}
	return Quote{
		Symbol:        NormalizeSymbol(symbol),
		CurrentPrice:  currentPrice,
		PreviousClose: previousClose,
		Change:        change,
		ChangePercent: changePercent,
	}
}

// DeriveMarketState classifies asOf against now using UTC hour bands:
// [14,21) Open, [9,14) PreMarket, [21,24)∪[0,1) AfterHours, else Closed.
// A stale asOf (more than 24 hours before now) coerces to Closed.
func DeriveMarketState(asOf, now time.Time) MarketState {
	asOf = asOf.UTC()
	now = now.UTC()
	if now.Sub(asOf) > 24*time.Hour {
		return MarketClosed
	}
	hour := now.Hour()
	switch {
	case hour >= 14 && hour < 21:
		return MarketOpen
	case hour >= 9 && hour < 14:
		return MarketPreMarket
	case hour >= 21 || hour < 1:
		return MarketAfterHours
	default:
		return MarketClosed
	}
}

// HistoricalBar is one OHLCV sample in a series. Series-level invariants
// (strict date monotonicity) are the caller's responsibility to enforce
// across a slice; BarValid checks the per-bar invariants alone.
type HistoricalBar struct {
	Symbol         string
	Date           time.Time // date-only, UTC (hour/min/sec zeroed)
	Open           float64
	High           float64
	Low            float64
	Close          float64
	AdjustedClose  float64
	Volume         int64
}

// BarValid reports whether a single bar satisfies low <= open,close <= high,
// low <= high, and volume >= 0.
func BarValid(b HistoricalBar) bool {
	if b.Volume < 0 {
		return false
	}
	if b.Low > b.High {
		return false
	}
	if b.Open < b.Low || b.Open > b.High {
		return false
	}
	if b.Close < b.Low || b.Close > b.High {
		return false
	}
	return true
}

// SeriesStrictlyMonotonic reports whether a bar series' dates are strictly
// increasing.
func SeriesStrictlyMonotonic(bars []HistoricalBar) bool {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			return false
		}
	}
	return true
}

// Fundamentals holds ratio/valuation metrics; most fields are optional
// because not every provider populates every field.
type Fundamentals struct {
	Symbol           string
	PERatio          *float64
	PEGRatio         *float64
	PriceToBook      *float64
	PriceToSales     *float64
	EPS              *float64
	DividendYield    *float64
	PayoutRatio      *float64
	ProfitMargin     *float64
	OperatingMargin  *float64
	ReturnOnEquity   *float64
	ReturnOnAssets   *float64
	RevenueGrowth    *float64
	EarningsGrowth   *float64
	CurrentRatio     *float64
	DebtToEquity     *float64
	QuickRatio       *float64
	AsOf             time.Time
}

// Profile is descriptive company/issuer metadata.
type Profile struct {
	Symbol        string
	Name          string
	Sector        string
	Industry      string
	Description   string
	Website       string
	Country       string
	City          string
	Exchange      string
	Currency      string
	EmployeeCount *int
	CEO           *string
}

// SearchHit is one symbol-search result.
type SearchHit struct {
	Symbol     string
	Name       string
	Exchange   string
	AssetType  AssetType
	Region     string
	MatchScore float64
}

// ProviderHealth is a point-in-time snapshot of one variant's liveness.
type ProviderHealth struct {
	IsHealthy           bool
	LastCheckedAt       time.Time
	ConsecutiveFailures int
	RollingAvgLatency   time.Duration
	LastErrorSummary    string
}

// CostMetrics is the per-variant usage/cost snapshot the strategy and the
// outer API layer can read.
type CostMetrics struct {
	Variant               string
	TotalCalls            int64
	EstimatedUsageCost    float64
	MonthlySubscriptionCost float64
	TotalEstimatedCost    float64
	Threshold             float64
	ThresholdPct          float64
	Exceeded              bool
}

// RateLimitStatus is a read-out of the dual token-bucket state.
type RateLimitStatus struct {
	MinuteRemaining int
	MinuteLimit     int
	MinuteResetIn   time.Duration
	DayRemaining    int
	DayLimit        int
	DayResetIn      time.Duration
}

// CacheEntry is the value+expiry pair the Cache Store owns internally.
// Facade- and provider-layer code never constructs these directly; they
// pass values across the Cache interface, which serializes opaquely.
type CacheEntry struct {
	Value     []byte
	ExpiresAt time.Time
}
