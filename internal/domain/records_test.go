package domain

import (
	"testing"
	"time"
)

func TestNewQuote_ChangeInvariant(t *testing.T) {
	t.Run("normal previous close", func(t *testing.T) {
		q := NewQuote("aapl", 150.0, 145.0)
		if q.Symbol != "AAPL" {
			t.Errorf("expected normalized symbol AAPL, got %s", q.Symbol)
		}
		if q.Change != 5.0 {
			t.Errorf("expected change 5.0, got %f", q.Change)
		}
		wantPct := 5.0 / 145.0 * 100
		if diff := q.ChangePercent - wantPct; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("expected changePercent %f, got %f", wantPct, q.ChangePercent)
		}
	})

	t.Run("zero previous close yields zero percent", func(t *testing.T) {
		q := NewQuote("XYZ", 10.0, 0)
		if q.ChangePercent != 0 {
			t.Errorf("expected changePercent 0 when previousClose=0, got %f", q.ChangePercent)
		}
		if q.Change != 10.0 {
			t.Errorf("expected change 10.0, got %f", q.Change)
		}
	})
}

func TestDeriveMarketState(t *testing.T) {
	base := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		hour int
		want MarketState
	}{
		{9, MarketPreMarket},
		{13, MarketPreMarket},
		{14, MarketOpen},
		{20, MarketOpen},
		{21, MarketAfterHours},
		{23, MarketAfterHours},
		{0, MarketAfterHours},
		{2, MarketClosed},
		{8, MarketClosed},
	}
	for _, c := range cases {
		now := base.Add(time.Duration(c.hour) * time.Hour)
		got := DeriveMarketState(now, now)
		if got != c.want {
			t.Errorf("hour %d: expected %s, got %s", c.hour, c.want, got)
		}
	}
}

func TestDeriveMarketState_StaleAsOfCoercesClosed(t *testing.T) {
	now := time.Date(2026, 7, 29, 15, 0, 0, 0, time.UTC)
	asOf := now.Add(-48 * time.Hour)
	if got := DeriveMarketState(asOf, now); got != MarketClosed {
		t.Errorf("expected stale as-of to coerce to Closed, got %s", got)
	}
}

func TestBarValid(t *testing.T) {
	valid := HistoricalBar{Open: 10, High: 12, Low: 9, Close: 11, Volume: 100}
	if !BarValid(valid) {
		t.Error("expected valid bar to pass BarValid")
	}

	invalidHighLow := HistoricalBar{Open: 10, High: 9, Low: 9, Close: 11, Volume: 100}
	if BarValid(invalidHighLow) {
		t.Error("expected close > high to fail BarValid")
	}

	negativeVolume := HistoricalBar{Open: 10, High: 12, Low: 9, Close: 11, Volume: -1}
	if BarValid(negativeVolume) {
		t.Error("expected negative volume to fail BarValid")
	}
}

func TestSeriesStrictlyMonotonic(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC) }

	ok := []HistoricalBar{{Date: d(1)}, {Date: d(2)}, {Date: d(3)}}
	if !SeriesStrictlyMonotonic(ok) {
		t.Error("expected strictly increasing dates to pass")
	}

	repeated := []HistoricalBar{{Date: d(1)}, {Date: d(1)}}
	if SeriesStrictlyMonotonic(repeated) {
		t.Error("expected repeated dates to fail strict monotonicity")
	}

	reversed := []HistoricalBar{{Date: d(2)}, {Date: d(1)}}
	if SeriesStrictlyMonotonic(reversed) {
		t.Error("expected reversed dates to fail strict monotonicity")
	}
}
