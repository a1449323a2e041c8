package facade

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
	"github.com/leonwooster/StockPlatform1-sub001/internal/provider"
)

// calculatedFields is the derived-field set memoized under "calculated:SYMBOL"
// so repeated enrichments of the same symbol are cheap (§4.8).
type calculatedFields struct {
	FiftyTwoWeekHigh *float64
	FiftyTwoWeekLow  *float64
	AverageVolume    *float64
}

// maybeEnrich augments a premium Quote with bid/ask from the free variant
// and derived 52-week/average-volume fields, per §4.8. Every sub-task
// writes a disjoint field of the outer record, so no further
// synchronization is needed once all three complete; enrichment failures
// never fail the outer call — missing fields simply remain nil.
func (svc *Facade) maybeEnrich(ctx context.Context, q domain.Quote) (domain.Quote, error) {
	enrichCfg := svc.enrichmentConfigFor(provider.TagPremium)

	if calc, ok := cacheGet[calculatedFields](svc, "calculated:"+q.Symbol); ok {
		applyCalculated(&q, calc)
		if enrichCfg.EnableBidAsk && (q.BidPrice == nil || q.AskPrice == nil) {
			svc.enrichBidAsk(ctx, &q)
		}
		return q, nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	calc := calculatedFields{}

	if enrichCfg.EnableBidAsk && (q.BidPrice == nil || q.AskPrice == nil) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.enrichBidAsk(ctx, &q)
		}()
	}

	if enrichCfg.Enable52Week {
		wg.Add(1)
		go func() {
			defer wg.Done()
			high, low, err := svc.fiftyTwoWeekRange(ctx, q.Symbol)
			if err != nil {
				log.Debug().Str("symbol", q.Symbol).Err(err).Msg("52-week enrichment failed, leaving fields nil")
				return
			}
			mu.Lock()
			calc.FiftyTwoWeekHigh = &high
			calc.FiftyTwoWeekLow = &low
			mu.Unlock()
		}()
	}

	if enrichCfg.EnableAvgVolume {
		wg.Add(1)
		go func() {
			defer wg.Done()
			avg, err := svc.averageVolume(ctx, q.Symbol)
			if err != nil {
				log.Debug().Str("symbol", q.Symbol).Err(err).Msg("average-volume enrichment failed, leaving field nil")
				return
			}
			mu.Lock()
			calc.AverageVolume = &avg
			mu.Unlock()
		}()
	}

	wg.Wait()
	applyCalculated(&q, calc)

	ttl := time.Duration(enrichCfg.CalculatedFieldsTTLSec) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	cacheSet(svc, "calculated:"+q.Symbol, calc, ttl)

	return q, nil
}

func applyCalculated(q *domain.Quote, calc calculatedFields) {
	if q.FiftyTwoWeekHigh == nil {
		q.FiftyTwoWeekHigh = calc.FiftyTwoWeekHigh
	}
	if q.FiftyTwoWeekLow == nil {
		q.FiftyTwoWeekLow = calc.FiftyTwoWeekLow
	}
	if q.AverageVolume == nil {
		q.AverageVolume = calc.AverageVolume
	}
}

// enrichBidAsk copies bid/ask from the free variant's own quote if the
// premium record has them empty (BidAskEnrichment, §4.8).
func (svc *Facade) enrichBidAsk(ctx context.Context, q *domain.Quote) {
	freeProvider, err := svc.resolve(provider.TagFree)
	if err != nil {
		return
	}
	freeQuote, err := freeProvider.Quote(ctx, q.Symbol)
	svc.recordOutcome(string(provider.TagFree), err)
	if err != nil {
		log.Debug().Str("symbol", q.Symbol).Err(err).Msg("bid/ask enrichment failed, leaving fields nil")
		return
	}
	if q.BidPrice == nil {
		q.BidPrice = freeQuote.BidPrice
	}
	if q.AskPrice == nil {
		q.AskPrice = freeQuote.AskPrice
	}
}

// fiftyTwoWeekRange computes min(low)/max(high) over the last 365 days of
// daily bars (FiftyTwoWeekRange, §4.8).
func (svc *Facade) fiftyTwoWeekRange(ctx context.Context, symbol string) (high, low float64, err error) {
	bars, err := svc.historyForEnrichment(ctx, symbol, 365)
	if err != nil {
		return 0, 0, err
	}
	if len(bars) == 0 {
		return 0, 0, domain.NewSymbolNotFound("facade", symbol)
	}
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, nil
}

// averageVolume computes mean(volume) over the last 30 days of daily bars
// (AverageVolume, §4.8).
func (svc *Facade) averageVolume(ctx context.Context, symbol string) (float64, error) {
	bars, err := svc.historyForEnrichment(ctx, symbol, 30)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, domain.NewSymbolNotFound("facade", symbol)
	}
	var total int64
	for _, b := range bars {
		total += b.Volume
	}
	return float64(total) / float64(len(bars)), nil
}

// historyForEnrichment fetches daily bars for the trailing window directly
// from the free variant, injected as a capability rather than reached for
// through a global — the same "second provider variant" pattern
// BidAskEnrichment uses, per §9's cyclic-reference design note. It bypasses
// the facade's own historical cache/TTL machinery since the result is
// memoized under "calculated:SYMBOL" instead.
func (svc *Facade) historyForEnrichment(ctx context.Context, symbol string, days int) ([]domain.HistoricalBar, error) {
	freeProvider, err := svc.resolve(provider.TagFree)
	if err != nil {
		return nil, err
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)
	return freeProvider.History(ctx, symbol, start, end, domain.IntervalDaily)
}

func (svc *Facade) enrichmentConfigFor(tag provider.Tag) enrichmentConfig {
	pc, ok := svc.cfg.Providers[string(tag)]
	if !ok {
		return enrichmentConfig{}
	}
	return enrichmentConfig{
		EnableBidAsk:           pc.DataEnrichment.EnableBidAsk,
		Enable52Week:           pc.DataEnrichment.Enable52Week,
		EnableAvgVolume:        pc.DataEnrichment.EnableAvgVolume,
		CalculatedFieldsTTLSec: pc.DataEnrichment.CalculatedFieldsTTLSec,
	}
}

type enrichmentConfig struct {
	EnableBidAsk           bool
	Enable52Week           bool
	EnableAvgVolume        bool
	CalculatedFieldsTTLSec int
}
