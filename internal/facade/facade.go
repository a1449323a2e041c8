// Package facade implements the Service Facade (SPEC_FULL.md C8): the
// single entry point consumers call for market data. It owns cache-aside
// orchestration, stale-on-error fallback, the strategy-driven
// primary/fallback re-issue, enrichment composition, and cache warming —
// wiring together every lower-level component (cache, strategy, factory,
// health monitor, metrics) behind one uniform call surface.
package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/leonwooster/StockPlatform1-sub001/internal/cache"
	"github.com/leonwooster/StockPlatform1-sub001/internal/config"
	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
	"github.com/leonwooster/StockPlatform1-sub001/internal/factory"
	"github.com/leonwooster/StockPlatform1-sub001/internal/metrics"
	"github.com/leonwooster/StockPlatform1-sub001/internal/provider"
	"github.com/leonwooster/StockPlatform1-sub001/internal/strategy"
)

// HealthSource is the read side of the Health Monitor the facade depends
// on; *health.Monitor satisfies it. The narrow interface lets tests supply
// a canned health snapshot without running the real probe loop.
type HealthSource interface {
	GetAll() map[provider.Tag]domain.ProviderHealth
}

// Facade is the process-wide Core construct (SPEC_FULL.md §9 "Global
// mutable state... provide a single Core construct that owns them... and
// passed explicitly to the facade"): it is built once at startup from the
// factory, strategy, health monitor and metrics registry, and every public
// method is safe for concurrent use by many in-flight requests.
type Facade struct {
	cache    cache.Cache
	factory  *factory.Factory
	strategy strategy.Strategy
	monitor  HealthSource
	metrics  *metrics.Registry
	cfg      *config.Config

	warmDedup sync.Map // symbol -> *sync.Once, for warm()'s de-duplication guarantee (testable property 6)
}

// New builds the facade from its already-constructed collaborators. None
// of the arguments are owned exclusively by the facade; the caller (the
// process entry point) retains responsibility for their lifecycle.
func New(cfg *config.Config, store cache.Cache, f *factory.Factory, strat strategy.Strategy, monitor HealthSource, metricsReg *metrics.Registry) *Facade {
	return &Facade{cache: store, factory: f, strategy: strat, monitor: monitor, metrics: metricsReg, cfg: cfg}
}

func (svc *Facade) strategyContext(symbol string, op strategy.OperationKind) strategy.Context {
	return strategy.Context{
		Symbol:    symbol,
		Operation: op,
		Health:    svc.monitor.GetAll(),
		RateLimit: svc.rateLimitSnapshot(),
	}
}

// rateLimitSnapshot is best-effort: variants that don't expose a limiter
// status (the mock) are simply absent from the map, which the strategy
// treats as "assume quota."
func (svc *Facade) rateLimitSnapshot() map[provider.Tag]domain.RateLimitStatus {
	out := make(map[provider.Tag]domain.RateLimitStatus)
	for _, p := range svc.factory.All() {
		if rlp, ok := p.(interface{ RateLimitStatus() domain.RateLimitStatus }); ok {
			out[p.Tag()] = rlp.RateLimitStatus()
		}
	}
	return out
}

func (svc *Facade) resolve(tag provider.Tag) (provider.Provider, error) {
	return svc.factory.Resolve(tag)
}

func requestID() string {
	return uuid.NewString()
}

// --- cache helpers ---------------------------------------------------------

func cacheGet[T any](svc *Facade, key string) (T, bool) {
	var zero T
	raw, ok := svc.cache.Get(key)
	if !ok {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Warn().Str("key", key).Err(err).Msg("cache HIT with unparseable payload, treating as MISS")
		return zero, false
	}
	log.Debug().Str("key", key).Msg("cache HIT")
	return out, true
}

func cacheSet(svc *Facade, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Warn().Str("key", key).Err(err).Msg("cache SET failed to marshal value")
		return
	}
	svc.cache.Set(key, raw, ttl)
	log.Debug().Str("key", key).Int("size", len(raw)).Dur("ttl", ttl).Msg("cache SET")
}

// --- quote -------------------------------------------------------------

// Quote implements §4.8's cache-aside algorithm for a single symbol.
func (svc *Facade) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	reqID := requestID()
	start := time.Now()
	log.Info().Str("reqId", reqID).Str("op", "quote").Str("symbol", symbol).Msg("request in")

	hotKey := "quote:" + symbol
	staleKey := "stale:quote:" + symbol

	if q, ok := cacheGet[domain.Quote](svc, hotKey); ok {
		log.Info().Str("reqId", reqID).Dur("latency", time.Since(start)).Msg("request out (cache hit)")
		return q, nil
	}
	log.Debug().Str("key", hotKey).Msg("cache MISS")

	q, tag, err := svc.fetchQuote(ctx, symbol, reqID)
	if err != nil {
		if stale, ok := cacheGet[domain.Quote](svc, staleKey); ok {
			log.Warn().Str("reqId", reqID).Str("symbol", symbol).Err(err).Msg("serving stale quote after upstream failure")
			return stale, nil
		}
		return domain.Quote{}, err
	}

	cfg := svc.cacheConfigFor(string(tag))
	cacheSet(svc, hotKey, q, cfg.Quote())
	cacheSet(svc, staleKey, q, svc.staleConfigFor(string(tag)).Quote())

	if tag == provider.TagPremium {
		if enriched, err := svc.maybeEnrich(ctx, q); err == nil {
			q = enriched
		}
	}

	log.Info().Str("reqId", reqID).Dur("latency", time.Since(start)).Msg("request out")
	return q, nil
}

// fetchQuote asks the strategy for a variant and calls it. On ApiUnavailable,
// or on RateLimitExceeded when automatic fallback is enabled, it re-issues
// the call once to the strategy's Fallback variant if that differs from the
// variant first selected. It returns
// the tag that actually produced the result, so the caller can key TTLs
// and enrichment decisions off the variant that was really used.
func (svc *Facade) fetchQuote(ctx context.Context, symbol, reqID string) (domain.Quote, provider.Tag, error) {
	stratCtx := svc.strategyContext(symbol, strategy.OpQuote)
	tag, err := svc.strategy.Select(stratCtx)
	if err != nil {
		return domain.Quote{}, "", err
	}

	p, err := svc.resolve(tag)
	if err != nil {
		return domain.Quote{}, "", err
	}

	q, err := p.Quote(ctx, symbol)
	svc.recordOutcome(string(tag), err)
	if err == nil {
		return q, tag, nil
	}

	retryable := domain.IsKind(err, domain.ErrAPIUnavailable) ||
		(domain.IsKind(err, domain.ErrRateLimitExceeded) && svc.cfg.DataProvider.EnableAutomaticFallback)
	if retryable {
		fbTag, fbErr := svc.strategy.Fallback(stratCtx)
		if fbErr == nil && fbTag != tag {
			log.Warn().Str("reqId", reqID).Str("from", string(tag)).Str("to", string(fbTag)).Msg("provider fallback")
			fp, resolveErr := svc.resolve(fbTag)
			if resolveErr == nil {
				q, retryErr := fp.Quote(ctx, symbol)
				svc.recordOutcome(string(fbTag), retryErr)
				return q, fbTag, retryErr
			}
		}
	}
	return domain.Quote{}, tag, err
}

func (svc *Facade) recordOutcome(variant string, err error) {
	if svc.metrics == nil {
		return
	}
	if err == nil {
		svc.metrics.RecordSuccess(variant)
	} else {
		svc.metrics.RecordFailure(variant)
	}
}

func (svc *Facade) cacheConfigFor(tag string) config.CacheTTLs {
	return svc.cfg.Cache.TTLFor(tag)
}

func (svc *Facade) staleConfigFor(string) config.CacheTTLs {
	return config.DefaultStaleCacheTTLs()
}

// --- history -------------------------------------------------------------

// History validates the date range before any cache or network access, per
// §4.8, then applies the same cache-aside algorithm as Quote.
func (svc *Facade) History(ctx context.Context, symbol string, start, end time.Time, interval domain.Interval) ([]domain.HistoricalBar, error) {
	symbol = domain.NormalizeSymbol(symbol)

	start, end, err := svc.validateRange(start, end)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("historical:%s:%s:%s:%s", symbol, start.Format("2006-01-02"), end.Format("2006-01-02"), interval)
	staleKey := "stale:" + key

	if bars, ok := cacheGet[[]domain.HistoricalBar](svc, key); ok {
		return bars, nil
	}

	stratCtx := svc.strategyContext(symbol, strategy.OpHistory)
	tag, err := svc.strategy.Select(stratCtx)
	if err != nil {
		return nil, err
	}
	p, err := svc.resolve(tag)
	if err != nil {
		return nil, err
	}

	bars, err := p.History(ctx, symbol, start, end, interval)
	svc.recordOutcome(string(tag), err)
	if err != nil {
		if stale, ok := cacheGet[[]domain.HistoricalBar](svc, staleKey); ok {
			log.Warn().Str("symbol", symbol).Err(err).Msg("serving stale history after upstream failure")
			return stale, nil
		}
		return nil, err
	}

	cfg := svc.cacheConfigFor(string(tag))
	cacheSet(svc, key, bars, cfg.Historical())
	cacheSet(svc, staleKey, bars, svc.staleConfigFor(string(tag)).Historical())
	return bars, nil
}

// defaultMaxRangeDays is the spec's "range <= 5 years (configurable)"
// default; nothing in SPEC_FULL.md's configuration surface currently
// overrides it; see DESIGN.md.
const defaultMaxRangeDays = 5 * 365

func (svc *Facade) validateRange(start, end time.Time) (time.Time, time.Time, error) {
	if !start.Before(end) {
		return time.Time{}, time.Time{}, domain.NewInvalidDateRange("facade", "startDate must be before endDate")
	}
	now := time.Now().UTC()
	if end.After(now) {
		log.Warn().Time("requestedEnd", end).Msg("endDate clamped to today")
		end = now
	}
	if end.Sub(start) > defaultMaxRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, domain.NewInvalidDateRange("facade", "range exceeds maximum of 5 years")
	}
	return start, end, nil
}

// --- fundamentals / profile / search --------------------------------------

// Fundamentals implements the same cache-aside algorithm as Quote, keyed
// by "fundamentals:SYMBOL".
func (svc *Facade) Fundamentals(ctx context.Context, symbol string) (domain.Fundamentals, error) {
	symbol = domain.NormalizeSymbol(symbol)
	key := "fundamentals:" + symbol
	staleKey := "stale:" + key

	if f, ok := cacheGet[domain.Fundamentals](svc, key); ok {
		return f, nil
	}

	stratCtx := svc.strategyContext(symbol, strategy.OpFundamentals)
	tag, err := svc.strategy.Select(stratCtx)
	if err != nil {
		return domain.Fundamentals{}, err
	}
	p, err := svc.resolve(tag)
	if err != nil {
		return domain.Fundamentals{}, err
	}

	f, err := p.Fundamentals(ctx, symbol)
	svc.recordOutcome(string(tag), err)
	if err != nil {
		if stale, ok := cacheGet[domain.Fundamentals](svc, staleKey); ok {
			log.Warn().Str("symbol", symbol).Err(err).Msg("serving stale fundamentals after upstream failure")
			return stale, nil
		}
		return domain.Fundamentals{}, err
	}

	cfg := svc.cacheConfigFor(string(tag))
	cacheSet(svc, key, f, cfg.Fundamentals())
	cacheSet(svc, staleKey, f, svc.staleConfigFor(string(tag)).Fundamentals())
	return f, nil
}

// Profile implements the same cache-aside algorithm as Quote, keyed by
// "profile:SYMBOL".
func (svc *Facade) Profile(ctx context.Context, symbol string) (domain.Profile, error) {
	symbol = domain.NormalizeSymbol(symbol)
	key := "profile:" + symbol
	staleKey := "stale:" + key

	if p, ok := cacheGet[domain.Profile](svc, key); ok {
		return p, nil
	}

	stratCtx := svc.strategyContext(symbol, strategy.OpProfile)
	tag, err := svc.strategy.Select(stratCtx)
	if err != nil {
		return domain.Profile{}, err
	}
	prov, err := svc.resolve(tag)
	if err != nil {
		return domain.Profile{}, err
	}

	prof, err := prov.Profile(ctx, symbol)
	svc.recordOutcome(string(tag), err)
	if err != nil {
		if stale, ok := cacheGet[domain.Profile](svc, staleKey); ok {
			log.Warn().Str("symbol", symbol).Err(err).Msg("serving stale profile after upstream failure")
			return stale, nil
		}
		return domain.Profile{}, err
	}

	cfg := svc.cacheConfigFor(string(tag))
	cacheSet(svc, key, prof, cfg.Profile())
	cacheSet(svc, staleKey, prof, svc.staleConfigFor(string(tag)).Profile())
	return prof, nil
}

// Search implements the same cache-aside algorithm as Quote, keyed by
// "search:QUERY:LIMIT".
func (svc *Facade) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	key := fmt.Sprintf("search:%s:%d", query, limit)
	staleKey := "stale:" + key

	if hits, ok := cacheGet[[]domain.SearchHit](svc, key); ok {
		return hits, nil
	}

	stratCtx := svc.strategyContext(query, strategy.OpSearch)
	tag, err := svc.strategy.Select(stratCtx)
	if err != nil {
		return nil, err
	}
	p, err := svc.resolve(tag)
	if err != nil {
		return nil, err
	}

	hits, err := p.Search(ctx, query, limit)
	svc.recordOutcome(string(tag), err)
	if err != nil {
		if stale, ok := cacheGet[[]domain.SearchHit](svc, staleKey); ok {
			log.Warn().Str("query", query).Err(err).Msg("serving stale search results after upstream failure")
			return stale, nil
		}
		return nil, err
	}

	cfg := svc.cacheConfigFor(string(tag))
	cacheSet(svc, key, hits, cfg.Search())
	cacheSet(svc, staleKey, hits, svc.staleConfigFor(string(tag)).Search())
	return hits, nil
}
