package facade

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
	"github.com/leonwooster/StockPlatform1-sub001/internal/ratelimit"
)

// WarmResult summarizes one warm() call's outcome across every requested
// symbol, per §4.8's "increments success/failure counts... returns overall
// timing."
type WarmResult struct {
	Requested int
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// Warm fans out quote and profile requests for every symbol concurrently.
// It is best-effort: an individual symbol's failure is logged and counted,
// never returned as an error from Warm itself. Duplicate symbols within
// one call are de-duplicated via Quote's own cache-aside path plus a
// per-symbol in-flight guard, so warm([S,S,S]) issues at most one
// successful upstream quote call for S (testable property 6).
func (svc *Facade) Warm(ctx context.Context, symbols []string) WarmResult {
	start := time.Now()
	seen := make(map[string]bool, len(symbols))
	unique := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = domain.NormalizeSymbol(s)
		if !seen[s] {
			seen[s] = true
			unique = append(unique, s)
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	result := WarmResult{Requested: len(unique)}

	for _, symbol := range unique {
		symbol := symbol
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := svc.warmOne(ctx, symbol)
			mu.Lock()
			if ok {
				result.Succeeded++
			} else {
				result.Failed++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	result.Elapsed = time.Since(start)
	log.Info().Int("requested", result.Requested).Int("succeeded", result.Succeeded).Int("failed", result.Failed).Dur("elapsed", result.Elapsed).Msg("cache warm complete")
	return result
}

// warmOne de-duplicates concurrent warms of the same symbol across
// overlapping Warm calls on this facade via a per-symbol sync.Once, then issues the quote and profile
// fetches that populate the hot/stale caches any later real request will
// hit. The context is tagged via ratelimit.WithBackground so a variant
// whose bucket is momentarily empty blocks for capacity instead of failing
// fast, per §4.2's "reserved for back-end jobs" blocking-acquire contract.
func (svc *Facade) warmOne(ctx context.Context, symbol string) bool {
	ctx = ratelimit.WithBackground(ctx)
	onceIface, _ := svc.warmDedup.LoadOrStore(symbol, &sync.Once{})
	once := onceIface.(*sync.Once)

	ok := true
	once.Do(func() {
		if _, err := svc.Quote(ctx, symbol); err != nil {
			log.Warn().Str("symbol", symbol).Err(err).Msg("warm: quote failed")
			ok = false
		}
		if _, err := svc.Profile(ctx, symbol); err != nil {
			log.Warn().Str("symbol", symbol).Err(err).Msg("warm: profile failed")
			ok = false
		}
		svc.warmDedup.Delete(symbol)
	})
	return ok
}
