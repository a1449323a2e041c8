// Package factory implements the Provider Factory (SPEC_FULL.md C4):
// resolves a configured tag to its concrete provider.Provider instance and
// enumerates which variants are available, without holding any
// request-scoped state itself.
package factory

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/leonwooster/StockPlatform1-sub001/internal/cache"
	"github.com/leonwooster/StockPlatform1-sub001/internal/config"
	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
	"github.com/leonwooster/StockPlatform1-sub001/internal/provider"
	"github.com/leonwooster/StockPlatform1-sub001/internal/secrets"
)

// Factory is the process-wide singleton that resolves provider variants by
// tag. It is built once at startup from the loaded configuration and
// handed to every other component that needs to look up a variant; it
// never accumulates per-request state.
type Factory struct {
	mu        sync.RWMutex
	providers map[provider.Tag]provider.Provider
	order     []provider.Tag // enumeration order from configuration, used by CostOptimized's tie-break
}

// New builds an empty factory. Register each enabled variant with
// Register, in the order they should be enumerated.
func New() *Factory {
	return &Factory{providers: make(map[provider.Tag]provider.Provider)}
}

// Register adds a variant under its tag. Variants that failed startup
// validation (e.g. an unusable API key) are simply never registered,
// which is what makes them "disabled" to the rest of the system.
func (f *Factory) Register(p provider.Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.providers[p.Tag()]; !exists {
		f.order = append(f.order, p.Tag())
	}
	f.providers[p.Tag()] = p
}

// Resolve returns the provider registered under tag, or UnknownProviderKind
// if the tag is unrecognized or was never registered (i.e. disabled).
func (f *Factory) Resolve(tag provider.Tag) (provider.Provider, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.providers[tag]
	if !ok {
		return nil, domain.NewUnknownProviderKind(string(tag))
	}
	return p, nil
}

// AvailableProviders enumerates every registered variant's tag, in
// registration order — the order CostOptimized consults Free variants in,
// per §4.7's tie-break rule.
func (f *Factory) AvailableProviders() []provider.Tag {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]provider.Tag, len(f.order))
	copy(out, f.order)
	return out
}

// All returns every registered provider, in registration order.
func (f *Factory) All() []provider.Provider {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]provider.Provider, 0, len(f.order))
	for _, tag := range f.order {
		out = append(out, f.providers[tag])
	}
	return out
}

// TagFromString resolves a configuration-file provider tag string to the
// typed provider.Tag by exact, case-sensitive match; it reports false when
// the tag is unrecognized.
func TagFromString(s string) (provider.Tag, bool) {
	switch provider.Tag(s) {
	case provider.TagFree, provider.TagPremium, provider.TagMock:
		return provider.Tag(s), true
	default:
		return "", false
	}
}

// KnownTags returns the closed set of recognized tags, sorted, for
// diagnostics and error messages.
func KnownTags() []string {
	tags := []string{string(provider.TagFree), string(provider.TagPremium), string(provider.TagMock)}
	sort.Strings(tags)
	return tags
}

// Build constructs a Factory from the loaded configuration, registering
// Free and Premium only when enabled and carrying a usable API key (the
// premium tag requires one; the free tag does not), and always
// registering Mock so development/testing never lacks a healthy variant.
// A provider that fails its key check is logged and skipped, not aborted
// — per the API-key handling contract in SPEC_FULL.md §6.
func Build(cfg *config.Config, secretProvider secrets.Provider, store cache.Cache) *Factory {
	f := New()

	if pc, ok := cfg.Providers[string(provider.TagFree)]; ok && pc.Enabled {
		hotTTL := cfg.Cache.TTLFor(string(provider.TagFree))
		staleTTL := config.DefaultStaleCacheTTLs()
		f.Register(provider.NewFree(pc, hotTTL, staleTTL, store))
	}

	if pc, ok := cfg.Providers[string(provider.TagPremium)]; ok && pc.Enabled {
		_, masked, usable := secrets.Resolve(secretProvider, "PREMIUM_API_KEY")
		if !usable {
			log.Warn().Str("provider", "premium").Str("key", masked).Msg("premium api key invalid or missing, provider disabled")
		} else {
			key, _ := secretProvider.Lookup("PREMIUM_API_KEY")
			hotTTL := cfg.Cache.TTLFor(string(provider.TagPremium))
			staleTTL := config.DefaultStaleCacheTTLs()
			f.Register(provider.NewPremium(pc, key, hotTTL, staleTTL, store))
		}
	}

	f.Register(provider.NewMock())
	return f
}
