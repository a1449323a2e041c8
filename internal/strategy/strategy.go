// Package strategy implements the Selection Strategy (SPEC_FULL.md C7): the
// closed set {Primary, Fallback, RoundRobin, CostOptimized} that the Service
// Facade consults to pick a provider variant per request.
package strategy

import (
	"sync/atomic"

	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
	"github.com/leonwooster/StockPlatform1-sub001/internal/provider"
)

// OperationKind names the facade operation the strategy is choosing a
// variant for; RoundRobin and CostOptimized don't branch on it today, but
// the contract carries it per §4.7 so a future strategy can.
type OperationKind string

const (
	OpQuote        OperationKind = "quote"
	OpQuotes       OperationKind = "quotes"
	OpHistory      OperationKind = "history"
	OpFundamentals OperationKind = "fundamentals"
	OpProfile      OperationKind = "profile"
	OpSearch       OperationKind = "search"
)

// Context is the per-call decision input: the symbol, the operation kind,
// and a snapshot of every known variant's health and rate-limit status.
type Context struct {
	Symbol    string
	Operation OperationKind
	Health    map[provider.Tag]domain.ProviderHealth
	RateLimit map[provider.Tag]domain.RateLimitStatus
}

func (c Context) healthy(tag provider.Tag) bool {
	h, ok := c.Health[tag]
	return ok && h.IsHealthy
}

// Strategy chooses a provider variant per request and names the variant to
// retry against on failure.
type Strategy interface {
	Select(ctx Context) (provider.Tag, error)
	Fallback(ctx Context) (provider.Tag, error)
	Name() string
}

// Registry enumerates the available provider tags so strategies can consult
// factory-enumeration order (CostOptimized's tie-break) without holding a
// factory reference themselves.
type Registry interface {
	AvailableProviders() []provider.Tag
}

// --- Primary -----------------------------------------------------------

// Primary always selects the configured primary variant; Fallback is the
// same variant, i.e. there is no fallback.
type Primary struct {
	PrimaryTag provider.Tag
}

func (p *Primary) Select(Context) (provider.Tag, error) { return p.PrimaryTag, nil }
func (p *Primary) Fallback(Context) (provider.Tag, error) { return p.PrimaryTag, nil }
func (p *Primary) Name() string                         { return "Primary" }

// --- Fallback ------------------------------------------------------------

// Fallback uses the primary while it's healthy, falls back to the
// configured secondary, and defaults to Free if neither is usable.
type Fallback struct {
	PrimaryTag   provider.Tag
	SecondaryTag provider.Tag
}

func (f *Fallback) Select(ctx Context) (provider.Tag, error) {
	if ctx.healthy(f.PrimaryTag) {
		return f.PrimaryTag, nil
	}
	return f.Fallback(ctx)
}

func (f *Fallback) Fallback(ctx Context) (provider.Tag, error) {
	if f.SecondaryTag != "" && ctx.healthy(f.SecondaryTag) {
		return f.SecondaryTag, nil
	}
	return provider.TagFree, nil
}

func (f *Fallback) Name() string { return "Fallback" }

// --- RoundRobin ------------------------------------------------------------

// RoundRobin cycles through currently healthy variants under a single
// atomic index. The set of healthy variants is snapshotted once per call
// so a variant flapping mid-call never causes the cursor to skip or repeat
// unpredictably (§4.7 tie-break).
type RoundRobin struct {
	registry Registry
	index    uint64
}

// NewRoundRobin builds a round-robin strategy over the given registry's
// enumeration order.
func NewRoundRobin(registry Registry) *RoundRobin {
	return &RoundRobin{registry: registry}
}

func (r *RoundRobin) healthySnapshot(ctx Context) []provider.Tag {
	var healthy []provider.Tag
	for _, tag := range r.registry.AvailableProviders() {
		if ctx.healthy(tag) {
			healthy = append(healthy, tag)
		}
	}
	return healthy
}

func (r *RoundRobin) Select(ctx Context) (provider.Tag, error) {
	healthy := r.healthySnapshot(ctx)
	if len(healthy) == 0 {
		return "", domain.NewNoHealthyProvider("round robin: no healthy provider available")
	}
	idx := atomic.AddUint64(&r.index, 1) - 1
	return healthy[idx%uint64(len(healthy))], nil
}

func (r *RoundRobin) Fallback(ctx Context) (provider.Tag, error) {
	return r.Select(ctx)
}

func (r *RoundRobin) Name() string { return "RoundRobin" }

// --- CostOptimized -----------------------------------------------------

// CostOptimized prefers a healthy Free variant (zero cost); absent one, a
// healthy Premium variant with remaining quota; otherwise defers to the
// wrapped fallback strategy.
type CostOptimized struct {
	registry Registry
	fallback Strategy
}

// NewCostOptimized builds a cost-optimized strategy. fallback supplies the
// last-resort variant (per §4.7, "else fallback()") — typically a
// *Fallback configured with the same primary/secondary tags.
func NewCostOptimized(registry Registry, fallback Strategy) *CostOptimized {
	return &CostOptimized{registry: registry, fallback: fallback}
}

func (c *CostOptimized) Select(ctx Context) (provider.Tag, error) {
	for _, tag := range c.registry.AvailableProviders() {
		if tag == provider.TagFree && ctx.healthy(tag) {
			return tag, nil
		}
	}
	for _, tag := range c.registry.AvailableProviders() {
		if tag == provider.TagPremium && ctx.healthy(tag) && hasQuota(ctx, tag) {
			return tag, nil
		}
	}
	return c.fallback.Fallback(ctx)
}

func (c *CostOptimized) Fallback(ctx Context) (provider.Tag, error) {
	return c.fallback.Fallback(ctx)
}

func (c *CostOptimized) Name() string { return "CostOptimized" }

func hasQuota(ctx Context, tag provider.Tag) bool {
	status, ok := ctx.RateLimit[tag]
	if !ok {
		return true // no status known yet, assume quota until proven otherwise
	}
	return status.MinuteRemaining > 0 && status.DayRemaining > 0
}

// New builds the configured strategy by name, per §4.7 and
// SPEC_FULL.md's configuration surface (dataProvider.strategy).
func New(name string, primaryTag, secondaryTag provider.Tag, registry Registry) Strategy {
	fb := &Fallback{PrimaryTag: primaryTag, SecondaryTag: secondaryTag}
	switch name {
	case "Primary":
		return &Primary{PrimaryTag: primaryTag}
	case "RoundRobin":
		return NewRoundRobin(registry)
	case "CostOptimized":
		return NewCostOptimized(registry, fb)
	default:
		return fb
	}
}
