// Package config loads and validates the hierarchical configuration record
// described in SPEC_FULL.md §6: data-provider selection/strategy, one block
// per provider tag, cache TTL defaults, and cost/threshold settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StrategyName is the closed set of selection strategies.
type StrategyName string

const (
	StrategyPrimary       StrategyName = "Primary"
	StrategyFallback      StrategyName = "Fallback"
	StrategyRoundRobin    StrategyName = "RoundRobin"
	StrategyCostOptimized StrategyName = "CostOptimized"
)

// Config is the root configuration record.
type Config struct {
	DataProvider DataProviderConfig        `yaml:"dataProvider"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
	Cache        CacheConfig               `yaml:"cache"`
	ProviderCost ProviderCostConfig        `yaml:"providerCost"`
}

// DataProviderConfig selects the strategy and the primary/fallback tags.
type DataProviderConfig struct {
	PrimaryTag               string       `yaml:"primaryTag"`
	FallbackTag              string       `yaml:"fallbackTag"`
	Strategy                 StrategyName `yaml:"strategy"`
	EnableAutomaticFallback  bool         `yaml:"enableAutomaticFallback"`
	HealthCheckIntervalSecs  int          `yaml:"healthCheckIntervalSeconds"`
}

// RateLimitConfig is the per-provider token-bucket capacity pair.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	RequestsPerDay    int `yaml:"requestsPerDay"`
}

// DataEnrichmentConfig toggles the facade's enrichment sub-tasks for a
// provider's records.
type DataEnrichmentConfig struct {
	EnableBidAsk           bool `yaml:"enableBidAsk"`
	Enable52Week           bool `yaml:"enable52Week"`
	EnableAvgVolume        bool `yaml:"enableAvgVolume"`
	CalculatedFieldsTTLSec int  `yaml:"calculatedFieldsTTLSec"`
}

// ProviderConfig is the per-tag configuration block.
type ProviderConfig struct {
	APIKey          string               `yaml:"apiKey"`
	BaseURL         string               `yaml:"baseUrl"`
	TimeoutSec      int                  `yaml:"timeoutSec"`
	MaxRetries      int                  `yaml:"maxRetries"`
	Enabled         bool                 `yaml:"enabled"`
	RateLimit       RateLimitConfig      `yaml:"rateLimit"`
	DataEnrichment  DataEnrichmentConfig `yaml:"dataEnrichment"`
}

// CacheTTLs is the set of per-data-type TTLs; used both as the global
// default block and, keyed by provider tag, as an override block.
type CacheTTLs struct {
	QuoteTTLSec           int `yaml:"quoteTTL"`
	HistoricalTTLSec      int `yaml:"historicalTTL"`
	FundamentalsTTLSec    int `yaml:"fundamentalsTTL"`
	ProfileTTLSec         int `yaml:"profileTTL"`
	SearchTTLSec          int `yaml:"searchTTL"`
	CalculatedFieldsTTLSec int `yaml:"calculatedFieldsTTL"`
}

// CacheConfig is the cache defaults plus per-provider TTL overrides.
type CacheConfig struct {
	Defaults   CacheTTLs            `yaml:"defaults"`
	PerProvider map[string]CacheTTLs `yaml:"perProvider"`
}

// CostConfig is the per-tag cost model.
type CostConfig struct {
	CostPerCall         float64 `yaml:"costPerCall"`
	MonthlySubscription float64 `yaml:"monthlySubscription"`
	CostThreshold       float64 `yaml:"costThreshold"`
}

// ProviderCostConfig is the per-tag cost model plus the global warning
// threshold percentage.
type ProviderCostConfig struct {
	PerProvider       map[string]CostConfig `yaml:"perProvider"`
	WarningThresholdPct float64              `yaml:"warningThresholdPct"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the whole tree, aggregating every violation found rather
// than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	if c.DataProvider.PrimaryTag == "" {
		errs = append(errs, "dataProvider.primaryTag must be set")
	}
	switch c.DataProvider.Strategy {
	case StrategyPrimary, StrategyFallback, StrategyRoundRobin, StrategyCostOptimized:
	default:
		errs = append(errs, fmt.Sprintf("dataProvider.strategy %q is not one of Primary|Fallback|RoundRobin|CostOptimized", c.DataProvider.Strategy))
	}
	if c.DataProvider.HealthCheckIntervalSecs < 0 {
		errs = append(errs, "dataProvider.healthCheckIntervalSeconds cannot be negative")
	}

	for tag, p := range c.Providers {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("providers.%s: %v", tag, err))
		}
	}

	if c.ProviderCost.WarningThresholdPct < 0 || c.ProviderCost.WarningThresholdPct > 100 {
		errs = append(errs, "providerCost.warningThresholdPct must be between 0 and 100")
	}

	if len(errs) == 0 {
		return nil
	}
	msg := errs[0]
	for _, e := range errs[1:] {
		msg += "; " + e
	}
	return fmt.Errorf("%s", msg)
}

// Validate checks a single provider block. API key presence/shape is
// validated separately by the secrets package, which owns the masking and
// startup-disable policy for invalid keys.
func (p *ProviderConfig) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.BaseURL == "" {
		return fmt.Errorf("baseUrl cannot be empty")
	}
	if p.TimeoutSec <= 0 {
		return fmt.Errorf("timeoutSec must be positive")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("maxRetries cannot be negative")
	}
	if p.RateLimit.RequestsPerMinute < 0 || p.RateLimit.RequestsPerDay < 0 {
		return fmt.Errorf("rateLimit values cannot be negative")
	}
	return nil
}

// TTLFor resolves the effective TTL set for a provider, falling back to
// the global defaults for any unset per-provider override.
func (c *CacheConfig) TTLFor(providerTag string) CacheTTLs {
	def := c.Defaults
	override, ok := c.PerProvider[providerTag]
	if !ok {
		return def
	}
	merged := def
	if override.QuoteTTLSec != 0 {
		merged.QuoteTTLSec = override.QuoteTTLSec
	}
	if override.HistoricalTTLSec != 0 {
		merged.HistoricalTTLSec = override.HistoricalTTLSec
	}
	if override.FundamentalsTTLSec != 0 {
		merged.FundamentalsTTLSec = override.FundamentalsTTLSec
	}
	if override.ProfileTTLSec != 0 {
		merged.ProfileTTLSec = override.ProfileTTLSec
	}
	if override.SearchTTLSec != 0 {
		merged.SearchTTLSec = override.SearchTTLSec
	}
	if override.CalculatedFieldsTTLSec != 0 {
		merged.CalculatedFieldsTTLSec = override.CalculatedFieldsTTLSec
	}
	return merged
}

// Duration helpers mirror the teacher's GetCacheTTL/GetRequestTimeout style.

func (p *ProviderConfig) RequestTimeout() time.Duration {
	return time.Duration(p.TimeoutSec) * time.Second
}

func (t CacheTTLs) Quote() time.Duration        { return time.Duration(t.QuoteTTLSec) * time.Second }
func (t CacheTTLs) Historical() time.Duration   { return time.Duration(t.HistoricalTTLSec) * time.Second }
func (t CacheTTLs) Fundamentals() time.Duration { return time.Duration(t.FundamentalsTTLSec) * time.Second }
func (t CacheTTLs) Profile() time.Duration      { return time.Duration(t.ProfileTTLSec) * time.Second }
func (t CacheTTLs) Search() time.Duration       { return time.Duration(t.SearchTTLSec) * time.Second }
func (t CacheTTLs) Calculated() time.Duration   { return time.Duration(t.CalculatedFieldsTTLSec) * time.Second }

// DefaultCacheTTLs returns the spec's documented TTL defaults.
func DefaultCacheTTLs() CacheTTLs {
	return CacheTTLs{
		QuoteTTLSec:            15 * 60,
		HistoricalTTLSec:       24 * 3600,
		FundamentalsTTLSec:     6 * 3600,
		ProfileTTLSec:          7 * 24 * 3600,
		SearchTTLSec:           3600,
		CalculatedFieldsTTLSec: 24 * 3600,
	}
}

// DefaultStaleCacheTTLs returns the spec's documented stale-tier defaults.
func DefaultStaleCacheTTLs() CacheTTLs {
	return CacheTTLs{
		QuoteTTLSec:            24 * 3600,
		HistoricalTTLSec:       7 * 24 * 3600,
		FundamentalsTTLSec:     7 * 24 * 3600,
		ProfileTTLSec:          30 * 24 * 3600,
		SearchTTLSec:           7 * 24 * 3600,
		CalculatedFieldsTTLSec: 24 * 3600,
	}
}
