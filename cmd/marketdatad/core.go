package main

import (
	"fmt"
	"time"

	"github.com/leonwooster/StockPlatform1-sub001/internal/cache"
	"github.com/leonwooster/StockPlatform1-sub001/internal/config"
	"github.com/leonwooster/StockPlatform1-sub001/internal/facade"
	"github.com/leonwooster/StockPlatform1-sub001/internal/factory"
	"github.com/leonwooster/StockPlatform1-sub001/internal/health"
	"github.com/leonwooster/StockPlatform1-sub001/internal/metrics"
	"github.com/leonwooster/StockPlatform1-sub001/internal/secrets"
	"github.com/leonwooster/StockPlatform1-sub001/internal/strategy"
)

// core bundles every process-wide singleton the facade is built from, per
// SPEC_FULL.md §9's "single Core construct" design note.
type core struct {
	cfg     *config.Config
	store   cache.Cache
	factory *factory.Factory
	monitor *health.Monitor
	metrics *metrics.Registry
	facade  *facade.Facade
}

func buildCore(cfgPath string) (*core, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store := cache.NewAuto()
	secretProvider := secrets.NewEnvProvider()
	f := factory.Build(cfg, secretProvider, store)

	metricsReg := metrics.NewRegistry(cfg.ProviderCost.WarningThresholdPct)
	for tag, cost := range cfg.ProviderCost.PerProvider {
		metricsReg.RegisterVariant(tag, cost.CostPerCall, cost.MonthlySubscription, cost.CostThreshold)
	}

	interval := time.Duration(cfg.DataProvider.HealthCheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	monitor := health.New(f.All(), interval, interval)

	primaryTag, _ := factory.TagFromString(cfg.DataProvider.PrimaryTag)
	secondaryTag, _ := factory.TagFromString(cfg.DataProvider.FallbackTag)
	strat := strategy.New(string(cfg.DataProvider.Strategy), primaryTag, secondaryTag, f)

	svc := facade.New(cfg, store, f, strat, monitor, metricsReg)

	return &core{cfg: cfg, store: store, factory: f, monitor: monitor, metrics: metricsReg, facade: svc}, nil
}
