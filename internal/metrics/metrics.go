// Package metrics implements the Metrics & Cost Tracker (SPEC_FULL.md C6):
// Prometheus-backed success/failure counters per provider variant, plus
// the estimated-cost computation and warning-threshold policy that feed
// the CostOptimized strategy.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
)

// Registry holds the Prometheus vectors plus the per-variant cost model
// needed to derive CostMetrics. Each Registry owns a private
// prometheus.Registry rather than registering into the global default, so
// multiple Registry instances (e.g. one per test) never collide on
// duplicate metric names and Handler only ever exposes this instance's
// own series.
type Registry struct {
	reg           *prometheus.Registry
	requestsTotal *prometheus.CounterVec // labels: variant, outcome(success|failure)
	callCost      *prometheus.CounterVec // labels: variant — mirrors requestsTotal's sum but as a cost-specific series for dashboards
	thresholdPct  *prometheus.GaugeVec   // labels: variant

	mu      sync.Mutex
	costCfg map[string]costModel
	warned  map[string]bool // one-time-per-crossing warning latch, keyed by variant
	warnPct float64

	tallyMu sync.Mutex
	tallies map[string]*counts
}

type costModel struct {
	costPerCall         float64
	monthlySubscription float64
	threshold           float64
}

// NewRegistry builds and registers the Prometheus collectors. costPerCall
// and friends are supplied via RegisterVariant before first use.
func NewRegistry(warningThresholdPct float64) *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg:           reg,
		tallies:       make(map[string]*counts),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketdata_provider_requests_total",
				Help: "Total provider requests by variant and outcome.",
			},
			[]string{"variant", "outcome"},
		),
		callCost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketdata_provider_estimated_cost_total",
				Help: "Estimated cumulative cost per provider variant.",
			},
			[]string{"variant"},
		),
		thresholdPct: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketdata_provider_cost_threshold_pct",
				Help: "Current cost as a percentage of the configured threshold, per variant.",
			},
			[]string{"variant"},
		),
		costCfg: make(map[string]costModel),
		warned:  make(map[string]bool),
		warnPct: warningThresholdPct,
	}
	reg.MustRegister(r.requestsTotal, r.callCost, r.thresholdPct)
	return r
}

// RegisterVariant sets the cost model for a provider variant. Variants
// never registered default to zero cost (e.g. Mock).
func (r *Registry) RegisterVariant(variant string, costPerCall, monthlySubscription, threshold float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.costCfg[variant] = costModel{costPerCall: costPerCall, monthlySubscription: monthlySubscription, threshold: threshold}
}

// counts is the thread-safe success/failure/total tally per variant,
// tracked alongside the Prometheus counters (which are write-only) so
// Metrics() can read back totals without scraping.
type counts struct {
	success int64
	failure int64
}

func (r *Registry) tallyFor(variant string) *counts {
	r.tallyMu.Lock()
	defer r.tallyMu.Unlock()
	c, ok := r.tallies[variant]
	if !ok {
		c = &counts{}
		r.tallies[variant] = c
	}
	return c
}

// RecordSuccess increments the success and cost-call counters for variant.
func (r *Registry) RecordSuccess(variant string) {
	r.requestsTotal.WithLabelValues(variant, "success").Inc()
	c := r.tallyFor(variant)
	r.tallyMu.Lock()
	c.success++
	r.tallyMu.Unlock()
	r.recordCost(variant)
}

// RecordFailure increments the failure and cost-call counters for
// variant — failed calls still incur upstream cost, per §4.6.
func (r *Registry) RecordFailure(variant string) {
	r.requestsTotal.WithLabelValues(variant, "failure").Inc()
	c := r.tallyFor(variant)
	r.tallyMu.Lock()
	c.failure++
	r.tallyMu.Unlock()
	r.recordCost(variant)
}

func (r *Registry) recordCost(variant string) {
	r.mu.Lock()
	model, ok := r.costCfg[variant]
	r.mu.Unlock()
	if !ok {
		return
	}
	r.callCost.WithLabelValues(variant).Add(model.costPerCall)

	cm := r.CostMetrics(variant)
	r.thresholdPct.WithLabelValues(variant).Set(cm.ThresholdPct)
	r.maybeWarn(variant, cm)
}

// maybeWarn emits one warning-level log per crossing of 80% of the
// configured warning threshold, not per call, per §4.6.
func (r *Registry) maybeWarn(variant string, cm domain.CostMetrics) {
	crossingPoint := r.warnPct * 0.8
	r.mu.Lock()
	defer r.mu.Unlock()
	if cm.ThresholdPct >= crossingPoint {
		if !r.warned[variant] {
			r.warned[variant] = true
			log.Warn().Str("provider", variant).Float64("thresholdPct", cm.ThresholdPct).Msg("provider cost approaching configured threshold")
		}
	} else {
		r.warned[variant] = false // reset the latch once usage drops back below the crossing point
	}
}

// Metrics returns total/success/failed counts for a variant.
func (r *Registry) Metrics(variant string) (total, success, failed int64) {
	c := r.tallyFor(variant)
	r.tallyMu.Lock()
	defer r.tallyMu.Unlock()
	return c.success + c.failure, c.success, c.failure
}

// CostMetrics computes the per-variant usage/cost snapshot per §4.6:
// usageCost = callCount*costPerCall, totalCost = usageCost+monthlySubscription,
// thresholdPct = 100*totalCost/threshold (0 if threshold<=0).
func (r *Registry) CostMetrics(variant string) domain.CostMetrics {
	total, _, _ := r.Metrics(variant)

	r.mu.Lock()
	model := r.costCfg[variant]
	r.mu.Unlock()

	usageCost := float64(total) * model.costPerCall
	totalCost := usageCost + model.monthlySubscription
	var thresholdPct float64
	if model.threshold > 0 {
		thresholdPct = 100 * totalCost / model.threshold
	}
	return domain.CostMetrics{
		Variant:                 variant,
		TotalCalls:              total,
		EstimatedUsageCost:      usageCost,
		MonthlySubscriptionCost: model.monthlySubscription,
		TotalEstimatedCost:      totalCost,
		Threshold:               model.threshold,
		ThresholdPct:            thresholdPct,
		Exceeded:                model.threshold > 0 && totalCost > model.threshold,
	}
}

// Handler exposes this registry's own collectors in Prometheus exposition
// format, independent of the process-global default registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
