// Package metrics holds the Prometheus collectors of a sweep run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector groups the sweep collectors on a private registry so that tests
// and multiple engines do not collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	Units        *prometheus.CounterVec
	Combos       prometheus.Counter
	Trades       prometheus.Counter
	TicksLoaded  *prometheus.CounterVec
	UnitDuration *prometheus.HistogramVec
	SourceErrors *prometheus.CounterVec
}

// NewCollector creates and registers the sweep collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		Units: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ofilab_units_total",
			Help: "Processed symbol/timeframe units by final status",
		}, []string{"status"}),
		Combos: f.NewCounter(prometheus.CounterOpts{
			Name: "ofilab_combos_total",
			Help: "Parameter combinations simulated",
		}),
		Trades: f.NewCounter(prometheus.CounterOpts{
			Name: "ofilab_trades_total",
			Help: "Simulated trades across all combinations",
		}),
		TicksLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ofilab_ticks_loaded_total",
			Help: "Normalized ticks per symbol",
		}, []string{"symbol"}),
		UnitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ofilab_unit_duration_seconds",
			Help:    "Wall time to process one unit",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"timeframe"}),
		SourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ofilab_source_errors_total",
			Help: "Tick source failures by kind",
		}, []string{"kind"}),
	}
}

// Registry returns the registry to expose over HTTP.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveUnit records one finished unit.
func (c *Collector) ObserveUnit(timeframe, status string, d time.Duration) {
	c.Units.WithLabelValues(status).Inc()
	c.UnitDuration.WithLabelValues(timeframe).Observe(d.Seconds())
}
