// Package metrics provides Prometheus metrics collection for the selector
// engine: match outcomes/latency, config reloads, and Dynamic watcher
// activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the engine.
type Collector struct {
	// Match metrics
	MatchesTotal   *prometheus.CounterVec
	MatchDuration  *prometheus.HistogramVec
	MatchErrors    *prometheus.CounterVec

	// Router config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
	RoutersActive      prometheus.Gauge

	// Dynamic backend metrics
	WatcherEventsTotal  *prometheus.CounterVec
	WatcherErrorsTotal  *prometheus.CounterVec
	DynamicConnected    *prometheus.GaugeVec
}

// New creates a new metrics collector with all metrics registered against
// the default Prometheus registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector against reg. Useful for
// testing to avoid global registry state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		MatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "selector",
				Name:      "matches_total",
				Help:      "Total number of match_upstream calls, by router and result",
			},
			[]string{"router", "result"}, // result: matched, no_match, error
		),
		MatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "selector",
				Name:      "match_duration_seconds",
				Help:      "match_upstream evaluation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"router"},
		),
		MatchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "selector",
				Name:      "match_errors_total",
				Help:      "Total number of rule evaluation errors surfaced during matching",
			},
			[]string{"router"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "selector",
				Name:      "config_reloads_total",
				Help:      "Total number of successful static config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "selector",
				Name:      "config_reload_errors_total",
				Help:      "Total number of static config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "selector",
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of the last successful static config reload",
			},
		),
		RoutersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "selector",
				Name:      "routers_active",
				Help:      "Number of routers currently loaded",
			},
		),

		WatcherEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "selector",
				Name:      "watcher_events_total",
				Help:      "Total number of Dynamic watch callbacks applied, by router",
			},
			[]string{"router"},
		),
		WatcherErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "selector",
				Name:      "watcher_errors_total",
				Help:      "Total number of Dynamic watch callbacks that failed to apply, by router",
			},
			[]string{"router"},
		),
		DynamicConnected: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "selector",
				Name:      "dynamic_connected",
				Help:      "Whether a router's Dynamic backend is currently connected (1) or not (0)",
			},
			[]string{"router"},
		),
	}
}
