package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// polling engine.
type Metrics struct {
	CyclesRun     *prometheus.CounterVec // labels: tier={fast,slow}
	CyclesSkipped *prometheus.CounterVec // labels: tier={fast,slow}
	CycleDuration *prometheus.HistogramVec

	StationsEvaluated prometheus.Counter
	UniqueCells       prometheus.Counter
	AlarmsRaised      prometheus.Counter

	// Upstream gateway metrics.
	UpstreamCalls  *prometheus.CounterVec // labels: product, outcome={success,error,quota}
	QuotaRemaining prometheus.Gauge

	// Alert state machine metrics.
	AlertActive      prometheus.Gauge
	AlertCheckErrors prometheus.Counter
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CyclesRun,
		m.CyclesSkipped,
		m.CycleDuration,
		m.StationsEvaluated,
		m.UniqueCells,
		m.AlarmsRaised,
		m.UpstreamCalls,
		m.QuotaRemaining,
		m.AlertActive,
		m.AlertCheckErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CyclesRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "cycles_run_total",
			Help:      "Completed polling cycles by tier.",
		}, []string{"tier"}),
		CyclesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "cycles_skipped_total",
			Help:      "Cycle invocations skipped because another cycle held the run lock.",
		}, []string{"tier"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rainwatch",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a complete polling cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"tier"}),
		StationsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "stations_evaluated_total",
			Help:      "Stations run through the alarm evaluator.",
		}),
		UniqueCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "unique_cells_total",
			Help:      "Unique grid cells fetched; the stations/cells ratio is the dedup saving.",
		}),
		AlarmsRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "alarms_raised_total",
			Help:      "Alarm events emitted to the broadcast topic.",
		}),
		UpstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "upstream_calls_total",
			Help:      "Upstream provider calls by product and outcome.",
		}, []string{"product", "outcome"}),
		QuotaRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainwatch",
			Name:      "quota_remaining",
			Help:      "Remaining provider calls in the current provider-local day.",
		}),
		AlertActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainwatch",
			Name:      "alert_active",
			Help:      "1 while the regional alert state is ACTIVE, 0 while IDLE.",
		}),
		AlertCheckErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "alert_check_errors_total",
			Help:      "Failed bulletin checks.",
		}),
	}
}
