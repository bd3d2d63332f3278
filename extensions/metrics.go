package extensions

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	core "github.com/coregraph/core"
)

// MetricsExtension publishes run-lifecycle counters and histograms to a
// Prometheus registry, grounded on a pkg/metrics.ObservationHooks pattern (gauge for in-flight, histogram
// for duration, labeled by outcome) but driven by the core.Extension
// OnStart/OnEnd callbacks instead of a separate hooks struct per call
// site.
type MetricsExtension struct {
	core.BaseExtension

	inFlight *prometheus.GaugeVec
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec

	mu      sync.Mutex
	started map[string]int64 // allocated by NewMetricsExtension; OnStart/OnEnd do not read or write it
}

// NewMetricsExtension registers its collectors against reg (use
// prometheus.NewRegistry() for test isolation, or
// prometheus.DefaultRegisterer in production).
func NewMetricsExtension(reg prometheus.Registerer, namespace string) *MetricsExtension {
	inFlight := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "runtime",
		Name:      "operations_in_flight",
		Help:      "Current number of in-flight resource inits and task runs.",
	}, []string{"kind"})

	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runtime",
		Name:      "operations_total",
		Help:      "Total resource inits and task runs, by kind and outcome.",
	}, []string{"kind", "id", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "runtime",
		Name:      "operation_duration_seconds",
		Help:      "Duration of resource inits and task runs.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"kind", "id"})

	reg.MustRegister(inFlight, total, duration)

	return &MetricsExtension{
		BaseExtension: core.BaseExtension{ExtName: "metrics"},
		inFlight:      inFlight,
		total:         total,
		duration:      duration,
		started:       map[string]int64{},
	}
}

func (e *MetricsExtension) OnStart(op core.Operation) {
	e.inFlight.WithLabelValues(string(op.Kind)).Inc()
}

func (e *MetricsExtension) OnEnd(op core.Operation) {
	e.inFlight.WithLabelValues(string(op.Kind)).Dec()

	status := "ok"
	if op.Err != nil {
		status = "error"
	}
	e.total.WithLabelValues(string(op.Kind), op.ID, status).Inc()
	e.duration.WithLabelValues(string(op.Kind), op.ID).Observe(op.Duration.Seconds())
}
