// Package metrics defines the Prometheus collectors exported by sqlrunner.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nnnkkk7/sqlrunner/pkg/query"
)

const namespace = "sqlrunner"

// Label names and values.
const (
	LblStatus = "status"
	LblKind   = "kind"
	LblOK     = "ok"
)

// Metrics groups the collectors updated by sessions.
type Metrics struct {
	StatementsTotal    *prometheus.CounterVec
	StatementDuration  prometheus.Histogram
	TimeoutsTotal      prometheus.Counter
	QueueDepth         prometheus.Gauge
	InflightStatements prometheus.Gauge
	SessionsActive     prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg creates
// unregistered collectors, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StatementsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "statements_total",
			Help:      "Counter of executed statements by status and error kind.",
		}, []string{LblStatus, LblKind}),
		StatementDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "statement_duration_seconds",
			Help:      "Bucketed histogram of statement execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 22),
		}),
		TimeoutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "timeouts_total",
			Help:      "Counter of statements that exceeded their timeout.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of statements waiting for the session worker.",
		}),
		InflightStatements: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "inflight_statements",
			Help:      "Number of statements still running on a connection, including abandoned ones.",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of open sessions.",
		}),
	}
}

// ObserveResult records one statement outcome.
func (m *Metrics) ObserveResult(res query.Result) {
	kind := LblOK
	if res.Failed() {
		kind = string(res.ErrorKind)
	}
	m.StatementsTotal.WithLabelValues(string(res.Status), kind).Inc()
	m.StatementDuration.Observe(res.Elapsed.Seconds())
	if res.ErrorKind == query.ErrorKindTimeout {
		m.TimeoutsTotal.Inc()
	}
}
