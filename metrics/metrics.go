// Package metrics holds the prometheus collectors of the store and the
// approval workflow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adorch"

var (
	/* Interpreter metrics */
	statementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statements_total",
			Help:      "Total number of executed statements",
		},
		[]string{"kind", "table", "status"},
	)

	statementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "statement_duration_seconds",
			Help:      "Statement execution duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"kind"},
	)

	degradedPredicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_predicates_total",
			Help:      "Statements whose WHERE clause was not evaluated",
		},
		[]string{"kind", "table"},
	)

	/* Transaction metrics */
	transactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Total number of transactions",
		},
		[]string{"status"},
	)

	snapshotWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_writes_total",
			Help:      "Total number of snapshot writes",
		},
		[]string{"status"},
	)

	snapshotBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_bytes",
			Help:      "Size of the last written snapshot",
		},
	)

	/* Workflow metrics */
	approvalsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_created_total",
			Help:      "Total number of approvals created",
		},
		[]string{"workflow_type", "priority"},
	)

	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of reviewer decisions",
		},
		[]string{"decision", "status"},
	)

	slaWarnings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sla_warnings",
			Help:      "Pending approvals whose SLA deadline falls inside the warning horizon",
		},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

/* RecordStatement records one interpreter statement */
func RecordStatement(kind, table string, duration time.Duration, err error) {
	statementsTotal.WithLabelValues(kind, table, status(err)).Inc()
	statementDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

/* RecordDegradedPredicate records a WHERE clause that was not evaluated */
func RecordDegradedPredicate(kind, table string) {
	degradedPredicatesTotal.WithLabelValues(kind, table).Inc()
}

func RecordTransaction(err error) {
	transactionsTotal.WithLabelValues(status(err)).Inc()
}

func RecordSnapshotWrite(size int, err error) {
	snapshotWritesTotal.WithLabelValues(status(err)).Inc()
	if err == nil {
		snapshotBytes.Set(float64(size))
	}
}

func RecordApprovalCreated(workflowType, priority string) {
	approvalsCreatedTotal.WithLabelValues(workflowType, priority).Inc()
}

func RecordDecision(decision string, err error) {
	decisionsTotal.WithLabelValues(decision, status(err)).Inc()
}

func SetSLAWarnings(count int) {
	slaWarnings.Set(float64(count))
}

/* Handler returns the HTTP handler serving every registered collector */
func Handler() http.Handler {
	return promhttp.Handler()
}
