package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cleanupDeletedTotal, reconcileOutcomesTotal, cleanupRunsTotal) }

var (
	cleanupDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_cleanup_deleted_total",
			Help: "Rows removed by the TTL sweep per entity.",
		},
		[]string{"entity"},
	)

	reconcileOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_reconcile_outcomes_total",
			Help: "Stale task reconciliation outcomes.",
		},
		[]string{"outcome"}, // completed|failed|timed_out|checked|skipped
	)

	cleanupRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_cleanup_runs_total",
			Help: "Cleanup runs by result.",
		},
		[]string{"result"}, // ok|error|locked
	)
)

func AddCleanupDeleted(entity string, n int) {
	if n > 0 {
		cleanupDeletedTotal.WithLabelValues(norm(entity)).Add(float64(n))
	}
}

func IncReconcileOutcome(outcome string) {
	reconcileOutcomesTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncCleanupRun(result string) {
	cleanupRunsTotal.WithLabelValues(norm(result)).Inc()
}
