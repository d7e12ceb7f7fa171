package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dual-write operations are counted per entity and outcome so that orphaned
// identities (rollback_failure) are visible without scraping logs.
var (
	SyncOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "school_platform",
		Subsystem: "sync",
		Name:      "operations_total",
		Help:      "Dual-write operations by entity, operation, and outcome.",
	}, []string{"entity", "operation", "outcome"})

	RollbackFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "school_platform",
		Subsystem: "sync",
		Name:      "rollback_failures_total",
		Help:      "Compensating directory deletes that failed, leaving an orphaned identity.",
	}, []string{"entity"})

	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "school_platform",
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})
)

const (
	OutcomeSuccess         = "success"
	OutcomeValidationError = "validation_error"
	OutcomeDirectoryError  = "directory_error"
	OutcomeStoreError      = "store_error"
)

func RecordSync(entity, operation, outcome string) {
	SyncOperations.WithLabelValues(entity, operation, outcome).Inc()
}

func RecordRollbackFailure(entity string) {
	RollbackFailures.WithLabelValues(entity).Inc()
}
