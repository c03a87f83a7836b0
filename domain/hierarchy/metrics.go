package hierarchy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

var operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "subtickets_hierarchy_operations_total",
	Help: "Hierarchy operations by operation and outcome",
}, []string{"operation", "outcome"})

func observe(op string, err error) {
	outcome := outcomeOK
	switch {
	case err == nil:
	case IsRejection(err):
		outcome = outcomeRejected
	default:
		outcome = outcomeError
	}
	operations.WithLabelValues(op, outcome).Inc()
}
