package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "subtickets_gate_rejections_total",
	Help: "Requests rejected by the gate, by reason",
}, []string{"reason"})

func reject(reason string) {
	rejections.WithLabelValues(reason).Inc()
}
