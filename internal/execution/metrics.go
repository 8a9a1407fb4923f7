package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "migclean",
		Name:      "actions_total",
		Help:      "Queue actions by type and terminal status.",
	}, []string{"type", "status"})

	queuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "migclean",
		Name:      "queues_total",
		Help:      "Executed queues by overall status.",
	}, []string{"status"})
)
