package plan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scoredItems = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "migclean",
		Subsystem: "plan",
		Name:      "items_scored_total",
		Help:      "Inventory items scored during plan generation.",
	})

	blockedItems = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "migclean",
		Subsystem: "plan",
		Name:      "items_blocked_total",
		Help:      "Plan items forced to BLOCKED by hard blocks.",
	})

	mergeChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "migclean",
		Subsystem: "plan",
		Name:      "merge_changes_total",
		Help:      "Proposal changes processed by the merge engine, by outcome.",
	}, []string{"type", "outcome"})
)
