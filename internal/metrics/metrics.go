// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ApprovalsStarted counts approval processes started.
	ApprovalsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "approvals_started_total",
		Help: "Number of approval processes started.",
	})

	// DecisionsTotal counts step decisions by outcome (approved, rejected).
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "approvals_decisions_total",
		Help: "Number of approval step decisions by outcome.",
	}, []string{"outcome"})

	// ReconcileRepairsTotal counts approvals repaired by reconciliation.
	ReconcileRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "approvals_reconcile_repairs_total",
		Help: "Number of orphaned approvals repaired by reconciliation.",
	})
)
