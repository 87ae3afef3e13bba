package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_mutations_total",
			Help: "Total number of mutations by kind, operation and outcome",
		},
		[]string{"kind", "op", "outcome"},
	)

	loadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_loads_total",
			Help: "Total number of reconciliation loads by kind and source",
		},
		[]string{"kind", "source"},
	)

	enrichmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_enrichment_failures_total",
			Help: "Total number of items left unresolved because the catalog lookup failed",
		},
		[]string{"kind"},
	)

	pendingMutations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cartsync_pending_mutations",
			Help: "Number of mutations awaiting remote confirmation",
		},
		[]string{"kind"},
	)
)

const (
	outcomeApplied    = "applied"
	outcomeConfirmed  = "confirmed"
	outcomeRolledBack = "rolled_back"
	outcomeRejected   = "rejected"
	outcomeDiscarded  = "discarded"
	outcomeNoop       = "noop"

	sourceRemote        = "remote"
	sourceCache         = "cache"
	sourceCacheFallback = "cache_fallback"
	sourceAnonymous     = "anonymous"
	sourceSuperseded    = "superseded"
)
