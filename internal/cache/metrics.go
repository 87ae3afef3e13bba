package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storeFailures counts swallowed cache failures by operation (read, decode, write, purge).
	storeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_cache_failures_total",
			Help: "Total number of local cache failures degraded to empty reads or dropped writes",
		},
		[]string{"kind", "op"},
	)

	// ownerMismatches counts cache entries discarded because they belonged to another user.
	ownerMismatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_cache_owner_mismatch_total",
			Help: "Total number of cached collections discarded because another user owned them",
		},
		[]string{"kind"},
	)
)
