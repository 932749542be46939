// Package metrics exposes Prometheus instrumentation for the coin engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesAppended counts ledger entries by change kind.
	EntriesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprout",
		Subsystem: "ledger",
		Name:      "entries_appended_total",
		Help:      "Ledger entries appended, by change kind.",
	}, []string{"change_kind"})

	// CoinsAwarded sums positive coin amounts written to the ledger.
	CoinsAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sprout",
		Subsystem: "ledger",
		Name:      "coins_awarded_total",
		Help:      "Total coins credited across all users.",
	})

	// CoinsDecayed sums coins removed by the decay engine.
	CoinsDecayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sprout",
		Subsystem: "decay",
		Name:      "coins_decayed_total",
		Help:      "Total coins removed by decay rules.",
	})

	// DecayCycles counts completed decay cycles by mode (full, urgent, manual).
	DecayCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprout",
		Subsystem: "decay",
		Name:      "cycles_total",
		Help:      "Completed decay cycles, by mode.",
	}, []string{"mode"})

	// DecayFailures counts (user, rule, session) triples that failed and
	// were skipped during a cycle.
	DecayFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sprout",
		Subsystem: "decay",
		Name:      "triple_failures_total",
		Help:      "Decay applications that failed and were skipped.",
	})

	// CycleDuration observes wall time per decay cycle.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sprout",
		Subsystem: "decay",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of decay cycles.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	})
)
