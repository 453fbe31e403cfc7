package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_matches_created_total",
		Help: "Number of matches created.",
	})

	RoundsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_rounds_resolved_total",
		Help: "Number of rounds resolved, by answers or by timeout.",
	})

	ForcedResolves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_forced_resolves_total",
		Help: "Number of rounds resolved by the timeout path.",
	})

	StoreTxConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_store_tx_conflicts_total",
		Help: "Number of optimistic transaction attempts retried on write conflict.",
	})
)
