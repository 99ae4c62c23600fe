package voting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	votesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bringitback",
		Subsystem: "voting",
		Name:      "votes_total",
		Help:      "Votes recorded, by value.",
	}, []string{"value"})

	acceptancesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bringitback",
		Subsystem: "voting",
		Name:      "acceptances_total",
		Help:      "Solutions accepted by reaching quorum.",
	})

	rejectedVotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bringitback",
		Subsystem: "voting",
		Name:      "rejected_votes_total",
		Help:      "Votes refused, by reason.",
	}, []string{"reason"})
)
