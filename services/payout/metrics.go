package payout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var payoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bringitback",
	Subsystem: "payout",
	Name:      "payouts_total",
	Help:      "Payout records by status transition.",
}, []string{"status"})
