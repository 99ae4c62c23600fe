package contribution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pledgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bringitback",
		Subsystem: "contribution",
		Name:      "pledges_total",
		Help:      "Pledges by resulting status.",
	}, []string{"status"})

	fundingConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bringitback",
		Subsystem: "contribution",
		Name:      "confirmed_amount_total",
		Help:      "Sum of confirmed pledge amounts.",
	})
)
