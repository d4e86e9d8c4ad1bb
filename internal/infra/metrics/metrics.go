package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain counters scraped via the /metrics server. Registration happens at
// import time through promauto.
var (
	ClicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "refledger",
		Name:      "clicks_total",
		Help:      "Classified click events by outcome.",
	}, []string{"outcome"})

	ClickRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "refledger",
		Name:      "click_rejections_total",
		Help:      "Rejected click events by rejection reason.",
	}, []string{"reason"})

	CreditsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "refledger",
		Name:      "click_credits_issued_total",
		Help:      "Micro-credits issued by the click accrual ledger.",
	})

	CommissionsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "refledger",
		Name:      "commissions_recorded_total",
		Help:      "Pending commissions created from confirmed sales.",
	})

	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "refledger",
		Name:      "settlements_total",
		Help:      "Completed commission settlements.",
	})

	SettledAmount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "refledger",
		Name:      "settled_amount_total",
		Help:      "Total currency amount settled into seller balances.",
	})
)
