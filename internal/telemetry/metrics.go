package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain metrics, exposed on /metrics alongside the default collectors.
var (
	InitiationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_initiations_total",
		Help: "Payment initiation attempts by outcome.",
	}, []string{"outcome"})

	IPNResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_ipn_results_total",
		Help: "IPN deliveries by settlement result.",
	}, []string{"result"})

	WalletCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_credited_amount_total",
		Help: "Total amount credited to wallets by settled top-ups.",
	})
)
