package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the money-movement counters. Settlement outcomes and payout
// failures are the ones worth alerting on.
type Metrics struct {
	PaymentEvents  *prometheus.CounterVec
	Settlements    *prometheus.CounterVec
	Payouts        *prometheus.CounterVec
	PayoutFailures prometheus.Counter
	Escalations    *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		PaymentEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tumapay_payment_events_total",
			Help: "Payment processing attempts by outcome.",
		}, []string{"source", "outcome"}),
		Settlements: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tumapay_settlements_total",
			Help: "Settlement attempts by path and outcome.",
		}, []string{"path", "outcome"}),
		Payouts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tumapay_payouts_total",
			Help: "Recorded payouts by method.",
		}, []string{"method"}),
		PayoutFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tumapay_payout_failures_total",
			Help: "Claimed units whose rail transfer failed and need manual reconciliation.",
		}),
		Escalations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tumapay_escalations_total",
			Help: "Scheduled escalation sends by kind.",
		}, []string{"kind"}),
	}
}
