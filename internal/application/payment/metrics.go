package payment

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the payment counters. A nil *Metrics disables
// instrumentation, which keeps tests free of registry setup.
type Metrics struct {
	BillsAccepted   prometheus.Counter
	BillsRejected   *prometheus.CounterVec // reason
	CardPayments    *prometheus.CounterVec // outcome: approved|declined|failed
	Completed       *prometheus.CounterVec // mode
	CollectedAmount *prometheus.CounterVec // mode
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BillsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payment_bills_accepted_total",
			Help: "Bills accepted by the cash tender.",
		}),
		BillsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_bills_rejected_total",
			Help: "Bills rejected, by reason code.",
		}, []string{"reason"}),
		CardPayments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_card_attempts_total",
			Help: "Card payment attempts, by outcome.",
		}, []string{"outcome"}),
		Completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_sessions_completed_total",
			Help: "Paid sessions, by final tender mode.",
		}, []string{"mode"}),
		CollectedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_collected_amount_total",
			Help: "Amount collected, by tender mode.",
		}, []string{"mode"}),
	}
	reg.MustRegister(m.BillsAccepted, m.BillsRejected, m.CardPayments, m.Completed, m.CollectedAmount)
	return m
}
