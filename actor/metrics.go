package actor

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "socialrecovery"
	metricsSubsystem = "actor"
)

// Metrics collects transaction statistics of Actor. Nil Metrics is valid and
// collects nothing.
type Metrics struct {
	sent         prometheus.Counter
	confirmed    prometheus.Counter
	reverted     prometheus.Counter
	confirmation prometheus.Histogram
}

// NewMetrics creates Metrics registered in reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "transactions_sent_total",
			Help:      "Number of transactions submitted to the chain.",
		}),
		confirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "transactions_confirmed_total",
			Help:      "Number of submitted transactions included in a block.",
		}),
		reverted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "transactions_reverted_total",
			Help:      "Number of included transactions with failed status.",
		}),
		confirmation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "confirmation_seconds",
			Help:      "Time from transaction submission to its receipt.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
	}

	for _, c := range []prometheus.Collector{m.sent, m.confirmed, m.reverted, m.confirmation} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register actor metric: %w", err)
		}
	}

	return m, nil
}

func (x *Metrics) transactionSent() {
	if x != nil {
		x.sent.Inc()
	}
}

func (x *Metrics) transactionConfirmed(d time.Duration) {
	if x != nil {
		x.confirmed.Inc()
		x.confirmation.Observe(d.Seconds())
	}
}

func (x *Metrics) transactionReverted() {
	if x != nil {
		x.reverted.Inc()
	}
}
