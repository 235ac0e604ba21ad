package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SweepResultCompleted = "completed"
	SweepResultSkipped   = "skipped"
	SweepResultFailed    = "failed"

	CreditOutcomeApplied  = "applied"
	CreditOutcomeReplayed = "replayed"
	CreditOutcomeConflict = "conflict"
)

// Config carries the constant labels attached to every series.
type Config struct {
	ServiceName string
	Environment string
}

// Billing holds the counters and histograms of the billing engine. A nil
// *Billing is valid and records nothing.
type Billing struct {
	sweepRuns        *prometheus.CounterVec
	sweepDuration    prometheus.Histogram
	eventsBilled     prometheus.Counter
	debitedCents     prometheus.Counter
	customerFailures *prometheus.CounterVec
	credits          *prometheus.CounterVec
	usageRecorded    prometheus.Counter
	leader           prometheus.Gauge
}

// NewBilling creates the billing collectors and registers them on registerer,
// which defaults to prometheus.DefaultRegisterer.
func NewBilling(registerer prometheus.Registerer, cfg Config) *Billing {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "usage_billing"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Billing{
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "billing_sweep_runs_total",
			Help:        "Billing sweep ticks by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "billing_sweep_duration_seconds",
			Help:        "Wall time of completed billing sweeps.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}),
		eventsBilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "billing_usage_events_billed_total",
			Help:        "Usage events converted into ledger debits.",
			ConstLabels: constLabels,
		}),
		debitedCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "billing_debited_cents_total",
			Help:        "Cents debited from wallets by the billing sweep.",
			ConstLabels: constLabels,
		}),
		customerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "billing_customer_failures_total",
			Help:        "Per-customer billing transactions that were aborted or skipped, by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		credits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "billing_wallet_credits_total",
			Help:        "Wallet credit requests by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		usageRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "billing_usage_events_recorded_total",
			Help:        "Usage events accepted for billing.",
			ConstLabels: constLabels,
		}),
		leader: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "billing_cron_leader",
			Help:        "1 when this instance holds the billing cron lock.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.sweepRuns,
		m.sweepDuration,
		m.eventsBilled,
		m.debitedCents,
		m.customerFailures,
		m.credits,
		m.usageRecorded,
		m.leader,
	)
	return m
}

func (m *Billing) SweepCompleted(d time.Duration, events int, debited int64) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(SweepResultCompleted).Inc()
	m.sweepDuration.Observe(d.Seconds())
	m.eventsBilled.Add(float64(events))
	m.debitedCents.Add(float64(debited))
}

func (m *Billing) SweepSkipped() {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(SweepResultSkipped).Inc()
}

func (m *Billing) SweepFailed() {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(SweepResultFailed).Inc()
}

func (m *Billing) CustomerFailed(reason string) {
	if m == nil {
		return
	}
	m.customerFailures.WithLabelValues(reason).Inc()
}

func (m *Billing) Credit(outcome string) {
	if m == nil {
		return
	}
	m.credits.WithLabelValues(outcome).Inc()
}

func (m *Billing) UsageRecorded() {
	if m == nil {
		return
	}
	m.usageRecorded.Inc()
}

func (m *Billing) SetLeader(leader bool) {
	if m == nil {
		return
	}
	if leader {
		m.leader.Set(1)
		return
	}
	m.leader.Set(0)
}
