package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBillingMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBilling(reg, Config{ServiceName: "usage_billing", Environment: "test"})

	m.SweepCompleted(250*time.Millisecond, 3, 600)
	m.SweepSkipped()
	m.CustomerFailed("invariant_violation")
	m.Credit(CreditOutcomeReplayed)
	m.UsageRecorded()
	m.SetLeader(true)

	if got := testutil.ToFloat64(m.eventsBilled); got != 3 {
		t.Fatalf("expected 3 events billed, got %v", got)
	}
	if got := testutil.ToFloat64(m.debitedCents); got != 600 {
		t.Fatalf("expected 600 cents debited, got %v", got)
	}
	if got := testutil.ToFloat64(m.sweepRuns.WithLabelValues(SweepResultSkipped)); got != 1 {
		t.Fatalf("expected 1 skipped sweep, got %v", got)
	}
	if got := testutil.ToFloat64(m.customerFailures.WithLabelValues("invariant_violation")); got != 1 {
		t.Fatalf("expected 1 customer failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.leader); got != 1 {
		t.Fatalf("expected leader gauge 1, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["service"] != "usage_billing" || labels["env"] != "test" {
				t.Fatalf("metric %s missing const labels: %v", mf.GetName(), labels)
			}
		}
	}
}

func TestNilBillingIsNoop(t *testing.T) {
	var m *Billing
	m.SweepCompleted(time.Second, 1, 1)
	m.SweepSkipped()
	m.SweepFailed()
	m.CustomerFailed("x")
	m.Credit(CreditOutcomeApplied)
	m.UsageRecorded()
	m.SetLeader(false)
}
