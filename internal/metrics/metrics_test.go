package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/speedwagon-io/motordiag/internal/model"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveIngest("http", "accepted")
	m.ObserveIngest("http", "accepted")
	m.ObserveIngest("mqtt", "rejected")
	if got := testutil.ToFloat64(m.readingsIngested.WithLabelValues("http", "accepted")); got != 2 {
		t.Fatalf("expected 2 accepted http readings, got %f", got)
	}
	if got := testutil.ToFloat64(m.readingsIngested.WithLabelValues("mqtt", "rejected")); got != 1 {
		t.Fatalf("expected 1 rejected mqtt reading, got %f", got)
	}

	m.ObserveDiagnosis(model.Diagnosis{FaultType: "Healthy", RUL: 40000, Confidence: 0.8}, 3*time.Millisecond)
	if got := testutil.ToFloat64(m.diagnoses.WithLabelValues("Healthy")); got != 1 {
		t.Fatalf("expected 1 healthy diagnosis, got %f", got)
	}
	if got := testutil.ToFloat64(m.latestRUL); got != 40000 {
		t.Fatalf("expected latest rul 40000, got %f", got)
	}
	if got := testutil.ToFloat64(m.latestConfidence); got != 0.8 {
		t.Fatalf("expected latest confidence 0.8, got %f", got)
	}
	if n := testutil.CollectAndCount(m.diagnosisLatency); n != 1 {
		t.Fatalf("expected latency histogram to be collected once, got %d", n)
	}

	m.ObserveFailure("classify")
	if got := testutil.ToFloat64(m.diagnosisFailures.WithLabelValues("classify")); got != 1 {
		t.Fatalf("expected 1 classify failure, got %f", got)
	}

	m.SetStreamClients(3)
	if got := testutil.ToFloat64(m.streamClients); got != 3 {
		t.Fatalf("expected 3 stream clients, got %f", got)
	}

	m.ObserveAlert(true)
	m.ObserveAlert(false)
	if got := testutil.ToFloat64(m.alerts.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed alert, got %f", got)
	}
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	New(reg)
}
