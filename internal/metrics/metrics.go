package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/speedwagon-io/motordiag/internal/model"
)

const namespace = "motordiag"

type Metrics struct {
	readingsIngested  *prometheus.CounterVec
	diagnoses         *prometheus.CounterVec
	diagnosisFailures *prometheus.CounterVec
	diagnosisLatency  prometheus.Histogram
	latestRUL         prometheus.Gauge
	latestConfidence  prometheus.Gauge
	streamClients     prometheus.Gauge
	alerts            *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		readingsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Readings received, by transport and outcome.",
		}, []string{"transport", "outcome"}),
		diagnoses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnoses_total",
			Help:      "Completed diagnoses by predicted fault type.",
		}, []string{"fault_type"}),
		diagnosisFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnosis_failures_total",
			Help:      "Failed diagnoses by pipeline stage.",
		}, []string{"stage"}),
		diagnosisLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "diagnosis_latency_seconds",
			Help:      "Time from raw reading to finished diagnosis.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		latestRUL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_rul",
			Help:      "Remaining useful life from the most recent diagnosis.",
		}),
		latestConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_confidence",
			Help:      "Classifier confidence of the most recent diagnosis.",
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected live diagnosis stream clients.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert notifications by delivery outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.readingsIngested,
		m.diagnoses,
		m.diagnosisFailures,
		m.diagnosisLatency,
		m.latestRUL,
		m.latestConfidence,
		m.streamClients,
		m.alerts,
	)
	return m
}

func (m *Metrics) ObserveIngest(transport, outcome string) {
	m.readingsIngested.WithLabelValues(transport, outcome).Inc()
}

func (m *Metrics) ObserveDiagnosis(d model.Diagnosis, elapsed time.Duration) {
	m.diagnoses.WithLabelValues(d.FaultType).Inc()
	m.diagnosisLatency.Observe(elapsed.Seconds())
	m.latestRUL.Set(float64(d.RUL))
	m.latestConfidence.Set(d.Confidence)
}

func (m *Metrics) ObserveFailure(stage string) {
	m.diagnosisFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) SetStreamClients(n int) {
	m.streamClients.Set(float64(n))
}

func (m *Metrics) ObserveAlert(delivered bool) {
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	m.alerts.WithLabelValues(outcome).Inc()
}
