package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the auth service
type Metrics struct {
	// QR session metrics
	SessionsStarted prometheus.Counter
	SetupFailures   *prometheus.CounterVec
	SetupDuration   prometheus.Histogram
	Transitions     *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	Polls           prometheus.Counter

	// Credential metrics
	PersistErrors    prometheus.Counter
	CredentialChecks *prometheus.CounterVec

	// Kafka metrics
	KafkaMessagesProduced prometheus.Counter
	KafkaProduceErrors    prometheus.Counter
}

var (
	// DefaultMetrics is the default metrics instance
	DefaultMetrics *Metrics
	once           sync.Once
)

// GetDefaultMetrics returns the singleton metrics instance
func GetDefaultMetrics() *Metrics {
	once.Do(func() {
		DefaultMetrics = NewMetrics()
	})
	return DefaultMetrics
}

// NewMetrics registers all metrics with the default Prometheus registry.
// Call it once per process; use GetDefaultMetrics everywhere else.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auth_service_qr_sessions_started_total",
			Help: "Total number of QR login sessions started",
		}),
		SetupFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_service_qr_setup_failures_total",
				Help: "Total number of QR login sessions that failed during setup",
			},
			[]string{"reason"},
		),
		SetupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "auth_service_qr_setup_duration_seconds",
			Help:    "Duration of QR session setup (browser launch to QR capture) in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		Transitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_service_qr_transitions_total",
				Help: "Total number of QR session state transitions by target state",
			},
			[]string{"status"},
		),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "auth_service_qr_active_sessions",
			Help: "Current number of QR sessions holding a browser",
		}),
		Polls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auth_service_qr_polls_total",
			Help: "Total number of QR status polls",
		}),

		PersistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auth_service_credential_persist_errors_total",
			Help: "Total number of failures to persist a harvested credential",
		}),
		CredentialChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_service_credential_checks_total",
				Help: "Total number of credential verifications by result",
			},
			[]string{"result"},
		),

		KafkaMessagesProduced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auth_service_kafka_messages_produced_total",
			Help: "Total number of messages produced to Kafka",
		}),
		KafkaProduceErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auth_service_kafka_produce_errors_total",
			Help: "Total number of Kafka produce errors",
		}),
	}
}

// RecordSessionStarted records a session that reached WAITING
func (m *Metrics) RecordSessionStarted(setupSeconds float64) {
	m.SessionsStarted.Inc()
	m.SetupDuration.Observe(setupSeconds)
}

// RecordSetupFailure records a failed session setup
func (m *Metrics) RecordSetupFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.SetupFailures.WithLabelValues(reason).Inc()
}

// RecordTransition records a state transition
func (m *Metrics) RecordTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
}

// UpdateActiveSessions updates the active sessions gauge
func (m *Metrics) UpdateActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordPoll records a status poll
func (m *Metrics) RecordPoll() {
	m.Polls.Inc()
}

// RecordPersistError records a credential persistence failure
func (m *Metrics) RecordPersistError() {
	m.PersistErrors.Inc()
}

// RecordCredentialCheck records a verification result ("valid", "invalid", "error")
func (m *Metrics) RecordCredentialCheck(result string) {
	m.CredentialChecks.WithLabelValues(result).Inc()
}

// RecordKafkaMessage records a produced Kafka message
func (m *Metrics) RecordKafkaMessage() {
	m.KafkaMessagesProduced.Inc()
}

// RecordKafkaError records a Kafka production error
func (m *Metrics) RecordKafkaError() {
	m.KafkaProduceErrors.Inc()
}
