// Package metrics provides custom Prometheus metrics for the
// monitoring pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MonitoringMetrics contains all Prometheus metrics for the scheduler,
// rule engine, detector, and AI collaborator.
type MonitoringMetrics struct {
	EvaluationsTotal      prometheus.Counter
	EvaluationErrors      prometheus.Counter
	EvaluationDuration    prometheus.Histogram
	AnomaliesDetected     *prometheus.CounterVec
	AnomaliesSuppressed   prometheus.Counter
	NotificationsCreated  *prometheus.CounterVec
	NotificationsDropped  prometheus.Counter
	RulesFired            *prometheus.CounterVec
	AIRequestsTotal       prometheus.Counter
	AIRequestErrors       prometheus.Counter
	AIRequestDuration     prometheus.Histogram
	MaintenanceRunsTotal  prometheus.Counter
	DismissalsPurgedTotal prometheus.Counter
	registry              *prometheus.Registry
}

// NewMonitoringMetrics creates and registers the monitoring metrics
// against the given registry.
func NewMonitoringMetrics(registry *prometheus.Registry) (*MonitoringMetrics, error) {
	m := &MonitoringMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize monitoring metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register monitoring metrics: %w", err)
	}
	return m, nil
}

func (m *MonitoringMetrics) initMetrics() error {
	m.EvaluationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "growmon_evaluations_total",
		Help: "Total number of cultivation evaluations performed",
	})

	m.EvaluationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "growmon_evaluation_errors_total",
		Help: "Total number of cultivation evaluations that failed",
	})

	m.EvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "growmon_evaluation_duration_seconds",
		Help:    "Duration of a single cultivation evaluation",
		Buckets: prometheus.DefBuckets,
	})

	m.AnomaliesDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "growmon_anomalies_detected_total",
		Help: "Total number of sensor anomalies detected, by severity",
	}, []string{"severity"})

	m.AnomaliesSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "growmon_anomalies_suppressed_total",
		Help: "Total number of anomalies suppressed by user dismissals",
	})

	m.NotificationsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "growmon_notifications_created_total",
		Help: "Total number of notifications created, by type",
	}, []string{"type"})

	m.NotificationsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "growmon_notifications_dropped_total",
		Help: "Total number of notifications dropped by rate limiting or persistence failures",
	})

	m.RulesFired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "growmon_rules_fired_total",
		Help: "Total number of rule firings, by rule id",
	}, []string{"rule_id"})

	m.AIRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "growmon_ai_requests_total",
		Help: "Total number of AI analysis requests issued",
	})

	m.AIRequestErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "growmon_ai_request_errors_total",
		Help: "Total number of failed AI analysis requests",
	})

	m.AIRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "growmon_ai_request_duration_seconds",
		Help:    "Duration of AI analysis requests",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	m.MaintenanceRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "growmon_maintenance_runs_total",
		Help: "Total number of maintenance passes executed",
	})

	m.DismissalsPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "growmon_dismissals_purged_total",
		Help: "Total number of dismissal records removed by retention purges",
	})

	return nil
}

// RecordEvaluation updates the evaluation counters for one cultivation pass.
func (m *MonitoringMetrics) RecordEvaluation(duration time.Duration, err error) {
	m.EvaluationsTotal.Inc()
	m.EvaluationDuration.Observe(duration.Seconds())
	if err != nil {
		m.EvaluationErrors.Inc()
	}
}

// RecordAnomaly counts one detected anomaly by severity.
func (m *MonitoringMetrics) RecordAnomaly(severity string) {
	m.AnomaliesDetected.WithLabelValues(severity).Inc()
}

// RecordNotification counts one created notification by type.
func (m *MonitoringMetrics) RecordNotification(notificationType string) {
	m.NotificationsCreated.WithLabelValues(notificationType).Inc()
}

// RecordRuleFired counts one rule firing.
func (m *MonitoringMetrics) RecordRuleFired(ruleID string) {
	m.RulesFired.WithLabelValues(ruleID).Inc()
}

// RecordAIRequest updates the AI collaborator counters.
func (m *MonitoringMetrics) RecordAIRequest(duration time.Duration, err error) {
	m.AIRequestsTotal.Inc()
	m.AIRequestDuration.Observe(duration.Seconds())
	if err != nil {
		m.AIRequestErrors.Inc()
	}
}

// Collect implements the prometheus.Collector interface.
func (m *MonitoringMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.EvaluationsTotal
	ch <- m.EvaluationErrors
	ch <- m.EvaluationDuration
	m.AnomaliesDetected.Collect(ch)
	ch <- m.AnomaliesSuppressed
	m.NotificationsCreated.Collect(ch)
	ch <- m.NotificationsDropped
	m.RulesFired.Collect(ch)
	ch <- m.AIRequestsTotal
	ch <- m.AIRequestErrors
	ch <- m.AIRequestDuration
	ch <- m.MaintenanceRunsTotal
	ch <- m.DismissalsPurgedTotal
}

// Describe implements the prometheus.Collector interface.
func (m *MonitoringMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.EvaluationsTotal.Desc()
	ch <- m.EvaluationErrors.Desc()
	ch <- m.EvaluationDuration.Desc()
	m.AnomaliesDetected.Describe(ch)
	ch <- m.AnomaliesSuppressed.Desc()
	m.NotificationsCreated.Describe(ch)
	ch <- m.NotificationsDropped.Desc()
	m.RulesFired.Describe(ch)
	ch <- m.AIRequestsTotal.Desc()
	ch <- m.AIRequestErrors.Desc()
	ch <- m.AIRequestDuration.Desc()
	ch <- m.MaintenanceRunsTotal.Desc()
	ch <- m.DismissalsPurgedTotal.Desc()
}
