// Package metrics holds the Prometheus collectors shared by the stores, the
// use case dispatcher and the event publishers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cleanarch"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RepositoryOps     *prometheus.CounterVec
	RepositoryLatency *prometheus.HistogramVec
	SessionOutcomes   *prometheus.CounterVec
	UseCaseRuns       *prometheus.CounterVec
	UseCaseLatency    *prometheus.HistogramVec
	EventsPublished   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RepositoryOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_operations_total",
			Help:      "Repository operations by entity, operation and result.",
		}, []string{"entity", "operation", "result"}),
		RepositoryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "repository_operation_duration_seconds",
			Help:      "Repository operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity", "operation"}),
		SessionOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_outcomes_total",
			Help:      "Units of work ended by commit or rollback.",
		}, []string{"outcome"}),
		UseCaseRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "use_case_executions_total",
			Help:      "Use case executions by name and result.",
		}, []string{"use_case", "result"}),
		UseCaseLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "use_case_duration_seconds",
			Help:      "Use case latency including commit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"use_case"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to a sink by sink and result.",
		}, []string{"sink", "result"}),
	}
}

// Result labels an outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}

	return "ok"
}

// ObserveRepository records one repository operation.
func (m *Metrics) ObserveRepository(entity, op string, start time.Time, err error) {
	if m == nil {
		return
	}

	m.RepositoryOps.WithLabelValues(entity, op, Result(err)).Inc()
	m.RepositoryLatency.WithLabelValues(entity, op).Observe(time.Since(start).Seconds())
}

// ObserveSession records a commit or rollback.
func (m *Metrics) ObserveSession(outcome string) {
	if m == nil {
		return
	}

	m.SessionOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveUseCase records one use case execution.
func (m *Metrics) ObserveUseCase(name string, start time.Time, err error) {
	if m == nil {
		return
	}

	m.UseCaseRuns.WithLabelValues(name, Result(err)).Inc()
	m.UseCaseLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

// ObserveEvent records one publish attempt.
func (m *Metrics) ObserveEvent(sink string, err error) {
	if m == nil {
		return
	}

	m.EventsPublished.WithLabelValues(sink, Result(err)).Inc()
}
