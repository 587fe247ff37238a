// Package metrics provides Prometheus instrumentation for the transaction engine.
//
// A nil *Metrics is a valid recorder that drops every observation, so
// components can take one unconditionally.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "coincore"

// Execution status label values.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
	StatusBusy      = "busy"
)

// Metrics owns a private registry and the engine's collectors.
type Metrics struct {
	registry *prometheus.Registry

	executionsTotal         *prometheus.CounterVec
	validationFailuresTotal *prometheus.CounterVec
	feeFallbacksTotal       *prometheus.CounterVec
	staleUpdatesTotal       prometheus.Counter
	remoteCallDuration      *prometheus.HistogramVec
	remoteCallErrorsTotal   *prometheus.CounterVec
	cacheLookupsTotal       *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "executions_total",
				Help:      "Total number of transaction executions",
			},
			[]string{"route", "asset", "status"},
		),
		validationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "validation_failures_total",
				Help:      "Total number of failed validations by reason",
			},
			[]string{"reason"},
		),
		feeFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fee",
				Name:      "fallbacks_total",
				Help:      "Total number of default fee quotes used after a fee source failure",
			},
			[]string{"asset"},
		),
		staleUpdatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "stale_updates_total",
				Help:      "Total number of amount updates discarded because a newer update superseded them",
			},
		),
		remoteCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "remote",
				Name:      "call_duration_seconds",
				Help:      "Duration of calls to remote collaborators",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		remoteCallErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "remote",
				Name:      "call_errors_total",
				Help:      "Total number of failed calls to remote collaborators",
			},
			[]string{"service"},
		),
		cacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Total number of cache lookups by result",
			},
			[]string{"cache", "result"},
		),
	}

	m.registry.MustRegister(
		m.executionsTotal,
		m.validationFailuresTotal,
		m.feeFallbacksTotal,
		m.staleUpdatesTotal,
		m.remoteCallDuration,
		m.remoteCallErrorsTotal,
		m.cacheLookupsTotal,
	)
	return m
}

// Registry exposes the registry for export.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordExecution records the terminal status of an execute call.
func (m *Metrics) RecordExecution(route, asset, status string) {
	if m == nil {
		return
	}
	m.executionsTotal.WithLabelValues(route, asset, status).Inc()
}

// RecordValidationFailure records a validation failure reason.
func (m *Metrics) RecordValidationFailure(reason string) {
	if m == nil {
		return
	}
	m.validationFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordFeeFallback records that a default fee quote replaced a failed fetch.
func (m *Metrics) RecordFeeFallback(asset string) {
	if m == nil {
		return
	}
	m.feeFallbacksTotal.WithLabelValues(asset).Inc()
}

// RecordStaleUpdate records a discarded amount update.
func (m *Metrics) RecordStaleUpdate() {
	if m == nil {
		return
	}
	m.staleUpdatesTotal.Inc()
}

// RecordRemoteCall records a call to a remote collaborator with its duration and outcome.
// Context cancellation is not counted as an error.
func (m *Metrics) RecordRemoteCall(service string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.remoteCallDuration.WithLabelValues(service).Observe(duration.Seconds())
	if err != nil && !isCancellation(err) {
		m.remoteCallErrorsTotal.WithLabelValues(service).Inc()
	}
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
