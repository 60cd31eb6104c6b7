// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the evaluation
// engine.
//
// # Description
//
// Metrics cover the job lifecycle (queued, started, finished by
// status), per-test-case outcomes, and test-case latency. They are
// exposed on the status server's /metrics endpoint for Prometheus +
// Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
)

// Namespace for all metrics.
const metricsNamespace = "evalbench"

// Subsystem for evaluation job metrics.
const jobsSubsystem = "jobs"

// =============================================================================
// Metric Definitions
// =============================================================================

// Metrics holds the Prometheus instruments for the evaluation engine.
//
// Construct one instance per process with NewMetrics and inject it
// where lifecycle events originate; there is no package-level
// singleton.
type Metrics struct {
	// JobsEnqueuedTotal counts jobs accepted into the queue.
	JobsEnqueuedTotal prometheus.Counter

	// JobsStartedTotal counts jobs that began executing.
	JobsStartedTotal prometheus.Counter

	// JobsFinishedTotal counts terminal transitions by final status.
	// Labels: status (completed, failed, cancelled)
	JobsFinishedTotal *prometheus.CounterVec

	// JobDurationSeconds measures wall time from job start to terminal
	// status. Labels: status
	JobDurationSeconds *prometheus.HistogramVec

	// TestCasesTotal counts scored test cases by outcome.
	// Labels: outcome (passed, failed)
	TestCasesTotal *prometheus.CounterVec

	// TestCaseLatencySeconds measures model invocation latency per
	// test case.
	TestCaseLatencySeconds prometheus.Histogram
}

// NewMetrics creates and registers the engine's metrics with the given
// registerer. Registering twice on the same registerer panics, as with
// all Prometheus collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsEnqueuedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: jobsSubsystem,
			Name:      "enqueued_total",
			Help:      "Total evaluation jobs accepted into the queue",
		}),

		JobsStartedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: jobsSubsystem,
			Name:      "started_total",
			Help:      "Total evaluation jobs that began executing",
		}),

		JobsFinishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: jobsSubsystem,
				Name:      "finished_total",
				Help:      "Total evaluation jobs by terminal status",
			},
			[]string{"status"},
		),

		JobDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: jobsSubsystem,
				Name:      "duration_seconds",
				Help:      "Wall time from job start to terminal status",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"status"},
		),

		TestCasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: jobsSubsystem,
				Name:      "test_cases_total",
				Help:      "Total scored test cases by outcome",
			},
			[]string{"outcome"},
		),

		TestCaseLatencySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: jobsSubsystem,
			Name:      "test_case_latency_seconds",
			Help:      "Model invocation latency per test case",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// =============================================================================
// Orchestrator Observer
// =============================================================================

// JobEnqueued records a job accepted into the queue.
func (m *Metrics) JobEnqueued() {
	m.JobsEnqueuedTotal.Inc()
}

// JobStarted records a job beginning execution.
func (m *Metrics) JobStarted() {
	m.JobsStartedTotal.Inc()
}

// JobFinished records a terminal transition with its duration.
func (m *Metrics) JobFinished(status datatypes.JobStatus, duration time.Duration) {
	m.JobsFinishedTotal.WithLabelValues(string(status)).Inc()
	m.JobDurationSeconds.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// CaseCompleted records one scored test case.
func (m *Metrics) CaseCompleted(passed bool, latencyMs int64) {
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	m.TestCasesTotal.WithLabelValues(outcome).Inc()
	m.TestCaseLatencySeconds.Observe(float64(latencyMs) / 1000)
}
