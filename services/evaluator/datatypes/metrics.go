// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"
)

// ScoreStats holds summary statistics over Score.Value for one run.
//
// StdDev is the population standard deviation. The confidence interval
// is a 95% interval around the mean, clamped to [0, 1].
type ScoreStats struct {
	Mean   float64            `json:"mean"`
	Median float64            `json:"median"`
	Min    float64            `json:"min"`
	Max    float64            `json:"max"`
	StdDev float64            `json:"std_dev"`
	CI95   ConfidenceInterval `json:"ci_95"`
}

// ConfidenceInterval is a range around a sample mean.
type ConfidenceInterval struct {
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	Margin float64 `json:"margin"`
}

// CategoryMetrics summarizes one test-case category within a run.
type CategoryMetrics struct {
	Total          int     `json:"total"`
	Passed         int     `json:"passed"`
	PassRate       float64 `json:"pass_rate"`
	AverageScore   float64 `json:"average_score"`
	AverageLatency float64 `json:"average_latency_ms"`
}

// EvalMetrics is the aggregate report computed from a run's RunResults.
//
// Derived data: never mutated after computation, recomputable at any
// time from the same RunResult slice.
type EvalMetrics struct {
	TotalTests  int     `json:"total_tests"`
	PassedTests int     `json:"passed_tests"`
	FailedTests int     `json:"failed_tests"`
	PassRate    float64 `json:"pass_rate"`

	Scores ScoreStats `json:"scores"`

	Categories map[string]CategoryMetrics `json:"categories"`

	TotalLatencyMs   int64      `json:"total_latency_ms"`
	AverageLatencyMs float64    `json:"average_latency_ms"`
	Tokens           TokenUsage `json:"tokens"`
	TotalCost        float64    `json:"total_cost"`
}

// RegressionSeverity classifies how bad a regression is.
type RegressionSeverity string

const (
	SeverityMinor    RegressionSeverity = "minor"
	SeverityMajor    RegressionSeverity = "major"
	SeverityCritical RegressionSeverity = "critical"
)

// Regression is one detected deterioration against a baseline.
type Regression struct {
	Metric   string             `json:"metric"`
	Baseline float64            `json:"baseline"`
	Current  float64            `json:"current"`
	Delta    float64            `json:"delta"`
	Severity RegressionSeverity `json:"severity"`
}

// MetricsComparison is the result of comparing a current run against a
// recorded baseline.
type MetricsComparison struct {
	PassRateDelta     float64      `json:"pass_rate_delta"`
	AverageScoreDelta float64      `json:"average_score_delta"`
	LatencyDelta      float64      `json:"latency_delta_ms"`
	CostDelta         float64      `json:"cost_delta"`
	Regressions       []Regression `json:"regressions"`
}

// HasRegressions reports whether any regression was detected.
func (c MetricsComparison) HasRegressions() bool {
	return len(c.Regressions) > 0
}

// Report bundles everything persisted for a finished job.
type Report struct {
	ID        string       `json:"id"`
	JobID     string       `json:"job_id"`
	JobName   string       `json:"job_name,omitempty"`
	DatasetID string       `json:"dataset_id"`
	Model     ModelConfig  `json:"model"`
	Scorer    ScorerConfig `json:"scorer"`
	Metrics   EvalMetrics  `json:"metrics"`
	Results   []RunResult  `json:"results"`
	CreatedAt time.Time    `json:"created_at"`
}
