// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

import (
	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
)

// Regression thresholds. Existing stored baselines depend on these
// exact values; do not tune them without a migration.
const (
	scoreRegressionThreshold = -0.05
	scoreMajorThreshold      = -0.10
	scoreCriticalThreshold   = -0.15

	latencyRegressionRatio = 0.20
	latencyMajorRatio      = 0.35
	latencyCriticalRatio   = 0.50

	costRegressionRatio = 0.30
	costMajorRatio      = 0.50
	costCriticalRatio   = 0.75
)

// Compare diffs a current run against a baseline and classifies
// regressions by severity.
//
// Accuracy-like metrics (pass rate, average score) regress on an
// absolute drop beyond 0.05; latency and cost regress on a relative
// increase beyond 20% and 30% respectively. For the ratio-based
// metrics the Regression entry's Delta carries the increase ratio.
func Compare(current, baseline datatypes.EvalMetrics) datatypes.MetricsComparison {
	cmp := datatypes.MetricsComparison{
		PassRateDelta:     current.PassRate - baseline.PassRate,
		AverageScoreDelta: current.Scores.Mean - baseline.Scores.Mean,
		LatencyDelta:      current.AverageLatencyMs - baseline.AverageLatencyMs,
		CostDelta:         current.TotalCost - baseline.TotalCost,
	}

	if cmp.PassRateDelta < scoreRegressionThreshold {
		cmp.Regressions = append(cmp.Regressions, datatypes.Regression{
			Metric:   "accuracy",
			Baseline: baseline.PassRate,
			Current:  current.PassRate,
			Delta:    cmp.PassRateDelta,
			Severity: scoreSeverity(cmp.PassRateDelta),
		})
	}

	if cmp.AverageScoreDelta < scoreRegressionThreshold {
		cmp.Regressions = append(cmp.Regressions, datatypes.Regression{
			Metric:   "average_score",
			Baseline: baseline.Scores.Mean,
			Current:  current.Scores.Mean,
			Delta:    cmp.AverageScoreDelta,
			Severity: scoreSeverity(cmp.AverageScoreDelta),
		})
	}

	if baseline.AverageLatencyMs > 0 {
		ratio := (current.AverageLatencyMs - baseline.AverageLatencyMs) / baseline.AverageLatencyMs
		if ratio > latencyRegressionRatio {
			cmp.Regressions = append(cmp.Regressions, datatypes.Regression{
				Metric:   "latency",
				Baseline: baseline.AverageLatencyMs,
				Current:  current.AverageLatencyMs,
				Delta:    ratio,
				Severity: latencySeverity(ratio),
			})
		}
	}

	if baseline.TotalCost > 0 {
		ratio := (current.TotalCost - baseline.TotalCost) / baseline.TotalCost
		if ratio > costRegressionRatio {
			cmp.Regressions = append(cmp.Regressions, datatypes.Regression{
				Metric:   "cost",
				Baseline: baseline.TotalCost,
				Current:  current.TotalCost,
				Delta:    ratio,
				Severity: costSeverity(ratio),
			})
		}
	}

	return cmp
}

// scoreSeverity classifies an absolute drop in an accuracy-like
// metric.
func scoreSeverity(delta float64) datatypes.RegressionSeverity {
	switch {
	case delta < scoreCriticalThreshold:
		return datatypes.SeverityCritical
	case delta < scoreMajorThreshold:
		return datatypes.SeverityMajor
	default:
		return datatypes.SeverityMinor
	}
}

// latencySeverity classifies a relative latency increase.
func latencySeverity(ratio float64) datatypes.RegressionSeverity {
	switch {
	case ratio > latencyCriticalRatio:
		return datatypes.SeverityCritical
	case ratio > latencyMajorRatio:
		return datatypes.SeverityMajor
	default:
		return datatypes.SeverityMinor
	}
}

// costSeverity classifies a relative cost increase.
func costSeverity(ratio float64) datatypes.RegressionSeverity {
	switch {
	case ratio > costCriticalRatio:
		return datatypes.SeverityCritical
	case ratio > costMajorRatio:
		return datatypes.SeverityMajor
	default:
		return datatypes.SeverityMinor
	}
}
