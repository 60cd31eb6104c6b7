// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics aggregates per-test-case outcomes into summary
// statistics and compares runs against recorded baselines.
//
// All computation is pure: Calculate and Compare can be re-run at any
// time from the same inputs and produce the same outputs.
package metrics

import (
	"math"
	"sort"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
)

// Calculate computes the aggregate report for one run.
//
// An empty input yields all-zero metrics with no division by zero:
// totalTests=0, passRate=0, every statistic 0.
func Calculate(results []datatypes.RunResult) datatypes.EvalMetrics {
	m := datatypes.EvalMetrics{
		Categories: map[string]datatypes.CategoryMetrics{},
	}
	m.TotalTests = len(results)
	if m.TotalTests == 0 {
		return m
	}

	values := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Score.Passed {
			m.PassedTests++
		}
		values = append(values, r.Score.Value)

		m.TotalLatencyMs += r.Score.LatencyMs
		if r.Score.Tokens != nil {
			m.Tokens.Add(*r.Score.Tokens)
		}
		m.TotalCost += r.Score.Cost
	}
	m.FailedTests = m.TotalTests - m.PassedTests
	m.PassRate = float64(m.PassedTests) / float64(m.TotalTests)
	m.AverageLatencyMs = float64(m.TotalLatencyMs) / float64(m.TotalTests)

	m.Scores = scoreStats(values)
	m.Categories = categoryBreakdown(results)
	return m
}

// scoreStats computes summary statistics over score values.
func scoreStats(values []float64) datatypes.ScoreStats {
	n := len(values)
	if n == 0 {
		return datatypes.ScoreStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	// Population standard deviation.
	var sqSum float64
	for _, v := range sorted {
		d := v - mean
		sqSum += d * d
	}
	stddev := math.Sqrt(sqSum / float64(n))

	var median float64
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return datatypes.ScoreStats{
		Mean:   mean,
		Median: median,
		Min:    sorted[0],
		Max:    sorted[n-1],
		StdDev: stddev,
		CI95:   confidenceInterval(mean, stddev, n),
	}
}

// confidenceInterval builds the 95% interval around the mean, clamped
// to [0, 1]. Samples of fewer than two points carry no margin.
func confidenceInterval(mean, stddev float64, n int) datatypes.ConfidenceInterval {
	if n < 2 {
		return datatypes.ConfidenceInterval{Lower: clamp01(mean), Upper: clamp01(mean)}
	}

	margin := criticalValue(n) * stddev / math.Sqrt(float64(n))
	return datatypes.ConfidenceInterval{
		Lower:  clamp01(mean - margin),
		Upper:  clamp01(mean + margin),
		Margin: margin,
	}
}

// categoryBreakdown groups results by test-case category.
func categoryBreakdown(results []datatypes.RunResult) map[string]datatypes.CategoryMetrics {
	type bucket struct {
		total      int
		passed     int
		scoreSum   float64
		latencySum int64
	}
	buckets := map[string]*bucket{}

	for _, r := range results {
		key := r.TestCase.CategoryOrDefault()
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		b.total++
		if r.Score.Passed {
			b.passed++
		}
		b.scoreSum += r.Score.Value
		b.latencySum += r.Score.LatencyMs
	}

	out := make(map[string]datatypes.CategoryMetrics, len(buckets))
	for key, b := range buckets {
		out[key] = datatypes.CategoryMetrics{
			Total:          b.total,
			Passed:         b.passed,
			PassRate:       float64(b.passed) / float64(b.total),
			AverageScore:   b.scoreSum / float64(b.total),
			AverageLatency: float64(b.latencySum) / float64(b.total),
		}
	}
	return out
}

// clamp01 clamps v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
