// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the shared data model for the evaluation engine.
//
// Types here are plain data: they carry no behavior beyond small helpers
// and are shared across the execution, jobs, metrics, and storage layers.
package datatypes

import (
	"time"
)

// TestCase is a single evaluation input loaded from a dataset.
//
// Immutable once loaded: the engine never mutates a TestCase after the
// dataset manager hands it over.
type TestCase struct {
	ID       string         `json:"id" yaml:"id" validate:"required"`
	Input    string         `json:"input" yaml:"input" validate:"required"`
	Expected string         `json:"expected" yaml:"expected"`
	Category string         `json:"category,omitempty" yaml:"category,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// CategoryOrDefault returns the test case category, or "uncategorized"
// when none was set.
func (tc TestCase) CategoryOrDefault() string {
	if tc.Category == "" {
		return "uncategorized"
	}
	return tc.Category
}

// ModelConfig identifies the model under evaluation.
//
// The engine passes this through unchanged to the runner's execution
// capability; provider-specific request formatting happens behind that
// boundary.
type ModelConfig struct {
	Provider    string         `json:"provider" yaml:"provider" validate:"required"`
	Model       string         `json:"model" yaml:"model" validate:"required"`
	Temperature float32        `json:"temperature" yaml:"temperature"`
	MaxTokens   int            `json:"max_tokens" yaml:"max_tokens"`
	Params      map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// ScorerConfig selects and parameterizes a scoring strategy.
//
// Opaque to the engine: only the runner's scoring capability interprets
// Strategy and Params.
type ScorerConfig struct {
	Strategy  string         `json:"strategy" yaml:"strategy" validate:"required"`
	Threshold float64        `json:"threshold" yaml:"threshold"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// TokenUsage accounts for tokens consumed by one model invocation.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Add accumulates another usage record into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
	u.Total += other.Total
}

// ExecutionResult is the outcome of a single model invocation attempt.
type ExecutionResult struct {
	Output    string     `json:"output"`
	LatencyMs int64      `json:"latency_ms"`
	Tokens    TokenUsage `json:"tokens"`
	Cost      float64    `json:"cost"`
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
}

// ErrorInfo carries a machine-readable failure code plus a message.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes used across the engine.
const (
	// ErrCodeExecutionFailed marks a Score whose test case exhausted
	// all execution attempts.
	ErrCodeExecutionFailed = "EXECUTION_FAILED"

	// ErrCodeJobExecutionFailed marks a job that died from an uncaught
	// error anywhere in its run (dataset load, runner construction, ...).
	ErrCodeJobExecutionFailed = "JOB_EXECUTION_FAILED"
)

// Score is the scored outcome of one test case.
//
// Exactly one Score is produced per TestCase per run; TestCaseID is
// unique within a run's result set. Value is always in [0, 1].
type Score struct {
	TestCaseID  string      `json:"test_case_id"`
	Value       float64     `json:"value"`
	Passed      bool        `json:"passed"`
	Actual      string      `json:"actual"`
	Expected    string      `json:"expected"`
	LatencyMs   int64       `json:"latency_ms"`
	Tokens      *TokenUsage `json:"tokens,omitempty"`
	Cost        float64     `json:"cost,omitempty"`
	Explanation string      `json:"explanation,omitempty"`
	Error       *ErrorInfo  `json:"error,omitempty"`
}

// RunResult is the per-test-case record the metrics aggregator consumes:
// the TestCase, its Score, and the configuration that produced it.
type RunResult struct {
	TestCase     TestCase     `json:"test_case"`
	Score        Score        `json:"score"`
	ModelConfig  ModelConfig  `json:"model_config"`
	ScorerConfig ScorerConfig `json:"scorer_config"`
	Timestamp    time.Time    `json:"timestamp"`
}
