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

// JobStatus is the lifecycle state of an EvalJob.
//
// The state machine is:
//
//	pending → running → {completed | failed | cancelled}
//	pending → cancelled
//
// All other transitions are invalid; completed, failed, and cancelled
// are terminal.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle transition.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobRunning || next == JobCancelled
	case JobRunning:
		return next == JobCompleted || next == JobFailed || next == JobCancelled
	default:
		return false
	}
}

// JobConfig describes what an evaluation job should run.
type JobConfig struct {
	// Name is a human-readable label for the run.
	Name string `json:"name" yaml:"name"`

	// DatasetID selects the dataset to evaluate against.
	DatasetID string `json:"dataset_id" yaml:"dataset_id" validate:"required"`

	// AgentType selects the runner implementation via the registry.
	AgentType string `json:"agent_type" yaml:"agent_type" validate:"required"`

	// ModelConfig identifies the model under test.
	ModelConfig ModelConfig `json:"model_config" yaml:"model_config" validate:"required"`

	// ScorerConfig selects the scoring strategy.
	ScorerConfig ScorerConfig `json:"scorer_config" yaml:"scorer_config" validate:"required"`

	// Concurrency caps simultaneous in-flight test cases for this job.
	// Default: 5.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// TimeoutMs is the per-test-case deadline. Default: 60000.
	TimeoutMs int `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// EvalJob tracks one evaluation run through its lifecycle.
//
// Created by the orchestrator's CreateJob and mutated only by its
// internal job runner, never externally. Progress is monotonically
// non-decreasing while the job is running; TotalTestCases is fixed at
// creation from the dataset and never changes.
type EvalJob struct {
	ID              string     `json:"id"`
	Config          JobConfig  `json:"config"`
	Status          JobStatus  `json:"status"`
	Progress        float64    `json:"progress"`
	TotalTestCases  int        `json:"total_test_cases"`
	CurrentTestCase string     `json:"current_test_case,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ReportID        string     `json:"report_id,omitempty"`
	Error           *ErrorInfo `json:"error,omitempty"`
}

// Clone returns a copy of the job safe to hand to callers while the
// orchestrator keeps mutating the original.
func (j *EvalJob) Clone() *EvalJob {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return &c
}

// QueueStatus summarizes the orchestrator's job registry by status.
type QueueStatus struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}
