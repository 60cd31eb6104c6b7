// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package jobs queues and drives evaluation runs: a FIFO job queue, a
// per-job lifecycle state machine, and completion notification.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AleutianAI/evalbench/services/evaluator/datasets"
	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
	"github.com/AleutianAI/evalbench/services/evaluator/execution"
	"github.com/AleutianAI/evalbench/services/evaluator/metrics"
	"github.com/AleutianAI/evalbench/services/evaluator/ratelimit"
	"github.com/AleutianAI/evalbench/services/evaluator/runners"
)

var (
	// ErrJobNotFound indicates an operation referenced an unknown job ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrWaitTimeout indicates WaitForJob's context expired before the
	// job reached a terminal status.
	ErrWaitTimeout = errors.New("wait for job timed out")

	// ErrJobFailed is returned by WaitForJob when the job ended failed;
	// it wraps the job's error message.
	ErrJobFailed = errors.New("job failed")

	// ErrJobCancelled is returned by WaitForJob when the job was
	// cancelled before completing.
	ErrJobCancelled = errors.New("job cancelled")
)

// jobValidate checks job configs on submission.
var jobValidate = validator.New()

// ReportStore persists finished-job reports.
type ReportStore interface {
	SaveReport(ctx context.Context, report *datatypes.Report) error
}

// Observer receives lifecycle events for metrics export. All methods
// must be cheap and non-blocking.
type Observer interface {
	JobEnqueued()
	JobStarted()
	JobFinished(status datatypes.JobStatus, duration time.Duration)
	CaseCompleted(passed bool, latencyMs int64)
}

// Callback signatures for per-job subscriptions. Callbacks receive a
// clone of the job; mutating it has no effect on the orchestrator.
type (
	ProgressCallback func(job *datatypes.EvalJob, completed, total int)
	CompleteCallback func(job *datatypes.EvalJob, report *datatypes.Report)
	ErrorCallback    func(job *datatypes.EvalJob, errInfo datatypes.ErrorInfo)
)

// Config tunes the orchestrator.
type Config struct {
	// MaxConcurrentJobs caps jobs running simultaneously; further jobs
	// wait in the FIFO queue. Default: 1
	MaxConcurrentJobs int

	// Retry is the outer per-test-case retry policy applied to every
	// job. Zero value: 3 attempts, 1s base delay, 2x backoff.
	Retry execution.RetryPolicy
}

// withDefaults fills unset config fields.
func (c Config) withDefaults() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 1
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = execution.RetryPolicy{
			MaxAttempts:       3,
			Delay:             time.Second,
			BackoffMultiplier: 2,
		}
	}
	return c
}

// Deps are the orchestrator's collaborators, injected at construction.
type Deps struct {
	// Datasets resolves a job's DatasetID to test cases. Required.
	Datasets datasets.Loader

	// Runners maps a job's AgentType to a runner. Required.
	Runners *runners.Registry

	// Reports persists finished-job reports. Optional; without it
	// reports are available only through completion callbacks.
	Reports ReportStore

	// Observer exports lifecycle metrics. Optional.
	Observer Observer

	// Logger for orchestrator diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// jobState is the orchestrator's internal record for one job.
type jobState struct {
	job    *datatypes.EvalJob
	cases  []datatypes.TestCase
	cancel context.CancelFunc
	report *datatypes.Report

	// finalizing marks a job whose results are being persisted;
	// cancellation is refused past this point.
	finalizing bool

	onProgress []ProgressCallback
	onComplete []CompleteCallback
	onError    []ErrorCallback
}

// Orchestrator owns the evaluation job lifecycle.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Job snapshots
// returned to callers are clones; the orchestrator's own copies are
// mutated only under its mutex.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*jobState
	queue   []string
	running int
}

// NewOrchestrator wires an orchestrator from its dependencies.
func NewOrchestrator(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Datasets == nil {
		return nil, errors.New("orchestrator requires a dataset loader")
	}
	if deps.Runners == nil {
		return nil, errors.New("orchestrator requires a runner registry")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		logger: deps.Logger,
		jobs:   map[string]*jobState{},
	}, nil
}

// CreateJob validates the config, resolves the dataset, and enqueues a
// pending job. The call returns as soon as the job is queued; execution
// happens on the orchestrator's own goroutines.
func (o *Orchestrator) CreateJob(ctx context.Context, cfg datatypes.JobConfig) (*datatypes.EvalJob, error) {
	if err := jobValidate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid job config: %w", err)
	}

	ds, err := o.deps.Datasets.Load(ctx, cfg.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	job := &datatypes.EvalJob{
		ID:             uuid.NewString(),
		Config:         cfg,
		Status:         datatypes.JobPending,
		TotalTestCases: len(ds.TestCases),
		CreatedAt:      time.Now(),
	}

	o.mu.Lock()
	o.jobs[job.ID] = &jobState{job: job, cases: ds.TestCases}
	o.queue = append(o.queue, job.ID)
	o.mu.Unlock()

	o.logger.Info("job created",
		"job_id", job.ID,
		"dataset", cfg.DatasetID,
		"agent_type", cfg.AgentType,
		"test_cases", job.TotalTestCases)
	if o.deps.Observer != nil {
		o.deps.Observer.JobEnqueued()
	}

	o.processQueue()
	return job.Clone(), nil
}

// processQueue starts queued jobs while capacity remains. Jobs start
// strictly in submission order; cancelled entries are skipped.
func (o *Orchestrator) processQueue() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for o.running < o.cfg.MaxConcurrentJobs && len(o.queue) > 0 {
		id := o.queue[0]
		o.queue = o.queue[1:]

		state, ok := o.jobs[id]
		if !ok || state.job.Status != datatypes.JobPending {
			continue
		}

		now := time.Now()
		state.job.Status = datatypes.JobRunning
		state.job.StartedAt = &now

		jobCtx, cancel := context.WithCancel(context.Background())
		state.cancel = cancel
		o.running++

		go o.runJob(jobCtx, state)
	}
}

// runJob drives one job to a terminal status and then lets the next
// queued job start.
func (o *Orchestrator) runJob(ctx context.Context, state *jobState) {
	defer func() {
		o.mu.Lock()
		o.running--
		o.mu.Unlock()
		o.processQueue()
	}()

	job := state.job
	cfg := job.Config
	o.logger.Info("job started", "job_id", job.ID, "name", cfg.Name)
	if o.deps.Observer != nil {
		o.deps.Observer.JobStarted()
	}

	runner, err := o.deps.Runners.Create(cfg.AgentType)
	if err != nil {
		o.failJob(state, err)
		return
	}

	limiter, err := ratelimit.ForProvider(cfg.ModelConfig.Provider)
	if err != nil {
		o.failJob(state, fmt.Errorf("build rate limiter: %w", err))
		return
	}

	pool := execution.NewPool(runner, cfg.ModelConfig, cfg.ScorerConfig, execution.PoolConfig{
		Concurrency: cfg.Concurrency,
		Limiter:     limiter,
		Retry:       o.cfg.Retry,
		Case: execution.CaseOptions{
			Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
			Logger:  o.logger,
		},
		OnProgress: func(completed, total int, current datatypes.TestCase) {
			o.recordProgress(state, completed, total, current)
		},
		Logger: o.logger,
	})

	results := pool.Run(ctx, state.cases)

	// A cancel that landed while the pool was draining wins; its
	// results are discarded.
	o.mu.Lock()
	cancelled := job.Status == datatypes.JobCancelled
	o.mu.Unlock()
	if cancelled || ctx.Err() != nil {
		o.logger.Info("job cancelled, discarding results", "job_id", job.ID)
		return
	}

	o.completeJob(state, results)
}

// recordProgress folds a pool progress event into the job and notifies
// subscribers.
func (o *Orchestrator) recordProgress(state *jobState, completed, total int, current datatypes.TestCase) {
	o.mu.Lock()
	job := state.job
	if job.Status != datatypes.JobRunning {
		o.mu.Unlock()
		return
	}
	job.Progress = float64(completed) / float64(total)
	job.CurrentTestCase = current.ID
	snapshot := job.Clone()
	callbacks := append([]ProgressCallback(nil), state.onProgress...)
	o.mu.Unlock()

	for _, cb := range callbacks {
		cb(snapshot, completed, total)
	}
}

// completeJob aggregates results, persists the report, and transitions
// the job to completed.
func (o *Orchestrator) completeJob(state *jobState, results []datatypes.RunResult) {
	job := state.job
	m := metrics.Calculate(results)
	if o.deps.Observer != nil {
		for _, r := range results {
			o.deps.Observer.CaseCompleted(r.Score.Passed, r.Score.LatencyMs)
		}
	}

	report := &datatypes.Report{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		JobName:   job.Config.Name,
		DatasetID: job.Config.DatasetID,
		Model:     job.Config.ModelConfig,
		Scorer:    job.Config.ScorerConfig,
		Metrics:   m,
		Results:   results,
		CreatedAt: time.Now(),
	}

	// Claim the completion before persisting so a cancel landing now
	// cannot strand a stored report for a cancelled job.
	o.mu.Lock()
	if !job.Status.CanTransition(datatypes.JobCompleted) {
		o.mu.Unlock()
		return
	}
	state.finalizing = true
	o.mu.Unlock()

	if o.deps.Reports != nil {
		if err := o.deps.Reports.SaveReport(context.Background(), report); err != nil {
			o.failJob(state, fmt.Errorf("persist report: %w", err))
			return
		}
	}

	o.mu.Lock()
	now := time.Now()
	job.Status = datatypes.JobCompleted
	job.Progress = 1
	job.CurrentTestCase = ""
	job.CompletedAt = &now
	job.ReportID = report.ID
	state.report = report
	snapshot := job.Clone()
	callbacks := state.onComplete
	o.releaseCallbacksLocked(state)
	o.mu.Unlock()

	o.logger.Info("job completed",
		"job_id", job.ID,
		"report_id", report.ID,
		"pass_rate", m.PassRate,
		"total_tests", m.TotalTests)
	o.observeFinished(snapshot)

	for _, cb := range callbacks {
		cb(snapshot, report)
	}
}

// failJob transitions the job to failed with a JOB_EXECUTION_FAILED
// error and notifies subscribers.
func (o *Orchestrator) failJob(state *jobState, cause error) {
	o.mu.Lock()
	job := state.job
	if !job.Status.CanTransition(datatypes.JobFailed) {
		o.mu.Unlock()
		return
	}
	now := time.Now()
	job.Status = datatypes.JobFailed
	job.CompletedAt = &now
	job.Error = &datatypes.ErrorInfo{
		Code:    datatypes.ErrCodeJobExecutionFailed,
		Message: cause.Error(),
	}
	errInfo := *job.Error
	snapshot := job.Clone()
	callbacks := state.onError
	o.releaseCallbacksLocked(state)
	o.mu.Unlock()

	o.logger.Error("job failed", "job_id", job.ID, "error", cause)
	o.observeFinished(snapshot)

	for _, cb := range callbacks {
		cb(snapshot, errInfo)
	}
}

// CancelJob cancels a pending or running job. Returns false when the
// job does not exist or is already terminal.
func (o *Orchestrator) CancelJob(jobID string) bool {
	o.mu.Lock()
	state, ok := o.jobs[jobID]
	if !ok || state.job.Status.IsTerminal() || state.finalizing {
		o.mu.Unlock()
		return false
	}

	job := state.job
	wasPending := job.Status == datatypes.JobPending
	now := time.Now()
	job.Status = datatypes.JobCancelled
	job.CompletedAt = &now

	if wasPending {
		o.removeFromQueueLocked(jobID)
	}
	cancel := state.cancel
	snapshot := job.Clone()
	o.releaseCallbacksLocked(state)
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.logger.Info("job cancelled", "job_id", jobID, "was_pending", wasPending)
	o.observeFinished(snapshot)

	// A cancelled pending job never occupied a slot; a running one
	// frees its slot when runJob unwinds.
	if wasPending {
		o.processQueue()
	}
	return true
}

// removeFromQueueLocked drops a job ID from the pending queue. Caller
// holds the mutex.
func (o *Orchestrator) removeFromQueueLocked(jobID string) {
	for i, id := range o.queue {
		if id == jobID {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			return
		}
	}
}

// observeFinished reports a terminal transition to the observer.
func (o *Orchestrator) observeFinished(job *datatypes.EvalJob) {
	if o.deps.Observer == nil {
		return
	}
	var duration time.Duration
	if job.StartedAt != nil && job.CompletedAt != nil {
		duration = job.CompletedAt.Sub(*job.StartedAt)
	}
	o.deps.Observer.JobFinished(job.Status, duration)
}

// GetJob returns a snapshot of the job, or false when unknown.
func (o *Orchestrator) GetJob(jobID string) (*datatypes.EvalJob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.jobs[jobID]
	if !ok {
		return nil, false
	}
	return state.job.Clone(), true
}

// GetReport returns the report of a completed job, or false when the
// job is unknown or has no report yet.
func (o *Orchestrator) GetReport(jobID string) (*datatypes.Report, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.jobs[jobID]
	if !ok || state.report == nil {
		return nil, false
	}
	return state.report, true
}

// GetAllJobs returns snapshots of every known job, oldest first.
func (o *Orchestrator) GetAllJobs() []*datatypes.EvalJob {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*datatypes.EvalJob, 0, len(o.jobs))
	for _, state := range o.jobs {
		out = append(out, state.job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetJobsByStatus returns snapshots of jobs in the given status,
// oldest first.
func (o *Orchestrator) GetJobsByStatus(status datatypes.JobStatus) []*datatypes.EvalJob {
	all := o.GetAllJobs()
	out := all[:0]
	for _, j := range all {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out
}

// ClearCompletedJobs removes terminal jobs from the registry and
// returns how many were dropped.
func (o *Orchestrator) ClearCompletedJobs() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	removed := 0
	for id, state := range o.jobs {
		if state.job.Status.IsTerminal() {
			delete(o.jobs, id)
			removed++
		}
	}
	return removed
}

// GetQueueStatus summarizes the registry by job status.
func (o *Orchestrator) GetQueueStatus() datatypes.QueueStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	var qs datatypes.QueueStatus
	for _, state := range o.jobs {
		switch state.job.Status {
		case datatypes.JobPending:
			qs.Pending++
		case datatypes.JobRunning:
			qs.Running++
		case datatypes.JobCompleted:
			qs.Completed++
		case datatypes.JobFailed:
			qs.Failed++
		case datatypes.JobCancelled:
			qs.Cancelled++
		}
		qs.Total++
	}
	return qs
}

// WaitForJob blocks until the job reaches a terminal status, polling at
// the given interval. A non-positive interval defaults to 100ms.
// Completed jobs return a nil error; failed jobs return ErrJobFailed
// wrapping the job's error message and cancelled jobs ErrJobCancelled,
// each alongside the final snapshot.
func (o *Orchestrator) WaitForJob(ctx context.Context, jobID string, pollInterval time.Duration) (*datatypes.EvalJob, error) {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, ok := o.GetJob(jobID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		if job.Status.IsTerminal() {
			return job, terminalErr(job)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrWaitTimeout, jobID)
		case <-ticker.C:
		}
	}
}

// terminalErr maps a terminal job to WaitForJob's error return.
func terminalErr(job *datatypes.EvalJob) error {
	switch job.Status {
	case datatypes.JobFailed:
		if job.Error != nil {
			return fmt.Errorf("%w: %s", ErrJobFailed, job.Error.Message)
		}
		return fmt.Errorf("%w: %s", ErrJobFailed, job.ID)
	case datatypes.JobCancelled:
		return fmt.Errorf("%w: %s", ErrJobCancelled, job.ID)
	default:
		return nil
	}
}

// OnJobProgress subscribes to progress events for a job. Subscriptions
// on unknown or terminal jobs are ignored.
func (o *Orchestrator) OnJobProgress(jobID string, cb ProgressCallback) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.jobs[jobID]; ok && !state.job.Status.IsTerminal() {
		state.onProgress = append(state.onProgress, cb)
	}
}

// OnJobComplete subscribes to the job's completion. A job already
// completed fires the callback immediately.
func (o *Orchestrator) OnJobComplete(jobID string, cb CompleteCallback) {
	o.mu.Lock()
	state, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return
	}
	if state.job.Status == datatypes.JobCompleted {
		snapshot := state.job.Clone()
		report := state.report
		o.mu.Unlock()
		cb(snapshot, report)
		return
	}
	if !state.job.Status.IsTerminal() {
		state.onComplete = append(state.onComplete, cb)
	}
	o.mu.Unlock()
}

// OnJobError subscribes to the job's failure. A job already failed
// fires the callback immediately.
func (o *Orchestrator) OnJobError(jobID string, cb ErrorCallback) {
	o.mu.Lock()
	state, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return
	}
	if state.job.Status == datatypes.JobFailed && state.job.Error != nil {
		snapshot := state.job.Clone()
		errInfo := *state.job.Error
		o.mu.Unlock()
		cb(snapshot, errInfo)
		return
	}
	if !state.job.Status.IsTerminal() {
		state.onError = append(state.onError, cb)
	}
	o.mu.Unlock()
}

// releaseCallbacksLocked drops all subscriptions once a job is
// terminal so subscriber closures do not outlive the run. Caller holds
// the mutex.
func (o *Orchestrator) releaseCallbacksLocked(state *jobState) {
	state.onProgress = nil
	state.onComplete = nil
	state.onError = nil
}
