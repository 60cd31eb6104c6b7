// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package execution runs test cases against a model: a per-case
// timeout/retry wrapper, and a bounded worker pool that drives many
// cases concurrently under rate-limiter admission.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
)

// Runner supplies the two capabilities the wrapper composes: invoking
// the model for one test case and scoring the invocation's output.
//
// Concrete runners live in the runners package; tests inject fakes.
type Runner interface {
	// Execute performs one model invocation attempt for the test case.
	Execute(ctx context.Context, tc datatypes.TestCase, model datatypes.ModelConfig) (datatypes.ExecutionResult, error)

	// ScoreResult scores a successful invocation against the test
	// case's expectation.
	ScoreResult(tc datatypes.TestCase, result datatypes.ExecutionResult, scorer datatypes.ScorerConfig) (datatypes.Score, error)
}

// CaseOptions configures the per-test-case wrapper.
type CaseOptions struct {
	// Timeout is the deadline for a single invocation attempt.
	// Default: 60s
	Timeout time.Duration

	// MaxAttempts is the number of invocation attempts (including the
	// first). Default: 2
	MaxAttempts int

	// RetryDelay is the fixed wait between attempts. Unlike the pool's
	// outer retry layer this delay does not grow. Default: 1s
	RetryDelay time.Duration

	// Logger for attempt-level diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// withDefaults fills unset options.
func (o CaseOptions) withDefaults() CaseOptions {
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 2
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// execOutcome carries one attempt's result across the timeout race.
type execOutcome struct {
	result datatypes.ExecutionResult
	err    error
}

// RunCase executes and scores one test case.
//
// Each attempt races the runner's Execute call against the configured
// timeout; the timeout always wins when exceeded. Timeouts are not
// retried. Other failures are retried after a fixed delay until
// MaxAttempts is spent.
//
// RunCase never fails to its caller: exhausted attempts are folded
// into a failing Score with code EXECUTION_FAILED, so every test case
// yields exactly one RunResult.
func RunCase(
	ctx context.Context,
	runner Runner,
	tc datatypes.TestCase,
	model datatypes.ModelConfig,
	scorer datatypes.ScorerConfig,
	opts CaseOptions,
) datatypes.RunResult {
	opts = opts.withDefaults()
	logger := opts.Logger

	var lastErr error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result, err := runAttempt(ctx, runner, tc, model, opts.Timeout)
		if err == nil && result.Success {
			score := scoreResult(runner, tc, result, scorer, logger)
			return buildRunResult(tc, score, model, scorer)
		}

		if err == nil {
			err = fmt.Errorf("execution reported failure: %s", result.Error)
		}
		lastErr = err

		if isTimeout(err) {
			// A timed-out case is reported immediately.
			logger.Warn("test case timed out, not retrying",
				"test_case", tc.ID,
				"attempt", attempt,
				"timeout_ms", opts.Timeout.Milliseconds())
			break
		}
		if ctx.Err() != nil {
			break
		}

		if attempt < opts.MaxAttempts {
			logger.Warn("test case attempt failed, retrying",
				"test_case", tc.ID,
				"attempt", attempt,
				"max_attempts", opts.MaxAttempts,
				"error", err.Error())

			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(opts.RetryDelay):
				continue
			}
			break
		}
	}

	score := failingScore(tc, lastErr)
	return buildRunResult(tc, score, model, scorer)
}

// runAttempt races one Execute call against the attempt deadline.
//
// The runner receives a context carrying the deadline so a cooperative
// implementation can abandon its work; a non-cooperative one keeps
// running in the background and its eventual result is discarded.
func runAttempt(
	ctx context.Context,
	runner Runner,
	tc datatypes.TestCase,
	model datatypes.ModelConfig,
	timeout time.Duration,
) (datatypes.ExecutionResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := make(chan execOutcome, 1)
	go func() {
		result, err := runner.Execute(attemptCtx, tc, model)
		outcome <- execOutcome{result: result, err: err}
	}()

	select {
	case out := <-outcome:
		if out.err != nil {
			return datatypes.ExecutionResult{}, out.err
		}
		return out.result, nil
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			// Parent cancelled, not a per-case deadline.
			return datatypes.ExecutionResult{}, ctx.Err()
		}
		return datatypes.ExecutionResult{}, timeoutErr(timeout.Milliseconds())
	}
}

// scoreResult applies the runner's scoring capability, folding scorer
// failures into a failing Score rather than surfacing them.
func scoreResult(
	runner Runner,
	tc datatypes.TestCase,
	result datatypes.ExecutionResult,
	scorer datatypes.ScorerConfig,
	logger *slog.Logger,
) datatypes.Score {
	score, err := runner.ScoreResult(tc, result, scorer)
	if err != nil {
		logger.Error("scoring failed", "test_case", tc.ID, "error", err)
		return failingScore(tc, fmt.Errorf("scoring failed: %w", err))
	}
	if score.TestCaseID == "" {
		score.TestCaseID = tc.ID
	}
	return score
}

// failingScore folds an execution failure into the Score shape: one
// bad test case never aborts a run.
func failingScore(tc datatypes.TestCase, err error) datatypes.Score {
	msg := ErrRetryExhausted.Error()
	if err != nil {
		msg = err.Error()
	}
	return datatypes.Score{
		TestCaseID: tc.ID,
		Value:      0,
		Passed:     false,
		Expected:   tc.Expected,
		Error: &datatypes.ErrorInfo{
			Code:    datatypes.ErrCodeExecutionFailed,
			Message: msg,
		},
	}
}

// buildRunResult assembles the unit the metrics aggregator consumes.
func buildRunResult(
	tc datatypes.TestCase,
	score datatypes.Score,
	model datatypes.ModelConfig,
	scorer datatypes.ScorerConfig,
) datatypes.RunResult {
	return datatypes.RunResult{
		TestCase:     tc,
		Score:        score,
		ModelConfig:  model,
		ScorerConfig: scorer,
		Timestamp:    time.Now(),
	}
}
