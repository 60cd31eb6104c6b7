// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package execution

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
	"github.com/AleutianAI/evalbench/services/evaluator/ratelimit"
)

// RetryPolicy is the pool's outer retry layer, wrapped around the
// whole per-case wrapper call with exponential backoff:
//
//	delay = Delay · BackoffMultiplier^attempt
//
// This is independent of the wrapper's inner fixed-delay retries.
type RetryPolicy struct {
	// MaxAttempts is the number of wrapper invocations (including the
	// first). Default: 1 (no outer retries)
	MaxAttempts int

	// Delay is the base backoff before the first retry. Default: 1s
	Delay time.Duration

	// BackoffMultiplier grows the delay per attempt. Default: 2.0
	BackoffMultiplier float64
}

// withDefaults fills unset policy fields.
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Delay <= 0 {
		p.Delay = time.Second
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = 2.0
	}
	return p
}

// ProgressFunc observes task completion. completed is the number of
// test cases finished so far (success or failure), total the run size,
// and current the test case that just finished.
type ProgressFunc func(completed, total int, current datatypes.TestCase)

// PoolConfig configures a worker pool for one evaluation run.
type PoolConfig struct {
	// Concurrency caps simultaneous in-flight test cases. Default: 5
	Concurrency int

	// Limiter bounds the aggregate outbound call rate across all
	// workers. Default: ratelimit.Noop
	Limiter ratelimit.Limiter

	// Retry is the outer retry layer. Zero value means a single
	// wrapper call per test case.
	Retry RetryPolicy

	// Case configures the inner per-case wrapper.
	Case CaseOptions

	// OnProgress fires exactly once per test case, in completion
	// order, with a monotonically increasing completed count.
	// Optional.
	OnProgress ProgressFunc

	// Logger for pool-level diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// Pool runs many test cases concurrently against one runner.
//
// # Thread Safety
//
// A Pool is safe for a single Run call at a time; construct one pool
// per evaluation run.
type Pool struct {
	runner Runner
	model  datatypes.ModelConfig
	scorer datatypes.ScorerConfig
	cfg    PoolConfig
}

// NewPool creates a worker pool bound to one runner and configuration.
func NewPool(
	runner Runner,
	model datatypes.ModelConfig,
	scorer datatypes.ScorerConfig,
	cfg PoolConfig,
) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.Noop
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Retry = cfg.Retry.withDefaults()
	return &Pool{
		runner: runner,
		model:  model,
		scorer: scorer,
		cfg:    cfg,
	}
}

// Run executes all test cases and returns one RunResult per case, in
// input order.
//
// At most Concurrency cases are in flight at once; each task waits for
// rate-limiter admission before its first model call. A case whose
// outer retries are exhausted is returned with its failing Score
// rather than dropped, so len(results) == len(cases) and downstream
// metrics keep an accurate denominator.
//
// Cancelling ctx stops admitting new work; cases not yet dispatched
// are completed immediately with a failing Score so the progress
// counter still reaches total.
func (p *Pool) Run(ctx context.Context, cases []datatypes.TestCase) []datatypes.RunResult {
	total := len(cases)
	results := make([]datatypes.RunResult, total)
	if total == 0 {
		return results
	}

	type task struct {
		index int
		tc    datatypes.TestCase
	}

	tasks := make(chan task)
	var wg sync.WaitGroup

	// progressMu serializes the completed count with its callback so
	// observers see a strictly increasing sequence.
	var progressMu sync.Mutex
	completed := 0

	finish := func(index int, tc datatypes.TestCase, result datatypes.RunResult) {
		results[index] = result

		progressMu.Lock()
		completed++
		done := completed
		cb := p.cfg.OnProgress
		if cb != nil {
			cb(done, total, tc)
		}
		progressMu.Unlock()
	}

	for w := 0; w < p.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				finish(t.index, t.tc, p.runOne(ctx, t.tc))
			}
		}()
	}

	for i, tc := range cases {
		tasks <- task{index: i, tc: tc}
	}
	close(tasks)
	wg.Wait()

	p.cfg.Logger.Info("run finished",
		"total", total,
		"model", p.model.Model)
	return results
}

// runOne drives a single test case: limiter admission, then the outer
// retry loop around the per-case wrapper.
func (p *Pool) runOne(ctx context.Context, tc datatypes.TestCase) datatypes.RunResult {
	if err := p.cfg.Limiter.Acquire(ctx); err != nil {
		return buildRunResult(tc, failingScore(tc, err), p.model, p.scorer)
	}

	retry := p.cfg.Retry
	var last datatypes.RunResult

	for attempt := 0; attempt < retry.MaxAttempts; attempt++ {
		last = RunCase(ctx, p.runner, tc, p.model, p.scorer, p.cfg.Case)
		if last.Score.Error == nil {
			return last
		}
		if isTimeoutMessage(last.Score.Error.Message) {
			// Timeouts are reported immediately, never retried.
			return last
		}

		if attempt < retry.MaxAttempts-1 {
			delay := time.Duration(float64(retry.Delay) * math.Pow(retry.BackoffMultiplier, float64(attempt)))
			p.cfg.Logger.Warn("test case failed, backing off",
				"test_case", tc.ID,
				"attempt", attempt+1,
				"max_attempts", retry.MaxAttempts,
				"delay_ms", delay.Milliseconds(),
				"error", last.Score.Error.Message)

			select {
			case <-ctx.Done():
				return last
			case <-time.After(delay):
			}
		}
	}

	p.cfg.Logger.Error("test case exhausted all attempts",
		"test_case", tc.ID,
		"attempts", retry.MaxAttempts,
		"error", last.Score.Error.Message)
	return last
}
