// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ratelimit implements token-bucket admission control for
// outbound model calls.
//
// A bucket holds up to BurstSize tokens and refills at a constant rate
// derived from the configured requests-per-minute (and optionally
// requests-per-second) ceiling. Acquire consumes one token, waiting in
// FIFO order when the bucket is empty. The aggregate call rate of all
// goroutines sharing one limiter therefore converges to the configured
// ceiling regardless of local parallelism.
//
// One limiter instance is scoped to a single running job's worker pool.
//
// # Thread Safety
//
// All limiter types are safe for concurrent use.
package ratelimit

import (
	"container/list"
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Config bounds the rate of outbound calls.
type Config struct {
	// RequestsPerMinute is the sustained per-minute ceiling. Required.
	RequestsPerMinute float64 `json:"requests_per_minute" yaml:"requests_per_minute" validate:"gt=0"`

	// RequestsPerSecond optionally adds a per-second ceiling.
	// When both are set the more restrictive bound wins.
	// Default: 0 (unset)
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`

	// BurstSize is the bucket capacity: how many calls may be admitted
	// immediately when tokens have accumulated.
	// Default: RequestsPerMinute
	BurstSize float64 `json:"burst_size,omitempty" yaml:"burst_size,omitempty"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests_per_minute must be positive, got %v", c.RequestsPerMinute)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative, got %v", c.RequestsPerSecond)
	}
	if c.BurstSize < 0 {
		return fmt.Errorf("burst_size must not be negative, got %v", c.BurstSize)
	}
	return nil
}

// refillRatePerMs resolves the refill rate in tokens per millisecond.
// When both per-minute and per-second ceilings are set, the more
// restrictive (slower) one wins.
func (c Config) refillRatePerMs() float64 {
	rate := c.RequestsPerMinute / 60000.0
	if c.RequestsPerSecond > 0 {
		perSecond := c.RequestsPerSecond / 1000.0
		rate = math.Min(rate, perSecond)
	}
	return rate
}

// maxTokens resolves the bucket capacity.
func (c Config) maxTokens() float64 {
	if c.BurstSize > 0 {
		return c.BurstSize
	}
	return c.RequestsPerMinute
}

// Limiter grants admission for one outbound call at a time.
type Limiter interface {
	// Acquire blocks until a token is granted or ctx is done.
	// It never fails for rate reasons, only delays; the sole error
	// condition is context cancellation while waiting.
	Acquire(ctx context.Context) error
}

// Noop is a limiter that admits every call immediately.
//
// Used when a worker pool is configured without rate limiting.
var Noop Limiter = noopLimiter{}

type noopLimiter struct{}

func (noopLimiter) Acquire(ctx context.Context) error {
	return ctx.Err()
}

// TokenBucket is the standard Limiter implementation.
type TokenBucket struct {
	mu sync.Mutex

	tokens      float64
	maxTokens   float64
	refillPerMs float64
	lastRefill  time.Time

	// waiters holds one element per blocked Acquire, FIFO.
	// Elements are chan struct{} closed on grant.
	waiters *list.List

	// pump is the pending wakeup for the next whole token, nil when
	// no waiter is queued.
	pump *time.Timer
}

// New creates a TokenBucket from cfg. The bucket starts full, so the
// first BurstSize acquisitions are admitted immediately.
func New(cfg Config) (*TokenBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limiter config: %w", err)
	}
	return &TokenBucket{
		tokens:      cfg.maxTokens(),
		maxTokens:   cfg.maxTokens(),
		refillPerMs: cfg.refillRatePerMs(),
		lastRefill:  time.Now(),
		waiters:     list.New(),
	}, nil
}

// Acquire blocks until one token is granted.
//
// Grants are strictly FIFO: a caller that arrives while others are
// queued waits behind them even if a token is available by the time it
// arrives. Returns ctx.Err() if the context is done before a token is
// granted; a token granted in the same instant as cancellation is kept
// and nil is returned.
func (b *TokenBucket) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	b.refillLocked()

	// Fast path: no queue and a whole token available.
	if b.waiters.Len() == 0 && b.tokens >= 1 {
		b.tokens--
		b.mu.Unlock()
		return nil
	}

	grant := make(chan struct{})
	elem := b.waiters.PushBack(grant)
	b.scheduleLocked()
	b.mu.Unlock()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
		b.mu.Lock()
		select {
		case <-grant:
			// Granted concurrently with cancellation: keep the token.
			b.mu.Unlock()
			return nil
		default:
		}
		b.waiters.Remove(elem)
		b.mu.Unlock()
		return ctx.Err()
	}
}

// refillLocked tops the bucket up from elapsed wall time.
// Caller must hold b.mu.
func (b *TokenBucket) refillLocked() {
	now := time.Now()
	elapsedMs := float64(now.Sub(b.lastRefill)) / float64(time.Millisecond)
	if elapsedMs > 0 {
		b.tokens = math.Min(b.maxTokens, b.tokens+elapsedMs*b.refillPerMs)
		b.lastRefill = now
	}
}

// drainLocked releases queued waiters FIFO while whole tokens remain.
// Caller must hold b.mu.
func (b *TokenBucket) drainLocked() {
	for b.waiters.Len() > 0 && b.tokens >= 1 {
		b.tokens--
		front := b.waiters.Front()
		close(front.Value.(chan struct{}))
		b.waiters.Remove(front)
	}
}

// scheduleLocked arranges the next pump run while waiters are queued.
// Caller must hold b.mu.
func (b *TokenBucket) scheduleLocked() {
	b.drainLocked()
	if b.waiters.Len() == 0 {
		return
	}

	// Estimated time until the next whole token accrues.
	needed := 1 - b.tokens
	if needed < 0 {
		needed = 0
	}
	wait := time.Duration(needed/b.refillPerMs) * time.Millisecond
	if wait < time.Millisecond {
		wait = time.Millisecond
	}

	if b.pump != nil {
		b.pump.Stop()
	}
	b.pump = time.AfterFunc(wait, func() {
		b.mu.Lock()
		b.pump = nil
		b.refillLocked()
		b.scheduleLocked()
		b.mu.Unlock()
	})
}

// Available reports the current whole-token count. Intended for tests
// and status endpoints; the value is stale as soon as it is returned.
func (b *TokenBucket) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return int(b.tokens)
}
