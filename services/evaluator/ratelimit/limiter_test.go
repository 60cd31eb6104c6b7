// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid minute-only", Config{RequestsPerMinute: 60}, false},
		{"valid with burst", Config{RequestsPerMinute: 60, BurstSize: 5}, false},
		{"valid with second ceiling", Config{RequestsPerMinute: 600, RequestsPerSecond: 2}, false},
		{"zero rpm invalid", Config{}, true},
		{"negative rpm invalid", Config{RequestsPerMinute: -1}, true},
		{"negative rps invalid", Config{RequestsPerMinute: 60, RequestsPerSecond: -1}, true},
		{"negative burst invalid", Config{RequestsPerMinute: 60, BurstSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_RefillRate_MoreRestrictiveWins(t *testing.T) {
	// 6000 rpm = 0.1 tokens/ms; 1 rps = 0.001 tokens/ms. Second wins.
	cfg := Config{RequestsPerMinute: 6000, RequestsPerSecond: 1}
	assert.InDelta(t, 0.001, cfg.refillRatePerMs(), 1e-9)

	// 60 rpm = 0.001 tokens/ms; 100 rps = 0.1 tokens/ms. Minute wins.
	cfg = Config{RequestsPerMinute: 60, RequestsPerSecond: 100}
	assert.InDelta(t, 0.001, cfg.refillRatePerMs(), 1e-9)
}

func TestConfig_BurstDefaultsToPerMinute(t *testing.T) {
	cfg := Config{RequestsPerMinute: 120}
	assert.Equal(t, 120.0, cfg.maxTokens())

	cfg.BurstSize = 7
	assert.Equal(t, 7.0, cfg.maxTokens())
}

func TestTokenBucket_BurstThenWait(t *testing.T) {
	// 60 rpm with a burst of 5: the first 5 acquisitions resolve
	// immediately, the 6th waits roughly one second.
	limiter, err := New(Config{RequestsPerMinute: 60, BurstSize: 5})
	require.NoError(t, err)

	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Acquire(ctx))
	}
	burstElapsed := time.Since(start)
	assert.Less(t, burstElapsed, 200*time.Millisecond, "burst should be immediate")

	start = time.Now()
	require.NoError(t, limiter.Acquire(ctx))
	waited := time.Since(start)
	assert.Greater(t, waited, 700*time.Millisecond, "6th acquire should wait for refill")
	assert.Less(t, waited, 2*time.Second, "6th acquire should not wait much beyond one token")
}

func TestTokenBucket_FIFOOrder(t *testing.T) {
	// Drain the single-token bucket, then queue three waiters and
	// check they are granted in arrival order.
	limiter, err := New(Config{RequestsPerMinute: 6000, RequestsPerSecond: 100, BurstSize: 1})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, limiter.Acquire(ctx))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			require.NoError(t, limiter.Acquire(ctx))
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		}(i)
		// Give each goroutine time to enqueue before the next arrives.
		time.Sleep(20 * time.Millisecond)
	}

	wg.Wait()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestTokenBucket_AcquireHonorsCancellation(t *testing.T) {
	limiter, err := New(Config{RequestsPerMinute: 60, BurstSize: 1})
	require.NoError(t, err)

	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = limiter.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucket_RefillCapsAtBurst(t *testing.T) {
	limiter, err := New(Config{RequestsPerMinute: 60000, BurstSize: 3})
	require.NoError(t, err)

	// Even after waiting well past the refill of 3 tokens, only 3 are
	// available.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, limiter.Available())
}

func TestNoop_AdmitsImmediately(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		require.NoError(t, Noop.Acquire(ctx))
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, Noop.Acquire(cancelled))
}

func TestPresetFor(t *testing.T) {
	assert.Equal(t, 500.0, PresetFor("openai").RequestsPerMinute)
	assert.Equal(t, 300.0, PresetFor("Anthropic").RequestsPerMinute)
	assert.Equal(t, 10000.0, PresetFor("ollama").RequestsPerMinute)

	// Unknown providers fall back to the conservative default.
	assert.Equal(t, 60.0, PresetFor("mystery").RequestsPerMinute)
}
