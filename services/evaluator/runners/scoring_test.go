// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runners

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
)

func TestScoreOutput_ExactMatch(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		output   string
		scorer   datatypes.ScorerConfig
		want     float64
		passed   bool
	}{
		{
			name:     "match",
			expected: "Paris",
			output:   "Paris",
			want:     1,
			passed:   true,
		},
		{
			name:     "case and whitespace normalized",
			expected: "Paris",
			output:   "  paris\n",
			want:     1,
			passed:   true,
		},
		{
			name:     "mismatch",
			expected: "Paris",
			output:   "London",
			want:     0,
			passed:   false,
		},
		{
			name:     "case sensitive mismatch",
			expected: "Paris",
			output:   "paris",
			scorer: datatypes.ScorerConfig{
				Params: map[string]any{"case_sensitive": true},
			},
			want:   0,
			passed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := datatypes.TestCase{ID: "tc-1", Input: "q", Expected: tt.expected}
			result := datatypes.ExecutionResult{
				Output:    tt.output,
				LatencyMs: 42,
				Tokens:    datatypes.TokenUsage{Input: 5, Output: 7, Total: 12},
				Cost:      0.001,
				Success:   true,
			}

			score, err := scoreOutput(tc, result, tt.scorer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, score.Value)
			assert.Equal(t, tt.passed, score.Passed)
			assert.Equal(t, "tc-1", score.TestCaseID)
			assert.Equal(t, int64(42), score.LatencyMs)
			require.NotNil(t, score.Tokens)
			assert.Equal(t, 12, score.Tokens.Total)
			assert.Equal(t, 0.001, score.Cost)
		})
	}
}

func TestScoreOutput_Contains(t *testing.T) {
	tc := datatypes.TestCase{ID: "tc-1", Expected: "Paris"}
	scorer := datatypes.ScorerConfig{Strategy: StrategyContains}

	score, err := scoreOutput(tc, datatypes.ExecutionResult{
		Output: "The capital of France is Paris.",
	}, scorer)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Value)
	assert.True(t, score.Passed)

	score, err = scoreOutput(tc, datatypes.ExecutionResult{
		Output: "I do not know.",
	}, scorer)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.Value)
	assert.False(t, score.Passed)
}

func TestScoreOutput_ContainsEmptyExpectedFails(t *testing.T) {
	score, err := scoreOutput(
		datatypes.TestCase{ID: "tc-1"},
		datatypes.ExecutionResult{Output: "anything"},
		datatypes.ScorerConfig{Strategy: StrategyContains},
	)
	require.NoError(t, err)
	assert.False(t, score.Passed)
}

func TestScoreOutput_UnknownStrategy(t *testing.T) {
	_, err := scoreOutput(
		datatypes.TestCase{ID: "tc-1"},
		datatypes.ExecutionResult{},
		datatypes.ScorerConfig{Strategy: "llm_judge"},
	)
	assert.Error(t, err)
}

func TestEstimateOpenAICost(t *testing.T) {
	usage := datatypes.TokenUsage{Input: 1000, Output: 1000}

	// gpt-4o-mini must match its own prefix, not gpt-4o's.
	assert.InDelta(t, 0.00015+0.0006, estimateOpenAICost("gpt-4o-mini", usage), 1e-9)
	assert.InDelta(t, 0.0025+0.01, estimateOpenAICost("gpt-4o", usage), 1e-9)
	assert.Equal(t, 0.0, estimateOpenAICost("unknown-model", usage))
}
