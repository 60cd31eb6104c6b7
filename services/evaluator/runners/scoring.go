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
	"fmt"
	"strings"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
)

// Scoring strategies shared by the built-in runners.
const (
	StrategyExactMatch = "exact_match"
	StrategyContains   = "contains"
)

// scoreOutput applies the configured scoring strategy to a model
// output.
//
// Matching is case-insensitive on trimmed text unless the scorer sets
// params.case_sensitive. The pass threshold defaults to 1.0, so with
// the binary strategies only a full match passes.
func scoreOutput(
	tc datatypes.TestCase,
	result datatypes.ExecutionResult,
	scorer datatypes.ScorerConfig,
) (datatypes.Score, error) {
	strategy := scorer.Strategy
	if strategy == "" {
		strategy = StrategyExactMatch
	}

	actual := normalizeText(result.Output, scorer)
	expected := normalizeText(tc.Expected, scorer)

	var value float64
	switch strategy {
	case StrategyExactMatch:
		if actual == expected {
			value = 1
		}
	case StrategyContains:
		if expected != "" && strings.Contains(actual, expected) {
			value = 1
		}
	default:
		return datatypes.Score{}, fmt.Errorf("unknown scoring strategy %q", strategy)
	}

	threshold := scorer.Threshold
	if threshold <= 0 {
		threshold = 1
	}

	tokens := result.Tokens
	return datatypes.Score{
		TestCaseID: tc.ID,
		Value:      value,
		Passed:     value >= threshold,
		Actual:     result.Output,
		Expected:   tc.Expected,
		LatencyMs:  result.LatencyMs,
		Tokens:     &tokens,
		Cost:       result.Cost,
	}, nil
}

// normalizeText trims whitespace and, unless the scorer opts into
// case sensitivity, lowercases.
func normalizeText(s string, scorer datatypes.ScorerConfig) string {
	s = strings.TrimSpace(s)
	if caseSensitive, _ := scorer.Params["case_sensitive"].(bool); !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}
