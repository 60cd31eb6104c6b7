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
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
)

// openaiSecretPath is where the container runtime mounts the API key
// when it is provided as a secret instead of an environment variable.
const openaiSecretPath = "/run/secrets/openai_api_key"

// defaultSystemPrompt is used when a job does not override it via
// model params.
const defaultSystemPrompt = "You are a helpful assistant. Answer concisely."

// openaiPricing maps model name prefixes to USD cost per 1K tokens.
// Longest prefix wins. Unlisted models report zero cost rather than a
// guess.
var openaiPricing = map[string]struct{ input, output float64 }{
	"gpt-4o-mini": {0.00015, 0.0006},
	"gpt-4o":      {0.0025, 0.01},
	"gpt-4.1":     {0.002, 0.008},
	"o3-mini":     {0.0011, 0.0044},
}

// OpenAIRunner executes test cases against the OpenAI chat completions
// API.
type OpenAIRunner struct {
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAIRunner creates a runner, resolving the API key from the
// argument, the OPENAI_API_KEY environment variable, or the container
// secret path, in that order.
func NewOpenAIRunner(apiKey string, logger *slog.Logger) (*OpenAIRunner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		keyBytes, err := os.ReadFile(openaiSecretPath)
		if err != nil {
			return nil, fmt.Errorf("OPENAI_API_KEY not set and secret not found at %s", openaiSecretPath)
		}
		apiKey = strings.TrimSpace(string(keyBytes))
		logger.Info("read OpenAI API key from container secret")
	}
	return &OpenAIRunner{
		client: openai.NewClient(apiKey),
		logger: logger,
	}, nil
}

// Execute performs one chat completion for the test case.
func (r *OpenAIRunner) Execute(
	ctx context.Context,
	tc datatypes.TestCase,
	model datatypes.ModelConfig,
) (datatypes.ExecutionResult, error) {
	systemPrompt := defaultSystemPrompt
	if p, ok := model.Params["system_prompt"].(string); ok && p != "" {
		systemPrompt = p
	}

	req := openai.ChatCompletionRequest{
		Model: model.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: tc.Input},
		},
		Temperature: model.Temperature,
	}
	if model.MaxTokens > 0 {
		req.MaxCompletionTokens = model.MaxTokens
	}

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, req)
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		return datatypes.ExecutionResult{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return datatypes.ExecutionResult{}, fmt.Errorf("OpenAI returned no choices")
	}

	tokens := datatypes.TokenUsage{
		Input:  resp.Usage.PromptTokens,
		Output: resp.Usage.CompletionTokens,
		Total:  resp.Usage.TotalTokens,
	}
	r.logger.Debug("openai completion finished",
		"test_case", tc.ID,
		"model", model.Model,
		"latency_ms", latencyMs,
		"tokens", tokens.Total)

	return datatypes.ExecutionResult{
		Output:    resp.Choices[0].Message.Content,
		LatencyMs: latencyMs,
		Tokens:    tokens,
		Cost:      estimateOpenAICost(model.Model, tokens),
		Success:   true,
	}, nil
}

// ScoreResult scores the output with the shared strategies.
func (r *OpenAIRunner) ScoreResult(
	tc datatypes.TestCase,
	result datatypes.ExecutionResult,
	scorer datatypes.ScorerConfig,
) (datatypes.Score, error) {
	return scoreOutput(tc, result, scorer)
}

// estimateOpenAICost prices a completion by the longest matching model
// prefix.
func estimateOpenAICost(model string, usage datatypes.TokenUsage) float64 {
	var bestPrefix string
	for prefix := range openaiPricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
		}
	}
	if bestPrefix == "" {
		return 0
	}
	rates := openaiPricing[bestPrefix]
	return float64(usage.Input)/1000*rates.input + float64(usage.Output)/1000*rates.output
}
