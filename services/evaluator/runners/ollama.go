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
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
)

// defaultOllamaHost matches the Ollama server's default bind address.
const defaultOllamaHost = "http://localhost:11434"

// OllamaRunner executes test cases against a local Ollama server.
//
// Local inference carries no per-token billing, so Cost is always zero.
type OllamaRunner struct {
	host   string
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*ollama.LLM
}

// NewOllamaRunner creates a runner for the given server URL. An empty
// host uses the Ollama default.
func NewOllamaRunner(host string, logger *slog.Logger) *OllamaRunner {
	if host == "" {
		host = defaultOllamaHost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaRunner{
		host:    host,
		logger:  logger,
		clients: map[string]*ollama.LLM{},
	}
}

// Execute performs one generation for the test case.
func (r *OllamaRunner) Execute(
	ctx context.Context,
	tc datatypes.TestCase,
	model datatypes.ModelConfig,
) (datatypes.ExecutionResult, error) {
	llm, err := r.clientFor(model.Model)
	if err != nil {
		return datatypes.ExecutionResult{}, err
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, tc.Input),
	}
	if p, ok := model.Params["system_prompt"].(string); ok && p != "" {
		messages = append([]llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeSystem, p),
		}, messages...)
	}

	opts := []llms.CallOption{
		llms.WithTemperature(float64(model.Temperature)),
	}
	if model.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(model.MaxTokens))
	}

	start := time.Now()
	resp, err := llm.GenerateContent(ctx, messages, opts...)
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		return datatypes.ExecutionResult{}, fmt.Errorf("ollama generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return datatypes.ExecutionResult{}, fmt.Errorf("ollama returned no choices")
	}

	choice := resp.Choices[0]
	tokens := datatypes.TokenUsage{
		Input:  generationInfoInt(choice.GenerationInfo, "PromptTokens"),
		Output: generationInfoInt(choice.GenerationInfo, "CompletionTokens"),
	}
	tokens.Total = tokens.Input + tokens.Output

	r.logger.Debug("ollama generation finished",
		"test_case", tc.ID,
		"model", model.Model,
		"latency_ms", latencyMs)

	return datatypes.ExecutionResult{
		Output:    choice.Content,
		LatencyMs: latencyMs,
		Tokens:    tokens,
		Success:   true,
	}, nil
}

// ScoreResult scores the output with the shared strategies.
func (r *OllamaRunner) ScoreResult(
	tc datatypes.TestCase,
	result datatypes.ExecutionResult,
	scorer datatypes.ScorerConfig,
) (datatypes.Score, error) {
	return scoreOutput(tc, result, scorer)
}

// clientFor returns a cached client for the model, building one on
// first use.
func (r *OllamaRunner) clientFor(model string) (*ollama.LLM, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if llm, ok := r.clients[model]; ok {
		return llm, nil
	}

	llm, err := ollama.New(
		ollama.WithServerURL(r.host),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client for %s: %w", model, err)
	}
	r.clients[model] = llm
	return llm, nil
}

// generationInfoInt extracts an integer metric from a choice's
// generation info, tolerating the numeric types the library reports.
func generationInfoInt(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
