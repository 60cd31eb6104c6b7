// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runners provides concrete execution.Runner implementations
// and the registry that maps an agent type to its constructor.
package runners

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/evalbench/services/evaluator/execution"
)

var (
	// ErrUnknownAgentType indicates a job asked for an agent type no
	// factory was registered for.
	ErrUnknownAgentType = errors.New("unknown agent type")

	// ErrDuplicateAgentType indicates a second registration under the
	// same agent type.
	ErrDuplicateAgentType = errors.New("agent type already registered")
)

// Factory builds a runner instance for one evaluation job.
//
// Factories may fail, e.g. when a required credential is absent; the
// error surfaces as a job failure rather than a panic at startup.
type Factory func() (execution.Runner, error)

// Registry maps agent types to runner factories.
//
// Registration is validated up front so a misconfigured job fails with
// ErrUnknownAgentType instead of dispatching on raw strings deep inside
// the execution path.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a factory under an agent type. Agent types are
// case-insensitive.
func (r *Registry) Register(agentType string, factory Factory) error {
	key := normalizeAgentType(agentType)
	if key == "" {
		return errors.New("agent type must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("nil factory for agent type %q", agentType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAgentType, key)
	}
	r.factories[key] = factory
	return nil
}

// Create builds a fresh runner for the agent type.
func (r *Registry) Create(agentType string) (execution.Runner, error) {
	r.mu.RLock()
	factory, ok := r.factories[normalizeAgentType(agentType)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgentType, agentType)
	}
	return factory()
}

// Types returns the registered agent types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func normalizeAgentType(agentType string) string {
	return strings.ToLower(strings.TrimSpace(agentType))
}

// Config carries the connection settings the built-in runners need.
type Config struct {
	// OpenAIAPIKey authenticates against the OpenAI API. When empty the
	// openai factory falls back to the OPENAI_API_KEY environment
	// variable and the container secret path.
	OpenAIAPIKey string `yaml:"openai_api_key"`

	// OllamaHost is the Ollama server URL. Default: http://localhost:11434
	OllamaHost string `yaml:"ollama_host"`
}

// DefaultRegistry builds a registry with the built-in runners:
// "openai", "ollama", and "local" (an alias for ollama).
func DefaultRegistry(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := NewRegistry()
	_ = r.Register("openai", func() (execution.Runner, error) {
		return NewOpenAIRunner(cfg.OpenAIAPIKey, logger)
	})

	ollamaFactory := func() (execution.Runner, error) {
		return NewOllamaRunner(cfg.OllamaHost, logger), nil
	}
	_ = r.Register("ollama", ollamaFactory)
	_ = r.Register("local", ollamaFactory)
	return r
}
