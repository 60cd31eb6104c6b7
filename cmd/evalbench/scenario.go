// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
	"github.com/AleutianAI/evalbench/services/evaluator/runners"
)

// Scenario is the YAML file handed to `evalbench run`.
//
// Example:
//
//	job:
//	  name: arithmetic smoke test
//	  dataset_id: arith
//	  agent_type: openai
//	  model_config:
//	    provider: openai
//	    model: gpt-4o-mini
//	  scorer_config:
//	    strategy: exact_match
//	  concurrency: 5
//	  timeout_ms: 60000
//	dataset_dir: ./datasets
//	database: ~/.evalbench/reports
type Scenario struct {
	// Job is the evaluation job to submit.
	Job datatypes.JobConfig `yaml:"job"`

	// DatasetDir is where dataset files live. Default: ./datasets
	DatasetDir string `yaml:"dataset_dir"`

	// Database is the report database directory. Empty disables
	// persistence.
	Database string `yaml:"database"`

	// Runners configures the model backends.
	Runners runners.Config `yaml:"runners"`
}

// loadScenario reads and parses a scenario file, applying defaults.
func loadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if scenario.DatasetDir == "" {
		scenario.DatasetDir = "./datasets"
	}
	return &scenario, nil
}
