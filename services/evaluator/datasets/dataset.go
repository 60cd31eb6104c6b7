// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datasets loads evaluation datasets from disk and validates
// them before the orchestrator ever sees a test case.
package datasets

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
)

// Dataset is a named collection of test cases.
type Dataset struct {
	ID          string               `json:"id" yaml:"id" validate:"required"`
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	TestCases   []datatypes.TestCase `json:"test_cases" yaml:"test_cases" validate:"required,min=1,dive"`
}

// datasetValidate is the shared validator instance for dataset files.
var datasetValidate = validator.New()

// Validate checks structural validity: required fields present, at
// least one test case, and no duplicate test case IDs.
func (d *Dataset) Validate() error {
	if err := datasetValidate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}

	seen := make(map[string]struct{}, len(d.TestCases))
	for _, tc := range d.TestCases {
		if _, dup := seen[tc.ID]; dup {
			return fmt.Errorf("%w: duplicate test case id %q", ErrInvalidDataset, tc.ID)
		}
		seen[tc.ID] = struct{}{}
	}
	return nil
}
