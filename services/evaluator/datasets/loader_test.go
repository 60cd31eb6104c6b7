// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datasets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestFileLoader_YAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "arith.yaml", `
id: arith
name: Basic arithmetic
test_cases:
  - id: tc-1
    input: "2+2"
    expected: "4"
    category: math
  - id: tc-2
    input: "3*3"
    expected: "9"
`)

	ds, err := NewFileLoader(dir).Load(context.Background(), "arith")
	require.NoError(t, err)
	assert.Equal(t, "arith", ds.ID)
	assert.Equal(t, "Basic arithmetic", ds.Name)
	require.Len(t, ds.TestCases, 2)
	assert.Equal(t, "math", ds.TestCases[0].Category)
	assert.Equal(t, "4", ds.TestCases[0].Expected)
}

func TestFileLoader_JSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "qa.json", `{
  "id": "qa",
  "test_cases": [
    {"id": "q1", "input": "capital of France?", "expected": "Paris"}
  ]
}`)

	ds, err := NewFileLoader(dir).Load(context.Background(), "qa")
	require.NoError(t, err)
	require.Len(t, ds.TestCases, 1)
	assert.Equal(t, "Paris", ds.TestCases[0].Expected)
}

func TestFileLoader_NotFound(t *testing.T) {
	_, err := NewFileLoader(t.TempDir()).Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileLoader_RejectsPathTraversal(t *testing.T) {
	_, err := NewFileLoader(t.TempDir()).Load(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileLoader_EmptyDatasetInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.yaml", "id: empty\ntest_cases: []\n")

	_, err := NewFileLoader(dir).Load(context.Background(), "empty")
	assert.ErrorIs(t, err, ErrInvalidDataset)
}

func TestFileLoader_DuplicateIDsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dup.yaml", `
id: dup
test_cases:
  - id: tc-1
    input: a
  - id: tc-1
    input: b
`)

	_, err := NewFileLoader(dir).Load(context.Background(), "dup")
	assert.ErrorIs(t, err, ErrInvalidDataset)
}

func TestFileLoader_MissingIDFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "unnamed.yaml", `
test_cases:
  - id: tc-1
    input: hello
`)

	ds, err := NewFileLoader(dir).Load(context.Background(), "unnamed")
	require.NoError(t, err)
	assert.Equal(t, "unnamed", ds.ID)
}

func TestMemoryLoader(t *testing.T) {
	loader := NewMemoryLoader()
	ds := &Dataset{
		ID: "mem",
		TestCases: []datatypes.TestCase{
			{ID: "tc-1", Input: "x"},
		},
	}
	require.NoError(t, loader.Register(ds))

	got, err := loader.Load(context.Background(), "mem")
	require.NoError(t, err)
	assert.Equal(t, ds, got)

	_, err = loader.Load(context.Background(), "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLoader_RejectsInvalid(t *testing.T) {
	err := NewMemoryLoader().Register(&Dataset{ID: "bad"})
	assert.ErrorIs(t, err, ErrInvalidDataset)
}
