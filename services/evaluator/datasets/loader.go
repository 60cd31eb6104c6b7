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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNotFound indicates no dataset file exists for the requested ID.
	ErrNotFound = errors.New("dataset not found")

	// ErrInvalidDataset indicates a dataset file that parsed but failed
	// validation.
	ErrInvalidDataset = errors.New("invalid dataset")
)

// Loader resolves a dataset ID to its test cases.
type Loader interface {
	Load(ctx context.Context, datasetID string) (*Dataset, error)
}

// datasetExtensions are probed in order when resolving a dataset ID to
// a file.
var datasetExtensions = []string{".yaml", ".yml", ".json"}

// FileLoader reads datasets from a directory, one file per dataset,
// named <id>.yaml, <id>.yml, or <id>.json.
type FileLoader struct {
	dir string
}

// NewFileLoader creates a loader rooted at dir.
func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{dir: dir}
}

// Load reads, parses, and validates the dataset file for datasetID.
//
// YAML is tried first; a .json file falls through to the JSON decoder.
// Returns ErrNotFound when no candidate file exists.
func (l *FileLoader) Load(_ context.Context, datasetID string) (*Dataset, error) {
	path, err := l.resolve(datasetID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", datasetID, err)
	}

	var ds Dataset
	if filepath.Ext(path) == ".json" {
		if err := json.Unmarshal(data, &ds); err != nil {
			return nil, fmt.Errorf("parse dataset %s: %w", datasetID, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &ds); err != nil {
			return nil, fmt.Errorf("parse dataset %s: %w", datasetID, err)
		}
	}

	if ds.ID == "" {
		ds.ID = datasetID
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, err)
	}
	return &ds, nil
}

// resolve finds the dataset file for an ID, probing known extensions.
func (l *FileLoader) resolve(datasetID string) (string, error) {
	// Dataset IDs come from job configs, which may arrive over the API.
	// Reject anything that escapes the dataset directory.
	if datasetID != filepath.Base(datasetID) || datasetID == "" || datasetID == "." {
		return "", fmt.Errorf("%w: bad dataset id %q", ErrNotFound, datasetID)
	}

	for _, ext := range datasetExtensions {
		path := filepath.Join(l.dir, datasetID+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, datasetID)
}

// MemoryLoader serves datasets registered in process. Used by tests and
// by callers that build datasets programmatically.
type MemoryLoader struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// NewMemoryLoader creates an empty in-memory loader.
func NewMemoryLoader() *MemoryLoader {
	return &MemoryLoader{datasets: map[string]*Dataset{}}
}

// Register validates and stores a dataset under its ID, replacing any
// previous registration.
func (l *MemoryLoader) Register(ds *Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.datasets[ds.ID] = ds
	return nil
}

// Load returns the registered dataset or ErrNotFound.
func (l *MemoryLoader) Load(_ context.Context, datasetID string) (*Dataset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ds, ok := l.datasets[datasetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, datasetID)
	}
	return ds, nil
}
