// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage persists evaluation reports in an embedded BadgerDB
// and exports run metrics to InfluxDB for dashboards.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
)

// ErrReportNotFound indicates no report exists under the requested key.
var ErrReportNotFound = errors.New("report not found")

// Key prefixes inside the report database.
const (
	reportKeyPrefix = "report:"
	jobKeyPrefix    = "job:"
)

// Config holds configuration for the report database.
type Config struct {
	// Path is the directory for database files. Required unless
	// InMemory is set.
	Path string

	// InMemory enables in-memory mode with no disk persistence.
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. If nil, internal
	// logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns a configuration for tests: in-memory, no
// sync.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// ReportStore persists reports in BadgerDB, keyed by report ID with a
// secondary index from job ID.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions
// provide isolation.
type ReportStore struct {
	db *badger.DB
}

// Open creates a report store with the given configuration.
func Open(cfg Config) (*ReportStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open report database: %w", err)
	}
	return &ReportStore{db: db}, nil
}

// OpenInMemory opens an in-memory store for testing. Data is lost on
// Close.
func OpenInMemory() (*ReportStore, error) {
	return Open(InMemoryConfig())
}

// Close releases the underlying database.
func (s *ReportStore) Close() error {
	return s.db.Close()
}

// SaveReport stores a report and indexes it by job ID. Saving twice
// under the same ID overwrites.
func (s *ReportStore) SaveReport(_ context.Context, report *datatypes.Report) error {
	if report.ID == "" {
		return errors.New("report ID must not be empty")
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", report.ID, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(reportKeyPrefix+report.ID), data); err != nil {
			return err
		}
		if report.JobID != "" {
			return txn.Set([]byte(jobKeyPrefix+report.JobID), []byte(report.ID))
		}
		return nil
	})
}

// GetReport loads a report by ID.
func (s *ReportStore) GetReport(_ context.Context, reportID string) (*datatypes.Report, error) {
	var report datatypes.Report
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(reportKeyPrefix + reportID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &report)
		})
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// GetReportByJob loads the report recorded for a job ID.
func (s *ReportStore) GetReportByJob(ctx context.Context, jobID string) (*datatypes.Report, error) {
	var reportID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(jobKeyPrefix + jobID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: job %s", ErrReportNotFound, jobID)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			reportID = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetReport(ctx, reportID)
}

// ListReports returns all stored reports, newest first.
func (s *ReportStore) ListReports(_ context.Context) ([]*datatypes.Report, error) {
	var reports []*datatypes.Report
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(reportKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var report datatypes.Report
				if err := json.Unmarshal(val, &report); err != nil {
					return err
				}
				reports = append(reports, &report)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	return reports, nil
}

// DeleteReport removes a report and its job index entry.
func (s *ReportStore) DeleteReport(_ context.Context, reportID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(reportKeyPrefix + reportID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
			}
			return err
		}

		var report datatypes.Report
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &report)
		}); err != nil {
			return err
		}

		if err := txn.Delete([]byte(reportKeyPrefix + reportID)); err != nil {
			return err
		}
		if report.JobID != "" {
			return txn.Delete([]byte(jobKeyPrefix + report.JobID))
		}
		return nil
	})
}
