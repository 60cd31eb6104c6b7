// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"fmt"
	"os"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
)

// MetricsExporter writes one time-series point per finished run so
// pass rates and costs can be charted across history.
type MetricsExporter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
	org      string
}

// NewMetricsExporter builds an exporter from the INFLUXDB_URL,
// INFLUXDB_TOKEN, INFLUXDB_ORG, and INFLUXDB_BUCKET environment
// variables, with local defaults for everything but the token.
func NewMetricsExporter() (*MetricsExporter, error) {
	url := os.Getenv("INFLUXDB_URL")
	if url == "" {
		url = "http://localhost:8086"
	}

	token := os.Getenv("INFLUXDB_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("INFLUXDB_TOKEN environment variable not set")
	}

	org := os.Getenv("INFLUXDB_ORG")
	if org == "" {
		org = "evalbench"
	}

	bucket := os.Getenv("INFLUXDB_BUCKET")
	if bucket == "" {
		bucket = "evaluation-runs"
	}

	client := influxdb2.NewClient(url, token)
	return &MetricsExporter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		bucket:   bucket,
		org:      org,
	}, nil
}

// ExportReport writes the report's aggregate metrics as a single
// point, timestamped at report creation.
func (e *MetricsExporter) ExportReport(ctx context.Context, report *datatypes.Report) error {
	m := report.Metrics
	p := influxdb2.NewPointWithMeasurement("evaluation_runs").
		AddTag("job_id", report.JobID).
		AddTag("dataset", report.DatasetID).
		AddTag("provider", report.Model.Provider).
		AddTag("model", report.Model.Model).
		AddTag("scorer", report.Scorer.Strategy).
		AddField("total_tests", m.TotalTests).
		AddField("passed_tests", m.PassedTests).
		AddField("failed_tests", m.FailedTests).
		AddField("pass_rate", m.PassRate).
		AddField("mean_score", m.Scores.Mean).
		AddField("median_score", m.Scores.Median).
		AddField("score_stddev", m.Scores.StdDev).
		AddField("avg_latency_ms", m.AverageLatencyMs).
		AddField("total_tokens", m.Tokens.Total).
		AddField("total_cost", m.TotalCost).
		SetTime(report.CreatedAt)

	if err := e.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write evaluation point: %w", err)
	}
	return nil
}

// Close shuts down the underlying client.
func (e *MetricsExporter) Close() {
	e.client.Close()
}
