// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/evalbench/services/evaluator/datasets"
	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
	"github.com/AleutianAI/evalbench/services/evaluator/execution"
	"github.com/AleutianAI/evalbench/services/evaluator/jobs"
	"github.com/AleutianAI/evalbench/services/evaluator/observability"
	"github.com/AleutianAI/evalbench/services/evaluator/runners"
	"github.com/AleutianAI/evalbench/services/evaluator/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// passRunner answers every case with its expected output.
type passRunner struct{}

func (passRunner) Execute(_ context.Context, tc datatypes.TestCase, _ datatypes.ModelConfig) (datatypes.ExecutionResult, error) {
	return datatypes.ExecutionResult{Output: tc.Expected, LatencyMs: 1, Success: true}, nil
}

func (passRunner) ScoreResult(tc datatypes.TestCase, result datatypes.ExecutionResult, _ datatypes.ScorerConfig) (datatypes.Score, error) {
	return datatypes.Score{TestCaseID: tc.ID, Value: 1, Passed: true, Actual: result.Output}, nil
}

type testServer struct {
	router *gin.Engine
	orch   *jobs.Orchestrator
	store  *storage.ReportStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	registry := runners.NewRegistry()
	require.NoError(t, registry.Register("stub", func() (execution.Runner, error) {
		return passRunner{}, nil
	}))

	loader := datasets.NewMemoryLoader()
	require.NoError(t, loader.Register(&datasets.Dataset{
		ID: "ds",
		TestCases: []datatypes.TestCase{
			{ID: "tc-1", Input: "2+2", Expected: "4"},
			{ID: "tc-2", Input: "3+3", Expected: "6"},
		},
	}))

	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	orch, err := jobs.NewOrchestrator(jobs.Config{}, jobs.Deps{
		Datasets: loader,
		Runners:  registry,
		Reports:  store,
		Observer: observability.NewMetrics(reg),
	})
	require.NoError(t, err)

	server := NewServer(orch, WithReportStore(store), WithMetrics(reg))
	return &testServer{router: server.Router(), orch: orch, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

const jobBody = `{
	"name": "smoke",
	"dataset_id": "ds",
	"agent_type": "stub",
	"model_config": {"provider": "local", "model": "stub-model"},
	"scorer_config": {"strategy": "exact_match"}
}`

func (ts *testServer) createAndFinishJob(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/v1/jobs", jobBody)
	require.Equal(t, http.StatusAccepted, w.Code)

	var job datatypes.EvalJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := ts.orch.WaitForJob(ctx, job.ID, 5*time.Millisecond)
	require.NoError(t, err)
	return job.ID
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_CreateAndGetJob(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createAndFinishJob(t)

	w := ts.do(t, http.MethodGet, "/v1/jobs/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)

	var job datatypes.EvalJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, datatypes.JobCompleted, job.Status)
	assert.Equal(t, 2, job.TotalTestCases)
	assert.NotEmpty(t, job.ReportID)
}

func TestServer_CreateJobBadBody(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/v1/jobs", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_CreateJobUnknownDataset(t *testing.T) {
	ts := newTestServer(t)
	body := strings.Replace(jobBody, `"ds"`, `"missing"`, 1)
	w := ts.do(t, http.MethodPost, "/v1/jobs", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_GetJobNotFound(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/v1/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ListJobsByStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.createAndFinishJob(t)

	w := ts.do(t, http.MethodGet, "/v1/jobs?status=completed", "")
	require.Equal(t, http.StatusOK, w.Code)
	var completed []datatypes.EvalJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &completed))
	assert.Len(t, completed, 1)

	w = ts.do(t, http.MethodGet, "/v1/jobs?status=failed", "")
	require.Equal(t, http.StatusOK, w.Code)
	var failed []datatypes.EvalJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	assert.Empty(t, failed)
}

func TestServer_CancelTerminalJobConflicts(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createAndFinishJob(t)

	w := ts.do(t, http.MethodDelete, "/v1/jobs/"+id, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestServer_JobReport(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createAndFinishJob(t)

	w := ts.do(t, http.MethodGet, "/v1/jobs/"+id+"/report", "")
	require.Equal(t, http.StatusOK, w.Code)

	var report datatypes.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, id, report.JobID)
	assert.Equal(t, 1.0, report.Metrics.PassRate)
}

func TestServer_QueueStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.createAndFinishJob(t)

	w := ts.do(t, http.MethodGet, "/v1/queue", "")
	require.Equal(t, http.StatusOK, w.Code)

	var qs datatypes.QueueStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &qs))
	assert.Equal(t, 1, qs.Completed)
	assert.Equal(t, 1, qs.Total)
}

func TestServer_StoredReports(t *testing.T) {
	ts := newTestServer(t)
	ts.createAndFinishJob(t)

	w := ts.do(t, http.MethodGet, "/v1/reports", "")
	require.Equal(t, http.StatusOK, w.Code)

	var reports []datatypes.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reports))
	require.Len(t, reports, 1)

	w = ts.do(t, http.MethodGet, "/v1/reports/"+reports[0].ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/reports/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t)
	ts.createAndFinishJob(t)

	w := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "evalbench_jobs_enqueued_total")
}
