// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
)

func TestMetrics_JobLifecycleCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.JobEnqueued()
	m.JobEnqueued()
	m.JobStarted()
	m.JobFinished(datatypes.JobCompleted, 3*time.Second)
	m.JobFinished(datatypes.JobFailed, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobsEnqueuedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsStartedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsFinishedTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsFinishedTotal.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.JobsFinishedTotal.WithLabelValues("cancelled")))
}

func TestMetrics_CaseOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CaseCompleted(true, 250)
	m.CaseCompleted(true, 500)
	m.CaseCompleted(false, 1000)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TestCasesTotal.WithLabelValues("passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TestCasesTotal.WithLabelValues("failed")))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// Two instances on distinct registries must not collide.
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	a.JobEnqueued()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.JobsEnqueuedTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.JobsEnqueuedTotal))
}
