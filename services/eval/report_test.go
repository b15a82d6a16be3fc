// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eval

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passingAttempt(n int) Attempt {
	return Attempt{
		Number:         n,
		AttributeCount: 3,
		Checks:         []CheckResult{{Name: CheckAttributeCount, Passed: true}},
		Metrics:        []MetricResult{{Name: MetricFaithfulness, Score: 0.9, Threshold: 0.7, Passed: true}},
	}
}

func TestAttempt_Passed(t *testing.T) {
	a := passingAttempt(1)
	assert.True(t, a.Passed())

	skipped := passingAttempt(1)
	skipped.Metrics = append(skipped.Metrics, MetricResult{Name: "x", Skipped: true})
	assert.True(t, skipped.Passed())

	failedMetric := passingAttempt(1)
	failedMetric.Metrics[0].Passed = false
	assert.False(t, failedMetric.Passed())

	metricError := passingAttempt(1)
	metricError.Metrics = append(metricError.Metrics, MetricResult{Name: "y", Error: "unparsable"})
	assert.False(t, metricError.Passed())

	failedCheck := passingAttempt(1)
	failedCheck.Checks[0].Passed = false
	assert.False(t, failedCheck.Passed())

	errored := passingAttempt(1)
	errored.Err = "boom"
	assert.False(t, errored.Passed())
}

func TestReport_Passed(t *testing.T) {
	r := &Report{Scenarios: []ScenarioResult{
		{ID: "a", Attempts: []Attempt{passingAttempt(1), passingAttempt(2)}},
		{ID: "b", Attempts: []Attempt{passingAttempt(1)}},
	}}
	assert.True(t, r.Passed())

	r.Scenarios[0].Checks = []CheckResult{{Name: CheckConsistency, Passed: false}}
	assert.False(t, r.Passed())
	passed, failed := r.Counts()
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, failed)

	assert.False(t, (&Report{}).Passed())
	assert.False(t, (&ScenarioResult{ID: "empty"}).Passed())

	assert.Equal(t, "b", r.Scenario("b").ID)
	assert.Nil(t, r.Scenario("c"))
}

func TestReport_JSONRoundTrip(t *testing.T) {
	r := &Report{
		RunID:     "run-1",
		StartedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:  2 * time.Second,
		Mode:      "simulated",
		Models:    Models{Agent: "simulated", Judge: "judge"},
		Repeat:    1,
		Scenarios: []ScenarioResult{{ID: "a", Attempts: []Attempt{passingAttempt(1)}}},
	}

	path := filepath.Join(t.TempDir(), "out", "report.json")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := ParseReport(data)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	var buf bytes.Buffer
	_, err = r.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"run_id": "run-1"`)

	_, err = ParseReport([]byte("{"))
	assert.Error(t, err)
}
