// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/CodeGraphEval/services/eval"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "cgeval", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.TraceExporter)
	assert.Equal(t, ExporterPrometheus, cfg.MetricExporter)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // exercising the nil guard
	_, err := Init(nil, DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_Noop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricExporter = ExporterNone

	shutdown, err := Init(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "zipkin"
	_, err := Init(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	cfg = DefaultConfig()
	cfg.MetricExporter = "statsd"
	_, err = Init(context.Background(), cfg, prometheus.NewRegistry())
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_PrometheusNeedsRegistry(t *testing.T) {
	_, err := Init(context.Background(), DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestInit_StdoutTraces(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterStdout
	cfg.MetricExporter = ExporterNone
	cfg.Output = &buf

	shutdown, err := Init(context.Background(), cfg, nil)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "eval.run")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name": "eval.run"`)
}

func TestInit_PrometheusBridge(t *testing.T) {
	m := NewMetrics("")
	cfg := DefaultConfig()

	shutdown, err := Init(context.Background(), cfg, m.Registry())
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	counter, err := otel.Meter("test").Int64Counter("bridge.probe")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.True(t, containsPrefix(names, "bridge_probe"), "bridged OTel counter missing from %v", names)
}

func containsPrefix(names []string, prefix string) bool {
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	return false
}

func testReport() *eval.Report {
	return &eval.Report{
		RunID:     "run-1",
		StartedAt: time.Unix(1700000000, 0).UTC(),
		Mode:      "simulated",
		Scenarios: []eval.ScenarioResult{
			{
				ID: "enterprise-attributes",
				Attempts: []eval.Attempt{
					{
						Number:         1,
						AttributeCount: 3,
						Checks:         []eval.CheckResult{{Name: "attribute_count", Passed: true}},
						Metrics: []eval.MetricResult{
							{Name: "faithfulness", Score: 0.85, Threshold: 0.7, Passed: true},
							{Name: "answer_relevancy", Skipped: true},
						},
					},
					{Number: 2, Err: "timeout"},
				},
			},
			{
				ID:       "enterprise-path",
				Attempts: []eval.Attempt{{Number: 1, Checks: []eval.CheckResult{{Name: "class_path", Passed: false}}}},
			},
		},
	}
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics("")
	require.NoError(t, m.Record(context.Background(), testReport()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("simulated", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScenariosTotal.WithLabelValues("enterprise-attributes", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScenariosTotal.WithLabelValues("enterprise-path", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("enterprise-attributes", "passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("enterprise-attributes", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("enterprise-path", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AttributeCount.WithLabelValues("enterprise-attributes")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastRunTimestamp))
	assert.Equal(t, 1, testutil.CollectAndCount(m.MetricScore), "skipped metrics are not observed")
}

func TestMetrics_ObserveTool(t *testing.T) {
	m := NewMetrics("")
	m.ObserveTool("run_query", true, 20*time.Millisecond)
	m.ObserveTool("run_query", false, 5*time.Millisecond)
	m.ObserveTool("get_schema", true, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("run_query", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("run_query", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ToolDurationSeconds))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "cgeval.prom")
	m := NewMetrics(path)
	require.NoError(t, m.Record(context.Background(), testReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "# TYPE cgeval_runs_total counter")
	assert.Contains(t, text, `cgeval_attribute_count{scenario="enterprise-attributes"} 3`)
}
