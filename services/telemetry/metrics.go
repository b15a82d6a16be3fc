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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/CodeGraphEval/services/eval"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "cgeval"

// Metrics holds the Prometheus metrics of evaluation runs.
//
// # Fields
//
//   - RunsTotal: Runs by mode and result.
//   - ScenariosTotal: Scenario outcomes by scenario and result.
//   - AttemptsTotal: Attempt outcomes by scenario and result.
//   - AttributeCount: Attribute count of the latest attempt per scenario.
//   - MetricScore: Judge metric scores by metric.
//   - ToolCallsTotal: Tool calls by tool and status.
//   - ToolDurationSeconds: Tool call latency by tool.
//   - LastRunTimestamp: Unix time of the last recorded run.
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal           *prometheus.CounterVec
	ScenariosTotal      *prometheus.CounterVec
	AttemptsTotal       *prometheus.CounterVec
	AttributeCount      *prometheus.GaugeVec
	MetricScore         *prometheus.HistogramVec
	ToolCallsTotal      *prometheus.CounterVec
	ToolDurationSeconds *prometheus.HistogramVec
	LastRunTimestamp    prometheus.Gauge

	textfile string
}

var _ eval.Sink = (*Metrics)(nil)

// NewMetrics creates the metrics on a private registry.
//
// textfile is where Record writes the registry after each run; empty
// disables writing.
func NewMetrics(textfile string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		textfile: textfile,
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "Evaluation runs by agent mode and result",
			},
			[]string{"mode", "result"},
		),
		ScenariosTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "scenarios_total",
				Help:      "Scenario outcomes by scenario and result",
			},
			[]string{"scenario", "result"},
		),
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "attempts_total",
				Help:      "Attempt outcomes by scenario and result (passed, failed, error)",
			},
			[]string{"scenario", "result"},
		),
		AttributeCount: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "attribute_count",
				Help:      "Attributes found by the latest completed attempt of a scenario",
			},
			[]string{"scenario"},
		),
		MetricScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "metric_score",
				Help:      "Judge metric scores",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"metric"},
		),
		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "tool",
				Name:      "calls_total",
				Help:      "Graph tool calls by tool and status",
			},
			[]string{"tool", "status"},
		),
		ToolDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "tool",
				Name:      "duration_seconds",
				Help:      "Graph tool call latency",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"tool"},
		),
		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last recorded run",
			},
		),
	}
}

// Registry returns the private registry, for bridging OTel instruments.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTool records one tool call. Its signature matches tools.Observer.
func (m *Metrics) ObserveTool(tool string, success bool, d time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolDurationSeconds.WithLabelValues(tool).Observe(d.Seconds())
}

// Record implements eval.Sink: it updates the metrics from a report and
// writes the textfile when one is configured.
func (m *Metrics) Record(_ context.Context, report *eval.Report) error {
	m.RunsTotal.WithLabelValues(report.Mode, result(report.Passed())).Inc()
	m.LastRunTimestamp.Set(float64(report.StartedAt.Unix()))

	for i := range report.Scenarios {
		sc := &report.Scenarios[i]
		m.ScenariosTotal.WithLabelValues(sc.ID, result(sc.Passed())).Inc()

		for j := range sc.Attempts {
			a := &sc.Attempts[j]
			switch {
			case a.Err != "":
				m.AttemptsTotal.WithLabelValues(sc.ID, "error").Inc()
				continue
			case a.Passed():
				m.AttemptsTotal.WithLabelValues(sc.ID, "passed").Inc()
			default:
				m.AttemptsTotal.WithLabelValues(sc.ID, "failed").Inc()
			}
			m.AttributeCount.WithLabelValues(sc.ID).Set(float64(a.AttributeCount))

			for _, mr := range a.Metrics {
				if mr.Skipped || mr.Error != "" {
					continue
				}
				m.MetricScore.WithLabelValues(mr.Name).Observe(mr.Score)
			}
		}
	}

	if m.textfile == "" {
		return nil
	}
	return m.WriteTextfile(m.textfile)
}

// WriteTextfile writes the registry in the text exposition format for the
// node-exporter textfile collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

func result(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}
