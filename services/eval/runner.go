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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/CodeGraphEval/services/agent"
)

var tracer = otel.Tracer("cgeval.eval")

// Default runner settings.
const (
	DefaultRepeat      = 1
	DefaultConcurrency = 2
)

// Sink receives finished reports.
//
// Implementations include the run history, the InfluxDB exporter and the
// Prometheus textfile writer.
type Sink interface {
	Record(ctx context.Context, report *Report) error
}

// ProgressFunc is called after each attempt completes.
type ProgressFunc func(scenarioID string, attempt *Attempt)

// Runner runs scenarios against an agent and scores the answers.
//
// Thread Safety:
//
//	Run is safe for concurrent use.
type Runner struct {
	agent       agent.Agent
	contexts    *ContextProvider
	judge       *Judge
	repeat      int
	concurrency int
	noMetrics   bool
	sinks       []Sink
	models      Models
	progress    ProgressFunc
	logger      *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRepeat sets how many times each scenario is asked. Values below 1
// are ignored.
func WithRepeat(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 1 {
			r.repeat = n
		}
	}
}

// WithConcurrency bounds the number of attempts of a scenario in flight.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 1 {
			r.concurrency = n
		}
	}
}

// WithJudge sets the judge used by metrics. Without one, metrics are
// reported as skipped.
func WithJudge(j *Judge) RunnerOption {
	return func(r *Runner) { r.judge = j }
}

// WithContextProvider sets where test case context comes from.
func WithContextProvider(p *ContextProvider) RunnerOption {
	return func(r *Runner) { r.contexts = p }
}

// WithSinks adds report sinks.
func WithSinks(sinks ...Sink) RunnerOption {
	return func(r *Runner) { r.sinks = append(r.sinks, sinks...) }
}

// WithNoMetrics skips all judge metrics.
func WithNoMetrics() RunnerOption {
	return func(r *Runner) { r.noMetrics = true }
}

// WithModels records model names in the report.
func WithModels(m Models) RunnerOption {
	return func(r *Runner) { r.models = m }
}

// WithProgress sets a callback invoked after every attempt.
func WithProgress(fn ProgressFunc) RunnerOption {
	return func(r *Runner) { r.progress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner for the given agent.
func NewRunner(a agent.Agent, opts ...RunnerOption) *Runner {
	r := &Runner{
		agent:       a,
		contexts:    NewContextProvider(nil),
		repeat:      DefaultRepeat,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "eval")
	if r.models.Judge == "" && r.judge != nil {
		r.models.Judge = r.judge.Model()
	}
	return r
}

// Run evaluates scenarios in order and records the report to every sink.
//
// # Description
//
// Each scenario is asked Repeat times, with up to Concurrency attempts in
// flight. With more than one attempt a consistency check requires every
// completed attempt to report the same attribute count.
//
// Cancelling ctx stops pending attempts; the partial report is still
// recorded and returned together with ctx's error. Sink failures are logged
// and do not fail the run.
//
// # Outputs
//
//   - *Report: The run report. Never nil.
//   - error: ctx.Err() if the run was cancelled.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Mode:      r.agent.Mode(),
		Models:    r.models,
		Repeat:    r.repeat,
		Scenarios: make([]ScenarioResult, 0, len(scenarios)),
	}

	ctx, span := tracer.Start(ctx, "eval.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("eval.run_id", report.RunID),
		attribute.String("eval.mode", report.Mode),
		attribute.Int("eval.scenarios", len(scenarios)),
		attribute.Int("eval.repeat", r.repeat),
	)

	r.logger.Info("Starting evaluation run",
		"run_id", report.RunID, "mode", report.Mode, "scenarios", len(scenarios), "repeat", r.repeat)

	var runErr error
	for i := range scenarios {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		report.Scenarios = append(report.Scenarios, r.runScenario(ctx, &scenarios[i]))
	}
	if runErr == nil {
		runErr = ctx.Err()
	}
	report.Duration = time.Since(report.StartedAt)

	passed, failed := report.Counts()
	span.SetAttributes(attribute.Int("eval.passed", passed), attribute.Int("eval.failed", failed))
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "run cancelled")
	}
	r.logger.Info("Evaluation run finished",
		"run_id", report.RunID, "passed", passed, "failed", failed, "duration", report.Duration)

	r.record(context.WithoutCancel(ctx), report)
	return report, runErr
}

func (r *Runner) record(ctx context.Context, report *Report) {
	for _, sink := range r.sinks {
		if err := sink.Record(ctx, report); err != nil {
			r.logger.Warn("Failed to record report", "sink", fmt.Sprintf("%T", sink), "run_id", report.RunID, "error", err)
		}
	}
}

func (r *Runner) runScenario(ctx context.Context, sc *Scenario) ScenarioResult {
	ctx, span := tracer.Start(ctx, "eval.scenario")
	defer span.End()
	span.SetAttributes(attribute.String("eval.scenario", sc.ID))

	result := ScenarioResult{
		ID:          sc.ID,
		Description: sc.Description,
		Attempts:    make([]Attempt, r.repeat),
	}
	skipReason := r.metricSkipReason()

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i := range r.repeat {
		g.Go(func() error {
			result.Attempts[i] = r.runAttempt(ctx, sc, i+1, skipReason)
			if r.progress != nil {
				r.progress(sc.ID, &result.Attempts[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	if r.repeat > 1 {
		var counts []int
		for _, a := range result.Attempts {
			if a.Err == "" {
				counts = append(counts, a.AttributeCount)
			}
		}
		result.Checks = append(result.Checks, ConsistencyCheck(counts))
	}

	span.SetAttributes(attribute.Bool("eval.passed", result.Passed()))
	r.logger.Info("Scenario finished", "scenario", sc.ID, "passed", result.Passed(), "attempts", len(result.Attempts))
	return result
}

// metricSkipReason returns why judge metrics cannot run, or "".
func (r *Runner) metricSkipReason() string {
	switch {
	case r.noMetrics:
		return "metrics disabled"
	case r.judge == nil:
		return "no judge available"
	default:
		return ""
	}
}

func (r *Runner) runAttempt(ctx context.Context, sc *Scenario, number int, skipReason string) Attempt {
	att := Attempt{Number: number}
	if err := ctx.Err(); err != nil {
		att.Err = err.Error()
		return att
	}

	ctx, span := tracer.Start(ctx, "eval.attempt")
	defer span.End()
	span.SetAttributes(attribute.String("eval.scenario", sc.ID), attribute.Int("eval.attempt", number))

	start := time.Now()
	defer func() { att.Duration = time.Since(start) }()

	input := agent.AugmentPrompt(sc.Prompt, sc.Instructions, sc.Class)
	answer, err := r.agent.Ask(ctx, input)
	att.Answer = answer
	if err != nil {
		att.Err = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent failed")
		r.logger.Warn("Agent failed", "scenario", sc.ID, "attempt", number, "error", err)
		return att
	}

	tc := r.contexts.BuildTestCase(ctx, sc, input, answer)
	att.TestCase = tc
	att.Attributes = ExtractAttributes(tc.ActualOutput)
	att.AttributeCount = len(att.Attributes)
	att.ClassPath = ExtractClassPath(tc.ActualOutput, sc.Class, expectedPath(sc))

	for _, spec := range sc.Checks {
		att.Checks = append(att.Checks, RunCheck(spec, tc, sc.Class))
	}
	att.Metrics = r.measure(ctx, sc, tc, skipReason)

	span.SetAttributes(
		attribute.Int("eval.attribute_count", att.AttributeCount),
		attribute.Bool("eval.passed", att.Passed()),
	)
	r.logger.Debug("Attempt finished",
		"scenario", sc.ID, "attempt", number, "attributes", att.AttributeCount, "passed", att.Passed())
	return att
}

func (r *Runner) measure(ctx context.Context, sc *Scenario, tc *TestCase, skipReason string) []MetricResult {
	if len(sc.Metrics) == 0 {
		return nil
	}
	results := make([]MetricResult, 0, len(sc.Metrics))
	for _, spec := range sc.Metrics {
		if skipReason != "" {
			results = append(results, SkippedMetric(spec, skipReason))
			continue
		}
		m, err := NewMetric(spec, r.judge)
		if err != nil {
			results = append(results, MetricResult{Name: spec.DisplayName(), Threshold: spec.EffectiveThreshold(), Error: err.Error()})
			continue
		}
		results = append(results, MeasureAll(ctx, []Metric{m}, tc)...)
	}
	return results
}

func expectedPath(sc *Scenario) string {
	for _, c := range sc.Checks {
		if c.Type == CheckClassPath {
			return c.Path
		}
	}
	return ""
}
