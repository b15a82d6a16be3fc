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
	"strings"
)

// Metric types.
const (
	MetricAnswerRelevancy     = "answer_relevancy"
	MetricFaithfulness        = "faithfulness"
	MetricContextualRelevancy = "contextual_relevancy"
	MetricGEval               = "geval"
)

// Default thresholds.
const (
	DefaultAnswerRelevancyThreshold     = 0.7
	DefaultFaithfulnessThreshold        = 0.7
	DefaultContextualRelevancyThreshold = 0.6
	DefaultGEvalThreshold               = 0.5
)

// Test case fields a GEval metric can look at.
const (
	ParamInput            = "input"
	ParamActualOutput     = "actual_output"
	ParamExpectedOutput   = "expected_output"
	ParamContext          = "context"
	ParamRetrievalContext = "retrieval_context"
)

// MetricSpec configures one judge metric.
type MetricSpec struct {
	// Type selects the metric.
	Type string `yaml:"type" json:"type" validate:"required,oneof=answer_relevancy faithfulness contextual_relevancy geval"`

	// Name is required for geval and overrides the reported name otherwise.
	Name string `yaml:"name,omitempty" json:"name,omitempty" validate:"required_if=Type geval"`

	// Threshold is the minimum passing score. Nil uses the type default;
	// an explicit 0 makes the metric informational.
	Threshold *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty" validate:"omitempty,min=0,max=1"`

	// Criteria describes what a geval metric judges.
	Criteria string `yaml:"criteria,omitempty" json:"criteria,omitempty" validate:"required_if=Type geval"`

	// EvaluationSteps optionally spell out how to apply Criteria.
	EvaluationSteps []string `yaml:"evaluation_steps,omitempty" json:"evaluation_steps,omitempty"`

	// Params are the test case fields a geval metric sees. Defaults to
	// input and actual_output.
	Params []string `yaml:"params,omitempty" json:"params,omitempty" validate:"dive,oneof=input actual_output expected_output context retrieval_context"`
}

// DisplayName returns Name, or Type when Name is empty.
func (m MetricSpec) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Type
}

// EffectiveThreshold returns Threshold or the type default.
func (m MetricSpec) EffectiveThreshold() float64 {
	if m.Threshold != nil {
		return *m.Threshold
	}
	switch m.Type {
	case MetricAnswerRelevancy:
		return DefaultAnswerRelevancyThreshold
	case MetricFaithfulness:
		return DefaultFaithfulnessThreshold
	case MetricContextualRelevancy:
		return DefaultContextualRelevancyThreshold
	default:
		return DefaultGEvalThreshold
	}
}

// MetricResult is the outcome of one metric.
type MetricResult struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
	Skipped   bool    `json:"skipped,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// SkippedMetric reports spec as not run.
func SkippedMetric(spec MetricSpec, reason string) MetricResult {
	return MetricResult{
		Name:      spec.DisplayName(),
		Threshold: spec.EffectiveThreshold(),
		Skipped:   true,
		Reason:    reason,
	}
}

// Metric scores a test case in [0, 1].
type Metric interface {
	// Name is the reported metric name.
	Name() string

	// Threshold is the minimum passing score.
	Threshold() float64

	// Measure scores tc. A non-nil error means the metric could not be
	// computed and counts as a failure.
	Measure(ctx context.Context, tc *TestCase) (MetricResult, error)
}

// NewMetric builds the metric described by spec.
func NewMetric(spec MetricSpec, judge *Judge) (Metric, error) {
	base := baseMetric{name: spec.DisplayName(), threshold: spec.EffectiveThreshold(), judge: judge}
	switch spec.Type {
	case MetricAnswerRelevancy:
		return &answerRelevancy{base}, nil
	case MetricFaithfulness:
		return &faithfulness{base}, nil
	case MetricContextualRelevancy:
		return &contextualRelevancy{base}, nil
	case MetricGEval:
		params := spec.Params
		if len(params) == 0 {
			params = []string{ParamInput, ParamActualOutput}
		}
		return &gEval{baseMetric: base, criteria: spec.Criteria, steps: spec.EvaluationSteps, params: params}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, spec.Type)
	}
}

// MeasureAll runs every metric. A metric that errors is reported as failed
// with its error; the others still run.
func MeasureAll(ctx context.Context, metrics []Metric, tc *TestCase) []MetricResult {
	results := make([]MetricResult, 0, len(metrics))
	for _, m := range metrics {
		res, err := m.Measure(ctx, tc)
		if err != nil {
			res = MetricResult{Name: m.Name(), Threshold: m.Threshold(), Error: err.Error()}
		}
		results = append(results, res)
	}
	return results
}

type baseMetric struct {
	name      string
	threshold float64
	judge     *Judge
}

func (b baseMetric) Name() string       { return b.name }
func (b baseMetric) Threshold() float64 { return b.threshold }

func (b baseMetric) result(score float64, reason string) MetricResult {
	score = clamp01(score)
	return MetricResult{
		Name:      b.name,
		Score:     score,
		Threshold: b.threshold,
		Passed:    score >= b.threshold,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Answer Relevancy
// -----------------------------------------------------------------------------

// answerRelevancy splits the answer into statements and asks whether each
// one addresses the input.
type answerRelevancy struct{ baseMetric }

func (m *answerRelevancy) Measure(ctx context.Context, tc *TestCase) (MetricResult, error) {
	var stmts statementList
	if err := m.judge.Ask(ctx, statementsPrompt(tc.ActualOutput), &stmts); err != nil {
		return MetricResult{}, err
	}
	if len(stmts.Statements) == 0 {
		return m.result(1, "the answer contains no statements to judge"), nil
	}

	var verdicts verdictList
	if err := m.judge.Ask(ctx, relevancyVerdictsPrompt(tc.Input, stmts.Statements), &verdicts); err != nil {
		return MetricResult{}, err
	}
	if len(verdicts.Verdicts) == 0 {
		return MetricResult{}, fmt.Errorf("%w: no verdicts", ErrJudgeOutput)
	}

	relevant, irrelevant := countNot(verdicts.Verdicts, "no")
	return m.result(ratio(relevant, len(verdicts.Verdicts)),
		fmt.Sprintf("%d of %d statements address the input%s", relevant, len(verdicts.Verdicts), reasons(irrelevant))), nil
}

// -----------------------------------------------------------------------------
// Faithfulness
// -----------------------------------------------------------------------------

// faithfulness extracts the answer's claims and checks each against the
// retrieval context.
type faithfulness struct{ baseMetric }

func (m *faithfulness) Measure(ctx context.Context, tc *TestCase) (MetricResult, error) {
	var claims claimList
	if err := m.judge.Ask(ctx, claimsPrompt(tc.ActualOutput), &claims); err != nil {
		return MetricResult{}, err
	}
	if len(claims.Claims) == 0 {
		return m.result(1, "the answer makes no factual claims"), nil
	}

	var verdicts verdictList
	if err := m.judge.Ask(ctx, faithfulnessVerdictsPrompt(claims.Claims, tc.RetrievalContext), &verdicts); err != nil {
		return MetricResult{}, err
	}
	if len(verdicts.Verdicts) == 0 {
		return MetricResult{}, fmt.Errorf("%w: no verdicts", ErrJudgeOutput)
	}

	supported, contradicted := countNot(verdicts.Verdicts, "no")
	return m.result(ratio(supported, len(verdicts.Verdicts)),
		fmt.Sprintf("%d of %d claims are not contradicted by the retrieval context%s", supported, len(verdicts.Verdicts), reasons(contradicted))), nil
}

// -----------------------------------------------------------------------------
// Contextual Relevancy
// -----------------------------------------------------------------------------

// contextualRelevancy asks, for each retrieval context item, which of its
// statements are relevant to the input.
type contextualRelevancy struct{ baseMetric }

func (m *contextualRelevancy) Measure(ctx context.Context, tc *TestCase) (MetricResult, error) {
	if len(tc.RetrievalContext) == 0 {
		return m.result(0, "no retrieval context"), nil
	}

	var all []verdict
	for _, item := range tc.RetrievalContext {
		var verdicts verdictList
		if err := m.judge.Ask(ctx, contextVerdictsPrompt(tc.Input, item), &verdicts); err != nil {
			return MetricResult{}, err
		}
		all = append(all, verdicts.Verdicts...)
	}
	if len(all) == 0 {
		return MetricResult{}, fmt.Errorf("%w: no verdicts", ErrJudgeOutput)
	}

	relevant := 0
	var irrelevant []verdict
	for _, v := range all {
		if v.normalised() == "yes" {
			relevant++
		} else {
			irrelevant = append(irrelevant, v)
		}
	}
	return m.result(ratio(relevant, len(all)),
		fmt.Sprintf("%d of %d retrieved statements are relevant%s", relevant, len(all), reasons(irrelevant))), nil
}

// -----------------------------------------------------------------------------
// GEval
// -----------------------------------------------------------------------------

// gEval scores custom criteria on a 0-10 scale.
type gEval struct {
	baseMetric
	criteria string
	steps    []string
	params   []string
}

func (m *gEval) Measure(ctx context.Context, tc *TestCase) (MetricResult, error) {
	var score gevalScore
	if err := m.judge.Ask(ctx, gevalPrompt(m.name, m.criteria, m.steps, m.params, tc), &score); err != nil {
		return MetricResult{}, err
	}
	if score.Score < 0 || score.Score > 10 {
		return MetricResult{}, fmt.Errorf("%w: score %.2f outside 0-10", ErrJudgeOutput, score.Score)
	}
	return m.result(score.Score/10, strings.TrimSpace(score.Reason)), nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// countNot counts verdicts other than excluded, returning the excluded ones.
func countNot(verdicts []verdict, excluded string) (int, []verdict) {
	n := 0
	var rest []verdict
	for _, v := range verdicts {
		if v.normalised() == excluded {
			rest = append(rest, v)
			continue
		}
		n++
	}
	return n, rest
}

func reasons(vs []verdict) string {
	var parts []string
	for _, v := range vs {
		if r := strings.TrimSpace(v.Reason); r != "" {
			parts = append(parts, r)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "; " + strings.Join(parts, "; ")
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
