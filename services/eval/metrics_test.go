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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeGraphEval/services/llm"
)

// scriptedJudge answers each judge prompt with the first reply whose key
// appears in the prompt.
func scriptedJudge(replies map[string]string) (*Judge, *llm.MockClient) {
	client := llm.NewMockClient().WithResponseFunc(func(req *llm.Request) (*llm.Response, error) {
		prompt := req.Messages[0].Content
		for key, reply := range replies {
			if strings.Contains(prompt, key) {
				return &llm.Response{Content: reply, StopReason: llm.StopReasonEnd}, nil
			}
		}
		return nil, errors.New("unexpected judge prompt")
	})
	return NewJudge(client, "judge-model"), client
}

const (
	keyStatements   = "individual statements"
	keyRelevancy    = "relevant to answering the input"
	keyClaims       = "factual claim"
	keyFaithfulness = "contradicted by the retrieval context"
	keyContext      = "Split the context below"
	keyGEval        = "Evaluate the test case below"
)

func measure(t *testing.T, spec MetricSpec, judge *Judge, tc *TestCase) MetricResult {
	t.Helper()
	m, err := NewMetric(spec, judge)
	require.NoError(t, err)
	res, err := m.Measure(context.Background(), tc)
	require.NoError(t, err)
	return res
}

func TestAnswerRelevancy(t *testing.T) {
	judge, client := scriptedJudge(map[string]string{
		keyStatements: `{"statements": ["id is an attribute", "title is an attribute", "the weather is nice"]}`,
		keyRelevancy:  `{"verdicts": [{"verdict": "yes"}, {"verdict": "idk"}, {"verdict": "no", "reason": "off topic"}]}`,
	})

	res := measure(t, MetricSpec{Type: MetricAnswerRelevancy}, judge, &TestCase{Input: "list attributes", ActualOutput: "..."})

	assert.Equal(t, MetricAnswerRelevancy, res.Name)
	assert.InDelta(t, 2.0/3.0, res.Score, 1e-9)
	assert.Equal(t, DefaultAnswerRelevancyThreshold, res.Threshold)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Reason, "off topic")
	assert.Equal(t, 2, client.CallCount())

	req := client.LastRequest()
	require.NotNil(t, req.Temperature)
	assert.Zero(t, *req.Temperature)
	assert.Equal(t, "judge-model", req.ModelOverride)
}

func TestAnswerRelevancy_NoStatements(t *testing.T) {
	judge, client := scriptedJudge(map[string]string{
		keyStatements: `{"statements": []}`,
	})

	res := measure(t, MetricSpec{Type: MetricAnswerRelevancy}, judge, &TestCase{ActualOutput: ""})
	assert.Equal(t, 1.0, res.Score)
	assert.True(t, res.Passed)
	assert.Equal(t, 1, client.CallCount())
}

func TestFaithfulness_FencedReplies(t *testing.T) {
	judge, _ := scriptedJudge(map[string]string{
		keyClaims:       "Here you go:\n```json\n{\"claims\": [\"has id\", \"has title\"]}\n```",
		keyFaithfulness: "```\n{\"verdicts\": [{\"verdict\": \"yes\"}, {\"verdict\": \"idk\"}]}\n```",
	})

	res := measure(t, MetricSpec{Type: MetricFaithfulness, Threshold: floatPtr(0.9)}, judge, &TestCase{
		ActualOutput:     "It has id and title.",
		RetrievalContext: []string{"Class X has 2 attributes: id, title."},
	})
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, 0.9, res.Threshold)
	assert.True(t, res.Passed)
}

func TestContextualRelevancy(t *testing.T) {
	judge, client := scriptedJudge(map[string]string{
		keyContext: `{"verdicts": [{"statement": "a", "verdict": "yes"}, {"statement": "b", "verdict": "no", "reason": "unrelated"}]}`,
	})

	res := measure(t, MetricSpec{Type: MetricContextualRelevancy}, judge, &TestCase{
		Input:            "list attributes",
		RetrievalContext: []string{"first", "second"},
	})
	assert.InDelta(t, 0.5, res.Score, 1e-9)
	assert.False(t, res.Passed)
	assert.Equal(t, 2, client.CallCount())
}

func TestContextualRelevancy_NoContext(t *testing.T) {
	judge, client := scriptedJudge(nil)

	res := measure(t, MetricSpec{Type: MetricContextualRelevancy}, judge, &TestCase{Input: "q"})
	assert.Zero(t, res.Score)
	assert.False(t, res.Passed)
	assert.Equal(t, "no retrieval context", res.Reason)
	assert.Zero(t, client.CallCount())
}

func TestGEval(t *testing.T) {
	judge, client := scriptedJudge(map[string]string{
		keyGEval: `{"score": 8, "reason": "same path, different formatting"}`,
	})

	spec := MetricSpec{
		Type:      MetricGEval,
		Name:      "PathAccuracy",
		Threshold: floatPtr(0.8),
		Criteria:  "Same path as expected.",
		Params:    []string{ParamInput, ParamActualOutput, ParamExpectedOutput},
	}
	res := measure(t, spec, judge, &TestCase{Input: "path?", ActualOutput: "a.b.C", ExpectedOutput: "a.b.C"})

	assert.Equal(t, "PathAccuracy", res.Name)
	assert.InDelta(t, 0.8, res.Score, 1e-9)
	assert.True(t, res.Passed)
	assert.Equal(t, "same path, different formatting", res.Reason)

	prompt := client.LastRequest().Messages[0].Content
	assert.Contains(t, prompt, "Expected output:\na.b.C")
	assert.Contains(t, prompt, `"PathAccuracy"`)
}

func TestGEval_DefaultParams(t *testing.T) {
	judge, client := scriptedJudge(map[string]string{keyGEval: `{"score": 10}`})

	res := measure(t, MetricSpec{Type: MetricGEval, Name: "Format", Criteria: "c"}, judge, &TestCase{
		Input:          "in",
		ActualOutput:   "out",
		ExpectedOutput: "secret",
	})
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, DefaultGEvalThreshold, res.Threshold)
	assert.NotContains(t, client.LastRequest().Messages[0].Content, "secret")
}

func TestGEval_ScoreOutOfRange(t *testing.T) {
	judge, _ := scriptedJudge(map[string]string{keyGEval: `{"score": 11}`})

	m, err := NewMetric(MetricSpec{Type: MetricGEval, Name: "X", Criteria: "c"}, judge)
	require.NoError(t, err)
	_, err = m.Measure(context.Background(), &TestCase{})
	assert.ErrorIs(t, err, ErrJudgeOutput)
}

func TestMetric_UnparsableJudge(t *testing.T) {
	judge, _ := scriptedJudge(map[string]string{keyStatements: "Looks fine to me."})

	m, err := NewMetric(MetricSpec{Type: MetricAnswerRelevancy}, judge)
	require.NoError(t, err)

	_, err = m.Measure(context.Background(), &TestCase{ActualOutput: "x"})
	assert.ErrorIs(t, err, ErrJudgeOutput)

	results := MeasureAll(context.Background(), []Metric{m}, &TestCase{ActualOutput: "x"})
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.NotEmpty(t, results[0].Error)
}

func TestMetric_JudgeRequestError(t *testing.T) {
	client := llm.NewMockClient().WithError(errors.New("overloaded"))
	m, err := NewMetric(MetricSpec{Type: MetricFaithfulness}, NewJudge(client, ""))
	require.NoError(t, err)

	_, err = m.Measure(context.Background(), &TestCase{ActualOutput: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestNewMetric_Unknown(t *testing.T) {
	_, err := NewMetric(MetricSpec{Type: "bleu"}, nil)
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestMetricSpec_Defaults(t *testing.T) {
	assert.Equal(t, 0.7, MetricSpec{Type: MetricAnswerRelevancy}.EffectiveThreshold())
	assert.Equal(t, 0.7, MetricSpec{Type: MetricFaithfulness}.EffectiveThreshold())
	assert.Equal(t, 0.6, MetricSpec{Type: MetricContextualRelevancy}.EffectiveThreshold())
	assert.Equal(t, 0.8, MetricSpec{Type: MetricGEval, Threshold: floatPtr(0.8)}.EffectiveThreshold())
	assert.Equal(t, "faithfulness", MetricSpec{Type: MetricFaithfulness}.DisplayName())

	skipped := SkippedMetric(MetricSpec{Type: MetricFaithfulness}, "no judge available")
	assert.True(t, skipped.Skipped)
	assert.False(t, skipped.Passed)
	assert.Equal(t, 0.7, skipped.Threshold)
}

func TestMetricSpec_ZeroThreshold(t *testing.T) {
	spec := MetricSpec{Type: MetricFaithfulness, Threshold: floatPtr(0)}
	assert.Equal(t, 0.0, spec.EffectiveThreshold())

	judge, _ := scriptedJudge(map[string]string{
		keyClaims:       `{"claims": ["has id"]}`,
		keyFaithfulness: `{"verdicts": [{"verdict": "no"}]}`,
	})
	res := measure(t, spec, judge, &TestCase{
		ActualOutput:     "It has id.",
		RetrievalContext: []string{"title only"},
	})
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, 0.0, res.Threshold)
	assert.True(t, res.Passed)
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSONObject(`{"a":1}`))
	assert.Equal(t, `{"a":{"b":2}}`, extractJSONObject("Sure! {\"a\":{\"b\":2}} Hope that helps."))
	assert.Equal(t, `{"a":1}`, extractJSONObject("```json\n{\"a\":1}\n```"))
	assert.Empty(t, extractJSONObject("no json here"))
	assert.Empty(t, extractJSONObject("} backwards {"))
}

func TestJudge_Model(t *testing.T) {
	client := llm.NewMockClient().WithModel("claude-test")
	assert.Equal(t, "claude-test", NewJudge(client, "").Model())
	assert.Equal(t, "override", NewJudge(client, "override").Model())
}
