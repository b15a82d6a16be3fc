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
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/CodeGraphEval/services/llm"
)

const judgeSystemPrompt = `You are a strict evaluator of answers produced by an AI assistant.
Reply with a single JSON object and nothing else. Do not wrap it in prose.`

var jsonFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Judge asks a language model to grade answers.
//
// Thread Safety:
//
//	Safe for concurrent use if the underlying client is.
type Judge struct {
	client    llm.Client
	model     string
	maxTokens int
}

// NewJudge creates a judge. model overrides the client's model when set.
func NewJudge(client llm.Client, model string) *Judge {
	return &Judge{client: client, model: model, maxTokens: 2048}
}

// Model returns the model grading answers.
func (j *Judge) Model() string {
	if j.model != "" {
		return j.model
	}
	return j.client.Model()
}

// Ask sends prompt and decodes the JSON reply into out.
//
// The reply may be bare JSON, fenced JSON, or JSON surrounded by prose; the
// outermost object is used. Anything else wraps ErrJudgeOutput.
func (j *Judge) Ask(ctx context.Context, prompt string, out any) error {
	resp, err := j.client.Complete(ctx, &llm.Request{
		SystemPrompt:  judgeSystemPrompt,
		Messages:      llm.UserText(prompt),
		MaxTokens:     j.maxTokens,
		Temperature:   llm.Float64(0),
		ModelOverride: j.model,
	})
	if err != nil {
		return fmt.Errorf("judge request: %w", err)
	}

	raw := extractJSONObject(resp.Content)
	if raw == "" {
		slog.Debug("Judge reply had no JSON object", "reply", resp.Content)
		return fmt.Errorf("%w: no JSON object in reply", ErrJudgeOutput)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrJudgeOutput, err)
	}
	return nil
}

func extractJSONObject(reply string) string {
	if m := jsonFencePattern.FindStringSubmatch(reply); m != nil {
		return m[1]
	}
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return ""
	}
	return reply[start : end+1]
}

// verdict is one yes/no/idk judgement.
type verdict struct {
	Statement string `json:"statement,omitempty"`
	Verdict   string `json:"verdict"`
	Reason    string `json:"reason,omitempty"`
}

func (v verdict) normalised() string {
	return strings.ToLower(strings.TrimSpace(v.Verdict))
}

type verdictList struct {
	Verdicts []verdict `json:"verdicts"`
}

type statementList struct {
	Statements []string `json:"statements"`
}

type claimList struct {
	Claims []string `json:"claims"`
}

type gevalScore struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}
