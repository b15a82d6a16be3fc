// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent answers a prompt with access to the code-graph tools.
//
// Three agents share one interface:
//
//   - ToolLoopAgent drives the model's native tool use: send, execute the
//     requested tools, return their results, repeat until a final answer.
//   - ReActAgent runs a langchaingo one-shot (Thought/Action/Observation)
//     agent with a single memgraph_query tool.
//   - SimulatedAgent returns canned answers so the pipeline runs without an
//     API key.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Agent modes.
const (
	ModeNative    = "native"
	ModeReAct     = "react"
	ModeSimulated = "simulated"
)

// Sentinel errors for agents.
var (
	// ErrTooManyTurns indicates the model kept calling tools past the turn budget.
	ErrTooManyTurns = errors.New("tool turn limit exceeded")

	// ErrEmptyAnswer indicates the model finished without any text.
	ErrEmptyAnswer = errors.New("model returned an empty answer")

	// ErrUnknownMode indicates an unsupported agent mode.
	ErrUnknownMode = errors.New("unknown agent mode")
)

// ToolInvocation records one tool call made while answering.
type ToolInvocation struct {
	ID       string        `json:"id,omitempty"`
	Tool     string        `json:"tool"`
	Input    string        `json:"input"`
	Output   string        `json:"output"`
	IsError  bool          `json:"is_error,omitempty"`
	Turn     int           `json:"turn"`
	Duration time.Duration `json:"duration"`
}

// Usage is the token usage across all model calls of an answer.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Answer is an agent's reply to a prompt.
type Answer struct {
	// Text is the final answer.
	Text string `json:"text"`

	// Invocations lists tool calls in the order they ran.
	Invocations []ToolInvocation `json:"invocations,omitempty"`

	// Turns is the number of model round trips.
	Turns int `json:"turns"`

	Usage    Usage         `json:"usage"`
	Duration time.Duration `json:"duration"`
	Model    string        `json:"model,omitempty"`
	Mode     string        `json:"mode"`
}

// ToolOutputs returns the outputs of successful tool calls, which form the
// retrieval context of the answer.
func (a *Answer) ToolOutputs() []string {
	if a == nil {
		return nil
	}
	var out []string
	for _, inv := range a.Invocations {
		if inv.IsError || strings.TrimSpace(inv.Output) == "" {
			continue
		}
		out = append(out, inv.Output)
	}
	return out
}

// Agent answers prompts.
type Agent interface {
	// Ask answers prompt, calling tools as the model sees fit.
	//
	// On error the partial Answer (tool calls so far) may still be returned.
	Ask(ctx context.Context, prompt string) (*Answer, error)

	// Mode returns ModeNative, ModeReAct or ModeSimulated.
	Mode() string
}
