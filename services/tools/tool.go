// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools exposes the code graph to a language model as callable
// tools: run_query for read-only Cypher, get_schema for the graph's labels
// and relationship types, and ask_graph for natural-language questions
// translated to Cypher by a second model.
//
// The same tools back the native tool-use loop (through Registry) and the
// ReAct agent (through the langchaingo adapter).
//
// Thread Safety:
//
//	All tools and the Registry are safe for concurrent use.
package tools

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/CodeGraphEval/services/llm"
)

// Sentinel errors for tool execution.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidInput indicates the tool input was not a valid JSON object
	// or lacked a required field.
	ErrInvalidInput = errors.New("invalid tool input")

	// ErrExecutionFailed indicates the tool itself failed.
	ErrExecutionFailed = errors.New("tool execution failed")

	// ErrTimeout indicates the tool execution timed out.
	ErrTimeout = errors.New("tool execution timed out")
)

// Tool is a capability the model may invoke.
type Tool interface {
	// Name returns the name the model uses to call the tool.
	Name() string

	// Definition returns the schema sent to the model.
	Definition() llm.ToolDefinition

	// Execute runs the tool with decoded JSON parameters.
	//
	// A Result with Success=false is a failure the model should see and
	// recover from. A non-nil error is a harness-level failure.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result is the outcome of a tool execution.
type Result struct {
	// Success is false when the tool ran but could not answer.
	Success bool `json:"success"`

	// OutputText is what the model sees.
	OutputText string `json:"output"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`

	// Rows is the number of graph rows behind the output, if any.
	Rows int `json:"rows,omitempty"`

	// Duration is how long the execution took.
	Duration time.Duration `json:"duration"`
}

// Text returns the content to hand back to the model.
func (r *Result) Text() string {
	if r.Success {
		return r.OutputText
	}
	if r.Error != "" {
		return "Error: " + r.Error
	}
	return "Error: tool failed without a message"
}

func stringParam(params map[string]any, name string) (string, bool) {
	v, ok := params[name].(string)
	return v, ok && v != ""
}

func objectSchema(required string, description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			required: map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{required},
	}
}
