// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"encoding/json"
	"strings"

	lctools "github.com/tmc/langchaingo/tools"
)

// langchainTool adapts a Tool to langchaingo's string-in, string-out
// interface for the ReAct agent.
type langchainTool struct {
	registry    *Registry
	name        string
	target      string
	field       string
	description string
}

var _ lctools.Tool = (*langchainTool)(nil)

// NewLangchainTool exposes a registered tool to a langchaingo agent.
//
// # Inputs
//
//   - registry: Registry holding the target tool.
//   - name: Name the ReAct agent sees, e.g. memgraph_query.
//   - target: Registered tool to call.
//   - field: Parameter that receives plain-text input. A JSON object input
//     is passed through unchanged.
//   - description: What the agent is told the tool does.
func NewLangchainTool(registry *Registry, name, target, field, description string) lctools.Tool {
	return &langchainTool{
		registry:    registry,
		name:        name,
		target:      target,
		field:       field,
		description: description,
	}
}

func (t *langchainTool) Name() string { return t.name }

func (t *langchainTool) Description() string { return t.description }

// Call runs the tool. Failures come back as observations so the agent can
// correct its query instead of aborting the chain.
func (t *langchainTool) Call(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	input = strings.Trim(input, "`")
	input = strings.TrimSpace(strings.TrimPrefix(input, "cypher"))

	raw := input
	if !strings.HasPrefix(input, "{") || !json.Valid([]byte(input)) {
		data, err := json.Marshal(map[string]string{t.field: input})
		if err != nil {
			return "", err
		}
		raw = string(data)
	}

	result, err := t.registry.Execute(ctx, t.target, raw)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "Error: " + err.Error(), nil
	}
	return result.Text(), nil
}
