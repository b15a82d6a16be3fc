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
	"log/slog"

	"github.com/AleutianAI/CodeGraphEval/services/agent"
	"github.com/AleutianAI/CodeGraphEval/services/graphstore"
)

// ContextProvider assembles the context fields of a test case.
type ContextProvider struct {
	store graphstore.Store
}

// NewContextProvider creates a provider. A nil store means offline: static
// scenario context is used in place of graph lookups.
func NewContextProvider(store graphstore.Store) *ContextProvider {
	return &ContextProvider{store: store}
}

// BuildTestCase turns an answer into a test case.
//
// # Description
//
// RetrievalContext is the answer's successful tool outputs followed by the
// class record read from the graph. When the class cannot be read (offline,
// missing class, graph error) the scenario's static context stands in.
// Context is the class record or static context, whichever is available.
//
// # Inputs
//
//   - ctx: Context for the graph lookup.
//   - sc: The scenario being run.
//   - input: The prompt as sent to the agent.
//   - answer: The agent's answer. May be nil.
//
// # Outputs
//
//   - *TestCase: Never nil.
func (p *ContextProvider) BuildTestCase(ctx context.Context, sc *Scenario, input string, answer *agent.Answer) *TestCase {
	tc := &TestCase{
		Input:          input,
		ExpectedOutput: sc.ExpectedOutput,
	}
	if answer != nil {
		tc.ActualOutput = answer.Text
	}

	ground := p.classContext(ctx, sc)
	tc.Context = append(tc.Context, ground...)
	tc.RetrievalContext = append(answer.ToolOutputs(), ground...)
	return tc
}

func (p *ContextProvider) classContext(ctx context.Context, sc *Scenario) []string {
	class := sc.ContextClass()
	if p.store == nil || class == "" {
		return sc.Context.Static
	}

	info, err := graphstore.ClassAttributes(ctx, p.store, class)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, graphstore.ErrClassNotFound) {
			level = slog.LevelInfo
		}
		slog.Log(ctx, level, "Using static context for scenario", "scenario", sc.ID, "class", class, "error", err)
		return sc.Context.Static
	}

	out := []string{info.Describe()}
	return append(out, sc.Context.Static...)
}
