// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/agents"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/schema"
	lctools "github.com/tmc/langchaingo/tools"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/CodeGraphEval/services/tools"
)

// ReActToolName is the single tool the ReAct agent sees.
const ReActToolName = "memgraph_query"

const reactToolDescription = "Query the Memgraph database for code structure information using Cypher queries. " +
	"Use this to find classes, methods, attributes, and their relationships. " +
	"Input is a single read-only Cypher query. Classes are (:Class {name, qualified_name, file_path}); " +
	"attributes are (:Class)-[:HAS_ATTRIBUTE]->(:Attribute {name})."

// NewAnthropicModel builds the langchaingo Anthropic model used by ReActAgent.
//
// baseURL is the Messages endpoint as configured for the native client; the
// trailing /messages is removed because langchaingo appends it.
func NewAnthropicModel(apiKey, model, baseURL string) (llms.Model, error) {
	opts := []anthropic.Option{anthropic.WithToken(apiKey), anthropic.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(baseURL, "/messages")))
	}
	m, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create langchaingo anthropic model: %w", err)
	}
	return m, nil
}

// ReActAgent answers through a langchaingo one-shot ReAct agent.
type ReActAgent struct {
	model         llms.Model
	modelName     string
	registry      *tools.Registry
	maxIterations int
}

// NewReActAgent creates a ReAct agent whose memgraph_query tool runs the
// registry's run_query tool.
func NewReActAgent(model llms.Model, modelName string, registry *tools.Registry, maxIterations int) *ReActAgent {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxTurns
	}
	return &ReActAgent{model: model, modelName: modelName, registry: registry, maxIterations: maxIterations}
}

// Mode implements Agent.
func (a *ReActAgent) Mode() string { return ModeReAct }

// Ask implements Agent.
func (a *ReActAgent) Ask(ctx context.Context, prompt string) (*Answer, error) {
	ctx, span := otel.Tracer("cgeval/agent").Start(ctx, "agent.ask")
	defer span.End()
	span.SetAttributes(attribute.String("agent.mode", ModeReAct))

	start := time.Now()
	rec := &reactRecorder{}
	tool := &recordingTool{
		Tool: tools.NewLangchainTool(a.registry, ReActToolName, tools.RunQueryName, "query", reactToolDescription),
		rec:  rec,
	}

	oneShot := agents.NewOneShotAgent(a.model, []lctools.Tool{tool},
		agents.WithMaxIterations(a.maxIterations),
		agents.WithCallbacksHandler(rec),
	)
	executor := agents.NewExecutor(oneShot,
		agents.WithMaxIterations(a.maxIterations),
		agents.WithCallbacksHandler(rec),
		agents.WithParserErrorHandler(agents.NewParserErrorHandler(nil)),
	)

	out, err := chains.Run(ctx, executor, prompt)
	answer := rec.answer()
	answer.Text = strings.TrimSpace(out)
	answer.Mode = ModeReAct
	answer.Model = a.modelName
	answer.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("agent.tool_calls", len(answer.Invocations)))

	if err != nil {
		if errors.Is(err, agents.ErrNotFinished) {
			return answer, fmt.Errorf("%w: %v", ErrTooManyTurns, err)
		}
		return answer, fmt.Errorf("react agent: %w", err)
	}
	if answer.Text == "" {
		return answer, ErrEmptyAnswer
	}
	return answer, nil
}

// reactRecorder collects agent steps and token usage from langchaingo callbacks.
type reactRecorder struct {
	callbacks.SimpleHandler

	mu          sync.Mutex
	turns       int
	usage       Usage
	invocations []ToolInvocation
}

func (r *reactRecorder) HandleAgentAction(_ context.Context, action schema.AgentAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns++
	slog.Debug("ReAct action", "tool", action.Tool, "input", action.ToolInput)
}

func (r *reactRecorder) HandleAgentFinish(_ context.Context, _ schema.AgentFinish) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns++
}

func (r *reactRecorder) HandleLLMGenerateContentEnd(_ context.Context, res *llms.ContentResponse) {
	if res == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, choice := range res.Choices {
		if choice == nil {
			continue
		}
		r.usage.InputTokens += intInfo(choice.GenerationInfo, "InputTokens")
		r.usage.OutputTokens += intInfo(choice.GenerationInfo, "OutputTokens")
	}
}

func (r *reactRecorder) record(inv ToolInvocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv.Turn = r.turns
	r.invocations = append(r.invocations, inv)
}

func (r *reactRecorder) answer() *Answer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Answer{
		Turns:       r.turns,
		Usage:       r.usage,
		Invocations: append([]ToolInvocation(nil), r.invocations...),
	}
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// recordingTool records each call of the wrapped tool.
type recordingTool struct {
	lctools.Tool
	rec *reactRecorder
}

func (t *recordingTool) Call(ctx context.Context, input string) (string, error) {
	start := time.Now()
	out, err := t.Tool.Call(ctx, input)
	t.rec.record(ToolInvocation{
		Tool:     t.Name(),
		Input:    input,
		Output:   out,
		IsError:  err != nil || strings.HasPrefix(out, "Error:"),
		Duration: time.Since(start),
	})
	return out, err
}
