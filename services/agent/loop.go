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
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/CodeGraphEval/services/llm"
	"github.com/AleutianAI/CodeGraphEval/services/tools"
)

// DefaultMaxTurns bounds model round trips per answer.
const DefaultMaxTurns = 8

var (
	meter = otel.Meter("cgeval/agent")

	instrumentsOnce sync.Once
	modelLatency    metric.Float64Histogram
	modelTokens     metric.Int64Counter
)

func initInstruments() {
	instrumentsOnce.Do(func() {
		var err error
		modelLatency, err = meter.Float64Histogram("cgeval.model.latency",
			metric.WithUnit("s"),
			metric.WithDescription("Latency of model calls made while answering"))
		if err != nil {
			slog.Warn("Failed to create model latency histogram", "error", err)
		}
		modelTokens, err = meter.Int64Counter("cgeval.model.tokens",
			metric.WithDescription("Tokens used by model calls, by direction"))
		if err != nil {
			slog.Warn("Failed to create model token counter", "error", err)
		}
	})
}

// recordModelCall records latency and token usage of one model call.
func recordModelCall(ctx context.Context, model string, elapsed time.Duration, resp *llm.Response) {
	initInstruments()
	attrs := attribute.String("model", model)
	if modelLatency != nil {
		modelLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs))
	}
	if modelTokens != nil && resp != nil {
		modelTokens.Add(ctx, int64(resp.InputTokens), metric.WithAttributes(attrs, attribute.String("direction", "input")))
		modelTokens.Add(ctx, int64(resp.OutputTokens), metric.WithAttributes(attrs, attribute.String("direction", "output")))
	}
}

// LoopConfig configures a ToolLoopAgent.
type LoopConfig struct {
	// SystemPrompt defaults to DefaultSystemPrompt.
	SystemPrompt string

	// MaxTurns is the maximum number of model calls. Defaults to DefaultMaxTurns.
	MaxTurns int

	// MaxTokens is the per-call response budget. Zero uses the client default.
	MaxTokens int

	// Temperature is passed through when set.
	Temperature *float64
}

// ToolLoopAgent answers with the model's native tool use.
//
// Thread Safety:
//
//	Safe for concurrent use. Each Ask keeps its own conversation.
type ToolLoopAgent struct {
	client   llm.Client
	registry *tools.Registry
	cfg      LoopConfig
}

// NewToolLoopAgent creates a native tool-use agent.
func NewToolLoopAgent(client llm.Client, registry *tools.Registry, cfg LoopConfig) *ToolLoopAgent {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	return &ToolLoopAgent{client: client, registry: registry, cfg: cfg}
}

// Mode implements Agent.
func (a *ToolLoopAgent) Mode() string { return ModeNative }

// Ask implements Agent.
//
// # Description
//
// Sends the prompt with the registry's tool definitions. While the model
// stops for tool use, every requested call is executed in order and its
// output returned as a tool_result. Tool failures go back to the model
// flagged is_error so it can retry; only context cancellation aborts.
//
// # Outputs
//
//   - *Answer: Final text plus every tool invocation.
//   - error: ErrTooManyTurns, ErrEmptyAnswer, a model error or ctx.Err().
//     The partial Answer is returned alongside.
func (a *ToolLoopAgent) Ask(ctx context.Context, prompt string) (*Answer, error) {
	ctx, span := otel.Tracer("cgeval/agent").Start(ctx, "agent.ask")
	defer span.End()
	span.SetAttributes(attribute.String("agent.mode", ModeNative))

	start := time.Now()
	answer := &Answer{Mode: ModeNative, Model: a.client.Model()}
	defer func() { answer.Duration = time.Since(start) }()

	messages := llm.UserText(prompt)
	definitions := a.registry.Definitions()

	for turn := 1; turn <= a.cfg.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return answer, err
		}

		callStart := time.Now()
		resp, err := a.client.Complete(ctx, &llm.Request{
			SystemPrompt: a.cfg.SystemPrompt,
			Messages:     messages,
			Tools:        definitions,
			ToolChoice:   llm.ToolChoiceAuto(),
			MaxTokens:    a.cfg.MaxTokens,
			Temperature:  a.cfg.Temperature,
		})
		recordModelCall(ctx, a.client.Model(), time.Since(callStart), resp)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return answer, fmt.Errorf("turn %d: %w", turn, err)
		}

		answer.Turns = turn
		answer.Usage.InputTokens += resp.InputTokens
		answer.Usage.OutputTokens += resp.OutputTokens
		if resp.Model != "" {
			answer.Model = resp.Model
		}

		if !resp.HasToolCalls() {
			answer.Text = strings.TrimSpace(resp.Content)
			span.SetAttributes(
				attribute.Int("agent.turns", turn),
				attribute.Int("agent.tool_calls", len(answer.Invocations)),
			)
			if answer.Text == "" {
				return answer, ErrEmptyAnswer
			}
			slog.Debug("Agent answered", "turns", turn, "tool_calls", len(answer.Invocations))
			return answer, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		results := make([]llm.ToolCallResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			inv := a.runTool(ctx, turn, call)
			if err := ctx.Err(); err != nil {
				return answer, err
			}
			answer.Invocations = append(answer.Invocations, inv)
			results = append(results, llm.ToolCallResult{
				ToolCallID: call.ID,
				Content:    inv.Output,
				IsError:    inv.IsError,
			})
		}
		messages = append(messages, llm.Message{Role: llm.RoleTool, ToolResults: results})
	}

	span.SetStatus(codes.Error, ErrTooManyTurns.Error())
	return answer, fmt.Errorf("%w: model still calling tools after %d turns", ErrTooManyTurns, a.cfg.MaxTurns)
}

func (a *ToolLoopAgent) runTool(ctx context.Context, turn int, call llm.ToolCall) ToolInvocation {
	inv := ToolInvocation{ID: call.ID, Tool: call.Name, Input: call.Arguments, Turn: turn}

	start := time.Now()
	res, err := a.registry.Execute(ctx, call.Name, call.Arguments)
	inv.Duration = time.Since(start)

	switch {
	case err != nil:
		inv.Output = "Error: " + err.Error()
		inv.IsError = true
	case !res.Success:
		inv.Output = res.Text()
		inv.IsError = true
	default:
		inv.Output = res.Text()
	}

	slog.Debug("Tool call",
		"turn", turn,
		"tool", call.Name,
		"is_error", inv.IsError,
		"duration", inv.Duration)
	return inv
}
