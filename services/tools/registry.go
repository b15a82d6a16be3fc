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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/CodeGraphEval/services/llm"
)

// DefaultTimeout bounds a single tool execution.
const DefaultTimeout = 30 * time.Second

// Observer is told about every tool execution.
type Observer func(tool string, success bool, duration time.Duration)

// Registry manages tool registration, lookup and execution.
//
// Thread Safety:
//
//	Registry is fully thread-safe. All methods can be called concurrently.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Tool
	timeout  time.Duration
	observer Observer
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithObserver registers a callback invoked after each execution.
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) {
		r.observer = o
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byName:  make(map[string]Tool),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds tools, replacing any already registered under the same name.
func (r *Registry) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tool := range tools {
		if tool == nil {
			continue
		}
		r.byName[tool.Name()] = tool
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.byName[name]
	return tool, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the definitions of all tools sorted by name, ready to
// be sent with a model request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.byName))
	for _, tool := range r.byName {
		defs = append(defs, tool.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs a tool with raw JSON input as produced by the model.
//
// # Description
//
// Decodes rawInput into a parameter object, applies the registry timeout,
// and records a span and the observer callback.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - name: Tool name from the model's tool call.
//   - rawInput: JSON object. Empty means no parameters.
//
// # Outputs
//
//   - *Result: Tool outcome. Success=false results are not errors.
//   - error: ErrToolNotFound, ErrInvalidInput, ErrTimeout or
//     ErrExecutionFailed (wrapping the tool's own error).
func (r *Registry) Execute(ctx context.Context, name, rawInput string) (*Result, error) {
	invocationID := uuid.NewString()
	logger := slog.With("tool", name, "invocation_id", invocationID)

	tool, ok := r.Get(name)
	if !ok {
		logger.Warn("Tool not found")
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	params := map[string]any{}
	if strings.TrimSpace(rawInput) != "" {
		if err := json.Unmarshal([]byte(rawInput), &params); err != nil {
			logger.Warn("Tool input is not a JSON object", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	ctx, span := otel.Tracer("cgeval/tools").Start(ctx, "tool."+name)
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.invocation_id", invocationID),
	)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	logger.Debug("Executing tool")
	result, err := tool.Execute(ctx, params)
	duration := time.Since(start)

	if r.observer != nil {
		r.observer(name, err == nil && result != nil && result.Success, duration)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Error("Tool execution timed out", "timeout", r.timeout)
			return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, name, r.timeout)
		}
		logger.Warn("Tool execution failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
	}

	result.Duration = duration
	span.SetAttributes(
		attribute.Bool("tool.success", result.Success),
		attribute.Int("tool.rows", result.Rows),
	)
	logger.Debug("Tool executed",
		"success", result.Success,
		"rows", result.Rows,
		"duration", duration,
	)
	return result, nil
}
