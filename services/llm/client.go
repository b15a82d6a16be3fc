// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the language-model clients used by the evaluation
// harness: the model under test (Anthropic Messages API with native tool use)
// and the judge that scores its answers.
//
// Thread Safety:
//
//	All clients in this package are safe for concurrent use.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Stop reasons, normalised across providers.
const (
	StopReasonEnd       = "end_turn"
	StopReasonToolUse   = "tool_use"
	StopReasonMaxTokens = "max_tokens"
	StopReasonStopSeq   = "stop_sequence"
)

var (
	// ErrMissingAPIKey is returned when no API key can be found.
	ErrMissingAPIKey = errors.New("api key is missing")

	// ErrEmptyResponse is returned when the provider returns no content at all.
	ErrEmptyResponse = errors.New("empty response from model")
)

// HTTPStatusError is returned when a provider answers with a non-200 status.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("model API returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if sent again.
func (e *HTTPStatusError) Retryable() bool {
	switch e.StatusCode {
	case 429, 500, 502, 503, 504, 529:
		return true
	default:
		return false
	}
}

// Client defines the interface for LLM interactions.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends a request to the model and returns its response.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   request - The completion request
	//
	// Outputs:
	//   *Response - The model response
	//   error - Non-nil if the request failed
	Complete(ctx context.Context, request *Request) (*Response, error)

	// Name returns the provider name (e.g., "anthropic", "openai").
	Name() string

	// Model returns the model being used.
	Model() string
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	// Name is the tool name the model uses in tool calls.
	Name string `json:"name"`

	// Description tells the model when to use the tool.
	Description string `json:"description"`

	// InputSchema is the JSON schema of the tool input object.
	InputSchema map[string]any `json:"input_schema"`
}

// ToolChoice specifies how the model should select tools.
type ToolChoice struct {
	// Type is "auto", "any", "tool" or "none".
	Type string `json:"type"`

	// Name is required when Type is "tool".
	Name string `json:"name,omitempty"`
}

// ToolChoiceAuto allows the model to decide whether to call tools.
func ToolChoiceAuto() *ToolChoice {
	return &ToolChoice{Type: "auto"}
}

// ToolChoiceAny forces the model to call at least one tool.
func ToolChoiceAny() *ToolChoice {
	return &ToolChoice{Type: "any"}
}

// Request represents a completion request to the model.
type Request struct {
	// SystemPrompt is the system message.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// Tools defines available tools for the model.
	Tools []ToolDefinition `json:"tools,omitempty"`

	// ToolChoice controls tool selection behavior.
	// If nil, the provider default ("auto") applies.
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`

	// MaxTokens limits the response length. Zero uses the client default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness. Nil uses the provider default.
	Temperature *float64 `json:"temperature,omitempty"`

	// StopSequences defines sequences that stop generation.
	StopSequences []string `json:"stop_sequences,omitempty"`

	// ModelOverride uses a different model for this request only.
	ModelOverride string `json:"model_override,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	// Role is "user", "assistant", "system" or "tool".
	Role string `json:"role"`

	// Content is the text content.
	Content string `json:"content"`

	// ToolCalls contains tool invocations (assistant messages).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResults contains tool results (tool messages).
	ToolResults []ToolCallResult `json:"tool_results,omitempty"`
}

// ToolCall represents a tool invocation by the model.
type ToolCall struct {
	// ID is the provider's identifier for this call.
	ID string `json:"id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Arguments are the tool arguments as a JSON object.
	Arguments string `json:"arguments"`
}

// ToolCallResult contains the result of a tool call.
type ToolCallResult struct {
	// ToolCallID links back to the tool call.
	ToolCallID string `json:"tool_call_id"`

	// Content is the result content.
	Content string `json:"content"`

	// IsError indicates the tool failed.
	IsError bool `json:"is_error,omitempty"`
}

// Response represents a model response.
type Response struct {
	// Content is the concatenated text of the response.
	Content string `json:"content"`

	// ToolCalls contains any tool calls the model wants to make.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// StopReason indicates why generation stopped.
	StopReason string `json:"stop_reason"`

	// InputTokens is the input token count.
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the output token count.
	OutputTokens int `json:"output_tokens"`

	// Duration is how long the request took.
	Duration time.Duration `json:"duration"`

	// Model is the model that generated this response.
	Model string `json:"model,omitempty"`
}

// HasToolCalls returns true if the response contains tool calls.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Float64 returns a pointer to v, for optional request fields.
func Float64(v float64) *float64 {
	return &v
}

// UserText builds a single-message request body.
func UserText(text string) []Message {
	return []Message{{Role: RoleUser, Content: text}}
}
