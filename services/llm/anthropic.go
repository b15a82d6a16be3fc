// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const (
	anthropicAPIVersion = "2023-06-01"
	defaultBaseURL      = "https://api.anthropic.com/v1/messages"

	// DefaultAnthropicModel is used when no model is configured.
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"

	defaultMaxTokens  = 4096
	defaultTimeout    = 120 * time.Second
	defaultMaxRetries = 2
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      []systemBlock      `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Tools       []ToolDefinition   `json:"tools,omitempty"`
	ToolChoice  *ToolChoice        `json:"tool_choice,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	StopSeqs    []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

// contentBlock covers the text, tool_use and tool_result block shapes.
type contentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// thinking
	Thinking string `json:"thinking,omitempty"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"` // Must be "ephemeral"
}

type anthropicResponse struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Role       string          `json:"role"`
	Model      string          `json:"model"`
	Content    []contentBlock  `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      anthropicUsage  `json:"usage"`
	Error      *anthropicError `json:"error,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. Required. Moved into locked memory
	// by NewAnthropicClient.
	APIKey string

	// Model is the model ID. Defaults to DefaultAnthropicModel.
	Model string

	// BaseURL is the Messages endpoint. Defaults to the public API.
	BaseURL string

	// MaxTokens is the default response budget. Defaults to 4096.
	MaxTokens int

	// Timeout bounds a single HTTP request. Defaults to 120s.
	Timeout time.Duration

	// RequestsPerMinute paces outgoing requests. Zero disables pacing.
	RequestsPerMinute int

	// MaxRetries is the number of retries on 429/5xx. Negative disables retries.
	MaxRetries int

	// HTTPClient overrides the HTTP client (tests).
	HTTPClient *http.Client
}

// AnthropicClient talks to the Anthropic Messages API over REST.
//
// Thread Safety:
//
//	AnthropicClient is safe for concurrent use.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     *memguard.Enclave
	model      string
	baseURL    string
	maxTokens  int
	maxRetries int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewAnthropicClient creates a client for the Messages API.
//
// # Description
//
// The API key is sealed in a memguard enclave and only unsealed for the
// duration of a request. Missing model, URL, token budget and timeout fall
// back to defaults.
//
// # Inputs
//
//   - cfg: Client configuration. APIKey is required.
//
// # Outputs
//
//   - *AnthropicClient: The client.
//   - error: ErrMissingAPIKey if no key was given.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		slog.Warn("Anthropic API Key is missing.")
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}

	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
		slog.Info("Anthropic model not set, defaulting to", "model", cfg.Model)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &AnthropicClient{
		httpClient: httpClient,
		apiKey:     memguard.NewEnclave([]byte(cfg.APIKey)),
		model:      cfg.Model,
		baseURL:    cfg.BaseURL,
		maxTokens:  cfg.MaxTokens,
		maxRetries: cfg.MaxRetries,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     slog.Default().With("provider", "anthropic"),
	}, nil
}

// Name implements Client.
func (a *AnthropicClient) Name() string { return "anthropic" }

// Model implements Client.
func (a *AnthropicClient) Model() string { return a.model }

// Complete implements Client.
//
// # Description
//
// Converts the request to Messages API blocks, sends it (pacing and
// retrying on 429/5xx), and folds the returned blocks back into a Response.
// tool_use blocks become ToolCalls; thinking blocks are logged only.
//
// # Inputs
//
//   - ctx: Context for cancellation. Must not be nil.
//   - request: The completion request. Must not be nil.
//
// # Outputs
//
//   - *Response: Text, tool calls, stop reason and token usage.
//   - error: Transport, status (*HTTPStatusError) or decoding failure.
func (a *AnthropicClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	if request == nil {
		return nil, errors.New("request must not be nil")
	}

	model := a.model
	if request.ModelOverride != "" {
		model = request.ModelOverride
	}

	ctx, span := otel.Tracer("cgeval/llm").Start(ctx, "anthropic.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.messages", len(request.Messages)),
		attribute.Int("llm.tools", len(request.Tools)),
	)

	payload, err := a.buildPayload(model, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := time.Now()
	body, err := a.sendWithRetry(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp, err := parseAnthropicResponse(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	resp.Duration = time.Since(start)
	if resp.Model == "" {
		resp.Model = model
	}

	span.SetAttributes(
		attribute.String("llm.stop_reason", resp.StopReason),
		attribute.Int("llm.input_tokens", resp.InputTokens),
		attribute.Int("llm.output_tokens", resp.OutputTokens),
		attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
	)
	return resp, nil
}

func (a *AnthropicClient) buildPayload(model string, request *Request) ([]byte, error) {
	var apiMessages []anthropicMessage
	systemPrompt := request.SystemPrompt

	for _, msg := range request.Messages {
		switch strings.ToLower(msg.Role) {
		case RoleSystem:
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
		case RoleTool:
			blocks := make([]contentBlock, 0, len(msg.ToolResults))
			for _, r := range msg.ToolResults {
				blocks = append(blocks, contentBlock{
					Type:      "tool_result",
					ToolUseID: r.ToolCallID,
					Content:   r.Content,
					IsError:   r.IsError,
				})
			}
			apiMessages = appendMerged(apiMessages, RoleUser, blocks)
		case RoleAssistant:
			var blocks []contentBlock
			if msg.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				input := json.RawMessage(call.Arguments)
				if len(input) == 0 || !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, contentBlock{Type: "tool_use", ID: call.ID, Name: call.Name, Input: input})
			}
			apiMessages = appendMerged(apiMessages, RoleAssistant, blocks)
		default:
			apiMessages = appendMerged(apiMessages, RoleUser, []contentBlock{{Type: "text", Text: msg.Content}})
		}
	}

	if len(apiMessages) == 0 {
		return nil, errors.New("request has no user or assistant messages")
	}

	var systemBlocks []systemBlock
	if systemPrompt != "" {
		block := systemBlock{Type: "text", Text: systemPrompt}
		if len(systemPrompt) > 1024 {
			block.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		systemBlocks = append(systemBlocks, block)
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	reqPayload := anthropicRequest{
		Model:       model,
		Messages:    apiMessages,
		System:      systemBlocks,
		MaxTokens:   maxTokens,
		Tools:       request.Tools,
		Temperature: request.Temperature,
		StopSeqs:    request.StopSequences,
	}
	if len(request.Tools) > 0 {
		reqPayload.ToolChoice = request.ToolChoice
	}

	data, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return data, nil
}

// appendMerged appends blocks under role, merging into the previous message
// when it has the same role (the API rejects consecutive same-role turns).
func appendMerged(msgs []anthropicMessage, role string, blocks []contentBlock) []anthropicMessage {
	if len(blocks) == 0 {
		return msgs
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == role {
		msgs[n-1].Content = append(msgs[n-1].Content, blocks...)
		return msgs
	}
	return append(msgs, anthropicMessage{Role: role, Content: blocks})
}

func (a *AnthropicClient) sendWithRetry(ctx context.Context, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, retryAfter, err := a.send(ctx, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var statusErr *HTTPStatusError
		if !errors.As(err, &statusErr) || !statusErr.Retryable() || attempt == a.maxRetries {
			return nil, err
		}

		wait := retryAfter
		if wait <= 0 {
			wait = time.Duration(1<<attempt) * time.Second
		}
		a.logger.Warn("Anthropic request failed, retrying",
			"status", statusErr.StatusCode, "attempt", attempt+1, "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (a *AnthropicClient) send(ctx context.Context, payload []byte) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	key, err := a.apiKey.Open()
	if err != nil {
		return nil, 0, fmt.Errorf("unseal api key: %w", err)
	}
	defer key.Destroy()

	req.Header.Set("x-api-key", key.String())
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	a.logger.Debug("Sending REST request to Anthropic", "bytes", len(payload))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response body: %w", err)
	}
	a.logger.Debug("Raw Anthropic Response", "status", resp.StatusCode, "body_length", len(bodyBytes))

	if resp.StatusCode != http.StatusOK {
		return nil, parseRetryAfter(resp.Header.Get("retry-after")), &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
		}
	}
	return bodyBytes, 0, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func parseAnthropicResponse(body []byte) (*Response, error) {
	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("anthropic API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	if len(apiResp.Content) == 0 {
		return nil, ErrEmptyResponse
	}

	resp := &Response{
		StopReason:   apiResp.StopReason,
		InputTokens:  apiResp.Usage.InputTokens,
		OutputTokens: apiResp.Usage.OutputTokens,
		Model:        apiResp.Model,
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := string(block.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		case "thinking":
			slog.Debug("Claude Thoughts", "thinking", block.Thinking)
		}
	}
	resp.Content = text.String()

	return resp, nil
}
