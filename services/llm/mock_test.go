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
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClient_QueuedResponses(t *testing.T) {
	mock := NewMockClient().
		QueueToolCall("run_query", map[string]any{"query": "MATCH (n) RETURN n"}).
		QueueFinalResponse("three attributes")

	ctx := context.Background()
	first, err := mock.Complete(ctx, &Request{Messages: UserText("q")})
	require.NoError(t, err)
	assert.True(t, first.HasToolCalls())
	assert.Equal(t, StopReasonToolUse, first.StopReason)
	assert.JSONEq(t, `{"query":"MATCH (n) RETURN n"}`, first.ToolCalls[0].Arguments)

	second, err := mock.Complete(ctx, &Request{Messages: UserText("q")})
	require.NoError(t, err)
	assert.Equal(t, "three attributes", second.Content)

	third, err := mock.Complete(ctx, &Request{Messages: UserText("q")})
	require.NoError(t, err)
	assert.Equal(t, "Mock response", third.Content)

	assert.Equal(t, 3, mock.CallCount())
	assert.NoError(t, mock.Verify())
}

func TestMockClient_VerifyUnconsumed(t *testing.T) {
	mock := NewMockClient().QueueFinalResponse("never read")
	assert.Error(t, mock.Verify())
}

func TestMockClient_Error(t *testing.T) {
	boom := errors.New("boom")
	mock := NewMockClient().WithError(boom)
	_, err := mock.Complete(context.Background(), &Request{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, mock.CallCount())
}

func TestMockClient_DelayHonoursContext(t *testing.T) {
	mock := NewMockClient().WithDelay(time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := mock.Complete(ctx, &Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockClient_ResponseFunc(t *testing.T) {
	mock := NewMockClient().WithResponseFunc(func(r *Request) (*Response, error) {
		return &Response{Content: "echo: " + r.Messages[0].Content}, nil
	})
	resp, err := mock.Complete(context.Background(), &Request{Messages: UserText("hi")})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", resp.Content)
	assert.Equal(t, "hi", mock.LastRequest().Messages[0].Content)
}

func TestLoadAPIKey(t *testing.T) {
	t.Run("env wins", func(t *testing.T) {
		t.Setenv("CGEVAL_TEST_KEY", " sk-env ")
		key, err := LoadAPIKey("CGEVAL_TEST_KEY", "/nonexistent")
		require.NoError(t, err)
		assert.Equal(t, "sk-env", key)
	})

	t.Run("secret file", func(t *testing.T) {
		t.Setenv("CGEVAL_TEST_KEY", "")
		path := filepath.Join(t.TempDir(), "anthropic_api_key")
		require.NoError(t, os.WriteFile(path, []byte("sk-file\n"), 0o600))

		key, err := LoadAPIKey("CGEVAL_TEST_KEY", path)
		require.NoError(t, err)
		assert.Equal(t, "sk-file", key)
	})

	t.Run("missing", func(t *testing.T) {
		t.Setenv("CGEVAL_TEST_KEY", "")
		_, err := LoadAPIKey("CGEVAL_TEST_KEY", "")
		assert.ErrorIs(t, err, ErrMissingAPIKey)
	})
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", MaskKey("abcd"))
	assert.Equal(t, "sk-a…wxyz", MaskKey("sk-abcdefghwxyz"))
}
