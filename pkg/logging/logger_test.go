// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warning ", LevelWarn, false},
		{"error", LevelError, false},
		{"trace", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.err {
				require.ErrorIs(t, err, ErrUnknownLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestNew_ConsoleFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelWarn, Output: &buf, Service: "cgeval"})
	require.NoError(t, err)

	logger.Slog().Info("hidden")
	logger.Slog().Warn("shown", "scenario", "enterprise-path")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "scenario=enterprise-path")
	assert.Contains(t, out, "service=cgeval")
	assert.Empty(t, logger.FilePath())
	require.NoError(t, logger.Close())
}

func TestNew_FileGetsJSONCopy(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer
	logger, err := New(Config{LogDir: dir, Service: "eval", Output: &buf})
	require.NoError(t, err)

	logger.Slog().Info("run finished", "passed", true)
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close(), "second close is a no-op")

	assert.True(t, strings.HasPrefix(filepath.Base(logger.FilePath()), "eval_"))
	data, err := os.ReadFile(logger.FilePath())
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "run finished", record["msg"])
	assert.Equal(t, true, record["passed"])
	assert.Equal(t, "eval", record["service"])
	assert.Contains(t, buf.String(), "run finished")
}

func TestNew_QuietWithoutFileDiscards(t *testing.T) {
	logger, err := New(Config{Quiet: true})
	require.NoError(t, err)
	logger.Slog().Error("nowhere")
	require.NoError(t, logger.Close())
}

func TestNew_BadLogDirStillLogs(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	var buf bytes.Buffer
	logger, err := New(Config{LogDir: filepath.Join(blocker, "logs"), Output: &buf})
	require.Error(t, err)
	require.NotNil(t, logger)

	logger.Slog().Info("still here")
	assert.Contains(t, buf.String(), "still here")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".cgeval/logs"), expandPath("~/.cgeval/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
}
