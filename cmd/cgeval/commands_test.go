// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeGraphEval/cmd/cgeval/config"
	"github.com/AleutianAI/CodeGraphEval/services/eval"
	"github.com/AleutianAI/CodeGraphEval/services/graphstore"
)

func TestQuery(t *testing.T) {
	h := newHarness(t)
	h.store.OnQuery("RETURN c.name", graphstore.NewResult(
		[]string{"name"},
		[][]any{{"EnterpriseNewsAndEvents"}, {"NewsItem"}},
	))

	code, stdout, _ := h.run("query", "MATCH (c:Class) RETURN c.name")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "2 row(s)")
	assert.Contains(t, stdout, `"EnterpriseNewsAndEvents"`)
}

func TestQuery_RejectsWrites(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("query", "MATCH (n) DETACH DELETE n")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr, "write queries are not allowed")
	assert.Empty(t, h.store.Queried())
}

func TestQuery_StoreUnavailable(t *testing.T) {
	h := newHarness(t)
	h.dialErr = graphstore.ErrUnavailable
	code, _, stderr := h.run("query", "MATCH (n) RETURN n")
	assert.Equal(t, ExitFailed, code)
	assert.Contains(t, stderr, "graph store unavailable")
}

func TestClass(t *testing.T) {
	h := newHarness(t)
	code, stdout, _ := h.run("class", eval.EnterpriseClass)
	require.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "Attributes found: 3")
	assert.Contains(t, stdout, "1. content")
	assert.Contains(t, stdout, "3. title")
	assert.Contains(t, stdout, eval.EnterprisePath)

	code, _, stderr := h.run("class", "Missing")
	assert.Equal(t, ExitFailed, code)
	assert.Contains(t, stderr, "Missing")
}

const exportFile = `// exported graph
CREATE (:Class {name: "EnterpriseNewsAndEvents"});
CREATE (:Attribute {name: "title"});
`

func TestImport(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "graph.cypherl")
	require.NoError(t, os.WriteFile(path, []byte(exportFile), 0o600))

	code, stdout, _ := h.run("import", path, "--clear", "--yes")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "Imported 2 statement(s)")
	assert.Contains(t, stdout, "http://localhost:3000")

	executed := h.store.Executed()
	require.Len(t, executed, 3)
	assert.Equal(t, graphstore.ClearQuery, executed[0])
}

func TestImport_ClearNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "graph.cypherl")
	require.NoError(t, os.WriteFile(path, []byte(exportFile), 0o600))

	h.answer = false
	code, stdout, _ := h.run("import", path, "--clear")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "Import cancelled")
	assert.Empty(t, h.store.Executed())

	code, _, _ = h.run("import", filepath.Join(h.dir, "missing.cypherl"))
	assert.Equal(t, ExitUsage, code)
}

func TestMCPRegister_DryRun(t *testing.T) {
	h := newHarness(t)
	h.env["MEMGRAPH_HOST"] = "memgraph"

	code, stdout, _ := h.run("mcp", "register", "--dry-run")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, stdout,
		"claude mcp add memgraph -e MEMGRAPH_URL=bolt://memgraph:7687 -- uv run --with mcp-memgraph mcp-memgraph")
	assert.Empty(t, h.execed)
}

func TestMCPRegister_Runs(t *testing.T) {
	h := newHarness(t)

	code, stdout, _ := h.run("mcp", "register", "--yes")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, `MCP server "memgraph" registered`)
	require.Len(t, h.execed, 1)
	cfg := config.Default()
	assert.Equal(t, append([]string{"claude"}, mcpAddArgs(&cfg)...), h.execed[0])

	h.answer = false
	code, stdout, _ = h.run("mcp", "register")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "Registration cancelled")
	assert.Len(t, h.execed, 1)

	h.execErr = errors.New("exit status 1")
	code, _, stderr := h.run("mcp", "register", "-y")
	assert.Equal(t, ExitFailed, code)
	assert.Contains(t, stderr, "boom")
}

func TestMCPAddArgs_WithUser(t *testing.T) {
	cfg := config.Default()
	cfg.Memgraph.Username = "eval"
	assert.Equal(t, []string{
		"mcp", "add", "memgraph",
		"-e", "MEMGRAPH_URL=bolt://localhost:7687",
		"-e", "MEMGRAPH_USER=eval",
		"--", "uv", "run", "--with", "mcp-memgraph", "mcp-memgraph",
	}, mcpAddArgs(&cfg))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `claude mcp add 'two words' '' 'it'\''s'`,
		shellQuote([]string{"claude", "mcp", "add", "two words", "", "it's"}))
}

func TestEnv(t *testing.T) {
	h := newHarness(t)
	h.env["ANTHROPIC_API_KEY"] = "sk-ant-0123456789"
	h.env["MEMGRAPH_HOST"] = "localhost"

	code, stdout, _ := h.run("env")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "ANTHROPIC_API_KEY: sk-a…6789")
	assert.NotContains(t, stdout, "sk-ant-0123456789")
	assert.Contains(t, stdout, "LAB_PORT: (not set)")
	assert.Contains(t, stdout, "Config file: "+h.config)
	assert.Contains(t, stdout, "Bolt bolt://localhost:7687 reachable")
	assert.NotContains(t, stdout, "simulated answers")

	h.dialErr = graphstore.ErrUnavailable
	delete(h.env, "ANTHROPIC_API_KEY")
	code, stdout, _ = h.run("env")
	require.Equal(t, ExitOK, code, "env reports problems without failing")
	assert.Contains(t, stdout, "unreachable")
	assert.Contains(t, stdout, "evaluations will use simulated answers")
}
