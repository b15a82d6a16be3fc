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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeGraphEval/services/graphstore"
	"github.com/AleutianAI/CodeGraphEval/services/llm"
)

func fixtureStore() *graphstore.StaticStore {
	return graphstore.NewStaticStore().
		OnQuery("HAS_ATTRIBUTE", graphstore.NewResult(
			[]string{"attribute"},
			[][]any{{"content"}, {"id"}, {"title"}},
		)).
		WithSchema([]string{"Attribute", "Class"}, []string{"HAS_ATTRIBUTE"})
}

func newTestRegistry(store graphstore.Store, client llm.Client, opts ...RegistryOption) *Registry {
	r := NewRegistry(opts...)
	r.Register(
		NewQueryTool(store, 2),
		NewSchemaTool(store),
		NewAskGraphTool(client, "cypher-model", store, 0),
	)
	return r
}

func TestRegistry_Definitions(t *testing.T) {
	r := newTestRegistry(fixtureStore(), llm.NewMockClient())

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, AskGraphName, defs[0].Name)
	assert.Equal(t, SchemaName, defs[1].Name)
	assert.Equal(t, RunQueryName, defs[2].Name)
	assert.Equal(t, []string{AskGraphName, SchemaName, RunQueryName}, r.Names())
}

func TestRegistry_Execute_RunQuery(t *testing.T) {
	var (
		mu       sync.Mutex
		observed []string
	)
	r := newTestRegistry(fixtureStore(), llm.NewMockClient(), WithObserver(func(tool string, success bool, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		if success {
			observed = append(observed, tool)
		}
	}))

	res, err := r.Execute(context.Background(), RunQueryName,
		`{"query": "MATCH (c:Class)-[:HAS_ATTRIBUTE]->(a) RETURN a.name AS attribute"}`)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 3, res.Rows)

	var view struct {
		Rows      []map[string]any `json:"rows"`
		RowCount  int              `json:"row_count"`
		Truncated bool             `json:"truncated"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Text()), &view))
	assert.Len(t, view.Rows, 2)
	assert.Equal(t, 3, view.RowCount)
	assert.True(t, view.Truncated)
	assert.Equal(t, []string{RunQueryName}, observed)
}

func TestRegistry_Execute_WriteQueryRejected(t *testing.T) {
	store := fixtureStore()
	r := newTestRegistry(store, llm.NewMockClient())

	res, err := r.Execute(context.Background(), RunQueryName, `{"query": "MATCH (n) DETACH DELETE n"}`)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Text(), "write queries are not allowed")
	assert.Empty(t, store.Queried())
}

func TestRegistry_Execute_Errors(t *testing.T) {
	r := newTestRegistry(fixtureStore(), llm.NewMockClient())
	ctx := context.Background()

	_, err := r.Execute(ctx, "drop_tables", `{}`)
	assert.ErrorIs(t, err, ErrToolNotFound)

	_, err = r.Execute(ctx, RunQueryName, `not json`)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = r.Execute(ctx, RunQueryName, `{}`)
	assert.ErrorIs(t, err, ErrExecutionFailed)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegistry_Execute_StoreFailureIsResult(t *testing.T) {
	store := graphstore.NewStaticStore().FailQuery("RETURN", errors.New("syntax error near RETURN"))
	r := newTestRegistry(store, llm.NewMockClient())

	res, err := r.Execute(context.Background(), RunQueryName, `{"query": "MATCH (n) RETURN"}`)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Error: syntax error near RETURN", res.Text())
}

func TestSchemaTool(t *testing.T) {
	r := newTestRegistry(fixtureStore(), llm.NewMockClient())

	res, err := r.Execute(context.Background(), SchemaName, "")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.JSONEq(t, `{"labels":["Attribute","Class"],"relationship_types":["HAS_ATTRIBUTE"]}`, res.Text())
}

func TestAskGraphTool(t *testing.T) {
	mock := llm.NewMockClient().QueueFinalResponse(
		"Here you go:\n```cypher\nMATCH (c:Class {name: 'EnterpriseNewsAndEvents'})-[:HAS_ATTRIBUTE]->(a) RETURN a.name AS attribute;\n```")
	r := newTestRegistry(fixtureStore(), mock)

	res, err := r.Execute(context.Background(), AskGraphName, `{"question": "What attributes does EnterpriseNewsAndEvents have?"}`)
	require.NoError(t, err)
	require.True(t, res.Success)

	var out struct {
		Cypher string `json:"cypher"`
		Result struct {
			RowCount int `json:"row_count"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.OutputText), &out))
	assert.Equal(t, "MATCH (c:Class {name: 'EnterpriseNewsAndEvents'})-[:HAS_ATTRIBUTE]->(a) RETURN a.name AS attribute", out.Cypher)
	assert.Equal(t, 3, out.Result.RowCount)

	req := mock.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "cypher-model", req.ModelOverride)
	assert.Contains(t, req.SystemPrompt, "Labels present: Attribute, Class")
}

func TestAskGraphTool_RejectsGeneratedWrite(t *testing.T) {
	mock := llm.NewMockClient().QueueFinalResponse("```\nMATCH (n) SET n.seen = true\n```")
	r := newTestRegistry(fixtureStore(), mock)

	res, err := r.Execute(context.Background(), AskGraphName, `{"question": "mark everything"}`)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "SET")
}

func TestExtractCypher(t *testing.T) {
	assert.Equal(t, "MATCH (n) RETURN n", ExtractCypher("```cypher\nMATCH (n) RETURN n;\n```"))
	assert.Equal(t, "MATCH (n) RETURN n", ExtractCypher("  MATCH (n) RETURN n  "))
	assert.Equal(t, "MATCH (n) RETURN count(n)", ExtractCypher("Sure.\n```\nMATCH (n) RETURN count(n)\n```\nDone."))
	assert.Empty(t, ExtractCypher("   "))
}

func TestLangchainTool(t *testing.T) {
	r := newTestRegistry(fixtureStore(), llm.NewMockClient())
	tool := NewLangchainTool(r, "memgraph_query", RunQueryName, "query", "Query the code graph")

	assert.Equal(t, "memgraph_query", tool.Name())
	assert.Equal(t, "Query the code graph", tool.Description())

	out, err := tool.Call(context.Background(), "`MATCH (c)-[:HAS_ATTRIBUTE]->(a) RETURN a.name AS attribute`")
	require.NoError(t, err)
	assert.Contains(t, out, `"row_count":3`)

	out, err = tool.Call(context.Background(), `{"query": "CREATE (n)"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Error:")
}
