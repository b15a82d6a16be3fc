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
	"fmt"

	"github.com/AleutianAI/CodeGraphEval/services/graphstore"
	"github.com/AleutianAI/CodeGraphEval/services/llm"
)

// Tool names.
const (
	RunQueryName  = "run_query"
	SchemaName    = "get_schema"
	AskGraphName  = "ask_graph"
	DefaultRowCap = 100
)

// RunReadOnly checks that cypher is read-only, runs it and renders the rows
// as JSON with at most limit rows.
func RunReadOnly(ctx context.Context, store graphstore.Store, cypher string, limit int) (string, int, error) {
	if err := CheckReadOnly(cypher); err != nil {
		return "", 0, err
	}
	res, err := store.Query(ctx, cypher, nil)
	if err != nil {
		return "", 0, err
	}
	out, err := res.JSON(limit)
	if err != nil {
		return "", 0, err
	}
	return out, res.Len(), nil
}

// queryTool runs read-only Cypher against the graph.
type queryTool struct {
	store    graphstore.Store
	rowLimit int
}

// NewQueryTool creates the run_query tool.
//
// rowLimit caps the rows returned to the model; zero uses DefaultRowCap.
func NewQueryTool(store graphstore.Store, rowLimit int) Tool {
	if rowLimit <= 0 {
		rowLimit = DefaultRowCap
	}
	return &queryTool{store: store, rowLimit: rowLimit}
}

func (t *queryTool) Name() string { return RunQueryName }

func (t *queryTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name: RunQueryName,
		Description: "Run a read-only Cypher query against the Memgraph code graph and return the rows as JSON. " +
			"Classes are (:Class {name, qualified_name, file_path}) nodes; attributes are reached with " +
			"(:Class)-[:HAS_ATTRIBUTE]->(:Attribute {name}). Write clauses are rejected.",
		InputSchema: objectSchema("query", "The Cypher query to run"),
	}
}

func (t *queryTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	cypher, ok := stringParam(params, "query")
	if !ok {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}

	out, rows, err := RunReadOnly(ctx, t.store, cypher, t.rowLimit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Success: true, OutputText: out, Rows: rows}, nil
}

// schemaTool lists the labels and relationship types in the graph.
type schemaTool struct {
	store graphstore.Store
}

// NewSchemaTool creates the get_schema tool.
func NewSchemaTool(store graphstore.Store) Tool {
	return &schemaTool{store: store}
}

func (t *schemaTool) Name() string { return SchemaName }

func (t *schemaTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        SchemaName,
		Description: "List the node labels and relationship types present in the code graph.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *schemaTool) Execute(ctx context.Context, _ map[string]any) (*Result, error) {
	schema, err := graphstore.Schema(ctx, t.store)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Result{Success: false, Error: err.Error()}, nil
	}
	out, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	return &Result{
		Success:    true,
		OutputText: string(out),
		Rows:       len(schema.Labels) + len(schema.RelationshipTypes),
	}, nil
}
