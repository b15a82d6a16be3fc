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
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/CodeGraphEval/services/graphstore"
	"github.com/AleutianAI/CodeGraphEval/services/llm"
)

const cypherSystemPrompt = `You translate questions about a codebase into Cypher for Memgraph.

Graph model:
- (:Module {name, qualified_name, path})
- (:Class {name, qualified_name, file_path})
- (:Function {name, qualified_name}) and (:Method {name, qualified_name})
- (:Attribute {name})
- (:Class)-[:HAS_ATTRIBUTE]->(:Attribute)
- (:Module)-[:DEFINES]->(:Class|:Function)
- (:Class)-[:DEFINES_METHOD]->(:Method)
- (:Function|:Method)-[:CALLS]->(:Function|:Method)

Rules:
- Only read. Never use CREATE, MERGE, SET, DELETE or REMOVE.
- Return named columns.
- Answer with a single Cypher query inside a ` + "```cypher" + ` fence and nothing else.`

var fencedCypherPattern = regexp.MustCompile("(?s)```(?:cypher|sql)?\\s*\\n?(.*?)```")

// ExtractCypher pulls the query out of a model reply.
//
// The first fenced block wins; otherwise the trimmed reply is used as-is.
// A trailing ';' is removed.
func ExtractCypher(reply string) string {
	query := strings.TrimSpace(reply)
	if m := fencedCypherPattern.FindStringSubmatch(reply); m != nil {
		query = strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(strings.TrimSuffix(query, ";"))
}

// askGraphTool answers natural-language questions by having a second model
// write the Cypher.
type askGraphTool struct {
	client   llm.Client
	model    string
	store    graphstore.Store
	rowLimit int
}

// NewAskGraphTool creates the ask_graph tool.
//
// # Inputs
//
//   - client: Model client used to write Cypher.
//   - model: Cypher model ID. Empty uses the client's model.
//   - store: Graph store the query runs against.
//   - rowLimit: Row cap; zero uses DefaultRowCap.
func NewAskGraphTool(client llm.Client, model string, store graphstore.Store, rowLimit int) Tool {
	if rowLimit <= 0 {
		rowLimit = DefaultRowCap
	}
	return &askGraphTool{client: client, model: model, store: store, rowLimit: rowLimit}
}

func (t *askGraphTool) Name() string { return AskGraphName }

func (t *askGraphTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name: AskGraphName,
		Description: "Ask a question about the codebase in plain English. A Cypher query is generated, " +
			"run against the code graph, and returned together with its rows.",
		InputSchema: objectSchema("question", "The question, e.g. 'Which attributes does class Foo have?'"),
	}
}

type askGraphOutput struct {
	Cypher string          `json:"cypher"`
	Result json.RawMessage `json:"result"`
}

func (t *askGraphTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	question, ok := stringParam(params, "question")
	if !ok {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}

	system := cypherSystemPrompt
	if schema, err := graphstore.Schema(ctx, t.store); err == nil && len(schema.Labels) > 0 {
		system += fmt.Sprintf("\n\nLabels present: %s\nRelationship types present: %s",
			strings.Join(schema.Labels, ", "), strings.Join(schema.RelationshipTypes, ", "))
	}

	resp, err := t.client.Complete(ctx, &llm.Request{
		SystemPrompt:  system,
		Messages:      llm.UserText(question),
		MaxTokens:     1024,
		Temperature:   llm.Float64(0),
		ModelOverride: t.model,
	})
	if err != nil {
		return nil, fmt.Errorf("generate cypher: %w", err)
	}

	cypher := ExtractCypher(resp.Content)
	if cypher == "" {
		return &Result{Success: false, Error: "the cypher model returned no query"}, nil
	}
	slog.Debug("Generated Cypher", "question", question, "cypher", cypher)

	out, rows, err := RunReadOnly(ctx, t.store, cypher, t.rowLimit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Result{Success: false, Error: fmt.Sprintf("%v (query: %s)", err, cypher)}, nil
	}

	data, err := json.Marshal(askGraphOutput{Cypher: cypher, Result: json.RawMessage(out)})
	if err != nil {
		return nil, err
	}
	return &Result{Success: true, OutputText: string(data), Rows: rows}, nil
}
