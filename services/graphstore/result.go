// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphstore

import (
	"encoding/json"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result holds the rows of a query.
//
// Values are normalised on construction: nodes, relationships and paths
// become plain maps so the result can be rendered as JSON for the model.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewResult builds a Result, normalising every value.
func NewResult(columns []string, rows [][]any) *Result {
	out := &Result{Columns: columns, Rows: make([][]any, 0, len(rows))}
	for _, row := range rows {
		normalised := make([]any, len(row))
		for i, v := range row {
			normalised[i] = normalise(v)
		}
		out.Rows = append(out.Rows, normalised)
	}
	return out
}

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Records returns each row as a column-keyed map.
func (r *Result) Records() []map[string]any {
	if r == nil {
		return nil
	}
	records := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records
}

// Value returns the value of column in row i, or nil.
func (r *Result) Value(i int, column string) any {
	if r == nil || i < 0 || i >= len(r.Rows) {
		return nil
	}
	for c, name := range r.Columns {
		if name == column && c < len(r.Rows[i]) {
			return r.Rows[i][c]
		}
	}
	return nil
}

// resultView is the JSON shape handed to the model.
type resultView struct {
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated,omitempty"`
}

// JSON renders the rows as column-keyed objects.
//
// # Inputs
//
//   - limit: Maximum rows to include. Zero or negative means all.
//
// # Outputs
//
//   - string: {"rows": [...], "row_count": N, "truncated": bool}.
//   - error: Non-nil if a value cannot be marshalled.
func (r *Result) JSON(limit int) (string, error) {
	records := r.Records()
	view := resultView{RowCount: len(records), Rows: records}
	if view.Rows == nil {
		view.Rows = []map[string]any{}
	}
	if limit > 0 && len(records) > limit {
		view.Rows = records[:limit]
		view.Truncated = true
	}
	data, err := json.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

func normalise(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case neo4j.Node:
		m := make(map[string]any, len(x.Props)+2)
		for k, p := range x.Props {
			m[k] = normalise(p)
		}
		m["_id"] = x.ElementId
		m["_labels"] = x.Labels
		return m
	case neo4j.Relationship:
		m := make(map[string]any, len(x.Props)+3)
		for k, p := range x.Props {
			m[k] = normalise(p)
		}
		m["_type"] = x.Type
		m["_start"] = x.StartElementId
		m["_end"] = x.EndElementId
		return m
	case neo4j.Path:
		nodes := make([]any, 0, len(x.Nodes))
		for _, n := range x.Nodes {
			nodes = append(nodes, normalise(n))
		}
		rels := make([]any, 0, len(x.Relationships))
		for _, rel := range x.Relationships {
			rels = append(rels, normalise(rel))
		}
		return map[string]any{"nodes": nodes, "relationships": rels}
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalise(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = normalise(item)
		}
		return out
	case fmt.Stringer:
		// Temporal and spatial Bolt types.
		return x.String()
	default:
		return v
	}
}
