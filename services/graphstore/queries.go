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
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Canned queries over the scanner's graph model.
const (
	classAttributesQuery = `MATCH (c:Class {name: $name})
OPTIONAL MATCH (c)-[:HAS_ATTRIBUTE]->(a:Attribute)
RETURN c.name AS class_name, collect(a.name) AS attributes, c.qualified_name AS qualified_name, c.file_path AS file_path`

	classPathQuery = `MATCH (c:Class {name: $name})
RETURN c.qualified_name AS qualified_name
ORDER BY qualified_name`

	labelsQuery = `MATCH (n)
UNWIND labels(n) AS label
RETURN DISTINCT label
ORDER BY label`

	relTypesQuery = `MATCH ()-[r]->()
RETURN DISTINCT type(r) AS type
ORDER BY type`

	// ClearQuery removes every node and relationship.
	ClearQuery = `MATCH (n) DETACH DELETE n`
)

// ClassInfo is a class node with its attribute names.
type ClassInfo struct {
	Name          string   `json:"class_name"`
	Attributes    []string `json:"attributes"`
	QualifiedName string   `json:"qualified_name,omitempty"`
	FilePath      string   `json:"file_path,omitempty"`
}

// Describe renders the class as a retrieval-context sentence.
func (c *ClassInfo) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Class %s", c.Name)
	if c.QualifiedName != "" {
		fmt.Fprintf(&b, " (qualified name %s)", c.QualifiedName)
	}
	if c.FilePath != "" {
		fmt.Fprintf(&b, " is defined in %s", c.FilePath)
	}
	if len(c.Attributes) == 0 {
		b.WriteString(" and has no attributes.")
		return b.String()
	}
	fmt.Fprintf(&b, " and has %d attributes: %s.", len(c.Attributes), strings.Join(c.Attributes, ", "))
	return b.String()
}

// ClassAttributes looks up a class by name and collects its attributes.
//
// # Description
//
// Runs the HAS_ATTRIBUTE lookup the scanner's schema supports. When several
// classes share the name, the first (by qualified name) wins and the rest
// are logged.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - store: The graph store.
//   - class: Simple class name, e.g. EnterpriseNewsAndEvents.
//
// # Outputs
//
//   - *ClassInfo: Class with sorted, de-duplicated attribute names.
//   - error: *ClassNotFoundError (ErrClassNotFound) when no row matches.
func ClassAttributes(ctx context.Context, store Store, class string) (*ClassInfo, error) {
	res, err := store.Query(ctx, classAttributesQuery, map[string]any{"name": class})
	if err != nil {
		return nil, fmt.Errorf("class attributes for %s: %w", class, err)
	}
	if res.Len() == 0 {
		return nil, &ClassNotFoundError{Class: class}
	}

	infos := make([]*ClassInfo, 0, res.Len())
	for i := range res.Rows {
		infos = append(infos, &ClassInfo{
			Name:          asString(res.Value(i, "class_name")),
			Attributes:    uniqueSorted(asStrings(res.Value(i, "attributes"))),
			QualifiedName: asString(res.Value(i, "qualified_name")),
			FilePath:      asString(res.Value(i, "file_path")),
		})
	}
	sort.SliceStable(infos, func(a, b int) bool {
		return infos[a].QualifiedName < infos[b].QualifiedName
	})
	if len(infos) > 1 {
		slog.Warn("Class name is ambiguous, using first match",
			"class", class, "matches", len(infos), "chosen", infos[0].QualifiedName)
	}
	return infos[0], nil
}

// ClassPath returns the qualified names of all classes called class.
func ClassPath(ctx context.Context, store Store, class string) ([]string, error) {
	res, err := store.Query(ctx, classPathQuery, map[string]any{"name": class})
	if err != nil {
		return nil, fmt.Errorf("class path for %s: %w", class, err)
	}
	if res.Len() == 0 {
		return nil, &ClassNotFoundError{Class: class}
	}
	paths := make([]string, 0, res.Len())
	for i := range res.Rows {
		if p := asString(res.Value(i, "qualified_name")); p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// GraphSchema lists the labels and relationship types present in the graph.
type GraphSchema struct {
	Labels            []string `json:"labels"`
	RelationshipTypes []string `json:"relationship_types"`
}

// Schema reads the distinct node labels and relationship types.
func Schema(ctx context.Context, store Store) (*GraphSchema, error) {
	labels, err := store.Query(ctx, labelsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	rels, err := store.Query(ctx, relTypesQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("read relationship types: %w", err)
	}

	schema := &GraphSchema{Labels: []string{}, RelationshipTypes: []string{}}
	for i := range labels.Rows {
		schema.Labels = append(schema.Labels, asString(labels.Value(i, "label")))
	}
	for i := range rels.Rows {
		schema.RelationshipTypes = append(schema.RelationshipTypes, asString(rels.Value(i, "type")))
	}
	return schema, nil
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func asStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if item == nil {
				continue
			}
			out = append(out, asString(item))
		}
		return out
	default:
		return nil
	}
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
