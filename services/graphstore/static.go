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
	"strings"
	"sync"
)

// staticFixture answers a query when match returns true.
type staticFixture struct {
	match  func(cypher string, params map[string]any) bool
	result *Result
	err    error
}

// StaticStore is an in-memory Store answering from registered fixtures.
//
// Queries with no matching fixture return an empty result. Executed
// statements are recorded and succeed unless a failure was registered.
type StaticStore struct {
	mu        sync.Mutex
	queries   []staticFixture
	failures  []staticFixture
	queried   []string
	executed  []string
	closed    bool
	pingError error
}

// NewStaticStore creates an empty StaticStore.
func NewStaticStore() *StaticStore {
	return &StaticStore{}
}

// OnQuery answers any query containing fragment (case-insensitive).
func (s *StaticStore) OnQuery(fragment string, result *Result) *StaticStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, staticFixture{match: containsFold(fragment), result: result})
	return s
}

// FailQuery makes queries containing fragment return err.
func (s *StaticStore) FailQuery(fragment string, err error) *StaticStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, staticFixture{match: containsFold(fragment), err: err})
	return s
}

// FailExecute makes statements containing fragment return err.
func (s *StaticStore) FailExecute(fragment string, err error) *StaticStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, staticFixture{match: containsFold(fragment), err: err})
	return s
}

// WithPingError makes Ping fail.
func (s *StaticStore) WithPingError(err error) *StaticStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingError = err
	return s
}

// WithClass registers a class for ClassAttributes and ClassPath lookups.
func (s *StaticStore) WithClass(info ClassInfo) *StaticStore {
	attrs := make([]any, 0, len(info.Attributes))
	for _, a := range info.Attributes {
		attrs = append(attrs, a)
	}
	byName := func(query string) func(string, map[string]any) bool {
		return func(cypher string, params map[string]any) bool {
			return cypher == query && params["name"] == info.Name
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries,
		staticFixture{
			match: byName(classAttributesQuery),
			result: NewResult(
				[]string{"class_name", "attributes", "qualified_name", "file_path"},
				[][]any{{info.Name, attrs, info.QualifiedName, info.FilePath}},
			),
		},
		staticFixture{
			match:  byName(classPathQuery),
			result: NewResult([]string{"qualified_name"}, [][]any{{info.QualifiedName}}),
		},
	)
	return s
}

// WithSchema registers the label and relationship-type listings.
func (s *StaticStore) WithSchema(labels, relTypes []string) *StaticStore {
	labelRows := make([][]any, 0, len(labels))
	for _, l := range labels {
		labelRows = append(labelRows, []any{l})
	}
	relRows := make([][]any, 0, len(relTypes))
	for _, r := range relTypes {
		relRows = append(relRows, []any{r})
	}
	exact := func(query string) func(string, map[string]any) bool {
		return func(cypher string, _ map[string]any) bool { return cypher == query }
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries,
		staticFixture{match: exact(labelsQuery), result: NewResult([]string{"label"}, labelRows)},
		staticFixture{match: exact(relTypesQuery), result: NewResult([]string{"type"}, relRows)},
	)
	return s
}

// Query implements Store.
func (s *StaticStore) Query(ctx context.Context, cypher string, params map[string]any) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cypher) == "" {
		return nil, ErrEmptyQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.queried = append(s.queried, cypher)
	for _, f := range s.queries {
		if f.match(cypher, params) {
			if f.err != nil {
				return nil, f.err
			}
			return f.result, nil
		}
	}
	return NewResult(nil, nil), nil
}

// Execute implements Store.
func (s *StaticStore) Execute(ctx context.Context, cypher string, params map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, f := range s.failures {
		if f.match(cypher, params) {
			return f.err
		}
	}
	s.executed = append(s.executed, cypher)
	return nil
}

// Ping implements Store.
func (s *StaticStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.pingError
}

// Close implements Store.
func (s *StaticStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Queried returns the read statements seen so far.
func (s *StaticStore) Queried() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queried...)
}

// Executed returns the write statements that succeeded.
func (s *StaticStore) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

func containsFold(fragment string) func(string, map[string]any) bool {
	needle := strings.ToLower(fragment)
	return func(cypher string, _ map[string]any) bool {
		return strings.Contains(strings.ToLower(cypher), needle)
	}
}
