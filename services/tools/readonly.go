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
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrWriteQuery is returned when a query given to a read-only tool would
// modify the graph.
var ErrWriteQuery = errors.New("write queries are not allowed")

// WriteQueryError names the offending clause.
type WriteQueryError struct {
	Clause string
}

// Error implements the error interface.
func (e *WriteQueryError) Error() string {
	return fmt.Sprintf("query contains write clause %s: %v", e.Clause, ErrWriteQuery)
}

// Unwrap returns the sentinel error.
func (e *WriteQueryError) Unwrap() error {
	return ErrWriteQuery
}

// ReadProcedures are the procedures a read-only query may CALL. Names are
// compared case-insensitively.
var ReadProcedures = []string{
	"db.labels",
	"db.relationshiptypes",
	"db.propertykeys",
	"mg.procedures",
	"mg.functions",
	"mg.transformations",
	"schema.node_type_properties",
	"schema.rel_type_properties",
}

var (
	stringLiteralPattern = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"|` + "`[^`]*`")
	lineCommentPattern   = regexp.MustCompile(`//[^\n]*`)
	blockCommentPattern  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	tokenPattern         = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|\S`)

	writeClauses = map[string]bool{
		"CREATE":  true,
		"MERGE":   true,
		"DELETE":  true,
		"DETACH":  true,
		"SET":     true,
		"REMOVE":  true,
		"DROP":    true,
		"FOREACH": true,
	}
)

// CheckReadOnly rejects Cypher that could modify the graph.
//
// # Description
//
// Literals, quoted identifiers and comments are blanked first so that a
// property value such as "SET" does not trip the check. The remaining
// tokens are scanned for write clauses in clause position: a keyword that
// follows '.', ':', '$' or AS, or that is followed by ':', is a name and
// is ignored. CALL is allowed only for a procedure in ReadProcedures or for
// a CALL { ... } subquery, whose body is scanned like the rest. The check
// is lexical; it does not parse Cypher.
//
// # Outputs
//
//   - error: *WriteQueryError (ErrWriteQuery) naming the first offending
//     clause, "CALL <procedure>" for a procedure outside the allowlist.
func CheckReadOnly(cypher string) error {
	cleaned := blockCommentPattern.ReplaceAllString(cypher, " ")
	cleaned = stringLiteralPattern.ReplaceAllString(cleaned, "''")
	cleaned = lineCommentPattern.ReplaceAllString(cleaned, " ")

	tokens := tokenPattern.FindAllString(cleaned, -1)
	for i, tok := range tokens {
		if !isClausePosition(tokens, i) {
			continue
		}
		word := strings.ToUpper(tok)
		switch {
		case writeClauses[word]:
			return &WriteQueryError{Clause: word}
		case word == "LOAD" && i+1 < len(tokens) && strings.EqualFold(tokens[i+1], "CSV"):
			return &WriteQueryError{Clause: "LOAD CSV"}
		case word == "CALL":
			if i+1 < len(tokens) && tokens[i+1] == "{" {
				continue
			}
			name := procedureName(tokens[i+1:])
			if !isReadProcedure(name) {
				if name == "" {
					name = "<unnamed>"
				}
				return &WriteQueryError{Clause: "CALL " + name}
			}
		}
	}
	return nil
}

// isClausePosition reports whether tokens[i] can start a clause rather than
// name a property, label, parameter, map key or alias.
func isClausePosition(tokens []string, i int) bool {
	if i > 0 {
		switch prev := tokens[i-1]; {
		case prev == ".", prev == ":", prev == "$", strings.EqualFold(prev, "AS"):
			return false
		}
	}
	if i+1 < len(tokens) && tokens[i+1] == ":" {
		return false
	}
	return true
}

// procedureName joins the dotted name at the start of tokens.
func procedureName(tokens []string) string {
	var parts []string
	for i := 0; i < len(tokens); i += 2 {
		if !isIdentifier(tokens[i]) {
			break
		}
		parts = append(parts, tokens[i])
		if i+1 >= len(tokens) || tokens[i+1] != "." {
			break
		}
	}
	return strings.Join(parts, ".")
}

func isIdentifier(tok string) bool {
	c := tok[0]
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isReadProcedure(name string) bool {
	for _, p := range ReadProcedures {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}
