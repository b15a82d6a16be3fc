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
	"errors"
	"fmt"
)

// Sentinel errors for graph store access.
var (
	// Connection errors
	ErrUnavailable = errors.New("graph store unavailable")
	ErrClosed      = errors.New("graph store is closed")

	// Lookup errors
	ErrClassNotFound = errors.New("class not found")

	// Query errors
	ErrEmptyQuery = errors.New("query is empty")
)

// StatementError reports the statement that stopped an import.
type StatementError struct {
	// Line is the 1-based line number in the export file.
	Line int

	// Statement is the failing statement, truncated for display.
	Statement string

	// Err is the underlying database error.
	Err error
}

// Error implements the error interface.
func (e *StatementError) Error() string {
	return fmt.Sprintf("statement at line %d failed: %v (%s)", e.Line, e.Err, e.Statement)
}

// Unwrap returns the underlying error.
func (e *StatementError) Unwrap() error {
	return e.Err
}

// ClassNotFoundError names the class that had no node in the graph.
type ClassNotFoundError struct {
	Class string
}

// Error implements the error interface.
func (e *ClassNotFoundError) Error() string {
	return fmt.Sprintf("class %q not found in graph", e.Class)
}

// Unwrap returns the sentinel error.
func (e *ClassNotFoundError) Unwrap() error {
	return ErrClassNotFound
}
