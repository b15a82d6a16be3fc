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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

const maxStatementBytes = 16 * 1024 * 1024

// ImportOptions controls ImportCypherl.
type ImportOptions struct {
	// Clear deletes every node before importing.
	Clear bool

	// ProgressEvery calls Progress after this many statements. Zero disables.
	ProgressEvery int

	// Progress receives the number of statements executed so far.
	Progress func(done int)
}

// ImportCypherl loads a .cypherl graph export into the store.
//
// # Description
//
// A .cypherl file holds one Cypher statement per line, each terminated by
// ';'. Blank lines and '//' comments are skipped. A statement that does not
// end on its line continues on the next one. Statements run in file order;
// the first failure stops the import.
//
// # Inputs
//
//   - ctx: Context for cancellation, checked between statements.
//   - store: Destination store.
//   - r: The export contents.
//   - opts: Clear and progress settings.
//
// # Outputs
//
//   - int: Number of statements executed (excluding the clear).
//   - error: *StatementError naming the failing line, or a read error.
func ImportCypherl(ctx context.Context, store Store, r io.Reader, opts ImportOptions) (int, error) {
	start := time.Now()
	if opts.Clear {
		slog.Info("Clearing graph before import")
		if err := store.Execute(ctx, ClearQuery, nil); err != nil {
			return 0, fmt.Errorf("clear graph: %w", err)
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStatementBytes)

	var (
		pending   strings.Builder
		startLine int
		lineNo    int
		executed  int
	)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if pending.Len() == 0 && (line == "" || strings.HasPrefix(line, "//")) {
			continue
		}
		if pending.Len() == 0 {
			startLine = lineNo
		} else {
			pending.WriteByte('\n')
		}
		pending.WriteString(line)

		if !strings.HasSuffix(line, ";") {
			continue
		}

		if err := ctx.Err(); err != nil {
			return executed, err
		}

		stmt := strings.TrimSuffix(pending.String(), ";")
		pending.Reset()
		if err := store.Execute(ctx, stmt, nil); err != nil {
			return executed, &StatementError{Line: startLine, Statement: truncate(stmt, 120), Err: err}
		}
		executed++
		if opts.ProgressEvery > 0 && opts.Progress != nil && executed%opts.ProgressEvery == 0 {
			opts.Progress(executed)
		}
	}
	if err := scanner.Err(); err != nil {
		return executed, fmt.Errorf("read export at line %d: %w", lineNo+1, err)
	}

	// A final statement without a terminating ';' still runs.
	if rest := strings.TrimSpace(pending.String()); rest != "" {
		if err := store.Execute(ctx, rest, nil); err != nil {
			return executed, &StatementError{Line: startLine, Statement: truncate(rest, 120), Err: err}
		}
		executed++
	}

	slog.Info("Graph import complete",
		"statements", executed,
		"duration_ms", time.Since(start).Milliseconds())
	return executed, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
