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
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeGraphEval/pkg/ux"
	"github.com/AleutianAI/CodeGraphEval/services/eval"
	"github.com/AleutianAI/CodeGraphEval/services/graphstore"
	"github.com/AleutianAI/CodeGraphEval/services/tools"
)

func newQueryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "query <cypher>",
		Short: "Run a read-only Cypher query and print the rows as JSON",
		Example: `  cgeval query "MATCH (c:Class) RETURN c.name LIMIT 5"
  cgeval query "CALL schema.node_type_properties()"`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return usageErrorf("--limit must be at least 1")
			}
			if err := tools.CheckReadOnly(args[0]); err != nil {
				return &UsageError{Err: err}
			}
			ctx := cmd.Context()
			store, err := a.store(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store)

			out, rows, err := tools.RunReadOnly(ctx, store, args[0], limit)
			if err != nil {
				return err
			}
			a.printer.Status(ux.StatusStats, "%d row(s)", rows)
			a.printer.Raw(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", tools.DefaultRowCap, "maximum rows to print")
	return cmd
}

func newClassCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "class <name>",
		Short: "Show a class's attributes and qualified path from the graph",
		Example: `  cgeval class ` + eval.EnterpriseClass,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.store(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store)
			return showClass(ctx, a.printer, store, args[0])
		},
	}
}

func showClass(ctx context.Context, p *ux.Printer, store graphstore.Store, name string) error {
	p.Status(ux.StatusSearch, "Looking up class %s", name)
	info, err := graphstore.ClassAttributes(ctx, store, name)
	if err != nil {
		return err
	}

	p.Title(info.Name)
	if info.QualifiedName != "" {
		p.KeyValue("Qualified name", info.QualifiedName)
	}
	if info.FilePath != "" {
		p.KeyValue("File", info.FilePath)
	}
	p.Status(ux.StatusStats, "Attributes found: %d", len(info.Attributes))
	for i, attr := range info.Attributes {
		p.Detail("%d. %s", i+1, attr)
	}

	paths, err := graphstore.ClassPath(ctx, store, name)
	if err != nil {
		return err
	}
	if len(paths) > 1 {
		p.Status(ux.StatusWarn, "%d classes share this name", len(paths))
	}
	for _, path := range paths {
		p.Status(ux.StatusLink, "%s", path)
	}
	return nil
}

func newImportCmd(a *app) *cobra.Command {
	var clearGraph, yes bool
	cmd := &cobra.Command{
		Use:   "import <file.cypherl>",
		Short: "Load a Memgraph .cypherl export into the graph",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := a.printer
			path := args[0]

			f, err := os.Open(path)
			if err != nil {
				return &UsageError{Err: err}
			}
			defer f.Close()

			if clearGraph && !yes {
				ok, err := a.confirm(fmt.Sprintf("Delete every node in %s before importing?", a.cfg.MemgraphURI()))
				if err != nil {
					return err
				}
				if !ok {
					p.Status(ux.StatusSkip, "Import cancelled")
					return nil
				}
			}

			store, err := a.store(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store)

			spinner := p.NewSpinner("Importing " + path)
			spinner.Start()
			n, err := graphstore.ImportCypherl(ctx, store, f, graphstore.ImportOptions{
				Clear:         clearGraph,
				ProgressEvery: 500,
				Progress: func(done int) {
					spinner.UpdateMessage(fmt.Sprintf("Importing %s (%d statements)", path, done))
				},
			})
			spinner.Stop()
			if err != nil {
				return err
			}
			p.Status(ux.StatusPass, "Imported %d statement(s) from %s", n, path)
			p.Status(ux.StatusLab, "Browse the graph in Memgraph Lab at %s", a.cfg.LabURL())
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearGraph, "clear", false, "delete the existing graph first")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
