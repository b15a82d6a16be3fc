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
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeGraphEval/cmd/cgeval/config"
	"github.com/AleutianAI/CodeGraphEval/pkg/ux"
)

func newMCPCmd(a *app) *cobra.Command {
	mcp := &cobra.Command{
		Use:   "mcp",
		Short: "Manage the Memgraph MCP server used by the coding assistant",
	}

	var dryRun, yes bool
	register := &cobra.Command{
		Use:   "register",
		Short: "Register the Memgraph MCP server with the coding assistant",
		Long: `Adds the Memgraph MCP server to the coding assistant so that its
run_query tool can query the code graph, equivalent to:

  claude mcp add memgraph -e MEMGRAPH_URL=bolt://localhost:7687 -- uv run --with mcp-memgraph mcp-memgraph`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return registerMCP(cmd.Context(), a, dryRun, yes)
		},
	}
	register.Flags().BoolVar(&dryRun, "dry-run", false, "print the command without running it")
	register.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	mcp.AddCommand(register)
	return mcp
}

// mcpAddArgs builds the assistant's "mcp add" arguments.
func mcpAddArgs(cfg *config.Config) []string {
	args := []string{"mcp", "add", cfg.MCP.ServerName, "-e", "MEMGRAPH_URL=" + cfg.MemgraphURI()}
	if cfg.Memgraph.Username != "" {
		args = append(args, "-e", "MEMGRAPH_USER="+cfg.Memgraph.Username)
	}
	args = append(args, "--")
	return append(args, cfg.MCP.ServerCommand...)
}

func registerMCP(ctx context.Context, a *app, dryRun, yes bool) error {
	p := a.printer
	cfg := a.cfg
	args := mcpAddArgs(cfg)
	display := shellQuote(append([]string{cfg.MCP.AssistantCommand}, args...))

	p.Status(ux.StatusTool, "Registering MCP server %q", cfg.MCP.ServerName)
	p.Detail("%s", display)
	if dryRun {
		p.Status(ux.StatusSkip, "Dry run, nothing executed")
		return nil
	}

	if !yes {
		ok, err := a.confirm("Run this command?")
		if err != nil {
			return err
		}
		if !ok {
			p.Status(ux.StatusSkip, "Registration cancelled")
			return nil
		}
	}

	out, err := a.execCommand(ctx, cfg.MCP.AssistantCommand, args...)
	if err != nil {
		return &CommandError{Command: display, Output: strings.TrimSpace(string(out)), Err: err}
	}
	if text := strings.TrimSpace(string(out)); text != "" {
		p.Detail("%s", text)
	}
	p.Status(ux.StatusPass, "MCP server %q registered", cfg.MCP.ServerName)
	return nil
}

// CommandError is a failed external command with its combined output.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

func execCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// confirmPrompt asks on the terminal. Without one it refuses, so scripts
// must pass --yes.
func confirmPrompt(title string) (bool, error) {
	if !ux.IsTerminal(os.Stdin) {
		return false, &UsageError{Err: errors.New("not a terminal, pass --yes to confirm")}
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// shellQuote renders args for display.
func shellQuote(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'$\\") {
			quoted[i] = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
		} else {
			quoted[i] = arg
		}
	}
	return strings.Join(quoted, " ")
}
