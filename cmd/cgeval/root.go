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
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeGraphEval/cmd/cgeval/config"
	"github.com/AleutianAI/CodeGraphEval/pkg/logging"
	"github.com/AleutianAI/CodeGraphEval/pkg/ux"
	"github.com/AleutianAI/CodeGraphEval/services/graphstore"
)

// app carries the state shared by all commands.
type app struct {
	out    io.Writer
	errOut io.Writer

	// lookup reads environment variables. Tests replace it.
	lookup config.LookupFunc

	// openStore connects to the graph. Tests replace it.
	openStore func(ctx context.Context, cfg *config.Config) (graphstore.Store, error)

	// confirm asks a yes/no question. Tests replace it.
	confirm func(title string) (bool, error)

	// execCommand runs an external program. Tests replace it.
	execCommand func(ctx context.Context, name string, args ...string) ([]byte, error)

	configPath string
	logLevel   string
	logDir     string
	output     string

	cfg     *config.Config
	cfgFile string
	printer *ux.Printer
	logger  *logging.Logger
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:         out,
		errOut:      errOut,
		lookup:      os.LookupEnv,
		openStore:   openMemgraph,
		confirm:     confirmPrompt,
		execCommand: execCombined,
	}
}

func openMemgraph(ctx context.Context, cfg *config.Config) (graphstore.Store, error) {
	store, err := graphstore.Open(ctx, graphstore.Config{
		URI:            cfg.MemgraphURI(),
		Username:       cfg.Memgraph.Username,
		Password:       cfg.Memgraph.Password,
		ConnectTimeout: cfg.Memgraph.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// personality is the output level from --output, CGEVAL_OUTPUT or the
// terminal.
func (a *app) personality() ux.PersonalityLevel {
	if a.output != "" {
		return ux.ParsePersonalityLevel(a.output)
	}
	if v, ok := a.lookup("CGEVAL_OUTPUT"); ok && v != "" {
		return ux.ParsePersonalityLevel(v)
	}
	if f, ok := a.out.(*os.File); ok {
		return ux.DetectPersonality(f)
	}
	return ux.PersonalityMinimal
}

// setup runs before every command: logging, output and configuration.
func (a *app) setup(cmd *cobra.Command) error {
	levelName := a.logLevel
	if levelName == "" {
		levelName, _ = a.lookup("CGEVAL_LOG_LEVEL")
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return &UsageError{Err: err}
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  a.logDir,
		Service: "cgeval",
		Output:  a.errOut,
	})
	a.logger = logger
	slog.SetDefault(logger.Slog())
	if err != nil {
		slog.Warn("File logging disabled", "error", err)
	}

	a.printer = ux.NewPrinter(a.out, a.personality())

	cfg, used, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(a.lookup); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.cfgFile = used
	slog.Debug("Configuration ready", "file", used, "memgraph", cfg.MemgraphURI(), "command", cmd.CommandPath())
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Warn("Failed to close log file", "error", err)
		}
	}
}

// store opens the graph store, printing where it connected.
func (a *app) store(ctx context.Context) (graphstore.Store, error) {
	a.printer.Status(ux.StatusDatabase, "Connecting to Memgraph at %s", a.cfg.MemgraphURI())
	return a.openStore(ctx, a.cfg)
}

func closeStore(store graphstore.Store) {
	if store == nil {
		return
	}
	if err := store.Close(context.Background()); err != nil && !errors.Is(err, graphstore.ErrClosed) {
		slog.Warn("Failed to close graph store", "error", err)
	}
}

// exactArgs is cobra.ExactArgs reporting a UsageError.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "cgeval",
		Short: "Evaluate LLM answers about a codebase graph in Memgraph",
		Long: `cgeval asks a language model questions about a codebase whose structure
has been loaded into Memgraph, lets it query the graph through tools, and
grades the answers with deterministic checks and LLM-as-judge metrics.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default ./cgeval.yaml or ~/.cgeval/cgeval.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (env CGEVAL_LOG_LEVEL)")
	flags.StringVar(&a.logDir, "log-dir", "", "also write JSON logs to this directory")
	flags.StringVarP(&a.output, "output", "o", "", "output style: full, minimal, machine (env CGEVAL_OUTPUT)")

	root.AddCommand(
		newEvaluateCmd(a),
		newQueryCmd(a),
		newClassCmd(a),
		newImportCmd(a),
		newMCPCmd(a),
		newEnvCmd(a),
		newHistoryCmd(a),
	)
	return root
}
