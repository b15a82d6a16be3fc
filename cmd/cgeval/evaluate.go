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
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeGraphEval/pkg/ux"
	"github.com/AleutianAI/CodeGraphEval/services/agent"
	"github.com/AleutianAI/CodeGraphEval/services/eval"
	"github.com/AleutianAI/CodeGraphEval/services/llm"
)

// watchDebounce collapses the burst of events an editor save produces.
const watchDebounce = 250 * time.Millisecond

type evaluateOptions struct {
	scenarios  []string
	file       string
	repeat     int
	agentMode  string
	reportPath string
	upload     bool
	watch      bool
	noMetrics  bool
}

func newEvaluateCmd(a *app) *cobra.Command {
	var opts evaluateOptions
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Ask the evaluation prompts and grade the answers",
		Long: `Runs every scenario (or those named with --scenario): the prompt is sent
to the model with Memgraph query tools, the answer's attributes are
extracted and checked, and judge metrics score it against the graph.

Without ANTHROPIC_API_KEY the run falls back to simulated answers.
Exits 1 when any scenario fails.`,
		Aliases: []string{"eval"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd.Context(), a, opts)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.scenarios, "scenario", "s", nil, "scenario IDs to run (repeatable, default all)")
	f.StringVarP(&opts.file, "file", "f", "", "scenario YAML file (default evaluation.scenario_file or built-in scenarios)")
	f.IntVarP(&opts.repeat, "repeat", "n", 0, "attempts per scenario (default evaluation.repeat)")
	f.StringVar(&opts.agentMode, "agent", "", "agent: native, react or simulated (default evaluation.agent_mode)")
	f.StringVar(&opts.reportPath, "report", "", "write the JSON report to this file")
	f.BoolVar(&opts.upload, "upload", false, "send results to the configured InfluxDB and GCS destinations")
	f.BoolVar(&opts.watch, "watch", false, "re-run whenever the scenario file changes")
	f.BoolVar(&opts.noMetrics, "no-metrics", false, "skip LLM-as-judge metrics")
	return cmd
}

func runEvaluate(ctx context.Context, a *app, opts evaluateOptions) error {
	cfg := a.cfg
	p := a.printer

	mode := opts.agentMode
	if mode == "" {
		mode = cfg.Evaluation.AgentMode
	}
	switch mode {
	case agent.ModeNative, agent.ModeReAct, agent.ModeSimulated:
	default:
		return usageErrorf("--agent must be native, react or simulated, got %q", mode)
	}
	if opts.repeat < 0 {
		return usageErrorf("--repeat must be at least 1")
	}
	if opts.repeat == 0 {
		opts.repeat = cfg.Evaluation.Repeat
	}
	if opts.file == "" {
		opts.file = cfg.Evaluation.ScenarioFile
	}
	if opts.watch && opts.file == "" {
		return usageErrorf("--watch needs a scenario file (--file or evaluation.scenario_file)")
	}

	// Fail on a bad scenario file before connecting to anything.
	if _, err := selectScenarios(opts.file, opts.scenarios); err != nil {
		return err
	}

	p.Status(ux.StatusStart, "Starting code graph evaluation")

	apiKey := cfg.Anthropic.APIKey
	if apiKey == "" {
		apiKey, _ = llm.LoadAPIKeyFrom(a.lookup, "ANTHROPIC_API_KEY", cfg.Anthropic.SecretFile)
	}
	if apiKey == "" && mode != agent.ModeSimulated {
		p.Status(ux.StatusWarn, "ANTHROPIC_API_KEY not found, falling back to simulated answers")
		mode = agent.ModeSimulated
	}

	env, err := a.newEvalEnv(ctx, mode, apiKey, opts)
	if err != nil {
		return err
	}
	defer env.close()

	if !opts.watch {
		return evaluateOnce(ctx, a, env, opts)
	}
	return watchAndEvaluate(ctx, a, env, opts)
}

func selectScenarios(file string, ids []string) ([]eval.Scenario, error) {
	all := eval.BuiltinScenarios()
	if file != "" {
		loaded, err := eval.LoadScenarios(file)
		if err != nil {
			return nil, err
		}
		all = loaded
	}
	return eval.FilterScenarios(all, ids)
}

func evaluateOnce(ctx context.Context, a *app, env *evalEnv, opts evaluateOptions) error {
	p := a.printer
	scenarios, err := selectScenarios(opts.file, opts.scenarios)
	if err != nil {
		return err
	}

	source := "built-in scenarios"
	if opts.file != "" {
		source = opts.file
	}
	p.Status(ux.StatusNote, "Running %d scenario(s) from %s, %d attempt(s) each, agent %s",
		len(scenarios), source, opts.repeat, env.agent.Mode())

	runner := eval.NewRunner(env.agent, env.runnerOptions(a, opts)...)
	report, runErr := runner.Run(ctx, scenarios)

	printReport(p, report)

	if opts.reportPath != "" {
		if err := report.WriteFile(opts.reportPath); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		p.Status(ux.StatusNote, "Report written to %s", opts.reportPath)
	}
	if dir := a.cfg.Evaluation.ReportDir; dir != "" {
		path := filepath.Join(dir, report.RunID+".json")
		if err := report.WriteFile(path); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		slog.Debug("Report archived", "path", path)
	}

	if runErr != nil {
		return fmt.Errorf("evaluation interrupted: %w", runErr)
	}
	if !report.Passed() {
		return errEvaluationFailed
	}
	return nil
}

// watchAndEvaluate runs once, then again after every change to the
// scenario file, until ctx is cancelled. It returns the outcome of the
// last run.
func watchAndEvaluate(ctx context.Context, a *app, env *evalEnv, opts evaluateOptions) error {
	p := a.printer
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(opts.file)
	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", target, err)
	}

	last := evaluateOnce(ctx, a, env, opts)
	for {
		if last != nil && !errors.Is(last, errEvaluationFailed) && ctx.Err() == nil {
			a.report(last)
		}
		p.Status(ux.StatusSearch, "Watching %s for changes (Ctrl+C to stop)", target)

		if !waitForChange(ctx, watcher, target) {
			if errors.Is(last, context.Canceled) {
				return nil
			}
			return last
		}
		p.Blank()
		p.Status(ux.StatusNote, "%s changed, re-running", target)
		last = evaluateOnce(ctx, a, env, opts)
	}
}

// waitForChange blocks until target is written or created, then waits out
// the debounce window. It returns false when ctx is done or the watcher
// closes.
func waitForChange(ctx context.Context, watcher *fsnotify.Watcher, target string) bool {
	changed := false
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-watcher.Events:
			if !ok {
				return false
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			changed = true
			debounce = time.After(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return false
			}
			slog.Warn("File watcher error", "error", err)
		case <-debounce:
			if changed {
				return true
			}
		}
	}
}

func printReport(p *ux.Printer, report *eval.Report) {
	p.Blank()
	p.Rule()
	for i := range report.Scenarios {
		printScenario(p, &report.Scenarios[i])
	}
	p.Rule()

	passed, failed := report.Counts()
	p.Status(ux.StatusStats, "%d passed, %d failed in %s (run %s)",
		passed, failed, report.Duration.Round(time.Millisecond), report.RunID)
	if report.Passed() {
		p.Status(ux.StatusDone, "All scenarios passed")
	} else {
		p.Status(ux.StatusFail, "%d of %d scenario(s) failed", failed, passed+failed)
	}
}

func printScenario(p *ux.Printer, sc *eval.ScenarioResult) {
	p.Title(sc.ID)
	if sc.Description != "" {
		p.Detail("%s", sc.Description)
	}
	for i := range sc.Attempts {
		printAttempt(p, &sc.Attempts[i])
	}
	for _, c := range sc.Checks {
		p.Status(checkStatus(c.Passed), "%s: %s", c.Name, c.Detail)
	}
	p.Status(checkStatus(sc.Passed()), "%s %s", sc.ID, passWord(sc.Passed()))
	p.Blank()
}

func printAttempt(p *ux.Printer, at *eval.Attempt) {
	p.Status(ux.StatusSearch, "Attempt %d (%s)", at.Number, at.Duration.Round(time.Millisecond))
	if at.Err != "" {
		p.Status(ux.StatusFail, "Error: %s", at.Err)
		return
	}
	if at.Answer != nil {
		p.Block("Response", at.Answer.Text)
		if n := len(at.Answer.Invocations); n > 0 {
			p.Status(ux.StatusTool, "%d tool call(s) in %d turn(s)", n, at.Answer.Turns)
		}
	}
	p.Status(ux.StatusStats, "Attributes found: %d", at.AttributeCount)
	for _, attr := range at.Attributes {
		p.Detail("- %s", attr)
	}
	if at.ClassPath != "" {
		p.KeyValue("Class path", at.ClassPath)
	}
	for _, c := range at.Checks {
		p.Status(checkStatus(c.Passed), "%s: %s", c.Name, c.Detail)
	}
	for _, m := range at.Metrics {
		switch {
		case m.Skipped:
			p.Status(ux.StatusSkip, "%s: skipped (%s)", m.Name, m.Reason)
		case m.Error != "":
			p.Status(ux.StatusFail, "%s: error: %s", m.Name, m.Error)
		default:
			p.Status(checkStatus(m.Passed), "%s: %.2f (threshold %.2f)", m.Name, m.Score, m.Threshold)
			if m.Reason != "" {
				p.Detail("%s", truncate(m.Reason, 300))
			}
		}
	}
}

func checkStatus(passed bool) ux.Status {
	if passed {
		return ux.StatusPass
	}
	return ux.StatusFail
}

func passWord(passed bool) string {
	if passed {
		return "PASSED"
	}
	return "FAILED"
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}
