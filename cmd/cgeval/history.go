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
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeGraphEval/pkg/ux"
	"github.com/AleutianAI/CodeGraphEval/services/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	var scenario string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past evaluation runs, or one scenario's attribute count trend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return usageErrorf("--limit must be at least 1")
			}
			path := a.cfg.Storage.HistoryPath
			if path == "" {
				return usageErrorf("storage.history_path is not set")
			}
			store, err := history.Open(history.DefaultConfig(path))
			if err != nil {
				return err
			}
			defer store.Close()

			if scenario != "" {
				return showTrend(cmd, a.printer, store, scenario, limit)
			}
			return listRuns(cmd, a.printer, store, limit)
		},
	}
	cmd.Flags().StringVarP(&scenario, "scenario", "s", "", "show the trend for this scenario")
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "number of runs")
	return cmd
}

func listRuns(cmd *cobra.Command, p *ux.Printer, store *history.Store, limit int) error {
	reports, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		p.Status(ux.StatusNote, "No runs recorded yet")
		return nil
	}
	p.Title("Recent runs")
	for _, r := range reports {
		passed, failed := r.Counts()
		p.Status(checkStatus(r.Passed()), "%s  %s  %s  %d passed, %d failed",
			r.StartedAt.Local().Format(time.DateTime), r.RunID, r.Mode, passed, failed)
	}
	return nil
}

func showTrend(cmd *cobra.Command, p *ux.Printer, store *history.Store, scenario string, limit int) error {
	trend, err := store.CountTrend(cmd.Context(), scenario, limit)
	if err != nil {
		return err
	}
	if len(trend.Points) == 0 {
		p.Status(ux.StatusNote, "No runs of %s recorded yet", scenario)
		return nil
	}
	p.Title("Attribute counts for " + scenario)
	for _, pt := range trend.Points {
		counts := make([]string, len(pt.Counts))
		for i, c := range pt.Counts {
			counts[i] = fmt.Sprint(c)
		}
		p.Status(checkStatus(pt.Passed), "%s  %s  [%s]",
			pt.StartedAt.Local().Format(time.DateTime), pt.RunID, strings.Join(counts, " "))
	}
	switch {
	case len(trend.Distinct()) == 0:
		p.Status(ux.StatusWarn, "No completed attempts")
	case trend.Consistent():
		p.Status(ux.StatusPass, "Consistent across %d run(s)", len(trend.Points))
	default:
		p.Status(ux.StatusWarn, "Counts vary across runs: %v", trend.Distinct())
	}
	return nil
}
