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
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeGraphEval/pkg/ux"
	"github.com/AleutianAI/CodeGraphEval/services/llm"
)

// envVars are reported by "cgeval env". Secrets are masked.
var envVars = []struct {
	name   string
	secret bool
}{
	{"ANTHROPIC_API_KEY", true},
	{"ANTHROPIC_ORCHESTRATOR_MODEL_ID", false},
	{"ANTHROPIC_CYPHER_MODEL_ID", false},
	{"MEMGRAPH_HOST", false},
	{"MEMGRAPH_PORT", false},
	{"MEMGRAPH_HTTP_PORT", false},
	{"LAB_PORT", false},
	{"MEMGRAPH_USER", false},
	{"MEMGRAPH_PASSWORD", true},
	{"TARGET_REPO_PATH", false},
	{"CGEVAL_OUTPUT", false},
	{"CGEVAL_LOG_LEVEL", false},
}

func newEnvCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the environment, effective settings and Memgraph connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showEnv(cmd.Context(), a)
		},
	}
}

func showEnv(ctx context.Context, a *app) error {
	p := a.printer
	cfg := a.cfg

	p.Title("Environment")
	for _, v := range envVars {
		value, ok := a.lookup(v.name)
		switch {
		case !ok || value == "":
			p.KeyValue(v.name, "(not set)")
		case v.secret:
			p.KeyValue(v.name, llm.MaskKey(value))
		default:
			p.KeyValue(v.name, value)
		}
	}

	p.Blank()
	p.Title("Effective settings")
	file := a.cfgFile
	if file == "" {
		file = "(defaults)"
	}
	p.KeyValue("Config file", file)
	p.KeyValue("Orchestrator model", cfg.Anthropic.OrchestratorModel)
	p.KeyValue("Cypher model", cfg.Anthropic.CypherModel)
	p.KeyValue("Judge", cfg.Judge.Provider+" "+cfg.JudgeModel())
	p.KeyValue("Agent mode", cfg.Evaluation.AgentMode)
	p.KeyValue("Target repository", cfg.TargetRepoPath)
	if cfg.Anthropic.APIKey == "" {
		p.Status(ux.StatusWarn, "ANTHROPIC_API_KEY not found, evaluations will use simulated answers")
	}

	p.Blank()
	p.Title("Memgraph")
	store, err := a.openStore(ctx, cfg)
	if err != nil {
		p.Status(ux.StatusFail, "Bolt %s unreachable: %v", cfg.MemgraphURI(), err)
	} else {
		closeStore(store)
		p.Status(ux.StatusPass, "Bolt %s reachable", cfg.MemgraphURI())
	}

	lab := cfg.LabURL()
	if labReachable(ctx, lab) {
		p.Status(ux.StatusLab, "Memgraph Lab at %s", lab)
	} else {
		p.Status(ux.StatusWarn, "Memgraph Lab not reachable at %s", lab)
	}
	return nil
}

func labReachable(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
