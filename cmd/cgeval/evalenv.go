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
	"time"

	"github.com/AleutianAI/CodeGraphEval/cmd/cgeval/config"
	"github.com/AleutianAI/CodeGraphEval/pkg/ux"
	"github.com/AleutianAI/CodeGraphEval/services/agent"
	"github.com/AleutianAI/CodeGraphEval/services/eval"
	"github.com/AleutianAI/CodeGraphEval/services/export"
	"github.com/AleutianAI/CodeGraphEval/services/graphstore"
	"github.com/AleutianAI/CodeGraphEval/services/history"
	"github.com/AleutianAI/CodeGraphEval/services/llm"
	"github.com/AleutianAI/CodeGraphEval/services/telemetry"
	"github.com/AleutianAI/CodeGraphEval/services/tools"
)

// defaultInfluxTokenEnv holds the InfluxDB token unless
// export.influx_token_env names another variable.
const defaultInfluxTokenEnv = "INFLUX_TOKEN"

// evalEnv holds everything an evaluation run needs. It outlives a single
// run in watch mode.
type evalEnv struct {
	store   graphstore.Store
	agent   agent.Agent
	judge   *eval.Judge
	models  eval.Models
	metrics *telemetry.Metrics
	sinks   []eval.Sink
	closers []func() error
}

// newEvalEnv wires the graph store, tools, agent, judge, telemetry and
// report sinks.
//
// # Description
//
// Tool-using agents need Memgraph. The simulated agent runs without it and
// falls back to the scenarios' static context. A missing judge key skips
// judge metrics rather than failing the run.
func (a *app) newEvalEnv(ctx context.Context, mode, apiKey string, opts evaluateOptions) (*evalEnv, error) {
	cfg := a.cfg
	p := a.printer
	env := &evalEnv{metrics: telemetry.NewMetrics(cfg.Telemetry.MetricsFile)}
	ready := false
	defer func() {
		if !ready {
			env.close()
		}
	}()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.OTel(version), env.metrics.Registry())
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(sctx)
	})

	store, err := a.store(ctx)
	switch {
	case err == nil:
		env.store = store
		env.closers = append(env.closers, func() error {
			closeStore(store)
			return nil
		})
	case mode == agent.ModeSimulated:
		p.Status(ux.StatusWarn, "Memgraph not reachable, using static scenario context")
		slog.Debug("Graph store unavailable", "error", err)
	default:
		return nil, fmt.Errorf("the %s agent needs Memgraph: %w", mode, err)
	}

	if err := env.buildAgent(cfg, mode, apiKey); err != nil {
		return nil, err
	}

	if !opts.noMetrics {
		judge, err := buildJudge(cfg, apiKey, a.lookup)
		switch {
		case err == nil:
			env.judge = judge
			env.models.Judge = judge.Model()
		case errors.Is(err, llm.ErrMissingAPIKey):
			p.Status(ux.StatusSkip, "No judge key in %s, judge metrics will be skipped", cfg.Judge.KeyEnv())
		default:
			return nil, err
		}
	}

	if err := env.buildSinks(ctx, a, opts.upload); err != nil {
		return nil, err
	}
	ready = true
	return env, nil
}

func (e *evalEnv) buildAgent(cfg *config.Config, mode, apiKey string) error {
	if mode == agent.ModeSimulated {
		e.agent = agent.NewSimulatedAgent()
		e.models.Agent = agent.ModeSimulated
		return nil
	}

	client, err := llm.NewAnthropicClient(llm.AnthropicConfig{
		APIKey:            apiKey,
		Model:             cfg.Anthropic.OrchestratorModel,
		BaseURL:           cfg.Anthropic.BaseURL,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		Timeout:           cfg.Anthropic.Timeout,
		RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
	})
	if err != nil {
		return err
	}

	registry := tools.NewRegistry(tools.WithObserver(e.metrics.ObserveTool))
	registry.Register(
		tools.NewQueryTool(e.store, cfg.Evaluation.RowLimit),
		tools.NewSchemaTool(e.store),
		tools.NewAskGraphTool(client, cfg.Anthropic.CypherModel, e.store, cfg.Evaluation.RowLimit),
	)
	e.models.Agent = cfg.Anthropic.OrchestratorModel

	switch mode {
	case agent.ModeNative:
		e.agent = agent.NewToolLoopAgent(client, registry, agent.LoopConfig{
			MaxTurns:  cfg.Evaluation.MaxToolTurns,
			MaxTokens: cfg.Anthropic.MaxTokens,
		})
	case agent.ModeReAct:
		model, err := agent.NewAnthropicModel(apiKey, cfg.Anthropic.OrchestratorModel, cfg.Anthropic.BaseURL)
		if err != nil {
			return err
		}
		e.agent = agent.NewReActAgent(model, cfg.Anthropic.OrchestratorModel, registry, cfg.Evaluation.MaxToolTurns)
	default:
		return fmt.Errorf("%w: %s", agent.ErrUnknownMode, mode)
	}
	return nil
}

// buildJudge creates the judge client for the configured provider. It
// returns an error wrapping llm.ErrMissingAPIKey when no key is available.
func buildJudge(cfg *config.Config, anthropicKey string, lookup config.LookupFunc) (*eval.Judge, error) {
	keyEnv := cfg.Judge.KeyEnv()
	key := anthropicKey
	if keyEnv != "ANTHROPIC_API_KEY" {
		key, _ = lookup(keyEnv)
	}

	var client llm.Client
	var err error
	switch cfg.Judge.Provider {
	case "openai":
		client, err = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  key,
			Model:   cfg.JudgeModel(),
			BaseURL: cfg.Judge.BaseURL,
		})
	default:
		baseURL := cfg.Judge.BaseURL
		if baseURL == "" {
			baseURL = cfg.Anthropic.BaseURL
		}
		client, err = llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:            key,
			Model:             cfg.JudgeModel(),
			BaseURL:           baseURL,
			Timeout:           cfg.Anthropic.Timeout,
			RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
		})
	}
	if err != nil {
		return nil, err
	}
	return eval.NewJudge(client, cfg.JudgeModel()), nil
}

func (e *evalEnv) buildSinks(ctx context.Context, a *app, upload bool) error {
	cfg := a.cfg
	p := a.printer

	if path := cfg.Storage.HistoryPath; path != "" {
		hcfg := history.DefaultConfig(path)
		hcfg.Logger = slog.Default()
		store, err := history.Open(hcfg)
		if err != nil {
			return err
		}
		e.sinks = append(e.sinks, store)
		e.closers = append(e.closers, store.Close)
	}

	if upload {
		exported := false
		if cfg.Export.InfluxURL != "" {
			tokenEnv := cfg.Export.InfluxTokenEnv
			if tokenEnv == "" {
				tokenEnv = defaultInfluxTokenEnv
			}
			token, _ := a.lookup(tokenEnv)
			sink, err := export.NewInfluxSink(export.InfluxConfig{
				URL:    cfg.Export.InfluxURL,
				Token:  token,
				Org:    cfg.Export.InfluxOrg,
				Bucket: cfg.Export.InfluxBucket,
			})
			if err != nil {
				return err
			}
			e.sinks = append(e.sinks, sink)
			e.closers = append(e.closers, func() error { sink.Close(); return nil })
			p.Status(ux.StatusLink, "Writing results to InfluxDB bucket %s", cfg.Export.InfluxBucket)
			exported = true
		}
		if cfg.Export.GCSBucket != "" {
			uploader, err := export.NewGCSUploader(ctx, export.GCSConfig{
				Bucket:          cfg.Export.GCSBucket,
				Prefix:          cfg.Export.GCSPrefix,
				CredentialsFile: cfg.Export.GCSCredentials,
			})
			if err != nil {
				return err
			}
			e.sinks = append(e.sinks, uploader)
			e.closers = append(e.closers, uploader.Close)
			p.Status(ux.StatusLink, "Uploading reports to %s", uploader.URL("<run-id>"))
			exported = true
		}
		if !exported {
			p.Status(ux.StatusWarn, "--upload given but neither export.influx_url nor export.gcs_bucket is set")
		}
	}

	// Metrics last so the textfile reflects the finished run.
	e.sinks = append(e.sinks, e.metrics)
	return nil
}

func (e *evalEnv) runnerOptions(a *app, opts evaluateOptions) []eval.RunnerOption {
	p := a.printer
	runnerOpts := []eval.RunnerOption{
		eval.WithRepeat(opts.repeat),
		eval.WithConcurrency(a.cfg.Evaluation.Concurrency),
		eval.WithContextProvider(eval.NewContextProvider(e.store)),
		eval.WithSinks(e.sinks...),
		eval.WithModels(e.models),
		eval.WithProgress(func(scenarioID string, at *eval.Attempt) {
			p.Status(checkStatus(at.Passed()), "%s attempt %d finished: %d attribute(s)", scenarioID, at.Number, at.AttributeCount)
		}),
	}
	if e.judge != nil {
		runnerOpts = append(runnerOpts, eval.WithJudge(e.judge))
	}
	if opts.noMetrics {
		runnerOpts = append(runnerOpts, eval.WithNoMetrics())
	}
	return runnerOpts
}

// close releases resources in reverse order of acquisition.
func (e *evalEnv) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Warn("Cleanup failed", "error", err)
		}
	}
	e.closers = nil
}
