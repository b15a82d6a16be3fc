// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds cgeval's configuration: a YAML file overlaid with
// environment variables.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/AleutianAI/CodeGraphEval/services/telemetry"
)

// DefaultModel is used for both the orchestrator and Cypher models.
const DefaultModel = "claude-3-5-sonnet-20241022"

// Config is the full cgeval configuration.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Judge      JudgeConfig      `yaml:"judge"`
	Memgraph   MemgraphConfig   `yaml:"memgraph"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Storage    StorageConfig    `yaml:"storage"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Export     ExportConfig     `yaml:"export"`
	MCP        MCPConfig        `yaml:"mcp"`

	// TargetRepoPath is the repository the graph was built from.
	TargetRepoPath string `yaml:"target_repo_path"`
}

// AnthropicConfig configures the model under test.
type AnthropicConfig struct {
	// APIKey comes from ANTHROPIC_API_KEY or the secret file only.
	APIKey string `yaml:"-"`

	// OrchestratorModel answers the scenario prompts.
	OrchestratorModel string `yaml:"orchestrator_model" validate:"required"`

	// CypherModel translates questions to Cypher in ask_graph.
	CypherModel string `yaml:"cypher_model" validate:"required"`

	// BaseURL is the full Messages endpoint. Empty uses the public API.
	BaseURL string `yaml:"base_url,omitempty" validate:"omitempty,url"`

	MaxTokens         int           `yaml:"max_tokens" validate:"min=1"`
	Timeout           time.Duration `yaml:"timeout" validate:"min=0"`
	RequestsPerMinute int           `yaml:"requests_per_minute" validate:"min=0"`

	// SecretFile is read when ANTHROPIC_API_KEY is unset.
	SecretFile string `yaml:"secret_file,omitempty"`
}

// JudgeConfig configures the model grading answers.
type JudgeConfig struct {
	Provider string `yaml:"provider" validate:"oneof=anthropic openai"`

	// Model defaults to the orchestrator model.
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"base_url,omitempty" validate:"omitempty,url"`

	// APIKeyEnv names the variable holding the judge key. Defaults to
	// ANTHROPIC_API_KEY or OPENAI_API_KEY by provider.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// KeyEnv returns the environment variable holding the judge's key.
func (j JudgeConfig) KeyEnv() string {
	if j.APIKeyEnv != "" {
		return j.APIKeyEnv
	}
	if j.Provider == "openai" {
		return "OPENAI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

// MemgraphConfig locates the graph database.
type MemgraphConfig struct {
	Host     string `yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	HTTPPort int    `yaml:"http_port" validate:"min=1,max=65535"`
	LabPort  int    `yaml:"lab_port" validate:"min=1,max=65535"`
	Username string `yaml:"username,omitempty"`

	// Password comes from MEMGRAPH_PASSWORD only.
	Password string `yaml:"-"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" validate:"min=0"`
}

// EvaluationConfig controls evaluation runs.
type EvaluationConfig struct {
	// ScenarioFile is a YAML scenario file. Empty uses the built-ins.
	ScenarioFile string `yaml:"scenario_file,omitempty"`

	AgentMode    string `yaml:"agent_mode" validate:"oneof=native react simulated"`
	Repeat       int    `yaml:"repeat" validate:"min=1"`
	Concurrency  int    `yaml:"concurrency" validate:"min=1"`
	MaxToolTurns int    `yaml:"max_tool_turns" validate:"min=1"`
	RowLimit     int    `yaml:"row_limit" validate:"min=1"`

	// ReportDir receives a JSON report per run when set.
	ReportDir string `yaml:"report_dir,omitempty"`
}

// StorageConfig locates local state.
type StorageConfig struct {
	// HistoryPath is the BadgerDB directory. Empty disables history.
	HistoryPath string `yaml:"history_path,omitempty"`
}

// TelemetryConfig configures traces and metrics.
type TelemetryConfig struct {
	MetricsFile    string `yaml:"metrics_file,omitempty"`
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=otlp stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint,omitempty"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
}

// OTel converts the section to a telemetry.Config.
func (t TelemetryConfig) OTel(version string) telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.TraceExporter = t.TraceExporter
	cfg.MetricExporter = t.MetricExporter
	cfg.OTLPInsecure = t.OTLPInsecure
	cfg.MetricsFile = t.MetricsFile
	if t.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = t.OTLPEndpoint
	}
	return cfg
}

// ExportConfig configures report exporters. Each is off unless its
// destination is set.
type ExportConfig struct {
	InfluxURL      string `yaml:"influx_url,omitempty" validate:"omitempty,url"`
	InfluxOrg      string `yaml:"influx_org,omitempty" validate:"required_with=InfluxURL"`
	InfluxBucket   string `yaml:"influx_bucket,omitempty" validate:"required_with=InfluxURL"`
	InfluxTokenEnv string `yaml:"influx_token_env,omitempty"`

	GCSBucket      string `yaml:"gcs_bucket,omitempty"`
	GCSPrefix      string `yaml:"gcs_prefix,omitempty"`
	GCSCredentials string `yaml:"gcs_credentials,omitempty"`
}

// MCPConfig configures "cgeval mcp register".
type MCPConfig struct {
	// ServerName is the name the assistant knows the server by.
	ServerName string `yaml:"server_name" validate:"required"`

	// AssistantCommand is the coding assistant CLI.
	AssistantCommand string `yaml:"assistant_command" validate:"required"`

	// ServerCommand launches the Memgraph MCP server.
	ServerCommand []string `yaml:"server_command" validate:"required,min=1"`
}

// MemgraphURI returns the Bolt URI, e.g. bolt://localhost:7687.
func (c *Config) MemgraphURI() string {
	return "bolt://" + net.JoinHostPort(c.Memgraph.Host, strconv.Itoa(c.Memgraph.Port))
}

// LabURL returns the Memgraph Lab URL.
func (c *Config) LabURL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(c.Memgraph.Host, strconv.Itoa(c.Memgraph.LabPort)))
}

// JudgeModel returns the judge model, defaulting to the orchestrator model
// for the Anthropic provider.
func (c *Config) JudgeModel() string {
	if c.Judge.Model != "" {
		return c.Judge.Model
	}
	if c.Judge.Provider == "openai" {
		return ""
	}
	return c.Anthropic.OrchestratorModel
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Anthropic: AnthropicConfig{
			OrchestratorModel: DefaultModel,
			CypherModel:       DefaultModel,
			MaxTokens:         4096,
			Timeout:           2 * time.Minute,
			RequestsPerMinute: 50,
			SecretFile:        "/run/secrets/anthropic_api_key",
		},
		Judge: JudgeConfig{Provider: "anthropic"},
		Memgraph: MemgraphConfig{
			Host:           "localhost",
			Port:           7687,
			HTTPPort:       7444,
			LabPort:        3000,
			ConnectTimeout: 5 * time.Second,
		},
		Evaluation: EvaluationConfig{
			AgentMode:    "native",
			Repeat:       1,
			Concurrency:  2,
			MaxToolTurns: 8,
			RowLimit:     100,
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPInsecure:   true,
		},
		MCP: MCPConfig{
			ServerName:       "memgraph",
			AssistantCommand: "claude",
			ServerCommand:    []string{"uv", "run", "--with", "mcp-memgraph", "mcp-memgraph"},
		},
		TargetRepoPath: ".",
	}
}
