// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the working directory, then in ~/.cgeval.
const DefaultFileName = "cgeval.yaml"

// ErrInvalidConfig wraps every load and validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads a configuration file over the defaults.
//
// # Description
//
// An explicit path must exist. With an empty path, ./cgeval.yaml and then
// ~/.cgeval/cgeval.yaml are tried, and defaults are used if neither exists.
// Unknown keys are rejected. Environment overrides are not applied; call
// ApplyEnv and Validate afterwards.
//
// # Outputs
//
//   - *Config: Defaults overlaid with the file.
//   - string: The file that was read, or "" for pure defaults.
//   - error: Wraps ErrInvalidConfig on parse failures.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = discover()
		if path == "" {
			slog.Debug("No config file found, using defaults")
			return &cfg, "", nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &cfg, "", nil
		}
		return nil, "", fmt.Errorf("read config %s: %w", path, err)
	}

	if err := decode(data, &cfg); err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	slog.Debug("Loaded config", "path", path)
	return &cfg, path, nil
}

func discover() string {
	candidates := []string{DefaultFileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".cgeval", DefaultFileName))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays environment variables onto the configuration.
//
// Empty values are ignored. Port variables must be integers.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"ANTHROPIC_API_KEY", &c.Anthropic.APIKey},
		{"ANTHROPIC_ORCHESTRATOR_MODEL_ID", &c.Anthropic.OrchestratorModel},
		{"ANTHROPIC_CYPHER_MODEL_ID", &c.Anthropic.CypherModel},
		{"MEMGRAPH_HOST", &c.Memgraph.Host},
		{"MEMGRAPH_USER", &c.Memgraph.Username},
		{"MEMGRAPH_PASSWORD", &c.Memgraph.Password},
		{"TARGET_REPO_PATH", &c.TargetRepoPath},
	}
	for _, s := range strs {
		if v, ok := get(s.key); ok {
			*s.dst = v
		}
	}

	ports := []struct {
		key string
		dst *int
	}{
		{"MEMGRAPH_PORT", &c.Memgraph.Port},
		{"MEMGRAPH_HTTP_PORT", &c.Memgraph.HTTPPort},
		{"LAB_PORT", &c.Memgraph.LabPort},
	}
	for _, p := range ports {
		v, ok := get(p.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a port number", ErrInvalidConfig, p.key, v)
		}
		*p.dst = n
	}
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Resolve loads path, applies the process environment and validates.
func Resolve(path string) (*Config, string, error) {
	cfg, used, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, used, nil
}

// Write saves the configuration as YAML, creating parent directories.
// Secrets are never written.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
