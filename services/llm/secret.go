// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// DefaultSecretDir is where container runtimes mount secrets.
const DefaultSecretDir = "/run/secrets"

// LoadAPIKey reads an API key from the environment, then from a secret file.
//
// # Description
//
// Looks up envName first. If unset, reads secretPath (e.g.
// /run/secrets/anthropic_api_key) as mounted by Podman or Docker secrets.
//
// # Inputs
//
//   - envName: Environment variable name, e.g. ANTHROPIC_API_KEY.
//   - secretPath: Secret file path. Empty skips the file lookup.
//
// # Outputs
//
//   - string: The trimmed key.
//   - error: ErrMissingAPIKey (wrapped) if neither source has a key.
func LoadAPIKey(envName, secretPath string) (string, error) {
	return LoadAPIKeyFrom(os.LookupEnv, envName, secretPath)
}

// LoadAPIKeyFrom is LoadAPIKey with a custom environment lookup.
func LoadAPIKeyFrom(lookup func(string) (string, bool), envName, secretPath string) (string, error) {
	if v, _ := lookup(envName); strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	if secretPath != "" {
		if content, err := os.ReadFile(secretPath); err == nil {
			if key := strings.TrimSpace(string(content)); key != "" {
				slog.Info("Read API key from secret file", "path", secretPath)
				return key, nil
			}
		}
	}
	return "", fmt.Errorf("%s: %w", envName, ErrMissingAPIKey)
}

// MaskKey renders a key as "sk-a…xyz9" for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "…" + key[len(key)-4:]
}
