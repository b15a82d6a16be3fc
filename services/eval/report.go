// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/CodeGraphEval/services/agent"
)

// Report is the outcome of one evaluation run.
type Report struct {
	RunID     string           `json:"run_id"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	Mode      string           `json:"mode"`
	Models    Models           `json:"models"`
	Repeat    int              `json:"repeat"`
	Scenarios []ScenarioResult `json:"scenarios"`
}

// Models names the models involved in a run.
type Models struct {
	Agent string `json:"agent,omitempty"`
	Judge string `json:"judge,omitempty"`
}

// ScenarioResult is the outcome of one scenario across its attempts.
type ScenarioResult struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	Attempts    []Attempt `json:"attempts"`

	// Checks are scenario-level checks, such as consistency across attempts.
	Checks []CheckResult `json:"checks,omitempty"`
}

// Attempt is one ask-and-score cycle.
type Attempt struct {
	Number         int            `json:"number"`
	Answer         *agent.Answer  `json:"answer,omitempty"`
	TestCase       *TestCase      `json:"test_case,omitempty"`
	Attributes     []string       `json:"attributes,omitempty"`
	AttributeCount int            `json:"attribute_count"`
	ClassPath      string         `json:"class_path,omitempty"`
	Checks         []CheckResult  `json:"checks,omitempty"`
	Metrics        []MetricResult `json:"metrics,omitempty"`
	Err            string         `json:"error,omitempty"`
	Duration       time.Duration  `json:"duration"`
}

// Passed reports whether the attempt completed, every check passed and
// every metric that ran passed.
func (a *Attempt) Passed() bool {
	if a.Err != "" {
		return false
	}
	for _, c := range a.Checks {
		if !c.Passed {
			return false
		}
	}
	for _, m := range a.Metrics {
		if !m.Skipped && !m.Passed {
			return false
		}
	}
	return true
}

// Passed reports whether every attempt and scenario-level check passed.
func (s *ScenarioResult) Passed() bool {
	if len(s.Attempts) == 0 {
		return false
	}
	for i := range s.Attempts {
		if !s.Attempts[i].Passed() {
			return false
		}
	}
	for _, c := range s.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Passed reports whether every scenario passed.
func (r *Report) Passed() bool {
	for i := range r.Scenarios {
		if !r.Scenarios[i].Passed() {
			return false
		}
	}
	return len(r.Scenarios) > 0
}

// Counts returns the number of passed and failed scenarios.
func (r *Report) Counts() (passed, failed int) {
	for i := range r.Scenarios {
		if r.Scenarios[i].Passed() {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// Scenario returns the result for id, or nil.
func (r *Report) Scenario(id string) *ScenarioResult {
	for i := range r.Scenarios {
		if r.Scenarios[i].ID == id {
			return &r.Scenarios[i]
		}
	}
	return nil
}

// JSON encodes the report with indentation.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteTo writes the JSON report to w.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	data, err := r.JSON()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(append(data, '\n'))
	return int64(n), err
}

// WriteFile writes the JSON report to path, creating parent directories.
func (r *Report) WriteFile(path string) error {
	data, err := r.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

// ParseReport decodes a JSON report.
func ParseReport(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}
