// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"slices"
	"time"

	"github.com/AleutianAI/CodeGraphEval/services/eval"
)

// TrendPoint is one past run of a scenario.
type TrendPoint struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Mode      string    `json:"mode"`

	// Counts holds the attribute count of every completed attempt.
	Counts []int `json:"counts"`

	Passed bool `json:"passed"`
}

// Stable reports whether every attempt of the run found the same count.
func (p TrendPoint) Stable() bool {
	for _, c := range p.Counts {
		if c != p.Counts[0] {
			return false
		}
	}
	return len(p.Counts) > 0
}

// Trend summarises a scenario's attribute counts across runs.
type Trend struct {
	Scenario string       `json:"scenario"`
	Points   []TrendPoint `json:"points"`
}

// Consistent reports whether every completed attempt in every run found the
// same attribute count.
func (t *Trend) Consistent() bool {
	first := -1
	for _, p := range t.Points {
		for _, c := range p.Counts {
			if first < 0 {
				first = c
			}
			if c != first {
				return false
			}
		}
	}
	return first >= 0
}

// Distinct returns the distinct attribute counts seen, sorted.
func (t *Trend) Distinct() []int {
	var out []int
	for _, p := range t.Points {
		for _, c := range p.Counts {
			if !slices.Contains(out, c) {
				out = append(out, c)
			}
		}
	}
	slices.Sort(out)
	return out
}

// CountTrend returns the attribute counts recorded for scenario across at
// most limit past runs (limit <= 0 means all), oldest first.
func (s *Store) CountTrend(ctx context.Context, scenario string, limit int) (*Trend, error) {
	trend := &Trend{Scenario: scenario}
	err := s.each(ctx, func(r *eval.Report) bool {
		res := r.Scenario(scenario)
		if res == nil {
			return true
		}
		point := TrendPoint{RunID: r.RunID, StartedAt: r.StartedAt, Mode: r.Mode, Passed: res.Passed()}
		for _, a := range res.Attempts {
			if a.Err == "" {
				point.Counts = append(point.Counts, a.AttributeCount)
			}
		}
		trend.Points = append(trend.Points, point)
		return limit <= 0 || len(trend.Points) < limit
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(trend.Points)
	return trend, nil
}
