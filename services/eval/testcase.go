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
	"errors"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnknownScenario is returned when a requested scenario ID does not exist.
	ErrUnknownScenario = errors.New("unknown scenario")

	// ErrInvalidScenario is returned when a scenario file fails validation.
	ErrInvalidScenario = errors.New("invalid scenario")

	// ErrJudgeOutput is returned when the judge's reply cannot be parsed.
	ErrJudgeOutput = errors.New("unparsable judge output")

	// ErrUnknownMetric is returned for an unsupported metric type.
	ErrUnknownMetric = errors.New("unknown metric type")

	// ErrUnknownCheck is returned for an unsupported check type.
	ErrUnknownCheck = errors.New("unknown check type")
)

// -----------------------------------------------------------------------------
// Test Case
// -----------------------------------------------------------------------------

// TestCase is the unit a metric scores.
type TestCase struct {
	// Input is the prompt as sent to the agent.
	Input string `json:"input"`

	// ActualOutput is the agent's final answer.
	ActualOutput string `json:"actual_output"`

	// ExpectedOutput is the reference answer, if the scenario has one.
	ExpectedOutput string `json:"expected_output,omitempty"`

	// Context is ground-truth context known independently of the agent.
	Context []string `json:"context,omitempty"`

	// RetrievalContext is what the agent actually retrieved: its tool
	// outputs plus the class record read from the graph.
	RetrievalContext []string `json:"retrieval_context,omitempty"`
}
