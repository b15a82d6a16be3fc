// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"strings"
	"time"

	"github.com/AleutianAI/CodeGraphEval/services/tools"
)

// SimulatedAttributesAnswer is the canned reply to attribute questions about
// EnterpriseNewsAndEvents.
const SimulatedAttributesAnswer = `Based on the codebase analysis via the Memgraph tools, I found the EnterpriseNewsAndEvents class with the following attributes:

1. **id** - Unique identifier for the news/event item
2. **title** - The title of the news or event
3. **content** - The main content/description of the news or event

These are the 3 main attributes defined for the EnterpriseNewsAndEvents class.`

// SimulatedPathAnswer is the canned reply to path questions about
// EnterpriseNewsAndEvents.
const SimulatedPathAnswer = "The EnterpriseNewsAndEvents class is located at " +
	"`cpdvalet-api.cpd_shared.news_and_events.resources.EnterpriseNewsAndEvents`. " +
	"It is defined in the news_and_events resources module of the cpd_shared package."

// SimulatedResponse maps a prompt keyword to a canned reply.
type SimulatedResponse struct {
	// Keyword is matched case-insensitively against the prompt.
	Keyword string

	// Text is the reply.
	Text string

	// Context is reported as the output of a simulated tool call, so that
	// context-based metrics have something to judge against.
	Context string
}

// SimulatedAgent returns canned answers without calling a model.
type SimulatedAgent struct {
	responses []SimulatedResponse
	fallback  string
}

// NewSimulatedAgent creates a SimulatedAgent. With no responses it answers
// path questions with SimulatedPathAnswer and everything else with
// SimulatedAttributesAnswer.
func NewSimulatedAgent(responses ...SimulatedResponse) *SimulatedAgent {
	if len(responses) == 0 {
		responses = []SimulatedResponse{{
			Keyword: "path",
			Text:    SimulatedPathAnswer,
			Context: `{"rows":[{"qualified_name":"cpdvalet-api.cpd_shared.news_and_events.resources.EnterpriseNewsAndEvents"}],"row_count":1}`,
		}}
	}
	return &SimulatedAgent{responses: responses, fallback: SimulatedAttributesAnswer}
}

// Mode implements Agent.
func (a *SimulatedAgent) Mode() string { return ModeSimulated }

// Ask implements Agent.
func (a *SimulatedAgent) Ask(ctx context.Context, prompt string) (*Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	lower := strings.ToLower(prompt)
	text, toolContext := a.fallback, `{"rows":[{"class_name":"EnterpriseNewsAndEvents","attributes":["content","id","title"]}],"row_count":1}`
	for _, r := range a.responses {
		if r.Keyword != "" && strings.Contains(lower, strings.ToLower(r.Keyword)) {
			text, toolContext = r.Text, r.Context
			break
		}
	}

	answer := &Answer{
		Text:  text,
		Turns: 1,
		Mode:  ModeSimulated,
		Model: "simulated",
	}
	if toolContext != "" {
		answer.Invocations = []ToolInvocation{{
			Tool:   tools.RunQueryName,
			Input:  `{"query": "simulated"}`,
			Output: toolContext,
			Turn:   1,
		}}
	}
	answer.Duration = time.Since(start)
	return answer, nil
}
