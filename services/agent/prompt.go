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
	"strings"
)

// DefaultSystemPrompt frames the model as a code-graph analyst.
const DefaultSystemPrompt = `You are a code analysis assistant. A static analyser has loaded the structure of a codebase into a Memgraph graph database, and you can query it with the tools provided.

Answer from the graph, not from assumptions. When listing members of a class, list each one on its own numbered line, with the name in bold, followed by a short description.`

// DefaultInstructions is appended to prompts that name a class.
const DefaultInstructions = "Please use the available Memgraph tools to query the codebase graph for information about the %s class."

// AugmentPrompt appends scenario instructions to the user prompt.
//
// A "%s" in instructions is replaced with class; empty instructions with a
// non-empty class fall back to DefaultInstructions.
func AugmentPrompt(prompt, instructions, class string) string {
	prompt = strings.TrimSpace(prompt)
	if strings.TrimSpace(instructions) == "" {
		if class == "" {
			return prompt
		}
		instructions = DefaultInstructions
	}
	instructions = strings.ReplaceAll(instructions, "%s", class)
	return prompt + "\n\n" + strings.TrimSpace(instructions)
}
