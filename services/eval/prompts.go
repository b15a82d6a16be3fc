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
	"fmt"
	"strings"
)

func statementsPrompt(output string) string {
	return fmt.Sprintf(`Break the following text into its individual statements.
A list item counts as one statement. Ignore headings and filler.

Text:
%s

Respond as JSON: {"statements": ["...", "..."]}`, output)
}

func relevancyVerdictsPrompt(input string, statements []string) string {
	return fmt.Sprintf(`For each statement decide whether it is relevant to answering the input.
Answer "yes" if it is relevant, "no" if it is irrelevant, and "idk" if it is
ambiguous but could support the answer. Give a reason only for "no".

Input:
%s

Statements:
%s

Respond as JSON with exactly one verdict per statement, in order:
{"verdicts": [{"verdict": "yes|no|idk", "reason": "..."}]}`, input, numbered(statements))
}

func claimsPrompt(output string) string {
	return fmt.Sprintf(`Extract every factual claim made in the following text. Include only
claims stated in the text; do not infer new ones.

Text:
%s

Respond as JSON: {"claims": ["...", "..."]}`, output)
}

func faithfulnessVerdictsPrompt(claims, retrieval []string) string {
	return fmt.Sprintf(`For each claim decide whether it is contradicted by the retrieval context.
Answer "yes" if the context supports it, "no" only if the context directly
contradicts it, and "idk" if the context does not mention it. Give a reason
for every "no".

Retrieval context:
%s

Claims:
%s

Respond as JSON with exactly one verdict per claim, in order:
{"verdicts": [{"verdict": "yes|no|idk", "reason": "..."}]}`, numbered(retrieval), numbered(claims))
}

func contextVerdictsPrompt(input, item string) string {
	return fmt.Sprintf(`Split the context below into statements and decide for each whether it is
relevant to the input. Answer "yes" or "no" and give a reason for every "no".

Input:
%s

Context:
%s

Respond as JSON:
{"verdicts": [{"statement": "...", "verdict": "yes|no", "reason": "..."}]}`, input, item)
}

func gevalPrompt(name, criteria string, steps, params []string, tc *TestCase) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluate the test case below for the metric %q.\n\nCriteria:\n%s\n", name, criteria)
	if len(steps) > 0 {
		fmt.Fprintf(&b, "\nEvaluation steps:\n%s\n", numbered(steps))
	}
	b.WriteString("\nTest case:\n")
	for _, p := range params {
		fmt.Fprintf(&b, "\n%s:\n%s\n", paramTitle(p), paramValue(p, tc))
	}
	b.WriteString(`
Score the test case from 0 (fails the criteria entirely) to 10 (fully meets
them). Respond as JSON: {"score": <0-10>, "reason": "..."}`)
	return b.String()
}

func paramTitle(p string) string {
	return strings.ReplaceAll(strings.ToUpper(p[:1])+p[1:], "_", " ")
}

func paramValue(p string, tc *TestCase) string {
	switch p {
	case ParamInput:
		return tc.Input
	case ParamActualOutput:
		return tc.ActualOutput
	case ParamExpectedOutput:
		return tc.ExpectedOutput
	case ParamContext:
		return numbered(tc.Context)
	case ParamRetrievalContext:
		return numbered(tc.RetrievalContext)
	default:
		return ""
	}
}

func numbered(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return strings.TrimRight(b.String(), "\n")
}
