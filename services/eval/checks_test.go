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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/CodeGraphEval/services/agent"
)

func TestRunCheck(t *testing.T) {
	attrs := &TestCase{ActualOutput: agent.SimulatedAttributesAnswer}
	path := &TestCase{ActualOutput: agent.SimulatedPathAnswer}

	tests := []struct {
		name   string
		spec   CheckSpec
		tc     *TestCase
		passed bool
	}{
		{"attribute count default", CheckSpec{Type: CheckAttributeCount}, attrs, true},
		{"attribute count mismatch", CheckSpec{Type: CheckAttributeCount, Expected: intPtr(4)}, attrs, false},
		{"class path", CheckSpec{Type: CheckClassPath, Path: EnterprisePath}, path, true},
		{"class path wrong", CheckSpec{Type: CheckClassPath, Path: "other.EnterpriseNewsAndEvents"}, attrs, false},
		{"key terms", CheckSpec{Type: CheckKeyTerms, Terms: []string{"attribute", "enterprisenewsandevents", "class"}, Min: 2}, attrs, true},
		{"key terms short", CheckSpec{Type: CheckKeyTerms, Terms: []string{"method", "function", "class"}, Min: 2}, attrs, false},
		{"key terms default min", CheckSpec{Type: CheckKeyTerms, Terms: []string{"nothing", "CLASS"}}, attrs, true},
		{"length in range", CheckSpec{Type: CheckLength, Min: 50, Max: 2000}, attrs, true},
		{"length too long", CheckSpec{Type: CheckLength, Min: 1, Max: 10}, attrs, false},
		{"length unbounded", CheckSpec{Type: CheckLength, Min: 51}, attrs, true},
		{"contains any", CheckSpec{Type: CheckContainsAny, Terms: []string{"missing", "Enterprise"}}, attrs, true},
		{"contains any none", CheckSpec{Type: CheckContainsAny, Terms: []string{"missing"}}, attrs, false},
		{"contains all", CheckSpec{Type: CheckContainsAll, Terms: []string{"attribute", "content"}}, attrs, true},
		{"contains all partial", CheckSpec{Type: CheckContainsAll, Terms: []string{"attribute", "method"}}, attrs, false},
		{"non empty", CheckSpec{Type: CheckNonEmpty}, attrs, true},
		{"empty", CheckSpec{Type: CheckNonEmpty}, &TestCase{ActualOutput: "  \n"}, false},
		{"unknown", CheckSpec{Type: "bogus"}, attrs, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := RunCheck(tt.spec, tt.tc, EnterpriseClass)
			assert.Equal(t, tt.passed, res.Passed, res.Detail)
			assert.Equal(t, tt.spec.DisplayName(), res.Name)
			assert.NotEmpty(t, res.Detail)
		})
	}
}

func TestRunCheck_LengthCountsRunes(t *testing.T) {
	res := RunCheck(CheckSpec{Type: CheckLength, Min: 3, Max: 3}, &TestCase{ActualOutput: "äöü"}, "")
	assert.True(t, res.Passed, res.Detail)
}

func TestRunCheck_LengthIncludesWhitespace(t *testing.T) {
	res := RunCheck(CheckSpec{Type: CheckLength, Min: 5, Max: 5}, &TestCase{ActualOutput: " äöü "}, "")
	assert.True(t, res.Passed, res.Detail)

	res = RunCheck(CheckSpec{Type: CheckLength, Min: 1, Max: 3}, &TestCase{ActualOutput: "\n\nabc\n"}, "")
	assert.False(t, res.Passed, "surrounding newlines count toward the length")
}

func TestRunCheck_CustomName(t *testing.T) {
	res := RunCheck(CheckSpec{Type: CheckNonEmpty, Name: "answered"}, &TestCase{ActualOutput: "x"}, "")
	assert.Equal(t, "answered", res.Name)
}

func TestConsistencyCheck(t *testing.T) {
	same := ConsistencyCheck([]int{3, 3, 3})
	assert.True(t, same.Passed)
	assert.Equal(t, CheckConsistency, same.Name)

	differ := ConsistencyCheck([]int{3, 4, 3})
	assert.False(t, differ.Passed)
	assert.True(t, strings.Contains(differ.Detail, "[3 4 3]"))

	assert.False(t, ConsistencyCheck(nil).Passed)
	assert.True(t, ConsistencyCheck([]int{0}).Passed)
}
