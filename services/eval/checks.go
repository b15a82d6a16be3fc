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
	"unicode/utf8"
)

// Check types.
const (
	CheckAttributeCount = "attribute_count"
	CheckClassPath      = "class_path"
	CheckKeyTerms       = "key_terms"
	CheckLength         = "length"
	CheckContainsAny    = "contains_any"
	CheckContainsAll    = "contains_all"
	CheckNonEmpty       = "non_empty"
	CheckConsistency    = "consistency"
)

// DefaultExpectedAttributes is the attribute count expected when a check
// does not set one.
const DefaultExpectedAttributes = 3

// CheckSpec configures one deterministic check.
type CheckSpec struct {
	// Type selects the check.
	Type string `yaml:"type" json:"type" validate:"required,oneof=attribute_count class_path key_terms length contains_any contains_all non_empty"`

	// Name overrides the reported name. Defaults to Type.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Expected is the attribute count for attribute_count.
	Expected *int `yaml:"expected,omitempty" json:"expected,omitempty" validate:"omitempty,min=0"`

	// Path is the expected qualified path for class_path.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// Terms are matched case-insensitively by key_terms and contains_*.
	Terms []string `yaml:"terms,omitempty" json:"terms,omitempty"`

	// Min is the minimum term matches (key_terms) or length (length).
	Min int `yaml:"min,omitempty" json:"min,omitempty" validate:"min=0"`

	// Max is the maximum length. Zero means unbounded.
	Max int `yaml:"max,omitempty" json:"max,omitempty" validate:"min=0"`
}

// DisplayName returns Name, or Type when Name is empty.
func (c CheckSpec) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type
}

// ExpectedCount returns the attribute count this check expects.
func (c CheckSpec) ExpectedCount() int {
	if c.Expected == nil {
		return DefaultExpectedAttributes
	}
	return *c.Expected
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunCheck evaluates spec against a test case.
//
// class is the scenario's class name, used by class_path extraction.
func RunCheck(spec CheckSpec, tc *TestCase, class string) CheckResult {
	res := CheckResult{Name: spec.DisplayName()}
	output := tc.ActualOutput
	lower := strings.ToLower(output)

	switch spec.Type {
	case CheckAttributeCount:
		attrs := ExtractAttributes(output)
		want := spec.ExpectedCount()
		res.Passed = len(attrs) == want
		res.Detail = fmt.Sprintf("expected %d attributes, found %d %v", want, len(attrs), attrs)

	case CheckClassPath:
		got := ExtractClassPath(output, class, spec.Path)
		res.Passed = got == spec.Path
		res.Detail = fmt.Sprintf("expected path %q, extracted %q", spec.Path, got)

	case CheckKeyTerms:
		found := matchedTerms(lower, spec.Terms)
		minimum := spec.Min
		if minimum <= 0 {
			minimum = 1
		}
		res.Passed = len(found) >= minimum
		res.Detail = fmt.Sprintf("found %d of %d key terms %v, need %d", len(found), len(spec.Terms), found, minimum)

	case CheckLength:
		n := utf8.RuneCountInString(output)
		res.Passed = n >= spec.Min && (spec.Max == 0 || n <= spec.Max)
		if spec.Max > 0 {
			res.Detail = fmt.Sprintf("length %d, want %d..%d", n, spec.Min, spec.Max)
		} else {
			res.Detail = fmt.Sprintf("length %d, want at least %d", n, spec.Min)
		}

	case CheckContainsAny:
		found := matchedTerms(lower, spec.Terms)
		res.Passed = len(found) > 0
		res.Detail = fmt.Sprintf("matched %v of %v", found, spec.Terms)

	case CheckContainsAll:
		found := matchedTerms(lower, spec.Terms)
		res.Passed = len(found) == len(spec.Terms)
		res.Detail = fmt.Sprintf("matched %d of %d terms %v", len(found), len(spec.Terms), spec.Terms)

	case CheckNonEmpty:
		res.Passed = strings.TrimSpace(output) != ""
		res.Detail = "answer is empty"
		if res.Passed {
			res.Detail = "answer is non-empty"
		}

	default:
		res.Detail = fmt.Sprintf("%v: %s", ErrUnknownCheck, spec.Type)
	}
	return res
}

// ConsistencyCheck requires every attempt to report the same attribute count.
func ConsistencyCheck(counts []int) CheckResult {
	res := CheckResult{Name: CheckConsistency, Passed: true}
	if len(counts) == 0 {
		res.Detail = "no completed attempts"
		res.Passed = false
		return res
	}
	for _, c := range counts[1:] {
		if c != counts[0] {
			res.Passed = false
		}
	}
	if res.Passed {
		res.Detail = fmt.Sprintf("all %d attempts found %d attributes", len(counts), counts[0])
	} else {
		res.Detail = fmt.Sprintf("attribute counts differ across attempts: %v", counts)
	}
	return res
}

func matchedTerms(lowerText string, terms []string) []string {
	var found []string
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lowerText, strings.ToLower(term)) {
			found = append(found, term)
		}
	}
	return found
}
