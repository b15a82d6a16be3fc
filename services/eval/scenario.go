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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AleutianAI/CodeGraphEval/services/agent"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnterpriseClass is the class the built-in scenarios ask about.
const EnterpriseClass = "EnterpriseNewsAndEvents"

// EnterprisePath is the qualified path of EnterpriseClass in the sample graph.
const EnterprisePath = "cpdvalet-api.cpd_shared.news_and_events.resources.EnterpriseNewsAndEvents"

// Scenario is one prompt with its expectations.
type Scenario struct {
	// ID uniquely identifies the scenario within a file.
	ID string `yaml:"id" json:"id" validate:"required"`

	// Description is shown in reports.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Prompt is the question sent to the agent.
	Prompt string `yaml:"prompt" json:"prompt" validate:"required"`

	// Instructions are appended to the prompt. "%s" is replaced with Class.
	Instructions string `yaml:"instructions,omitempty" json:"instructions,omitempty"`

	// Class is the class the prompt is about.
	Class string `yaml:"class,omitempty" json:"class,omitempty"`

	// ExpectedOutput is a reference answer for metrics that use one.
	ExpectedOutput string `yaml:"expected_output,omitempty" json:"expected_output,omitempty"`

	// Context is ground truth added to each test case.
	Context ScenarioContext `yaml:"context,omitempty" json:"context,omitempty"`

	Checks  []CheckSpec  `yaml:"checks,omitempty" json:"checks,omitempty" validate:"dive"`
	Metrics []MetricSpec `yaml:"metrics,omitempty" json:"metrics,omitempty" validate:"dive"`
}

// ScenarioContext describes where a scenario's context comes from.
type ScenarioContext struct {
	// Class is looked up in the graph and its record added as context.
	// Defaults to the scenario's Class.
	Class string `yaml:"class,omitempty" json:"class,omitempty"`

	// Static is used verbatim, and in place of the graph lookup when no
	// graph is available.
	Static []string `yaml:"static,omitempty" json:"static,omitempty"`
}

// ContextClass returns the class whose record becomes context.
func (s *Scenario) ContextClass() string {
	if s.Context.Class != "" {
		return s.Context.Class
	}
	return s.Class
}

// scenarioFile is the on-disk layout.
type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios" validate:"required,min=1,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadScenarios reads and validates a scenario file.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	scenarios, err := ParseScenarios(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenarios, nil
}

// ParseScenarios decodes and validates scenarios from YAML.
//
// Unknown fields are rejected so that typos in check or metric options
// surface instead of silently using defaults.
func ParseScenarios(r io.Reader) ([]Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file scenarioFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: file is empty", ErrInvalidScenario)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}

	seen := make(map[string]bool, len(file.Scenarios))
	for _, s := range file.Scenarios {
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: duplicate scenario id %q", ErrInvalidScenario, s.ID)
		}
		seen[s.ID] = true
	}
	return file.Scenarios, nil
}

// FilterScenarios returns the scenarios with the given IDs, in the order
// requested. No IDs returns all scenarios.
func FilterScenarios(all []Scenario, ids []string) ([]Scenario, error) {
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[string]Scenario, len(all))
	for _, s := range all {
		byID[s.ID] = s
	}

	out := make([]Scenario, 0, len(ids))
	var missing []string
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, s)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScenario, strings.Join(missing, ", "))
	}
	return out, nil
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

// BuiltinScenarios returns the scenarios used when no scenario file is
// configured.
func BuiltinScenarios() []Scenario {
	instructions := agent.DefaultInstructions
	attributesPrompt := "Please list all the attributes for " + EnterpriseClass + " class"

	return []Scenario{
		{
			ID:           "enterprise-attributes",
			Description:  "Lists the attributes of " + EnterpriseClass + " and scores answer quality",
			Prompt:       attributesPrompt,
			Instructions: instructions,
			Class:        EnterpriseClass,
			Checks: []CheckSpec{
				{Type: CheckAttributeCount, Expected: intPtr(3)},
			},
			Metrics: []MetricSpec{
				{Type: MetricAnswerRelevancy, Threshold: floatPtr(DefaultAnswerRelevancyThreshold)},
				{Type: MetricFaithfulness, Threshold: floatPtr(DefaultFaithfulnessThreshold)},
				{Type: MetricContextualRelevancy, Threshold: floatPtr(DefaultContextualRelevancyThreshold)},
			},
		},
		{
			ID:           "enterprise-response-quality",
			Description:  "Checks the attribute answer mentions the class and has a sensible length",
			Prompt:       attributesPrompt,
			Instructions: instructions,
			Class:        EnterpriseClass,
			Checks: []CheckSpec{
				{Type: CheckKeyTerms, Terms: []string{"attribute", "enterprisenewsandevents", "class"}, Min: 2},
				{Type: CheckLength, Min: 50, Max: 2000},
			},
		},
		{
			ID:             "enterprise-path",
			Description:    "Asks for the qualified path of " + EnterpriseClass,
			Prompt:         "Give the path to the class " + EnterpriseClass,
			Instructions:   instructions,
			Class:          EnterpriseClass,
			ExpectedOutput: fmt.Sprintf("The class %s is located at `%s`.", EnterpriseClass, EnterprisePath),
			Checks: []CheckSpec{
				{Type: CheckClassPath, Path: EnterprisePath},
			},
			Metrics: []MetricSpec{
				{
					Type:      MetricGEval,
					Name:      "PathAccuracy",
					Threshold: floatPtr(0.8),
					Criteria:  "Determine whether the actual output gives the same qualified class path as the expected output. Formatting differences such as backticks are acceptable; a different path is not.",
					Params:    []string{ParamInput, ParamActualOutput, ParamExpectedOutput},
				},
				{
					Type:      MetricGEval,
					Name:      "AnswerRelevancy",
					Threshold: floatPtr(0.7),
					Criteria:  "Determine whether the actual output directly answers the question in the input without unrelated material.",
					Params:    []string{ParamInput, ParamActualOutput},
				},
			},
		},
		{
			ID:           "enterprise-response-format",
			Description:  "Checks the attribute answer is a readable list that names the class",
			Prompt:       attributesPrompt,
			Instructions: instructions,
			Class:        EnterpriseClass,
			Checks: []CheckSpec{
				{Type: CheckContainsAny, Name: "mentions_class", Terms: []string{"enterprisenewsandevents", "enterprise"}},
				{Type: CheckContainsAll, Name: "mentions_attributes", Terms: []string{"attribute"}},
				{Type: CheckLength, Name: "min_length", Min: 51},
			},
			Metrics: []MetricSpec{
				{
					Type:      MetricGEval,
					Name:      "ResponseFormat",
					Threshold: floatPtr(0.7),
					Criteria:  "Determine whether the actual output presents the class attributes as a clear list, names the class, and avoids filler.",
					EvaluationSteps: []string{
						"Check that each attribute appears as its own list item.",
						"Check that the class name is mentioned.",
						"Penalise repetition and content unrelated to the attributes.",
					},
					Params: []string{ParamInput, ParamActualOutput},
				},
			},
		},
	}
}
