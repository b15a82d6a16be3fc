// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel defines the richness of CLI output.
type PersonalityLevel string

const (
	// PersonalityFull enables colors, emoji status lines and boxes.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityMinimal keeps emoji status lines but drops colors and boxes.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs plain "LEVEL: text" lines suitable for scripting.
	PersonalityMachine PersonalityLevel = "machine"
)

// ParsePersonalityLevel converts a string to a PersonalityLevel.
// Unknown values fall back to PersonalityFull.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "plain":
		return PersonalityMinimal
	case "machine", "script", "ci":
		return PersonalityMachine
	default:
		return PersonalityFull
	}
}

// DetectPersonality picks a level from CGEVAL_OUTPUT, then from the terminal.
//
// # Description
//
// An explicit CGEVAL_OUTPUT value always wins. Otherwise a terminal gets the
// full personality and redirected output gets the minimal one, so emoji
// status lines survive in CI logs while ANSI colors do not.
//
// # Inputs
//
//   - f: The file output will be written to (usually os.Stdout).
//
// # Outputs
//
//   - PersonalityLevel: The detected level.
func DetectPersonality(f *os.File) PersonalityLevel {
	if v := os.Getenv("CGEVAL_OUTPUT"); v != "" {
		return ParsePersonalityLevel(v)
	}
	if f != nil && IsTerminal(f) {
		return PersonalityFull
	}
	return PersonalityMinimal
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
