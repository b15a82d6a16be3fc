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
	"regexp"
	"sort"
	"strings"
)

const identifier = `([a-zA-Z_][a-zA-Z0-9_]*)`

// attributeLinePatterns recognise list items naming an attribute:
// "1. **name**", "- **name**", "1. name" and "- name".
var attributeLinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*\d+\.\s*\*\*` + identifier + `\*\*`),
	regexp.MustCompile(`^\s*-\s*\*\*` + identifier + `\*\*`),
	regexp.MustCompile(`^\s*\d+\.\s*` + identifier),
	regexp.MustCompile(`^\s*-\s*` + identifier),
}

// ExtractAttributes returns the distinct attribute names listed in text,
// sorted.
//
// Each line is tested against every pattern and all matches are kept, so a
// line "1. **id**" contributes "id" once. Bullets other than numbered items
// and "-" are not recognised.
func ExtractAttributes(text string) []string {
	seen := make(map[string]struct{})
	for _, line := range strings.Split(text, "\n") {
		for _, p := range attributeLinePatterns {
			for _, m := range p.FindAllStringSubmatch(line, -1) {
				seen[m[1]] = struct{}{}
			}
		}
	}

	attrs := make([]string, 0, len(seen))
	for name := range seen {
		attrs = append(attrs, name)
	}
	sort.Strings(attrs)
	return attrs
}

// CountAttributes returns len(ExtractAttributes(text)).
func CountAttributes(text string) int {
	return len(ExtractAttributes(text))
}

// ExtractClassPath finds the qualified path of class in text.
//
// # Description
//
// When expected is non-empty and appears verbatim, it is returned.
// Otherwise the first of these is returned:
//
//   - a dotted or dashed path ending in the class name
//     (pkg.module.Class, cpdvalet-api.x.Class)
//   - a **bold** span containing the class name
//   - a `code` span containing the class name
//
// # Outputs
//
//   - string: The path, or "" if none is found.
func ExtractClassPath(text, class, expected string) string {
	if expected != "" && strings.Contains(text, expected) {
		return expected
	}
	if class == "" {
		return ""
	}

	name := regexp.QuoteMeta(class)
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`[A-Za-z0-9_][A-Za-z0-9_\-]*(?:\.[A-Za-z0-9_\-]+)*\.` + name + `\b`),
		regexp.MustCompile(`\*\*([^*\n]*` + name + `[^*\n]*)\*\*`),
		regexp.MustCompile("`([^`\\n]*" + name + "[^`\\n]*)`"),
	}
	for i, p := range patterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if i == 0 {
			return m[0]
		}
		return strings.TrimSpace(m[1])
	}
	return ""
}
