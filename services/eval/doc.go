// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package eval scores a language model's answers about a code graph.
//
// A scenario sends a fixed prompt to an agent, parses the answer (attribute
// list, class path), runs deterministic checks against fixed expectations
// and asks a judge model for quality scores.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                         Evaluation Run                               │
//	├──────────────────────────────────────────────────────────────────────┤
//	│                                                                      │
//	│  ┌───────────┐   ┌───────────┐   ┌────────────┐   ┌──────────────┐   │
//	│  │ Scenario  │──▶│  Agent    │──▶│ TestCase   │──▶│ Checks       │   │
//	│  │ (prompt)  │   │ (tools)   │   │ (+context) │   │ (count/path) │   │
//	│  └───────────┘   └───────────┘   └────────────┘   └──────────────┘   │
//	│        │                               │                 │           │
//	│        │ repeat N (errgroup)           ▼                 ▼           │
//	│        │                         ┌────────────┐   ┌──────────────┐   │
//	│        └────────────────────────▶│ Metrics    │──▶│ Report       │   │
//	│                                  │ (judge)    │   │ (sinks)      │   │
//	│                                  └────────────┘   └──────────────┘   │
//	│                                                                      │
//	└──────────────────────────────────────────────────────────────────────┘
//
// # Thread Safety
//
// Runner.Run may be called concurrently with different scenarios. Metrics
// and the Judge are stateless and safe for concurrent use.
package eval
