// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graphstore is the harness's client for the code graph held in
// Memgraph.
//
// The scanner writes classes, functions, attributes and their relationships
// into Memgraph; this package reads them back over Bolt so the harness can
// build retrieval context, answer ad-hoc queries and load graph exports.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                     Graph Store Access                           │
//	├──────────────────────────────────────────────────────────────────┤
//	│                                                                  │
//	│  ┌─────────────┐    ┌─────────────┐    ┌─────────────────────┐   │
//	│  │ tools /     │───▶│   Store     │───▶│ MemgraphStore       │   │
//	│  │ eval / CLI  │    │ (interface) │    │ (Bolt, neo4j driver)│   │
//	│  └─────────────┘    └─────────────┘    └─────────────────────┘   │
//	│         │                  │                                     │
//	│         ▼                  ▼                                     │
//	│  ┌─────────────┐    ┌─────────────┐                              │
//	│  │ ClassAttrs  │    │ StaticStore │  (fixtures, offline runs)    │
//	│  │ Schema      │    └─────────────┘                              │
//	│  │ ImportCypherl                                                 │
//	│  └─────────────┘                                                 │
//	│                                                                  │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Thread Safety
//
// MemgraphStore and StaticStore are safe for concurrent use. Each query runs
// in its own session.
package graphstore
