// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name   string
		cypher string
		clause string
	}{
		{"match", "MATCH (c:Class {name: 'EnterpriseNewsAndEvents'}) RETURN c", ""},
		{"optional match with collect", "MATCH (c:Class) OPTIONAL MATCH (c)-[:HAS_ATTRIBUTE]->(a) RETURN collect(a.name)", ""},
		{"skip and offset words", "MATCH (n) RETURN n.offset SKIP 10 LIMIT 5", ""},
		{"keyword inside string", `MATCH (n {name: "SET"}) RETURN n`, ""},
		{"keyword inside comment", "MATCH (n) // DELETE later\nRETURN n", ""},
		{"keyword in backticks", "MATCH (n) RETURN n.`create`", ""},
		{"create", "CREATE (n:Class)", "CREATE"},
		{"merge lowercase", "merge (n:Class {name: 'x'})", "MERGE"},
		{"detach delete", "MATCH (n) DETACH DELETE n", "DETACH"},
		{"set property", "MATCH (n) SET n.x = 1", "SET"},
		{"remove", "MATCH (n) REMOVE n.x", "REMOVE"},
		{"drop index", "DROP INDEX ON :Class(name)", "DROP"},
		{"load csv", "LOAD  CSV FROM '/x.csv' AS row RETURN row", "LOAD CSV"},
		{"foreach", "MATCH p=()-->() FOREACH (n IN nodes(p) | SET n.x = 1)", "FOREACH"},
		{"alias named like a clause", "MATCH (c:Class) RETURN c.name AS set", ""},
		{"property named like a clause", "MATCH (c:Class) WHERE c.delete = false RETURN c.create", ""},
		{"label and map key named like clauses", "MATCH (n:Set {remove: 1})-[:CREATE]->(m) RETURN n, $merge", ""},
		{"read procedure", "CALL db.labels() YIELD label RETURN label", ""},
		{"read procedure mixed case", "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType", ""},
		{"memgraph schema procedure", "CALL schema.node_type_properties() YIELD nodeType, propertyName RETURN *", ""},
		{"read subquery", "MATCH (c:Class) CALL { WITH c MATCH (c)-[:HAS_ATTRIBUTE]->(a) RETURN count(a) AS n } RETURN c.name, n", ""},
		{"write hidden in procedure argument", `CALL periodic.iterate("MATCH (n) RETURN n", "DETACH DELETE n", {batch_size: 100}) YIELD success RETURN success`, "CALL periodic.iterate"},
		{"schema write procedure", "CALL schema.assert({}, {}, {}, true) YIELD action RETURN action", "CALL schema.assert"},
		{"procedure after match", "MATCH (n) call custom.wipe(n) YIELD ok RETURN ok", "CALL custom.wipe"},
		{"write inside subquery", "MATCH (c) CALL { WITH c SET c.x = 1 RETURN c AS d } RETURN d", "SET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckReadOnly(tt.cypher)
			if tt.clause == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrWriteQuery))

			var wq *WriteQueryError
			require.ErrorAs(t, err, &wq)
			assert.Equal(t, tt.clause, wq.Clause)
		})
	}
}
