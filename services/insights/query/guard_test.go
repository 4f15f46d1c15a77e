// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardAcceptsReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		dialect Dialect
	}{
		{"plain select", `SELECT id FROM "Experiments" LIMIT 10`, DialectSQL},
		{"lowercase select", `select id from "Experiments" limit 10`, DialectSQL},
		{"leading whitespace", "  \n SELECT 1", DialectSQL},
		{"match", `MATCH (e:Experiment) RETURN e LIMIT 10`, DialectCypher},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, Guard(tt.query, tt.dialect))
		})
	}
}

func TestGuardRejects(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		dialect Dialect
	}{
		{"empty", "", DialectSQL},
		{"whitespace only", "   ", DialectSQL},
		{"update statement", `UPDATE "Experiments" SET "Winner" = 'B'`, DialectSQL},
		{"delete statement", `DELETE FROM "Experiments"`, DialectSQL},
		{"prefix is not whole token", `SELECTION FROM x`, DialectSQL},
		{"embedded drop", `SELECT id FROM "Experiments"; DROP TABLE "Experiments"`, DialectSQL},
		{"embedded insert", `SELECT 1 WHERE EXISTS (INSERT INTO t VALUES (1))`, DialectSQL},
		{"cypher merge", `MATCH (e) MERGE (f:Experiment) RETURN e`, DialectCypher},
		{"cypher set", `MATCH (e) SET e.winner = 'B' RETURN e`, DialectCypher},
		{"cypher call", `MATCH (e) CALL db.labels() YIELD label RETURN label`, DialectCypher},
		{"cypher starts with create", `CREATE (e:Experiment) RETURN e`, DialectCypher},
		{"unknown dialect", `SELECT 1`, Dialect("graphql")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Guard(tt.query, tt.dialect)
			require.Error(t, err)
			assert.True(t, IsValidationError(err), "expected *ValidationError, got %T", err)
		})
	}
}

// The guard fails closed: a forbidden keyword inside a string literal still
// rejects.
func TestGuardFailsClosedOnLiterals(t *testing.T) {
	err := Guard(`SELECT id FROM "Experiments" WHERE "Learning" = 'we should update the copy'`, DialectSQL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPDATE")
}

// Keywords only reject as standalone tokens followed by whitespace; column
// text containing a verb substring passes.
func TestGuardKeywordBoundaries(t *testing.T) {
	assert.NoError(t, Guard(`SELECT "Created_At" FROM "Experiments" LIMIT 5`, DialectSQL))
	assert.NoError(t, Guard(`SELECT updated_count FROM "Experiments" LIMIT 5`, DialectSQL))
}
