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
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// Safety Guard
// =============================================================================
//
// The guard is the last line of defense before a sanitized query reaches the
// store. It fails closed: a forbidden keyword inside a quoted literal still
// rejects the query. That trades some false positives for the certainty that
// nothing mutating ever executes, which is the right trade for a read-only
// analytical endpoint.

// Read-only entry keyword per dialect.
var readOnlyVerb = map[Dialect]string{
	DialectSQL:    "select",
	DialectCypher: "match",
}

// forbiddenSQLVerbs are mutation and administrative keywords that must not
// appear anywhere in a tabular statement as a standalone token followed by
// whitespace.
var forbiddenSQLVerbs = []string{
	"insert", "update", "delete", "drop", "alter",
	"create", "truncate", "grant", "revoke", "copy", "vacuum",
}

// forbiddenCypherClauses extends the blocklist for the relationship dialect,
// whose write/administrative clauses differ from SQL's verbs.
var forbiddenCypherClauses = []string{
	"create", "merge", "set", "delete", "detach",
	"remove", "drop", "call", "load", "foreach",
}

var forbiddenRes = buildForbiddenRes()

func buildForbiddenRes() map[Dialect][]*regexp.Regexp {
	compile := func(verbs []string) []*regexp.Regexp {
		res := make([]*regexp.Regexp, len(verbs))
		for i, v := range verbs {
			res[i] = regexp.MustCompile(`(?i)\b` + v + `\s`)
		}
		return res
	}
	return map[Dialect][]*regexp.Regexp{
		DialectSQL:    compile(forbiddenSQLVerbs),
		DialectCypher: compile(append(append([]string{}, forbiddenSQLVerbs...), forbiddenCypherClauses...)),
	}
}

// Guard validates that a sanitized query is read-only.
//
// # Description
//
// The statement, case-insensitively trimmed, must begin with the read-only
// retrieval keyword for its dialect and must not contain any forbidden verb
// as a standalone keyword followed by whitespace. Any ambiguity rejects.
//
// # Inputs
//
//   - sanitized: Output of Pipeline.Run. Raw candidates must not be passed
//     here; the guard assumes fencing artifacts are already stripped.
//   - dialect: The dialect the candidate was sanitized for.
//
// # Outputs
//
//   - error: nil on pass; *ValidationError with a caller-visible reason on
//     rejection.
func Guard(sanitized string, dialect Dialect) error {
	trimmed := strings.TrimSpace(sanitized)
	if trimmed == "" {
		return &ValidationError{Reason: "empty query", Query: sanitized}
	}

	verb, ok := readOnlyVerb[dialect]
	if !ok {
		return &ValidationError{Reason: fmt.Sprintf("unknown dialect %q", dialect), Query: sanitized}
	}
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, verb) {
		return &ValidationError{
			Reason: fmt.Sprintf("statement must begin with %s", strings.ToUpper(verb)),
			Query:  sanitized,
		}
	}
	// The prefix must be the whole first token, not e.g. "selection".
	if len(lower) > len(verb) && isWordByte(lower[len(verb)]) {
		return &ValidationError{
			Reason: fmt.Sprintf("statement must begin with %s", strings.ToUpper(verb)),
			Query:  sanitized,
		}
	}

	for _, re := range forbiddenRes[dialect] {
		if loc := re.FindStringIndex(trimmed); loc != nil {
			word := strings.TrimSpace(trimmed[loc[0]:loc[1]])
			return &ValidationError{
				Reason: fmt.Sprintf("forbidden keyword %q", strings.ToUpper(word)),
				Query:  sanitized,
			}
		}
	}
	return nil
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
