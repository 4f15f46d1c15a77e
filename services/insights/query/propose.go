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
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// Proposer Boundary
// =============================================================================
//
// The proposer is an external language-model collaborator: it receives a
// structured prompt and returns free text that should contain one JSON
// object with a "query" field. Everything it returns is untrusted; its only
// contract with this core is "there is a JSON object in there somewhere".

// Proposal is the parsed proposer output.
type Proposal struct {
	Query string `json:"query"`
	Notes string `json:"notes,omitempty"`
}

// BuildProposerPrompt renders the prompt for one question and dialect.
//
// The prompt carries the schema description and the rules the sanitizer
// cannot repair after the fact (single statement, no prose). Rules the
// pipeline does repair (limits, identifier casing) are stated anyway; a
// well-formed proposal needs less rewriting.
func BuildProposerPrompt(question string, dialect Dialect) string {
	var b strings.Builder
	b.WriteString("You translate analytics questions about A/B experiments into a single read-only query.\n\n")
	b.WriteString(SchemaDescription())
	b.WriteString("\n\nRules:\n")
	switch dialect {
	case DialectCypher:
		b.WriteString("- Produce one read-only Cypher MATCH statement.\n")
		b.WriteString("- Never use CREATE, MERGE, SET, DELETE, REMOVE, or CALL.\n")
	default:
		b.WriteString("- Produce one PostgreSQL SELECT statement.\n")
		b.WriteString("- Keep column identifiers double-quoted with exact casing.\n")
		b.WriteString("- Never write INSERT, UPDATE, DELETE, DROP, ALTER, CREATE, or TRUNCATE.\n")
		b.WriteString("- Include a LIMIT clause.\n")
	}
	b.WriteString("- Respond with a JSON object: {\"query\": \"...\", \"notes\": \"...\"}. No other keys.\n")
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// ParseProposal extracts the first balanced JSON object from the proposer's
// response text and decodes it.
//
// # Description
//
// Proposers wrap their JSON in prose and markdown fences despite
// instructions. The extractor scans for the first '{', tracks brace depth
// while respecting JSON string escaping, and decodes the balanced object it
// finds. A response with no balanced object, or whose object lacks a
// non-empty "query" field, yields *ProposalParseError.
//
// # Outputs
//
//   - *Proposal: Decoded query and optional notes.
//   - error: *ProposalParseError on any malformed response. Never retried.
func ParseProposal(response string) (*Proposal, error) {
	obj, ok := firstJSONObject(response)
	if !ok {
		return nil, &ProposalParseError{Raw: response}
	}
	var p Proposal
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return nil, &ProposalParseError{Raw: fmt.Sprintf("invalid JSON: %v in %.200s", err, obj)}
	}
	if strings.TrimSpace(p.Query) == "" {
		return nil, &ProposalParseError{Raw: response}
	}
	return &p, nil
}

// firstJSONObject returns the first balanced {...} span in s.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
