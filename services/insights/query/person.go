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
// Person-Filter Heuristic
// =============================================================================

// PersonMatch is the tagged result of person-name extraction. The zero value
// means no name was found. Representing the miss explicitly (instead of an
// empty string) keeps the blocklist-exclusion path a testable branch.
type PersonMatch struct {
	Found bool
	Name  string
}

// Two phrasings name a person: "launched by John" / "from John", and the
// interrogative "what did John run".
var personRes = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:by|from)\s+([A-Z][a-zA-Z]+)\b`),
	regexp.MustCompile(`\bdid\s+([A-Z][a-zA-Z]+)\s+(?:run|launch|start|test)\b`),
}

// personBlocklist holds capitalized words that follow "by"/"from" in
// questions without naming a person: temporal words, categorical values,
// geography codes, and generic test terminology.
var personBlocklist = map[string]struct{}{
	// Temporal
	"january": {}, "february": {}, "march": {}, "april": {}, "may": {},
	"june": {}, "july": {}, "august": {}, "september": {}, "october": {},
	"november": {}, "december": {}, "monday": {}, "tuesday": {},
	"wednesday": {}, "thursday": {}, "friday": {}, "saturday": {},
	"sunday": {}, "monthly": {}, "weekly": {}, "daily": {}, "quarterly": {},
	"yearly": {}, "today": {}, "yesterday": {},
	// Geography codes and markets
	"us": {}, "usa": {}, "uk": {}, "eu": {}, "de": {}, "fr": {}, "es": {},
	"it": {}, "nl": {}, "apac": {}, "emea": {}, "latam": {},
	// Known categorical values
	"cta": {}, "layout": {}, "copy": {}, "pricing": {}, "button": {},
	"headline": {}, "form": {}, "checkout": {}, "solar": {}, "insurance": {},
	"banking": {}, "telco": {},
	// Test terminology
	"experiment": {}, "experiments": {}, "test": {}, "tests": {},
	"variant": {}, "control": {}, "winner": {}, "extrapolation": {}, "we": {},
	"significance": {}, "baseline": {}, "conversion": {}, "revenue": {},
}

// ExtractPerson searches the question for a "by <Name>" or "from <Name>"
// pattern and screens the captured word against the blocklist. A blocked
// capture ("launched by March from John") does not end the search: every
// match of every pattern is screened before reporting a miss.
func ExtractPerson(question string) PersonMatch {
	for _, re := range personRes {
		for _, m := range re.FindAllStringSubmatch(question, -1) {
			name := m[1]
			if _, blocked := personBlocklist[strings.ToLower(name)]; blocked {
				continue
			}
			return PersonMatch{Found: true, Name: name}
		}
	}
	return PersonMatch{}
}

var tailClauseRe = regexp.MustCompile(`(?i)\b(group\s+by|having|order\s+by|limit)\b`)
var whereRe = regexp.MustCompile(`(?i)\bwhere\b`)

// InjectPersonFilter augments a tabular query with a person filter when the
// question names a person and the query does not already filter on one.
//
// # Description
//
// The injected clause matches the responsible-person attribute OR the
// human-readable experiment name (names frequently appear in either), and
// additionally requires a non-null conclusion date: experiments without a
// concluded date are not attributable to a completed outcome.
//
// A query that already references the responsible-person column is returned
// unchanged; the heuristic must never duplicate or contradict an existing
// filter.
//
// # Inputs
//
//   - sanitized: A sanitized tabular query.
//   - match: Result of ExtractPerson. No-op when !match.Found.
//
// # Outputs
//
//   - string: The augmented (or untouched) query.
func InjectPersonFilter(sanitized string, match PersonMatch) string {
	if !match.Found {
		return sanitized
	}
	if strings.Contains(sanitized, ColResponsible) {
		return sanitized
	}

	name := escapeLiteral(match.Name)
	clause := fmt.Sprintf("(%s ILIKE '%%%s%%' OR %s ILIKE '%%%s%%') AND %s IS NOT NULL",
		ColResponsible, name, ColName, name, ColConclusionDate)

	// Insert before the first of GROUP BY / HAVING / ORDER BY / LIMIT so the
	// filter lands in the WHERE zone even on aggregated queries. Matches
	// inside string literals are skipped.
	insertAt := len(sanitized)
	for _, loc := range tailClauseRe.FindAllStringIndex(sanitized, -1) {
		if strings.Count(sanitized[:loc[0]], "'")%2 == 0 {
			insertAt = loc[0]
			break
		}
	}
	head := strings.TrimRight(sanitized[:insertAt], " ")
	tail := sanitized[insertAt:]

	connector := " WHERE "
	if hasKeywordOutsideLiterals(head, whereRe) {
		connector = " AND "
	}
	out := head + connector + clause
	if tail != "" {
		out += " " + tail
	}
	return out
}

// hasKeywordOutsideLiterals reports whether re matches q outside single-quoted
// string literals.
func hasKeywordOutsideLiterals(q string, re *regexp.Regexp) bool {
	for _, loc := range re.FindAllStringIndex(q, -1) {
		if strings.Count(q[:loc[0]], "'")%2 == 0 {
			return true
		}
	}
	return false
}

// escapeLiteral doubles single quotes so heuristic-injected literals cannot
// break out of their string context. Identifiers cannot be parameterized in
// Postgres, so interpolated literals are the accepted trust boundary here.
func escapeLiteral(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
