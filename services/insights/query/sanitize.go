// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query turns untrusted candidate queries from the LLM proposer into
// sanitized, read-only, bounded statements, and routes questions between the
// tabular and pattern answering strategies.
//
// # Architecture
//
//	question ──► Classify ──► Decision
//	candidate ─► Pipeline.Run (ordered rewrite rules) ──► Guard ──► store
//
// The pipeline is a fixed, ordered table of pure string→string rules. Rule
// order is load-bearing: identifier canonicalization must run before the
// interval, filter, and bound rewrites because those rules match on canonical
// identifier text. Ordering is enforced by table position, not convention.
//
// Every rule is total: malformed input degrades gracefully and the guard
// rejects anything that is not provably safe afterwards.
package query

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// Dialects
// =============================================================================

// Dialect identifies the query language a candidate claims to be written in.
type Dialect string

const (
	// DialectSQL is the tabular dialect (PostgreSQL SELECT).
	DialectSQL Dialect = "sql"
	// DialectCypher is the relationship dialect (read-only MATCH).
	DialectCypher Dialect = "cypher"
)

// =============================================================================
// Rule Table
// =============================================================================

// rewriteRule is one named, pure rewrite step. Rules compose left to right.
type rewriteRule struct {
	name  string
	apply func(string) string
}

// Pipeline applies the ordered rule table for one dialect.
//
// A Pipeline is immutable after construction and safe for concurrent use.
// Running a pipeline twice yields the same output as running it once; the
// idempotence is covered by tests because downstream callers re-sanitize
// defensively.
type Pipeline struct {
	dialect Dialect
	rules   []rewriteRule
}

// NewPipeline builds the rule table for a dialect.
//
// # Inputs
//
//   - dialect: Target dialect of the candidate query.
//   - limits: Thresholds; only RowLimit is used here.
//   - patternFallback: True when sanitizing a tabular query that answers a
//     pattern-mode question. Enables required-column injection so the
//     summarizer always receives the relationship attributes.
//
// # Outputs
//
//   - *Pipeline: Ready to Run. Never nil.
func NewPipeline(dialect Dialect, limits Limits, patternFallback bool) *Pipeline {
	if dialect == DialectCypher {
		return &Pipeline{dialect: dialect, rules: []rewriteRule{
			{"strip_artifacts", stripArtifacts},
			{"clamp_limit", clampLimit(limits.RowLimit)},
		}}
	}

	rules := []rewriteRule{
		{"strip_artifacts", stripArtifacts},
		// Canonicalization must precede every rule below: they match on
		// canonical identifier text.
		{"canonicalize_identifiers", canonicalizeIdentifiers},
		{"rewrite_intervals", rewriteIntervals},
		{"rewrite_date_arithmetic", rewriteDateArithmetic},
		{"cast_round_arguments", castRoundArguments},
		{"loosen_text_filters", loosenTextFilters},
	}
	if patternFallback {
		rules = append(rules, rewriteRule{"ensure_required_columns", ensureRequiredColumns})
	}
	rules = append(rules, rewriteRule{"clamp_limit", clampLimit(limits.RowLimit)})
	return &Pipeline{dialect: dialect, rules: rules}
}

// Run applies every rule in table order and returns the sanitized query.
func (p *Pipeline) Run(candidate string) string {
	out := candidate
	for _, r := range p.rules {
		out = r.apply(out)
	}
	return out
}

// RuleNames returns the rule names in application order.
func (p *Pipeline) RuleNames() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.name
	}
	return names
}

// =============================================================================
// Rule 1: Artifact Stripping
// =============================================================================

var fenceRe = regexp.MustCompile("(?is)^```(?:sql|cypher)?\\s*(.*?)\\s*```$")

// stripArtifacts removes markdown fencing, surrounding whitespace, and
// trailing statement terminators.
func stripArtifacts(q string) string {
	q = strings.TrimSpace(q)
	if m := fenceRe.FindStringSubmatch(q); m != nil {
		q = m[1]
	}
	q = strings.TrimSpace(q)
	for strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	}
	return q
}

// =============================================================================
// Rule 2: Identifier Canonicalization
// =============================================================================

var bareIdentRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
var quotedIdentRe = regexp.MustCompile(`"[^"]*"`)

// canonicalizeIdentifiers rewrites every known table/column alias to its
// exact-case quoted form. Unknown identifiers pass through unchanged, and
// single-quoted string literals are never touched.
func canonicalizeIdentifiers(q string) string {
	return mapOutsideLiterals(q, func(segment string) string {
		// Quoted identifiers first: "change type" or "experiments".
		segment = quotedIdentRe.ReplaceAllStringFunc(segment, func(tok string) string {
			inner := strings.ToLower(strings.Trim(tok, `"`))
			if canonical, ok := identifierAliases[inner]; ok {
				return canonical
			}
			return tok
		})
		// Bare identifiers: change_type, experiments. The regex cannot match
		// inside the double-quoted canonical forms produced above because
		// those were replaced wholesale; a second pass over them is a no-op
		// by the self-mapping of canonical names in the alias table.
		return replaceBareIdentifiers(segment)
	})
}

func replaceBareIdentifiers(segment string) string {
	var b strings.Builder
	last := 0
	for _, loc := range bareIdentRe.FindAllStringIndex(segment, -1) {
		start, end := loc[0], loc[1]
		// Skip identifiers that are already double-quoted.
		if start > 0 && segment[start-1] == '"' {
			continue
		}
		word := segment[start:end]
		canonical, ok := identifierAliases[strings.ToLower(word)]
		if !ok {
			continue
		}
		b.WriteString(segment[last:start])
		b.WriteString(canonical)
		last = end
	}
	if last == 0 {
		return segment
	}
	b.WriteString(segment[last:])
	return b.String()
}

// mapOutsideLiterals applies f to the portions of q that lie outside
// single-quoted string literals. Literal content is preserved byte for byte.
func mapOutsideLiterals(q string, f func(string) string) string {
	parts := strings.Split(q, "'")
	for i := 0; i < len(parts); i += 2 {
		parts[i] = f(parts[i])
	}
	return strings.Join(parts, "'")
}

// =============================================================================
// Rule 3: Interval Literals
// =============================================================================

var intervalRe = regexp.MustCompile(`(?i)\binterval\s+(\d+)\s+(day|week|month|year)s?\b`)

// rewriteIntervals converts bare "interval N unit" expressions into the
// Postgres quoted-literal form. The quoted form does not match the pattern,
// so re-running the rule is a no-op.
func rewriteIntervals(q string) string {
	return intervalRe.ReplaceAllStringFunc(q, func(m string) string {
		sub := intervalRe.FindStringSubmatch(m)
		return fmt.Sprintf("INTERVAL '%s %ss'", sub[1], strings.ToLower(sub[2]))
	})
}

// =============================================================================
// Rule 4: Date Arithmetic
// =============================================================================

var dateSubRe = regexp.MustCompile(`(?i)\bDATE_SUB\(\s*([^,()]+(?:\([^()]*\))?)\s*,\s*(INTERVAL\s+'[^']+')\s*\)`)
var dateAddRe = regexp.MustCompile(`(?i)\bDATE_ADD\(\s*([^,()]+(?:\([^()]*\))?)\s*,\s*(INTERVAL\s+'[^']+')\s*\)`)

// rewriteDateArithmetic converts MySQL-style DATE_SUB/DATE_ADD calls into
// Postgres subtraction/addition with an interval. Runs after the interval
// rule so the second argument is already in quoted-literal form.
func rewriteDateArithmetic(q string) string {
	q = dateSubRe.ReplaceAllString(q, "($1 - $2)")
	q = dateAddRe.ReplaceAllString(q, "($1 + $2)")
	return q
}

// =============================================================================
// Rule 5: Numeric Rounding
// =============================================================================

var roundRe = regexp.MustCompile(`(?i)\bROUND\(\s*([^,()]+(?:\([^()]*\))?[^,()]*)\s*,\s*(\d+)\s*\)`)

// castRoundArguments casts the first argument of two-argument ROUND calls to
// numeric. Postgres rejects ROUND(double precision, int); proposers produce
// it constantly on AVG results.
func castRoundArguments(q string) string {
	return roundRe.ReplaceAllStringFunc(q, func(m string) string {
		sub := roundRe.FindStringSubmatch(m)
		arg := strings.TrimSpace(sub[1])
		if strings.HasPrefix(strings.ToUpper(arg), "CAST(") {
			return m
		}
		return fmt.Sprintf("ROUND(CAST(%s AS numeric), %s)", arg, sub[2])
	})
}

// =============================================================================
// Rule 6: Loose Text Filters
// =============================================================================

// loosenTextFilters rewrites exact-equality filters on free-text
// classification attributes into case-insensitive, wildcard-bounded matches,
// converting underscores in the literal to spaces.
//
// This is a deliberate semantic correction: proposers write exact matches
// against values whose real spelling varies, which silently returns zero
// rows. A lossy-but-present result beats an exact-but-empty one.
func loosenTextFilters(q string) string {
	for _, col := range looseMatchColumns {
		re := regexp.MustCompile(regexp.QuoteMeta(col) + `\s*=\s*'([^']*)'`)
		q = re.ReplaceAllStringFunc(q, func(m string) string {
			sub := re.FindStringSubmatch(m)
			value := strings.ReplaceAll(sub[1], "_", " ")
			return fmt.Sprintf("%s ILIKE '%%%s%%'", col, value)
		})
	}
	return q
}

// =============================================================================
// Rule 7: Required Columns (pattern fallbacks only)
// =============================================================================

var aggregateFuncRe = regexp.MustCompile(`(?i)\b(count|sum|avg|min|max)\s*\(`)
var groupByRe = regexp.MustCompile(`(?i)\bgroup\s+by\b`)
var selectPrefixRe = regexp.MustCompile(`(?i)^select\s+(distinct\s+)?`)

// ensureRequiredColumns adds the relationship attributes and human-readable
// context columns to the select list of a simple, non-aggregated SELECT.
// Aggregated (grouped) queries are never touched: injecting a bare column
// into them produces invalid SQL.
func ensureRequiredColumns(q string) string {
	if groupByRe.MatchString(q) || aggregateFuncRe.MatchString(q) {
		return q
	}
	prefix := selectPrefixRe.FindString(q)
	if prefix == "" {
		return q
	}
	fromIdx := indexOfKeyword(q, "from")
	if fromIdx < 0 {
		return q
	}
	selectList := strings.TrimSpace(q[len(prefix):fromIdx])
	if selectList == "*" {
		return q
	}

	var missing []string
	for _, col := range requiredPatternColumns {
		if !strings.Contains(selectList, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) == 0 {
		return q
	}
	sort.Strings(missing)
	return prefix + selectList + ", " + strings.Join(missing, ", ") + " " + q[fromIdx:]
}

// indexOfKeyword returns the byte offset of the first standalone,
// case-insensitive occurrence of kw outside string literals, or -1.
func indexOfKeyword(q, kw string) int {
	re := regexp.MustCompile(`(?i)\b` + kw + `\b`)
	inLiteral := false
	for _, loc := range re.FindAllStringIndex(q, -1) {
		inLiteral = strings.Count(q[:loc[0]], "'")%2 == 1
		if !inLiteral {
			return loc[0]
		}
	}
	return -1
}

// =============================================================================
// Rule 8: Row Bound
// =============================================================================

var limitRe = regexp.MustCompile(`(?i)\blimit\s+(\d+)\b`)

// clampLimit enforces the configured row ceiling: an existing top-level bound
// above the ceiling is clamped down, and a missing one is appended. Only a
// LIMIT at paren depth zero bounds the outer statement; one inside a subquery
// does not count, so "WHERE id IN (SELECT ... LIMIT 5)" still gets a ceiling
// appended.
func clampLimit(ceiling int) func(string) string {
	return func(q string) string {
		if q == "" {
			return q
		}
		if m := topLevelLimit(q); m != nil {
			n, err := strconv.Atoi(q[m[0]:m[1]])
			if err == nil && n > ceiling {
				return q[:m[0]] + strconv.Itoa(ceiling) + q[m[1]:]
			}
			return q
		}
		return q + " LIMIT " + strconv.Itoa(ceiling)
	}
}

// topLevelLimit returns the index pair of the digits of the last LIMIT that
// sits at paren depth zero outside string literals, or nil.
func topLevelLimit(q string) []int {
	var found []int
	for _, m := range limitRe.FindAllStringSubmatchIndex(q, -1) {
		prefix := q[:m[0]]
		if strings.Count(prefix, "'")%2 == 1 {
			continue
		}
		depth := 0
		inLiteral := false
		for _, r := range prefix {
			switch {
			case r == '\'':
				inLiteral = !inLiteral
			case inLiteral:
			case r == '(':
				depth++
			case r == ')':
				depth--
			}
		}
		if depth == 0 {
			found = []int{m[2], m[3]}
		}
	}
	return found
}
