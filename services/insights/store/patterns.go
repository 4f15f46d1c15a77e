// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianInsights/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsights/services/insights/query"
)

// =============================================================================
// Pattern Aggregation
// =============================================================================

// PatternFilter narrows the records entering the co-occurrence aggregation.
type PatternFilter struct {
	// CategoryLike, when set, wildcard-matches the category attribute.
	CategoryLike string

	// WindowMonths bounds the look-back window: records concluded or launched
	// within N months qualify, as do records with both dates null (unknown
	// date, included by default).
	WindowMonths int

	// FailedOnly keeps records whose winner field is null or empty. This is
	// the whole definition of "failed" here: significance and metric
	// thresholds are deliberately not combined with it, to avoid compounding
	// ambiguous statistical definitions.
	FailedOnly bool

	// WinnersOnly keeps records with a non-empty winner field.
	WinnersOnly bool

	// Limit caps the returned edge count.
	Limit int
}

// AggregatePatterns groups qualifying records by the fixed attribute pair
// (change type, changed element), counts occurrences, and returns edges in
// descending count order. The degenerate (other, other) pair is excluded.
func (s *pgStore) AggregatePatterns(ctx context.Context, f PatternFilter) ([]datatypes.PatternEdge, error) {
	sql := BuildPatternSQL(f)
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, &query.ExecutionError{Query: sql, Err: err}
	}
	defer rows.Close()

	edges := make([]datatypes.PatternEdge, 0, f.Limit)
	for rows.Next() {
		var e datatypes.PatternEdge
		if err := rows.Scan(&e.ChangeType, &e.ChangedElement, &e.Count); err != nil {
			return nil, &query.ExecutionError{Query: sql, Err: err}
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &query.ExecutionError{Query: sql, Err: err}
	}
	return edges, nil
}

// BuildPatternSQL renders the aggregation statement for a filter.
//
// Pure function; the generated SQL is asserted directly in tests. Filter
// literals are interpolated with quote escaping because they originate from
// heuristics, not from callers.
func BuildPatternSQL(f PatternFilter) string {
	var where []string

	where = append(where,
		fmt.Sprintf("%s IS NOT NULL AND %s <> ''", query.ColChangeType, query.ColChangeType),
		fmt.Sprintf("%s IS NOT NULL AND %s <> ''", query.ColChangedElement, query.ColChangedElement),
	)

	if f.WindowMonths > 0 {
		where = append(where, fmt.Sprintf(
			"((%[1]s >= CURRENT_DATE - INTERVAL '%[3]d months' OR %[2]s >= CURRENT_DATE - INTERVAL '%[3]d months') OR (%[1]s IS NULL AND %[2]s IS NULL))",
			query.ColConclusionDate, query.ColLaunchDate, f.WindowMonths))
	}
	if f.CategoryLike != "" {
		like := strings.ReplaceAll(escapeLiteral(f.CategoryLike), "_", " ")
		where = append(where, fmt.Sprintf("%s ILIKE '%%%s%%'", query.ColCategory, like))
	}
	if f.FailedOnly {
		where = append(where, fmt.Sprintf("(%s IS NULL OR %s = '')", query.ColWinner, query.ColWinner))
	}
	if f.WinnersOnly {
		where = append(where, fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", query.ColWinner, query.ColWinner))
	}

	// The (other, other) pair carries no signal; drop it at the source.
	where = append(where, fmt.Sprintf("NOT (LOWER(%s) = 'other' AND LOWER(%s) = 'other')",
		query.ColChangeType, query.ColChangedElement))

	limit := f.Limit
	if limit <= 0 {
		limit = 25
	}

	return fmt.Sprintf(
		"SELECT %[1]s, %[2]s, COUNT(*) AS pair_count FROM %[3]s WHERE %[4]s GROUP BY %[1]s, %[2]s ORDER BY pair_count DESC, %[1]s ASC, %[2]s ASC LIMIT %[5]d",
		query.ColChangeType, query.ColChangedElement, query.ExperimentTable,
		strings.Join(where, " AND "), limit)
}

func escapeLiteral(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
