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
// Similarity Scoring
// =============================================================================

// comparableAttributes pairs each of the six scorable columns with its
// accessor on the focal record. Absent (empty) attributes contribute no
// condition, so the attainable score shrinks with the focal record's
// completeness.
var comparableAttributes = []struct {
	column string
	value  func(datatypes.Experiment) string
}{
	{query.ColChangeType, func(e datatypes.Experiment) string { return e.ChangeType }},
	{query.ColChangedElement, func(e datatypes.Experiment) string { return e.ChangedElement }},
	{query.ColVertical, func(e datatypes.Experiment) string { return e.Vertical }},
	{query.ColGeography, func(e datatypes.Experiment) string { return e.Geography }},
	{query.ColBrand, func(e datatypes.Experiment) string { return e.Brand }},
	{query.ColTargetMetric, func(e datatypes.Experiment) string { return e.TargetMetric }},
}

// SimilarExperiments ranks other records by attribute overlap with the focal
// record: one point per matching non-empty attribute. Records scoring zero
// never appear. Ties break on monetary impact (nulls as zero) descending,
// then primary key ascending.
func (s *pgStore) SimilarExperiments(ctx context.Context, focal datatypes.Experiment, max int) ([]datatypes.Experiment, error) {
	sql, ok := BuildSimilaritySQL(focal, max)
	if !ok {
		// Focal record has no comparable attributes; nothing can match.
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, &query.ExecutionError{Query: sql, Err: err}
	}
	defer rows.Close()

	out := make([]datatypes.Experiment, 0, max)
	for rows.Next() {
		var e datatypes.Experiment
		var name, changeType, changedElement, vertical, geography, brand, targetMetric, winner, conclusionDate *string
		var impact *float64
		var score int
		if err := rows.Scan(&e.ID, &name, &changeType, &changedElement, &vertical,
			&geography, &brand, &targetMetric, &winner, &impact, &conclusionDate, &score); err != nil {
			return nil, &query.ExecutionError{Query: sql, Err: err}
		}
		e.Name = deref(name)
		e.ChangeType = deref(changeType)
		e.ChangedElement = deref(changedElement)
		e.Vertical = deref(vertical)
		e.Geography = deref(geography)
		e.Brand = deref(brand)
		e.TargetMetric = deref(targetMetric)
		e.Winner = deref(winner)
		e.ImpactMonthly = impact
		e.ConclusionDate = deref(conclusionDate)
		e.Similarity = score
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &query.ExecutionError{Query: sql, Err: err}
	}
	return out, nil
}

// similaritySelectColumns is the projection shared by the focal lookup and
// the neighbor ranking.
var similaritySelectColumns = strings.Join([]string{
	query.ColID, query.ColName, query.ColChangeType, query.ColChangedElement,
	query.ColVertical, query.ColGeography, query.ColBrand, query.ColTargetMetric,
	query.ColWinner, query.ColImpactMonthly,
	fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", query.ColConclusionDate),
}, ", ")

func buildExperimentSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		similaritySelectColumns, query.ExperimentTable, query.ColID)
}

// BuildSimilaritySQL renders the neighbor-ranking statement. Returns ok=false
// when the focal record has no non-empty comparable attribute.
//
// Pure function, asserted directly in tests.
func BuildSimilaritySQL(focal datatypes.Experiment, max int) (string, bool) {
	var conditions []string
	for _, attr := range comparableAttributes {
		v := strings.TrimSpace(attr.value(focal))
		if v == "" {
			continue
		}
		conditions = append(conditions,
			fmt.Sprintf("CASE WHEN %s = '%s' THEN 1 ELSE 0 END", attr.column, escapeLiteral(v)))
	}
	if len(conditions) == 0 {
		return "", false
	}
	if max <= 0 {
		max = 5
	}

	score := "(" + strings.Join(conditions, " + ") + ")"
	inner := fmt.Sprintf("SELECT %s, %s AS similarity_score FROM %s WHERE %s <> %d",
		similaritySelectColumns, score, query.ExperimentTable, query.ColID, focal.ID)
	outer := fmt.Sprintf(
		"SELECT * FROM (%s) candidates WHERE similarity_score > 0 ORDER BY similarity_score DESC, COALESCE(%s, 0) DESC, %s ASC LIMIT %d",
		inner, query.ColImpactMonthly, query.ColID, max)
	return outer, true
}
