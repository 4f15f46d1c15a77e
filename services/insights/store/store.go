// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store executes sanitized queries against the Postgres experiment
// table and computes the pattern and similarity aggregations.
//
// The pooled connection is the only state shared across requests; it is safe
// for concurrent read-only use. SQL text for the aggregations is produced by
// pure builder functions so the generated statements are unit-testable
// without a database.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AleutianAI/AleutianInsights/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsights/services/insights/query"
)

// =============================================================================
// Interface
// =============================================================================

// Store is the read-only surface the engine consumes.
//
// Implementations must be safe for concurrent use; the engine fans the
// tabular, pattern, and similarity branches out in parallel.
type Store interface {
	// RunQuery executes a sanitized tabular query and returns rows as maps
	// with normalized scalar types.
	RunQuery(ctx context.Context, sql string) ([]map[string]any, error)

	// AggregatePatterns computes co-occurrence edges between change type and
	// changed element under the given filter.
	AggregatePatterns(ctx context.Context, f PatternFilter) ([]datatypes.PatternEdge, error)

	// SimilarExperiments ranks neighbors of the focal record by attribute
	// overlap. Records sharing no attribute are excluded.
	SimilarExperiments(ctx context.Context, focal datatypes.Experiment, max int) ([]datatypes.Experiment, error)

	// GetExperiment fetches one record by primary key.
	GetExperiment(ctx context.Context, id int64) (*datatypes.Experiment, error)
}

// =============================================================================
// Postgres implementation
// =============================================================================

// pgStore implements Store over a pgx connection pool.
type pgStore struct {
	pool *pgxpool.Pool
}

// New connects a pgx pool and wraps it in a Store.
//
// Callers own the pool lifetime via Close.
func New(ctx context.Context, dsn string) (Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping experiment store: %w", err)
	}
	slog.Info("Experiment store connected")
	return &pgStore{pool: pool}, pool.Close, nil
}

// NewFromPool wraps an existing pool; used by tests and embedding callers.
func NewFromPool(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// RunQuery executes one sanitized statement and materializes all rows.
//
// Scalar values are normalized (see normalizeValue) so the JSON response and
// the summarizer prompt see plain strings, int64s, and float64s instead of
// driver-specific types.
func (s *pgStore) RunQuery(ctx context.Context, sql string) ([]map[string]any, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, &query.ExecutionError{Query: sql, Err: err}
	}
	defer rows.Close()

	out, err := collectRows(rows)
	if err != nil {
		return nil, &query.ExecutionError{Query: sql, Err: err}
	}
	return out, nil
}

func collectRows(rows pgx.Rows) ([]map[string]any, error) {
	fields := rows.FieldDescriptions()
	out := make([]map[string]any, 0, 16)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		record := make(map[string]any, len(fields))
		for i, fd := range fields {
			record[string(fd.Name)] = normalizeValue(values[i])
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// GetExperiment fetches the focal record with its six comparable attributes.
func (s *pgStore) GetExperiment(ctx context.Context, id int64) (*datatypes.Experiment, error) {
	sql := buildExperimentSQL()
	row := s.pool.QueryRow(ctx, sql, id)

	var e datatypes.Experiment
	var name, changeType, changedElement, vertical, geography, brand, targetMetric, winner, conclusionDate *string
	var impact *float64
	err := row.Scan(&e.ID, &name, &changeType, &changedElement, &vertical,
		&geography, &brand, &targetMetric, &winner, &impact, &conclusionDate)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("experiment %d not found", id)
		}
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
	return &e, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
