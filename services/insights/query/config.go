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

// =============================================================================
// Limits
// =============================================================================

// Limits holds the tunable thresholds used by the sanitization pipeline,
// the pattern aggregator, and the fallback controller.
//
// # Description
//
// Every component receives Limits explicitly instead of reading ambient
// process state. Unit tests can therefore exercise boundary behavior with
// arbitrary thresholds.
//
// # Fields
//
//   - RowLimit: Hard ceiling on rows a sanitized query may return.
//     Existing LIMIT clauses above this value are clamped down; queries
//     without a LIMIT get one appended.
//   - WindowMonths: Default look-back window for pattern aggregation.
//   - WideWindowMonths: Expanded window used for the single retry when the
//     default window returns no edges.
//   - MinPatternEdges: Minimum edge count below which a pattern result is
//     considered sparse and eligible for fallback.
//   - MaxSimilar: Maximum number of neighbors the similarity scorer returns.
//   - MaxPatternEdges: Cap on edges returned by the pattern aggregator.
type Limits struct {
	RowLimit         int
	WindowMonths     int
	WideWindowMonths int
	MinPatternEdges  int
	MaxSimilar       int
	MaxPatternEdges  int
}

// DefaultLimits returns the production thresholds.
func DefaultLimits() Limits {
	return Limits{
		RowLimit:         200,
		WindowMonths:     12,
		WideWindowMonths: 120,
		MinPatternEdges:  2,
		MaxSimilar:       5,
		MaxPatternEdges:  25,
	}
}
