// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the wire types shared between the insights
// handlers, engine, and store. All of these are request-scoped: nothing in
// this package survives past the response being sent.
package datatypes

// AskRequest is the inbound contract for POST /v1/ask.
type AskRequest struct {
	// Question is the free-text question. Required.
	Question string `json:"question" binding:"required"`

	// Mode optionally forces the answering strategy.
	// Valid values: "auto" (default), "tabular", "pattern".
	Mode string `json:"mode,omitempty" binding:"omitempty,oneof=auto tabular pattern"`

	// SimilarTo optionally names a focal experiment id; when set, the
	// similarity branch runs concurrently with the main query.
	SimilarTo int64 `json:"similarTo,omitempty"`

	// Summarize requests a natural-language answer from the summarizer
	// collaborator in addition to the raw results.
	Summarize bool `json:"summarize,omitempty"`
}

// AskResponse is the outbound contract for POST /v1/ask.
type AskResponse struct {
	RequestID      string `json:"requestId"`
	ModeRequested  string `json:"modeRequested"`
	ModeClassified string `json:"modeClassified"`
	ModeUsed       string `json:"modeUsed"`
	FallbackUsed   bool   `json:"fallbackUsed"`

	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"rowCount"`
	Query    string           `json:"query"`
	Notes    string           `json:"notes,omitempty"`

	PatternRows     []PatternEdge `json:"patternRows,omitempty"`
	PatternRowCount int           `json:"patternRowCount,omitempty"`

	SimilarNeighbors []Experiment `json:"similarNeighbors,omitempty"`

	Answer string `json:"answer,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PatternEdge is one aggregated co-occurrence between a change type and a
// changed element. Created fresh per request; never persisted.
type PatternEdge struct {
	ChangeType     string `json:"changeType"`
	ChangedElement string `json:"changedElement"`
	Count          int64  `json:"count"`
}

// Experiment is one record from the experiment table, used for similarity
// neighbors and focal-record lookups.
type Experiment struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	ChangeType     string   `json:"changeType,omitempty"`
	ChangedElement string   `json:"changedElement,omitempty"`
	Vertical       string   `json:"vertical,omitempty"`
	Geography      string   `json:"geography,omitempty"`
	Brand          string   `json:"brand,omitempty"`
	TargetMetric   string   `json:"targetMetric,omitempty"`
	Winner         string   `json:"winner,omitempty"`
	ImpactMonthly  *float64 `json:"impactMonthly,omitempty"`
	ConclusionDate string   `json:"conclusionDate,omitempty"`

	// Similarity is the weighted attribute-overlap score (1..6) relative to
	// the focal record. Zero outside similarity results.
	Similarity int `json:"similarity,omitempty"`
}

// FallbackEvent records a mode substitution for response transparency.
// Request-scoped only.
type FallbackEvent struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Reason        string `json:"reason"`
	WindowWidened bool   `json:"windowWidened,omitempty"`
}
