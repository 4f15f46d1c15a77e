// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianInsights/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsights/services/insights/query"
	"github.com/AleutianAI/AleutianInsights/services/insights/store"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeStore records the filters it receives and serves canned results.
type fakeStore struct {
	rows    []map[string]any
	rowsErr error

	edgesByCall [][]datatypes.PatternEdge
	edgesErr    error
	filters     []store.PatternFilter
	aggCalls    int

	focal       *datatypes.Experiment
	focalErr    error
	neighbors   []datatypes.Experiment
	neighborErr error

	lastSQL string
}

func (f *fakeStore) RunQuery(_ context.Context, sql string) ([]map[string]any, error) {
	f.lastSQL = sql
	if f.rowsErr != nil {
		return nil, f.rowsErr
	}
	return f.rows, nil
}

func (f *fakeStore) AggregatePatterns(_ context.Context, filter store.PatternFilter) ([]datatypes.PatternEdge, error) {
	f.filters = append(f.filters, filter)
	call := f.aggCalls
	f.aggCalls++
	if f.edgesErr != nil {
		return nil, f.edgesErr
	}
	if call < len(f.edgesByCall) {
		return f.edgesByCall[call], nil
	}
	return nil, nil
}

func (f *fakeStore) SimilarExperiments(_ context.Context, _ datatypes.Experiment, _ int) ([]datatypes.Experiment, error) {
	if f.neighborErr != nil {
		return nil, f.neighborErr
	}
	return f.neighbors, nil
}

func (f *fakeStore) GetExperiment(_ context.Context, id int64) (*datatypes.Experiment, error) {
	if f.focalErr != nil {
		return nil, f.focalErr
	}
	if f.focal != nil {
		return f.focal, nil
	}
	return &datatypes.Experiment{ID: id}, nil
}

// fakeCollab serves one canned proposal per dialect, keyed on prompt text.
type fakeCollab struct {
	sqlResponse    string
	cypherResponse string
	proposeErr     error
	summary        string
	summaryErr     error
	summarized     bool
}

func (f *fakeCollab) Propose(_ context.Context, prompt string) (string, error) {
	if f.proposeErr != nil {
		return "", f.proposeErr
	}
	if strings.Contains(prompt, "Cypher") {
		return f.cypherResponse, nil
	}
	return f.sqlResponse, nil
}

func (f *fakeCollab) Summarize(_ context.Context, _ string) (string, error) {
	f.summarized = true
	if f.summaryErr != nil {
		return "", f.summaryErr
	}
	return f.summary, nil
}

func proposalJSON(q string) string {
	return fmt.Sprintf(`{"query": %q, "notes": "test"}`, q)
}

func defaultCollab() *fakeCollab {
	return &fakeCollab{
		sqlResponse:    proposalJSON(`SELECT "Experiment_Name" FROM "Experiments" LIMIT 10`),
		cypherResponse: proposalJSON(`MATCH (e:Experiment) RETURN e LIMIT 10`),
		summary:        "a summary",
	}
}

func edges(n int) []datatypes.PatternEdge {
	out := make([]datatypes.PatternEdge, n)
	for i := range out {
		out[i] = datatypes.PatternEdge{ChangeType: "CTA", ChangedElement: fmt.Sprintf("El%d", i), Count: int64(10 - i)}
	}
	return out
}

// =============================================================================
// Tabular primary
// =============================================================================

func TestAskTabularPrimary(t *testing.T) {
	st := &fakeStore{rows: []map[string]any{{"Experiment_Name": "Exp A"}}}
	eng := New(st, defaultCollab(), query.DefaultLimits())

	resp, err := eng.Ask(context.Background(), datatypes.AskRequest{Question: "List all experiments"})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}

	if resp.ModeUsed != "tabular" {
		t.Errorf("ModeUsed = %q, want tabular", resp.ModeUsed)
	}
	if resp.ModeClassified != "tabular" {
		t.Errorf("ModeClassified = %q, want tabular", resp.ModeClassified)
	}
	if resp.FallbackUsed {
		t.Error("FallbackUsed = true on tabular primary")
	}
	if resp.RowCount != 1 || len(resp.Rows) != 1 {
		t.Errorf("RowCount = %d, want 1", resp.RowCount)
	}
	if resp.Query != st.lastSQL {
		t.Errorf("response query %q != executed query %q", resp.Query, st.lastSQL)
	}
	if !strings.HasPrefix(resp.Query, "SELECT") {
		t.Errorf("executed query does not begin with SELECT: %q", resp.Query)
	}
}

func TestAskTabularPrimaryNeverModeSwitches(t *testing.T) {
	st := &fakeStore{rowsErr: &query.ExecutionError{Query: "q", Err: errors.New("bad column")}}
	eng := New(st, defaultCollab(), query.DefaultLimits())

	resp, err := eng.Ask(context.Background(), datatypes.AskRequest{Question: "How many experiments failed?"})
	if err == nil {
		t.Fatal("expected error from failing tabular query")
	}

	var ee *query.ExecutionError
	if !errors.As(err, &ee) {
		t.Errorf("error type = %T, want *query.ExecutionError", err)
	}
	if resp.ModeUsed != "tabular" {
		t.Errorf("ModeUsed = %q, want tabular", resp.ModeUsed)
	}
	if resp.FallbackUsed {
		t.Error("tabular primary must not fall back")
	}
	if st.aggCalls != 0 {
		t.Errorf("aggregator called %d times from tabular primary", st.aggCalls)
	}
	if resp.Error == "" {
		t.Error("response error field empty despite branch failure")
	}
}

func TestAskTabularProposalParseError(t *testing.T) {
	collab := defaultCollab()
	collab.sqlResponse = "I refuse to answer with JSON."
	eng := New(&fakeStore{}, collab, query.DefaultLimits())

	_, err := eng.Ask(context.Background(), datatypes.AskRequest{Question: "List all experiments"})
	var pe *query.ProposalParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error type = %T, want *query.ProposalParseError", err)
	}
}

func TestAskTabularGuardRejection(t *testing.T) {
	collab := defaultCollab()
	collab.sqlResponse = proposalJSON(`UPDATE "Experiments" SET "Winner" = 'B'`)
	st := &fakeStore{}
	eng := New(st, collab, query.DefaultLimits())

	_, err := eng.Ask(context.Background(), datatypes.AskRequest{Question: "List all experiments"})
	if !query.IsValidationError(err) {
		t.Fatalf("error type = %T, want *query.ValidationError", err)
	}
	if st.lastSQL != "" {
		t.Errorf("rejected query reached the store: %q", st.lastSQL)
	}
}

func TestAskInjectsPersonFilter(t *testing.T) {
	st := &fakeStore{rows: []map[string]any{}}
	eng := New(st, defaultCollab(), query.DefaultLimits())

	_, err := eng.Ask(context.Background(), datatypes.AskRequest{Question: "What did John run?"})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if !strings.Contains(st.lastSQL, `"Responsible" ILIKE '%John%'`) {
		t.Errorf("person filter missing from executed query: %q", st.lastSQL)
	}
	if !strings.Contains(st.lastSQL, `"Conclusion_Date" IS NOT NULL`) {
		t.Errorf("conclusion-date condition missing: %q", st.lastSQL)
	}
}

// =============================================================================
// Pattern primary and fallback
// =============================================================================

const patternQuestion = "What is the relationship between change type and winning?"

func TestAskPatternPrimary(t *testing.T) {
	st := &fakeStore{edgesByCall: [][]datatypes.PatternEdge{edges(3)}}
	eng := New(st, defaultCollab(), query.DefaultLimits())

	resp, err := eng.Ask(context.Background(), datatypes.AskRequest{Question: patternQuestion})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}

	if resp.ModeUsed != "pattern" {
		t.Errorf("ModeUsed = %q, want pattern", resp.ModeUsed)
	}
	if resp.FallbackUsed {
		t.Error("FallbackUsed = true despite dense pattern results")
	}
	if resp.PatternRowCount != 3 {
		t.Errorf("PatternRowCount = %d, want 3", resp.PatternRowCount)
	}
	if st.aggCalls != 1 {
		t.Errorf("aggregator calls = %d, want 1 (no widening needed)", st.aggCalls)
	}
	if !strings.HasPrefix(resp.Query, "MATCH") {
		t.Errorf("transparency candidate missing: %q", resp.Query)
	}
}

func TestAskPatternWidensOnceThenFallsBack(t *testing.T) {
	st := &fakeStore{
		edgesByCall: [][]datatypes.PatternEdge{edges(1), edges(1)},
		rows:        []map[string]any{{"Experiment_Name": "Exp A"}},
	}
	eng := New(st, defaultCollab(), query.DefaultLimits())

	resp, err := eng.Ask(context.Background(), datatypes.AskRequest{Question: patternQuestion})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}

	if st.aggCalls != 2 {
		t.Fatalf("aggregator calls = %d, want 2 (initial + widened)", st.aggCalls)
	}
	limits := query.DefaultLimits()
	if st.filters[0].WindowMonths != limits.WindowMonths {
		t.Errorf("first window = %d, want %d", st.filters[0].WindowMonths, limits.WindowMonths)
	}
	if st.filters[1].WindowMonths != limits.WideWindowMonths {
		t.Errorf("widened window = %d, want %d", st.filters[1].WindowMonths, limits.WideWindowMonths)
	}

	if !resp.FallbackUsed {
		t.Error("FallbackUsed = false after tabular fallback")
	}
	if resp.ModeUsed != "tabular" {
		t.Errorf("ModeUsed = %q, want tabular after fallback", resp.ModeUsed)
	}
	if resp.ModeClassified != "pattern" {
		t.Errorf("ModeClassified = %q, want pattern", resp.ModeClassified)
	}
	// Partial edges must survive the fallback.
	if resp.PatternRowCount != 1 {
		t.Errorf("PatternRowCount = %d, want 1 (partial edges kept)", resp.PatternRowCount)
	}
	if resp.RowCount != 1 {
		t.Errorf("RowCount = %d, want 1", resp.RowCount)
	}
}

func TestAskForcedPatternNeverFallsBack(t *testing.T) {
	st := &fakeStore{edgesByCall: [][]datatypes.PatternEdge{edges(1), edges(1)}}
	eng := New(st, defaultCollab(), query.DefaultLimits())

	resp, err := eng.Ask(context.Background(), datatypes.AskRequest{
		Question: "List all experiments",
		Mode:     "pattern",
	})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}

	if resp.ModeUsed != "pattern" {
		t.Errorf("ModeUsed = %q, want pattern (forced)", resp.ModeUsed)
	}
	if resp.FallbackUsed {
		t.Error("forced pattern mode must not fall back")
	}
	if resp.PatternRowCount != 1 {
		t.Errorf("PatternRowCount = %d, want sparse edges surfaced", resp.PatternRowCount)
	}
	if st.lastSQL != "" {
		t.Errorf("tabular query executed despite forced pattern mode: %q", st.lastSQL)
	}
}

func TestAskBothModesFailed(t *testing.T) {
	st := &fakeStore{
		edgesErr: &query.ExecutionError{Query: "agg", Err: errors.New("store down")},
		rowsErr:  &query.ExecutionError{Query: "tab", Err: errors.New("store down")},
	}
	eng := New(st, defaultCollab(), query.DefaultLimits())

	resp, err := eng.Ask(context.Background(), datatypes.AskRequest{Question: patternQuestion})
	var bf *query.BothFailedError
	if !errors.As(err, &bf) {
		t.Fatalf("error type = %T, want *query.BothFailedError", err)
	}
	if bf.Pattern == nil || bf.Tabular == nil {
		t.Error("BothFailedError must carry both underlying errors")
	}
	if resp.Error == "" {
		t.Error("response error field empty")
	}
	if !strings.Contains(resp.Error, "both query modes failed") {
		t.Errorf("response error = %q", resp.Error)
	}
}

// The transparency candidate failing must not disturb a healthy aggregation.
func TestAskPatternCandidateFailureIsNonFatal(t *testing.T) {
	collab := defaultCollab()
	collab.cypherResponse = "no json here"
	st := &fakeStore{edgesByCall: [][]datatypes.PatternEdge{edges(3)}}
	eng := New(st, collab, query.DefaultLimits())

	resp, err := eng.Ask(context.Background(), datatypes.AskRequest{Question: patternQuestion})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if resp.ModeUsed != "pattern" {
		t.Errorf("ModeUsed = %q, want pattern", resp.ModeUsed)
	}
	if resp.PatternRowCount != 3 {
		t.Errorf("PatternRowCount = %d, want 3", resp.PatternRowCount)
	}
	if !strings.Contains(resp.Notes, "pattern candidate rejected") {
		t.Errorf("Notes = %q, want candidate-rejection note", resp.Notes)
	}
}

// =============================================================================
// Question-derived filters
// =============================================================================

func TestAskPatternQuestionFilters(t *testing.T) {
	tests := []struct {
		name        string
		question    string
		wantFailed  bool
		wantWinners bool
		wantWindow  int
	}{
		{
			name:       "failed cue",
			question:   "What patterns are there in failed experiments?",
			wantFailed: true,
			wantWindow: query.DefaultLimits().WindowMonths,
		},
		{
			name:        "winner cue",
			question:    "Which combinations of changes are winning?",
			wantWinners: true,
			wantWindow:  query.DefaultLimits().WindowMonths,
		},
		{
			name:       "failed wins over winner",
			question:   "What is the relationship between failed experiments and winning ones?",
			wantFailed: true,
			wantWindow: query.DefaultLimits().WindowMonths,
		},
		{
			name:       "explicit window",
			question:   "What patterns are in experiments from the last 3 months?",
			wantWindow: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{edgesByCall: [][]datatypes.PatternEdge{edges(3)}}
			eng := New(st, defaultCollab(), query.DefaultLimits())

			_, err := eng.Ask(context.Background(), datatypes.AskRequest{Question: tt.question, Mode: "pattern"})
			if err != nil {
				t.Fatalf("Ask returned error: %v", err)
			}
			if len(st.filters) == 0 {
				t.Fatal("aggregator never called")
			}
			f := st.filters[0]
			if f.FailedOnly != tt.wantFailed {
				t.Errorf("FailedOnly = %v, want %v", f.FailedOnly, tt.wantFailed)
			}
			if f.WinnersOnly != tt.wantWinners {
				t.Errorf("WinnersOnly = %v, want %v", f.WinnersOnly, tt.wantWinners)
			}
			if f.WindowMonths != tt.wantWindow {
				t.Errorf("WindowMonths = %d, want %d", f.WindowMonths, tt.wantWindow)
			}
		})
	}
}

// =============================================================================
// Similarity branch and summarizer
// =============================================================================

func TestAskSimilarityBranch(t *testing.T) {
	st := &fakeStore{
		rows:      []map[string]any{},
		focal:     &datatypes.Experiment{ID: 42, ChangeType: "CTA"},
		neighbors: []datatypes.Experiment{{ID: 7, Name: "Exp B", Similarity: 3}},
	}
	eng := New(st, defaultCollab(), query.DefaultLimits())

	resp, err := eng.Ask(context.Background(), datatypes.AskRequest{
		Question:  "List all experiments",
		SimilarTo: 42,
	})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if len(resp.SimilarNeighbors) != 1 || resp.SimilarNeighbors[0].ID != 7 {
		t.Errorf("SimilarNeighbors = %+v", resp.SimilarNeighbors)
	}
}

func TestAskSimilarityFailureDoesNotFailMain(t *testing.T) {
	st := &fakeStore{
		rows:     []map[string]any{{"Experiment_Name": "Exp A"}},
		focalErr: errors.New("experiment 99 not found"),
	}
	eng := New(st, defaultCollab(), query.DefaultLimits())

	resp, err := eng.Ask(context.Background(), datatypes.AskRequest{
		Question:  "List all experiments",
		SimilarTo: 99,
	})
	if err != nil {
		t.Fatalf("main branch must survive similarity failure, got: %v", err)
	}
	if resp.RowCount != 1 {
		t.Errorf("RowCount = %d, want 1", resp.RowCount)
	}
	if !strings.Contains(resp.Error, "similarity branch") {
		t.Errorf("Error = %q, want similarity branch failure reported", resp.Error)
	}
}

func TestAskSummarize(t *testing.T) {
	st := &fakeStore{rows: []map[string]any{{"Experiment_Name": "Exp A"}}}
	collab := defaultCollab()
	eng := New(st, collab, query.DefaultLimits())

	resp, err := eng.Ask(context.Background(), datatypes.AskRequest{
		Question:  "List all experiments",
		Summarize: true,
	})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if resp.Answer != "a summary" {
		t.Errorf("Answer = %q, want summarizer output", resp.Answer)
	}
	if !collab.summarized {
		t.Error("summarizer never called")
	}
}

func TestAskSummarizeSkippedOnMainFailure(t *testing.T) {
	st := &fakeStore{rowsErr: errors.New("boom")}
	collab := defaultCollab()
	eng := New(st, collab, query.DefaultLimits())

	_, err := eng.Ask(context.Background(), datatypes.AskRequest{
		Question:  "List all experiments",
		Summarize: true,
	})
	if err == nil {
		t.Fatal("expected main branch error")
	}
	if collab.summarized {
		t.Error("summarizer called despite main branch failure")
	}
}

func TestAskSummarizerFailureIsNonFatal(t *testing.T) {
	st := &fakeStore{rows: []map[string]any{{"Experiment_Name": "Exp A"}}}
	collab := defaultCollab()
	collab.summaryErr = errors.New("model overloaded")
	eng := New(st, collab, query.DefaultLimits())

	resp, err := eng.Ask(context.Background(), datatypes.AskRequest{
		Question:  "List all experiments",
		Summarize: true,
	})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if resp.Answer != "" {
		t.Errorf("Answer = %q, want empty on summarizer failure", resp.Answer)
	}
	if !strings.Contains(resp.Error, "summarizer") {
		t.Errorf("Error = %q, want summarizer failure reported", resp.Error)
	}
}

func TestBuildSummaryInput(t *testing.T) {
	resp := &datatypes.AskResponse{
		ModeUsed: "pattern",
		PatternRows: []datatypes.PatternEdge{
			{ChangeType: "CTA", ChangedElement: "Button", Count: 9},
		},
		Rows: []map[string]any{{"Experiment_Name": "Exp A"}},
	}
	in := buildSummaryInput("what works?", resp)

	if !strings.Contains(in, "what works?") {
		t.Error("question missing from summary input")
	}
	if !strings.Contains(in, "CTA / Button: 9") {
		t.Error("pattern edge missing from summary input")
	}
	if !strings.Contains(in, "Exp A") {
		t.Error("row sample missing from summary input")
	}
}
