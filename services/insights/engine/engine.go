// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates one ask request end to end: mode
// classification, proposer calls, sanitization, guarding, execution, the
// cross-mode fallback state machine, and the optional summarizer call.
//
// # State machine
//
//	Start ──► Classify ──► Primary
//	Primary(pattern):  aggregate; sparse → widen window once; still sparse
//	                   or errored (and not forced) → Secondary
//	Primary(tabular):  execute once; no automatic mode switch
//	Secondary:         tabular execution; outcome is terminal
//	Done:              response reports modeUsed + fallbackUsed
//
// All state is request-scoped. The engine holds only immutable
// configuration and safe-for-concurrent-use collaborators.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianInsights/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsights/services/insights/query"
	"github.com/AleutianAI/AleutianInsights/services/insights/store"
	"github.com/AleutianAI/AleutianInsights/services/llm"
)

// =============================================================================
// Collaborators
// =============================================================================

// Collaborator is the two-method boundary to the external language model:
// one call proposes a candidate query, the other summarizes executed
// results. Any concrete implementation satisfies it; swapping providers
// must not touch this package.
type Collaborator interface {
	Propose(ctx context.Context, prompt string) (string, error)
	Summarize(ctx context.Context, input string) (string, error)
}

// LLMCollaborator adapts an llm.LLMClient into a Collaborator.
type LLMCollaborator struct {
	Client llm.LLMClient
}

func (c *LLMCollaborator) Propose(ctx context.Context, prompt string) (string, error) {
	temp := float32(0.1)
	maxTokens := 1024
	return c.Client.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
}

func (c *LLMCollaborator) Summarize(ctx context.Context, input string) (string, error) {
	temp := float32(0.4)
	maxTokens := 1024
	return c.Client.Generate(ctx, input, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
}

// =============================================================================
// Engine
// =============================================================================

// Engine answers ask requests. Immutable after construction; safe for
// concurrent use.
type Engine struct {
	store  store.Store
	collab Collaborator
	limits query.Limits
}

// New builds an Engine. limits should come from DefaultLimits() in
// production; tests pass tightened thresholds.
func New(s store.Store, c Collaborator, limits query.Limits) *Engine {
	return &Engine{store: s, collab: c, limits: limits}
}

// branchResult carries one fan-out branch's outcome.
type branchResult struct {
	rows     []map[string]any
	edges    []datatypes.PatternEdge
	queryStr string
	notes    string
	modeUsed query.Mode
	fallback *datatypes.FallbackEvent
	err      error
}

// Ask runs the full pipeline for one question.
//
// # Description
//
// The main query branch and the similarity branch fan out concurrently and
// join; a failure in one never cancels the other, and each branch's error is
// reported independently in the response. The returned error is non-nil only
// when the main branch failed terminally (including BothFailed).
//
// # Outputs
//
//   - *datatypes.AskResponse: Always non-nil; partial results survive
//     branch failures.
//   - error: Terminal main-branch failure, typed per the error taxonomy.
func (e *Engine) Ask(ctx context.Context, req datatypes.AskRequest) (*datatypes.AskResponse, error) {
	requested := req.Mode
	if requested == "" {
		requested = string(query.ModeAuto)
	}
	decision := query.Classify(req.Question, query.Mode(requested))

	resp := &datatypes.AskResponse{
		ModeRequested:  requested,
		ModeClassified: string(decision.Classified),
		ModeUsed:       string(decision.Chosen),
		Rows:           []map[string]any{},
	}

	var (
		main      branchResult
		neighbors []datatypes.Experiment
		similErr  error
	)

	var g errgroup.Group
	g.Go(func() error {
		main = e.runMain(ctx, req.Question, decision)
		return nil
	})
	if req.SimilarTo > 0 {
		g.Go(func() error {
			neighbors, similErr = e.runSimilar(ctx, req.SimilarTo)
			return nil
		})
	}
	g.Wait()

	resp.Rows = main.rows
	if resp.Rows == nil {
		resp.Rows = []map[string]any{}
	}
	resp.RowCount = len(main.rows)
	resp.PatternRows = main.edges
	resp.PatternRowCount = len(main.edges)
	resp.Query = main.queryStr
	resp.Notes = main.notes
	resp.ModeUsed = string(main.modeUsed)
	resp.FallbackUsed = main.fallback != nil
	resp.SimilarNeighbors = neighbors

	var errParts []string
	if main.err != nil {
		errParts = append(errParts, main.err.Error())
	}
	if similErr != nil {
		errParts = append(errParts, fmt.Sprintf("similarity branch: %v", similErr))
	}

	if req.Summarize && e.collab != nil && main.err == nil {
		answer, err := e.collab.Summarize(ctx, buildSummaryInput(req.Question, resp))
		if err != nil {
			slog.Warn("Summarizer call failed", "error", err)
			errParts = append(errParts, fmt.Sprintf("summarizer: %v", err))
		} else {
			resp.Answer = answer
		}
	}

	if len(errParts) > 0 {
		resp.Error = strings.Join(errParts, "; ")
	}
	return resp, main.err
}

// =============================================================================
// Fallback Controller
// =============================================================================

// runMain executes the primary mode and applies the fallback rules.
func (e *Engine) runMain(ctx context.Context, question string, decision query.Decision) branchResult {
	if decision.Chosen == query.ModePattern {
		return e.runPatternPrimary(ctx, question, decision.Overridden)
	}
	// Tabular primary: the most general target already, no mode switch on error.
	res := e.runTabular(ctx, question, false)
	res.modeUsed = query.ModeTabular
	return res
}

// runPatternPrimary runs the pattern aggregator, widening the time window
// once on sparse results, and falls back to tabular when permitted.
func (e *Engine) runPatternPrimary(ctx context.Context, question string, forced bool) branchResult {
	res := branchResult{modeUsed: query.ModePattern}

	// The relationship-dialect candidate is reported for transparency only;
	// its failure never drives the state machine, because the aggregator is
	// the source of truth in pattern mode.
	candidate, notes, candErr := e.proposePatternQuery(ctx, question)
	if candErr != nil {
		slog.Warn("Pattern candidate rejected", "error", candErr)
		res.notes = fmt.Sprintf("pattern candidate rejected: %v", candErr)
	} else {
		res.queryStr = candidate
		res.notes = notes
	}

	edges, aggErr := e.aggregate(ctx, question, e.limits.WindowMonths)
	widened := false
	if aggErr == nil && len(edges) < e.limits.MinPatternEdges {
		slog.Info("Pattern result sparse, widening time window",
			"edges", len(edges), "window_months", e.limits.WideWindowMonths)
		widened = true
		edges, aggErr = e.aggregate(ctx, question, e.limits.WideWindowMonths)
	}

	patternErr := aggErr

	if patternErr == nil && len(edges) >= e.limits.MinPatternEdges {
		res.edges = edges
		return res
	}

	if forced {
		// Explicitly forced pattern mode: surface whatever we have.
		res.edges = edges
		res.err = patternErr
		return res
	}

	// Secondary: tabular with required-column injection.
	reason := "sparse pattern results"
	if patternErr != nil {
		reason = patternErr.Error()
	}
	slog.Info("Falling back to tabular mode", "reason", reason)

	tab := e.runTabular(ctx, question, true)
	tab.modeUsed = query.ModeTabular
	tab.fallback = &datatypes.FallbackEvent{
		From:          string(query.ModePattern),
		To:            string(query.ModeTabular),
		Reason:        reason,
		WindowWidened: widened,
	}
	// Keep any edges found so the caller still sees the partial pattern view.
	tab.edges = edges
	if tab.err != nil && patternErr != nil {
		tab.err = &query.BothFailedError{Pattern: patternErr, Tabular: tab.err}
	}
	return tab
}

// proposePatternQuery obtains, sanitizes, and guards a relationship-dialect
// candidate. The candidate is reported for transparency; the aggregator, not
// the candidate, computes the edges.
func (e *Engine) proposePatternQuery(ctx context.Context, question string) (string, string, error) {
	if e.collab == nil {
		return "", "", nil
	}
	text, err := e.collab.Propose(ctx, query.BuildProposerPrompt(question, query.DialectCypher))
	if err != nil {
		return "", "", fmt.Errorf("proposer call failed: %w", err)
	}
	proposal, err := query.ParseProposal(text)
	if err != nil {
		return "", "", err
	}
	pipeline := query.NewPipeline(query.DialectCypher, e.limits, false)
	sanitized := pipeline.Run(proposal.Query)
	if err := query.Guard(sanitized, query.DialectCypher); err != nil {
		return "", "", err
	}
	return sanitized, proposal.Notes, nil
}

// runTabular is the full proposer → sanitize → guard → execute path.
func (e *Engine) runTabular(ctx context.Context, question string, patternFallback bool) branchResult {
	res := branchResult{modeUsed: query.ModeTabular}
	if e.collab == nil {
		res.err = fmt.Errorf("no proposer collaborator configured")
		return res
	}

	text, err := e.collab.Propose(ctx, query.BuildProposerPrompt(question, query.DialectSQL))
	if err != nil {
		res.err = fmt.Errorf("proposer call failed: %w", err)
		return res
	}
	proposal, err := query.ParseProposal(text)
	if err != nil {
		res.err = err
		return res
	}

	pipeline := query.NewPipeline(query.DialectSQL, e.limits, patternFallback)
	sanitized := pipeline.Run(proposal.Query)
	sanitized = query.InjectPersonFilter(sanitized, query.ExtractPerson(question))

	if err := query.Guard(sanitized, query.DialectSQL); err != nil {
		res.err = err
		return res
	}

	rows, err := e.store.RunQuery(ctx, sanitized)
	res.queryStr = sanitized
	res.notes = proposal.Notes
	if err != nil {
		res.err = err
		return res
	}
	res.rows = rows
	return res
}

// runSimilar resolves the focal record and ranks its neighbors.
func (e *Engine) runSimilar(ctx context.Context, id int64) ([]datatypes.Experiment, error) {
	focal, err := e.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.store.SimilarExperiments(ctx, *focal, e.limits.MaxSimilar)
}

// =============================================================================
// Question-derived pattern filters
// =============================================================================

var failedCueRe = regexp.MustCompile(`(?i)\b(fail|failed|failing|losing|lost|no\s+winner)\b`)
var winnerCueRe = regexp.MustCompile(`(?i)\b(winner|winning|won|successful)\b`)
var windowCueRe = regexp.MustCompile(`(?i)\blast\s+(\d+)\s+months?\b`)

// aggregate derives a pattern filter from the question text and runs the
// aggregator with the given window.
func (e *Engine) aggregate(ctx context.Context, question string, windowMonths int) ([]datatypes.PatternEdge, error) {
	f := store.PatternFilter{
		WindowMonths: windowMonths,
		Limit:        e.limits.MaxPatternEdges,
	}
	if m := windowCueRe.FindStringSubmatch(question); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && windowMonths == e.limits.WindowMonths {
			f.WindowMonths = n
		}
	}
	// Failed wins over winner when both cues appear; never combined with
	// significance thresholds.
	if failedCueRe.MatchString(question) {
		f.FailedOnly = true
	} else if winnerCueRe.MatchString(question) {
		f.WinnersOnly = true
	}
	return e.store.AggregatePatterns(ctx, f)
}

// buildSummaryInput assembles the summarizer prompt from executed results.
// Row samples are capped so the prompt stays bounded.
func buildSummaryInput(question string, resp *datatypes.AskResponse) string {
	var b strings.Builder
	b.WriteString("Summarize these A/B experiment results for a product team. Be concrete and cite numbers.\n\n")
	b.WriteString("Question: " + question + "\n")
	b.WriteString("Mode used: " + resp.ModeUsed + "\n")

	if len(resp.PatternRows) > 0 {
		b.WriteString("\nRelationship counts (change type, changed element, occurrences):\n")
		for _, edge := range resp.PatternRows {
			fmt.Fprintf(&b, "- %s / %s: %d\n", edge.ChangeType, edge.ChangedElement, edge.Count)
		}
	}

	if len(resp.Rows) > 0 {
		sample := resp.Rows
		if len(sample) > 20 {
			sample = sample[:20]
		}
		b.WriteString("\nRow sample:\n")
		if data, err := json.Marshal(sample); err == nil {
			b.Write(data)
			b.WriteString("\n")
		}
	}

	if len(resp.SimilarNeighbors) > 0 {
		b.WriteString("\nSimilar experiments:\n")
		for _, n := range resp.SimilarNeighbors {
			fmt.Fprintf(&b, "- %s (overlap %d)\n", n.Name, n.Similarity)
		}
	}
	return b.String()
}
