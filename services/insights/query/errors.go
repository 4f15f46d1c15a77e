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
	"errors"
	"fmt"
)

// =============================================================================
// Error Taxonomy
// =============================================================================
//
// Four terminal error kinds flow out of the ask pipeline. Each carries enough
// detail (including the offending query text where safe) for an operator to
// reproduce the failure and fix the proposer prompt. The trust model assumes
// a sophisticated operator debugging prompts, not an anonymous adversary.

// ProposalParseError indicates the proposer's response contained no usable
// JSON object with a "query" field. Terminal for the branch; never retried.
type ProposalParseError struct {
	// Raw is a truncated sample of the proposer output that failed to parse.
	Raw string
}

func (e *ProposalParseError) Error() string {
	return fmt.Sprintf("proposer response contained no query JSON (got: %.200s)", e.Raw)
}

// ValidationError indicates the safety guard rejected a sanitized query.
// The reason is surfaced verbatim to the caller.
type ValidationError struct {
	Reason string
	Query  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("query rejected: %s (query: %.300s)", e.Reason, e.Query)
}

// ExecutionError indicates the analytical store rejected a sanitized query,
// for example an unknown column that survived canonicalization. In pattern
// mode it is eligible to trigger fallback to tabular.
type ExecutionError struct {
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v (query: %.300s)", e.Err, e.Query)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// BothFailedError indicates both the pattern and tabular branches errored.
// The combined message lists both underlying failures.
type BothFailedError struct {
	Pattern error
	Tabular error
}

func (e *BothFailedError) Error() string {
	return fmt.Sprintf("both query modes failed: pattern: %v; tabular: %v", e.Pattern, e.Tabular)
}

// IsValidationError reports whether err is (or wraps) a guard rejection.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
