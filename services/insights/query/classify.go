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
	"regexp"
	"strings"
)

// =============================================================================
// Mode Classification
// =============================================================================

// Mode selects the primary answering strategy for a question.
type Mode string

const (
	// ModeTabular answers by row filtering over the experiment table.
	ModeTabular Mode = "tabular"
	// ModePattern answers by relationship/co-occurrence aggregation.
	ModePattern Mode = "pattern"
	// ModeAuto lets the classifier decide.
	ModeAuto Mode = "auto"
)

// Decision is the classifier verdict for one request.
//
// When the caller forces a mode, Overridden is true and Chosen carries the
// forced mode, but Classified still reports what the classifier would have
// picked. The response surfaces both for transparency.
type Decision struct {
	Chosen     Mode
	Classified Mode
	Overridden bool
}

// Ordered cue lists. First match wins; relationship cues are checked before
// tabular cues because relationship phrasing often embeds tabular verbs
// ("list the relationship between ...").
var relationshipCues = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brelationships?\s+between\b`),
	regexp.MustCompile(`(?i)\bco-?occur`),
	regexp.MustCompile(`(?i)\bpatterns?\s+(across|between|in)\b`),
	regexp.MustCompile(`(?i)\bconnected\s+to\b.*\boutcomes?\b`),
	regexp.MustCompile(`(?i)\bcorrelat(e|ion|ed)\b`),
	regexp.MustCompile(`(?i)\bcombinations?\s+of\b`),
	regexp.MustCompile(`(?i)\bwhich\s+.*\btend\s+to\b`),
	regexp.MustCompile(`(?i)\bgo\s+together\b`),
}

var tabularCues = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(list|show|give)\s+(me\s+)?(all|the)\b`),
	regexp.MustCompile(`(?i)\bhow\s+many\b`),
	regexp.MustCompile(`(?i)\bcount\b`),
	regexp.MustCompile(`(?i)\bwhat\s+did\s+we\s+learn\b`),
	regexp.MustCompile(`(?i)\bbiggest\s+(win|loss|impact)\b`),
	regexp.MustCompile(`(?i)\bfailed\s+experiments?\b`),
	regexp.MustCompile(`(?i)\bmost\s+recent\b`),
	regexp.MustCompile(`(?i)\btop\s+\d+\b`),
}

// Classify picks the primary mode for a question.
//
// # Description
//
// Applies the relationship cue list first (first match selects pattern mode),
// then the tabular cue list, and defaults to tabular when neither matches.
// An explicit override takes precedence and skips nothing except the final
// choice: the classified verdict is always computed so the response can
// report it.
//
// # Inputs
//
//   - question: Raw question text. May be empty.
//   - override: ModeTabular or ModePattern to force a mode; ModeAuto or ""
//     to let the classifier decide.
//
// # Outputs
//
//   - Decision: Chosen mode, classifier verdict, and override flag.
//
// Deterministic, side-effect free; the only failure mode is defaulting.
func Classify(question string, override Mode) Decision {
	classified := ModeTabular
	q := strings.TrimSpace(question)

	matched := false
	for _, cue := range relationshipCues {
		if cue.MatchString(q) {
			classified = ModePattern
			matched = true
			break
		}
	}
	if !matched {
		for _, cue := range tabularCues {
			if cue.MatchString(q) {
				classified = ModeTabular
				break
			}
		}
	}

	if override == ModeTabular || override == ModePattern {
		return Decision{Chosen: override, Classified: classified, Overridden: true}
	}
	return Decision{Chosen: classified, Classified: classified}
}
