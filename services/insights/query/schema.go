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
// Experiment Store Schema
// =============================================================================
//
// The experiment table uses exact-case quoted identifiers in Postgres.
// Proposed queries routinely arrive with lowercase, unquoted, or
// space-separated variants of these names; the alias table below maps every
// known spelling back to its canonical quoted form.

// ExperimentTable is the canonical quoted name of the experiment table.
const ExperimentTable = `"Experiments"`

// Canonical quoted column identifiers.
const (
	ColID             = `id`
	ColName           = `"Experiment_Name"`
	ColChangeType     = `"Change_Type"`
	ColChangedElement = `"Changed_Element"`
	ColVertical       = `"Vertical"`
	ColGeography      = `"Geography"`
	ColBrand          = `"Brand"`
	ColTargetMetric   = `"Target_Metric"`
	ColCategory       = `"Category"`
	ColResponsible    = `"Responsible"`
	ColWinner         = `"Winner"`
	ColHypothesis     = `"Hypothesis"`
	ColLearning       = `"Learning"`
	ColStatus         = `"Status"`
	ColSignificance   = `"Significance"`
	ColImpactMonthly  = `"Impact_Monthly"`
	ColLaunchDate     = `"Launch_Date"`
	ColConclusionDate = `"Conclusion_Date"`
	ColCreatedAt      = `"Created_At"`
)

// identifierAliases maps lower-cased alias spellings to canonical quoted
// identifiers. Unknown identifiers pass through the canonicalizer unchanged.
//
// The alias list is deliberately closed: it covers the spellings observed in
// proposer output (snake_case, lowercase-quoted, space-separated) rather than
// attempting generic fuzzy matching.
var identifierAliases = map[string]string{
	// Table
	"experiments": ExperimentTable,
	"experiment":  ExperimentTable,
	"tests":       ExperimentTable,
	"ab_tests":    ExperimentTable,

	// Name
	"experiment_name": ColName,
	"name":            ColName,
	"test_name":       ColName,
	"title":           ColName,

	// Change type
	"change_type": ColChangeType,
	"changetype":  ColChangeType,
	"change type": ColChangeType,
	"type_of_change": ColChangeType,

	// Changed element
	"changed_element": ColChangedElement,
	"changedelement":  ColChangedElement,
	"changed element": ColChangedElement,
	"element":         ColChangedElement,
	"element_changed": ColChangedElement,

	// Vertical
	"vertical":      ColVertical,
	"verticals":     ColVertical,
	"business_unit": ColVertical,

	// Geography
	"geography": ColGeography,
	"geo":       ColGeography,
	"market":    ColGeography,
	"region":    ColGeography,
	"country":   ColGeography,

	// Brand
	"brand": ColBrand,

	// Target metric
	"target_metric": ColTargetMetric,
	"target metric": ColTargetMetric,
	"metric":        ColTargetMetric,
	"kpi":           ColTargetMetric,

	// Category
	"category":   ColCategory,
	"categories": ColCategory,

	// Responsible person
	"responsible":        ColResponsible,
	"owner":              ColResponsible,
	"responsible_person": ColResponsible,
	"run_by":             ColResponsible,

	// Winner / outcome
	"winner":          ColWinner,
	"winning_variant": ColWinner,
	"outcome":         ColWinner,

	// Free text
	"hypothesis": ColHypothesis,
	"learning":   ColLearning,
	"learnings":  ColLearning,
	"conclusion": ColLearning,

	// Status
	"status": ColStatus,

	// Numbers
	"significance":       ColSignificance,
	"impact_monthly":     ColImpactMonthly,
	"monthly_impact":     ColImpactMonthly,
	"impact":             ColImpactMonthly,
	"monetary_impact":    ColImpactMonthly,
	"revenue_impact":     ColImpactMonthly,

	// Dates
	"launch_date":     ColLaunchDate,
	"launched":        ColLaunchDate,
	"start_date":      ColLaunchDate,
	"conclusion_date": ColConclusionDate,
	"concluded":       ColConclusionDate,
	"end_date":        ColConclusionDate,
	"created_at":      ColCreatedAt,
}

// looseMatchColumns are the free-text classification attributes whose
// exact-equality filters are rewritten into case-insensitive wildcard
// matches. Real-world spellings of these values vary ("Solar Energy",
// "solar_energy", "Solar"), and an exact match silently returns zero rows.
var looseMatchColumns = []string{ColVertical, ColCategory}

// requiredPatternColumns are injected into simple non-aggregated SELECTs
// produced as tabular fallbacks of pattern questions, so the summarizer
// always sees the relationship attributes alongside human-readable context.
var requiredPatternColumns = []string{
	ColChangeType,
	ColChangedElement,
	ColName,
	ColVertical,
	ColGeography,
	ColWinner,
	ColImpactMonthly,
	ColConclusionDate,
}

// SchemaDescription renders the store schema for the proposer prompt.
func SchemaDescription() string {
	return `Table ` + ExperimentTable + ` (PostgreSQL, identifiers are case-sensitive and must stay double-quoted):
  id                  bigint primary key
  "Experiment_Name"   text    -- human readable name
  "Change_Type"       text    -- e.g. 'CTA', 'Layout', 'Copy', 'Pricing', 'Other'
  "Changed_Element"   text    -- e.g. 'Button', 'Headline', 'Form', 'Other'
  "Vertical"          text    -- business vertical, free text
  "Geography"         text    -- market code, e.g. 'US', 'DE', 'UK'
  "Brand"             text
  "Target_Metric"     text    -- e.g. 'CVR', 'CTR', 'AOV'
  "Category"          text    -- free text classification
  "Responsible"       text    -- person who ran the experiment
  "Winner"            text    -- winning variant; NULL or '' means no winner
  "Hypothesis"        text
  "Learning"          text
  "Status"            text
  "Significance"      numeric -- statistical significance, 0..1
  "Impact_Monthly"    numeric -- estimated monthly monetary impact
  "Launch_Date"       date
  "Conclusion_Date"   date    -- NULL while the experiment is running
  "Created_At"        timestamptz`
}
