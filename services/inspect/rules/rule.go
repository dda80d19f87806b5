// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules defines the intent rule model, load-time validation, and the
// versioned immutable rule snapshot used by the matching engine.
package rules

import (
	"strings"
)

// ActionType selects how a rule's actionTarget is interpreted.
type ActionType string

const (
	// ActionTemplateQuery executes a parameterized query template against the
	// backing data store. The template's placeholder count must equal the
	// rule's declared parameter count.
	ActionTemplateQuery ActionType = "TEMPLATE_QUERY"

	// ActionMemorySource looks up a named in-memory dataset. No placeholders.
	ActionMemorySource ActionType = "MEMORY_SOURCE"
)

// RuleStatus is the authoring status of a rule. Only active rules match.
type RuleStatus string

const (
	// StatusActive marks a rule as usable for matching.
	StatusActive RuleStatus = "active"

	// StatusInactive excludes a rule from matching without deleting it.
	StatusInactive RuleStatus = "inactive"
)

// Placeholder is the positional slot marker in query templates. Values are
// bound through the driver's native parameter binding, never concatenated.
const Placeholder = "?"

// Parameter declares one template parameter, in placeholder order.
type Parameter struct {
	// Name identifies the parameter for logging and clarification messages.
	Name string `json:"name" yaml:"name"`

	// Type selects the extraction dictionary: supplier, material, factory,
	// status, batch, or text (quoted-literal only).
	Type string `json:"type" yaml:"type"`

	// Description is authoring documentation, surfaced in clarification
	// responses when extraction fails.
	Description string `json:"description" yaml:"description"`

	// Default is the safe fallback bound when extraction is unresolved.
	// Empty means no safe default: execution is refused instead of running
	// an unfiltered scan.
	Default string `json:"default,omitempty" yaml:"default,omitempty"`
}

// ResultField maps one raw output column to a caller-facing display name.
type ResultField struct {
	// Display is the caller-facing column label. Unique within a rule.
	Display string `json:"display" yaml:"display"`

	// Source is the raw column name produced by the query template
	// (templates alias output columns to these names).
	Source string `json:"source" yaml:"source"`

	// Type drives normalization and defaulting: string, number, date, rate.
	Type FieldType `json:"type" yaml:"type"`
}

// FieldType drives per-column normalization in the result normalizer.
type FieldType string

const (
	// FieldString defaults absent/null values to "".
	FieldString FieldType = "string"

	// FieldNumber defaults absent/null values to 0.
	FieldNumber FieldType = "number"

	// FieldDate formats timestamps and defaults absent values to "unknown".
	FieldDate FieldType = "date"

	// FieldRate renders ratios as fixed-precision percentage strings.
	FieldRate FieldType = "rate"
)

// IntentRule is the authored unit of behavior: a binding of trigger phrases
// to a parameterized query template and a display-field mapping.
//
// # Description
//
// Rules are created by the (out-of-scope) administration API and loaded here
// at startup and on reload. All fields are immutable once a rule enters a
// snapshot; edits only become visible through a full snapshot swap.
//
// # Thread Safety
//
// Immutable after loading; safe for concurrent use.
type IntentRule struct {
	// ID is the stable rule key. Ties in match score break toward the
	// smallest ID so selection is deterministic across reloads.
	ID int64 `json:"id" yaml:"id" validate:"required,gt=0"`

	// Name is the short authoring label.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Description explains what the rule answers; used in narratives.
	Description string `json:"description" yaml:"description"`

	// Category groups rules for the authoring tool (e.g. "inventory scenario").
	Category string `json:"category" yaml:"category"`

	// TriggerWords are the matching anchors. Must be non-empty.
	TriggerWords []string `json:"trigger_words" yaml:"trigger_words" validate:"required,min=1"`

	// Synonyms maps a canonical trigger word to alternative surface forms.
	// Expansion widens matching only; the user's query is never rewritten.
	Synonyms map[string][]string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`

	// Priority ranks rules when several match. Higher wins.
	Priority int `json:"priority" yaml:"priority"`

	// ActionType selects template execution or memory-source lookup.
	ActionType ActionType `json:"action_type" yaml:"action_type" validate:"required,oneof=TEMPLATE_QUERY MEMORY_SOURCE"`

	// ActionTarget is the query template (with ? placeholders) or the named
	// dataset key, depending on ActionType. Every ? in a template counts as
	// a placeholder, including one inside a quoted SQL literal, so templates
	// must not embed literal question marks.
	ActionTarget string `json:"action_target" yaml:"action_target" validate:"required"`

	// Parameters declares the template parameters in placeholder order.
	// len(Parameters) must equal the placeholder count for TEMPLATE_QUERY.
	Parameters []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	// ResultFields is the ordered output column mapping. Display names are
	// unique within a rule.
	ResultFields []ResultField `json:"result_fields" yaml:"result_fields"`

	// SummaryField selects the display column the response assembler groups
	// summary cards by. Empty means the first display column.
	SummaryField string `json:"summary_field,omitempty" yaml:"summary_field,omitempty"`

	// ExampleQuery documents a query this rule is meant to answer.
	ExampleQuery string `json:"example_query,omitempty" yaml:"example_query,omitempty"`

	// Status is active or inactive. Only active rules enter the snapshot.
	Status RuleStatus `json:"status" yaml:"status" validate:"required,oneof=active inactive"`
}

// CountPlaceholders returns the number of positional placeholders in a query
// template. Used by the load-time invariant check against len(Parameters).
// Counts every ? byte; it does not parse SQL, so a literal ? inside a quoted
// string is counted too (see IntentRule.ActionTarget).
func CountPlaceholders(template string) int {
	return strings.Count(template, Placeholder)
}

// IsActive reports whether the rule participates in matching.
func (r *IntentRule) IsActive() bool {
	return r.Status == StatusActive
}
