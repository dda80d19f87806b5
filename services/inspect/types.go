// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inspect

import (
	"github.com/qualisight/qualisight/services/inspect/rules"
)

// =============================================================================
// Request/Response Types
// =============================================================================

// QueryRequest is the natural-language query submission.
type QueryRequest struct {
	// Query is the raw user question. Required, non-blank after
	// normalization.
	Query string `json:"query" binding:"required"`

	// Context carries optional dashboard state (selected factory, date
	// range). Currently advisory only; reserved for future scoping.
	Context map[string]any `json:"context,omitempty"`
}

// ValidateRuleRequest submits a candidate rule for structural validation
// without loading it into the active set.
type ValidateRuleRequest struct {
	Rule rules.IntentRule `json:"rule" binding:"required"`
}

// ValidateRuleResponse reports the validation verdict.
type ValidateRuleResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// RuleView is the read-model of one rule for the management surface.
// Action targets (query templates) are included: the rules endpoint is an
// operator surface, not end-user facing.
type RuleView struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Category     string   `json:"category,omitempty"`
	TriggerWords []string `json:"triggerWords"`
	Priority     int      `json:"priority"`
	ActionType   string   `json:"actionType"`
	ExampleQuery string   `json:"exampleQuery,omitempty"`
	Status       string   `json:"status"`

	// Reason is set only for rejected rules.
	Reason string `json:"reason,omitempty"`
}

// ListRulesResponse reports the current rule snapshot.
type ListRulesResponse struct {
	SnapshotVersion string     `json:"snapshotVersion"`
	LoadedAt        string     `json:"loadedAt"`
	Active          []RuleView `json:"active"`
	Rejected        []RuleView `json:"rejected"`
}

// ReloadResponse reports the outcome of an explicit rule reload.
type ReloadResponse struct {
	SnapshotVersion string `json:"snapshotVersion"`
	ActiveRules     int    `json:"activeRules"`
	RejectedRules   int    `json:"rejectedRules"`
}

// ErrorResponse is the uniform error body for non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
