// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine implements the intent query pipeline: normalization,
// matching, parameter extraction, template execution, result normalization,
// and response assembly.
package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoMatch reports that no rule's triggers matched the query. This is a
// normal outcome, not a failure; the assembler turns it into an honest
// "no matching rule" envelope.
var ErrNoMatch = errors.New("no rule matched the query")

// UnresolvedParameterError reports that a filtering parameter could not be
// extracted and the rule declares no safe default. Execution is refused
// before binding — an unresolved value must never degrade into an
// empty-string bind that matches every row.
type UnresolvedParameterError struct {
	// RuleID identifies the matched rule.
	RuleID int64

	// Parameter is the name of the first unresolved parameter.
	Parameter string

	// Description is the parameter's authoring description, surfaced in the
	// clarification message so the user knows what to supply.
	Description string
}

func (e *UnresolvedParameterError) Error() string {
	return fmt.Sprintf("rule %d: parameter %q could not be resolved from the query and has no safe default",
		e.RuleID, e.Parameter)
}

// ExecutionError wraps a backing-store failure. The raw cause is logged but
// never forwarded to the caller.
type ExecutionError struct {
	// RuleID identifies the rule whose template failed.
	RuleID int64

	// Err is the underlying cause.
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("rule %d: query execution failed: %v", e.RuleID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TimeoutError reports that execution exceeded the configured time budget.
type TimeoutError struct {
	// RuleID identifies the rule whose execution timed out.
	RuleID int64

	// Budget is the configured execution timeout.
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rule %d: query execution exceeded %s budget", e.RuleID, e.Budget)
}
