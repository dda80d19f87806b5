// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance for structural field checks.
// go-playground/validator caches struct metadata, so one instance is reused.
var validate = validator.New()

// ValidationResult is the outcome of validating a single rule.
//
// Exposed to the administration layer through the validate endpoint so
// authors get the same verdict the loader will reach, before activation.
type ValidationResult struct {
	// OK is true when the rule passes every load-time invariant.
	OK bool `json:"ok"`

	// Reason describes the first failed invariant. Empty when OK.
	Reason string `json:"reason,omitempty"`
}

// ValidateRule checks a rule against the load-time invariants.
//
// # Description
//
// Runs structural field validation (required fields, enums) first, then the
// domain invariants:
//
//  1. TriggerWords is non-empty and contains no blank entries.
//  2. For TEMPLATE_QUERY rules, the template placeholder count equals
//     len(Parameters).
//  3. For MEMORY_SOURCE rules, no parameters are declared.
//  4. ResultFields display names are unique within the rule.
//  5. Trigger words meet the configured minimum rune length (when > 1).
//
// A rule failing any check is excluded from the active snapshot and reported
// with the reason; it never reaches matching.
//
// # Inputs
//
//   - rule: The rule to validate. Must not be nil.
//   - minTriggerRuneLen: Minimum trigger word length in runes. Values <= 1
//     preserve the legacy behavior (no screening).
//
// # Outputs
//
//   - ValidationResult: OK with empty Reason, or the first failure.
//
// # Thread Safety
//
// Safe for concurrent use.
func ValidateRule(rule *IntentRule, minTriggerRuneLen int) ValidationResult {
	if err := validate.Struct(rule); err != nil {
		return ValidationResult{OK: false, Reason: structuralReason(err)}
	}

	for _, w := range rule.TriggerWords {
		trimmed := strings.TrimSpace(w)
		if trimmed == "" {
			return ValidationResult{OK: false, Reason: "trigger_words contains a blank entry"}
		}
		if minTriggerRuneLen > 1 && utf8.RuneCountInString(trimmed) < minTriggerRuneLen {
			return ValidationResult{OK: false, Reason: fmt.Sprintf(
				"trigger word %q is shorter than the configured minimum of %d runes",
				trimmed, minTriggerRuneLen)}
		}
	}

	switch rule.ActionType {
	case ActionTemplateQuery:
		placeholders := CountPlaceholders(rule.ActionTarget)
		if placeholders != len(rule.Parameters) {
			return ValidationResult{OK: false, Reason: fmt.Sprintf(
				"template declares %d placeholders but %d parameters are defined",
				placeholders, len(rule.Parameters))}
		}
	case ActionMemorySource:
		if len(rule.Parameters) > 0 {
			return ValidationResult{OK: false, Reason: fmt.Sprintf(
				"MEMORY_SOURCE rules take no parameters, %d declared", len(rule.Parameters))}
		}
	}

	if len(rule.ResultFields) == 0 {
		return ValidationResult{OK: false, Reason: "result_fields must not be empty"}
	}
	seen := make(map[string]struct{}, len(rule.ResultFields))
	for _, f := range rule.ResultFields {
		if f.Display == "" {
			return ValidationResult{OK: false, Reason: "result_fields contains an empty display name"}
		}
		if _, dup := seen[f.Display]; dup {
			return ValidationResult{OK: false, Reason: fmt.Sprintf(
				"duplicate display name %q in result_fields", f.Display)}
		}
		seen[f.Display] = struct{}{}
	}

	return ValidationResult{OK: true}
}

// structuralReason flattens a validator error into a single author-readable
// reason string. Only the first field error is reported.
func structuralReason(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("field %s failed %q validation", fe.Field(), fe.Tag())
	}
	return err.Error()
}
