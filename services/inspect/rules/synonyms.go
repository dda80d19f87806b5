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
	"sort"
	"strings"
)

// ExpandTriggers computes a rule's expanded trigger set:
//
//	triggerWords ∪ { synonym | synonym ∈ synonyms[w], w ∈ triggerWords }
//
// # Description
//
// Synonym expansion widens matching only — it maps alternative surface forms
// onto a rule's triggers, never rewrites the user's query. The expansion is
// computed once per rule when the snapshot is built, since rules change only
// on reload. The result is deduplicated and sorted so matching output is
// stable regardless of authoring order.
//
// # Inputs
//
//   - rule: The rule to expand. Must not be nil.
//
// # Outputs
//
//   - []string: Distinct, sorted expanded trigger words. Never empty for a
//     rule that passed validation.
//
// # Thread Safety
//
// Safe for concurrent use (pure function).
func ExpandTriggers(rule *IntentRule) []string {
	set := make(map[string]struct{}, len(rule.TriggerWords)*2)

	for _, w := range rule.TriggerWords {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		set[w] = struct{}{}
		for _, alt := range rule.Synonyms[w] {
			alt = strings.TrimSpace(alt)
			if alt != "" {
				set[alt] = struct{}{}
			}
		}
	}

	expanded := make([]string, 0, len(set))
	for w := range set {
		expanded = append(expanded, w)
	}
	sort.Strings(expanded)
	return expanded
}
