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
	"strings"
	"unicode"
)

// fillerPunctuation is the fixed set of punctuation stripped during
// normalization. Quote characters are deliberately kept: the parameter
// extractor uses quoted literals as an extraction strategy.
const fillerPunctuation = "。，、！？!?；;：:…~～．"

// NormalizeQuery canonicalizes raw user input for matching.
//
// # Description
//
// Strips leading/trailing whitespace, collapses internal whitespace runs to
// a single space, and removes a fixed set of filler punctuation. No case
// folding is applied — the domain text is predominantly CJK and trigger
// words are authored in their surface form.
//
// # Inputs
//
//   - raw: The user's query text.
//
// # Outputs
//
//   - string: The canonical form. Empty when the input holds nothing but
//     whitespace and filler punctuation.
//
// # Thread Safety
//
// Safe for concurrent use (pure function).
func NormalizeQuery(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))

	lastSpace := false
	for _, r := range raw {
		if unicode.IsSpace(r) {
			if sb.Len() > 0 && !lastSpace {
				sb.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if strings.ContainsRune(fillerPunctuation, r) {
			continue
		}
		sb.WriteRune(r)
		lastSpace = false
	}

	return strings.TrimRight(sb.String(), " ")
}
