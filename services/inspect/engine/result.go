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
	"fmt"
	"strconv"
	"time"

	"github.com/qualisight/qualisight/services/inspect/rules"
)

// Normalization constants.
const (
	// dateSentinel replaces absent/null date values.
	dateSentinel = "unknown"

	// dateLayout is the display format for timestamp columns.
	dateLayout = "2006-01-02 15:04:05"
)

// NormalizeRows maps raw result records to the rule's display-field names
// and applies per-type defaulting and formatting.
//
// # Description
//
// Each output row contains exactly the rule's declared display names, in
// declaration order semantics (the table renderer iterates ResultFields).
// Columns are looked up by source name — templates alias output columns to
// these names, so the mapping is 1:1 by construction. Per-type defaults:
// absent/null string → "", number → 0, date → "unknown", rate → "0.0%".
// Rates render as fixed single-decimal percentage strings; ratio inputs in
// [0, 1] are scaled, values above 1 are taken as already-percent.
//
// # Inputs
//
//   - rule: The matched rule carrying the field map. Must not be nil.
//   - raw: Rows from the executor. May be empty.
//
// # Outputs
//
//   - []map[string]any: Display-keyed rows, never nil.
//
// # Thread Safety
//
// Safe for concurrent use (pure function).
func NormalizeRows(rule *rules.IntentRule, raw []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(raw))
	for _, record := range raw {
		row := make(map[string]any, len(rule.ResultFields))
		for _, field := range rule.ResultFields {
			row[field.Display] = normalizeValue(field.Type, record[field.Source])
		}
		out = append(out, row)
	}
	return out
}

// normalizeValue applies the per-type defaulting and formatting rules.
func normalizeValue(kind rules.FieldType, v any) any {
	switch kind {
	case rules.FieldNumber:
		if v == nil {
			return 0
		}
		return v
	case rules.FieldDate:
		return normalizeDate(v)
	case rules.FieldRate:
		return formatRate(v)
	default: // FieldString and unknown types
		if v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
}

// normalizeDate renders timestamps in the display layout and falls back to
// the sentinel for absent values.
func normalizeDate(v any) string {
	switch t := v.(type) {
	case nil:
		return dateSentinel
	case time.Time:
		return t.Format(dateLayout)
	case string:
		if t == "" {
			return dateSentinel
		}
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// formatRate renders a ratio or percent value as a fixed-precision
// percentage string.
func formatRate(v any) string {
	f, ok := toFloat(v)
	if !ok {
		return "0.0%"
	}
	if f >= 0 && f <= 1 {
		f *= 100
	}
	return fmt.Sprintf("%.1f%%", f)
}

// toFloat coerces the numeric shapes SQL drivers produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
