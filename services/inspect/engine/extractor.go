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
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/qualisight/qualisight/services/inspect/rules"
)

// DictionaryProvider supplies the known entity vocabularies used for
// extraction. The live provider is the (out-of-scope) entity-dictionary
// service; the embedded YAML dictionaries serve as the default.
type DictionaryProvider interface {
	// Entries returns the ordered vocabulary for a parameter type
	// (supplier, material, factory, status, batch). Empty for unknown types.
	Entries(kind string) []string
}

// ParamValue is one resolved parameter, aligned to the rule's declaration
// order.
type ParamValue struct {
	// Name and Type echo the declaration.
	Name string
	Type string

	// Value is the extracted text. Meaningless when Unresolved is true.
	Value string

	// Unresolved is the explicit no-safe-value marker. The executor must
	// consult it before binding — an unresolved value is never allowed to
	// decay into an empty-string bind that matches every row.
	Unresolved bool
}

// ExtractedParameters is the ordered extraction result for one request.
type ExtractedParameters struct {
	// Values aligns 1:1 with the rule's Parameters slice.
	Values []ParamValue
}

// quotePairs are the delimiter pairs recognized by the quoted-literal
// strategy, tried in order.
var quotePairs = [][2]string{
	{"“", "”"},
	{"‘", "’"},
	{"「", "」"},
	{`"`, `"`},
	{"'", "'"},
	{"`", "`"},
}

// Extractor pulls entity values out of query text to fill a matched rule's
// template placeholders.
//
// # Description
//
// For each declared parameter, in template placeholder order, the ordered
// strategies are:
//
//  1. Known entity dictionary for the parameter type — the first dictionary
//     entry that is a substring of the query wins.
//  2. Quoted/delimited literal anywhere in the query text.
//  3. Failure → the value is marked Unresolved.
//
// The extractor never substitutes an empty string for a failed extraction;
// propagating the Unresolved flag to the executor is the contract that
// prevents silent whole-table scans.
//
// # Thread Safety
//
// Safe for concurrent use (read-only dictionaries).
type Extractor struct {
	dicts  DictionaryProvider
	logger *slog.Logger
}

// NewExtractor creates an extractor over the given dictionaries.
//
// # Inputs
//
//   - dicts: Entity dictionary provider. Must not be nil.
//   - logger: Logger. May be nil.
func NewExtractor(dicts DictionaryProvider, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{dicts: dicts, logger: logger}
}

// Extract resolves the rule's declared parameters from the normalized query.
//
// # Inputs
//
//   - ctx: Context for tracing. Must not be nil.
//   - normalizedQuery: Output of NormalizeQuery.
//   - rule: The matched rule. Must not be nil.
//
// # Outputs
//
//   - ExtractedParameters: One ParamValue per declared parameter, in order.
//     Rules without parameters yield an empty Values slice.
//
// # Thread Safety
//
// Safe for concurrent use.
func (x *Extractor) Extract(ctx context.Context, normalizedQuery string, rule *rules.IntentRule) ExtractedParameters {
	_, span := tracer.Start(ctx, "engine.Extract")
	defer span.End()

	out := ExtractedParameters{Values: make([]ParamValue, 0, len(rule.Parameters))}
	unresolved := 0

	for _, decl := range rule.Parameters {
		value, ok := x.extractOne(normalizedQuery, decl.Type)
		pv := ParamValue{Name: decl.Name, Type: decl.Type, Value: value, Unresolved: !ok}
		if !ok {
			unresolved++
			x.logger.Debug("parameter extraction unresolved",
				slog.Int64("rule_id", rule.ID),
				slog.String("param", decl.Name),
				slog.String("param_type", decl.Type),
			)
		}
		out.Values = append(out.Values, pv)
	}

	span.SetAttributes(
		attribute.Int64("rule_id", rule.ID),
		attribute.Int("params.declared", len(rule.Parameters)),
		attribute.Int("params.unresolved", unresolved),
	)
	return out
}

// extractOne runs the ordered strategies for a single parameter type.
func (x *Extractor) extractOne(query, kind string) (string, bool) {
	// Strategy 1: known entity dictionary. First entry contained in the
	// query wins, so dictionary order is authoritative.
	for _, entry := range x.dicts.Entries(kind) {
		if entry != "" && strings.Contains(query, entry) {
			return entry, true
		}
	}

	// Strategy 2: quoted literal.
	if literal, ok := quotedLiteral(query); ok {
		return literal, true
	}

	return "", false
}

// quotedLiteral returns the first non-empty delimited span in the query.
func quotedLiteral(query string) (string, bool) {
	for _, pair := range quotePairs {
		open := strings.Index(query, pair[0])
		if open < 0 {
			continue
		}
		rest := query[open+len(pair[0]):]
		end := strings.Index(rest, pair[1])
		if end <= 0 {
			continue
		}
		literal := strings.TrimSpace(rest[:end])
		if literal != "" {
			return literal, true
		}
	}
	return "", false
}
