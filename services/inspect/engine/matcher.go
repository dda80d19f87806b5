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
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/qualisight/qualisight/services/inspect/rules"
)

// Scoring weights. Priority dominates, then breadth of trigger coverage,
// then specificity of the longest matched phrase.
const (
	scorePriorityWeight = 10_000
	scoreMatchedWeight  = 100
)

// MatchCandidate is the winning rule for one request, with the audit fields
// needed to explain the decision.
type MatchCandidate struct {
	// Rule is the selected compiled rule from the snapshot.
	Rule *rules.CompiledRule

	// MatchedTriggerWords lists the distinct expanded trigger words that
	// matched, in the snapshot's stable order.
	MatchedTriggerWords []string

	// Score is priority*10000 + matchedCount*100 + longestMatch(runes).
	Score int

	// Confidence is a bounded [0.5, 0.99] shaping of matched-trigger breadth
	// reported to the caller. It is descriptive, not a learned probability.
	Confidence float64
}

// Match scores every active rule against the normalized query and returns
// the best candidate.
//
// # Description
//
// A trigger word t matches query q when q contains t or t contains q — the
// reverse direction lets short partial queries reach a longer canonical
// phrase. Rules with no matched trigger are discarded. The survivor with
// the highest score wins; ties break toward the smallest rule ID, which the
// snapshot's ID-sorted order provides for free (strict > comparison keeps
// the earlier rule). The function is pure over (query, snapshot), so the
// same inputs always produce the same candidate.
//
// # Inputs
//
//   - ctx: Context for tracing. Must not be nil.
//   - normalizedQuery: Output of NormalizeQuery. Empty never matches.
//   - snap: The rule snapshot. May be nil (treated as no rules).
//
// # Outputs
//
//   - *MatchCandidate: The winning candidate, nil when nothing matched.
//   - bool: True when a candidate was selected.
//
// # Thread Safety
//
// Safe for concurrent use (reads an immutable snapshot).
func Match(ctx context.Context, normalizedQuery string, snap *rules.Snapshot) (*MatchCandidate, bool) {
	start := time.Now()

	_, span := tracer.Start(ctx, "engine.Match")
	defer span.End()

	var best *MatchCandidate
	if snap != nil && normalizedQuery != "" {
		for i := range snap.Active {
			candidate := scoreRule(normalizedQuery, &snap.Active[i])
			if candidate == nil {
				continue
			}
			if best == nil || candidate.Score > best.Score {
				best = candidate
			}
		}
	}

	matchLatency.Observe(time.Since(start).Seconds())

	if best == nil {
		matchOutcomeTotal.WithLabelValues("no_match").Inc()
		span.SetAttributes(attribute.Bool("matched", false))
		slog.Debug("intent match: no rule matched",
			slog.String("query_preview", truncateForLog(normalizedQuery, 80)),
		)
		return nil, false
	}

	matchOutcomeTotal.WithLabelValues("matched").Inc()
	span.SetAttributes(
		attribute.Bool("matched", true),
		attribute.Int64("rule_id", best.Rule.Rule.ID),
		attribute.Int("score", best.Score),
		attribute.Int("matched_triggers", len(best.MatchedTriggerWords)),
	)
	slog.Info("intent match selected",
		slog.Int64("rule_id", best.Rule.Rule.ID),
		slog.String("rule_name", best.Rule.Rule.Name),
		slog.Int("score", best.Score),
		slog.String("matched_triggers", strings.Join(best.MatchedTriggerWords, ",")),
		slog.String("query_preview", truncateForLog(normalizedQuery, 80)),
	)
	return best, true
}

// scoreRule evaluates one compiled rule against the query. Returns nil when
// no expanded trigger matches.
func scoreRule(query string, compiled *rules.CompiledRule) *MatchCandidate {
	var (
		matched []string
		longest int
	)
	for _, trigger := range compiled.ExpandedTriggers {
		if !triggerMatches(query, trigger) {
			continue
		}
		matched = append(matched, trigger)
		if n := utf8.RuneCountInString(trigger); n > longest {
			longest = n
		}
	}
	if len(matched) == 0 {
		return nil
	}

	score := compiled.Rule.Priority*scorePriorityWeight + len(matched)*scoreMatchedWeight + longest
	return &MatchCandidate{
		Rule:                compiled,
		MatchedTriggerWords: matched,
		Score:               score,
		Confidence:          shapeConfidence(len(matched)),
	}
}

// triggerMatches implements bidirectional substring containment. The
// trigger-contains-query direction handles short partial user queries that
// are a fragment of a longer canonical phrase.
func triggerMatches(query, trigger string) bool {
	return strings.Contains(query, trigger) || strings.Contains(trigger, query)
}

// shapeConfidence maps matched-trigger breadth into [0.5, 0.99]. One
// matched trigger is already a selection, so the floor sits at 0.5;
// coverage of four or more distinct triggers saturates.
func shapeConfidence(matchedCount int) float64 {
	frac := float64(matchedCount) / 4.0
	if frac > 1 {
		frac = 1
	}
	return 0.5 + 0.49*frac
}

// truncateForLog shortens a string for log previews, rune-safe.
func truncateForLog(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
