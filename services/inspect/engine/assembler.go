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
	"errors"
	"fmt"
	"sort"

	"github.com/qualisight/qualisight/services/inspect/rules"
)

// maxSummaryCards caps the aggregate cards in a response.
const maxSummaryCards = 8

// Envelope is the terminal response artifact returned to the caller.
type Envelope struct {
	// Success is false only for executor-stage failures. NoMatch is a
	// well-formed, successful response with a nil MatchedRule.
	Success bool `json:"success"`

	// Reply is the narrative text.
	Reply string `json:"reply"`

	// MatchedRule identifies the selected rule, nil on NoMatch and failure.
	MatchedRule *MatchedRuleInfo `json:"matchedRule"`

	// Data carries the tabular payload and summary cards.
	Data EnvelopeData `json:"data"`

	// Metadata carries request accounting.
	Metadata EnvelopeMetadata `json:"metadata"`
}

// MatchedRuleInfo is the caller-facing identity of the selected rule.
type MatchedRuleInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// EnvelopeData is the display payload.
type EnvelopeData struct {
	// TableData holds normalized rows keyed by display names. Never nil.
	TableData []map[string]any `json:"tableData"`

	// Cards holds aggregate counts grouped by the rule's summary field.
	Cards []SummaryCard `json:"cards"`
}

// SummaryCard is one aggregate metric card.
type SummaryCard struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// EnvelopeMetadata is request accounting surfaced to the caller.
type EnvelopeMetadata struct {
	RecordCount      int     `json:"recordCount"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMs int64   `json:"processingTimeMs"`
	Truncated        bool    `json:"truncated"`
	RequestID        string  `json:"requestId,omitempty"`
}

// Fixed narratives. User-facing text is in the dashboard's language; raw
// backing-store errors never leak into these strings.
const (
	noMatchReply      = "未找到匹配的查询规则，请换一种说法，例如:查询聚龙供应商的库存。"
	executionReply    = "查询执行失败，请稍后重试。"
	timeoutReply      = "查询超时，请缩小查询范围后重试。"
	unresolvedReplyFm = "无法从问题中识别出%s,请补充后重试。"
)

// AssembleSuccess builds the envelope for a completed execution.
//
// # Description
//
// The narrative summarizes the matched rule and row count; the summary
// cards count rows grouped by the rule's summary field (or the first
// display column). Truncation is surfaced in both the narrative and the
// metadata — it is never hidden.
//
// # Thread Safety
//
// Safe for concurrent use (pure function).
func AssembleSuccess(candidate *MatchCandidate, table []map[string]any, exec *QueryExecutionResult, processingMs int64) *Envelope {
	rule := &candidate.Rule.Rule

	reply := fmt.Sprintf("%s:共找到 %d 条记录。", rule.Description, len(table))
	if rule.Description == "" {
		reply = fmt.Sprintf("共找到 %d 条记录。", len(table))
	}
	if exec.Truncated {
		reply += fmt.Sprintf("(结果已截断,仅显示前 %d 条)", len(table))
	}

	return &Envelope{
		Success: true,
		Reply:   reply,
		MatchedRule: &MatchedRuleInfo{
			ID:          rule.ID,
			Name:        rule.Name,
			Description: rule.Description,
			Category:    rule.Category,
		},
		Data: EnvelopeData{
			TableData: table,
			Cards:     summaryCards(rule.SummaryField, firstDisplay(rule), table),
		},
		Metadata: EnvelopeMetadata{
			RecordCount:      len(table),
			Confidence:       candidate.Confidence,
			ProcessingTimeMs: processingMs,
			Truncated:        exec.Truncated,
		},
	}
}

// AssembleNoMatch builds the fixed, honest no-match envelope. NoMatch is a
// normal outcome: the envelope is well-formed and Success stays true.
func AssembleNoMatch(processingMs int64) *Envelope {
	return &Envelope{
		Success: true,
		Reply:   noMatchReply,
		Data:    EnvelopeData{TableData: []map[string]any{}, Cards: []SummaryCard{}},
		Metadata: EnvelopeMetadata{
			ProcessingTimeMs: processingMs,
		},
	}
}

// AssembleFailure maps an executor-stage error onto a user-safe failure
// envelope. The table is always empty — a failed execution never partially
// renders.
func AssembleFailure(err error, processingMs int64) *Envelope {
	reply := executionReply

	var unresolved *UnresolvedParameterError
	var timeout *TimeoutError
	switch {
	case errors.As(err, &unresolved):
		what := unresolved.Description
		if what == "" {
			what = unresolved.Parameter
		}
		reply = fmt.Sprintf(unresolvedReplyFm, what)
	case errors.As(err, &timeout):
		reply = timeoutReply
	}

	return &Envelope{
		Success: false,
		Reply:   reply,
		Data:    EnvelopeData{TableData: []map[string]any{}, Cards: []SummaryCard{}},
		Metadata: EnvelopeMetadata{
			ProcessingTimeMs: processingMs,
		},
	}
}

// summaryCards counts rows grouped by a categorical display column.
func summaryCards(summaryField, fallback string, table []map[string]any) []SummaryCard {
	field := summaryField
	if field == "" {
		field = fallback
	}
	if field == "" || len(table) == 0 {
		return []SummaryCard{}
	}

	counts := make(map[string]int)
	for _, row := range table {
		label := fmt.Sprintf("%v", row[field])
		if label == "" || label == "<nil>" {
			continue
		}
		counts[label]++
	}

	cards := make([]SummaryCard, 0, len(counts))
	for label, n := range counts {
		cards = append(cards, SummaryCard{Label: label, Value: n})
	}
	// Largest groups first; label order breaks ties for determinism.
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].Value != cards[j].Value {
			return cards[i].Value > cards[j].Value
		}
		return cards[i].Label < cards[j].Label
	})
	if len(cards) > maxSummaryCards {
		cards = cards[:maxSummaryCards]
	}
	return cards
}

// firstDisplay returns the rule's first display column, or "".
func firstDisplay(rule *rules.IntentRule) string {
	if len(rule.ResultFields) == 0 {
		return ""
	}
	return rule.ResultFields[0].Display
}
