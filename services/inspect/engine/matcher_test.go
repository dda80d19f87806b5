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
	"sort"
	"testing"

	"github.com/qualisight/qualisight/services/inspect/rules"
)

// makeSnapshot builds a snapshot directly for matcher tests, mirroring what
// rules.Store produces: ID-sorted compiled rules with expanded triggers.
func makeSnapshot(ruleDefs ...rules.IntentRule) *rules.Snapshot {
	snap := &rules.Snapshot{Version: "test-1"}
	for i := range ruleDefs {
		snap.Active = append(snap.Active, rules.CompiledRule{
			Rule:             ruleDefs[i],
			ExpandedTriggers: rules.ExpandTriggers(&ruleDefs[i]),
		})
	}
	sort.Slice(snap.Active, func(i, j int) bool {
		return snap.Active[i].Rule.ID < snap.Active[j].Rule.ID
	})
	return snap
}

func makeMatchRule(id int64, priority int, triggers ...string) rules.IntentRule {
	return rules.IntentRule{
		ID:           id,
		Name:         "rule",
		TriggerWords: triggers,
		Priority:     priority,
		ActionType:   rules.ActionTemplateQuery,
		ActionTarget: "SELECT status AS status FROM inventory",
		ResultFields: []rules.ResultField{{Display: "状态", Source: "status", Type: rules.FieldString}},
		Status:       rules.StatusActive,
	}
}

func TestMatchSelectsRuleWithTriggerInQuery(t *testing.T) {
	snap := makeSnapshot(makeMatchRule(1, 50, "库存"))

	candidate, ok := Match(context.Background(), "查询聚龙供应商的库存", snap)
	if !ok {
		t.Fatal("expected a match")
	}
	if candidate.Rule.Rule.ID != 1 {
		t.Errorf("matched rule = %d, want 1", candidate.Rule.Rule.ID)
	}
	if len(candidate.MatchedTriggerWords) != 1 || candidate.MatchedTriggerWords[0] != "库存" {
		t.Errorf("matched triggers = %v", candidate.MatchedTriggerWords)
	}
}

func TestMatchShortQueryContainedInTrigger(t *testing.T) {
	// A short partial query must reach a longer canonical trigger phrase.
	snap := makeSnapshot(makeMatchRule(1, 50, "供应商合格率统计"))

	if _, ok := Match(context.Background(), "合格率统计", snap); ok {
		// "供应商合格率统计" contains "合格率统计": trigger-contains-query fires.
		return
	}
	t.Fatal("expected trigger-contains-query direction to match")
}

func TestMatchNoRuleSurvives(t *testing.T) {
	snap := makeSnapshot(makeMatchRule(1, 50, "库存"))

	if candidate, ok := Match(context.Background(), "xyz123nonsense", snap); ok {
		t.Fatalf("expected NoMatch, got rule %d", candidate.Rule.Rule.ID)
	}
}

func TestMatchPriorityWinsOverInsertionOrder(t *testing.T) {
	low := makeMatchRule(1, 50, "库存")
	high := makeMatchRule(2, 100, "库存")

	// Same rules in both insertion orders: the priority-100 rule always wins.
	for _, snap := range []*rules.Snapshot{makeSnapshot(low, high), makeSnapshot(high, low)} {
		candidate, ok := Match(context.Background(), "库存查询", snap)
		if !ok {
			t.Fatal("expected a match")
		}
		if candidate.Rule.Rule.ID != 2 {
			t.Errorf("matched rule = %d, want priority-100 rule 2", candidate.Rule.Rule.ID)
		}
	}
}

func TestMatchTieBreaksOnSmallestID(t *testing.T) {
	a := makeMatchRule(7, 50, "库存")
	b := makeMatchRule(3, 50, "库存")

	candidate, ok := Match(context.Background(), "库存", makeSnapshot(a, b))
	if !ok {
		t.Fatal("expected a match")
	}
	if candidate.Rule.Rule.ID != 3 {
		t.Errorf("tie broke to rule %d, want smallest id 3", candidate.Rule.Rule.ID)
	}
}

func TestMatchMoreTriggersBeatFewerAtSamePriority(t *testing.T) {
	one := makeMatchRule(1, 50, "库存")
	two := makeMatchRule(2, 50, "库存", "供应商")

	candidate, ok := Match(context.Background(), "查询供应商的库存", makeSnapshot(one, two))
	if !ok {
		t.Fatal("expected a match")
	}
	if candidate.Rule.Rule.ID != 2 {
		t.Errorf("matched rule = %d, want broader-coverage rule 2", candidate.Rule.Rule.ID)
	}
}

func TestMatchSynonymExpansionWidensMatching(t *testing.T) {
	rule := makeMatchRule(1, 50, "供应商")
	rule.Synonyms = map[string][]string{"供应商": {"供货商"}}

	candidate, ok := Match(context.Background(), "查询供货商的情况", makeSnapshot(rule))
	if !ok {
		t.Fatal("expected synonym-expanded match")
	}
	if candidate.Rule.Rule.ID != 1 {
		t.Errorf("matched rule = %d, want 1", candidate.Rule.Rule.ID)
	}
}

func TestMatchIsDeterministic(t *testing.T) {
	snap := makeSnapshot(
		makeMatchRule(1, 50, "库存", "入库"),
		makeMatchRule(2, 100, "供应商", "聚龙"),
		makeMatchRule(3, 80, "检验", "质检"),
	)
	query := "查询聚龙供应商的库存"

	first, ok := Match(context.Background(), query, snap)
	if !ok {
		t.Fatal("expected a match")
	}
	for i := 0; i < 50; i++ {
		again, ok := Match(context.Background(), query, snap)
		if !ok || again.Rule.Rule.ID != first.Rule.Rule.ID || again.Score != first.Score {
			t.Fatalf("iteration %d: match diverged (%+v vs %+v)", i, again, first)
		}
	}
}

func TestMatchEmptyInputs(t *testing.T) {
	if _, ok := Match(context.Background(), "", makeSnapshot(makeMatchRule(1, 50, "库存"))); ok {
		t.Error("empty query must not match")
	}
	if _, ok := Match(context.Background(), "库存", nil); ok {
		t.Error("nil snapshot must not match")
	}
}
