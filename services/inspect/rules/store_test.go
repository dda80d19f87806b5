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
	"context"
	"errors"
	"testing"
)

// stubSource implements Source over a fixed rule slice.
type stubSource struct {
	rules []IntentRule
	err   error
}

func (s *stubSource) LoadRules(_ context.Context) ([]IntentRule, error) {
	return s.rules, s.err
}

func (s *stubSource) Describe() string { return "stub" }

func TestStoreLoadPartitionsActiveAndRejected(t *testing.T) {
	valid := makeTestRule(1)

	// One declared parameter, two template placeholders: must be rejected at
	// load time and never enter the active set.
	mismatched := makeTestRule(2)
	mismatched.ActionTarget = "SELECT supplier AS supplier FROM inventory WHERE supplier = ? AND factory = ?"

	inactive := makeTestRule(3)
	inactive.Status = StatusInactive

	store := NewStore(&stubSource{rules: []IntentRule{mismatched, valid, inactive}}, 0, nil)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	snap := store.Snapshot()
	if snap == nil {
		t.Fatal("expected snapshot after Load")
	}
	if len(snap.Active) != 1 || snap.Active[0].Rule.ID != 1 {
		t.Fatalf("expected only rule 1 active, got %d rules", len(snap.Active))
	}
	if len(snap.Rejected) != 1 || snap.Rejected[0].Rule.ID != 2 {
		t.Fatalf("expected rule 2 rejected, got %+v", snap.Rejected)
	}
	if snap.Rejected[0].Reason == "" {
		t.Error("rejected rule must carry a reason")
	}
}

func TestStoreSnapshotExpandsTriggersOnce(t *testing.T) {
	rule := makeTestRule(1)
	rule.TriggerWords = []string{"供应商"}
	rule.Synonyms = map[string][]string{"供应商": {"供货商", "厂商"}}

	store := NewStore(&stubSource{rules: []IntentRule{rule}}, 0, nil)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got := store.Snapshot().Active[0].ExpandedTriggers
	want := []string{"供货商", "供应商", "厂商"}
	if len(got) != len(want) {
		t.Fatalf("expanded triggers = %v, want %v", got, want)
	}
	set := make(map[string]bool, len(got))
	for _, w := range got {
		set[w] = true
	}
	for _, w := range want {
		if !set[w] {
			t.Errorf("missing expanded trigger %q", w)
		}
	}
}

func TestStoreFailedReloadKeepsPreviousSnapshot(t *testing.T) {
	src := &stubSource{rules: []IntentRule{makeTestRule(1)}}
	store := NewStore(src, 0, nil)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("initial Load failed: %v", err)
	}
	first := store.Snapshot()

	src.err = errors.New("backing store down")
	if err := store.Load(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	if store.Snapshot() != first {
		t.Error("failed reload must keep the previous snapshot published")
	}
}

func TestStoreReloadBumpsVersion(t *testing.T) {
	store := NewStore(&stubSource{rules: []IntentRule{makeTestRule(1)}}, 0, nil)
	ctx := context.Background()
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	v1 := store.Snapshot().Version
	if err := store.Load(ctx); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if v2 := store.Snapshot().Version; v2 == v1 {
		t.Errorf("expected new version after reload, still %s", v2)
	}
}

func TestYAMLSourceEmbeddedDefaultsLoadCleanly(t *testing.T) {
	src := NewYAMLSource("")
	loaded, err := src.LoadRules(context.Background())
	if err != nil {
		t.Fatalf("embedded defaults failed to load: %v", err)
	}
	if len(loaded) == 0 {
		t.Fatal("embedded default library is empty")
	}

	store := NewStore(src, 0, nil)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	snap := store.Snapshot()
	if len(snap.Rejected) != 0 {
		t.Fatalf("embedded default rules must all validate, rejected: %+v", snap.Rejected)
	}
	if len(snap.Active) != len(loaded) {
		t.Errorf("expected all %d default rules active, got %d", len(loaded), len(snap.Active))
	}
}
