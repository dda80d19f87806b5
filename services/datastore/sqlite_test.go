// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datastore

import (
	"context"
	"fmt"
	"testing"

	"github.com/qualisight/qualisight/services/inspect/engine"
	"github.com/qualisight/qualisight/services/inspect/rules"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.SeedSampleData(context.Background()); err != nil {
		t.Fatalf("SeedSampleData: %v", err)
	}
	return store
}

func TestSeedSampleDataIsIdempotent(t *testing.T) {
	store := openTestStore(t)

	if err := store.SeedSampleData(context.Background()); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	var n int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM inventory").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 6 {
		t.Errorf("inventory rows = %d, want 6 (seed must not duplicate)", n)
	}
}

func TestExecuteSupplierInventoryTemplate(t *testing.T) {
	store := openTestStore(t)
	exec := engine.NewExecutor(store.DB(), nil, engine.ExecutorConfig{}, nil)

	rule := rules.IntentRule{
		ID:           2,
		Name:         "供应商库存查询",
		TriggerWords: []string{"供应商"},
		ActionType:   rules.ActionTemplateQuery,
		ActionTarget: "SELECT supplier AS supplier, material AS material, quantity AS quantity, status AS status, inbound_time AS inbound_time FROM inventory WHERE supplier LIKE '%' || ? || '%' ORDER BY inbound_time DESC",
		Parameters:   []rules.Parameter{{Name: "supplier", Type: "supplier"}},
		ResultFields: []rules.ResultField{
			{Display: "供应商", Source: "supplier", Type: rules.FieldString},
			{Display: "物料", Source: "material", Type: rules.FieldString},
			{Display: "数量", Source: "quantity", Type: rules.FieldNumber},
			{Display: "状态", Source: "status", Type: rules.FieldString},
			{Display: "入库时间", Source: "inbound_time", Type: rules.FieldDate},
		},
		Status: rules.StatusActive,
	}
	params := engine.ExtractedParameters{Values: []engine.ParamValue{
		{Name: "supplier", Type: "supplier", Value: "聚龙"},
	}}

	result, err := exec.Execute(context.Background(), &rule, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("rows = %d, want 3 聚龙 batches", len(result.Rows))
	}
	if result.Truncated {
		t.Error("unexpected truncation")
	}
	// ORDER BY inbound_time DESC: newest batch first.
	if result.Rows[0]["material"] != "电解液" {
		t.Errorf("row 0 material = %v, want 电解液", result.Rows[0]["material"])
	}

	table := engine.NormalizeRows(&rule, result.Rows)
	if table[0]["供应商"] != "聚龙" {
		t.Errorf("normalized row = %v", table[0])
	}
	if table[0]["入库时间"] != "2026-08-15 10:40:00" {
		t.Errorf("入库时间 = %v", table[0]["入库时间"])
	}
}

func TestExecutePassRateAggregateTemplate(t *testing.T) {
	store := openTestStore(t)
	exec := engine.NewExecutor(store.DB(), nil, engine.ExecutorConfig{}, nil)

	rule := rules.IntentRule{
		ID:           4,
		Name:         "供应商合格率",
		TriggerWords: []string{"合格率"},
		ActionType:   rules.ActionTemplateQuery,
		ActionTarget: "SELECT supplier AS supplier, AVG(pass_rate) AS pass_rate, COUNT(*) AS tests FROM lab_tests GROUP BY supplier ORDER BY pass_rate DESC",
		ResultFields: []rules.ResultField{
			{Display: "供应商", Source: "supplier", Type: rules.FieldString},
			{Display: "平均合格率", Source: "pass_rate", Type: rules.FieldRate},
			{Display: "检验次数", Source: "tests", Type: rules.FieldNumber},
		},
		Status: rules.StatusActive,
	}

	result, err := exec.Execute(context.Background(), &rule, engine.ExtractedParameters{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("rows = %d, want 3 suppliers", len(result.Rows))
	}

	table := engine.NormalizeRows(&rule, result.Rows)
	for _, row := range table {
		rate, ok := row["平均合格率"].(string)
		if !ok || len(rate) == 0 || rate[len(rate)-1] != '%' {
			t.Errorf("rate = %v, want percentage string", row["平均合格率"])
		}
	}
	// 宁德时代 has a single 0.978 test.
	for _, row := range table {
		if row["供应商"] == "宁德时代" && row["平均合格率"] != "97.8%" {
			t.Errorf("宁德时代 rate = %v, want 97.8%%", row["平均合格率"])
		}
	}
}

func TestExecuteRowCapTruncates(t *testing.T) {
	store := openTestStore(t)

	// Grow the inventory past the cap.
	for i := 0; i < 10; i++ {
		if _, err := store.DB().Exec(
			"INSERT INTO inventory (supplier, material, batch_no, quantity, status, inbound_time) VALUES (?, ?, ?, ?, ?, ?)",
			"聚龙", "正极材料", fmt.Sprintf("B2026-EXTRA-%d", i), 100, "合格", "2026-08-16 00:00:00"); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	exec := engine.NewExecutor(store.DB(), nil, engine.ExecutorConfig{RowCap: 5}, nil)
	rule := rules.IntentRule{
		ID:           1,
		Name:         "库存总览",
		TriggerWords: []string{"库存"},
		ActionType:   rules.ActionTemplateQuery,
		ActionTarget: "SELECT supplier AS supplier, status AS status FROM inventory ORDER BY inbound_time DESC",
		ResultFields: []rules.ResultField{
			{Display: "供应商", Source: "supplier", Type: rules.FieldString},
			{Display: "状态", Source: "status", Type: rules.FieldString},
		},
		Status: rules.StatusActive,
	}

	result, err := exec.Execute(context.Background(), &rule, engine.ExtractedParameters{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Rows) != 5 || !result.Truncated {
		t.Errorf("rows=%d truncated=%v, want 5/true", len(result.Rows), result.Truncated)
	}
}

// Every rule in the embedded default library must execute against the
// bootstrap schema and return rows from the seeded fixtures. Load-time
// validation alone cannot catch a template naming a column the schema
// does not create.
func TestEmbeddedRuleLibraryRunsAgainstSchema(t *testing.T) {
	store := openTestStore(t)
	exec := engine.NewExecutor(store.DB(), NewMemoryDatasets(), engine.ExecutorConfig{}, nil)

	loaded, err := rules.NewYAMLSource("").LoadRules(context.Background())
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(loaded) == 0 {
		t.Fatal("embedded default library is empty")
	}

	// One known value per parameter type, present in the seed fixtures.
	fixtures := map[string]string{
		"supplier": "聚龙",
		"material": "正极材料",
		"factory":  "一号工厂",
		"status":   "不合格",
	}

	for i := range loaded {
		rule := &loaded[i]
		if rule.Status != rules.StatusActive {
			continue
		}

		var params engine.ExtractedParameters
		for _, p := range rule.Parameters {
			value, ok := fixtures[p.Type]
			if !ok {
				t.Fatalf("rule %d (%s): no fixture value for parameter type %q", rule.ID, rule.Name, p.Type)
			}
			params.Values = append(params.Values, engine.ParamValue{
				Name:  p.Name,
				Type:  p.Type,
				Value: value,
			})
		}

		result, err := exec.Execute(context.Background(), rule, params)
		if err != nil {
			t.Errorf("rule %d (%s): %v", rule.ID, rule.Name, err)
			continue
		}
		if len(result.Rows) == 0 {
			t.Errorf("rule %d (%s): no rows from the seeded fixtures", rule.ID, rule.Name)
			continue
		}

		// Every declared display column must be fed by a real source column.
		table := engine.NormalizeRows(rule, result.Rows)
		for _, field := range rule.ResultFields {
			if _, ok := result.Rows[0][field.Source]; !ok {
				t.Errorf("rule %d (%s): action does not produce source column %q for %q",
					rule.ID, rule.Name, field.Source, field.Display)
			}
			if _, ok := table[0][field.Display]; !ok {
				t.Errorf("rule %d (%s): normalized row missing display column %q", rule.ID, rule.Name, field.Display)
			}
		}
	}
}

func TestSQLSourceRoundTrip(t *testing.T) {
	store := openTestStore(t)

	// The template itself is bound as a value so its ? placeholder is not
	// mistaken for a bind marker of the insert.
	template := "SELECT supplier AS supplier FROM inventory WHERE supplier LIKE '%' || ? || '%'"
	if _, err := store.DB().Exec(`
		INSERT INTO intent_rules (id, name, description, priority, action_type, action_target,
			trigger_words_json, parameters_json, result_fields_json, status)
		VALUES (1, '供应商库存查询', '按供应商查询库存', 100, 'TEMPLATE_QUERY', ?,
			'["供应商","聚龙"]',
			'[{"name":"supplier","type":"supplier"}]',
			'[{"display":"供应商","source":"supplier","type":"string"}]',
			'active')`, template); err != nil {
		t.Fatalf("insert rule: %v", err)
	}

	src := rules.NewSQLSource(store.DB())
	loaded, err := src.LoadRules(context.Background())
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("rules = %d, want 1", len(loaded))
	}
	r := loaded[0]
	if r.Name != "供应商库存查询" || len(r.TriggerWords) != 2 || len(r.Parameters) != 1 {
		t.Errorf("loaded rule = %+v", r)
	}
	if rules.CountPlaceholders(r.ActionTarget) != 1 {
		t.Errorf("placeholders = %d, want 1", rules.CountPlaceholders(r.ActionTarget))
	}
	if v := rules.ValidateRule(&r, 1); !v.OK {
		t.Errorf("round-tripped rule failed validation: %s", v.Reason)
	}
}

func TestMemoryDatasets(t *testing.T) {
	m := NewMemoryDatasets()

	standards, ok := m.Dataset("quality_standards")
	if !ok || len(standards) == 0 {
		t.Fatal("quality_standards dataset missing")
	}
	for i, row := range standards {
		if row["item"] == "" || row["standard"] == "" {
			t.Errorf("row %d incomplete: %v", i, row)
		}
	}

	if _, ok := m.Dataset("does_not_exist"); ok {
		t.Error("unknown dataset must report !ok")
	}

	if len(m.Names()) < 2 {
		t.Errorf("names = %v, want at least 2 datasets", m.Names())
	}
}
