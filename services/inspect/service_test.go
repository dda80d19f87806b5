// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inspect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qualisight/qualisight/services/inspect/engine"
	"github.com/qualisight/qualisight/services/inspect/rules"
)

// stubRuleSource feeds the store a fixed rule set.
type stubRuleSource struct {
	rules []rules.IntentRule
}

func (s *stubRuleSource) LoadRules(ctx context.Context) ([]rules.IntentRule, error) {
	return s.rules, nil
}

func (s *stubRuleSource) Describe() string { return "stub" }

// stubServiceDicts provides the supplier vocabulary for extraction.
type stubServiceDicts struct{}

func (stubServiceDicts) Entries(kind string) []string {
	if kind == "supplier" {
		return []string{"聚龙", "比亚迪"}
	}
	return nil
}

// stubServiceDatasets serves one memory dataset.
type stubServiceDatasets struct{}

func (stubServiceDatasets) Dataset(name string) ([]map[string]any, bool) {
	if name == "quality_standards" {
		return []map[string]any{
			{"item": "外观检验", "standard": "GB/T 2828.1"},
		}, true
	}
	return nil, false
}

func testServiceRules() []rules.IntentRule {
	return []rules.IntentRule{
		{
			ID:           1,
			Name:         "质检标准速查",
			Description:  "常用质检标准",
			TriggerWords: []string{"标准", "质检标准"},
			Priority:     60,
			ActionType:   rules.ActionMemorySource,
			ActionTarget: "quality_standards",
			ResultFields: []rules.ResultField{
				{Display: "检验项目", Source: "item", Type: rules.FieldString},
				{Display: "标准号", Source: "standard", Type: rules.FieldString},
			},
			Status: rules.StatusActive,
		},
		{
			ID:           2,
			Name:         "供应商库存查询",
			Description:  "按供应商查询库存记录",
			TriggerWords: []string{"供应商", "库存"},
			Priority:     100,
			ActionType:   rules.ActionTemplateQuery,
			ActionTarget: "SELECT supplier AS supplier FROM inventory WHERE supplier LIKE '%' || ? || '%'",
			Parameters: []rules.Parameter{
				{Name: "supplier", Type: "supplier", Description: "供应商名称"},
			},
			ResultFields: []rules.ResultField{
				{Display: "供应商", Source: "supplier", Type: rules.FieldString},
			},
			Status: rules.StatusActive,
		},
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := rules.NewStore(&stubRuleSource{rules: testServiceRules()}, 1, nil)
	require.NoError(t, store.Load(context.Background()))

	extractor := engine.NewExtractor(stubServiceDicts{}, nil)
	// No QueryRunner: template-rule tests in this package go through the
	// unresolved-parameter path, which refuses before touching the store.
	executor := engine.NewExecutor(nil, stubServiceDatasets{}, engine.ExecutorConfig{}, nil)
	return NewService(store, extractor, executor, nil, nil)
}

func TestAnswerMemorySourceSuccess(t *testing.T) {
	svc := newTestService(t)

	env := svc.Answer(context.Background(), "查一下质检标准")
	require.NotNil(t, env)
	assert.True(t, env.Success)
	require.NotNil(t, env.MatchedRule)
	assert.Equal(t, int64(1), env.MatchedRule.ID)
	require.Len(t, env.Data.TableData, 1)
	assert.Equal(t, "外观检验", env.Data.TableData[0]["检验项目"])
	assert.Equal(t, 1, env.Metadata.RecordCount)
	assert.Greater(t, env.Metadata.Confidence, 0.0)
}

func TestAnswerNoMatchIsWellFormed(t *testing.T) {
	svc := newTestService(t)

	env := svc.Answer(context.Background(), "今天天气怎么样")
	require.NotNil(t, env)
	assert.True(t, env.Success, "no-match is a normal outcome")
	assert.Nil(t, env.MatchedRule)
	assert.NotNil(t, env.Data.TableData)
	assert.Empty(t, env.Data.TableData)
	assert.Contains(t, env.Reply, "查询聚龙供应商的库存")
}

func TestAnswerUnresolvedParameterAsksForClarification(t *testing.T) {
	svc := newTestService(t)

	// Matches the supplier rule but names no known supplier.
	env := svc.Answer(context.Background(), "查询供应商库存")
	require.NotNil(t, env)
	assert.False(t, env.Success)
	assert.Contains(t, env.Reply, "供应商名称")
	assert.Empty(t, env.Data.TableData)
}

func TestAnswerBlankQuery(t *testing.T) {
	svc := newTestService(t)

	env := svc.Answer(context.Background(), "  。！  ")
	require.NotNil(t, env)
	assert.True(t, env.Success)
	assert.Nil(t, env.MatchedRule)
}

func TestReloadReportsSnapshot(t *testing.T) {
	svc := newTestService(t)

	snap, err := svc.Reload(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, snap.Active, 2)
}
