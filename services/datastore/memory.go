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

// MemoryDatasets serves the named in-memory datasets that MEMORY_SOURCE
// rules answer from. These are curated reference tables (inspection
// standards, procedure summaries) that change with releases, not with
// production data, so they ship in the binary.
//
// Implements the engine's DatasetProvider boundary.
//
// # Thread Safety
//
// Safe for concurrent use after construction (immutable). The executor
// copies rows before returning them, so callers can never mutate the
// shared data.
type MemoryDatasets struct {
	data map[string][]map[string]any
}

// NewMemoryDatasets builds the built-in dataset registry.
func NewMemoryDatasets() *MemoryDatasets {
	return &MemoryDatasets{
		data: map[string][]map[string]any{
			"quality_standards": {
				{"item": "外观检验", "standard": "GB/T 2828.1", "requirement": "表面无划痕、无变形、标识清晰", "sampling": "AQL 1.0"},
				{"item": "尺寸检验", "standard": "GB/T 1804", "requirement": "公差等级 m 级", "sampling": "每批抽检 5 件"},
				{"item": "粒度分布", "standard": "GB/T 19077", "requirement": "D50 在规格书范围内", "sampling": "每批次 1 次"},
				{"item": "水分含量", "standard": "GB/T 6283", "requirement": "≤ 200ppm", "sampling": "每批次 1 次"},
				{"item": "纯度检验", "standard": "企标 QJ-DJY-003", "requirement": "主含量 ≥ 99.9%", "sampling": "每批次 1 次"},
				{"item": "厚度均匀性", "standard": "企标 QJ-GM-011", "requirement": "偏差 ≤ ±1.5%", "sampling": "连续 10 点测量"},
				{"item": "抗拉强度", "standard": "GB/T 228.1", "requirement": "≥ 300MPa", "sampling": "每批抽检 3 件"},
			},
			"inspection_process": {
				{"step": "1", "name": "来料登记", "owner": "仓库", "note": "录入供应商、物料、批次号"},
				{"step": "2", "name": "抽样送检", "owner": "质检员", "note": "按检验标准抽样"},
				{"step": "3", "name": "实验室检验", "owner": "实验室", "note": "出具检验报告"},
				{"step": "4", "name": "判定处置", "owner": "质量工程师", "note": "合格入库 / 不合格评审"},
			},
		},
	}
}

// Dataset returns the rows for a named dataset and whether it exists.
func (m *MemoryDatasets) Dataset(name string) ([]map[string]any, bool) {
	rows, ok := m.data[name]
	return rows, ok
}

// Names lists the registered dataset names, for diagnostics.
func (m *MemoryDatasets) Names() []string {
	names := make([]string, 0, len(m.data))
	for name := range m.data {
		names = append(names, name)
	}
	return names
}
