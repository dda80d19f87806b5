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

import "testing"

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims outer whitespace", "  查询库存  ", "查询库存"},
		{"collapses inner whitespace", "查询 \t 库存", "查询 库存"},
		{"strips filler punctuation", "查询库存。！？", "查询库存"},
		{"keeps quotes for literal extraction", `查询“聚龙”的库存`, `查询“聚龙”的库存`},
		{"mixed", "  库存，查询！  ", "库存查询"},
		{"whitespace only", "   \t\n ", ""},
		{"punctuation only", "。！？", ""},
		{"no case folding", "Memo查询", "Memo查询"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeQuery(tt.in); got != tt.want {
				t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
