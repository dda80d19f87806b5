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
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Rule Library
// =============================================================================

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// ruleFile is the YAML document shape: a single top-level rules list.
type ruleFile struct {
	Rules []IntentRule `yaml:"rules"`
}

// YAMLSource loads the rule library from a YAML file, falling back to the
// embedded default library when no path is configured.
//
// # Description
//
// The file holds a top-level "rules" list of IntentRule documents. The
// source performs no validation — the Store validates and partitions on
// load so rejections are reported uniformly regardless of source.
//
// # Thread Safety
//
// Safe for concurrent use (stateless reads).
type YAMLSource struct {
	// Path is the rule file location. Empty means the embedded defaults.
	Path string
}

// NewYAMLSource creates a YAML rule source for the given path. An empty path
// selects the embedded default library.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{Path: path}
}

// LoadRules reads and parses the rule file.
func (s *YAMLSource) LoadRules(_ context.Context) ([]IntentRule, error) {
	raw := defaultRulesYAML
	if s.Path != "" {
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("reading rule file %s: %w", s.Path, err)
		}
		raw = data
	}

	var doc ruleFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing rule file: %w", err)
	}
	return doc.Rules, nil
}

// Describe names the source for logging.
func (s *YAMLSource) Describe() string {
	if s.Path == "" {
		return "embedded default rules"
	}
	return "yaml:" + s.Path
}
