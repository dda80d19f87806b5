// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the embedded engine defaults and entity
// dictionaries. All configuration ships inside the binary; a deployment
// may override the engine limits with an external file of the same schema.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Engine Defaults
// =============================================================================

//go:embed engine_defaults.yaml
var defaultEngineConfigYAML []byte

// MaxYAMLFileSize caps config files read from disk.
const MaxYAMLFileSize = 1 << 20 // 1 MiB

// EngineConfig bounds query execution and rule loading.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type EngineConfig struct {
	// RowCap limits rows per query execution.
	RowCap int `yaml:"row_cap"`

	// QueryTimeout is the per-execution wall-clock budget.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// MaxConcurrentQueries bounds in-flight backing-store calls.
	MaxConcurrentQueries int64 `yaml:"max_concurrent_queries"`

	// MinTriggerRuneLen is the shortest trigger word accepted at rule load.
	MinTriggerRuneLen int `yaml:"min_trigger_rune_len"`

	// AnswerCacheTTL is the lifetime of cached answer envelopes.
	AnswerCacheTTL time.Duration `yaml:"answer_cache_ttl"`
}

// Engine config defaults, applied for missing or non-positive fields.
const (
	DefaultRowCap               = 100
	DefaultQueryTimeout         = 3 * time.Second
	DefaultMaxConcurrentQueries = 16
	DefaultMinTriggerRuneLen    = 1
	DefaultAnswerCacheTTL       = 5 * time.Minute
)

var (
	cachedEngineConfig *EngineConfig
	engineConfigOnce   sync.Once
	engineConfigErr    error
)

// LoadEngineConfig returns the engine configuration, loading the embedded
// defaults on first call and caching the result.
//
// # Outputs
//
//   - *EngineConfig: The loaded configuration. Never nil on success.
//   - error: Non-nil if parsing or validation fails.
//
// # Thread Safety
//
// Safe for concurrent use (uses sync.Once internally).
func LoadEngineConfig() (*EngineConfig, error) {
	engineConfigOnce.Do(func() {
		cachedEngineConfig, engineConfigErr = ParseEngineConfig(defaultEngineConfigYAML)
	})
	return cachedEngineConfig, engineConfigErr
}

// LoadEngineConfigFile reads an override file and parses it with the same
// schema and defaulting as the embedded configuration. Does not touch the
// cached embedded config.
func LoadEngineConfigFile(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading engine config %s: %w", path, err)
	}
	return ParseEngineConfig(data)
}

// ParseEngineConfig parses and validates engine configuration YAML.
//
// # Description
//
//	Parses the YAML and applies defaults for missing or non-positive
//	fields, so a partial override file only needs the keys it changes.
//
// # Inputs
//
//   - data: Raw YAML bytes. Must not be empty.
//
// # Outputs
//
//   - *EngineConfig: The validated configuration.
//   - error: Non-nil if parsing fails.
func ParseEngineConfig(data []byte) (*EngineConfig, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("ParseEngineConfig: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("ParseEngineConfig: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ParseEngineConfig: parsing YAML: %w", err)
	}

	if cfg.RowCap <= 0 {
		cfg.RowCap = DefaultRowCap
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.MaxConcurrentQueries <= 0 {
		cfg.MaxConcurrentQueries = DefaultMaxConcurrentQueries
	}
	if cfg.MinTriggerRuneLen <= 0 {
		cfg.MinTriggerRuneLen = DefaultMinTriggerRuneLen
	}
	if cfg.AnswerCacheTTL <= 0 {
		cfg.AnswerCacheTTL = DefaultAnswerCacheTTL
	}

	slog.Info("engine config loaded",
		slog.Int("row_cap", cfg.RowCap),
		slog.Duration("query_timeout", cfg.QueryTimeout),
		slog.Int64("max_concurrent_queries", cfg.MaxConcurrentQueries),
		slog.Int("min_trigger_rune_len", cfg.MinTriggerRuneLen),
		slog.Duration("answer_cache_ttl", cfg.AnswerCacheTTL),
	)

	return &cfg, nil
}

// ResetEngineConfig resets the cached config for testing.
func ResetEngineConfig() {
	engineConfigOnce = sync.Once{}
	cachedEngineConfig = nil
	engineConfigErr = nil
}
