// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Entity Dictionaries
// =============================================================================

//go:embed entity_dictionaries.yaml
var defaultDictionariesYAML []byte

// EntityDictionaries maps parameter types (supplier, material, factory,
// status) to the ordered list of known entity names for that type. The
// extractor scans entries in order, so the YAML puts more specific names
// before names they contain.
//
// Implements the engine's DictionaryProvider boundary.
//
// # Thread Safety
//
// Safe for concurrent use after initialization (immutable after load).
type EntityDictionaries map[string][]string

// Entries returns the ordered entity names for a parameter type. A nil or
// unknown type yields nil, which the extractor treats as no dictionary.
func (d EntityDictionaries) Entries(kind string) []string {
	return d[kind]
}

var (
	cachedDictionaries EntityDictionaries
	dictionariesOnce   sync.Once
	dictionariesErr    error
)

// LoadEntityDictionaries loads and caches the entity dictionaries from the
// embedded YAML. Returns the cached result on subsequent calls.
//
// # Outputs
//
//   - EntityDictionaries: The loaded mapping. Never nil on success.
//   - error: Non-nil if YAML parsing fails.
//
// # Thread Safety
//
// Safe for concurrent use (uses sync.Once internally).
func LoadEntityDictionaries() (EntityDictionaries, error) {
	dictionariesOnce.Do(func() {
		var raw map[string][]string
		if err := yaml.Unmarshal(defaultDictionariesYAML, &raw); err != nil {
			dictionariesErr = fmt.Errorf("parsing entity_dictionaries.yaml: %w", err)
			return
		}
		cachedDictionaries = raw
		total := 0
		for _, entries := range raw {
			total += len(entries)
		}
		slog.Info("entity dictionaries loaded",
			slog.Int("types", len(raw)),
			slog.Int("entries", total),
		)
	})
	return cachedDictionaries, dictionariesErr
}

// MustLoadEntityDictionaries loads the dictionaries or returns an empty map
// on error. Extraction still works without dictionaries, falling back to
// quoted literals and safe defaults, so loading failure degrades rather
// than stops the system.
func MustLoadEntityDictionaries() EntityDictionaries {
	dicts, err := LoadEntityDictionaries()
	if err != nil {
		slog.Warn("entity dictionary loading failed, continuing without dictionaries",
			slog.String("error", err.Error()),
		)
		return make(EntityDictionaries)
	}
	return dicts
}
