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
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLSource loads the rule library from the intent_rules table written by
// the (out-of-scope) administration API.
//
// # Description
//
// List-valued rule fields (trigger words, synonyms, parameters, result
// fields) are stored as JSON columns alongside the scalar columns, matching
// how the administration API persists them. Rows are read in ID order for
// deterministic snapshot versions.
//
// # Thread Safety
//
// Safe for concurrent use; *sql.DB manages its own pooling.
type SQLSource struct {
	db *sql.DB
}

// NewSQLSource creates a rule source over the given database handle.
// The handle is owned by the caller.
func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

const selectRulesSQL = `
SELECT id, name, description, category, priority, action_type, action_target,
       trigger_words_json, synonyms_json, parameters_json, result_fields_json,
       summary_field, example_query, status
FROM intent_rules ORDER BY id`

// LoadRules reads every authored rule from the intent_rules table.
func (s *SQLSource) LoadRules(ctx context.Context) ([]IntentRule, error) {
	rows, err := s.db.QueryContext(ctx, selectRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("querying intent_rules: %w", err)
	}
	defer rows.Close()

	var out []IntentRule
	for rows.Next() {
		var (
			rule                                               IntentRule
			triggersJSON, synonymsJSON, paramsJSON, fieldsJSON sql.NullString
			description, category, summaryField, exampleQuery  sql.NullString
		)
		if err := rows.Scan(
			&rule.ID, &rule.Name, &description, &category, &rule.Priority,
			&rule.ActionType, &rule.ActionTarget,
			&triggersJSON, &synonymsJSON, &paramsJSON, &fieldsJSON,
			&summaryField, &exampleQuery, &rule.Status,
		); err != nil {
			return nil, fmt.Errorf("scanning intent_rules row: %w", err)
		}
		rule.Description = description.String
		rule.Category = category.String
		rule.SummaryField = summaryField.String
		rule.ExampleQuery = exampleQuery.String

		if err := decodeJSONColumn(triggersJSON, &rule.TriggerWords); err != nil {
			return nil, fmt.Errorf("rule %d trigger_words: %w", rule.ID, err)
		}
		if err := decodeJSONColumn(synonymsJSON, &rule.Synonyms); err != nil {
			return nil, fmt.Errorf("rule %d synonyms: %w", rule.ID, err)
		}
		if err := decodeJSONColumn(paramsJSON, &rule.Parameters); err != nil {
			return nil, fmt.Errorf("rule %d parameters: %w", rule.ID, err)
		}
		if err := decodeJSONColumn(fieldsJSON, &rule.ResultFields); err != nil {
			return nil, fmt.Errorf("rule %d result_fields: %w", rule.ID, err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating intent_rules: %w", err)
	}
	return out, nil
}

// Describe names the source for logging.
func (s *SQLSource) Describe() string {
	return "sql:intent_rules"
}

// decodeJSONColumn unmarshals a nullable JSON column into dst, leaving dst
// untouched for NULL or empty values.
func decodeJSONColumn(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}
