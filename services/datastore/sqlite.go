// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datastore owns the backing SQLite database that query templates
// execute against, plus the in-memory reference datasets for rules that
// answer from fixed knowledge instead of the database.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the inspection database.
//
// # Thread Safety
//
// Safe for concurrent use; *sql.DB manages its own pooling. WAL mode lets
// template reads proceed alongside ingestion writes.
type Store struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger
}

// Open creates or opens the inspection database at dir/inspection.db.
//
// # Inputs
//
//   - dir: Data directory, created if missing.
//   - logger: Logger. May be nil.
//
// # Outputs
//
//   - *Store: Ready store with schema applied. Caller owns Close.
//   - error: Non-nil when the directory or database cannot be opened.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dbPath := filepath.Join(dir, "inspection.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath, logger: logger}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	logger.Info("inspection database opened", slog.String("path", dbPath))
	return store, nil
}

// DB exposes the database handle for template execution and rule loading.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates the database schema.
func (s *Store) initSchema() error {
	schema := `
	-- Inbound inventory records
	CREATE TABLE IF NOT EXISTS inventory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		supplier TEXT NOT NULL,
		material TEXT NOT NULL,
		batch_no TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		inbound_time DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_inventory_supplier ON inventory(supplier);
	CREATE INDEX IF NOT EXISTS idx_inventory_status ON inventory(status);
	CREATE INDEX IF NOT EXISTS idx_inventory_inbound ON inventory(inbound_time);

	-- Laboratory test results
	CREATE TABLE IF NOT EXISTS lab_tests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		material TEXT NOT NULL,
		supplier TEXT NOT NULL,
		batch_no TEXT NOT NULL,
		test_item TEXT NOT NULL,
		result TEXT NOT NULL,
		pass_rate REAL,
		tested_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lab_tests_material ON lab_tests(material);
	CREATE INDEX IF NOT EXISTS idx_lab_tests_supplier ON lab_tests(supplier);

	-- Production order tracking
	CREATE TABLE IF NOT EXISTS production_tracking (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		factory TEXT NOT NULL,
		order_no TEXT NOT NULL,
		product TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_production_factory ON production_tracking(factory);

	-- Authored intent rules; list-valued fields are JSON columns
	CREATE TABLE IF NOT EXISTS intent_rules (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		category TEXT,
		priority INTEGER NOT NULL DEFAULT 0,
		action_type TEXT NOT NULL,
		action_target TEXT NOT NULL,
		trigger_words_json TEXT,
		synonyms_json TEXT,
		parameters_json TEXT,
		result_fields_json TEXT,
		summary_field TEXT,
		example_query TEXT,
		status TEXT NOT NULL DEFAULT 'active'
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// SeedSampleData inserts development fixtures when the inventory table is
// empty. Production deployments are fed by the ingestion pipeline and never
// hit the insert path.
func (s *Store) SeedSampleData(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM inventory").Scan(&n); err != nil {
		return fmt.Errorf("checking inventory: %w", err)
	}
	if n > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	inventory := [][]any{
		{"聚龙", "正极材料", "B20260810", 1200, "合格", "2026-08-10 09:15:00"},
		{"聚龙", "负极材料", "B20260812", 800, "待检", "2026-08-12 14:02:00"},
		{"聚龙", "电解液", "B20260815", 300, "不合格", "2026-08-15 10:40:00"},
		{"宁德时代", "隔膜", "B20260811", 2200, "合格", "2026-08-11 16:33:00"},
		{"比亚迪", "铜箔", "B20260813", 1500, "合格", "2026-08-13 08:50:00"},
		{"国轩高科", "铝箔", "B20260814", 950, "让步接收", "2026-08-14 11:25:00"},
	}
	for _, row := range inventory {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO inventory (supplier, material, batch_no, quantity, status, inbound_time) VALUES (?, ?, ?, ?, ?, ?)",
			row...); err != nil {
			return fmt.Errorf("seeding inventory: %w", err)
		}
	}

	labTests := [][]any{
		{"正极材料", "聚龙", "B20260810", "粒度分布", "合格", 0.985, "2026-08-10 15:00:00"},
		{"正极材料", "聚龙", "B20260810", "水分含量", "合格", 0.992, "2026-08-10 15:30:00"},
		{"电解液", "聚龙", "B20260815", "纯度检验", "不合格", 0.871, "2026-08-15 13:20:00"},
		{"隔膜", "宁德时代", "B20260811", "厚度均匀性", "合格", 0.978, "2026-08-11 17:10:00"},
		{"铜箔", "比亚迪", "B20260813", "抗拉强度", "合格", 0.963, "2026-08-13 10:05:00"},
	}
	for _, row := range labTests {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO lab_tests (material, supplier, batch_no, test_item, result, pass_rate, tested_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			row...); err != nil {
			return fmt.Errorf("seeding lab_tests: %w", err)
		}
	}

	production := [][]any{
		{"一号工厂", "PO-2026-0801", "动力电池包A", 0.85, "生产中", "2026-08-15 09:00:00"},
		{"一号工厂", "PO-2026-0802", "动力电池包B", 1.0, "已完成", "2026-08-14 18:00:00"},
		{"二号工厂", "PO-2026-0803", "储能模组C", 0.42, "生产中", "2026-08-15 11:30:00"},
		{"华东基地", "PO-2026-0804", "动力电池包A", 0.10, "待排产", "2026-08-15 08:00:00"},
	}
	for _, row := range production {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO production_tracking (factory, order_no, product, progress, status, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			row...); err != nil {
			return fmt.Errorf("seeding production_tracking: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed transaction: %w", err)
	}
	s.logger.Info("sample data seeded",
		slog.Int("inventory", len(inventory)),
		slog.Int("lab_tests", len(labTests)),
		slog.Int("production", len(production)),
	)
	return nil
}
