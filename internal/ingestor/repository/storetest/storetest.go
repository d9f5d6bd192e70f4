// Package storetest provides an in-memory SQLite store with the same
// tables as the postgres migrations, for tests.
package storetest

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Array columns are TEXT here; pq.StringArray round-trips through its
// "{a,b}" literal form.
var schema = []string{
	`CREATE TABLE insider_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filing_id TEXT NOT NULL UNIQUE,
		fingerprint TEXT NOT NULL,
		ticker TEXT NOT NULL,
		company_name TEXT NOT NULL DEFAULT '',
		trader_name TEXT NOT NULL,
		trader_title TEXT NOT NULL DEFAULT '',
		trade_type TEXT NOT NULL,
		signal_type TEXT NOT NULL,
		shares INTEGER NOT NULL,
		price_per_share NUMERIC NOT NULL DEFAULT 0,
		total_value NUMERIC NOT NULL DEFAULT 0,
		trade_date DATETIME NOT NULL,
		filed_date DATETIME,
		source_name TEXT NOT NULL,
		source_url TEXT NOT NULL DEFAULT '',
		confidence INTEGER NOT NULL,
		verification_status TEXT NOT NULL,
		verification_notes TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE INDEX idx_insider_trades_fingerprint ON insider_trades (fingerprint)`,
	`CREATE TABLE blocked_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filing_id TEXT NOT NULL UNIQUE,
		source_name TEXT NOT NULL,
		ticker TEXT NOT NULL DEFAULT '',
		trader_name TEXT NOT NULL DEFAULT '',
		company_name TEXT NOT NULL DEFAULT '',
		reasons TEXT NOT NULL DEFAULT '{}',
		payload TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE ingestion_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		source_name TEXT NOT NULL,
		"trigger" TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		duplicates INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		invalid INTEGER NOT NULL DEFAULT 0,
		blocked INTEGER NOT NULL DEFAULT 0,
		filtered INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		total_value_usd NUMERIC NOT NULL DEFAULT 0,
		error_message TEXT,
		summary TEXT,
		started_at DATETIME NOT NULL,
		completed_at DATETIME
	)`,
}

// NewDB opens a private in-memory database with the store schema.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// Every connection to ":memory:" is a new database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
