package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			current REAL NOT NULL,
			threshold REAL NOT NULL,
			status TEXT NOT NULL,
			ts DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS history_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL,
			message_count INTEGER NOT NULL,
			error_count INTEGER NOT NULL,
			active_users INTEGER NOT NULL,
			memory_used_bytes INTEGER NOT NULL,
			cpu_pct REAL NOT NULL,
			snapshot_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS monitoring_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			reason TEXT NOT NULL,
			ts DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_type_ts ON alerts(type, ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_history_samples_ts ON history_samples(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_monitoring_events_ts ON monitoring_events(ts);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}
