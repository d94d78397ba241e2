package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS readings (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		received_at TEXT NOT NULL,
		motor_temp REAL NOT NULL,
		ambient_temp REAL NOT NULL,
		vib_x REAL NOT NULL,
		vib_y REAL NOT NULL,
		vib_z REAL NOT NULL,
		volt_a REAL NOT NULL,
		volt_b REAL NOT NULL,
		volt_c REAL NOT NULL,
		curr_a REAL NOT NULL,
		curr_b REAL NOT NULL,
		curr_c REAL NOT NULL,
		extra TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_readings_received_at ON readings(received_at);
`

var sqliteDialect = dialect{
	name:        "sqlite",
	schema:      sqliteSchema,
	placeholder: func(int) string { return "?" },
	encodeTime: func(t time.Time) any {
		// Fixed-width so that lexical order matches time order.
		return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
	},
}

func NewSQLiteStore(log *slog.Logger, dbPath string) (*SQLStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := newSQLStore(log, db, sqliteDialect)
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}
