package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "github.com/lib/pq"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS readings (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		received_at TIMESTAMPTZ NOT NULL,
		motor_temp DOUBLE PRECISION NOT NULL,
		ambient_temp DOUBLE PRECISION NOT NULL,
		vib_x DOUBLE PRECISION NOT NULL,
		vib_y DOUBLE PRECISION NOT NULL,
		vib_z DOUBLE PRECISION NOT NULL,
		volt_a DOUBLE PRECISION NOT NULL,
		volt_b DOUBLE PRECISION NOT NULL,
		volt_c DOUBLE PRECISION NOT NULL,
		curr_a DOUBLE PRECISION NOT NULL,
		curr_b DOUBLE PRECISION NOT NULL,
		curr_c DOUBLE PRECISION NOT NULL,
		extra JSONB NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_readings_received_at ON readings(received_at);
`

var postgresDialect = dialect{
	name:        "postgres",
	schema:      postgresSchema,
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	returning:   "RETURNING seq",
	encodeTime:  func(t time.Time) any { return t.UTC() },
}

func NewPostgresStore(log *slog.Logger, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := newSQLStore(log, db, postgresDialect)
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}
