package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/speedwagon-io/motordiag/internal/lib/logger/sl"
	"github.com/speedwagon-io/motordiag/internal/model"
)

type dialect struct {
	name        string
	schema      string
	placeholder func(n int) string
	// returning is appended to INSERT for drivers without LastInsertId.
	returning  string
	encodeTime func(t time.Time) any
}

// SQLStore keeps readings in a single table; SQLite and PostgreSQL differ
// only in their dialect.
type SQLStore struct {
	log     *slog.Logger
	db      *sql.DB
	dialect dialect

	insertQuery string
	latestQuery string
}

var _ Store = (*SQLStore)(nil)

func newSQLStore(log *slog.Logger, db *sql.DB, d dialect) *SQLStore {
	cols := append([]string{"id", "received_at"}, model.FeatureNames[:]...)
	cols = append(cols, "extra")

	marks := make([]string, len(cols))
	for i := range marks {
		marks[i] = d.placeholder(i + 1)
	}

	insert := fmt.Sprintf("INSERT INTO readings (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(marks, ", "))
	if d.returning != "" {
		insert += " " + d.returning
	}

	return &SQLStore{
		log:         log,
		db:          db,
		dialect:     d,
		insertQuery: insert,
		latestQuery: fmt.Sprintf("SELECT seq, %s FROM readings ORDER BY seq DESC LIMIT 1", strings.Join(cols, ", ")),
	}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return err
	}
	s.log.Debug("schema migrated", slog.String("dialect", s.dialect.name))
	return nil
}

func (s *SQLStore) Insert(ctx context.Context, r *model.Reading) error {
	extra, err := r.ExtraJSON()
	if err != nil {
		return fmt.Errorf("%w: failed to marshal extra fields: %w", model.ErrStorage, err)
	}

	args := make([]any, 0, model.FeatureCount+3)
	args = append(args, r.ID, s.dialect.encodeTime(r.ReceivedAt))
	for _, v := range r.Features {
		args = append(args, v)
	}
	args = append(args, string(extra))

	if s.dialect.returning != "" {
		if err := s.db.QueryRowContext(ctx, s.insertQuery, args...).Scan(&r.Seq); err != nil {
			return fmt.Errorf("%w: failed to insert reading: %w", model.ErrStorage, err)
		}
	} else {
		res, err := s.db.ExecContext(ctx, s.insertQuery, args...)
		if err != nil {
			return fmt.Errorf("%w: failed to insert reading: %w", model.ErrStorage, err)
		}
		if r.Seq, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("%w: failed to read insert id: %w", model.ErrStorage, err)
		}
	}

	s.log.Debug("reading stored", slog.String("id", r.ID), slog.Int64("seq", r.Seq))
	return nil
}

func (s *SQLStore) Latest(ctx context.Context) (*model.Reading, error) {
	var (
		r          model.Reading
		receivedAt any
		extra      []byte
	)

	dest := []any{&r.Seq, &r.ID, &receivedAt}
	for i := range r.Features {
		dest = append(dest, &r.Features[i])
	}
	dest = append(dest, &extra)

	err := s.db.QueryRowContext(ctx, s.latestQuery).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch latest reading: %w", model.ErrStorage, err)
	}

	if r.ReceivedAt, err = parseTime(receivedAt); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", model.ErrStorage, r.ID, err)
	}
	if r.Extra, err = model.ExtraFromJSON(extra); err != nil {
		s.log.Error("failed to decode extra fields", slog.String("id", r.ID), sl.Err(err))
	}

	return &r, nil
}

func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM readings").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count readings: %w", model.ErrStorage, err)
	}
	return n, nil
}

func (s *SQLStore) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	query := fmt.Sprintf(
		"DELETE FROM readings WHERE received_at < %s AND seq < (SELECT MAX(seq) FROM readings)",
		s.dialect.placeholder(1),
	)

	res, err := s.db.ExecContext(ctx, query, s.dialect.encodeTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to prune readings: %w", model.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read pruned count: %w", model.ErrStorage, err)
	}
	return n, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(t))
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}
