package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/speedwagon-io/motordiag/internal/lib/logger/handlers/slogdiscard"
	"github.com/speedwagon-io/motordiag/internal/model"
)

var readingColumns = []string{
	"seq", "id", "received_at",
	"motor_temp", "ambient_temp", "vib_x", "vib_y", "vib_z",
	"volt_a", "volt_b", "volt_c", "curr_a", "curr_b", "curr_c",
	"extra",
}

func testReading() *model.Reading {
	return model.NewReading(model.FeatureVector{61, 24, 1, 2, 3, 230, 231, 229, 10, 11, 12}, map[string]any{"motor_id": "M-1"})
}

func insertArgs(r *model.Reading, extra string) []driver.Value {
	args := []driver.Value{r.ID, sqlmock.AnyArg()}
	for _, v := range r.Features {
		args = append(args, v)
	}
	return append(args, extra)
}

func TestSQLiteInsertQuery(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := newSQLStore(slogdiscard.NewDiscardLogger(), db, sqliteDialect)
	want := "INSERT INTO readings (id, received_at, motor_temp, ambient_temp, vib_x, vib_y, vib_z, volt_a, volt_b, volt_c, curr_a, curr_b, curr_c, extra) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	if store.insertQuery != want {
		t.Fatalf("unexpected insert query:\n%s", store.insertQuery)
	}

	pg := newSQLStore(slogdiscard.NewDiscardLogger(), db, postgresDialect)
	if !regexp.MustCompile(`VALUES \(\$1, \$2, .*\$14\) RETURNING seq$`).MatchString(pg.insertQuery) {
		t.Fatalf("unexpected postgres insert query:\n%s", pg.insertQuery)
	}
}

func TestSQLiteInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := newSQLStore(slogdiscard.NewDiscardLogger(), db, sqliteDialect)
	r := testReading()

	mock.ExpectExec(regexp.QuoteMeta(store.insertQuery)).
		WithArgs(insertArgs(r, `{"motor_id":"M-1"}`)...).
		WillReturnResult(sqlmock.NewResult(7, 1))

	if err := store.Insert(context.Background(), r); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if r.Seq != 7 {
		t.Fatalf("expected seq 7, got %d", r.Seq)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLiteInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := newSQLStore(slogdiscard.NewDiscardLogger(), db, sqliteDialect)
	mock.ExpectExec("INSERT INTO readings").WillReturnError(errors.New("database is locked"))

	err = store.Insert(context.Background(), testReading())
	if !errors.Is(err, model.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestPostgresInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := newSQLStore(slogdiscard.NewDiscardLogger(), db, postgresDialect)
	r := testReading()
	r.Extra = nil

	mock.ExpectQuery(regexp.QuoteMeta(store.insertQuery)).
		WithArgs(insertArgs(r, "{}")...).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(42)))

	if err := store.Insert(context.Background(), r); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if r.Seq != 42 {
		t.Fatalf("expected seq 42, got %d", r.Seq)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := newSQLStore(slogdiscard.NewDiscardLogger(), db, sqliteDialect)
	rows := sqlmock.NewRows(readingColumns).AddRow(
		int64(3), "0b5e", "2026-10-18T10:00:00.000000000Z",
		61.0, 24.0, 1.0, 2.0, 3.0, 230.0, 231.0, 229.0, 10.0, 11.0, 12.0,
		[]byte(`{"motor_id":"M-1"}`),
	)
	mock.ExpectQuery(regexp.QuoteMeta(store.latestQuery)).WillReturnRows(rows)

	r, err := store.Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if r == nil || r.Seq != 3 || r.ID != "0b5e" {
		t.Fatalf("unexpected reading %+v", r)
	}
	if r.Features[model.MotorTemp] != 61 || r.Features[model.CurrC] != 12 {
		t.Fatalf("unexpected features %v", r.Features)
	}
	if !r.ReceivedAt.Equal(time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected received_at %v", r.ReceivedAt)
	}
	if r.Extra["motor_id"] != "M-1" {
		t.Fatalf("unexpected extra %v", r.Extra)
	}
}

func TestLatestPostgresTimestamp(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := newSQLStore(slogdiscard.NewDiscardLogger(), db, postgresDialect)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows(readingColumns).AddRow(
		int64(1), "a", ts,
		0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0,
		[]byte(`{}`),
	)
	mock.ExpectQuery("SELECT seq").WillReturnRows(rows)

	r, err := store.Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !r.ReceivedAt.Equal(ts) || r.Extra != nil {
		t.Fatalf("unexpected reading %+v", r)
	}
}

func TestLatestEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := newSQLStore(slogdiscard.NewDiscardLogger(), db, sqliteDialect)
	mock.ExpectQuery("SELECT seq").WillReturnRows(sqlmock.NewRows(readingColumns))

	r, err := store.Latest(context.Background())
	if err != nil || r != nil {
		t.Fatalf("expected nil reading and error, got %+v, %v", r, err)
	}
}

func TestLatestError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := newSQLStore(slogdiscard.NewDiscardLogger(), db, sqliteDialect)
	mock.ExpectQuery("SELECT seq").WillReturnError(errors.New("disk I/O error"))

	if _, err := store.Latest(context.Background()); !errors.Is(err, model.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestCountAndPrune(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := newSQLStore(slogdiscard.NewDiscardLogger(), db, postgresDialect)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM readings")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(9)))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM readings WHERE received_at < $1 AND seq < (SELECT MAX(seq) FROM readings)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := store.Count(context.Background())
	if err != nil || n != 9 {
		t.Fatalf("count = %d, %v", n, err)
	}
	pruned, err := store.Prune(context.Background(), 24*time.Hour)
	if err != nil || pruned != 5 {
		t.Fatalf("prune = %d, %v", pruned, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
