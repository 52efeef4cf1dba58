// Package sqlite loads timetable feeds into SQLite dimension tables.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/username/timetable/internal/calendar"
	"github.com/username/timetable/internal/feed"

	_ "modernc.org/sqlite"
)

const runsSchema = `
CREATE TABLE IF NOT EXISTS feed_runs (
	run_id TEXT PRIMARY KEY,
	feed TEXT NOT NULL,
	row_count INTEGER NOT NULL,
	started_at_utc TEXT NOT NULL,
	finished_at_utc TEXT NOT NULL
);
`

// Store owns one SQLite database holding any number of dimension tables.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir store dir: %w", err)
		}
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}
	if _, err := db.Exec(runsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create feed_runs: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Count returns the number of rows stored for schema.
func (s *Store) Count(ctx context.Context, schema feed.Schema) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+schema.Name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", schema.Name, err)
	}
	return n, nil
}

// LastRun returns the most recent run recorded for schema.
func (s *Store) LastRun(ctx context.Context, schema feed.Schema) (id uuid.UUID, rows int, ok bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx, `
SELECT run_id, row_count FROM feed_runs WHERE feed=? ORDER BY finished_at_utc DESC, rowid DESC LIMIT 1`,
		schema.Name).Scan(&raw, &rows)
	if err == sql.ErrNoRows {
		return uuid.Nil, 0, false, nil
	}
	if err != nil {
		return uuid.Nil, 0, false, err
	}
	id, err = uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, 0, false, fmt.Errorf("corrupt run id %q: %w", raw, err)
	}
	return id, rows, true, nil
}

// Sink returns a feed.Sink upserting schema rows by uid. Rows are committed
// every batchSize rows; Close commits the rest and records the run in
// feed_runs, Abort rolls back the open batch. Batches already committed by a
// failed run stay in place; reloading them is idempotent.
func (s *Store) Sink(ctx context.Context, schema feed.Schema, runID uuid.UUID, batchSize int) (feed.Sink, error) {
	if batchSize <= 0 {
		batchSize = feed.DefaultBatchSize
	}
	ddl, err := createTable(schema)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", schema.Name, err)
	}
	return &tableSink{
		ctx:       ctx,
		store:     s,
		schema:    schema,
		runID:     runID,
		batchSize: batchSize,
		insert:    upsertStatement(schema),
		started:   time.Now().UTC(),
	}, nil
}

type tableSink struct {
	ctx       context.Context
	store     *Store
	schema    feed.Schema
	runID     uuid.UUID
	batchSize int
	insert    string
	started   time.Time

	tx      *sql.Tx
	stmt    *sql.Stmt
	pending int
	rows    int
}

func (t *tableSink) begin() error {
	tx, err := t.store.db.BeginTx(t.ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(t.ctx, t.insert)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	t.tx, t.stmt = tx, stmt
	return nil
}

func (t *tableSink) commit() error {
	if t.tx == nil {
		return nil
	}
	_ = t.stmt.Close()
	err := t.tx.Commit()
	t.tx, t.stmt = nil, nil
	if err != nil {
		return fmt.Errorf("failed to commit %s batch: %w", t.schema.Name, err)
	}
	t.store.logger.Debug("Committed batch",
		zap.String("table", t.schema.Name),
		zap.Int("rows", t.pending))
	t.pending = 0
	return nil
}

func (t *tableSink) Write(values []any) error {
	if len(values) != len(t.schema.Columns) {
		return fmt.Errorf("%s: got %d values for %d columns", t.schema.Name, len(values), len(t.schema.Columns))
	}
	if t.tx == nil {
		if err := t.begin(); err != nil {
			return fmt.Errorf("failed to begin %s batch: %w", t.schema.Name, err)
		}
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = sqlValue(v)
	}
	if _, err := t.stmt.ExecContext(t.ctx, args...); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", t.schema.Name, err)
	}
	t.pending++
	t.rows++
	if t.pending >= t.batchSize {
		return t.commit()
	}
	return nil
}

func (t *tableSink) Close() error {
	if err := t.commit(); err != nil {
		return err
	}
	_, err := t.store.db.ExecContext(t.ctx, `
INSERT INTO feed_runs(run_id, feed, row_count, started_at_utc, finished_at_utc) VALUES (?, ?, ?, ?, ?)`,
		t.runID.String(), t.schema.Name, t.rows,
		t.started.Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	t.store.logger.Info("Feed loaded",
		zap.String("table", t.schema.Name),
		zap.String("run_id", t.runID.String()),
		zap.Int("rows", t.rows))
	return nil
}

func (t *tableSink) Abort() error {
	if t.tx == nil {
		return nil
	}
	_ = t.stmt.Close()
	err := t.tx.Rollback()
	t.tx, t.stmt = nil, nil
	return err
}

func createTable(schema feed.Schema) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", schema.Name)
	for i, c := range schema.Columns {
		var typ string
		switch c.Type {
		case feed.TypeInt32, feed.TypeBool:
			typ = "INTEGER NOT NULL"
		case feed.TypeDate:
			typ = "TEXT NOT NULL"
		default:
			return "", fmt.Errorf("column %s: unsupported type %s", c.Name, c.Type)
		}
		if c.Name == "uid" {
			typ = "INTEGER PRIMARY KEY"
		}
		sep := ","
		if i == len(schema.Columns)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "\t%s %s%s\n", c.Name, typ, sep)
	}
	b.WriteString(");")
	return b.String(), nil
}

func upsertStatement(schema feed.Schema) string {
	names := schema.Names()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	var updates []string
	for _, n := range names {
		if n != "uid" {
			updates = append(updates, fmt.Sprintf("%s=excluded.%s", n, n))
		}
	}
	return fmt.Sprintf("INSERT INTO %s(%s) VALUES (%s)\nON CONFLICT(uid) DO UPDATE SET %s",
		schema.Name, strings.Join(names, ", "), placeholders, strings.Join(updates, ", "))
}

func sqlValue(v any) any {
	switch x := v.(type) {
	case calendar.Date:
		return x.String()
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return v
	}
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serializes batches.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}
