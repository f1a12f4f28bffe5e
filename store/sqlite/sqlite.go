/*
Package sqlite provides a SQLite-backed implementation of profit.Store.

PURPOSE:
  Durable Record Store. One row per plan identifier; the primary key on
  plan_id is what guarantees uniqueness, not application code.

KEY TABLES:
  profits: plan_id (PK), profit (decimal as TEXT), start_time (epoch ms),
           created_at, updated_at

UPSERT:
  INSERT ... ON CONFLICT(plan_id) DO UPDATE, followed by a read-back of the
  row, inside one SQL transaction. Callers never observe two rows for the
  same plan_id. created_at is kept from the first insert.

DECIMALS:
  profit is stored as the decimal's canonical string so values such as
  150.5 round-trip exactly (no float64 drift).

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and a single open connection so
  ":memory:" databases are shared by every caller. Racing upserts on the
  same plan_id resolve as last committed write wins.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/profit.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - profit/types.go: Store interface
  - profit/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/profit-engine/profit"
)

// Store implements profit.Store using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now profit.Clock
}

var _ profit.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for defaults and timestamps.
func WithClock(now profit.Clock) Option {
	return func(s *Store) { s.now = now }
}

// New creates a new SQLite store for the given DSN or path.
// Use ":memory:" for an in-memory database.
func New(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", buildDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	store := &Store{db: db, now: profit.SystemClock}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// buildDSN strips a URL scheme and appends the connection pragmas.
func buildDSN(dsn string) string {
	for _, prefix := range []string{"sqlite3://", "sqlite://"} {
		dsn = strings.TrimPrefix(dsn, prefix)
	}

	params := "_busy_timeout=5000"
	if !strings.Contains(dsn, ":memory:") && !strings.Contains(dsn, "mode=memory") {
		params += "&_journal_mode=WAL"
	}

	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profits (
		plan_id TEXT PRIMARY KEY,
		profit TEXT NOT NULL DEFAULT '0',
		start_time INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert inserts or replaces the profit record for in.PlanID.
func (s *Store) Upsert(ctx context.Context, in profit.UpsertInput) (profit.Record, error) {
	now := s.now().UTC()
	rec, err := in.Normalize(now)
	if err != nil {
		return profit.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return profit.Record{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO profits (plan_id, profit, start_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET
			profit = excluded.profit,
			start_time = excluded.start_time,
			updated_at = excluded.updated_at
	`

	stamp := now.Format(time.RFC3339Nano)
	if _, err := sqlTx.ExecContext(ctx, query,
		rec.PlanID,
		rec.Profit.String(),
		rec.StartTime,
		stamp,
		stamp,
	); err != nil {
		return profit.Record{}, fmt.Errorf("failed to upsert profit %q: %w", rec.PlanID, err)
	}

	stored, err := scanRecord(sqlTx.QueryRowContext(ctx, selectByPlanID, rec.PlanID))
	if err != nil {
		return profit.Record{}, fmt.Errorf("failed to read back profit %q: %w", rec.PlanID, err)
	}

	if err := sqlTx.Commit(); err != nil {
		return profit.Record{}, fmt.Errorf("failed to commit profit %q: %w", rec.PlanID, err)
	}
	return stored, nil
}

// FindByPlanID retrieves the profit record for planID.
func (s *Store) FindByPlanID(ctx context.Context, planID string) (profit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectByPlanID, planID))
	if errors.Is(err, sql.ErrNoRows) {
		return profit.Record{}, profit.ErrNotFound
	}
	if err != nil {
		return profit.Record{}, fmt.Errorf("failed to get profit %q: %w", planID, err)
	}
	return rec, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM profits").Scan(&count); err != nil {
		return 0
	}
	return count
}

const selectByPlanID = `
	SELECT plan_id, profit, start_time, created_at, updated_at
	FROM profits WHERE plan_id = ?
`

func scanRecord(row *sql.Row) (profit.Record, error) {
	var (
		rec                  profit.Record
		value                string
		createdAt, updatedAt string
	)

	if err := row.Scan(&rec.PlanID, &value, &rec.StartTime, &createdAt, &updatedAt); err != nil {
		return profit.Record{}, err
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return profit.Record{}, fmt.Errorf("invalid stored profit %q: %w", value, err)
	}
	rec.Profit = d

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return profit.Record{}, fmt.Errorf("invalid stored created_at %q: %w", createdAt, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return profit.Record{}, fmt.Errorf("invalid stored updated_at %q: %w", updatedAt, err)
	}
	return rec, nil
}
