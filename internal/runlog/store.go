package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run is one recorded pipeline pass.
type Run struct {
	ID            string     `json:"id"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Fetched       int        `json:"fetched"`
	Synced        int        `json:"synced"`
	Failed        int        `json:"failed"`
	LedgerAdded   int        `json:"ledger_added"`
	LedgerSkipped int        `json:"ledger_skipped"`
	Error         string     `json:"error,omitempty"`
}

// Succeeded reports whether the run completed without a fatal error.
func (r Run) Succeeded() bool {
	return r.CompletedAt != nil && r.Error == ""
}

// Store persists run history in SQLite. The last completed run doubles as the
// default purchase cutoff for the next pass.
type Store struct {
	db *sql.DB
}

// NewStore constructs a run-log data access object.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init applies the runs table schema.
func (s *Store) Init(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		fetched INTEGER NOT NULL DEFAULT 0,
		synced INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		ledger_added INTEGER NOT NULL DEFAULT 0,
		ledger_skipped INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("apply runlog schema: %w", err)
	}
	return nil
}

// Record upserts one run. Called once when a run starts and again with the
// final counters when it finishes.
func (s *Store) Record(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, started_at, completed_at, fetched, synced, failed, ledger_added, ledger_skipped, error)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			completed_at = excluded.completed_at,
			fetched = excluded.fetched,
			synced = excluded.synced,
			failed = excluded.failed,
			ledger_added = excluded.ledger_added,
			ledger_skipped = excluded.ledger_skipped,
			error = excluded.error`,
		run.ID, run.StartedAt.UTC(), completedOrNil(run.CompletedAt),
		run.Fetched, run.Synced, run.Failed, run.LedgerAdded, run.LedgerSkipped, run.Error,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// LastCompleted returns the most recent run that finished without a fatal
// error, or ok=false when there is none.
func (s *Store) LastCompleted(ctx context.Context) (Run, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, completed_at, fetched, synced, failed, ledger_added, ledger_skipped, error
		 FROM runs WHERE completed_at IS NOT NULL AND error = ''
		 ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, fmt.Errorf("last completed run: %w", err)
	}
	return run, true, nil
}

// Recent lists the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, completed_at, fetched, synced, failed, ledger_added, ledger_skipped, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter runs: %w", err)
	}
	return runs, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (Run, error) {
	var (
		run       Run
		completed sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.StartedAt, &completed, &run.Fetched, &run.Synced,
		&run.Failed, &run.LedgerAdded, &run.LedgerSkipped, &run.Error); err != nil {
		return Run{}, err
	}
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	return run, nil
}

func completedOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
