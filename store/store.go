// Package store archives finished runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"snake-sim/game"
	"snake-sim/game/manager"
	"snake-sim/game/types"
)

var ErrNotFound = errors.New("run not found")

// Run is an archived result plus the script that produced it, if any
type Run struct {
	game.Result
	Script    string    `json:"script,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists runs. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. Use ":memory:" for a throwaway
// archive.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate creates the schema
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			seed TEXT NOT NULL,
			score INTEGER NOT NULL,
			moves INTEGER NOT NULL,
			history TEXT NOT NULL DEFAULT '',
			game_over BOOLEAN NOT NULL DEFAULT 0,
			cause TEXT NOT NULL DEFAULT 'none',
			script TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			duration_ns INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_score ON runs(score)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun archives a result. The seed is kept as text since SQLite integers
// are signed.
func (s *Store) SaveRun(ctx context.Context, res game.Result, script string) error {
	cause, _ := res.Cause.MarshalText()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, seed, score, moves, history, game_over, cause, script, started_at, duration_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID,
		strconv.FormatUint(res.Seed, 10),
		res.Score,
		res.Moves,
		types.FormatScript(res.History),
		res.GameOver,
		string(cause),
		script,
		res.Started.UTC(),
		int64(res.Duration),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: save run: %w", err)
	}
	return nil
}

const runColumns = `id, seed, score, moves, history, game_over, cause, script, started_at, duration_ns, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run      Run
		seed     string
		history  string
		cause    string
		duration int64
	)
	if err := row.Scan(&run.RunID, &seed, &run.Score, &run.Moves, &history, &run.GameOver,
		&cause, &run.Script, &run.Started, &duration, &run.CreatedAt); err != nil {
		return Run{}, err
	}

	var err error
	if run.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return Run{}, fmt.Errorf("store: bad seed %q: %w", seed, err)
	}
	if run.History, err = types.ParseScript(history); err != nil {
		return Run{}, fmt.Errorf("store: bad history: %w", err)
	}
	var ct manager.CollisionType
	if err := ct.UnmarshalText([]byte(cause)); err != nil {
		return Run{}, fmt.Errorf("store: %w", err)
	}
	run.Cause = ct
	run.Duration = time.Duration(duration)
	return run, nil
}

// GetRun fetches a run by id
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("store: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit means 50.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list runs: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// TopRuns returns the highest scoring runs
func (s *Store) TopRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY score DESC, moves ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: top runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: top runs: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
