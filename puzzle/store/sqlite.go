// Package store records solver runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/wricardo/mcp-training/guardpatrol/puzzle/service"
)

// DefaultListLimit is used when List is called without a positive limit
const DefaultListLimit = 50

// timeLayout is fixed width so created_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements service.SolutionStore on a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens the database at path. Use ":memory:" for a private
// in-memory database.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		// Every new connection would see its own empty database
		db.SetMaxOpenConns(1)
	}
	return &SQLiteStore{db: db}, nil
}

// Init creates the schema if it does not exist
func (s *SQLiteStore) Init(ctx context.Context) error {
	ddl := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS solutions (
			id TEXT PRIMARY KEY,
			puzzle_name TEXT NOT NULL,
			part_one INTEGER NOT NULL,
			part_two INTEGER NOT NULL,
			strategy TEXT NOT NULL,
			workers INTEGER NOT NULL,
			candidates INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_solutions_puzzle_created ON solutions(puzzle_name, created_at);`,
	}

	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init sqlite: %w", err)
		}
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores a solver run, filling in its ID and creation time when unset
func (s *SQLiteStore) Record(ctx context.Context, rec *service.SolutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO solutions (id, puzzle_name, part_one, part_two, strategy, workers, candidates, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.PuzzleName,
		rec.PartOne,
		rec.PartTwo,
		rec.Strategy,
		rec.Workers,
		rec.Candidates,
		rec.ElapsedMS,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record solution: %w", err)
	}
	return nil
}

// List returns recorded runs newest first. An empty puzzleName matches every
// puzzle.
func (s *SQLiteStore) List(ctx context.Context, puzzleName string, limit int) ([]*service.SolutionRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, puzzle_name, part_one, part_two, strategy, workers, candidates, elapsed_ms, created_at
		FROM solutions`
	args := []any{}
	if puzzleName != "" {
		query += ` WHERE puzzle_name = ?`
		args = append(args, puzzleName)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list solutions: %w", err)
	}
	defer rows.Close()

	records := []*service.SolutionRecord{}
	for rows.Next() {
		var rec service.SolutionRecord
		var createdAt string
		if err := rows.Scan(
			&rec.ID,
			&rec.PuzzleName,
			&rec.PartOne,
			&rec.PartTwo,
			&rec.Strategy,
			&rec.Workers,
			&rec.Candidates,
			&rec.ElapsedMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan solution: %w", err)
		}
		rec.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list solutions: %w", err)
	}
	return records, nil
}
