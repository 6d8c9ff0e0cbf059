// Package history persists completed match runs in SQLite so they can be
// listed and inspected later.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"yashubustudio/vlookup/matcher"
)

//go:embed schema.sql
var schemaSQL string

// timeLayout is fixed width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	// ErrNotFound is returned when no run matches an identifier.
	ErrNotFound = errors.New("run not found")
	// ErrAmbiguousID is returned when an id prefix matches more than one run.
	ErrAmbiguousID = errors.New("run id prefix is ambiguous")
)

// Run is the metadata of one recorded match run.
type Run struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"startedAt"`
	FileA      string        `json:"fileA"`
	FileB      string        `json:"fileB"`
	Threshold  float64       `json:"threshold"`
	Backend    string        `json:"backend"`
	ModelID    string        `json:"modelId,omitempty"`
	Stats      matcher.Stats `json:"stats"`
	Duration   time.Duration `json:"duration"`
	OutputPath string        `json:"outputPath,omitempty"`
}

// Entry is a run together with its stored results.
type Entry struct {
	Run     Run                   `json:"run"`
	Records []matcher.MatchRecord `json:"records"`
	UnusedB []string              `json:"unusedB"`
}

// Store manages run history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores run and the contents of res in one transaction. An empty
// run.ID is replaced by a new UUID; the stored run is returned.
func (s *Store) Record(ctx context.Context, run Run, res *matcher.Result) (Run, error) {
	if res == nil {
		return Run{}, errors.New("nil result")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Stats = res.Stats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (
            id, started_at, file_a, file_b, threshold, backend, model_id,
            count_a, count_b, exact, fuzzy, unmatched, unused_b, duration_ms, output_path
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		run.FileA,
		run.FileB,
		run.Threshold,
		run.Backend,
		run.ModelID,
		run.Stats.A,
		run.Stats.B,
		run.Stats.Exact,
		run.Stats.Fuzzy,
		run.Stats.Unmatched,
		run.Stats.UnusedB,
		run.Duration.Milliseconds(),
		run.OutputPath,
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	recStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (run_id, a_index, b_index, a_text, b_text, similarity, status)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return Run{}, fmt.Errorf("prepare record insert: %w", err)
	}
	defer recStmt.Close()
	for _, rec := range res.Records {
		if _, err := recStmt.ExecContext(ctx, run.ID, rec.AIndex, rec.BIndex, rec.AText, rec.BText, rec.Similarity, string(rec.Status)); err != nil {
			return Run{}, fmt.Errorf("insert record %d: %w", rec.AIndex, err)
		}
	}

	for i, text := range res.UnmatchedB {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO unused_b (run_id, position, b_text) VALUES (?, ?, ?)",
			run.ID, i, text); err != nil {
			return Run{}, fmt.Errorf("insert unused B %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("commit run: %w", err)
	}
	return run, nil
}

const runColumns = `id, started_at, file_a, file_b, threshold, backend, model_id,
    count_a, count_b, exact, fuzzy, unmatched, unused_b, duration_ms, output_path`

// List returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Get returns a run and its results. id may be a unique prefix of the full
// identifier.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2",
		len(id), id)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		matches = append(matches, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}

	entry := &Entry{Run: matches[0]}
	if entry.Records, err = s.records(ctx, entry.Run.ID); err != nil {
		return nil, err
	}
	if entry.UnusedB, err = s.unusedB(ctx, entry.Run.ID); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) records(ctx context.Context, runID string) ([]matcher.MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a_index, b_index, a_text, b_text, similarity, status
        FROM records WHERE run_id = ? ORDER BY a_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	var out []matcher.MatchRecord
	for rows.Next() {
		var rec matcher.MatchRecord
		var status string
		if err := rows.Scan(&rec.AIndex, &rec.BIndex, &rec.AText, &rec.BText, &rec.Similarity, &status); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Status = matcher.Status(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *Store) unusedB(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT b_text FROM unused_b WHERE run_id = ? ORDER BY position", runID)
	if err != nil {
		return nil, fmt.Errorf("query unused B: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan unused B: %w", err)
		}
		out = append(out, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unused B: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run        Run
		startedAt  string
		durationMS int64
	)
	if err := row.Scan(
		&run.ID,
		&startedAt,
		&run.FileA,
		&run.FileB,
		&run.Threshold,
		&run.Backend,
		&run.ModelID,
		&run.Stats.A,
		&run.Stats.B,
		&run.Stats.Exact,
		&run.Stats.Fuzzy,
		&run.Stats.Unmatched,
		&run.Stats.UnusedB,
		&durationMS,
		&run.OutputPath,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	t, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at %q: %w", startedAt, err)
	}
	run.StartedAt = t
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return run, nil
}
