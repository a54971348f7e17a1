// Package history persists a record of every finished build in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// ErrNotFound is returned when no build has the requested ID.
var ErrNotFound = errors.New("build not found")

// Status is the outcome of a build.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Artifact describes one emitted file.
type Artifact struct {
	FileName string `json:"file_name"`
	Kind     string `json:"kind"`
	Size     int    `json:"size"`
}

// Build is one recorded build generation.
type Build struct {
	ID          string
	Generation  uint64
	Mode        string
	Status      Status
	Started     time.Time
	Duration    time.Duration
	Artifacts   []Artifact
	Diagnostics int
	Error       string
}

// Store records builds. Use ":memory:" for an in-memory database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storeError(err, "open history database")
	}
	// one connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, storeError(err, "initialize history schema")
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		generation INTEGER NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		started INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		diagnostics INTEGER NOT NULL,
		error TEXT,
		artifacts TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores b. A build already recorded under the same ID is replaced
// in place and keeps its position in Recent.
func (s *Store) Record(ctx context.Context, b Build) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	artifacts, err := json.Marshal(b.Artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO builds (id, generation, mode, status, started, duration_ms, diagnostics, error, artifacts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			generation = excluded.generation, mode = excluded.mode, status = excluded.status,
			started = excluded.started, duration_ms = excluded.duration_ms,
			diagnostics = excluded.diagnostics, error = excluded.error, artifacts = excluded.artifacts`,
		b.ID, int64(b.Generation), b.Mode, string(b.Status), b.Started.UnixNano(),
		b.Duration.Milliseconds(), b.Diagnostics, b.Error, string(artifacts),
	)
	if err != nil {
		return storeError(err, "insert build")
	}
	return nil
}

// Recent returns up to limit builds, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, generation, mode, status, started, duration_ms, diagnostics, error, artifacts FROM builds ORDER BY seq DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, storeError(err, "query builds")
	}
	defer rows.Close()

	var out []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "iterate builds")
	}
	return out, nil
}

// Get returns the build with the given ID.
func (s *Store) Get(ctx context.Context, id string) (Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, generation, mode, status, started, duration_ms, diagnostics, error, artifacts FROM builds WHERE id = ?",
		id,
	)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, ferrors.WrapError(ErrNotFound, ferrors.CategoryNotFound, "build "+id+" not found").
			WithContext("build_id", id).Build()
	}
	return b, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (Build, error) {
	var (
		b          Build
		generation int64
		status     string
		started    int64
		durationMS int64
		errText    sql.NullString
		artifacts  string
	)
	if err := row.Scan(&b.ID, &generation, &b.Mode, &status, &started, &durationMS, &b.Diagnostics, &errText, &artifacts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Build{}, err
		}
		return Build{}, storeError(err, "scan build")
	}
	b.Generation = uint64(generation)
	b.Status = Status(status)
	b.Started = time.Unix(0, started)
	b.Duration = time.Duration(durationMS) * time.Millisecond
	b.Error = errText.String
	if err := json.Unmarshal([]byte(artifacts), &b.Artifacts); err != nil {
		return Build{}, fmt.Errorf("unmarshal artifacts: %w", err)
	}
	return b, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func storeError(err error, msg string) error {
	return ferrors.WrapError(err, ferrors.CategoryStore, msg).Build()
}
