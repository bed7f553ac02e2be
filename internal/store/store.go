// Package store persists every pipeline entity in a single SQLite database.
// All writes surface their errors to the caller; a failed write is fatal for
// the step that issued it and is retried only by the next loop tick.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Sentinel errors callers branch on.
var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicateDiscovery   = errors.New("discovery with identical content hash exists")
	ErrDuplicateMetric      = errors.New("metric for this publication and interval exists")
	ErrDuplicatePublication = errors.New("publication for this creation and platform exists")
	ErrNoVariantGroup       = errors.New("creation has no variant group")
	ErrNotSelectable        = errors.New("creation is not awaiting selection")
	ErrInvalidTransition    = errors.New("approval status transition not allowed")
)

// Store wraps the SQLite database holding all pipeline entities.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for tests that do not need persistence across opens.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single connection serializes writers; WAL keeps readers cheap.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS discoveries (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		source_id TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		raw_score REAL NOT NULL DEFAULT 0,
		raw_data TEXT NOT NULL DEFAULT '{}',
		content_hash TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'new',
		relevance_score REAL,
		velocity_score REAL,
		risk_level TEXT,
		platform_fit TEXT,
		suggested_formats TEXT,
		discovered_at INTEGER NOT NULL,
		analyzed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_discoveries_status ON discoveries(status, discovered_at DESC);

	CREATE TABLE IF NOT EXISTS creations (
		id TEXT PRIMARY KEY,
		discovery_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		format TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		media_urls TEXT NOT NULL DEFAULT '[]',
		skills_used TEXT NOT NULL DEFAULT '[]',
		risk_score REAL NOT NULL DEFAULT 0,
		risk_flags TEXT NOT NULL DEFAULT '[]',
		quality_score REAL NOT NULL DEFAULT 0,
		quality_issues TEXT NOT NULL DEFAULT '[]',
		variant_group TEXT,
		variant_label TEXT,
		approval_status TEXT NOT NULL DEFAULT 'pending',
		video_type TEXT,
		video_prompt TEXT,
		video_script TEXT,
		video_composition TEXT,
		video_url TEXT NOT NULL DEFAULT '',
		video_error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		approved_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_creations_approval ON creations(approval_status);
	CREATE INDEX IF NOT EXISTS idx_creations_group ON creations(variant_group);
	CREATE INDEX IF NOT EXISTS idx_creations_label ON creations(variant_label);

	CREATE TABLE IF NOT EXISTS publications (
		id TEXT PRIMARY KEY,
		creation_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		platform_post_id TEXT NOT NULL,
		platform_url TEXT NOT NULL DEFAULT '',
		arbitrage_window_minutes INTEGER,
		latest_engagement_rate REAL,
		latest_engagement_at INTEGER,
		published_at INTEGER NOT NULL,
		UNIQUE(creation_id, platform)
	);
	CREATE INDEX IF NOT EXISTS idx_publications_published ON publications(published_at);

	CREATE TABLE IF NOT EXISTS metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		publication_id TEXT NOT NULL,
		interval TEXT NOT NULL,
		views INTEGER NOT NULL DEFAULT 0,
		likes INTEGER NOT NULL DEFAULT 0,
		comments INTEGER NOT NULL DEFAULT 0,
		shares INTEGER NOT NULL DEFAULT 0,
		clicks INTEGER NOT NULL DEFAULT 0,
		followers_gained INTEGER NOT NULL DEFAULT 0,
		engagement_rate REAL NOT NULL DEFAULT 0,
		collected_at INTEGER NOT NULL,
		UNIQUE(publication_id, interval)
	);

	CREATE TABLE IF NOT EXISTS skills (
		name TEXT PRIMARY KEY,
		category TEXT NOT NULL DEFAULT '',
		platform TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		content TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		change_reason TEXT NOT NULL DEFAULT '',
		total_uses INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_streak INTEGER NOT NULL DEFAULT 0,
		last_used_at INTEGER,
		last_validated_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		file_path TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS skill_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		skill_name TEXT NOT NULL,
		agent TEXT NOT NULL DEFAULT '',
		task TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		score REAL NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_skill_metrics_skill ON skill_metrics(skill_name, recorded_at);

	CREATE TABLE IF NOT EXISTS experiments (
		id TEXT PRIMARY KEY,
		skill_name TEXT NOT NULL,
		variant_a_description TEXT NOT NULL,
		variant_b_description TEXT NOT NULL,
		metric_target TEXT NOT NULL DEFAULT '',
		variant_a_score REAL NOT NULL DEFAULT 0,
		variant_b_score REAL NOT NULL DEFAULT 0,
		sample_size INTEGER NOT NULL DEFAULT 0,
		samples_a INTEGER NOT NULL DEFAULT 0,
		samples_b INTEGER NOT NULL DEFAULT 0,
		p_value REAL,
		effect_size REAL,
		winner TEXT NOT NULL DEFAULT 'none',
		status TEXT NOT NULL DEFAULT 'running',
		started_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

	CREATE TABLE IF NOT EXISTS agent_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent TEXT NOT NULL,
		task TEXT NOT NULL DEFAULT '',
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		estimated_cost_usd REAL NOT NULL DEFAULT 0,
		duration_seconds REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_agent_runs_started ON agent_runs(started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// marshalJSON encodes collections for TEXT columns; nil maps/slices encode
// to their empty JSON form so columns never hold SQL NULL.
func marshalJSON(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal json column: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(raw string) []string {
	if raw == "" || raw == "null" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// unixPtr converts an optional time into an INTEGER bind value.
func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

func floatFromNull(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func int64FromNull(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// inTx runs fn inside one transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
