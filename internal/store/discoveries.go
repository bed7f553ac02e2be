package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

const discoveryColumns = `id, source, source_id, title, url, raw_score, raw_data,
	content_hash, status, relevance_score, velocity_score, risk_level,
	platform_fit, suggested_formats, discovered_at, analyzed_at`

// SaveDiscovery inserts a discovery. The content hash is derived from
// title and URL when unset. A hash collision returns ErrDuplicateDiscovery.
func (s *Store) SaveDiscovery(ctx context.Context, d *pipeline.Discovery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ContentHash == "" {
		d.ContentHash = pipeline.ContentHash(d.Title, d.URL)
	}
	if d.Status == "" {
		d.Status = pipeline.DiscoveryNew
	}
	if d.DiscoveredAt.IsZero() {
		d.DiscoveredAt = time.Now().UTC()
	}

	rawData, err := marshalJSON(d.RawData)
	if err != nil {
		return err
	}
	fit, err := marshalJSON(d.PlatformFit)
	if err != nil {
		return err
	}
	formats, err := marshalJSON(d.SuggestedFormats)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO discoveries (id, source, source_id, title, url, raw_score,
			raw_data, content_hash, status, relevance_score, velocity_score,
			risk_level, platform_fit, suggested_formats, discovered_at, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Source, d.SourceID, d.Title, d.URL, d.RawScore,
		rawData, d.ContentHash, string(d.Status),
		d.RelevanceScore, d.VelocityScore, riskLevelPtr(d.RiskLevel),
		fit, formats, d.DiscoveredAt.Unix(), unixPtr(d.AnalyzedAt))
	if isUniqueViolation(err) {
		return ErrDuplicateDiscovery
	}
	if err != nil {
		return fmt.Errorf("insert discovery: %w", err)
	}
	return nil
}

// GetDiscovery fetches one discovery by id.
func (s *Store) GetDiscovery(ctx context.Context, id string) (*pipeline.Discovery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+discoveryColumns+` FROM discoveries WHERE id = ?`, id)
	return scanDiscovery(row)
}

// ListDiscoveriesByStatus returns up to limit discoveries in the given
// status, newest first. limit <= 0 means no cap.
func (s *Store) ListDiscoveriesByStatus(ctx context.Context, status pipeline.DiscoveryStatus, limit int) ([]*pipeline.Discovery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + discoveryColumns + ` FROM discoveries
		WHERE status = ? ORDER BY discovered_at DESC`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list discoveries: %w", err)
	}
	defer rows.Close()

	var out []*pipeline.Discovery
	for rows.Next() {
		d, err := scanDiscovery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListAnalyzedDiscoveries returns analyzed discoveries ordered by combined
// relevance plus velocity, best first.
func (s *Store) ListAnalyzedDiscoveries(ctx context.Context, limit int) ([]*pipeline.Discovery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + discoveryColumns + ` FROM discoveries
		WHERE status = 'analyzed'
		ORDER BY COALESCE(relevance_score, 0) + COALESCE(velocity_score, 0) DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analyzed discoveries: %w", err)
	}
	defer rows.Close()

	var out []*pipeline.Discovery
	for rows.Next() {
		d, err := scanDiscovery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDiscoveryAnalysis stores the analyst's verdict and moves the row to
// analyzed with an analysis timestamp.
func (s *Store) UpdateDiscoveryAnalysis(ctx context.Context, d *pipeline.Discovery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fit, err := marshalJSON(d.PlatformFit)
	if err != nil {
		return err
	}
	formats, err := marshalJSON(d.SuggestedFormats)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	d.Status = pipeline.DiscoveryAnalyzed
	d.AnalyzedAt = &now

	res, err := s.db.ExecContext(ctx, `
		UPDATE discoveries SET relevance_score = ?, velocity_score = ?,
			risk_level = ?, platform_fit = ?, suggested_formats = ?,
			status = ?, analyzed_at = ?
		WHERE id = ?`,
		d.RelevanceScore, d.VelocityScore, riskLevelPtr(d.RiskLevel),
		fit, formats, string(d.Status), now.Unix(), d.ID)
	if err != nil {
		return fmt.Errorf("update discovery analysis: %w", err)
	}
	return requireRow(res)
}

// UpdateDiscoveryStatus moves a discovery to a new lifecycle status.
func (s *Store) UpdateDiscoveryStatus(ctx context.Context, id string, status pipeline.DiscoveryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE discoveries SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update discovery status: %w", err)
	}
	return requireRow(res)
}

// CountDiscoveriesByStatus returns per-status row counts for reporting.
func (s *Store) CountDiscoveriesByStatus(ctx context.Context) (map[pipeline.DiscoveryStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM discoveries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count discoveries: %w", err)
	}
	defer rows.Close()

	out := make(map[pipeline.DiscoveryStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[pipeline.DiscoveryStatus(status)] = n
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDiscovery(row rowScanner) (*pipeline.Discovery, error) {
	var d pipeline.Discovery
	var rawData, fit, formats string
	var relevance, velocity sql.NullFloat64
	var riskLevel sql.NullString
	var discoveredAt int64
	var analyzedAt sql.NullInt64
	var status string

	err := row.Scan(&d.ID, &d.Source, &d.SourceID, &d.Title, &d.URL, &d.RawScore,
		&rawData, &d.ContentHash, &status, &relevance, &velocity, &riskLevel,
		&fit, &formats, &discoveredAt, &analyzedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan discovery: %w", err)
	}

	d.Status = pipeline.DiscoveryStatus(status)
	d.RelevanceScore = floatFromNull(relevance)
	d.VelocityScore = floatFromNull(velocity)
	if riskLevel.Valid && riskLevel.String != "" {
		lvl := pipeline.RiskLevel(riskLevel.String)
		d.RiskLevel = &lvl
	}
	d.DiscoveredAt = time.Unix(discoveredAt, 0).UTC()
	d.AnalyzedAt = timeFromNull(analyzedAt)

	if rawData != "" && rawData != "null" {
		_ = json.Unmarshal([]byte(rawData), &d.RawData)
	}
	if fit != "" && fit != "null" {
		_ = json.Unmarshal([]byte(fit), &d.PlatformFit)
	}
	if formats != "" && formats != "null" {
		_ = json.Unmarshal([]byte(formats), &d.SuggestedFormats)
	}
	return &d, nil
}

func riskLevelPtr(lvl *pipeline.RiskLevel) any {
	if lvl == nil {
		return nil
	}
	return string(*lvl)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
