package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// SaveMetric appends one interval snapshot. A second snapshot for the same
// (publication, interval) returns ErrDuplicateMetric; rows are never updated.
func (s *Store) SaveMetric(ctx context.Context, m *pipeline.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.CollectedAt.IsZero() {
		m.CollectedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO metrics (publication_id, interval, views, likes, comments,
			shares, clicks, followers_gained, engagement_rate, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.PublicationID, string(m.Interval), m.Views, m.Likes, m.Comments,
		m.Shares, m.Clicks, m.FollowersGained, m.EngagementRate,
		m.CollectedAt.Unix())
	if isUniqueViolation(err) {
		return ErrDuplicateMetric
	}
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		m.ID = id
	}
	return nil
}

// ListMetrics returns all snapshots for a publication in ascending interval
// offset order.
func (s *Store) ListMetrics(ctx context.Context, publicationID string) ([]*pipeline.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, publication_id, interval, views, likes, comments, shares,
			clicks, followers_gained, engagement_rate, collected_at
		FROM metrics WHERE publication_id = ?`, publicationID)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	byInterval := make(map[pipeline.MetricInterval]*pipeline.Metric)
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		byInterval[m.Interval] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []*pipeline.Metric
	for _, iv := range pipeline.MetricIntervals() {
		if m, ok := byInterval[iv]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetMetric fetches one snapshot for a publication at an interval.
func (s *Store) GetMetric(ctx context.Context, publicationID string, interval pipeline.MetricInterval) (*pipeline.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, publication_id, interval, views, likes, comments, shares,
			clicks, followers_gained, engagement_rate, collected_at
		FROM metrics WHERE publication_id = ? AND interval = ?`,
		publicationID, string(interval))
	return scanMetric(row)
}

// CollectedIntervals reports which snapshots already exist for a publication.
func (s *Store) CollectedIntervals(ctx context.Context, publicationID string) (map[pipeline.MetricInterval]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT interval FROM metrics WHERE publication_id = ?`, publicationID)
	if err != nil {
		return nil, fmt.Errorf("collected intervals: %w", err)
	}
	defer rows.Close()

	out := make(map[pipeline.MetricInterval]bool)
	for rows.Next() {
		var iv string
		if err := rows.Scan(&iv); err != nil {
			return nil, err
		}
		out[pipeline.MetricInterval(iv)] = true
	}
	return out, rows.Err()
}

func scanMetric(row rowScanner) (*pipeline.Metric, error) {
	var m pipeline.Metric
	var interval string
	var collectedAt int64

	err := row.Scan(&m.ID, &m.PublicationID, &interval, &m.Views, &m.Likes,
		&m.Comments, &m.Shares, &m.Clicks, &m.FollowersGained,
		&m.EngagementRate, &collectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan metric: %w", err)
	}
	m.Interval = pipeline.MetricInterval(interval)
	m.CollectedAt = time.Unix(collectedAt, 0).UTC()
	return &m, nil
}
