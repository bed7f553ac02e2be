package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

const publicationColumns = `id, creation_id, platform, platform_post_id,
	platform_url, arbitrage_window_minutes, latest_engagement_rate,
	latest_engagement_at, published_at`

// SavePublication inserts a publication row. Publishing the same creation to
// the same platform twice returns ErrDuplicatePublication.
func (s *Store) SavePublication(ctx context.Context, p *pipeline.Publication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO publications (id, creation_id, platform, platform_post_id,
			platform_url, arbitrage_window_minutes, latest_engagement_rate,
			latest_engagement_at, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CreationID, string(p.Platform), p.PlatformPostID, p.PlatformURL,
		p.ArbitrageWindowMinutes, p.LatestEngagementRate,
		unixPtr(p.LatestEngagementAt), p.PublishedAt.Unix())
	if isUniqueViolation(err) {
		return ErrDuplicatePublication
	}
	if err != nil {
		return fmt.Errorf("insert publication: %w", err)
	}
	return nil
}

// GetPublication fetches one publication by id.
func (s *Store) GetPublication(ctx context.Context, id string) (*pipeline.Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+publicationColumns+` FROM publications WHERE id = ?`, id)
	return scanPublication(row)
}

// ListPublicationsWithIncompleteMetrics returns publications that do not yet
// have all five interval snapshots. The collector walks these each tick.
func (s *Store) ListPublicationsWithIncompleteMetrics(ctx context.Context) ([]*pipeline.Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+publicationColumns+` FROM publications p
		WHERE (SELECT COUNT(*) FROM metrics m WHERE m.publication_id = p.id) < ?
		ORDER BY p.published_at ASC`, len(pipeline.MetricIntervals()))
	if err != nil {
		return nil, fmt.Errorf("list publications with incomplete metrics: %w", err)
	}
	defer rows.Close()
	return collectPublications(rows)
}

// ListRecentPublications returns publications published since the cutoff,
// newest first.
func (s *Store) ListRecentPublications(ctx context.Context, since time.Time) ([]*pipeline.Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+publicationColumns+` FROM publications
		WHERE published_at >= ? ORDER BY published_at DESC`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("list recent publications: %w", err)
	}
	defer rows.Close()
	return collectPublications(rows)
}

// UpdateLatestEngagement overwrites the lossy latest-engagement snapshot on a
// publication. Interval metric rows are never touched by this path.
func (s *Store) UpdateLatestEngagement(ctx context.Context, id string, rate float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE publications SET latest_engagement_rate = ?, latest_engagement_at = ?
		WHERE id = ?`, rate, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("update latest engagement: %w", err)
	}
	return requireRow(res)
}

// PublicationEngagement pairs a publication with its creation's descriptors
// for feedback analysis.
type PublicationEngagement struct {
	PublicationID  string
	CreationID     string
	Platform       pipeline.Platform
	Format         pipeline.Format
	Title          string
	Body           string
	SkillsUsed     []string
	VariantLabel   string
	PublishedAt    time.Time
	EngagementRate float64
}

// ListLowEngagementPublications returns publications since the cutoff whose
// 24h engagement snapshot fell at or below maxEngagement, joined with the
// creation fields the failure analyzer inspects.
func (s *Store) ListLowEngagementPublications(ctx context.Context, since time.Time, maxEngagement float64) ([]*PublicationEngagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, c.id, c.platform, c.format, c.title, c.body,
			c.skills_used, COALESCE(c.variant_label, ''), p.published_at, m.engagement_rate
		FROM publications p
		JOIN creations c ON c.id = p.creation_id
		JOIN metrics m ON m.publication_id = p.id AND m.interval = '24h'
		WHERE p.published_at >= ? AND m.engagement_rate <= ?
		ORDER BY p.published_at DESC`, since.Unix(), maxEngagement)
	if err != nil {
		return nil, fmt.Errorf("list low engagement publications: %w", err)
	}
	defer rows.Close()

	var out []*PublicationEngagement
	for rows.Next() {
		var pe PublicationEngagement
		var platform, format, skills string
		var publishedAt int64
		if err := rows.Scan(&pe.PublicationID, &pe.CreationID, &platform, &format,
			&pe.Title, &pe.Body, &skills, &pe.VariantLabel, &publishedAt,
			&pe.EngagementRate); err != nil {
			return nil, fmt.Errorf("scan low engagement row: %w", err)
		}
		pe.Platform = pipeline.Platform(platform)
		pe.Format = pipeline.Format(format)
		pe.SkillsUsed = unmarshalStrings(skills)
		pe.PublishedAt = time.Unix(publishedAt, 0).UTC()
		out = append(out, &pe)
	}
	return out, rows.Err()
}

// VariantEngagement is one 24h engagement observation attributed to a skill
// through a creation's skills_used list.
type VariantEngagement struct {
	CreationID     string
	SkillsUsed     []string
	VariantLabel   string
	EngagementRate float64
	CollectedAt    time.Time
}

// List24hEngagementSince returns all 24h engagement snapshots collected since
// the cutoff with their creation's skill attribution. Experiment scoring
// groups these by variant label in memory.
func (s *Store) List24hEngagementSince(ctx context.Context, since time.Time) ([]*VariantEngagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.skills_used, COALESCE(c.variant_label, ''),
			m.engagement_rate, m.collected_at
		FROM metrics m
		JOIN publications p ON p.id = m.publication_id
		JOIN creations c ON c.id = p.creation_id
		WHERE m.interval = '24h' AND m.collected_at >= ?
		ORDER BY m.collected_at ASC`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("list 24h engagement: %w", err)
	}
	defer rows.Close()

	var out []*VariantEngagement
	for rows.Next() {
		var ve VariantEngagement
		var skills string
		var collectedAt int64
		if err := rows.Scan(&ve.CreationID, &skills, &ve.VariantLabel,
			&ve.EngagementRate, &collectedAt); err != nil {
			return nil, fmt.Errorf("scan variant engagement: %w", err)
		}
		ve.SkillsUsed = unmarshalStrings(skills)
		ve.CollectedAt = time.Unix(collectedAt, 0).UTC()
		out = append(out, &ve)
	}
	return out, rows.Err()
}

func collectPublications(rows *sql.Rows) ([]*pipeline.Publication, error) {
	var out []*pipeline.Publication
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPublication(row rowScanner) (*pipeline.Publication, error) {
	var p pipeline.Publication
	var platform string
	var window sql.NullInt64
	var latestRate sql.NullFloat64
	var latestAt sql.NullInt64
	var publishedAt int64

	err := row.Scan(&p.ID, &p.CreationID, &platform, &p.PlatformPostID,
		&p.PlatformURL, &window, &latestRate, &latestAt, &publishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan publication: %w", err)
	}

	p.Platform = pipeline.Platform(platform)
	p.ArbitrageWindowMinutes = int64FromNull(window)
	p.LatestEngagementRate = floatFromNull(latestRate)
	p.LatestEngagementAt = timeFromNull(latestAt)
	p.PublishedAt = time.Unix(publishedAt, 0).UTC()
	return &p, nil
}
