package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

const skillColumns = `name, category, platform, confidence, status, version,
	content, tags, change_reason, total_uses, success_count, failure_streak,
	last_used_at, last_validated_at, created_at, updated_at, file_path`

// UpsertSkill writes the full skill row, inserting or replacing by name. The
// skill library is the authoritative copy; this mirror backs queries and
// restarts.
func (s *Store) UpsertSkill(ctx context.Context, sk *pipeline.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if sk.CreatedAt.IsZero() {
		sk.CreatedAt = now
	}
	sk.UpdatedAt = now

	tags, err := marshalJSON(sk.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO skills (name, category, platform, confidence, status,
			version, content, tags, change_reason, total_uses, success_count,
			failure_streak, last_used_at, last_validated_at, created_at,
			updated_at, file_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			category = excluded.category,
			platform = excluded.platform,
			confidence = excluded.confidence,
			status = excluded.status,
			version = excluded.version,
			content = excluded.content,
			tags = excluded.tags,
			change_reason = excluded.change_reason,
			total_uses = excluded.total_uses,
			success_count = excluded.success_count,
			failure_streak = excluded.failure_streak,
			last_used_at = excluded.last_used_at,
			last_validated_at = excluded.last_validated_at,
			updated_at = excluded.updated_at,
			file_path = excluded.file_path`,
		sk.Name, sk.Category, sk.Platform, sk.Confidence, string(sk.Status),
		sk.Version, sk.Content, tags, sk.ChangeReason, sk.TotalUses,
		sk.SuccessCount, sk.FailureStreak, unixPtr(sk.LastUsedAt),
		unixPtr(sk.LastValidatedAt), sk.CreatedAt.Unix(), sk.UpdatedAt.Unix(),
		sk.FilePath)
	if err != nil {
		return fmt.Errorf("upsert skill: %w", err)
	}
	return nil
}

// GetSkill fetches one skill by name.
func (s *Store) GetSkill(ctx context.Context, name string) (*pipeline.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+skillColumns+` FROM skills WHERE name = ?`, name)
	return scanSkill(row)
}

// ListSkills returns every stored skill ordered by name.
func (s *Store) ListSkills(ctx context.Context) ([]*pipeline.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+skillColumns+` FROM skills ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var out []*pipeline.Skill
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// SaveSkillMetric appends one outcome observation. Rows are never updated
// or deleted.
func (s *Store) SaveSkillMetric(ctx context.Context, m *pipeline.SkillMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO skill_metrics (skill_name, agent, task, outcome, score,
			context, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.SkillName, m.Agent, m.Task, string(m.Outcome), m.Score, m.Context,
		m.RecordedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert skill metric: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		m.ID = id
	}
	return nil
}

// ListSkillMetrics returns a skill's observations since the cutoff, oldest
// first so trend analysis can split halves chronologically.
func (s *Store) ListSkillMetrics(ctx context.Context, skillName string, since time.Time) ([]*pipeline.SkillMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, skill_name, agent, task, outcome, score, context, recorded_at
		FROM skill_metrics
		WHERE skill_name = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC`, skillName, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("list skill metrics: %w", err)
	}
	defer rows.Close()
	return collectSkillMetrics(rows)
}

// ListSkillMetricsSince returns every observation since the cutoff across all
// skills, oldest first.
func (s *Store) ListSkillMetricsSince(ctx context.Context, since time.Time) ([]*pipeline.SkillMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, skill_name, agent, task, outcome, score, context, recorded_at
		FROM skill_metrics
		WHERE recorded_at >= ?
		ORDER BY recorded_at ASC`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("list skill metrics since: %w", err)
	}
	defer rows.Close()
	return collectSkillMetrics(rows)
}

// CountSkillMetricsSince counts observations recorded since the cutoff. The
// feedback loop uses this to decide whether an opportunistic run is worth it.
func (s *Store) CountSkillMetricsSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM skill_metrics WHERE recorded_at >= ?`,
		since.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count skill metrics: %w", err)
	}
	return n, nil
}

func collectSkillMetrics(rows *sql.Rows) ([]*pipeline.SkillMetric, error) {
	var out []*pipeline.SkillMetric
	for rows.Next() {
		var m pipeline.SkillMetric
		var outcome string
		var recordedAt int64
		if err := rows.Scan(&m.ID, &m.SkillName, &m.Agent, &m.Task, &outcome,
			&m.Score, &m.Context, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan skill metric: %w", err)
		}
		m.Outcome = pipeline.Outcome(outcome)
		m.RecordedAt = time.Unix(recordedAt, 0).UTC()
		out = append(out, &m)
	}
	return out, rows.Err()
}

func scanSkill(row rowScanner) (*pipeline.Skill, error) {
	var sk pipeline.Skill
	var status, tags string
	var lastUsed, lastValidated sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&sk.Name, &sk.Category, &sk.Platform, &sk.Confidence,
		&status, &sk.Version, &sk.Content, &tags, &sk.ChangeReason,
		&sk.TotalUses, &sk.SuccessCount, &sk.FailureStreak,
		&lastUsed, &lastValidated, &createdAt, &updatedAt, &sk.FilePath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan skill: %w", err)
	}

	sk.Status = pipeline.SkillStatus(status)
	sk.Tags = unmarshalStrings(tags)
	sk.LastUsedAt = timeFromNull(lastUsed)
	sk.LastValidatedAt = timeFromNull(lastValidated)
	sk.CreatedAt = time.Unix(createdAt, 0).UTC()
	sk.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &sk, nil
}
