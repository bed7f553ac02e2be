package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

const experimentColumns = `id, skill_name, variant_a_description,
	variant_b_description, metric_target, variant_a_score, variant_b_score,
	sample_size, samples_a, samples_b, p_value, effect_size, winner, status,
	started_at, completed_at`

// SaveExperiment inserts a new experiment in running state.
func (s *Store) SaveExperiment(ctx context.Context, e *pipeline.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = pipeline.ExperimentRunning
	}
	if e.Winner == "" {
		e.Winner = pipeline.WinnerNone
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiments (id, skill_name, variant_a_description,
			variant_b_description, metric_target, variant_a_score,
			variant_b_score, sample_size, samples_a, samples_b, p_value,
			effect_size, winner, status, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SkillName, e.VariantADescription, e.VariantBDescription,
		e.MetricTarget, e.VariantAScore, e.VariantBScore, e.SampleSize,
		e.SamplesA, e.SamplesB, e.PValue, e.EffectSize, string(e.Winner),
		string(e.Status), e.StartedAt.Unix(), unixPtr(e.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert experiment: %w", err)
	}
	return nil
}

// GetExperiment fetches one experiment by id.
func (s *Store) GetExperiment(ctx context.Context, id string) (*pipeline.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)
	return scanExperiment(row)
}

// ListExperimentsByStatus returns experiments in a given state, oldest first.
func (s *Store) ListExperimentsByStatus(ctx context.Context, status pipeline.ExperimentStatus) ([]*pipeline.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments
		 WHERE status = ? ORDER BY started_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	var out []*pipeline.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetRunningExperimentForSkill returns the running experiment on a skill, or
// ErrNotFound. At most one runs per skill at a time.
func (s *Store) GetRunningExperimentForSkill(ctx context.Context, skillName string) (*pipeline.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments
		 WHERE skill_name = ? AND status = 'running'
		 ORDER BY started_at DESC LIMIT 1`, skillName)
	return scanExperiment(row)
}

// UpdateExperiment writes back scores, verdict and status.
func (s *Store) UpdateExperiment(ctx context.Context, e *pipeline.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE experiments SET variant_a_score = ?, variant_b_score = ?,
			sample_size = ?, samples_a = ?, samples_b = ?, p_value = ?,
			effect_size = ?, winner = ?, status = ?, completed_at = ?
		WHERE id = ?`,
		e.VariantAScore, e.VariantBScore, e.SampleSize, e.SamplesA, e.SamplesB,
		e.PValue, e.EffectSize, string(e.Winner), string(e.Status),
		unixPtr(e.CompletedAt), e.ID)
	if err != nil {
		return fmt.Errorf("update experiment: %w", err)
	}
	return requireRow(res)
}

func scanExperiment(row rowScanner) (*pipeline.Experiment, error) {
	var e pipeline.Experiment
	var winner, status string
	var pValue, effectSize sql.NullFloat64
	var startedAt int64
	var completedAt sql.NullInt64

	err := row.Scan(&e.ID, &e.SkillName, &e.VariantADescription,
		&e.VariantBDescription, &e.MetricTarget, &e.VariantAScore,
		&e.VariantBScore, &e.SampleSize, &e.SamplesA, &e.SamplesB,
		&pValue, &effectSize, &winner, &status, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan experiment: %w", err)
	}

	e.Winner = pipeline.ExperimentWinner(winner)
	e.Status = pipeline.ExperimentStatus(status)
	e.PValue = floatFromNull(pValue)
	e.EffectSize = floatFromNull(effectSize)
	e.StartedAt = time.Unix(startedAt, 0).UTC()
	e.CompletedAt = timeFromNull(completedAt)
	return &e, nil
}
