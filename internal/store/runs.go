package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// SaveAgentRun appends one cost-ledger row.
func (s *Store) SaveAgentRun(ctx context.Context, r *pipeline.AgentRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_runs (agent, task, input_tokens, output_tokens,
			estimated_cost_usd, duration_seconds, status, provider,
			started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Agent, r.Task, r.InputTokens, r.OutputTokens, r.EstimatedCostUSD,
		r.DurationSeconds, r.Status, r.Provider, r.StartedAt.Unix(),
		unixPtr(r.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert agent run: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		r.ID = id
	}
	return nil
}

// SumCostSince totals estimated cost across runs started at or after the
// cutoff. The budget governor calls this with UTC midnight.
func (s *Store) SumCostSince(ctx context.Context, since time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(estimated_cost_usd) FROM agent_runs WHERE started_at >= ?`,
		since.Unix()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum cost: %w", err)
	}
	return total.Float64, nil
}

// ListAgentRunsSince returns run rows started at or after the cutoff, newest
// first, for status reporting.
func (s *Store) ListAgentRunsSince(ctx context.Context, since time.Time, limit int) ([]*pipeline.AgentRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, agent, task, input_tokens, output_tokens,
			estimated_cost_usd, duration_seconds, status, provider,
			started_at, completed_at
		FROM agent_runs WHERE started_at >= ? ORDER BY started_at DESC`
	args := []any{since.Unix()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agent runs: %w", err)
	}
	defer rows.Close()

	var out []*pipeline.AgentRun
	for rows.Next() {
		var r pipeline.AgentRun
		var startedAt int64
		var completedAt sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Agent, &r.Task, &r.InputTokens,
			&r.OutputTokens, &r.EstimatedCostUSD, &r.DurationSeconds,
			&r.Status, &r.Provider, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan agent run: %w", err)
		}
		r.StartedAt = time.Unix(startedAt, 0).UTC()
		r.CompletedAt = timeFromNull(completedAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}
