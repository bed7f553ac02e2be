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

const creationColumns = `id, discovery_id, platform, format, title, body,
	media_urls, skills_used, risk_score, risk_flags, quality_score,
	quality_issues, variant_group, variant_label, approval_status,
	video_type, video_prompt, video_script, video_composition,
	video_url, video_error, created_at, approved_at`

// SaveCreation inserts a drafted creation.
func (s *Store) SaveCreation(ctx context.Context, c *pipeline.Creation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.ApprovalStatus == "" {
		c.ApprovalStatus = pipeline.ApprovalPending
	}

	media, err := marshalJSON(c.MediaURLs)
	if err != nil {
		return err
	}
	skills, err := marshalJSON(c.SkillsUsed)
	if err != nil {
		return err
	}
	riskFlags, err := marshalJSON(c.RiskFlags)
	if err != nil {
		return err
	}
	issues, err := marshalJSON(c.QualityIssues)
	if err != nil {
		return err
	}

	videoType, videoPrompt, videoScript, videoComposition, err := videoColumns(c.Video)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO creations (id, discovery_id, platform, format, title, body,
			media_urls, skills_used, risk_score, risk_flags, quality_score,
			quality_issues, variant_group, variant_label, approval_status,
			video_type, video_prompt, video_script, video_composition,
			video_url, video_error, created_at, approved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DiscoveryID, string(c.Platform), string(c.Format), c.Title, c.Body,
		media, skills, c.RiskScore, riskFlags, c.QualityScore, issues,
		nullString(c.VariantGroup), nullString(c.VariantLabel), string(c.ApprovalStatus),
		videoType, videoPrompt, videoScript, videoComposition,
		c.VideoURL, c.VideoError, c.CreatedAt.Unix(), unixPtr(c.ApprovedAt))
	if err != nil {
		return fmt.Errorf("insert creation: %w", err)
	}
	return nil
}

// GetCreation fetches one creation by id.
func (s *Store) GetCreation(ctx context.Context, id string) (*pipeline.Creation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCreation(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getCreation(ctx context.Context, q querier, id string) (*pipeline.Creation, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+creationColumns+` FROM creations WHERE id = ?`, id)
	return scanCreation(row)
}

// ListCreationsByStatus returns creations in a given approval state, oldest
// first so review queues stay stable.
func (s *Store) ListCreationsByStatus(ctx context.Context, status pipeline.ApprovalStatus, limit int) ([]*pipeline.Creation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + creationColumns + ` FROM creations
		WHERE approval_status = ? ORDER BY created_at ASC`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list creations: %w", err)
	}
	defer rows.Close()
	return collectCreations(rows)
}

// ListVariantGroup returns every creation sharing a variant group.
func (s *Store) ListVariantGroup(ctx context.Context, group string) ([]*pipeline.Creation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+creationColumns+` FROM creations
		 WHERE variant_group = ? ORDER BY variant_label ASC`, group)
	if err != nil {
		return nil, fmt.Errorf("list variant group: %w", err)
	}
	defer rows.Close()
	return collectCreations(rows)
}

// ListApprovedUnpublished returns creations ready for the publisher: approved
// or auto approved with no publication row yet.
func (s *Store) ListApprovedUnpublished(ctx context.Context, limit int) ([]*pipeline.Creation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + creationColumns + ` FROM creations c
		WHERE c.approval_status IN ('approved', 'auto_approved')
		  AND NOT EXISTS (
			SELECT 1 FROM publications p
			WHERE p.creation_id = c.id AND p.platform = c.platform)
		ORDER BY c.created_at ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list approved unpublished: %w", err)
	}
	defer rows.Close()
	return collectCreations(rows)
}

// UpdateApprovalStatus moves a creation's approval state, stamping
// approved_at when the new state grants approval.
func (s *Store) UpdateApprovalStatus(ctx context.Context, id string, status pipeline.ApprovalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var approvedAt any
	if status == pipeline.ApprovalApproved || status == pipeline.ApprovalAutoApproved {
		approvedAt = time.Now().UTC().Unix()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE creations SET approval_status = ?,
			approved_at = COALESCE(?, approved_at)
		WHERE id = ?`, string(status), approvedAt, id)
	if err != nil {
		return fmt.Errorf("update approval status: %w", err)
	}
	return requireRow(res)
}

// UpdateCreationVideoResult records the outcome of a deferred video task.
// Failures leave the creation publishable without its video.
func (s *Store) UpdateCreationVideoResult(ctx context.Context, id, videoURL, videoErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE creations SET video_url = ?, video_error = ? WHERE id = ?`,
		videoURL, videoErr, id)
	if err != nil {
		return fmt.Errorf("update creation video result: %w", err)
	}
	return requireRow(res)
}

// AppendCreationMediaURL attaches a generated asset URL to the creation.
func (s *Store) AppendCreationMediaURL(ctx context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT media_urls FROM creations WHERE id = ?`, id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read media urls: %w", err)
		}
		urls := unmarshalStrings(raw)
		urls = append(urls, url)
		encoded, err := marshalJSON(urls)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE creations SET media_urls = ? WHERE id = ?`, encoded, id)
		return err
	})
}

// SelectVariant approves one member of a variant group and rejects every
// sibling in the same transaction, so the exclusivity holds even if the
// process dies mid-operation. The creation must carry a variant group and
// sit in a reviewable state.
func (s *Store) SelectVariant(ctx context.Context, id string) (*pipeline.Creation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var selected *pipeline.Creation
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		c, err := getCreation(ctx, tx, id)
		if err != nil {
			return err
		}
		if c.VariantGroup == "" {
			return ErrNoVariantGroup
		}
		switch c.ApprovalStatus {
		case pipeline.ApprovalPending, pipeline.ApprovalPendingReview:
		default:
			return fmt.Errorf("%w: status %s", ErrNotSelectable, c.ApprovalStatus)
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE creations SET approval_status = ?, approved_at = ?
			WHERE id = ?`,
			string(pipeline.ApprovalApproved), now.Unix(), id); err != nil {
			return fmt.Errorf("approve variant: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE creations SET approval_status = ?
			WHERE variant_group = ? AND id != ?`,
			string(pipeline.ApprovalRejected), c.VariantGroup, id); err != nil {
			return fmt.Errorf("reject siblings: %w", err)
		}

		selected, err = getCreation(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return selected, nil
}

// CountCreationsByStatus returns per-status row counts for reporting.
func (s *Store) CountCreationsByStatus(ctx context.Context) (map[pipeline.ApprovalStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT approval_status, COUNT(*) FROM creations GROUP BY approval_status`)
	if err != nil {
		return nil, fmt.Errorf("count creations: %w", err)
	}
	defer rows.Close()

	out := make(map[pipeline.ApprovalStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[pipeline.ApprovalStatus(status)] = n
	}
	return out, rows.Err()
}

func collectCreations(rows *sql.Rows) ([]*pipeline.Creation, error) {
	var out []*pipeline.Creation
	for rows.Next() {
		c, err := scanCreation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCreation(row rowScanner) (*pipeline.Creation, error) {
	var c pipeline.Creation
	var platform, format, status string
	var media, skills, riskFlags, issues string
	var group, label sql.NullString
	var videoType, videoPrompt, videoScript, videoComposition sql.NullString
	var createdAt int64
	var approvedAt sql.NullInt64

	err := row.Scan(&c.ID, &c.DiscoveryID, &platform, &format, &c.Title, &c.Body,
		&media, &skills, &c.RiskScore, &riskFlags, &c.QualityScore, &issues,
		&group, &label, &status,
		&videoType, &videoPrompt, &videoScript, &videoComposition,
		&c.VideoURL, &c.VideoError, &createdAt, &approvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan creation: %w", err)
	}

	c.Platform = pipeline.Platform(platform)
	c.Format = pipeline.Format(format)
	c.ApprovalStatus = pipeline.ApprovalStatus(status)
	c.MediaURLs = unmarshalStrings(media)
	c.SkillsUsed = unmarshalStrings(skills)
	c.RiskFlags = unmarshalStrings(riskFlags)
	c.QualityIssues = unmarshalStrings(issues)
	c.VariantGroup = group.String
	c.VariantLabel = label.String
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	c.ApprovedAt = timeFromNull(approvedAt)

	if videoType.Valid && videoType.String != "" {
		spec := &pipeline.VideoSpec{
			Type:   pipeline.VideoType(videoType.String),
			Prompt: videoPrompt.String,
			Script: videoScript.String,
		}
		if videoComposition.Valid && videoComposition.String != "" {
			_ = json.Unmarshal([]byte(videoComposition.String), &spec.Composition)
		}
		c.Video = spec
	}
	return &c, nil
}

func videoColumns(spec *pipeline.VideoSpec) (videoType, prompt, script, composition any, err error) {
	if spec == nil || spec.Type == "" {
		return nil, nil, nil, nil, nil
	}
	videoType = string(spec.Type)
	if spec.Prompt != "" {
		prompt = spec.Prompt
	}
	if spec.Script != "" {
		script = spec.Script
	}
	if len(spec.Composition) > 0 {
		encoded, merr := marshalJSON(spec.Composition)
		if merr != nil {
			return nil, nil, nil, nil, merr
		}
		composition = encoded
	}
	return videoType, prompt, script, composition, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
