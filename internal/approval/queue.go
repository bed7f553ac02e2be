// Package approval is the human review surface: listing drafts that wait for
// a decision, approving or rejecting singles, and selecting one variant out of
// a group.
package approval

import (
	"context"
	"fmt"
	"log/slog"

	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
	"git.home.luguber.info/inful/contentpipe/internal/logfields"
	"git.home.luguber.info/inful/contentpipe/internal/metrics"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// Store is the persistence surface the queue needs.
type Store interface {
	GetCreation(ctx context.Context, id string) (*pipeline.Creation, error)
	ListCreationsByStatus(ctx context.Context, status pipeline.ApprovalStatus, limit int) ([]*pipeline.Creation, error)
	ListVariantGroup(ctx context.Context, group string) ([]*pipeline.Creation, error)
	UpdateApprovalStatus(ctx context.Context, id string, status pipeline.ApprovalStatus) error
	SelectVariant(ctx context.Context, id string) (*pipeline.Creation, error)
}

// MediaQueue accepts deferred media jobs after a variant wins review.
type MediaQueue interface {
	Enqueue(creationID string, spec *pipeline.VideoSpec) error
}

// Queue exposes review operations over pending creations.
type Queue struct {
	store    Store
	media    MediaQueue
	recorder metrics.Recorder
	logger   *slog.Logger
}

// New builds an approval queue. media may be nil when no video provider is
// configured.
func New(store Store, media MediaQueue, recorder metrics.Recorder, logger *slog.Logger) *Queue {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: store, media: media, recorder: recorder, logger: logger}
}

// Pending returns every creation waiting on a human, review-required drafts
// first, each set oldest first.
func (q *Queue) Pending(ctx context.Context) ([]*pipeline.Creation, error) {
	review, err := q.store.ListCreationsByStatus(ctx, pipeline.ApprovalPendingReview, 0)
	if err != nil {
		return nil, err
	}
	pending, err := q.store.ListCreationsByStatus(ctx, pipeline.ApprovalPending, 0)
	if err != nil {
		return nil, err
	}
	return append(review, pending...), nil
}

// Group returns all variants of one creation's group so a reviewer can compare
// them side by side.
func (q *Queue) Group(ctx context.Context, creationID string) ([]*pipeline.Creation, error) {
	c, err := q.store.GetCreation(ctx, creationID)
	if err != nil {
		return nil, err
	}
	if c.VariantGroup == "" {
		return []*pipeline.Creation{c}, nil
	}
	return q.store.ListVariantGroup(ctx, c.VariantGroup)
}

// Select approves one variant and rejects its siblings atomically, then
// enqueues any deferred media the winner carries. A media enqueue failure is
// logged and swallowed; the approval already stands.
func (q *Queue) Select(ctx context.Context, creationID string) (*pipeline.Creation, error) {
	c, err := q.store.SelectVariant(ctx, creationID)
	if err != nil {
		return nil, err
	}
	q.recorder.IncApprovalOutcome(string(pipeline.ApprovalApproved))
	q.logger.Info("Variant selected",
		logfields.CreationID(c.ID),
		slog.String("variant_group", c.VariantGroup),
		slog.String("variant", c.VariantLabel))

	q.enqueueDeferredMedia(c)
	return c, nil
}

// Approve moves a single, ungrouped creation to approved. Grouped creations
// must go through Select so sibling exclusivity holds.
func (q *Queue) Approve(ctx context.Context, creationID string) (*pipeline.Creation, error) {
	c, err := q.reviewable(ctx, creationID)
	if err != nil {
		return nil, err
	}
	if c.VariantGroup != "" {
		return q.Select(ctx, creationID)
	}

	if err := q.store.UpdateApprovalStatus(ctx, creationID, pipeline.ApprovalApproved); err != nil {
		return nil, err
	}
	c.ApprovalStatus = pipeline.ApprovalApproved
	q.recorder.IncApprovalOutcome(string(pipeline.ApprovalApproved))
	q.logger.Info("Creation approved", logfields.CreationID(c.ID))

	q.enqueueDeferredMedia(c)
	return c, nil
}

// Reject moves a reviewable creation to rejected.
func (q *Queue) Reject(ctx context.Context, creationID string) error {
	if _, err := q.reviewable(ctx, creationID); err != nil {
		return err
	}
	if err := q.store.UpdateApprovalStatus(ctx, creationID, pipeline.ApprovalRejected); err != nil {
		return err
	}
	q.recorder.IncApprovalOutcome(string(pipeline.ApprovalRejected))
	q.logger.Info("Creation rejected", logfields.CreationID(creationID))
	return nil
}

// reviewable loads a creation and checks it still accepts a human decision.
func (q *Queue) reviewable(ctx context.Context, creationID string) (*pipeline.Creation, error) {
	c, err := q.store.GetCreation(ctx, creationID)
	if err != nil {
		return nil, err
	}
	switch c.ApprovalStatus {
	case pipeline.ApprovalPending, pipeline.ApprovalPendingReview:
		return c, nil
	default:
		return nil, pipeerrors.New(pipeerrors.CategoryValidation, pipeerrors.SeverityWarning,
			fmt.Sprintf("creation %s is %s, not reviewable", creationID, c.ApprovalStatus))
	}
}

func (q *Queue) enqueueDeferredMedia(c *pipeline.Creation) {
	if !c.HasDeferredMedia() {
		return
	}
	if q.media == nil {
		q.logger.Warn("No media queue configured, deferred video skipped",
			logfields.CreationID(c.ID))
		return
	}
	if err := q.media.Enqueue(c.ID, c.Video); err != nil {
		q.logger.Warn("Deferred media enqueue failed",
			logfields.CreationID(c.ID), logfields.Error(err))
	}
}
