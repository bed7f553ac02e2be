package daemon

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/budget"
	"git.home.luguber.info/inful/contentpipe/internal/creator"
	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
	"git.home.luguber.info/inful/contentpipe/internal/events"
	"git.home.luguber.info/inful/contentpipe/internal/feedback"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
	"git.home.luguber.info/inful/contentpipe/internal/scout"
)

// Manual triggers run the same bodies as the scheduled loops, under the same
// mode gate, but propagate errors to the caller instead of absorbing them.

// gate evaluates the budget and rejects the trigger when the mode disables
// the named loop.
func (d *Daemon) gate(ctx context.Context, loop string) (budget.Mode, error) {
	mode, err := d.governor.ModeFor(ctx)
	if err != nil {
		return mode, err
	}
	d.noteModeTransition(ctx, mode)
	if !mode.LoopEnabled(loop) {
		return mode, pipeerrors.New(pipeerrors.CategoryDaemon, pipeerrors.SeverityWarning,
			fmt.Sprintf("%s disabled in %s mode", loop, mode))
	}
	return mode, nil
}

// TriggerScout runs one discovery tick.
func (d *Daemon) TriggerScout(ctx context.Context) (*scout.Summary, error) {
	if _, err := d.gate(ctx, "scout"); err != nil {
		return nil, err
	}
	summary, err := d.scout.Run(ctx)
	if err != nil {
		return nil, err
	}
	d.emitter.Emit(ctx, events.KindDiscoveryBatch, events.DiscoveryBatchEvent{
		Found:     summary.NewDiscoveries,
		Sources:   summary.ActiveSources,
		Timestamp: time.Now().UTC(),
	})
	return summary, nil
}

// TriggerCreate runs analysis and drafting for whatever is pending, then
// publishes auto-approved creations.
func (d *Daemon) TriggerCreate(ctx context.Context) (*creator.Summary, error) {
	mode, err := d.gate(ctx, "scout")
	if err != nil {
		return nil, err
	}
	limit := mode.CreatorLimit()
	if limit == 0 {
		return nil, pipeerrors.New(pipeerrors.CategoryDaemon, pipeerrors.SeverityWarning,
			fmt.Sprintf("creation disabled in %s mode", mode))
	}
	if _, err := d.analyst.Run(ctx); err != nil {
		return nil, err
	}
	summary, err := d.creator.Run(ctx, limit)
	if err != nil {
		return nil, err
	}
	if _, err := d.publisher.Run(ctx, 0); err != nil {
		return summary, err
	}
	return summary, nil
}

// TriggerFeedback runs one feedback pass.
func (d *Daemon) TriggerFeedback(ctx context.Context) (*feedback.Summary, error) {
	if _, err := d.gate(ctx, "feedback"); err != nil {
		return nil, err
	}
	return d.feedback.Run(ctx)
}

// TriggerReview runs the weekly review.
func (d *Daemon) TriggerReview(ctx context.Context) (*feedback.Report, error) {
	if _, err := d.gate(ctx, "review"); err != nil {
		return nil, err
	}
	return d.feedback.WeeklyReview(ctx)
}

// PendingApprovals lists creations waiting on a human.
func (d *Daemon) PendingApprovals(ctx context.Context) ([]*pipeline.Creation, error) {
	return d.approvals.Pending(ctx)
}

// SelectVariant approves one variant, rejects its siblings, and kicks off
// any deferred media.
func (d *Daemon) SelectVariant(ctx context.Context, creationID string) (*pipeline.Creation, error) {
	c, err := d.approvals.Select(ctx, creationID)
	if err != nil {
		return nil, err
	}
	d.emitter.Emit(ctx, events.KindApproval, events.ApprovalEvent{
		CreationID:   c.ID,
		Status:       string(c.ApprovalStatus),
		VariantGroup: c.VariantGroup,
		Timestamp:    time.Now().UTC(),
	})
	return c, nil
}

// Approve approves one creation.
func (d *Daemon) Approve(ctx context.Context, creationID string) (*pipeline.Creation, error) {
	c, err := d.approvals.Approve(ctx, creationID)
	if err != nil {
		return nil, err
	}
	d.emitter.Emit(ctx, events.KindApproval, events.ApprovalEvent{
		CreationID: c.ID,
		Status:     string(c.ApprovalStatus),
		Timestamp:  time.Now().UTC(),
	})
	return c, nil
}

// Reject rejects one creation.
func (d *Daemon) Reject(ctx context.Context, creationID string) error {
	if err := d.approvals.Reject(ctx, creationID); err != nil {
		return err
	}
	d.emitter.Emit(ctx, events.KindApproval, events.ApprovalEvent{
		CreationID: creationID,
		Status:     string(pipeline.ApprovalRejected),
		Timestamp:  time.Now().UTC(),
	})
	return nil
}

// RegisterExperiment starts a two-arm test for a skill.
func (d *Daemon) RegisterExperiment(ctx context.Context, skill, variantA, variantB, metricTarget string) (*pipeline.Experiment, error) {
	return d.experiments.Register(ctx, skill, variantA, variantB, metricTarget)
}

// ResetSource clears a source's failure history and backoff.
func (d *Daemon) ResetSource(source string) {
	d.health.Reset(source)
}
