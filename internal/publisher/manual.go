package publisher

import (
	"context"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// ManualPublisher stands in for platforms whose APIs are not wired yet. It
// hands back a deterministic pending post id so the operator can copy the
// draft out and post it by hand; metrics read as zeros with a note.
type ManualPublisher struct {
	platform pipeline.Platform
}

// NewManualPublisher builds a placeholder publisher for one platform.
func NewManualPublisher(platform pipeline.Platform) *ManualPublisher {
	return &ManualPublisher{platform: platform}
}

// Platform returns the platform this placeholder covers.
func (p *ManualPublisher) Platform() pipeline.Platform {
	return p.platform
}

// Publish records the creation as manually pending without touching any
// external service.
func (p *ManualPublisher) Publish(_ context.Context, c *pipeline.Creation) (*PostRef, error) {
	return &PostRef{PostID: "pending_manual:" + c.ID}, nil
}

// GetMetrics reports zeros; manual posts have no scrapeable counters.
func (p *ManualPublisher) GetMetrics(context.Context, string) (*Engagement, error) {
	return &Engagement{Note: "manual platform, metrics unavailable"}, nil
}
