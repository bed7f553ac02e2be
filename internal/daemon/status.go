package daemon

import (
	"context"

	"git.home.luguber.info/inful/contentpipe/internal/health"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// Status is a point-in-time snapshot of the pipeline for operators.
type Status struct {
	Mode        string
	Discoveries map[pipeline.DiscoveryStatus]int
	Creations   map[pipeline.ApprovalStatus]int
	Skills      int
	QueueDepth  int
	Sources     []health.SourceHealth
}

// Status assembles the snapshot. Store read errors surface; the caller
// decides whether a partial status is worth showing.
func (d *Daemon) Status(ctx context.Context) (*Status, error) {
	discoveries, err := d.store.CountDiscoveriesByStatus(ctx)
	if err != nil {
		return nil, err
	}
	creations, err := d.store.CountCreationsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	depth := 0
	if d.mediaQueue != nil {
		depth = d.mediaQueue.Depth()
	}
	return &Status{
		Mode:        string(d.governor.Current()),
		Discoveries: discoveries,
		Creations:   creations,
		Skills:      len(d.library.All()),
		QueueDepth:  depth,
		Sources:     d.health.Snapshot(),
	}, nil
}
