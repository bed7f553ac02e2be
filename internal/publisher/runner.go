package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
	"git.home.luguber.info/inful/contentpipe/internal/logfields"
	"git.home.luguber.info/inful/contentpipe/internal/metrics"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// Store is the persistence surface the runner needs.
type Store interface {
	ListApprovedUnpublished(ctx context.Context, limit int) ([]*pipeline.Creation, error)
	GetDiscovery(ctx context.Context, id string) (*pipeline.Discovery, error)
	SavePublication(ctx context.Context, p *pipeline.Publication) error
	UpdateDiscoveryStatus(ctx context.Context, id string, status pipeline.DiscoveryStatus) error
}

// Summary reports what one publish tick did.
type Summary struct {
	Published   int
	Failed      int
	NoPublisher int
}

// Runner fans approved creations out to their platform publishers. One
// creation failing never blocks the others.
type Runner struct {
	store      Store
	publishers map[pipeline.Platform]Publisher
	recorder   metrics.Recorder
	logger     *slog.Logger
}

// NewRunner builds a runner over a set of platform publishers.
func NewRunner(store Store, publishers []Publisher, recorder metrics.Recorder, logger *slog.Logger) *Runner {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	byPlatform := make(map[pipeline.Platform]Publisher, len(publishers))
	for _, p := range publishers {
		byPlatform[p.Platform()] = p
	}
	return &Runner{store: store, publishers: byPlatform, recorder: recorder, logger: logger}
}

// Publisher returns the publisher registered for a platform, if any. The
// metrics collector reads engagement through the same client that published.
func (r *Runner) Publisher(platform pipeline.Platform) (Publisher, bool) {
	p, ok := r.publishers[platform]
	return p, ok
}

// Run publishes every approved, unpublished creation in parallel. Partial
// success is normal; each failure is logged and counted, not propagated.
func (r *Runner) Run(ctx context.Context, limit int) (*Summary, error) {
	creations, err := r.store.ListApprovedUnpublished(ctx, limit)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryStore, pipeerrors.SeverityError,
			"list approved creations")
	}

	summary := &Summary{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range creations {
		wg.Add(1)
		go func(c *pipeline.Creation) {
			defer wg.Done()
			outcome := r.publishOne(ctx, c)
			mu.Lock()
			switch outcome {
			case publishOK:
				summary.Published++
			case publishNoPublisher:
				summary.NoPublisher++
			default:
				summary.Failed++
			}
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	r.logger.Info("Publish tick complete",
		slog.Int("published", summary.Published),
		slog.Int("failed", summary.Failed),
		slog.Int("no_publisher", summary.NoPublisher))
	return summary, nil
}

type publishOutcome int

const (
	publishOK publishOutcome = iota
	publishFailed
	publishNoPublisher
)

func (r *Runner) publishOne(ctx context.Context, c *pipeline.Creation) publishOutcome {
	pub, ok := r.publishers[c.Platform]
	if !ok {
		r.logger.Warn("No publisher for platform",
			logfields.CreationID(c.ID), logfields.Platform(string(c.Platform)))
		return publishNoPublisher
	}

	ref, err := pub.Publish(ctx, c)
	if err != nil {
		r.recorder.IncPublishResult(string(c.Platform), false)
		r.logger.Warn("Publish failed",
			logfields.CreationID(c.ID),
			logfields.Platform(string(c.Platform)),
			logfields.Error(err))
		return publishFailed
	}

	now := time.Now().UTC()
	p := &pipeline.Publication{
		ID:                     uuid.NewString(),
		CreationID:             c.ID,
		Platform:               c.Platform,
		PlatformPostID:         ref.PostID,
		PlatformURL:            ref.URL,
		ArbitrageWindowMinutes: r.arbitrageWindow(ctx, c, now),
		PublishedAt:            now,
	}
	if err := r.store.SavePublication(ctx, p); err != nil {
		r.recorder.IncPublishResult(string(c.Platform), false)
		r.logger.Error("Persisting publication failed",
			logfields.CreationID(c.ID), logfields.Error(err))
		return publishFailed
	}

	if err := r.store.UpdateDiscoveryStatus(ctx, c.DiscoveryID, pipeline.DiscoveryPublished); err != nil {
		// The publication row exists; the discovery status lags until the
		// next successful publish of a sibling creation.
		r.logger.Warn("Updating discovery status failed",
			logfields.DiscoveryID(c.DiscoveryID), logfields.Error(err))
	}

	r.recorder.IncPublishResult(string(c.Platform), true)
	r.logger.Info("Creation published",
		logfields.CreationID(c.ID),
		logfields.Platform(string(c.Platform)),
		slog.String("post_id", ref.PostID))
	return publishOK
}

// arbitrageWindow measures discovery-to-publication speed in whole minutes.
// Non-positive or unknowable windows are recorded as null.
func (r *Runner) arbitrageWindow(ctx context.Context, c *pipeline.Creation, publishedAt time.Time) *int64 {
	d, err := r.store.GetDiscovery(ctx, c.DiscoveryID)
	if err != nil {
		r.logger.Warn("Discovery lookup for arbitrage window failed",
			logfields.DiscoveryID(c.DiscoveryID), logfields.Error(err))
		return nil
	}
	minutes := int64(publishedAt.Sub(d.DiscoveredAt).Minutes())
	if minutes <= 0 {
		return nil
	}
	return &minutes
}
