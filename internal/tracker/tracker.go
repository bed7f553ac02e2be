// Package tracker collects engagement for publications on a fixed interval
// ladder and turns 24h snapshots into per-skill learning signals.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/logfields"
	"git.home.luguber.info/inful/contentpipe/internal/metrics"
	"git.home.luguber.info/inful/contentpipe/internal/outcome"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
	"git.home.luguber.info/inful/contentpipe/internal/publisher"
	"git.home.luguber.info/inful/contentpipe/internal/store"
)

// sweepWindow bounds how far back the engagement sweep looks.
const sweepWindow = 7 * 24 * time.Hour

// Store is the persistence surface the tracker needs.
type Store interface {
	ListPublicationsWithIncompleteMetrics(ctx context.Context) ([]*pipeline.Publication, error)
	CollectedIntervals(ctx context.Context, publicationID string) (map[pipeline.MetricInterval]bool, error)
	SaveMetric(ctx context.Context, m *pipeline.Metric) error
	GetCreation(ctx context.Context, id string) (*pipeline.Creation, error)
	ListRecentPublications(ctx context.Context, since time.Time) ([]*pipeline.Publication, error)
	UpdateLatestEngagement(ctx context.Context, id string, rate float64, at time.Time) error
}

// Publishers resolves the platform client a publication was posted through.
type Publishers interface {
	Publisher(platform pipeline.Platform) (publisher.Publisher, bool)
}

// Bus receives per-skill outcomes derived from 24h engagement.
type Bus interface {
	RecordEngagement(ctx context.Context, skills []string, platform pipeline.Platform, publicationID string, engagementRate float64, at time.Time) (int, error)
}

// Tracker is the metrics collector plus the lossy engagement sweep.
type Tracker struct {
	store      Store
	publishers Publishers
	bus        Bus
	recorder   metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// New builds a tracker.
func New(st Store, publishers Publishers, bus Bus, recorder metrics.Recorder, logger *slog.Logger) *Tracker {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:      st,
		publishers: publishers,
		bus:        bus,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Summary reports one collection tick.
type Summary struct {
	Snapshots int
	Outcomes  int
	Failed    int
}

// CollectDue walks publications with missing interval snapshots and collects
// every due one, in ascending interval order per publication. A later
// interval is never attempted while an earlier one is missing: a failed or
// not-yet-due interval stops that publication's ladder for this tick. After
// persisting a 24h row the engagement maps to per-skill outcomes on the bus.
// Returns the number of outcomes written so the caller can decide whether a
// feedback run is worth triggering early.
func (t *Tracker) CollectDue(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	pubs, err := t.store.ListPublicationsWithIncompleteMetrics(ctx)
	if err != nil {
		return summary, err
	}

	for _, pub := range pubs {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if err := t.collectFor(ctx, pub, summary); err != nil {
			summary.Failed++
			t.logger.Warn("Metric collection failed for publication",
				slog.String("publication_id", pub.ID),
				logfields.Platform(string(pub.Platform)),
				logfields.Error(err))
		}
	}

	t.logger.Info("Metrics tick complete",
		slog.Int("snapshots", summary.Snapshots),
		slog.Int("outcomes", summary.Outcomes),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

func (t *Tracker) collectFor(ctx context.Context, pub *pipeline.Publication, summary *Summary) error {
	client, ok := t.publishers.Publisher(pub.Platform)
	if !ok {
		return nil
	}

	collected, err := t.store.CollectedIntervals(ctx, pub.ID)
	if err != nil {
		return err
	}

	now := t.now().UTC()
	for _, interval := range pipeline.MetricIntervals() {
		if collected[interval] {
			continue
		}
		if now.Before(pub.PublishedAt.Add(interval.Offset())) {
			// Intervals are ordered; nothing later is due either.
			return nil
		}

		eng, err := client.GetMetrics(ctx, pub.PlatformPostID)
		if err != nil {
			return err
		}

		m := &pipeline.Metric{
			PublicationID:   pub.ID,
			Interval:        interval,
			Views:           eng.Views,
			Likes:           eng.Likes,
			Comments:        eng.Comments,
			Shares:          eng.Shares,
			Clicks:          eng.Clicks,
			FollowersGained: eng.FollowersGained,
			EngagementRate:  eng.Rate(),
			CollectedAt:     now,
		}
		if err := t.store.SaveMetric(ctx, m); err != nil {
			if errors.Is(err, store.ErrDuplicateMetric) {
				continue
			}
			return err
		}
		summary.Snapshots++
		t.recorder.IncMetricSnapshot(string(interval))

		if interval == pipeline.Interval24h {
			n, err := t.recordOutcomes(ctx, pub, m.EngagementRate, now)
			if err != nil {
				return err
			}
			summary.Outcomes += n
		}
	}
	return nil
}

func (t *Tracker) recordOutcomes(ctx context.Context, pub *pipeline.Publication, rate float64, at time.Time) (int, error) {
	c, err := t.store.GetCreation(ctx, pub.CreationID)
	if err != nil {
		return 0, err
	}
	if len(c.SkillsUsed) == 0 {
		return 0, nil
	}
	return t.bus.RecordEngagement(ctx, c.SkillsUsed, pub.Platform, pub.ID, rate, at)
}

// EngagementSweep refreshes the lossy latest-engagement snapshot on every
// publication from the last seven days. A failed read skips the publication;
// a successful zero read is recorded as is, never fabricated upward. Interval
// metric rows are untouched by this path.
func (t *Tracker) EngagementSweep(ctx context.Context) (int, error) {
	now := t.now().UTC()
	pubs, err := t.store.ListRecentPublications(ctx, now.Add(-sweepWindow))
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, pub := range pubs {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		client, ok := t.publishers.Publisher(pub.Platform)
		if !ok {
			continue
		}
		eng, err := client.GetMetrics(ctx, pub.PlatformPostID)
		if err != nil {
			t.logger.Debug("Engagement sweep read failed",
				slog.String("publication_id", pub.ID), logfields.Error(err))
			continue
		}
		if err := t.store.UpdateLatestEngagement(ctx, pub.ID, eng.Rate(), now); err != nil {
			return updated, err
		}
		updated++
	}

	t.logger.Info("Engagement sweep complete", logfields.Count(updated))
	return updated, nil
}

// interface check: the production bus satisfies Bus.
var _ Bus = (*outcome.Bus)(nil)
