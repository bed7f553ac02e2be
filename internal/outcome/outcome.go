// Package outcome turns publication engagement into per-skill learning
// signals: append-only SkillMetric rows plus confidence updates in the
// library.
package outcome

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/logfields"
	"git.home.luguber.info/inful/contentpipe/internal/metrics"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// ScoreEngagement maps a raw engagement rate (absolute ratio, not percent)
// onto [0,1]. The curve rewards anything above 5% heavily and punishes
// sub-1% rates hard.
func ScoreEngagement(e float64) float64 {
	switch {
	case e >= 0.05:
		return 0.8 + math.Min((e-0.05)*4, 0.2)
	case e >= 0.03:
		return 0.6 + (e-0.03)*10
	case e >= 0.01:
		return 0.3 + (e-0.01)*15
	default:
		return math.Max(e*30, 0.0)
	}
}

// BucketScore converts a score into an outcome bucket.
func BucketScore(score float64) pipeline.Outcome {
	switch {
	case score >= 0.6:
		return pipeline.OutcomeSuccess
	case score >= 0.3:
		return pipeline.OutcomePartial
	default:
		return pipeline.OutcomeFailure
	}
}

// Store persists skill metric rows.
type Store interface {
	SaveSkillMetric(ctx context.Context, m *pipeline.SkillMetric) error
}

// Library folds outcomes into skill confidence.
type Library interface {
	RecordOutcome(ctx context.Context, name string, outcome pipeline.Outcome, score float64, at time.Time) (pipeline.Skill, error)
}

// Bus records outcomes and counts how many landed since the last drain, which
// the daemon uses to decide whether a feedback run is worth triggering early.
type Bus struct {
	store    Store
	library  Library
	recorder metrics.Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	written int
}

// NewBus wires an outcome bus. A nil recorder disables metrics.
func NewBus(store Store, library Library, recorder metrics.Recorder, logger *slog.Logger) *Bus {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{store: store, library: library, recorder: recorder, logger: logger}
}

// Record persists one outcome row and updates the skill's confidence. A skill
// that has left the library (retired, renamed) still gets its history row;
// the confidence update is skipped with a warning.
func (b *Bus) Record(ctx context.Context, m pipeline.SkillMetric) error {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now().UTC()
	}
	if err := b.store.SaveSkillMetric(ctx, &m); err != nil {
		return err
	}

	sk, err := b.library.RecordOutcome(ctx, m.SkillName, m.Outcome, m.Score, m.RecordedAt)
	if err != nil {
		b.logger.Warn("Outcome recorded for skill missing from library",
			logfields.Skill(m.SkillName), logfields.Error(err))
	} else {
		b.recorder.SetSkillConfidence(sk.Name, sk.Confidence)
	}

	b.mu.Lock()
	b.written++
	b.mu.Unlock()
	return nil
}

// RecordEngagement maps a publication's 24h engagement to a score and outcome
// bucket, then records one row per skill used. Returns how many rows landed.
func (b *Bus) RecordEngagement(ctx context.Context, skills []string, platform pipeline.Platform, publicationID string, engagementRate float64, at time.Time) (int, error) {
	score := ScoreEngagement(engagementRate)
	bucket := BucketScore(score)
	note := fmt.Sprintf("publication=%s platform=%s engagement=%.4f", publicationID, platform, engagementRate)

	written := 0
	for _, name := range skills {
		m := pipeline.SkillMetric{
			SkillName:  name,
			Agent:      "metrics_collector",
			Task:       "engagement_24h",
			Outcome:    bucket,
			Score:      score,
			Context:    note,
			RecordedAt: at.UTC(),
		}
		if err := b.Record(ctx, m); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// Drain returns the number of outcomes recorded since the previous drain and
// resets the counter.
func (b *Bus) Drain() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.written
	b.written = 0
	return n
}
