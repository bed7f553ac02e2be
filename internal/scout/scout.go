// Package scout runs the discovery tick: fan out to every healthy source
// adapter, dedupe what comes back, and persist the rest as new discoveries.
package scout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
	"git.home.luguber.info/inful/contentpipe/internal/logfields"
	"git.home.luguber.info/inful/contentpipe/internal/metrics"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
	"git.home.luguber.info/inful/contentpipe/internal/sources"
	"git.home.luguber.info/inful/contentpipe/internal/store"
)

// Store is the persistence surface the scout writes discoveries through.
type Store interface {
	SaveDiscovery(ctx context.Context, d *pipeline.Discovery) error
}

// Health gates and records per-source fetch results.
type Health interface {
	ShouldSkip(source string) bool
	RecordSuccess(source string)
	RecordFailure(source string) (warn bool, backoff time.Duration)
}

// SourceStats is one adapter's contribution to a tick.
type SourceStats struct {
	Fetched    int
	New        int
	Duplicates int
	Error      string
}

// Summary reports what one scout tick did.
type Summary struct {
	NewDiscoveries int
	ActiveSources  int
	SkippedSources []string
	PerSource      map[string]SourceStats
}

// Scout coordinates source adapters, health tracking, and discovery storage.
type Scout struct {
	adapters []sources.Adapter
	store    Store
	health   Health
	recorder metrics.Recorder
	logger   *slog.Logger
	fanout   int
}

// New builds a scout. fanout bounds concurrent fetches; zero or negative
// means every adapter fetches at once.
func New(adapters []sources.Adapter, st Store, health Health, recorder metrics.Recorder, logger *slog.Logger, fanout int) *Scout {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scout{
		adapters: adapters,
		store:    st,
		health:   health,
		recorder: recorder,
		logger:   logger,
		fanout:   fanout,
	}
}

type fetchResult struct {
	items []pipeline.DiscoveryItem
	err   error
}

// Run executes one discovery tick. Adapters in backoff are skipped. Each
// remaining adapter fetches independently; one adapter failing never cancels
// another. Items already known by content hash are counted as duplicates.
// A store write failure aborts the tick and surfaces to the caller.
func (s *Scout) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{PerSource: make(map[string]SourceStats)}

	var active []sources.Adapter
	for _, a := range s.adapters {
		if s.health.ShouldSkip(a.Name()) {
			summary.SkippedSources = append(summary.SkippedSources, a.Name())
			s.logger.Debug("Skipping source in backoff", logfields.Source(a.Name()))
			continue
		}
		active = append(active, a)
	}
	summary.ActiveSources = len(active)

	results := s.fetchAll(ctx, active)

	for i, a := range active {
		name := a.Name()
		res := results[i]
		stats := SourceStats{}

		if res.err != nil {
			stats.Error = res.err.Error()
			warn, backoff := s.health.RecordFailure(name)
			s.recorder.IncSourceResult(name, false)
			s.logger.Warn("Source fetch failed",
				logfields.Source(name), logfields.Error(res.err))
			if warn {
				s.logger.Warn("Source failing repeatedly", logfields.Source(name))
			}
			if backoff > 0 {
				s.logger.Warn("Source entering backoff",
					logfields.Source(name),
					slog.Duration("backoff", backoff))
			}
			summary.PerSource[name] = stats
			continue
		}

		s.health.RecordSuccess(name)
		s.recorder.IncSourceResult(name, true)
		stats.Fetched = len(res.items)

		for _, item := range res.items {
			err := s.store.SaveDiscovery(ctx, itemToDiscovery(item))
			switch {
			case err == nil:
				stats.New++
				summary.NewDiscoveries++
			case errors.Is(err, store.ErrDuplicateDiscovery):
				stats.Duplicates++
			default:
				summary.PerSource[name] = stats
				return summary, pipeerrors.Wrap(err, pipeerrors.CategoryStore, pipeerrors.SeverityError,
					"persist discovery").WithContext("source", name)
			}
		}

		s.recorder.AddDiscoveries(name, stats.New)
		s.recorder.AddDuplicates(name, stats.Duplicates)
		summary.PerSource[name] = stats
	}

	s.logger.Info("Scout tick complete",
		slog.Int("new_discoveries", summary.NewDiscoveries),
		slog.Int("active_sources", summary.ActiveSources),
		slog.Int("skipped_sources", len(summary.SkippedSources)))
	return summary, nil
}

// fetchAll invokes every adapter concurrently under the fan-out bound and
// returns results aligned with the input order.
func (s *Scout) fetchAll(ctx context.Context, adapters []sources.Adapter) []fetchResult {
	if len(adapters) == 0 {
		return nil
	}
	bound := s.fanout
	if bound < 1 || bound > len(adapters) {
		bound = len(adapters)
	}

	sem := make(chan struct{}, bound)
	results := make([]fetchResult, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a sources.Adapter) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			items, err := a.Fetch(ctx)
			results[i] = fetchResult{items: items, err: err}
		}(i, a)
	}
	wg.Wait()
	return results
}

func itemToDiscovery(it pipeline.DiscoveryItem) *pipeline.Discovery {
	return &pipeline.Discovery{
		ID:           uuid.NewString(),
		Source:       it.Source,
		SourceID:     it.SourceID,
		Title:        it.Title,
		URL:          it.URL,
		RawScore:     it.RawScore,
		RawData:      it.RawData,
		DiscoveredAt: it.DiscoveredAt,
	}
}
