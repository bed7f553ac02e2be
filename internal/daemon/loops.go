package daemon

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/budget"
	"git.home.luguber.info/inful/contentpipe/internal/events"
	"git.home.luguber.info/inful/contentpipe/internal/logfields"
	"git.home.luguber.info/inful/contentpipe/internal/metrics"
)

// No loop body may outlive min(its interval, this cap).
const maxLoopBody = 15 * time.Minute

// feedbackTriggerAt is the outcome count at which the metrics loop runs
// feedback early instead of waiting for the daily schedule.
const feedbackTriggerAt = 3

// tick runs one gated loop body: governor first, mode gate second, then the
// body under a bounded context. Body errors are logged and absorbed; the
// loop always survives its tick.
func (d *Daemon) tick(name string, interval time.Duration, body func(context.Context, budget.Mode) error) {
	bound := interval
	if bound > maxLoopBody {
		bound = maxLoopBody
	}
	ctx, cancel := context.WithTimeout(context.Background(), bound)
	defer cancel()

	mode, err := d.governor.ModeFor(ctx)
	if err != nil {
		d.logger.Warn("Budget evaluation failed, holding last mode",
			logfields.Loop(name), logfields.Error(err))
		mode = d.governor.Current()
	}
	d.noteModeTransition(ctx, mode)

	if !mode.LoopEnabled(name) {
		d.logger.Debug("Loop gated off by operating mode",
			logfields.Loop(name), logfields.Mode(string(mode)))
		d.recorder.IncLoopResult(name, metrics.ResultCanceled)
		return
	}

	start := time.Now()
	err = body(ctx, mode)
	d.recorder.ObserveLoopDuration(name, time.Since(start))
	if err != nil {
		d.recorder.IncLoopResult(name, metrics.ResultFailed)
		d.logger.Error("Loop tick failed", logfields.Loop(name), logfields.Error(err))
		return
	}
	d.recorder.IncLoopResult(name, metrics.ResultSuccess)
}

// noteModeTransition emits a mode-change event exactly once per transition.
func (d *Daemon) noteModeTransition(ctx context.Context, mode budget.Mode) {
	d.mu.Lock()
	old := d.lastMode
	d.lastMode = mode
	d.mu.Unlock()
	if old == mode {
		return
	}
	d.emitter.Emit(ctx, events.KindModeTransition, events.ModeTransitionEvent{
		Old:       string(old),
		New:       string(mode),
		Timestamp: time.Now().UTC(),
	})
}

// scoutTick is the steady-state control flow: discover, analyze, draft under
// the mode's creation budget, then publish whatever auto-approved.
func (d *Daemon) scoutTick(ctx context.Context, mode budget.Mode) error {
	scoutSummary, err := d.scout.Run(ctx)
	if err != nil {
		return err
	}
	d.emitter.Emit(ctx, events.KindDiscoveryBatch, events.DiscoveryBatchEvent{
		Found:     scoutSummary.NewDiscoveries,
		Sources:   scoutSummary.ActiveSources,
		Timestamp: time.Now().UTC(),
	})

	if _, err := d.analyst.Run(ctx); err != nil {
		return err
	}

	limit := mode.CreatorLimit()
	if limit == 0 {
		d.logger.Info("Creation skipped by operating mode", logfields.Mode(string(mode)))
		return nil
	}
	if _, err := d.creator.Run(ctx, limit); err != nil {
		return err
	}

	pubSummary, err := d.publisher.Run(ctx, 0)
	if err != nil {
		return err
	}
	if pubSummary.Published+pubSummary.Failed+pubSummary.NoPublisher > 0 {
		d.emitter.Emit(ctx, events.KindPublication, events.PublicationEvent{
			Published:   pubSummary.Published,
			Failed:      pubSummary.Failed,
			NoPublisher: pubSummary.NoPublisher,
			Timestamp:   time.Now().UTC(),
		})
	}
	return nil
}

// metricsTick collects due interval snapshots. Enough fresh outcomes trigger
// an early feedback pass instead of waiting out the daily cadence.
func (d *Daemon) metricsTick(ctx context.Context, _ budget.Mode) error {
	if _, err := d.tracker.CollectDue(ctx); err != nil {
		return err
	}
	if n := d.bus.Drain(); n >= feedbackTriggerAt {
		d.logger.Info("Fresh outcomes triggering early feedback", slog.Int("outcomes", n))
		if _, err := d.feedback.Run(ctx); err != nil {
			d.logger.Warn("Early feedback run failed", logfields.Error(err))
		}
	}
	return nil
}

func (d *Daemon) engagementTick(ctx context.Context, _ budget.Mode) error {
	_, err := d.tracker.EngagementSweep(ctx)
	return err
}

func (d *Daemon) feedbackTick(ctx context.Context, _ budget.Mode) error {
	_, err := d.feedback.Run(ctx)
	return err
}

func (d *Daemon) reviewTick(ctx context.Context, _ budget.Mode) error {
	report, err := d.feedback.WeeklyReview(ctx)
	if err != nil {
		return err
	}
	d.emitter.Emit(ctx, events.KindWeeklyReview, events.WeeklyReviewEvent{
		UnderReview:        len(report.UnderReview),
		RunningExperiments: report.RunningExperiments,
		PublicationsWeek:   report.PublicationsWeek,
		Timestamp:          time.Now().UTC(),
	})
	return nil
}
