package daemon

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentpipe/internal/analyst"
	"git.home.luguber.info/inful/contentpipe/internal/budget"
	"git.home.luguber.info/inful/contentpipe/internal/creator"
	"git.home.luguber.info/inful/contentpipe/internal/feedback"
	"git.home.luguber.info/inful/contentpipe/internal/metrics"
	"git.home.luguber.info/inful/contentpipe/internal/publisher"
	"git.home.luguber.info/inful/contentpipe/internal/scout"
	"git.home.luguber.info/inful/contentpipe/internal/tracker"
)

type fakeGovernor struct {
	mode budget.Mode
	err  error
}

func (f *fakeGovernor) ModeFor(context.Context) (budget.Mode, error) { return f.mode, f.err }
func (f *fakeGovernor) Current() budget.Mode                         { return f.mode }

type fakeScout struct {
	calls int
	err   error
}

func (f *fakeScout) Run(context.Context) (*scout.Summary, error) {
	f.calls++
	return &scout.Summary{NewDiscoveries: 4, ActiveSources: 2}, f.err
}

type fakeAnalyst struct{ calls int }

func (f *fakeAnalyst) Run(context.Context) (*analyst.Summary, error) {
	f.calls++
	return &analyst.Summary{Analyzed: 4}, nil
}

type fakeCreator struct {
	calls  int
	limits []int
}

func (f *fakeCreator) Run(_ context.Context, limit int) (*creator.Summary, error) {
	f.calls++
	f.limits = append(f.limits, limit)
	return &creator.Summary{Drafted: 2}, nil
}

type fakePublisher struct{ calls int }

func (f *fakePublisher) Run(context.Context, int) (*publisher.Summary, error) {
	f.calls++
	return &publisher.Summary{Published: 1}, nil
}

type fakeTracker struct {
	collects int
	sweeps   int
}

func (f *fakeTracker) CollectDue(context.Context) (*tracker.Summary, error) {
	f.collects++
	return &tracker.Summary{Snapshots: 1}, nil
}

func (f *fakeTracker) EngagementSweep(context.Context) (int, error) {
	f.sweeps++
	return 3, nil
}

type fakeFeedback struct {
	runs    int
	reviews int
}

func (f *fakeFeedback) Run(context.Context) (*feedback.Summary, error) {
	f.runs++
	return &feedback.Summary{}, nil
}

func (f *fakeFeedback) WeeklyReview(context.Context) (*feedback.Report, error) {
	f.reviews++
	return &feedback.Report{}, nil
}

type fakeDrainer struct{ pending int }

func (f *fakeDrainer) Drain() int {
	n := f.pending
	f.pending = 0
	return n
}

type resultRecorder struct {
	metrics.NoopRecorder
	results map[string][]metrics.ResultLabel
}

func newResultRecorder() *resultRecorder {
	return &resultRecorder{results: make(map[string][]metrics.ResultLabel)}
}

func (r *resultRecorder) IncLoopResult(loop string, result metrics.ResultLabel) {
	r.results[loop] = append(r.results[loop], result)
}

func testDaemon(mode budget.Mode) (*Daemon, *fakeScout, *fakeAnalyst, *fakeCreator, *fakePublisher, *fakeFeedback, *resultRecorder) {
	sc := &fakeScout{}
	an := &fakeAnalyst{}
	cr := &fakeCreator{}
	pub := &fakePublisher{}
	fb := &fakeFeedback{}
	rec := newResultRecorder()
	d := &Daemon{
		logger:    slog.Default(),
		recorder:  rec,
		governor:  &fakeGovernor{mode: mode},
		scout:     sc,
		analyst:   an,
		creator:   cr,
		publisher: pub,
		tracker:   &fakeTracker{},
		feedback:  fb,
		bus:       &fakeDrainer{},
		lastMode:  mode,
	}
	return d, sc, an, cr, pub, fb, rec
}

func TestTick_FullMode_RunsBodyAndRecordsSuccess(t *testing.T) {
	d, _, _, _, _, _, rec := testDaemon(budget.ModeFull)

	ran := false
	d.tick("scout", time.Minute, func(context.Context, budget.Mode) error {
		ran = true
		return nil
	})

	require.True(t, ran)
	require.Equal(t, []metrics.ResultLabel{metrics.ResultSuccess}, rec.results["scout"])
}

func TestTick_PausedMode_SkipsBody(t *testing.T) {
	d, _, _, _, _, _, rec := testDaemon(budget.ModePaused)

	ran := false
	d.tick("scout", time.Minute, func(context.Context, budget.Mode) error {
		ran = true
		return nil
	})

	require.False(t, ran)
	require.Equal(t, []metrics.ResultLabel{metrics.ResultCanceled}, rec.results["scout"])
}

func TestTick_BodyError_RecordedNotPropagated(t *testing.T) {
	d, _, _, _, _, _, rec := testDaemon(budget.ModeFull)

	d.tick("metrics", time.Minute, func(context.Context, budget.Mode) error {
		return errors.New("store gone")
	})

	require.Equal(t, []metrics.ResultLabel{metrics.ResultFailed}, rec.results["metrics"])
}

func TestTick_GovernorError_HoldsCurrentMode(t *testing.T) {
	d, _, _, _, _, _, rec := testDaemon(budget.ModeFull)
	d.governor = &fakeGovernor{mode: budget.ModeReduced, err: errors.New("db locked")}

	var got budget.Mode
	d.tick("scout", time.Minute, func(_ context.Context, m budget.Mode) error {
		got = m
		return nil
	})

	require.Equal(t, budget.ModeReduced, got)
	require.Equal(t, []metrics.ResultLabel{metrics.ResultSuccess}, rec.results["scout"])
}

func TestScoutTick_FullMode_ChainsAllStages(t *testing.T) {
	d, sc, an, cr, pub, _, _ := testDaemon(budget.ModeFull)

	err := d.scoutTick(context.Background(), budget.ModeFull)

	require.NoError(t, err)
	require.Equal(t, 1, sc.calls)
	require.Equal(t, 1, an.calls)
	require.Equal(t, []int{10}, cr.limits)
	require.Equal(t, 1, pub.calls)
}

func TestScoutTick_ReducedMode_CreatorLimitThree(t *testing.T) {
	d, _, _, cr, _, _, _ := testDaemon(budget.ModeReduced)

	err := d.scoutTick(context.Background(), budget.ModeReduced)

	require.NoError(t, err)
	require.Equal(t, []int{3}, cr.limits)
}

func TestScoutTick_MinimalMode_SkipsCreatorAndPublisher(t *testing.T) {
	d, sc, an, cr, pub, _, _ := testDaemon(budget.ModeMinimal)

	err := d.scoutTick(context.Background(), budget.ModeMinimal)

	require.NoError(t, err)
	require.Equal(t, 1, sc.calls)
	require.Equal(t, 1, an.calls)
	require.Zero(t, cr.calls)
	require.Zero(t, pub.calls)
}

func TestScoutTick_ScoutFailure_StopsChain(t *testing.T) {
	d, sc, an, _, _, _, _ := testDaemon(budget.ModeFull)
	sc.err = errors.New("all sources down")

	err := d.scoutTick(context.Background(), budget.ModeFull)

	require.Error(t, err)
	require.Zero(t, an.calls)
}

func TestMetricsTick_EnoughOutcomes_TriggersEarlyFeedback(t *testing.T) {
	d, _, _, _, _, fb, _ := testDaemon(budget.ModeFull)
	d.bus = &fakeDrainer{pending: 3}

	require.NoError(t, d.metricsTick(context.Background(), budget.ModeFull))
	require.Equal(t, 1, fb.runs)
}

func TestMetricsTick_FewOutcomes_NoEarlyFeedback(t *testing.T) {
	d, _, _, _, _, fb, _ := testDaemon(budget.ModeFull)
	d.bus = &fakeDrainer{pending: 2}

	require.NoError(t, d.metricsTick(context.Background(), budget.ModeFull))
	require.Zero(t, fb.runs)
}

func TestTriggerScout_PausedMode_Refused(t *testing.T) {
	d, sc, _, _, _, _, _ := testDaemon(budget.ModePaused)

	_, err := d.TriggerScout(context.Background())

	require.Error(t, err)
	require.Zero(t, sc.calls)
}

func TestTriggerCreate_MinimalMode_Refused(t *testing.T) {
	d, _, an, _, _, _, _ := testDaemon(budget.ModeMinimal)

	_, err := d.TriggerCreate(context.Background())

	require.Error(t, err)
	require.Zero(t, an.calls)
}

func TestTriggerFeedback_MinimalMode_Allowed(t *testing.T) {
	d, _, _, _, _, fb, _ := testDaemon(budget.ModeMinimal)

	_, err := d.TriggerFeedback(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, fb.runs)
}
