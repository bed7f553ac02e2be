package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
	"git.home.luguber.info/inful/contentpipe/internal/publisher"
	"git.home.luguber.info/inful/contentpipe/internal/store"
)

type fakeStore struct {
	incomplete []*pipeline.Publication
	recent     []*pipeline.Publication
	collected  map[string]map[pipeline.MetricInterval]bool
	creations  map[string]*pipeline.Creation
	saved      []*pipeline.Metric
	latest     map[string]float64
	saveErr    error
}

func newStore() *fakeStore {
	return &fakeStore{
		collected: make(map[string]map[pipeline.MetricInterval]bool),
		creations: make(map[string]*pipeline.Creation),
		latest:    make(map[string]float64),
	}
}

func (f *fakeStore) ListPublicationsWithIncompleteMetrics(context.Context) ([]*pipeline.Publication, error) {
	return f.incomplete, nil
}

func (f *fakeStore) CollectedIntervals(_ context.Context, id string) (map[pipeline.MetricInterval]bool, error) {
	m := f.collected[id]
	if m == nil {
		m = make(map[pipeline.MetricInterval]bool)
	}
	return m, nil
}

func (f *fakeStore) SaveMetric(_ context.Context, m *pipeline.Metric) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, m)
	return nil
}

func (f *fakeStore) GetCreation(_ context.Context, id string) (*pipeline.Creation, error) {
	c, ok := f.creations[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (f *fakeStore) ListRecentPublications(context.Context, time.Time) ([]*pipeline.Publication, error) {
	return f.recent, nil
}

func (f *fakeStore) UpdateLatestEngagement(_ context.Context, id string, rate float64, _ time.Time) error {
	f.latest[id] = rate
	return nil
}

type fakePub struct {
	eng  *publisher.Engagement
	err  error
	gets int
}

func (f *fakePub) Platform() pipeline.Platform { return pipeline.PlatformBlog }

func (f *fakePub) Publish(context.Context, *pipeline.Creation) (*publisher.PostRef, error) {
	return nil, errors.New("not used")
}

func (f *fakePub) GetMetrics(context.Context, string) (*publisher.Engagement, error) {
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	return f.eng, nil
}

type fakePublishers struct{ pub publisher.Publisher }

func (f *fakePublishers) Publisher(pipeline.Platform) (publisher.Publisher, bool) {
	if f.pub == nil {
		return nil, false
	}
	return f.pub, true
}

type fakeBus struct {
	calls  int
	skills []string
	rate   float64
}

func (f *fakeBus) RecordEngagement(_ context.Context, skills []string, _ pipeline.Platform, _ string, rate float64, _ time.Time) (int, error) {
	f.calls++
	f.skills = skills
	f.rate = rate
	return len(skills), nil
}

func publication(id, creationID string, age time.Duration) *pipeline.Publication {
	return &pipeline.Publication{
		ID: id, CreationID: creationID, Platform: pipeline.PlatformBlog,
		PlatformPostID: "p-" + id, PublishedAt: time.Now().UTC().Add(-age),
	}
}

func engagement() *publisher.Engagement {
	return &publisher.Engagement{Views: 1000, Likes: 20, Comments: 5} // rate 0.025
}

func TestCollectDue_CollectsDueIntervalsInOrder(t *testing.T) {
	st := newStore()
	st.incomplete = []*pipeline.Publication{publication("pub1", "c1", 25*time.Hour)}
	st.creations["c1"] = &pipeline.Creation{ID: "c1", SkillsUsed: []string{"s1", "s2"}}
	bus := &fakeBus{}
	tr := New(st, &fakePublishers{pub: &fakePub{eng: engagement()}}, bus, nil, nil)

	summary, err := tr.CollectDue(context.Background())

	require.NoError(t, err)
	require.Equal(t, 3, summary.Snapshots)
	require.Equal(t, pipeline.Interval1h, st.saved[0].Interval)
	require.Equal(t, pipeline.Interval6h, st.saved[1].Interval)
	require.Equal(t, pipeline.Interval24h, st.saved[2].Interval)
	require.InDelta(t, 0.025, st.saved[2].EngagementRate, 1e-9)

	require.Equal(t, 1, bus.calls)
	require.Equal(t, []string{"s1", "s2"}, bus.skills)
	require.Equal(t, 2, summary.Outcomes)
}

func TestCollectDue_AlreadyCollectedIntervalsSkipped(t *testing.T) {
	st := newStore()
	st.incomplete = []*pipeline.Publication{publication("pub1", "c1", 7*time.Hour)}
	st.collected["pub1"] = map[pipeline.MetricInterval]bool{pipeline.Interval1h: true}
	st.creations["c1"] = &pipeline.Creation{ID: "c1"}
	tr := New(st, &fakePublishers{pub: &fakePub{eng: engagement()}}, &fakeBus{}, nil, nil)

	summary, err := tr.CollectDue(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, summary.Snapshots)
	require.Equal(t, pipeline.Interval6h, st.saved[0].Interval)
}

func TestCollectDue_NothingDue_NoCalls(t *testing.T) {
	st := newStore()
	st.incomplete = []*pipeline.Publication{publication("pub1", "c1", 30*time.Minute)}
	pub := &fakePub{eng: engagement()}
	tr := New(st, &fakePublishers{pub: pub}, &fakeBus{}, nil, nil)

	summary, err := tr.CollectDue(context.Background())

	require.NoError(t, err)
	require.Zero(t, summary.Snapshots)
	require.Zero(t, pub.gets)
}

func TestCollectDue_ReadFailure_StopsLadderAndCounts(t *testing.T) {
	st := newStore()
	st.incomplete = []*pipeline.Publication{publication("pub1", "c1", 25*time.Hour)}
	tr := New(st, &fakePublishers{pub: &fakePub{err: errors.New("rate limited")}}, &fakeBus{}, nil, nil)

	summary, err := tr.CollectDue(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Empty(t, st.saved)
}

func TestCollectDue_DuplicateRow_Tolerated(t *testing.T) {
	st := newStore()
	st.incomplete = []*pipeline.Publication{publication("pub1", "c1", 90*time.Minute)}
	st.saveErr = store.ErrDuplicateMetric
	tr := New(st, &fakePublishers{pub: &fakePub{eng: engagement()}}, &fakeBus{}, nil, nil)

	summary, err := tr.CollectDue(context.Background())

	require.NoError(t, err)
	require.Zero(t, summary.Failed)
	require.Zero(t, summary.Snapshots)
}

func TestCollectDue_NoPublisherForPlatform_Skipped(t *testing.T) {
	st := newStore()
	st.incomplete = []*pipeline.Publication{publication("pub1", "c1", 25*time.Hour)}
	tr := New(st, &fakePublishers{}, &fakeBus{}, nil, nil)

	summary, err := tr.CollectDue(context.Background())

	require.NoError(t, err)
	require.Zero(t, summary.Snapshots)
	require.Zero(t, summary.Failed)
}

func TestCollectDue_NoSkillsUsed_NoOutcomes(t *testing.T) {
	st := newStore()
	st.incomplete = []*pipeline.Publication{publication("pub1", "c1", 25*time.Hour)}
	st.creations["c1"] = &pipeline.Creation{ID: "c1"}
	bus := &fakeBus{}
	tr := New(st, &fakePublishers{pub: &fakePub{eng: engagement()}}, bus, nil, nil)

	summary, err := tr.CollectDue(context.Background())

	require.NoError(t, err)
	require.Zero(t, bus.calls)
	require.Zero(t, summary.Outcomes)
}

func TestEngagementSweep_WritesLatestSnapshot(t *testing.T) {
	st := newStore()
	st.recent = []*pipeline.Publication{publication("pub1", "c1", 2*24*time.Hour)}
	tr := New(st, &fakePublishers{pub: &fakePub{eng: engagement()}}, &fakeBus{}, nil, nil)

	n, err := tr.EngagementSweep(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.InDelta(t, 0.025, st.latest["pub1"], 1e-9)
}

func TestEngagementSweep_ZeroReadRecordedAsZero(t *testing.T) {
	st := newStore()
	st.recent = []*pipeline.Publication{publication("pub1", "c1", time.Hour)}
	tr := New(st, &fakePublishers{pub: &fakePub{eng: &publisher.Engagement{}}}, &fakeBus{}, nil, nil)

	n, err := tr.EngagementSweep(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, n)
	rate, ok := st.latest["pub1"]
	require.True(t, ok)
	require.Zero(t, rate)
}

func TestEngagementSweep_ReadFailureSkipsPublication(t *testing.T) {
	st := newStore()
	st.recent = []*pipeline.Publication{publication("pub1", "c1", time.Hour)}
	tr := New(st, &fakePublishers{pub: &fakePub{err: errors.New("scrape blocked")}}, &fakeBus{}, nil, nil)

	n, err := tr.EngagementSweep(context.Background())

	require.NoError(t, err)
	require.Zero(t, n)
	require.NotContains(t, st.latest, "pub1")
}
