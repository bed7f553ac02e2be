package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
	"git.home.luguber.info/inful/contentpipe/internal/store"
)

type fakeStore struct {
	metrics     []*pipeline.SkillMetric
	failing     []*store.PublicationEngagement
	running     []*pipeline.Experiment
	recentPubs  []*pipeline.Publication
	sinceByName map[string][]*pipeline.SkillMetric
}

func (f *fakeStore) ListSkillMetricsSince(context.Context, time.Time) ([]*pipeline.SkillMetric, error) {
	return f.metrics, nil
}

func (f *fakeStore) ListSkillMetrics(_ context.Context, name string, _ time.Time) ([]*pipeline.SkillMetric, error) {
	return f.sinceByName[name], nil
}

func (f *fakeStore) ListLowEngagementPublications(context.Context, time.Time, float64) ([]*store.PublicationEngagement, error) {
	return f.failing, nil
}

func (f *fakeStore) ListExperimentsByStatus(context.Context, pipeline.ExperimentStatus) ([]*pipeline.Experiment, error) {
	return f.running, nil
}

func (f *fakeStore) ListRecentPublications(context.Context, time.Time) ([]*pipeline.Publication, error) {
	return f.recentPubs, nil
}

type fakeLibrary struct {
	skills      map[string]*pipeline.Skill
	confidences map[string]float64
	statuses    map[string]pipeline.SkillStatus
	staleNames  []string
	versioned   map[string]string
}

func newFakeLibrary(skills ...*pipeline.Skill) *fakeLibrary {
	f := &fakeLibrary{
		skills:      make(map[string]*pipeline.Skill),
		confidences: make(map[string]float64),
		statuses:    make(map[string]pipeline.SkillStatus),
		versioned:   make(map[string]string),
	}
	for _, sk := range skills {
		f.skills[sk.Name] = sk
	}
	return f
}

func (f *fakeLibrary) All() []pipeline.Skill {
	var out []pipeline.Skill
	for _, sk := range f.skills {
		out = append(out, *sk)
	}
	return out
}

func (f *fakeLibrary) SetConfidence(_ context.Context, name string, c float64) error {
	f.confidences[name] = c
	return nil
}

func (f *fakeLibrary) SetStatus(_ context.Context, name string, s pipeline.SkillStatus) error {
	f.statuses[name] = s
	return nil
}

func (f *fakeLibrary) SweepStale(context.Context) ([]string, error) {
	return f.staleNames, nil
}

func (f *fakeLibrary) CreateVersion(_ context.Context, name, content, _ string) (pipeline.Skill, error) {
	f.versioned[name] = content
	return pipeline.Skill{Name: name, Content: content, Version: 2}, nil
}

type fakeExperiments struct{ completed []*pipeline.Experiment }

func (f *fakeExperiments) EvaluateRunning(context.Context) ([]*pipeline.Experiment, error) {
	return f.completed, nil
}

func metric(skill string, score float64, at time.Time) *pipeline.SkillMetric {
	return &pipeline.SkillMetric{SkillName: skill, Score: score, Outcome: pipeline.OutcomeSuccess, RecordedAt: at}
}

func metricsWithScores(skill string, scores ...float64) []*pipeline.SkillMetric {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*pipeline.SkillMetric, len(scores))
	for i, s := range scores {
		out[i] = metric(skill, s, base.Add(time.Duration(i)*time.Hour))
	}
	return out
}

func TestRun_PatternAnalysis_DetectsAllThreeKinds(t *testing.T) {
	st := &fakeStore{sinceByName: map[string][]*pipeline.SkillMetric{}}
	st.metrics = append(st.metrics, metricsWithScores("winner", 0.8, 0.9, 0.7, 0.85, 0.75)...)
	st.metrics = append(st.metrics, metricsWithScores("loser", 0.1, 0.2, 0.15, 0.25, 0.1)...)
	st.metrics = append(st.metrics, metricsWithScores("shifting", 0.4, 0.4, 0.4, 0.7, 0.7, 0.7)...)

	loop := New(st, newFakeLibrary(), nil, nil, nil)
	summary, err := loop.Run(context.Background())

	require.NoError(t, err)
	kinds := make(map[string]PatternKind)
	for _, p := range summary.Patterns {
		kinds[p.Skill] = p.Kind
	}
	require.Equal(t, PatternHighPerformer, kinds["winner"])
	require.Equal(t, PatternUnderperform, kinds["loser"])
	require.Equal(t, PatternTrendShift, kinds["shifting"])
}

func TestRun_PatternAnalysis_TooFewSamplesIgnored(t *testing.T) {
	st := &fakeStore{sinceByName: map[string][]*pipeline.SkillMetric{}}
	st.metrics = metricsWithScores("sparse", 0.9, 0.9, 0.9, 0.9)

	loop := New(st, newFakeLibrary(), nil, nil, nil)
	summary, err := loop.Run(context.Background())

	require.NoError(t, err)
	require.Empty(t, summary.Patterns)
}

func TestRun_ConfidenceDrift_Corrected(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	history := []*pipeline.SkillMetric{metric("s1", 1.0, base)}
	st := &fakeStore{sinceByName: map[string][]*pipeline.SkillMetric{"s1": history}}
	// The stored confidence disagrees with replaying the single success:
	// clamp(0.5*0.5 + 0.5*1.0) = 0.75 before final decay.
	lib := newFakeLibrary(&pipeline.Skill{Name: "s1", Status: pipeline.SkillActive, Confidence: 0.40})

	loop := New(st, lib, nil, nil, nil)
	loop.now = func() time.Time { return base.Add(12 * time.Hour) }
	summary, err := loop.Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, summary.ConfidenceFixed)
	require.InDelta(t, 0.75, lib.confidences["s1"], 1e-9)
}

func TestRun_ConfidenceMatchesHistory_Untouched(t *testing.T) {
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	history := []*pipeline.SkillMetric{metric("s1", 1.0, base)}
	st := &fakeStore{sinceByName: map[string][]*pipeline.SkillMetric{"s1": history}}
	lib := newFakeLibrary(&pipeline.Skill{Name: "s1", Status: pipeline.SkillActive, Confidence: 0.75})

	loop := New(st, lib, nil, nil, nil)
	loop.now = func() time.Time { return base.Add(12 * time.Hour) }
	summary, err := loop.Run(context.Background())

	require.NoError(t, err)
	require.Zero(t, summary.ConfidenceFixed)
	require.NotContains(t, lib.confidences, "s1")
}

func failingPub(platform pipeline.Platform, format pipeline.Format, body string, at time.Time) *store.PublicationEngagement {
	return &store.PublicationEngagement{
		Platform: platform, Format: format, Body: body,
		PublishedAt: at, EngagementRate: 0.001,
	}
}

func TestRun_FailurePatterns_RecurringFeatureBecomesAvoidSnippet(t *testing.T) {
	noon := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{sinceByName: map[string][]*pipeline.SkillMetric{}}
	for i := 0; i < 3; i++ {
		st.failing = append(st.failing,
			failingPub(pipeline.PlatformTwitter, pipeline.FormatPost,
				"Big news!\nA longer body paragraph that comfortably clears the platform length floor.", noon))
	}

	cache := NewAvoidCache()
	loop := New(st, newFakeLibrary(), nil, cache, nil)
	summary, err := loop.Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, summary.AvoidKeys)
	patterns := cache.AvoidPatterns(pipeline.PlatformTwitter, pipeline.FormatPost)
	require.NotEmpty(t, patterns)
	// "Big news!" is both a short hook and an exclamation hook.
	require.Len(t, patterns, 2)
	require.Empty(t, cache.AvoidPatterns(pipeline.PlatformBlog, pipeline.FormatArticle))
}

func TestRun_FailurePatterns_BelowRecurrenceIgnored(t *testing.T) {
	noon := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{sinceByName: map[string][]*pipeline.SkillMetric{}}
	st.failing = append(st.failing,
		failingPub(pipeline.PlatformTwitter, pipeline.FormatPost, "Big news!", noon),
		failingPub(pipeline.PlatformTwitter, pipeline.FormatPost, "Big news!", noon))

	cache := NewAvoidCache()
	loop := New(st, newFakeLibrary(), nil, cache, nil)
	_, err := loop.Run(context.Background())

	require.NoError(t, err)
	require.Empty(t, cache.AvoidPatterns(pipeline.PlatformTwitter, pipeline.FormatPost))
}

func TestRun_ExperimentWinnerB_BumpsSkillVersion(t *testing.T) {
	p := 0.01
	st := &fakeStore{sinceByName: map[string][]*pipeline.SkillMetric{}}
	lib := newFakeLibrary()
	exps := &fakeExperiments{completed: []*pipeline.Experiment{
		{ID: "e1", SkillName: "hooks", Winner: pipeline.WinnerB, PValue: &p,
			VariantBDescription: "question-first hook pattern"},
		{ID: "e2", SkillName: "structure", Winner: pipeline.WinnerA, PValue: &p},
	}}

	loop := New(st, lib, exps, nil, nil)
	summary, err := loop.Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, 2, summary.ExperimentsClosed)
	require.Equal(t, 1, summary.VersionsBumped)
	require.Equal(t, "question-first hook pattern", lib.versioned["hooks"])
	require.NotContains(t, lib.versioned, "structure")
}

func TestWeeklyReview_StaleSkillsGoUnderReview(t *testing.T) {
	st := &fakeStore{
		sinceByName: map[string][]*pipeline.SkillMetric{},
		running:     []*pipeline.Experiment{{ID: "e1"}},
		recentPubs:  []*pipeline.Publication{{ID: "p1"}, {ID: "p2"}},
	}
	lib := newFakeLibrary(
		&pipeline.Skill{Name: "best", Status: pipeline.SkillActive, Confidence: 0.9},
		&pipeline.Skill{Name: "worst", Status: pipeline.SkillActive, Confidence: 0.25},
	)
	lib.staleNames = []string{"worst"}

	loop := New(st, lib, nil, nil, nil)
	report, err := loop.WeeklyReview(context.Background())

	require.NoError(t, err)
	require.Equal(t, []string{"worst"}, report.UnderReview)
	require.Equal(t, pipeline.SkillUnderReview, lib.statuses["worst"])
	require.Equal(t, "best", report.TopSkills[0].Name)
	require.Equal(t, "worst", report.BottomSkills[0].Name)
	require.Equal(t, 1, report.RunningExperiments)
	require.Equal(t, 2, report.PublicationsWeek)
}

func TestExtractFeatures_SelfFocusedAndOffHour(t *testing.T) {
	threeAM := time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC)
	pe := failingPub(pipeline.PlatformLinkedIn, pipeline.FormatPost,
		"I just shipped my biggest project yet and wanted to share the story", threeAM)

	features := extractFeatures(pe)

	require.Contains(t, features, featureSelfFocused)
	require.Contains(t, features, featureOffHour)
	require.Contains(t, features, featureLengthOff)
	require.NotContains(t, features, featureShortHook)
}
