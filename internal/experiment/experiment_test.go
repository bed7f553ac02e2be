package experiment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
	"git.home.luguber.info/inful/contentpipe/internal/store"
)

type fakeStore struct {
	experiments map[string]*pipeline.Experiment
	rows        []*store.VariantEngagement
}

func newFakeStore() *fakeStore {
	return &fakeStore{experiments: make(map[string]*pipeline.Experiment)}
}

func (f *fakeStore) SaveExperiment(_ context.Context, e *pipeline.Experiment) error {
	cp := *e
	f.experiments[e.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateExperiment(_ context.Context, e *pipeline.Experiment) error {
	cp := *e
	f.experiments[e.ID] = &cp
	return nil
}

func (f *fakeStore) GetRunningExperimentForSkill(_ context.Context, skill string) (*pipeline.Experiment, error) {
	for _, e := range f.experiments {
		if e.SkillName == skill && e.Status == pipeline.ExperimentRunning {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListExperimentsByStatus(_ context.Context, status pipeline.ExperimentStatus) ([]*pipeline.Experiment, error) {
	var out []*pipeline.Experiment
	for _, e := range f.experiments {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) List24hEngagementSince(context.Context, time.Time) ([]*store.VariantEngagement, error) {
	return f.rows, nil
}

func addRows(f *fakeStore, skill, label string, rates ...float64) {
	for _, r := range rates {
		f.rows = append(f.rows, &store.VariantEngagement{
			SkillsUsed: []string{skill}, VariantLabel: label, EngagementRate: r,
		})
	}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestRegister_CreatesRunningExperiment(t *testing.T) {
	st := newFakeStore()
	eng := New(st, "mannwhitney", nil)

	exp, err := eng.Register(context.Background(), "hook-contrarian", "baseline hook", "question hook", "")

	require.NoError(t, err)
	require.Equal(t, pipeline.ExperimentRunning, exp.Status)
	require.Equal(t, pipeline.WinnerNone, exp.Winner)
	require.Equal(t, "engagement_rate_24h", exp.MetricTarget)
	require.Len(t, st.experiments, 1)
}

func TestRegister_SecondExperimentForSkill_Refused(t *testing.T) {
	st := newFakeStore()
	eng := New(st, "mannwhitney", nil)

	_, err := eng.Register(context.Background(), "hook-contrarian", "a", "b", "")
	require.NoError(t, err)

	_, err = eng.Register(context.Background(), "hook-contrarian", "a2", "b2", "")
	require.Error(t, err)
}

func TestEvaluate_TooFewSamples_StaysRunning(t *testing.T) {
	st := newFakeStore()
	eng := New(st, "mannwhitney", nil)
	exp, err := eng.Register(context.Background(), "s", "a", "b", "")
	require.NoError(t, err)

	addRows(st, "s", "A", repeat(0.01, 9)...)
	addRows(st, "s", "B", repeat(0.05, 10)...)

	done, err := eng.Evaluate(context.Background(), exp)

	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, pipeline.ExperimentRunning, exp.Status)
	require.Equal(t, 9, exp.SamplesA)
	require.Equal(t, 10, exp.SamplesB)
}

func TestEvaluate_ClearSeparation_WinnerB(t *testing.T) {
	st := newFakeStore()
	eng := New(st, "mannwhitney", nil)
	exp, err := eng.Register(context.Background(), "s", "a", "b", "")
	require.NoError(t, err)

	addRows(st, "s", "A", repeat(0.01, 10)...)
	addRows(st, "s", "B", repeat(0.05, 10)...)
	// Rows from other skills must not count.
	addRows(st, "other", "A", repeat(0.9, 5)...)

	done, err := eng.Evaluate(context.Background(), exp)

	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, pipeline.ExperimentCompleted, exp.Status)
	require.Equal(t, pipeline.WinnerB, exp.Winner)
	require.NotNil(t, exp.PValue)
	require.Less(t, *exp.PValue, 0.05)
	require.InDelta(t, 0.01, exp.VariantAScore, 1e-9)
	require.InDelta(t, 0.05, exp.VariantBScore, 1e-9)
	require.Equal(t, 20, exp.SampleSize)
	require.NotNil(t, exp.CompletedAt)
}

func TestEvaluate_UnevenArms_WinnerB(t *testing.T) {
	st := newFakeStore()
	eng := New(st, "mannwhitney", nil)
	exp, err := eng.Register(context.Background(), "s", "a", "b", "")
	require.NoError(t, err)

	addRows(st, "s", "A",
		0.020, 0.021, 0.022, 0.023, 0.024, 0.024,
		0.024, 0.024, 0.025, 0.026, 0.027, 0.028)
	addRows(st, "s", "B",
		0.044, 0.045, 0.046, 0.047, 0.048, 0.048,
		0.048, 0.049, 0.050, 0.051, 0.052)

	done, err := eng.Evaluate(context.Background(), exp)

	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, pipeline.WinnerB, exp.Winner)
	require.Equal(t, pipeline.ExperimentCompleted, exp.Status)
	require.Less(t, *exp.PValue, 0.05)
	require.InDelta(t, 0.024, exp.VariantAScore, 1e-9)
	require.InDelta(t, 0.048, exp.VariantBScore, 1e-9)
	require.Equal(t, 12, exp.SamplesA)
	require.Equal(t, 11, exp.SamplesB)
}

func TestEvaluate_NoDifference_WinnerNone(t *testing.T) {
	st := newFakeStore()
	eng := New(st, "mannwhitney", nil)
	exp, err := eng.Register(context.Background(), "s", "a", "b", "")
	require.NoError(t, err)

	addRows(st, "s", "A", repeat(0.03, 10)...)
	addRows(st, "s", "B", repeat(0.03, 10)...)

	done, err := eng.Evaluate(context.Background(), exp)

	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, pipeline.WinnerNone, exp.Winner)
	require.NotNil(t, exp.PValue)
	require.InDelta(t, 1.0, *exp.PValue, 1e-9)
}

func TestEvaluate_WelchMethod_AgreesOnClearSeparation(t *testing.T) {
	st := newFakeStore()
	eng := New(st, "welch", nil)
	exp, err := eng.Register(context.Background(), "s", "a", "b", "")
	require.NoError(t, err)

	addRows(st, "s", "A", 0.010, 0.012, 0.009, 0.011, 0.010, 0.013, 0.008, 0.010, 0.011, 0.009)
	addRows(st, "s", "B", 0.050, 0.048, 0.052, 0.047, 0.051, 0.049, 0.053, 0.050, 0.046, 0.052)

	done, err := eng.Evaluate(context.Background(), exp)

	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, pipeline.WinnerB, exp.Winner)
	require.Less(t, *exp.PValue, 0.05)
}

func TestEvaluateRunning_CompletesOnlyDecidableExperiments(t *testing.T) {
	st := newFakeStore()
	eng := New(st, "mannwhitney", nil)
	_, err := eng.Register(context.Background(), "ready", "a", "b", "")
	require.NoError(t, err)
	_, err = eng.Register(context.Background(), "starved", "a", "b", "")
	require.NoError(t, err)

	addRows(st, "ready", "A", repeat(0.01, 10)...)
	addRows(st, "ready", "B", repeat(0.05, 10)...)

	completed, err := eng.EvaluateRunning(context.Background())

	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.Equal(t, "ready", completed[0].SkillName)
}

func TestMannWhitney_RankBiserialEffect(t *testing.T) {
	res := mannWhitney(repeat(0.01, 10), repeat(0.05, 10))
	require.InDelta(t, -1.0, res.effect, 1e-9)
	require.Less(t, res.p, 0.001)
}

func TestASNormalCDF_MatchesKnownValues(t *testing.T) {
	require.InDelta(t, 0.5, asNormalCDF(0), 1e-6)
	require.InDelta(t, 0.841345, asNormalCDF(1), 1e-5)
	require.InDelta(t, 0.977250, asNormalCDF(2), 1e-5)
	require.InDelta(t, 0.022750, asNormalCDF(-2), 1e-5)
}
