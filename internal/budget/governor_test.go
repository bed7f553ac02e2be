package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCostStore struct {
	cost  float64
	err   error
	since time.Time
}

func (f *fakeCostStore) SumCostSince(_ context.Context, since time.Time) (float64, error) {
	f.since = since
	return f.cost, f.err
}

func TestModeFor_ThresholdLadder(t *testing.T) {
	cases := []struct {
		cost float64
		want Mode
	}{
		{0.00, ModeFull},
		{0.69, ModeFull},
		{0.70, ModeReduced},
		{0.71, ModeReduced},
		{0.85, ModeMinimal},
		{0.86, ModeMinimal},
		{0.95, ModePaused},
		{0.96, ModePaused},
		{1.50, ModePaused},
	}
	for _, tc := range cases {
		st := &fakeCostStore{cost: tc.cost}
		g := New(st, 1.00, nil, nil)

		mode, err := g.ModeFor(context.Background())

		require.NoError(t, err)
		require.Equal(t, tc.want, mode, "cost %.2f", tc.cost)
	}
}

func TestModeFor_WindowStartsAtUTCMidnight(t *testing.T) {
	st := &fakeCostStore{}
	g := New(st, 5.00, nil, nil)
	g.now = func() time.Time {
		return time.Date(2026, 8, 26, 17, 45, 12, 0, time.UTC)
	}

	_, err := g.ModeFor(context.Background())

	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), st.since)
}

func TestModeFor_RepeatedEvaluationIdempotent(t *testing.T) {
	st := &fakeCostStore{cost: 3.60}
	g := New(st, 5.00, nil, nil)

	first, err := g.ModeFor(context.Background())
	require.NoError(t, err)
	second, err := g.ModeFor(context.Background())
	require.NoError(t, err)

	require.Equal(t, ModeReduced, first)
	require.Equal(t, first, second)
	require.Equal(t, ModeReduced, g.Current())
}

func TestModeFor_StoreError_HoldsLastMode(t *testing.T) {
	st := &fakeCostStore{cost: 4.80}
	g := New(st, 5.00, nil, nil)

	mode, err := g.ModeFor(context.Background())
	require.NoError(t, err)
	require.Equal(t, ModePaused, mode)

	st.err = errors.New("db locked")
	mode, err = g.ModeFor(context.Background())
	require.Error(t, err)
	require.Equal(t, ModePaused, mode)
}

func TestModeFor_NoLimit_AlwaysFull(t *testing.T) {
	g := New(&fakeCostStore{cost: 999}, 0, nil, nil)
	mode, err := g.ModeFor(context.Background())
	require.NoError(t, err)
	require.Equal(t, ModeFull, mode)
}

func TestModePolicy_CreatorLimits(t *testing.T) {
	require.Equal(t, 10, ModeFull.CreatorLimit())
	require.Equal(t, 3, ModeReduced.CreatorLimit())
	require.Zero(t, ModeMinimal.CreatorLimit())
	require.Zero(t, ModePaused.CreatorLimit())
}

func TestModePolicy_LoopGating(t *testing.T) {
	require.True(t, ModeFull.LoopEnabled("engagement"))
	require.False(t, ModeReduced.LoopEnabled("engagement"))
	require.True(t, ModeReduced.LoopEnabled("scout"))
	require.True(t, ModeMinimal.LoopEnabled("scout"))
	require.True(t, ModeMinimal.LoopEnabled("metrics"))
	require.True(t, ModeMinimal.LoopEnabled("feedback"))
	require.False(t, ModeMinimal.LoopEnabled("engagement"))
	for _, loop := range []string{"scout", "metrics", "engagement", "feedback", "review"} {
		require.False(t, ModePaused.LoopEnabled(loop), loop)
	}
}

func TestModePolicy_VideoAndEngagementOnlyInFull(t *testing.T) {
	require.True(t, ModeFull.VideoEnabled())
	require.True(t, ModeFull.EngagementEnabled())
	for _, m := range []Mode{ModeReduced, ModeMinimal, ModePaused} {
		require.False(t, m.VideoEnabled(), m)
		require.False(t, m.EngagementEnabled(), m)
	}
}
