package skills

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecayConfidence_NeverUsed_NoDecay(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0.80, DecayConfidence(0.80, nil, now))
}

func TestDecayConfidence_UsedWithinADay_NoDecay(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	used := now.Add(-23 * time.Hour)
	assert.Equal(t, 0.80, DecayConfidence(0.80, &used, now))
}

func TestDecayConfidence_TenIdleDays_LosesFivePercent(t *testing.T) {
	now := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	used := now.Add(-10 * 24 * time.Hour)
	assert.InDelta(t, 0.75, DecayConfidence(0.80, &used, now), 1e-9)
}

func TestDecayConfidence_LongIdle_CappedAndFloored(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	used := now.Add(-365 * 24 * time.Hour)
	// A year idle caps at MaxDecay, not 365*0.005.
	assert.InDelta(t, 0.60, DecayConfidence(0.90, &used, now), 1e-9)
	// And decay never pushes below the floor.
	assert.InDelta(t, ConfidenceFloor, DecayConfidence(0.25, &used, now), 1e-9)
}

func TestAdaptiveWeight_ShrinksWithMaturity(t *testing.T) {
	assert.Equal(t, 0.5, AdaptiveWeight(0))
	assert.Equal(t, 0.5, AdaptiveWeight(4))
	assert.Equal(t, 0.4, AdaptiveWeight(5))
	assert.Equal(t, 0.4, AdaptiveWeight(14))
	assert.Equal(t, 0.35, AdaptiveWeight(15))
	assert.Equal(t, 0.35, AdaptiveWeight(29))
	assert.Equal(t, 0.30, AdaptiveWeight(30))
	assert.Equal(t, 0.30, AdaptiveWeight(1000))
}

// The worked example from the confidence model: a brand-new skill pulled up by
// one success, then decayed and pulled down by a failure ten days later.
func TestUpdateConfidence_SuccessThenDecayedFailure(t *testing.T) {
	t0 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	first := UpdateConfidence(0.50, 0, 1.0, nil, t0)
	require.InDelta(t, 0.75, first, 1e-9)

	later := t0.Add(10 * 24 * time.Hour)
	second := UpdateConfidence(first, 1, 0.0, &t0, later)
	// Decay first: 0.75 - 10*0.005 = 0.70. Then weight 0.5: 0.5*0.70 = 0.35.
	require.InDelta(t, 0.35, second, 1e-9)
}

func TestUpdateConfidence_StaysWithinBounds(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	c := 0.90
	for i := 0; i < 50; i++ {
		c = UpdateConfidence(c, 100+i, 1.0, &now, now)
		require.LessOrEqual(t, c, ConfidenceCeiling)
	}
	assert.InDelta(t, ConfidenceCeiling, c, 0.01)

	c = 0.30
	for i := 0; i < 50; i++ {
		c = UpdateConfidence(c, i, 0.0, &now, now)
		require.GreaterOrEqual(t, c, ConfidenceFloor)
	}
	assert.InDelta(t, ConfidenceFloor, c, 0.01)
}

func TestClampConfidence_Bounds(t *testing.T) {
	assert.Equal(t, ConfidenceFloor, clampConfidence(-0.4))
	assert.Equal(t, ConfidenceCeiling, clampConfidence(1.2))
	assert.Equal(t, 0.5, clampConfidence(0.5))
}
