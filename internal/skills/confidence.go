package skills

import (
	"math"
	"time"
)

// Confidence bounds and decay constants. Confidence never leaves
// [Floor, Ceiling] no matter what outcomes arrive.
const (
	ConfidenceFloor   = 0.20
	ConfidenceCeiling = 0.95
	DecayPerDay       = 0.005
	MaxDecay          = 0.30
)

// DecayConfidence applies idle-time decay once: confidence drops by
// 0.005 per full day since last use, capped at 0.30, never below the floor.
// Unused skills (nil lastUsedAt) do not decay.
func DecayConfidence(c float64, lastUsedAt *time.Time, now time.Time) float64 {
	if lastUsedAt == nil {
		return c
	}
	days := int(now.Sub(*lastUsedAt).Hours() / 24)
	if days <= 0 {
		return c
	}
	decay := math.Min(float64(days)*DecayPerDay, MaxDecay)
	return math.Max(ConfidenceFloor, c-decay)
}

// AdaptiveWeight returns how strongly one outcome moves confidence. Young
// skills move fast; mature skills are sticky.
func AdaptiveWeight(totalUses int) float64 {
	switch {
	case totalUses < 5:
		return 0.5
	case totalUses < 15:
		return 0.4
	case totalUses < 30:
		return 0.35
	default:
		return 0.30
	}
}

// UpdateConfidence computes the new confidence for one recorded outcome:
// decay first, then a weighted pull toward the outcome score, clamped. Pure:
// the same inputs always produce the same result.
func UpdateConfidence(c float64, totalUses int, score float64, lastUsedAt *time.Time, now time.Time) float64 {
	c = DecayConfidence(c, lastUsedAt, now)
	w := AdaptiveWeight(totalUses)
	c = (1-w)*c + w*score
	return clampConfidence(c)
}

func clampConfidence(c float64) float64 {
	return math.Max(ConfidenceFloor, math.Min(ConfidenceCeiling, c))
}
