// Package health tracks per-source fetch outcomes and the backoff clock that
// keeps the scout away from failing feeds. State is process-local: a restart
// starts every source healthy.
package health

import (
	"sort"
	"sync"
	"time"
)

const (
	// ReducedThreshold is the consecutive-failure count that triggers a
	// warning log.
	ReducedThreshold = 3
	// SkipThreshold is the consecutive-failure count that starts backoff.
	SkipThreshold = 5
	// MaxBackoff caps the exponential backoff window.
	MaxBackoff = 24 * time.Hour
)

// SourceHealth is the tracked state for one source.
type SourceHealth struct {
	Source              string
	ConsecutiveFailures int
	TotalFailures       int
	TotalSuccesses      int
	LastFailureAt       *time.Time
	LastSuccessAt       *time.Time
	// BackoffUntil is zero while the source is not backing off.
	BackoffUntil time.Time
}

// SuccessRate returns successes over total attempts, or 1 before any attempt.
func (h SourceHealth) SuccessRate() float64 {
	total := h.TotalSuccesses + h.TotalFailures
	if total == 0 {
		return 1
	}
	return float64(h.TotalSuccesses) / float64(total)
}

// Registry holds health state for all known sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*SourceHealth
	now     func() time.Time
}

// NewRegistry returns an empty registry. Unknown sources are healthy.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]*SourceHealth),
		now:     time.Now,
	}
}

func (r *Registry) entry(source string) *SourceHealth {
	h, ok := r.sources[source]
	if !ok {
		h = &SourceHealth{Source: source}
		r.sources[source] = h
	}
	return h
}

// RecordSuccess clears the failure streak and the backoff clock.
func (r *Registry) RecordSuccess(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.entry(source)
	now := r.now().UTC()
	h.ConsecutiveFailures = 0
	h.TotalSuccesses++
	h.LastSuccessAt = &now
	h.BackoffUntil = time.Time{}
}

// RecordFailure bumps the failure counters and, at the skip threshold, arms
// the backoff clock: min(2^(consecutive-threshold), 24) hours from now. It
// reports whether the warning threshold has been reached and the backoff
// granted by this failure (zero below the threshold).
func (r *Registry) RecordFailure(source string) (warn bool, backoff time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.entry(source)
	now := r.now().UTC()
	h.ConsecutiveFailures++
	h.TotalFailures++
	h.LastFailureAt = &now

	if h.ConsecutiveFailures >= SkipThreshold {
		backoff = backoffFor(h.ConsecutiveFailures)
		h.BackoffUntil = now.Add(backoff)
	}
	return h.ConsecutiveFailures >= ReducedThreshold, backoff
}

func backoffFor(consecutive int) time.Duration {
	shift := consecutive - SkipThreshold
	// 2^5 hours already exceeds the cap.
	if shift >= 5 {
		return MaxBackoff
	}
	d := time.Duration(1<<shift) * time.Hour
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}

// ShouldSkip reports whether the scout should leave this source alone right
// now. The source is skipped while its backoff window is open; after expiry
// one retry is allowed, and a further failure widens the window.
func (r *Registry) ShouldSkip(source string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.sources[source]
	if !ok {
		return false
	}
	if !h.BackoffUntil.IsZero() && r.now().UTC().Before(h.BackoffUntil) {
		return true
	}
	// A streak at the threshold without an armed clock should still skip;
	// normal failure recording never leaves this state.
	return h.ConsecutiveFailures >= SkipThreshold && h.BackoffUntil.IsZero()
}

// Reset clears all tracked state for the source.
func (r *Registry) Reset(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, source)
}

// Get returns a copy of the source's state and whether it was tracked.
func (r *Registry) Get(source string) (SourceHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.sources[source]
	if !ok {
		return SourceHealth{Source: source}, false
	}
	return *h, true
}

// Snapshot returns a copy of every tracked source sorted by name.
func (r *Registry) Snapshot() []SourceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SourceHealth, 0, len(r.sources))
	for _, h := range r.sources {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
