package feedback

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
	"git.home.luguber.info/inful/contentpipe/internal/store"
)

// A failure feature must recur this many times within the window before it
// becomes an avoid snippet.
const minRecurrence = 3

// Rough per-platform body length bands for the off-profile check. Looser
// than the quality gate's scoring bands on purpose; this flags only clear
// outliers.
var lengthBands = map[pipeline.Platform]struct{ min, max int }{
	pipeline.PlatformTwitter:  {60, 3000},
	pipeline.PlatformLinkedIn: {150, 3500},
	pipeline.PlatformReddit:   {100, 9000},
	pipeline.PlatformBlog:     {500, 20000},
	pipeline.PlatformYouTube:  {80, 3500},
}

// failureFeature is one recurring trait of low-engagement publications.
type failureFeature string

const (
	featureShortHook       failureFeature = "short_hook"
	featureExclamationHook failureFeature = "exclamation_hook"
	featureSelfFocused     failureFeature = "self_focused_opening"
	featureLengthOff       failureFeature = "length_off_profile"
	featureOffHour         failureFeature = "off_hour_posting"
)

var avoidSnippets = map[failureFeature]string{
	featureShortHook:       "Opening lines under five words; they read as throat-clearing and get scrolled past.",
	featureExclamationHook: "Exclamation marks in the opening line; they read as hype and depress engagement.",
	featureSelfFocused:     "Openings centered on yourself (\"I\", \"my\", \"we\"); lead with the reader's problem instead.",
	featureLengthOff:       "Body length far outside the platform's working range; match the platform's usual depth.",
	featureOffHour:         "Posting between midnight and six UTC; schedule into active hours.",
}

// extractFeatures names the failure traits present in one publication.
func extractFeatures(pe *store.PublicationEngagement) []failureFeature {
	var out []failureFeature

	hook := firstLine(pe.Body)
	hookWords := len(strings.Fields(hook))
	if hookWords > 0 && hookWords < 5 {
		out = append(out, featureShortHook)
	}
	if strings.Contains(hook, "!") {
		out = append(out, featureExclamationHook)
	}
	if selfFocused(hook) {
		out = append(out, featureSelfFocused)
	}
	if band, ok := lengthBands[pe.Platform]; ok {
		if n := len(pe.Body); n < band.min || n > band.max {
			out = append(out, featureLengthOff)
		}
	}
	if h := pe.PublishedAt.UTC().Hour(); h < 6 {
		out = append(out, featureOffHour)
	}
	return out
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return strings.TrimLeft(line, "#*> ")
		}
	}
	return ""
}

func selfFocused(hook string) bool {
	words := strings.Fields(strings.ToLower(strings.Trim(hook, ".,!?")))
	limit := len(words)
	if limit > 6 {
		limit = 6
	}
	for _, w := range words[:limit] {
		w = strings.Trim(w, ".,!?;:'\"")
		switch w {
		case "i", "i'm", "i've", "my", "we", "we're", "our":
			return true
		}
	}
	return false
}

// AvoidCache holds the learned avoid snippets keyed by platform and format.
// The feedback loop rebuilds it each run; the creator reads it on every
// draft.
type AvoidCache struct {
	mu       sync.RWMutex
	snippets map[string][]string
}

// NewAvoidCache returns an empty cache.
func NewAvoidCache() *AvoidCache {
	return &AvoidCache{snippets: make(map[string][]string)}
}

func cacheKey(platform pipeline.Platform, format pipeline.Format) string {
	return fmt.Sprintf("%s|%s", platform, format)
}

// AvoidPatterns returns the avoid snippets for a platform and format.
func (c *AvoidCache) AvoidPatterns(platform pipeline.Platform, format pipeline.Format) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.snippets[cacheKey(platform, format)]...)
}

// Rebuild replaces the cache content from fresh failure analysis.
func (c *AvoidCache) Rebuild(snippets map[string][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snippets = snippets
}

// analyzeFailures turns low-engagement publications into avoid snippets per
// (platform, format). Only features recurring at least minRecurrence times
// within a key materialize.
func analyzeFailures(failing []*store.PublicationEngagement) map[string][]string {
	counts := make(map[string]map[failureFeature]int)
	for _, pe := range failing {
		key := cacheKey(pe.Platform, pe.Format)
		if counts[key] == nil {
			counts[key] = make(map[failureFeature]int)
		}
		for _, f := range extractFeatures(pe) {
			counts[key][f]++
		}
	}

	out := make(map[string][]string)
	for key, features := range counts {
		var hits []failureFeature
		for f, n := range features {
			if n >= minRecurrence {
				hits = append(hits, f)
			}
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i] < hits[j] })
		for _, f := range hits {
			out[key] = append(out[key], avoidSnippets[f])
		}
	}
	return out
}
