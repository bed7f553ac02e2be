// Package quality scores drafted creations before anything expensive happens
// to them: a heuristic quality gate, a keyword risk assessor, and the routing
// decision that moves each draft into the approval state machine.
package quality

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// Gate outcome thresholds.
const (
	rejectBelow  = 0.4
	warnBelow    = 0.6
	placeholders = 0.1
)

// profile is the per-platform scoring shape: expected body length band and
// the weight each sub-score carries. Weights sum to 1.
type profile struct {
	minLen, idealLen, maxLen int
	shortForm                bool
	weights                  weights
}

type weights struct {
	length, readability, structure, title, substance, hook float64
}

// Short-form platforms live or die on the hook; long-form on structure.
var profiles = map[pipeline.Platform]profile{
	pipeline.PlatformTwitter: {
		minLen: 80, idealLen: 600, maxLen: 2400, shortForm: true,
		weights: weights{length: 0.10, readability: 0.15, structure: 0.10, title: 0.05, substance: 0.25, hook: 0.35},
	},
	pipeline.PlatformLinkedIn: {
		minLen: 200, idealLen: 1200, maxLen: 3000, shortForm: true,
		weights: weights{length: 0.10, readability: 0.15, structure: 0.15, title: 0.05, substance: 0.25, hook: 0.30},
	},
	pipeline.PlatformReddit: {
		minLen: 150, idealLen: 1500, maxLen: 8000, shortForm: false,
		weights: weights{length: 0.10, readability: 0.15, structure: 0.15, title: 0.20, substance: 0.30, hook: 0.10},
	},
	pipeline.PlatformBlog: {
		minLen: 800, idealLen: 4000, maxLen: 15000, shortForm: false,
		weights: weights{length: 0.10, readability: 0.15, structure: 0.30, title: 0.15, substance: 0.25, hook: 0.05},
	},
	pipeline.PlatformYouTube: {
		minLen: 100, idealLen: 800, maxLen: 3000, shortForm: true,
		weights: weights{length: 0.10, readability: 0.15, structure: 0.10, title: 0.20, substance: 0.15, hook: 0.30},
	},
}

var defaultProfile = profile{
	minLen: 100, idealLen: 1000, maxLen: 5000, shortForm: true,
	weights: weights{length: 0.15, readability: 0.15, structure: 0.15, title: 0.15, substance: 0.20, hook: 0.20},
}

// Placeholder tokens that mark an unfinished draft. Any hit is an automatic
// rejection regardless of the other sub-scores.
var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[[^\]]{0,40}\.\.\.\]`),
	regexp.MustCompile(`\[…\]|\[\.\.\.\]|\[TBD\]|\[TODO\]`),
	regexp.MustCompile(`\{[a-zA-Z_ ]{1,40}\}`),
	regexp.MustCompile(`(?i)\bTODO\b|\bFIXME\b|\bXXX\b`),
	regexp.MustCompile(`(?i)lorem ipsum`),
	regexp.MustCompile(`(?i)\[insert [^\]]+\]`),
}

// Assessment is what the gate decided about one draft.
type Assessment struct {
	Score     float64
	Issues    []string
	SubScores map[string]float64
	// Warning bumps routing one level stricter without rejecting.
	Warning bool
	// Rejected marks the draft quality_rejected, a terminal state.
	Rejected bool
}

// Gate computes heuristic content quality. Stateless and cheap; no I/O.
type Gate struct{}

// NewGate returns a quality gate.
func NewGate() *Gate {
	return &Gate{}
}

// Evaluate scores a draft on its platform's profile. Placeholder tokens force
// a rejection; otherwise the weighted sub-scores decide pass, warn or reject.
func (g *Gate) Evaluate(c *pipeline.Creation) Assessment {
	p, ok := profiles[c.Platform]
	if !ok {
		p = defaultProfile
	}

	if tok := findPlaceholder(c.Title + "\n" + c.Body); tok != "" {
		return Assessment{
			Score:    placeholders,
			Issues:   []string{"placeholder token: " + tok},
			Rejected: true,
		}
	}

	sub := map[string]float64{
		"length":      scoreLength(c.Body, p),
		"readability": scoreReadability(c.Body),
		"structure":   scoreStructure(c.Body, p),
		"title":       scoreTitle(c.Title),
		"substance":   scoreSubstance(c.Body),
		"hook":        scoreHook(c.Body),
	}

	score := sub["length"]*p.weights.length +
		sub["readability"]*p.weights.readability +
		sub["structure"]*p.weights.structure +
		sub["title"]*p.weights.title +
		sub["substance"]*p.weights.substance +
		sub["hook"]*p.weights.hook

	a := Assessment{Score: score, SubScores: sub}
	for name, s := range sub {
		if s < 0.4 {
			a.Issues = append(a.Issues, "weak "+name)
		}
	}
	switch {
	case score < rejectBelow:
		a.Rejected = true
	case score < warnBelow:
		a.Warning = true
	}
	return a
}

func findPlaceholder(text string) string {
	for _, re := range placeholderPatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// scoreLength rewards bodies inside the platform band, tapering linearly
// toward the hard bounds.
func scoreLength(body string, p profile) float64 {
	n := len(body)
	switch {
	case n <= 0:
		return 0
	case n < p.minLen:
		return 0.5 * float64(n) / float64(p.minLen)
	case n <= p.idealLen:
		return 0.7 + 0.3*float64(n-p.minLen)/float64(p.idealLen-p.minLen)
	case n <= p.maxLen:
		return 1.0 - 0.5*float64(n-p.idealLen)/float64(p.maxLen-p.idealLen)
	default:
		return 0.3
	}
}

// scoreReadability approximates reading ease from sentence length: punchy
// sentences score high, walls of text score low.
func scoreReadability(body string) float64 {
	sentences := splitSentences(body)
	if len(sentences) == 0 {
		return 0
	}
	totalWords := 0
	long := 0
	for _, s := range sentences {
		w := len(strings.Fields(s))
		totalWords += w
		if w > 30 {
			long++
		}
	}
	avg := float64(totalWords) / float64(len(sentences))

	var score float64
	switch {
	case avg <= 8:
		score = 0.8
	case avg <= 18:
		score = 1.0
	case avg <= 28:
		score = 0.7
	default:
		score = 0.3
	}
	// Every over-long sentence costs a little extra.
	score -= 0.05 * float64(long)
	if score < 0 {
		return 0
	}
	return score
}

// scoreStructure checks document shape. Long-form wants headings, lists and
// balanced paragraphs (judged on the markdown AST); short-form wants
// line-break density so posts do not render as one block.
func scoreStructure(body string, p profile) float64 {
	if body == "" {
		return 0
	}
	if p.shortForm {
		lines := strings.Count(body, "\n")
		perChar := float64(lines+1) / float64(len(body))
		switch {
		case perChar >= 1.0/250:
			return 1.0
		case perChar >= 1.0/500:
			return 0.7
		default:
			return 0.35
		}
	}

	src := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var headings, lists, paragraphs int
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.Heading:
			headings++
		case *ast.List:
			lists++
		case *ast.Paragraph:
			paragraphs++
		}
		return ast.WalkContinue, nil
	})

	score := 0.3
	if headings > 0 {
		score += 0.3
	}
	if lists > 0 {
		score += 0.2
	}
	if paragraphs >= 3 {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

// scoreTitle wants a title long enough to carry meaning and short enough to
// survive truncation, without shouting.
func scoreTitle(title string) float64 {
	title = strings.TrimSpace(title)
	n := len(title)
	switch {
	case n == 0:
		return 0
	case n < 15:
		return 0.4
	case n > 120:
		return 0.4
	}
	score := 1.0
	if isMostlyUppercase(title) {
		score -= 0.4
	}
	if strings.Count(title, "!") > 1 {
		score -= 0.2
	}
	if score < 0 {
		return 0
	}
	return score
}

// scoreSubstance looks for concreteness: numbers, specifics and lexical
// variety rather than filler.
func scoreSubstance(body string) float64 {
	words := strings.Fields(body)
	if len(words) < 10 {
		return 0.2
	}

	digits := 0
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		if strings.IndexFunc(w, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0 {
			digits++
		}
		unique[strings.ToLower(strings.Trim(w, ".,!?;:"))] = struct{}{}
	}

	score := 0.4
	if digits > 0 {
		score += 0.2
	}
	if digits >= 3 {
		score += 0.1
	}
	variety := float64(len(unique)) / float64(len(words))
	if variety > 0.55 {
		score += 0.3
	} else if variety > 0.40 {
		score += 0.15
	}
	if score > 1 {
		score = 1
	}
	return score
}

// scoreHook judges the opening line: long enough to say something, carrying a
// question, number or strong claim scores best.
func scoreHook(body string) float64 {
	first := firstLine(body)
	if first == "" {
		return 0
	}
	words := len(strings.Fields(first))
	if words < 4 {
		return 0.3
	}

	score := 0.5
	if strings.Contains(first, "?") {
		score += 0.25
	}
	if strings.IndexFunc(first, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0 {
		score += 0.2
	}
	for _, marker := range []string{"most people", "nobody", "stop", "wrong", "myth", "truth", "never", "why"} {
		if strings.Contains(strings.ToLower(first), marker) {
			score += 0.15
			break
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func splitSentences(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if part := strings.TrimSpace(s[start:i]); part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	if part := strings.TrimSpace(s[start:]); part != "" {
		out = append(out, part)
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

func isMostlyUppercase(s string) bool {
	upper, letters := 0, 0
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			letters++
		}
		if r >= 'A' && r <= 'Z' {
			letters++
			upper++
		}
	}
	return letters > 0 && float64(upper)/float64(letters) > 0.7
}
