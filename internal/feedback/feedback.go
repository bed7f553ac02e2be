// Package feedback closes the learning loop: it mines skill outcome history
// for patterns, keeps persisted and in-memory confidence honest, extracts
// failure patterns for the creator to avoid, and folds experiment winners
// back into the skill library.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/logfields"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
	"git.home.luguber.info/inful/contentpipe/internal/skills"
	"git.home.luguber.info/inful/contentpipe/internal/store"
)

// Analysis windows and thresholds.
const (
	patternWindow   = 30 * 24 * time.Hour
	failureWindow   = 14 * 24 * time.Hour
	failureCeiling  = 0.02
	highPerformerAt = 0.7
	underperformAt  = 0.3
	minPatternN     = 5
	minTrendN       = 6
	trendShiftDelta = 0.15

	// Confidence replayed from history starts at the neutral seed value.
	replayBaseline = 0.50
	driftEpsilon   = 0.01
)

// Store is the persistence surface the loop reads.
type Store interface {
	ListSkillMetricsSince(ctx context.Context, since time.Time) ([]*pipeline.SkillMetric, error)
	ListSkillMetrics(ctx context.Context, skillName string, since time.Time) ([]*pipeline.SkillMetric, error)
	ListLowEngagementPublications(ctx context.Context, since time.Time, maxEngagement float64) ([]*store.PublicationEngagement, error)
	ListExperimentsByStatus(ctx context.Context, status pipeline.ExperimentStatus) ([]*pipeline.Experiment, error)
	ListRecentPublications(ctx context.Context, since time.Time) ([]*pipeline.Publication, error)
}

// Library is the slice of the skill library the loop mutates.
type Library interface {
	All() []pipeline.Skill
	SetConfidence(ctx context.Context, name string, confidence float64) error
	SetStatus(ctx context.Context, name string, status pipeline.SkillStatus) error
	SweepStale(ctx context.Context) ([]string, error)
	CreateVersion(ctx context.Context, name, newContent, changeReason string) (pipeline.Skill, error)
}

// Experiments evaluates running experiments.
type Experiments interface {
	EvaluateRunning(ctx context.Context) ([]*pipeline.Experiment, error)
}

// PatternKind labels one mined skill pattern.
type PatternKind string

const (
	PatternHighPerformer PatternKind = "high_performer"
	PatternUnderperform  PatternKind = "underperformer"
	PatternTrendShift    PatternKind = "trend_shift"
)

// Pattern is one finding from outcome-history analysis.
type Pattern struct {
	Skill    string
	Kind     PatternKind
	AvgScore float64
	Samples  int
	Delta    float64
}

// Summary reports one feedback run.
type Summary struct {
	Patterns          []Pattern
	ConfidenceFixed   int
	StaleSkills       []string
	AvoidKeys         int
	ExperimentsClosed int
	VersionsBumped    int
}

// Loop is the feedback engine.
type Loop struct {
	store       Store
	library     Library
	experiments Experiments
	avoid       *AvoidCache
	logger      *slog.Logger
	now         func() time.Time
}

// New builds a feedback loop writing avoid snippets into cache.
func New(st Store, library Library, experiments Experiments, cache *AvoidCache, logger *slog.Logger) *Loop {
	if cache == nil {
		cache = NewAvoidCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		store:       st,
		library:     library,
		experiments: experiments,
		avoid:       cache,
		logger:      logger,
		now:         time.Now,
	}
}

// Avoid exposes the cache for the creator.
func (l *Loop) Avoid() *AvoidCache {
	return l.avoid
}

// Run executes one full feedback pass: pattern analysis, confidence
// recompute, staleness sweep, failure-pattern extraction, experiment sweep.
// Each step logs and continues past its own failures where that is safe.
func (l *Loop) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	now := l.now().UTC()

	patterns, err := l.analyzePatterns(ctx, now)
	if err != nil {
		return summary, err
	}
	summary.Patterns = patterns
	for _, p := range patterns {
		l.logger.Info("Skill pattern detected",
			logfields.Skill(p.Skill),
			slog.String("pattern", string(p.Kind)),
			slog.Float64("avg_score", p.AvgScore),
			slog.Int("samples", p.Samples))
	}

	fixed, err := l.recomputeConfidence(ctx, now)
	if err != nil {
		return summary, err
	}
	summary.ConfidenceFixed = fixed

	stale, err := l.library.SweepStale(ctx)
	if err != nil {
		return summary, err
	}
	summary.StaleSkills = stale

	snippets, err := l.extractFailurePatterns(ctx, now)
	if err != nil {
		return summary, err
	}
	l.avoid.Rebuild(snippets)
	summary.AvoidKeys = len(snippets)

	closed, bumped, err := l.sweepExperiments(ctx)
	if err != nil {
		return summary, err
	}
	summary.ExperimentsClosed = closed
	summary.VersionsBumped = bumped

	l.logger.Info("Feedback run complete",
		slog.Int("patterns", len(summary.Patterns)),
		slog.Int("confidence_fixed", summary.ConfidenceFixed),
		slog.Int("stale_skills", len(summary.StaleSkills)),
		slog.Int("avoid_keys", summary.AvoidKeys),
		slog.Int("experiments_closed", summary.ExperimentsClosed))
	return summary, nil
}

// analyzePatterns aggregates the last month of outcome rows per skill.
func (l *Loop) analyzePatterns(ctx context.Context, now time.Time) ([]Pattern, error) {
	rows, err := l.store.ListSkillMetricsSince(ctx, now.Add(-patternWindow))
	if err != nil {
		return nil, err
	}

	bySkill := make(map[string][]float64)
	for _, m := range rows {
		bySkill[m.SkillName] = append(bySkill[m.SkillName], m.Score)
	}

	names := make([]string, 0, len(bySkill))
	for name := range bySkill {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Pattern
	for _, name := range names {
		scores := bySkill[name]
		n := len(scores)
		avg := mean(scores)

		if n >= minPatternN && avg >= highPerformerAt {
			out = append(out, Pattern{Skill: name, Kind: PatternHighPerformer, AvgScore: avg, Samples: n})
		}
		if n >= minPatternN && avg <= underperformAt {
			out = append(out, Pattern{Skill: name, Kind: PatternUnderperform, AvgScore: avg, Samples: n})
		}
		if n >= minTrendN {
			half := n / 2
			delta := mean(scores[half:]) - mean(scores[:half])
			if math.Abs(delta) > trendShiftDelta {
				out = append(out, Pattern{Skill: name, Kind: PatternTrendShift, AvgScore: avg, Samples: n, Delta: delta})
			}
		}
	}
	return out, nil
}

// recomputeConfidence replays each skill's persisted outcome history through
// the confidence law and overwrites the library value when it drifted.
func (l *Loop) recomputeConfidence(ctx context.Context, now time.Time) (int, error) {
	fixed := 0
	for _, sk := range l.library.All() {
		if sk.Status == pipeline.SkillRetired || sk.Status == pipeline.SkillSuperseded {
			continue
		}
		history, err := l.store.ListSkillMetrics(ctx, sk.Name, time.Time{})
		if err != nil {
			return fixed, err
		}
		if len(history) == 0 {
			continue
		}

		conf := replayBaseline
		uses := 0
		var lastUsed *time.Time
		for _, m := range history {
			at := m.RecordedAt
			conf = skills.UpdateConfidence(conf, uses, m.Score, lastUsed, at)
			uses++
			t := at
			lastUsed = &t
		}
		conf = skills.DecayConfidence(conf, lastUsed, now)

		if math.Abs(conf-sk.Confidence) <= driftEpsilon {
			continue
		}
		l.logger.Warn("Skill confidence drifted from history, correcting",
			logfields.Skill(sk.Name),
			slog.Float64("stored", sk.Confidence),
			slog.Float64("recomputed", conf))
		if err := l.library.SetConfidence(ctx, sk.Name, conf); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

// extractFailurePatterns mines two weeks of low-engagement publications for
// recurring traits.
func (l *Loop) extractFailurePatterns(ctx context.Context, now time.Time) (map[string][]string, error) {
	failing, err := l.store.ListLowEngagementPublications(ctx, now.Add(-failureWindow), failureCeiling)
	if err != nil {
		return nil, err
	}
	return analyzeFailures(failing), nil
}

// sweepExperiments evaluates running experiments and versions skills whose
// challenger won.
func (l *Loop) sweepExperiments(ctx context.Context) (closed, bumped int, err error) {
	if l.experiments == nil {
		return 0, 0, nil
	}
	completed, err := l.experiments.EvaluateRunning(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, exp := range completed {
		closed++
		if exp.Winner != pipeline.WinnerB {
			continue
		}
		reason := fmt.Sprintf("experiment %s: variant B won (p=%.4f)", exp.ID, deref(exp.PValue))
		if _, err := l.library.CreateVersion(ctx, exp.SkillName, exp.VariantBDescription, reason); err != nil {
			l.logger.Warn("Version bump after experiment failed",
				logfields.Skill(exp.SkillName), logfields.Error(err))
			continue
		}
		bumped++
		l.logger.Info("Skill version bumped from experiment",
			logfields.Skill(exp.SkillName),
			slog.String("experiment_id", exp.ID))
	}
	return closed, bumped, nil
}

// Report is what the weekly review emits.
type Report struct {
	UnderReview        []string
	TopSkills          []pipeline.Skill
	BottomSkills       []pipeline.Skill
	RunningExperiments int
	PublicationsWeek   int
}

// WeeklyReview moves stale skills to under_review and assembles a summary of
// the library and the week's output.
func (l *Loop) WeeklyReview(ctx context.Context) (*Report, error) {
	report := &Report{}
	now := l.now().UTC()

	stale, err := l.library.SweepStale(ctx)
	if err != nil {
		return report, err
	}
	for _, name := range stale {
		if err := l.library.SetStatus(ctx, name, pipeline.SkillUnderReview); err != nil {
			return report, err
		}
	}
	report.UnderReview = stale

	ranked := l.library.All()
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Confidence > ranked[j].Confidence })
	report.TopSkills = head(ranked, 3)
	reversed := make([]pipeline.Skill, len(ranked))
	for i, sk := range ranked {
		reversed[len(ranked)-1-i] = sk
	}
	report.BottomSkills = head(reversed, 3)

	running, err := l.store.ListExperimentsByStatus(ctx, pipeline.ExperimentRunning)
	if err != nil {
		return report, err
	}
	report.RunningExperiments = len(running)

	pubs, err := l.store.ListRecentPublications(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		return report, err
	}
	report.PublicationsWeek = len(pubs)

	l.logger.Info("Weekly review complete",
		slog.Int("under_review", len(report.UnderReview)),
		slog.Int("running_experiments", report.RunningExperiments),
		slog.Int("publications_7d", report.PublicationsWeek))
	return report, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func head(skills []pipeline.Skill, n int) []pipeline.Skill {
	if len(skills) < n {
		n = len(skills)
	}
	return append([]pipeline.Skill(nil), skills[:n]...)
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
