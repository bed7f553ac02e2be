package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
	"git.home.luguber.info/inful/contentpipe/internal/logfields"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// Staleness bounds from the validation policy.
const validationMaxAge = 7 * 24 * time.Hour

// versionsDir is where archived skill versions live, relative to the root.
const versionsDir = "versions"

// Store is the mirror the library writes through to.
type Store interface {
	UpsertSkill(ctx context.Context, sk *pipeline.Skill) error
}

// Archiver commits archived versions somewhere durable. Optional.
type Archiver interface {
	Commit(paths []string, message string) error
}

// Library is the authoritative in-memory skill set, backed by markdown files
// under root and mirrored into the store.
type Library struct {
	mu     sync.RWMutex
	root   string
	skills map[string]*pipeline.Skill

	store    Store
	archiver Archiver
	logger   *slog.Logger
	now      func() time.Time
}

// NewLibrary builds an empty library rooted at dir. Call Load before use.
func NewLibrary(root string, store Store, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{
		root:   root,
		skills: make(map[string]*pipeline.Skill),
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithArchiver attaches a version archiver (git-backed in production).
func (l *Library) WithArchiver(a Archiver) *Library {
	l.archiver = a
	return l
}

// Root returns the directory skill files live in.
func (l *Library) Root() string {
	return l.root
}

// Load reads every skill file under the root (the versions directory is
// archive-only and skipped), indexes by name, and mirrors rows to the store.
func (l *Library) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return pipeerrors.Wrap(err, pipeerrors.CategorySkill, pipeerrors.SeverityFatal, "create skill library root")
	}

	entries, err := os.ReadDir(l.root)
	if err != nil {
		return pipeerrors.Wrap(err, pipeerrors.CategorySkill, pipeerrors.SeverityFatal, "read skill library root")
	}

	l.skills = make(map[string]*pipeline.Skill)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(l.root, entry.Name())
		sk, err := l.loadFile(path)
		if err != nil {
			l.logger.Warn("Skipping unreadable skill file",
				logfields.Skill(entry.Name()), logfields.Error(err))
			continue
		}
		if _, dup := l.skills[sk.Name]; dup {
			l.logger.Warn("Duplicate skill name, keeping first", logfields.Skill(sk.Name))
			continue
		}
		l.skills[sk.Name] = sk
		if err := l.store.UpsertSkill(ctx, sk); err != nil {
			return err
		}
	}

	l.logger.Info("Skill library loaded", logfields.Count(len(l.skills)))
	return nil
}

func (l *Library) loadFile(path string) (*pipeline.Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	stem := strings.TrimSuffix(filepath.Base(path), ".md")
	sk, err := ParseSkillFile(data, stem)
	if err != nil {
		return nil, err
	}
	sk.FilePath = path
	return sk, nil
}

// ReloadFile re-reads one skill file after an external edit. Removals are
// ignored; a skill disappears only through retirement.
func (l *Library) ReloadFile(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sk, err := l.loadFile(path)
	if err != nil {
		return pipeerrors.Wrap(err, pipeerrors.CategorySkill, pipeerrors.SeverityWarning, "reload skill file")
	}
	l.skills[sk.Name] = sk
	return l.store.UpsertSkill(ctx, sk)
}

// Get returns a copy of one skill.
func (l *Library) Get(name string) (pipeline.Skill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sk, ok := l.skills[name]
	if !ok {
		return pipeline.Skill{}, false
	}
	return cloneSkill(sk), true
}

// All returns copies of every skill sorted by name.
func (l *Library) All() []pipeline.Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]pipeline.Skill, 0, len(l.skills))
	for _, sk := range l.skills {
		out = append(out, cloneSkill(sk))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ForTask returns active skills matching a category or tag, optionally
// narrowed to a platform, best confidence first. Skills without a platform
// apply everywhere.
func (l *Library) ForTask(category string, platform pipeline.Platform) []pipeline.Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []pipeline.Skill
	for _, sk := range l.skills {
		if sk.Status != pipeline.SkillActive {
			continue
		}
		if !matchesCategory(sk, category) {
			continue
		}
		if !matchesPlatform(sk, platform) {
			continue
		}
		out = append(out, cloneSkill(sk))
	}
	sortByConfidence(out)
	return out
}

// HighConfidence returns active skills at or above the threshold for a
// platform, best first.
func (l *Library) HighConfidence(minConfidence float64, platform pipeline.Platform) []pipeline.Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []pipeline.Skill
	for _, sk := range l.skills {
		if sk.Status != pipeline.SkillActive || sk.Confidence < minConfidence {
			continue
		}
		if !matchesPlatform(sk, platform) {
			continue
		}
		out = append(out, cloneSkill(sk))
	}
	sortByConfidence(out)
	return out
}

// LowConfidence returns active skills at or below the threshold for a
// platform, worst first.
func (l *Library) LowConfidence(maxConfidence float64, platform pipeline.Platform) []pipeline.Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []pipeline.Skill
	for _, sk := range l.skills {
		if sk.Status != pipeline.SkillActive || sk.Confidence > maxConfidence {
			continue
		}
		if !matchesPlatform(sk, platform) {
			continue
		}
		out = append(out, cloneSkill(sk))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence < out[j].Confidence })
	return out
}

// RecordOutcome folds one outcome into a skill's confidence: decay for idle
// time, then a maturity-weighted pull toward the score, clamped to the
// confidence bounds. Counters and last_used_at move with it. The skill file
// and store mirror are updated before returning.
func (l *Library) RecordOutcome(ctx context.Context, name string, outcome pipeline.Outcome, score float64, at time.Time) (pipeline.Skill, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sk, ok := l.skills[name]
	if !ok {
		return pipeline.Skill{}, pipeerrors.New(pipeerrors.CategorySkill, pipeerrors.SeverityWarning,
			fmt.Sprintf("unknown skill %q", name))
	}

	at = at.UTC()
	sk.Confidence = UpdateConfidence(sk.Confidence, sk.TotalUses, score, sk.LastUsedAt, at)
	sk.TotalUses++
	if outcome == pipeline.OutcomeSuccess {
		sk.SuccessCount++
		sk.FailureStreak = 0
	} else {
		sk.FailureStreak++
	}
	used := at
	sk.LastUsedAt = &used
	sk.UpdatedAt = l.now().UTC()

	if err := l.persist(ctx, sk); err != nil {
		return pipeline.Skill{}, err
	}
	return cloneSkill(sk), nil
}

// SetConfidence overwrites a skill's confidence, clamped. The feedback loop
// uses this when it recomputes from recent outcome history.
func (l *Library) SetConfidence(ctx context.Context, name string, confidence float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sk, ok := l.skills[name]
	if !ok {
		return pipeerrors.New(pipeerrors.CategorySkill, pipeerrors.SeverityWarning,
			fmt.Sprintf("unknown skill %q", name))
	}
	sk.Confidence = clampConfidence(confidence)
	sk.UpdatedAt = l.now().UTC()
	return l.persist(ctx, sk)
}

// SetStatus moves a skill to a new lifecycle status.
func (l *Library) SetStatus(ctx context.Context, name string, status pipeline.SkillStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sk, ok := l.skills[name]
	if !ok {
		return pipeerrors.New(pipeerrors.CategorySkill, pipeerrors.SeverityWarning,
			fmt.Sprintf("unknown skill %q", name))
	}
	sk.Status = status
	sk.UpdatedAt = l.now().UTC()
	return l.persist(ctx, sk)
}

// MarkValidated stamps a skill as reviewed now and reactivates it if it had
// gone stale.
func (l *Library) MarkValidated(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sk, ok := l.skills[name]
	if !ok {
		return pipeerrors.New(pipeerrors.CategorySkill, pipeerrors.SeverityWarning,
			fmt.Sprintf("unknown skill %q", name))
	}
	now := l.now().UTC()
	sk.LastValidatedAt = &now
	if sk.Status == pipeline.SkillStale {
		sk.Status = pipeline.SkillActive
	}
	sk.UpdatedAt = now
	return l.persist(ctx, sk)
}

// CreateVersion archives the current content under
// versions/<name>_v<old>_<timestamp>, bumps the version, and swaps in the new
// content with a change reason.
func (l *Library) CreateVersion(ctx context.Context, name, newContent, changeReason string) (pipeline.Skill, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sk, ok := l.skills[name]
	if !ok {
		return pipeline.Skill{}, pipeerrors.New(pipeerrors.CategorySkill, pipeerrors.SeverityWarning,
			fmt.Sprintf("unknown skill %q", name))
	}

	now := l.now().UTC()
	archDir := filepath.Join(l.root, versionsDir)
	if err := os.MkdirAll(archDir, 0o755); err != nil {
		return pipeline.Skill{}, pipeerrors.Wrap(err, pipeerrors.CategorySkill, pipeerrors.SeverityError, "create versions directory")
	}

	archName := fmt.Sprintf("%s_v%d_%s", sk.Name, sk.Version, now.Format("20060102150405"))
	archPath := filepath.Join(archDir, archName)
	encoded, err := EncodeSkillFile(sk)
	if err != nil {
		return pipeline.Skill{}, err
	}
	if err := os.WriteFile(archPath, encoded, 0o644); err != nil {
		return pipeline.Skill{}, pipeerrors.Wrap(err, pipeerrors.CategorySkill, pipeerrors.SeverityError, "write version archive")
	}

	oldVersion := sk.Version
	sk.Version++
	sk.Content = strings.TrimSpace(newContent)
	sk.ChangeReason = changeReason
	sk.UpdatedAt = now

	if err := l.persist(ctx, sk); err != nil {
		return pipeline.Skill{}, err
	}

	if l.archiver != nil {
		msg := fmt.Sprintf("Archive %s v%d: %s", sk.Name, oldVersion, changeReason)
		if err := l.archiver.Commit([]string{archPath, sk.FilePath}, msg); err != nil {
			// Archival is best effort; the filesystem copy already exists.
			l.logger.Warn("Version archive commit failed",
				logfields.Skill(sk.Name), logfields.Error(err))
		}
	}
	return cloneSkill(sk), nil
}

// IsStale reports whether a skill needs revalidation: never validated,
// validated too long ago, or confidence through the floor.
func (l *Library) IsStale(sk pipeline.Skill) bool {
	if sk.LastValidatedAt == nil {
		return true
	}
	if l.now().UTC().Sub(*sk.LastValidatedAt) > validationMaxAge {
		return true
	}
	return sk.Confidence < ConfidenceFloor
}

// SweepStale marks every active-but-stale skill as stale and returns their
// names.
func (l *Library) SweepStale(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var flagged []string
	for _, sk := range l.skills {
		if sk.Status != pipeline.SkillActive {
			continue
		}
		if !l.isStaleLocked(sk) {
			continue
		}
		sk.Status = pipeline.SkillStale
		sk.UpdatedAt = l.now().UTC()
		if err := l.persist(ctx, sk); err != nil {
			return flagged, err
		}
		flagged = append(flagged, sk.Name)
	}
	sort.Strings(flagged)
	return flagged, nil
}

func (l *Library) isStaleLocked(sk *pipeline.Skill) bool {
	if sk.LastValidatedAt == nil {
		return true
	}
	if l.now().UTC().Sub(*sk.LastValidatedAt) > validationMaxAge {
		return true
	}
	return sk.Confidence < ConfidenceFloor
}

// Add registers a brand-new skill, writes its file, and mirrors it.
func (l *Library) Add(ctx context.Context, sk pipeline.Skill) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if sk.Name == "" {
		return pipeerrors.ValidationError("skill name is required")
	}
	if _, exists := l.skills[sk.Name]; exists {
		return pipeerrors.New(pipeerrors.CategorySkill, pipeerrors.SeverityWarning,
			fmt.Sprintf("skill %q already exists", sk.Name))
	}

	now := l.now().UTC()
	if sk.Status == "" {
		sk.Status = pipeline.SkillActive
	}
	if sk.Version == 0 {
		sk.Version = 1
	}
	sk.Confidence = clampConfidence(sk.Confidence)
	if sk.CreatedAt.IsZero() {
		sk.CreatedAt = now
	}
	sk.UpdatedAt = now
	sk.FilePath = filepath.Join(l.root, sk.Name+".md")

	stored := sk
	l.skills[sk.Name] = &stored
	return l.persist(ctx, &stored)
}

// persist writes the file and the store mirror. Callers hold the lock.
func (l *Library) persist(ctx context.Context, sk *pipeline.Skill) error {
	if sk.FilePath == "" {
		sk.FilePath = filepath.Join(l.root, sk.Name+".md")
	}
	encoded, err := EncodeSkillFile(sk)
	if err != nil {
		return err
	}
	if err := os.WriteFile(sk.FilePath, encoded, 0o644); err != nil {
		return pipeerrors.Wrap(err, pipeerrors.CategorySkill, pipeerrors.SeverityError, "write skill file").
			WithContext("skill", sk.Name)
	}
	return l.store.UpsertSkill(ctx, sk)
}

func cloneSkill(sk *pipeline.Skill) pipeline.Skill {
	out := *sk
	out.Tags = append([]string(nil), sk.Tags...)
	if sk.LastUsedAt != nil {
		t := *sk.LastUsedAt
		out.LastUsedAt = &t
	}
	if sk.LastValidatedAt != nil {
		t := *sk.LastValidatedAt
		out.LastValidatedAt = &t
	}
	return out
}

func matchesCategory(sk *pipeline.Skill, category string) bool {
	if category == "" || sk.Category == category {
		return true
	}
	for _, tag := range sk.Tags {
		if tag == category {
			return true
		}
	}
	return false
}

func matchesPlatform(sk *pipeline.Skill, platform pipeline.Platform) bool {
	return platform == "" || sk.Platform == "" || sk.Platform == string(platform)
}

func sortByConfidence(skills []pipeline.Skill) {
	sort.Slice(skills, func(i, j int) bool {
		if skills[i].Confidence != skills[j].Confidence {
			return skills[i].Confidence > skills[j].Confidence
		}
		return skills[i].Name < skills[j].Name
	})
}
