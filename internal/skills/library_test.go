package skills

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

type memorySkillStore struct {
	mu   sync.Mutex
	rows map[string]pipeline.Skill
}

func (s *memorySkillStore) UpsertSkill(_ context.Context, sk *pipeline.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows == nil {
		s.rows = make(map[string]pipeline.Skill)
	}
	s.rows[sk.Name] = *sk
	return nil
}

func (s *memorySkillStore) get(name string) (pipeline.Skill, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.rows[name]
	return sk, ok
}

type recordingArchiver struct {
	paths    [][]string
	messages []string
	err      error
}

func (a *recordingArchiver) Commit(paths []string, message string) error {
	a.paths = append(a.paths, paths)
	a.messages = append(a.messages, message)
	return a.err
}

func newTestLibrary(t *testing.T) (*Library, *memorySkillStore) {
	t.Helper()
	store := &memorySkillStore{}
	lib := NewLibrary(t.TempDir(), store, nil)
	require.NoError(t, lib.Load(context.Background()))
	return lib, store
}

func addSkill(t *testing.T, lib *Library, name, category, platform string, confidence float64) {
	t.Helper()
	require.NoError(t, lib.Add(context.Background(), pipeline.Skill{
		Name:       name,
		Category:   category,
		Platform:   platform,
		Confidence: confidence,
		Content:    "- Pattern for " + name + ".",
	}))
}

func TestLibrary_AddThenReload_RoundTrips(t *testing.T) {
	store := &memorySkillStore{}
	root := t.TempDir()
	lib := NewLibrary(root, store, nil)
	require.NoError(t, lib.Load(context.Background()))

	require.NoError(t, lib.Add(context.Background(), pipeline.Skill{
		Name:       "hook-question-led",
		Category:   "hooks",
		Platform:   "linkedin",
		Confidence: 0.62,
		Tags:       []string{"hooks", "engagement"},
		Content:    "- Lead with a question.\n- Never answer it immediately.",
	}))

	// A fresh library over the same directory must see the identical skill.
	fresh := NewLibrary(root, &memorySkillStore{}, nil)
	require.NoError(t, fresh.Load(context.Background()))

	got, ok := fresh.Get("hook-question-led")
	require.True(t, ok)
	assert.Equal(t, "hooks", got.Category)
	assert.Equal(t, "linkedin", got.Platform)
	assert.InDelta(t, 0.62, got.Confidence, 1e-9)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, []string{"hooks", "engagement"}, got.Tags)
	assert.Equal(t, "- Lead with a question.\n- Never answer it immediately.", got.Content)
	assert.Equal(t, 0, got.TotalUses)
	assert.Equal(t, 0, got.SuccessCount)
	assert.Equal(t, 0, got.FailureStreak)
}

func TestLibrary_Add_RejectsDuplicateName(t *testing.T) {
	lib, _ := newTestLibrary(t)
	addSkill(t, lib, "timing-windows", "timing", "", 0.5)

	err := lib.Add(context.Background(), pipeline.Skill{Name: "timing-windows", Confidence: 0.5})
	require.Error(t, err)
}

func TestLibrary_RecordOutcome_SuccessThenDecayedFailure(t *testing.T) {
	lib, store := newTestLibrary(t)
	addSkill(t, lib, "hook-contrarian", "hooks", "twitter", 0.50)

	t0 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	sk, err := lib.RecordOutcome(context.Background(), "hook-contrarian", pipeline.OutcomeSuccess, 1.0, t0)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, sk.Confidence, 1e-9)
	assert.Equal(t, 1, sk.TotalUses)
	assert.Equal(t, 1, sk.SuccessCount)
	assert.Equal(t, 0, sk.FailureStreak)
	require.NotNil(t, sk.LastUsedAt)
	assert.True(t, sk.LastUsedAt.Equal(t0))

	sk, err = lib.RecordOutcome(context.Background(), "hook-contrarian", pipeline.OutcomeFailure, 0.0, t0.Add(10*24*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.35, sk.Confidence, 1e-9)
	assert.Equal(t, 2, sk.TotalUses)
	assert.Equal(t, 1, sk.SuccessCount)
	assert.Equal(t, 1, sk.FailureStreak)

	// Store mirror and skill file both carry the updated state.
	mirrored, ok := store.get("hook-contrarian")
	require.True(t, ok)
	assert.InDelta(t, 0.35, mirrored.Confidence, 1e-9)

	onDisk, err := os.ReadFile(filepath.Join(lib.Root(), "hook-contrarian.md"))
	require.NoError(t, err)
	parsed, err := ParseSkillFile(onDisk, "hook-contrarian")
	require.NoError(t, err)
	assert.InDelta(t, 0.35, parsed.Confidence, 1e-9)
	assert.Equal(t, 2, parsed.TotalUses)
}

func TestLibrary_RecordOutcome_UnknownSkill_Errors(t *testing.T) {
	lib, _ := newTestLibrary(t)
	_, err := lib.RecordOutcome(context.Background(), "no-such-skill", pipeline.OutcomeSuccess, 1.0, time.Now())
	require.Error(t, err)
}

func TestLibrary_SetConfidence_Clamps(t *testing.T) {
	lib, _ := newTestLibrary(t)
	addSkill(t, lib, "structure-arc", "structure", "", 0.5)

	require.NoError(t, lib.SetConfidence(context.Background(), "structure-arc", 1.4))
	sk, _ := lib.Get("structure-arc")
	assert.Equal(t, ConfidenceCeiling, sk.Confidence)

	require.NoError(t, lib.SetConfidence(context.Background(), "structure-arc", -0.2))
	sk, _ = lib.Get("structure-arc")
	assert.Equal(t, ConfidenceFloor, sk.Confidence)
}

func TestLibrary_CreateVersion_ArchivesOldContent(t *testing.T) {
	lib, _ := newTestLibrary(t)
	archiver := &recordingArchiver{}
	lib.WithArchiver(archiver)
	lib.now = func() time.Time {
		return time.Date(2026, 3, 1, 10, 30, 45, 0, time.UTC)
	}

	addSkill(t, lib, "hooks-test", "hooks", "", 0.6)

	sk, err := lib.CreateVersion(context.Background(), "hooks-test", "- New winning pattern.", "experiment exp-7 favored variant B")
	require.NoError(t, err)
	assert.Equal(t, 2, sk.Version)
	assert.Equal(t, "- New winning pattern.", sk.Content)
	assert.Equal(t, "experiment exp-7 favored variant B", sk.ChangeReason)

	archPath := filepath.Join(lib.Root(), "versions", "hooks-test_v1_20260301103045")
	data, err := os.ReadFile(archPath)
	require.NoError(t, err)
	archived, err := ParseSkillFile(data, "hooks-test")
	require.NoError(t, err)
	assert.Equal(t, 1, archived.Version)
	assert.Equal(t, "- Pattern for hooks-test.", archived.Content)

	require.Len(t, archiver.messages, 1)
	assert.Contains(t, archiver.messages[0], "hooks-test v1")
	require.Len(t, archiver.paths, 1)
	assert.Contains(t, archiver.paths[0], archPath)
}

func TestLibrary_CreateVersion_ArchiverFailureIsNonFatal(t *testing.T) {
	lib, _ := newTestLibrary(t)
	lib.WithArchiver(&recordingArchiver{err: os.ErrPermission})
	addSkill(t, lib, "hooks-test", "hooks", "", 0.6)

	sk, err := lib.CreateVersion(context.Background(), "hooks-test", "- Replacement.", "manual edit")
	require.NoError(t, err)
	assert.Equal(t, 2, sk.Version)
}

func TestLibrary_ForTask_FiltersAndOrders(t *testing.T) {
	lib, _ := newTestLibrary(t)
	addSkill(t, lib, "hook-a", "hooks", "twitter", 0.80)
	addSkill(t, lib, "hook-b", "hooks", "", 0.90)
	addSkill(t, lib, "hook-c", "hooks", "linkedin", 0.85)
	addSkill(t, lib, "tagged", "misc", "", 0.70)

	// Tag matches count as category matches.
	require.NoError(t, lib.ReloadFile(context.Background(), writeTaggedSkill(t, lib)))

	got := lib.ForTask("hooks", pipeline.PlatformTwitter)
	names := skillNames(got)
	assert.Equal(t, []string{"hook-b", "hook-a", "tagged-hooks"}, names)

	// Retired skills disappear from task selection.
	require.NoError(t, lib.SetStatus(context.Background(), "hook-b", pipeline.SkillRetired))
	got = lib.ForTask("hooks", pipeline.PlatformTwitter)
	assert.Equal(t, []string{"hook-a", "tagged-hooks"}, skillNames(got))
}

// writeTaggedSkill drops a skill file carrying a hooks tag (not category) so
// tag-based selection has something to find.
func writeTaggedSkill(t *testing.T, lib *Library) string {
	t.Helper()
	sk := &pipeline.Skill{
		Name:       "tagged-hooks",
		Category:   "misc",
		Confidence: 0.65,
		Status:     pipeline.SkillActive,
		Version:    1,
		Tags:       []string{"hooks"},
		Content:    "- Pattern via tag.",
	}
	data, err := EncodeSkillFile(sk)
	require.NoError(t, err)
	path := filepath.Join(lib.Root(), "tagged-hooks.md")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func skillNames(skills []pipeline.Skill) []string {
	names := make([]string, len(skills))
	for i, sk := range skills {
		names[i] = sk.Name
	}
	return names
}

func TestLibrary_HighAndLowConfidence(t *testing.T) {
	lib, _ := newTestLibrary(t)
	addSkill(t, lib, "strong", "hooks", "", 0.82)
	addSkill(t, lib, "middling", "hooks", "", 0.55)
	addSkill(t, lib, "weak", "hooks", "", 0.22)
	addSkill(t, lib, "weakest", "hooks", "", 0.21)

	high := lib.HighConfidence(0.70, pipeline.PlatformTwitter)
	assert.Equal(t, []string{"strong"}, skillNames(high))

	low := lib.LowConfidence(0.30, pipeline.PlatformTwitter)
	assert.Equal(t, []string{"weakest", "weak"}, skillNames(low))
}

func TestLibrary_SweepStale_FlagsUnvalidatedAndOldSkills(t *testing.T) {
	lib, _ := newTestLibrary(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	lib.now = func() time.Time { return now }

	addSkill(t, lib, "never-validated", "hooks", "", 0.6)
	addSkill(t, lib, "validated-recently", "hooks", "", 0.6)
	addSkill(t, lib, "validated-long-ago", "hooks", "", 0.6)

	require.NoError(t, lib.MarkValidated(context.Background(), "validated-recently"))

	// Validate, then pretend eight days pass.
	lib.now = func() time.Time { return now.Add(-8 * 24 * time.Hour) }
	require.NoError(t, lib.MarkValidated(context.Background(), "validated-long-ago"))
	lib.now = func() time.Time { return now }

	flagged, err := lib.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"never-validated", "validated-long-ago"}, flagged)

	sk, _ := lib.Get("validated-long-ago")
	assert.Equal(t, pipeline.SkillStale, sk.Status)
	sk, _ = lib.Get("validated-recently")
	assert.Equal(t, pipeline.SkillActive, sk.Status)

	// Revalidation reactivates.
	require.NoError(t, lib.MarkValidated(context.Background(), "validated-long-ago"))
	sk, _ = lib.Get("validated-long-ago")
	assert.Equal(t, pipeline.SkillActive, sk.Status)
}

func TestLibrary_SeedDefaults_OnlyWhenEmpty(t *testing.T) {
	lib, _ := newTestLibrary(t)

	n, err := lib.SeedDefaults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, lib.All(), 5)

	n, err = lib.SeedDefaults(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, lib.All(), 5)
}

func TestLibrary_Load_SkipsVersionsDirectory(t *testing.T) {
	store := &memorySkillStore{}
	root := t.TempDir()
	lib := NewLibrary(root, store, nil)
	require.NoError(t, lib.Load(context.Background()))

	addSkill(t, lib, "live-skill", "hooks", "", 0.6)
	_, err := lib.CreateVersion(context.Background(), "live-skill", "- v2.", "reason")
	require.NoError(t, err)

	fresh := NewLibrary(root, &memorySkillStore{}, nil)
	require.NoError(t, fresh.Load(context.Background()))
	assert.Len(t, fresh.All(), 1)
	sk, ok := fresh.Get("live-skill")
	require.True(t, ok)
	assert.Equal(t, 2, sk.Version)
}
