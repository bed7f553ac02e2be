package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAreValid(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "contentpipe.db", cfg.DatabasePath)
	require.Equal(t, 30*time.Minute, cfg.ScoutInterval)
	require.Equal(t, 24*time.Hour, cfg.FeedbackInterval)
	require.Equal(t, 60*time.Second, cfg.LLMTimeout)
	require.Equal(t, 30*time.Second, cfg.FetchTimeout)
	require.Equal(t, 20*time.Minute, cfg.MediaTimeout)
	require.InDelta(t, 5.00, cfg.DailyCostLimitUSD, 1e-9)
	require.Equal(t, "mannwhitney", cfg.ExperimentTest)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PIPELINE_DAILY_COST_LIMIT", "1.50")
	t.Setenv("PIPELINE_SCOUT_INTERVAL", "5m")
	t.Setenv("PIPELINE_COMPETITORS", "acme, globex ,")

	cfg, err := Load()
	require.NoError(t, err)
	require.InDelta(t, 1.50, cfg.DailyCostLimitUSD, 1e-9)
	require.Equal(t, 5*time.Minute, cfg.ScoutInterval)
	require.Equal(t, []string{"acme", "globex"}, cfg.Competitors)
}

func TestLoad_BadDurationFallsBackToDefault(t *testing.T) {
	t.Setenv("PIPELINE_SCOUT_INTERVAL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, cfg.ScoutInterval)
}

func TestValidate_RejectsBadExperimentTest(t *testing.T) {
	t.Setenv("PIPELINE_EXPERIMENT_TEST", "chisquare")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "experiment test")
}

func TestValidate_RejectsNonPositiveCostLimit(t *testing.T) {
	t.Setenv("PIPELINE_DAILY_COST_LIMIT", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadSources_MissingFileYieldsDefaults(t *testing.T) {
	specs, err := LoadSources(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, specs)
	require.Equal(t, "hackernews", specs[0].Type)
}

func TestLoadSources_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	data := `sources:
  - name: hn
    type: hackernews
    min_score: 80
  - name: r-golang
    type: reddit
    subreddit: golang
  - name: feed
    type: rss
    url: https://example.com/feed.xml
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	specs, err := LoadSources(path)
	require.NoError(t, err)
	require.Len(t, specs, 3)
	require.Equal(t, 80.0, specs[0].MinScore)
	require.Equal(t, "golang", specs[1].Subreddit)
}

func TestLoadSources_RejectsDuplicateNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	data := `sources:
  - name: hn
    type: hackernews
  - name: hn
    type: hackernews
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := LoadSources(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")
}

func TestLoadSources_RejectsRedditWithoutSubreddit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	data := `sources:
  - name: r
    type: reddit
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := LoadSources(path)
	require.Error(t, err)
}

func TestWriteStarterSources_RefusesOverwriteWithoutForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, WriteStarterSources(path, false))
	require.Error(t, WriteStarterSources(path, false))
	require.NoError(t, WriteStarterSources(path, true))

	specs, err := LoadSources(path)
	require.NoError(t, err)
	require.Len(t, specs, 3)
}
