// Package config loads pipeline configuration from environment variables at
// startup. Scalar settings come from PIPELINE_* vars (with .env support);
// source definitions are data and live in an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration of the pipeline daemon.
type Config struct {
	// Storage and skill library.
	DatabasePath     string
	SkillsDir        string
	SkillsGitArchive bool
	SourcesFile      string

	// Budget.
	DailyCostLimitUSD float64

	// Loop cadences.
	ScoutInterval      time.Duration
	MetricsInterval    time.Duration
	EngagementInterval time.Duration
	FeedbackInterval   time.Duration
	ReviewInterval     time.Duration

	// External call timeouts.
	LLMTimeout   time.Duration
	FetchTimeout time.Duration
	MediaTimeout time.Duration

	// LLM provider (chat-completions style endpoint).
	LLMBaseURL      string
	LLMAPIKey       string
	LLMModel        string
	LLMMaxTokens    int
	LLMCostInPer1K  float64
	LLMCostOutPer1K float64

	// Image provider (images-generations style endpoint).
	ImageBaseURL string
	ImageAPIKey  string
	ImageModel   string
	ImageCostUSD float64

	// Video provider (deferred media).
	VideoBaseURL string
	VideoAPIKey  string

	// Publishing.
	BlogAPIBaseURL string
	BlogAPIKey     string

	// Prompt composition.
	BrandVoice  string
	Competitors []string

	// Scout fan-out bound; 0 means one in-flight fetch per source.
	ScoutFanout int

	// Experiment engine: "mannwhitney" (default) or "welch".
	ExperimentTest string

	// Optional integrations.
	MetricsAddr string
	NATSURL     string
	NATSSubject string

	LogLevel string
}

// DefaultBrandVoice is used when PIPELINE_BRAND_VOICE is unset.
const DefaultBrandVoice = "Direct and practical. Lead with the concrete takeaway, back it with evidence, skip hype and filler. Short sentences. No emoji walls, no engagement bait."

// Load reads configuration from the environment. A .env/.env.local file is
// loaded first when present; existing process variables are never overridden.
func Load() (*Config, error) {
	loadEnvFiles()

	cfg := &Config{
		DatabasePath:     getEnv("PIPELINE_DB_PATH", "contentpipe.db"),
		SkillsDir:        getEnv("PIPELINE_SKILLS_DIR", "skills"),
		SkillsGitArchive: getEnvBool("PIPELINE_SKILLS_GIT", false),
		SourcesFile:      getEnv("PIPELINE_SOURCES_FILE", "sources.yaml"),

		DailyCostLimitUSD: getEnvFloat("PIPELINE_DAILY_COST_LIMIT", 5.00),

		ScoutInterval:      getEnvDuration("PIPELINE_SCOUT_INTERVAL", 30*time.Minute),
		MetricsInterval:    getEnvDuration("PIPELINE_METRICS_INTERVAL", 60*time.Minute),
		EngagementInterval: getEnvDuration("PIPELINE_ENGAGEMENT_INTERVAL", 30*time.Minute),
		FeedbackInterval:   getEnvDuration("PIPELINE_FEEDBACK_INTERVAL", 24*time.Hour),
		ReviewInterval:     getEnvDuration("PIPELINE_REVIEW_INTERVAL", 7*24*time.Hour),

		LLMTimeout:   getEnvDuration("PIPELINE_LLM_TIMEOUT", 60*time.Second),
		FetchTimeout: getEnvDuration("PIPELINE_FETCH_TIMEOUT", 30*time.Second),
		MediaTimeout: getEnvDuration("PIPELINE_MEDIA_TIMEOUT", 20*time.Minute),

		LLMBaseURL:      getEnv("PIPELINE_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:       getEnv("PIPELINE_LLM_API_KEY", ""),
		LLMModel:        getEnv("PIPELINE_LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:    getEnvInt("PIPELINE_LLM_MAX_TOKENS", 1200),
		LLMCostInPer1K:  getEnvFloat("PIPELINE_LLM_COST_IN_PER_1K", 0.00015),
		LLMCostOutPer1K: getEnvFloat("PIPELINE_LLM_COST_OUT_PER_1K", 0.0006),

		ImageBaseURL: getEnv("PIPELINE_IMAGE_BASE_URL", "https://api.openai.com/v1"),
		ImageAPIKey:  getEnv("PIPELINE_IMAGE_API_KEY", ""),
		ImageModel:   getEnv("PIPELINE_IMAGE_MODEL", "dall-e-3"),
		ImageCostUSD: getEnvFloat("PIPELINE_IMAGE_COST_USD", 0.04),

		VideoBaseURL: getEnv("PIPELINE_VIDEO_BASE_URL", ""),
		VideoAPIKey:  getEnv("PIPELINE_VIDEO_API_KEY", ""),

		BlogAPIBaseURL: getEnv("PIPELINE_BLOG_API_URL", "https://dev.to/api"),
		BlogAPIKey:     getEnv("PIPELINE_BLOG_API_KEY", ""),

		BrandVoice:  getEnv("PIPELINE_BRAND_VOICE", DefaultBrandVoice),
		Competitors: getEnvList("PIPELINE_COMPETITORS"),

		ScoutFanout: getEnvInt("PIPELINE_SCOUT_FANOUT", 0),

		ExperimentTest: getEnv("PIPELINE_EXPERIMENT_TEST", "mannwhitney"),

		MetricsAddr: getEnv("PIPELINE_METRICS_ADDR", ""),
		NATSURL:     getEnv("PIPELINE_NATS_URL", ""),
		NATSSubject: getEnv("PIPELINE_NATS_SUBJECT", "contentpipe.events"),

		LogLevel: getEnv("PIPELINE_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.SkillsDir == "" {
		return fmt.Errorf("skills directory is required")
	}
	if c.DailyCostLimitUSD <= 0 {
		return fmt.Errorf("daily cost limit must be positive, got %.4f", c.DailyCostLimitUSD)
	}
	for name, d := range map[string]time.Duration{
		"scout interval":      c.ScoutInterval,
		"metrics interval":    c.MetricsInterval,
		"engagement interval": c.EngagementInterval,
		"feedback interval":   c.FeedbackInterval,
		"review interval":     c.ReviewInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	switch c.ExperimentTest {
	case "mannwhitney", "welch":
	default:
		return fmt.Errorf("experiment test must be mannwhitney or welch, got %q", c.ExperimentTest)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
