package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// loadEnvFiles loads .env and .env.local when present. godotenv never
// overrides variables already set in the process environment.
func loadEnvFiles() {
	for _, path := range []string{".env", ".env.local"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			slog.Warn("Failed to load env file", "path", path, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", path)
	}
}

// WriteStarterEnv writes a commented .env template for `contentpipe init`.
func WriteStarterEnv(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("env file %s already exists", path)
		}
	}
	return os.WriteFile(path, []byte(starterEnv), 0o600)
}

const starterEnv = `# contentpipe configuration. All settings are optional except the LLM key.
PIPELINE_LLM_API_KEY=
# PIPELINE_LLM_BASE_URL=https://api.openai.com/v1
# PIPELINE_LLM_MODEL=gpt-4o-mini

# PIPELINE_DB_PATH=contentpipe.db
# PIPELINE_SKILLS_DIR=skills
# PIPELINE_SOURCES_FILE=sources.yaml
# PIPELINE_DAILY_COST_LIMIT=5.00

# PIPELINE_IMAGE_API_KEY=
# PIPELINE_VIDEO_BASE_URL=
# PIPELINE_BLOG_API_KEY=

# PIPELINE_METRICS_ADDR=:9105
# PIPELINE_NATS_URL=
`
