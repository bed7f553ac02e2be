package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Source type values for SourceSpec.Type.
const (
	SourceTypeHackerNews = "hackernews"
	SourceTypeReddit     = "reddit"
	SourceTypeRSS        = "rss"
	SourceTypeWebpage    = "webpage"
)

// SourceSpec describes one source adapter instance. Type selects the
// implementation; the remaining fields are interpreted per type.
type SourceSpec struct {
	Name      string  `yaml:"name"`
	Type      string  `yaml:"type"` // hackernews | reddit | rss | webpage
	URL       string  `yaml:"url,omitempty"`
	Subreddit string  `yaml:"subreddit,omitempty"`
	MinScore  float64 `yaml:"min_score,omitempty"`
	Limit     int     `yaml:"limit,omitempty"`

	// Per-source fetch timeout as a duration string ("45s"); empty means
	// the global default applies.
	Timeout string `yaml:"timeout,omitempty"`

	// CSS selectors for the webpage type.
	ItemSelector  string `yaml:"item_selector,omitempty"`
	TitleSelector string `yaml:"title_selector,omitempty"`
	LinkSelector  string `yaml:"link_selector,omitempty"`
}

// FetchTimeout resolves the effective timeout for this source.
func (s SourceSpec) FetchTimeout(fallback time.Duration) time.Duration {
	if s.Timeout == "" {
		return fallback
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

type sourcesFile struct {
	Sources []SourceSpec `yaml:"sources"`
}

// LoadSources reads source definitions from a YAML file. A missing file is
// not an error: the built-in default set is returned instead.
func LoadSources(path string) ([]SourceSpec, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultSources(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s defines no sources", path)
	}

	seen := make(map[string]bool, len(f.Sources))
	for i := range f.Sources {
		s := &f.Sources[i]
		if s.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
		switch s.Type {
		case SourceTypeHackerNews:
		case SourceTypeReddit:
			if s.Subreddit == "" {
				return nil, fmt.Errorf("source %q: reddit type requires subreddit", s.Name)
			}
		case SourceTypeRSS:
			if s.URL == "" {
				return nil, fmt.Errorf("source %q: rss type requires url", s.Name)
			}
		case SourceTypeWebpage:
			if s.URL == "" || s.ItemSelector == "" {
				return nil, fmt.Errorf("source %q: webpage type requires url and item_selector", s.Name)
			}
		default:
			return nil, fmt.Errorf("source %q: unknown type %q", s.Name, s.Type)
		}
	}
	return f.Sources, nil
}

// DefaultSources is the source set used when no sources.yaml exists.
func DefaultSources() []SourceSpec {
	return []SourceSpec{
		{Name: "hackernews", Type: "hackernews", MinScore: 50, Limit: 30},
		{Name: "reddit-programming", Type: "reddit", Subreddit: "programming", MinScore: 100, Limit: 25},
		{Name: "go-blog", Type: "rss", URL: "https://go.dev/blog/feed.atom", Limit: 20},
	}
}

// WriteStarterSources writes a commented sources.yaml for `contentpipe init`.
func WriteStarterSources(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("sources file %s already exists", path)
		}
	}
	return os.WriteFile(path, []byte(starterSourcesYAML), 0o644)
}

const starterSourcesYAML = `# contentpipe source definitions.
# Types: hackernews, reddit, rss, webpage.
sources:
  - name: hackernews
    type: hackernews
    min_score: 50
    limit: 30

  - name: reddit-programming
    type: reddit
    subreddit: programming
    min_score: 100
    limit: 25

  - name: go-blog
    type: rss
    url: https://go.dev/blog/feed.atom
    limit: 20

  # - name: lobsters
  #   type: webpage
  #   url: https://lobste.rs
  #   item_selector: ".story .link"
  #   title_selector: "a.u-url"
  #   link_selector: "a.u-url"
`
