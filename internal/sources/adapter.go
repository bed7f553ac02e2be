// Package sources implements the feed adapters the scout fans out over. Each
// adapter normalizes one external feed into DiscoveryItem values; everything
// adapter-specific rides along in RawData.
package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/config"
	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

const userAgent = "ContentPipe/1.0 (content research pipeline)"

// Adapter fetches and normalizes one feed.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context) ([]pipeline.DiscoveryItem, error)
}

// Build constructs adapters from source specs. Unknown types fail loudly so a
// typo in sources.yaml cannot silently drop a feed.
func Build(specs []config.SourceSpec, fallbackTimeout time.Duration) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(specs))
	for _, spec := range specs {
		client := &http.Client{Timeout: spec.FetchTimeout(fallbackTimeout)}
		switch spec.Type {
		case config.SourceTypeHackerNews:
			adapters = append(adapters, newHackerNews(spec, client))
		case config.SourceTypeReddit:
			adapters = append(adapters, newReddit(spec, client))
		case config.SourceTypeRSS:
			adapters = append(adapters, newRSS(spec, spec.FetchTimeout(fallbackTimeout)))
		case config.SourceTypeWebpage:
			adapters = append(adapters, newWebpage(spec, client))
		default:
			return nil, pipeerrors.New(pipeerrors.CategoryConfig, pipeerrors.SeverityFatal,
				fmt.Sprintf("unknown source type %q for source %q", spec.Type, spec.Name))
		}
	}
	return adapters, nil
}

func fetchError(source, msg string, cause error) error {
	return pipeerrors.WrapRetryable(cause, pipeerrors.CategorySource, pipeerrors.SeverityError, msg).
		WithContext("source", source)
}

func statusError(source string, status string) error {
	return pipeerrors.Retryable(pipeerrors.CategorySource, pipeerrors.SeverityError,
		fmt.Sprintf("feed returned %s", status)).
		WithContext("source", source)
}
