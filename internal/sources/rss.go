package sources

import (
	"context"
	"time"

	"github.com/mmcdole/gofeed"

	"git.home.luguber.info/inful/contentpipe/internal/config"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// rss reads any RSS or Atom feed. Feeds carry no score signal, so RawScore
// stays zero and ranking leans on the analyst.
type rss struct {
	name    string
	url     string
	limit   int
	timeout time.Duration
	parser  *gofeed.Parser
}

func newRSS(spec config.SourceSpec, timeout time.Duration) *rss {
	limit := spec.Limit
	if limit <= 0 {
		limit = 20
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &rss{
		name:    spec.Name,
		url:     spec.URL,
		limit:   limit,
		timeout: timeout,
		parser:  parser,
	}
}

func (r *rss) Name() string { return r.name }

func (r *rss) Fetch(ctx context.Context) ([]pipeline.DiscoveryItem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	feed, err := r.parser.ParseURLWithContext(r.url, ctx)
	if err != nil {
		return nil, fetchError(r.name, "parse feed", err)
	}

	items := make([]pipeline.DiscoveryItem, 0, min(len(feed.Items), r.limit))
	for _, entry := range feed.Items {
		if len(items) >= r.limit {
			break
		}
		if entry.Title == "" || entry.Link == "" {
			continue
		}

		sourceID := entry.GUID
		if sourceID == "" {
			sourceID = entry.Link
		}
		discoveredAt := time.Time{}
		if entry.PublishedParsed != nil {
			discoveredAt = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			discoveredAt = entry.UpdatedParsed.UTC()
		}

		raw := map[string]any{"feed_title": feed.Title}
		if len(entry.Categories) > 0 {
			raw["categories"] = entry.Categories
		}
		if entry.Author != nil && entry.Author.Name != "" {
			raw["author"] = entry.Author.Name
		}

		items = append(items, pipeline.DiscoveryItem{
			Source:       r.name,
			SourceID:     sourceID,
			Title:        NormalizeTitle(entry.Title),
			URL:          entry.Link,
			RawData:      raw,
			DiscoveredAt: discoveredAt,
		})
	}
	return items, nil
}
