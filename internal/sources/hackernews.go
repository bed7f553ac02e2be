package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/config"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

const defaultAlgoliaURL = "https://hn.algolia.com/api/v1/search?tags=front_page"

// hackerNews reads the Hacker News front page through the Algolia API.
type hackerNews struct {
	name     string
	url      string
	minScore float64
	limit    int
	client   *http.Client
}

func newHackerNews(spec config.SourceSpec, client *http.Client) *hackerNews {
	url := spec.URL
	if url == "" {
		url = defaultAlgoliaURL
	}
	limit := spec.Limit
	if limit <= 0 {
		limit = 30
	}
	return &hackerNews{
		name:     spec.Name,
		url:      url,
		minScore: spec.MinScore,
		limit:    limit,
		client:   client,
	}
}

func (h *hackerNews) Name() string { return h.name }

type algoliaResponse struct {
	Hits []struct {
		ObjectID    string `json:"objectID"`
		Title       string `json:"title"`
		URL         string `json:"url"`
		Points      int    `json:"points"`
		NumComments int    `json:"num_comments"`
		Author      string `json:"author"`
		CreatedAtI  int64  `json:"created_at_i"`
	} `json:"hits"`
}

func (h *hackerNews) Fetch(ctx context.Context) ([]pipeline.DiscoveryItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s&hitsPerPage=%d", h.url, h.limit), nil)
	if err != nil {
		return nil, fetchError(h.name, "create request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fetchError(h.name, "fetch front page", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(h.name, resp.Status)
	}

	var decoded algoliaResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fetchError(h.name, "decode response", err)
	}

	items := make([]pipeline.DiscoveryItem, 0, len(decoded.Hits))
	for _, hit := range decoded.Hits {
		if float64(hit.Points) < h.minScore {
			continue
		}
		url := hit.URL
		if url == "" {
			// Ask HN and similar text posts have no external URL.
			url = "https://news.ycombinator.com/item?id=" + hit.ObjectID
		}
		items = append(items, pipeline.DiscoveryItem{
			Source:   h.name,
			SourceID: hit.ObjectID,
			Title:    NormalizeTitle(hit.Title),
			URL:      url,
			RawScore: float64(hit.Points),
			RawData: map[string]any{
				"points":       hit.Points,
				"num_comments": hit.NumComments,
				"author":       hit.Author,
			},
			DiscoveredAt: time.Unix(hit.CreatedAtI, 0).UTC(),
		})
	}
	return items, nil
}
