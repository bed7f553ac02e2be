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

// reddit reads a subreddit's hot listing through the public JSON endpoint.
type reddit struct {
	name      string
	url       string
	subreddit string
	minScore  float64
	limit     int
	client    *http.Client
}

func newReddit(spec config.SourceSpec, client *http.Client) *reddit {
	limit := spec.Limit
	if limit <= 0 {
		limit = 25
	}
	url := spec.URL
	if url == "" {
		url = fmt.Sprintf("https://www.reddit.com/r/%s/hot.json?limit=%d", spec.Subreddit, limit)
	}
	return &reddit{
		name:      spec.Name,
		url:       url,
		subreddit: spec.Subreddit,
		minScore:  spec.MinScore,
		limit:     limit,
		client:    client,
	}
}

func (r *reddit) Name() string { return r.name }

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Title       string  `json:"title"`
				URL         string  `json:"url"`
				Permalink   string  `json:"permalink"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				Subreddit   string  `json:"subreddit"`
				Stickied    bool    `json:"stickied"`
				CreatedUTC  float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (r *reddit) Fetch(ctx context.Context) ([]pipeline.DiscoveryItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fetchError(r.name, "create request", err)
	}
	// Reddit rejects generic user agents with 429s.
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fetchError(r.name, "fetch listing", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(r.name, resp.Status)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fetchError(r.name, "decode listing", err)
	}

	items := make([]pipeline.DiscoveryItem, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Stickied || float64(post.Score) < r.minScore {
			continue
		}
		url := post.URL
		if url == "" {
			url = "https://www.reddit.com" + post.Permalink
		}
		items = append(items, pipeline.DiscoveryItem{
			Source:   r.name,
			SourceID: post.ID,
			Title:    NormalizeTitle(post.Title),
			URL:      url,
			RawScore: float64(post.Score),
			RawData: map[string]any{
				"score":        post.Score,
				"num_comments": post.NumComments,
				"subreddit":    post.Subreddit,
				"permalink":    "https://www.reddit.com" + post.Permalink,
			},
			DiscoveredAt: time.Unix(int64(post.CreatedUTC), 0).UTC(),
		})
	}
	return items, nil
}
