package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// BlogPublisher posts articles to a dev.to compatible API.
type BlogPublisher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewBlogPublisher builds a blog publisher against a dev.to style endpoint.
func NewBlogPublisher(baseURL, apiKey string, timeout time.Duration) *BlogPublisher {
	return &BlogPublisher{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Platform returns the blog platform tag.
func (p *BlogPublisher) Platform() pipeline.Platform {
	return pipeline.PlatformBlog
}

type blogArticleRequest struct {
	Article struct {
		Title        string `json:"title"`
		BodyMarkdown string `json:"body_markdown"`
		Published    bool   `json:"published"`
		MainImage    string `json:"main_image,omitempty"`
	} `json:"article"`
}

type blogArticleResponse struct {
	ID                   int64  `json:"id"`
	URL                  string `json:"url"`
	PublicReactionsCount int64  `json:"public_reactions_count"`
	CommentsCount        int64  `json:"comments_count"`
	PageViewsCount       int64  `json:"page_views_count"`
}

// Publish creates and publishes one article.
func (p *BlogPublisher) Publish(ctx context.Context, c *pipeline.Creation) (*PostRef, error) {
	var payload blogArticleRequest
	payload.Article.Title = c.Title
	payload.Article.BodyMarkdown = c.Body
	payload.Article.Published = true
	if len(c.MediaURLs) > 0 {
		payload.Article.MainImage = c.MediaURLs[0]
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryPublish, pipeerrors.SeverityError, "marshal article")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/articles", bytes.NewReader(body))
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryPublish, pipeerrors.SeverityError, "create article request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, pipeerrors.WrapRetryable(err, pipeerrors.CategoryPublish, pipeerrors.SeverityError, "post article")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, pipeerrors.New(pipeerrors.CategoryPublish, pipeerrors.SeverityError,
			fmt.Sprintf("blog API returned %s", resp.Status)).
			WithContext("body", string(data))
	}

	var decoded blogArticleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryPublish, pipeerrors.SeverityError, "decode article response")
	}
	return &PostRef{PostID: fmt.Sprintf("%d", decoded.ID), URL: decoded.URL}, nil
}

// GetMetrics reads one article's current counters. The blog API exposes
// reactions, comments and page views; shares and clicks stay zero.
func (p *BlogPublisher) GetMetrics(ctx context.Context, postID string) (*Engagement, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/articles/"+postID, nil)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryPublish, pipeerrors.SeverityError, "create metrics request")
	}
	req.Header.Set("api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, pipeerrors.WrapRetryable(err, pipeerrors.CategoryPublish, pipeerrors.SeverityError, "fetch article metrics")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, pipeerrors.New(pipeerrors.CategoryPublish, pipeerrors.SeverityError,
			fmt.Sprintf("blog API returned %s", resp.Status))
	}

	var decoded blogArticleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryPublish, pipeerrors.SeverityError, "decode article metrics")
	}
	return &Engagement{
		Views:    decoded.PageViewsCount,
		Likes:    decoded.PublicReactionsCount,
		Comments: decoded.CommentsCount,
	}, nil
}
