// Package media owns asset generation: the cheap image path the creator uses
// immediately and the deferred video queue that runs only after a human
// approves a variant.
package media

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

// Asset is one generated media artifact.
type Asset struct {
	URL     string
	CostUSD float64
}

// ImageProvider turns a prompt into an image URL.
type ImageProvider interface {
	GenerateImage(ctx context.Context, prompt string) (*Asset, error)
}

// VideoProvider produces a video from a deferred spec. Implementations own
// their polling; the context carries the overall deadline.
type VideoProvider interface {
	GenerateVideo(ctx context.Context, spec *pipeline.VideoSpec) (*Asset, error)
}

// HTTPImageProvider calls an images-generations style JSON endpoint.
type HTTPImageProvider struct {
	baseURL    string
	apiKey     string
	model      string
	costUSD    float64
	httpClient *http.Client
}

// NewHTTPImageProvider builds an image provider. costUSD is the flat per-image
// price recorded in the ledger.
func NewHTTPImageProvider(baseURL, apiKey, model string, costUSD float64, timeout time.Duration) *HTTPImageProvider {
	return &HTTPImageProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		costUSD:    costUSD,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// GenerateImage requests one image and returns its hosted URL.
func (p *HTTPImageProvider) GenerateImage(ctx context.Context, prompt string) (*Asset, error) {
	body, err := json.Marshal(imageRequest{Model: p.model, Prompt: prompt, N: 1, Size: "1024x1024"})
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryMedia, pipeerrors.SeverityError, "marshal image request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryMedia, pipeerrors.SeverityError, "create image request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, pipeerrors.WrapRetryable(err, pipeerrors.CategoryMedia, pipeerrors.SeverityError, "image request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, pipeerrors.New(pipeerrors.CategoryMedia, pipeerrors.SeverityError,
			fmt.Sprintf("image provider returned %s", resp.Status)).
			WithContext("body", string(data))
	}

	var decoded imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryMedia, pipeerrors.SeverityError, "decode image response")
	}
	if len(decoded.Data) == 0 || decoded.Data[0].URL == "" {
		return nil, pipeerrors.New(pipeerrors.CategoryMedia, pipeerrors.SeverityError, "image response carries no URL")
	}
	return &Asset{URL: decoded.Data[0].URL, CostUSD: p.costUSD}, nil
}

// HTTPVideoProvider submits a generation job and polls it to completion. The
// payload is routed by video type; the provider never inspects it further.
type HTTPVideoProvider struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	httpClient   *http.Client
}

// NewHTTPVideoProvider builds a video provider against a submit-and-poll API.
func NewHTTPVideoProvider(baseURL, apiKey string, pollInterval time.Duration) *HTTPVideoProvider {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &HTTPVideoProvider{
		baseURL:      baseURL,
		apiKey:       apiKey,
		pollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
}

type videoJobResponse struct {
	ID      string  `json:"id"`
	Status  string  `json:"status"`
	URL     string  `json:"url"`
	Error   string  `json:"error"`
	CostUSD float64 `json:"cost_usd"`
}

// GenerateVideo submits the spec and polls until the job finishes or the
// context expires. A context deadline yields a business-level failure.
func (p *HTTPVideoProvider) GenerateVideo(ctx context.Context, spec *pipeline.VideoSpec) (*Asset, error) {
	if err := spec.Validate(); err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryMedia, pipeerrors.SeverityError, "invalid video spec")
	}

	job, err := p.submit(ctx, spec)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, pipeerrors.New(pipeerrors.CategoryMedia, pipeerrors.SeverityError,
				"video generation timed out").WithContext("job_id", job.ID)
		case <-ticker.C:
		}

		job, err = p.poll(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case "completed":
			return &Asset{URL: job.URL, CostUSD: job.CostUSD}, nil
		case "failed":
			return nil, pipeerrors.New(pipeerrors.CategoryMedia, pipeerrors.SeverityError,
				"video generation failed").WithContext("job_error", job.Error)
		}
	}
}

func (p *HTTPVideoProvider) submit(ctx context.Context, spec *pipeline.VideoSpec) (*videoJobResponse, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryMedia, pipeerrors.SeverityError, "marshal video spec")
	}
	return p.call(ctx, http.MethodPost, "/videos/generations", bytes.NewReader(body))
}

func (p *HTTPVideoProvider) poll(ctx context.Context, jobID string) (*videoJobResponse, error) {
	return p.call(ctx, http.MethodGet, "/videos/generations/"+jobID, nil)
}

func (p *HTTPVideoProvider) call(ctx context.Context, method, path string, body io.Reader) (*videoJobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryMedia, pipeerrors.SeverityError, "create video request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, pipeerrors.WrapRetryable(err, pipeerrors.CategoryMedia, pipeerrors.SeverityError, "video request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, pipeerrors.New(pipeerrors.CategoryMedia, pipeerrors.SeverityError,
			fmt.Sprintf("video provider returned %s", resp.Status)).
			WithContext("body", string(data))
	}

	var decoded videoJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryMedia, pipeerrors.SeverityError, "decode video response")
	}
	return &decoded, nil
}
