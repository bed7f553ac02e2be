// Package llm talks to a chat-completions style model endpoint and keeps the
// cost ledger every call feeds.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
)

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion request. System becomes the leading system
// message when set.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Response carries the model output plus the token usage the ledger needs.
type Response struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
	Model        string
}

// Client is the minimal completion surface agents depend on.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// HTTPClient implements Client against an OpenAI-compatible endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewHTTPClient builds a client for the given endpoint. timeout bounds each
// request end to end.
func NewHTTPClient(baseURL, apiKey, model string, maxTokens int, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends one chat-completions request.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Response, error) {
	payload := chatRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if payload.MaxTokens == 0 {
		payload.MaxTokens = c.maxTokens
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryProvider, pipeerrors.SeverityError, "marshal completion request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryProvider, pipeerrors.SeverityError, "create completion request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("User-Agent", "ContentPipe/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pipeerrors.WrapRetryable(err, pipeerrors.CategoryProvider, pipeerrors.SeverityError, "completion request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := fmt.Sprintf("provider returned %s", resp.Status)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, pipeerrors.Retryable(pipeerrors.CategoryProvider, pipeerrors.SeverityError, msg).
				WithContext("body", string(data))
		}
		return nil, pipeerrors.New(pipeerrors.CategoryProvider, pipeerrors.SeverityError, msg).
			WithContext("body", string(data))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryProvider, pipeerrors.SeverityError, "decode completion response")
	}
	if len(decoded.Choices) == 0 {
		return nil, pipeerrors.New(pipeerrors.CategoryProvider, pipeerrors.SeverityError, "completion response has no choices")
	}

	return &Response{
		Content:      decoded.Choices[0].Message.Content,
		InputTokens:  decoded.Usage.PromptTokens,
		OutputTokens: decoded.Usage.CompletionTokens,
		Model:        decoded.Model,
	}, nil
}
