// Package anthropic provides the minimal Messages API client used for
// cache-refresh pings. A ping is a near-zero-cost request whose only
// purpose is to reset the provider's prompt-cache TTL clock.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultModel   = "claude-haiku-4-5"
	apiVersion     = "2023-06-01"
	requestTimeout = 30 * time.Second
	maxBodySize    = 1 << 20 // 1 MB
)

var (
	// ErrUnauthorized indicates the API key is invalid or missing.
	ErrUnauthorized = errors.New("anthropic: unauthorized (check API key)")
	// ErrRateLimited indicates the API rate limit was hit.
	ErrRateLimited = errors.New("anthropic: rate limited")
	// ErrOverloaded indicates the API is temporarily overloaded.
	ErrOverloaded = errors.New("anthropic: overloaded")
)

// Client sends refresh pings to the Anthropic Messages API.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewClient creates a ping client. Returns nil if the key is empty, so
// callers can treat a missing key as "refresh capability unavailable".
func NewClient(apiKey, baseURL, model string) *Client {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{},
	}
}

// pingRequest is the minimal Messages API body. The cache_control
// breakpoint on the content block is what refreshes the cache TTL.
type pingRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []pingMessage `json:"messages"`
}

type pingMessage struct {
	Role    string      `json:"role"`
	Content []pingBlock `json:"content"`
}

type pingBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"`
	TTL  string `json:"ttl,omitempty"`
}

// Ping sends a one-token request carrying an ephemeral cache_control
// breakpoint. The response body is discarded; only success matters.
func (c *Client) Ping(ctx context.Context) error {
	body := pingRequest{
		Model:     c.model,
		MaxTokens: 1,
		Messages: []pingMessage{{
			Role: "user",
			Content: []pingBlock{{
				Type:         "text",
				Text:         ".",
				CacheControl: &cacheControl{Type: "ephemeral"},
			}},
		}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("anthropic: encoding ping: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("anthropic: creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("anthropic: ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusServiceUnavailable:
		return ErrOverloaded
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("anthropic: unexpected status %d", resp.StatusCode)
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	return nil
}
