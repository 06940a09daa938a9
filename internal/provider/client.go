package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds a single completion call. Vision requests with
// several images can take minutes on slower providers.
const DefaultTimeout = 300 * time.Second

// Client dispatches completion requests to one resolved endpoint.
type Client struct {
	endpoint Endpoint
	apiKey   string
	http     *http.Client
}

// ClientOption adjusts a Client at construction.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates a client for the endpoint. apiKey may be empty for
// local inference servers.
func NewClient(endpoint Endpoint, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Kind returns the endpoint's wire format.
func (c *Client) Kind() Kind { return c.endpoint.Kind }

// Complete sends the request and returns the assistant's reply.
func (c *Client) Complete(ctx context.Context, req Request) (Reply, error) {
	endpoint, body, err := c.buildRequest(req)
	if err != nil {
		return Reply{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	switch c.endpoint.Kind {
	case KindAnthropic:
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)
	case KindOpenAI:
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	case KindGemini:
		// Gemini authenticates via the key query parameter.
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("%s request failed: %w", c.endpoint.Kind, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Reply{}, fmt.Errorf("read %s response: %w", c.endpoint.Kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Reply{}, fmt.Errorf("%s returned status %s: %s",
			c.endpoint.Kind, resp.Status, truncate(string(respBody), 500))
	}

	switch c.endpoint.Kind {
	case KindAnthropic:
		return parseAnthropicReply(respBody)
	case KindGemini:
		return parseGeminiReply(respBody)
	default:
		return parseOpenAIReply(respBody)
	}
}

func (c *Client) buildRequest(req Request) (string, []byte, error) {
	switch c.endpoint.Kind {
	case KindAnthropic:
		base := c.endpoint.BaseURL
		if base == "" {
			base = defaultAnthropicBase
		}
		body, err := buildAnthropicBody(req)
		return base + "/v1/messages", body, err
	case KindGemini:
		body, err := buildGeminiBody(req)
		endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
			geminiBase, req.Model, url.QueryEscape(c.apiKey))
		return endpoint, body, err
	default:
		base := c.endpoint.BaseURL
		if base == "" {
			base = defaultOpenAIBase
		}
		body, err := buildOpenAIBody(req)
		return base + "/chat/completions", body, err
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
