// Package upstream opens streaming generation requests against a model
// server and hands back the raw SSE body.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a generation. Either Prompt or Messages is set.
type Request struct {
	Model    string                 `json:"model,omitempty"`
	Prompt   string                 `json:"prompt,omitempty"`
	System   string                 `json:"system,omitempty"`
	Messages []Message              `json:"messages,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// Validate checks that the request carries something to generate from.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" && len(r.Messages) == 0 {
		return fmt.Errorf("prompt or messages required")
	}
	return nil
}

// Client posts requests to a single model endpoint.
type Client struct {
	URL   string
	Token string
	// HeaderTimeout bounds the wait for response headers. The body itself
	// is not bounded; callers cancel the context instead.
	HeaderTimeout time.Duration

	httpClient *http.Client
}

// New returns a client for url.
func New(url, token string, headerTimeout time.Duration) *Client {
	if headerTimeout <= 0 {
		headerTimeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &Client{
		URL:           url,
		Token:         token,
		HeaderTimeout: headerTimeout,
		httpClient:    &http.Client{Transport: transport},
	}
}

// Configured reports whether an endpoint URL is set.
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.URL) != ""
}

// Open starts a streaming generation. The caller owns the returned body and
// must close it; cancelling ctx aborts the transfer.
func (c *Client) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("upstream endpoint not configured")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body := map[string]interface{}{"stream": true}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	body["stream"] = true
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(snippet))}
	}
	return resp.Body, nil
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %s", e.Status)
	}
	return fmt.Sprintf("upstream returned %s: %s", e.Status, e.Body)
}
