package genuicli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client wraps bridge API calls.
type Client struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, target interface{}) error {
	httpClient := &http.Client{Timeout: c.Timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiError(req, resp)
	}
	if target == nil {
		return nil
	}
	if s, ok := target.(*string); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		*s = string(data)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// apiError surfaces the server's {"error": ...} message when present.
func apiError(req *http.Request, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("%s %s failed: %s: %s", req.Method, req.URL.Path, resp.Status, body.Error)
	}
	return fmt.Errorf("%s %s failed: %s", req.Method, req.URL.Path, resp.Status)
}

func (c *Client) GetJSON(path string, target interface{}) error {
	req, err := c.newRequest(context.Background(), http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, target)
}

func (c *Client) PostJSON(path string, payload interface{}, target interface{}) error {
	var body io.Reader = bytes.NewReader([]byte("{}"))
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(context.Background(), http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return c.do(req, target)
}

// StreamEvents opens an SSE feed at path and invokes handler for each event.
// Returning false stops the stream.
func (c *Client) StreamEvents(ctx context.Context, path string, handler func(EventEnvelope) bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	httpClient := &http.Client{}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiError(req, resp)
	}

	reader := bufio.NewReader(resp.Body)
	var (
		eventType string
		dataLines []string
	)

	dispatch := func() bool {
		if len(dataLines) == 0 {
			return true
		}
		raw := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]

		var envelope EventEnvelope
		if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
			return true
		}
		if envelope.Type == "" {
			envelope.Type = eventType
		}
		if handler != nil {
			return handler(envelope)
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if !dispatch() {
				return nil
			}
			eventType = ""
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(line[len("data:"):]))
		}
	}
}
