package node

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

// Result is the outcome of one remote panel call. Error carries a
// client-presentable description when OK is false.
type Result struct {
	OK         bool `json:"ok"`
	StatusCode int  `json:"status_code,omitempty"`
	Data       any  `json:"data,omitempty"`
	Error      string
}

type nodeClient interface {
	request(ctx context.Context, n Node, method, path string, payload any) Result
}

type httpNodeClient struct {
	client *http.Client
}

func newHTTPNodeClient(timeout time.Duration) *httpNodeClient {
	return &httpNodeClient{client: &http.Client{Timeout: timeout}}
}

func (c *httpNodeClient) request(ctx context.Context, n Node, method, path string, payload any) Result {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := n.BaseURL + path

	var body io.Reader
	if payload != nil {
		enc, err := json.Marshal(payload)
		if err != nil {
			return Result{Error: fmt.Sprintf("failed to encode payload: %v", err)}
		}
		body = bytes.NewReader(enc)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return Result{Error: fmt.Sprintf("request failed: %v", err)}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if n.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{Error: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{StatusCode: resp.StatusCode, Error: fmt.Sprintf("failed to read response: %v", err)}
	}

	var data any
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "application/json") {
		if json.Unmarshal(raw, &data) != nil {
			data = map[string]any{"detail": string(raw)}
		}
	} else {
		data = map[string]any{"detail": string(raw)}
	}

	if resp.StatusCode >= 400 {
		detail := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if m, ok := data.(map[string]any); ok {
			if d, ok := m["detail"].(string); ok && d != "" {
				detail = d
			}
		}
		return Result{StatusCode: resp.StatusCode, Data: data, Error: detail}
	}

	return Result{OK: true, StatusCode: resp.StatusCode, Data: data}
}

// Request performs a bearer-authenticated JSON call against a remote node.
func (m *Manager) Request(ctx context.Context, n Node, method, path string, payload any) Result {
	return m.client.request(ctx, n, method, path, payload)
}
