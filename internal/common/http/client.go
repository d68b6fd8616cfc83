// internal/common/http/client.go
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"template-publisher/internal/common/errors"
	"template-publisher/internal/common/metrics"
)

// Client is a bearer-authenticated JSON client for one remote service.
type Client struct {
	service    string
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a client for service rooted at baseURL. A zero timeout
// leaves the transport default in place.
func NewClient(service, baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Service() string { return c.service }

func (c *Client) BaseURL() string { return c.baseURL }

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Do sends method+path with an optional JSON payload and returns the raw
// body. Transport failures and non-2xx statuses come back as
// REMOTE_REQUEST_FAILED errors carrying the status and body.
func (c *Client) Do(ctx context.Context, operation, method, path string, payload interface{}) (*Response, error) {
	start := time.Now()
	resp, err := c.do(ctx, operation, method, path, payload)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.RemoteCalls.WithLabelValues(c.service, operation, outcome).Inc()
	metrics.RemoteCallDuration.WithLabelValues(c.service, operation).Observe(time.Since(start).Seconds())
	return resp, err
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload interface{}) (*Response, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.NewRemoteRequestError(c.service, operation, 0, nil, fmt.Errorf("failed to marshal payload: %w", err))
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.NewRemoteRequestError(c.service, operation, 0, nil, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewRemoteRequestError(c.service, operation, 0, nil, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewRemoteRequestError(c.service, operation, resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewRemoteRequestError(c.service, operation, resp.StatusCode, respBody, nil)
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
