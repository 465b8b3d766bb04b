// Package client provides a small HTTP client for the read-only status API a
// running pollenwall exposes when [server] is enabled. It is useful for
// dashboards and scripts that want to inspect the tracked pollens without
// embedding the engine.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a pollenwall status API over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration matching pollenwall's
// default [server] listen address and base path.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:7130/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new status API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:7130/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if a pollenwall instance is serving the status API
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Status API unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	isReachable := resp.StatusCode == http.StatusOK
	c.logger.Debug("Status API reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// Status fetches the engine snapshot
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	if err := c.getJSON(ctx, c.baseURL+"/status", &out); err != nil {
		return Status{}, err
	}
	return out, nil
}

// Pollens fetches all tracked pollens
func (c *Client) Pollens(ctx context.Context) ([]Pollen, error) {
	var out []Pollen
	if err := c.getJSON(ctx, c.baseURL+"/pollens", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Pollen fetches one tracked pollen by id
func (c *Client) Pollen(ctx context.Context, id string) (Pollen, error) {
	var out Pollen
	if err := c.getJSON(ctx, c.baseURL+"/pollens/"+url.PathEscape(id), &out); err != nil {
		return Pollen{}, err
	}
	return out, nil
}

// getJSON performs a GET request and decodes the JSON response into out
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("API error: %s", errorResp.Error)
}
