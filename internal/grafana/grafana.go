// Package grafana mints and revokes scoped, time-limited Grafana viewer API
// keys per session (SPEC_FULL.md §5.1), a feature original_source's
// python_server.py implements but spec.md's distillation folded into the
// generic "gated reverse-proxy access to shared observability dashboards."
// It is a thin net/http client rather than a wrapped library: the pack has
// no general-purpose REST client suited to a same-cluster authenticated
// admin call (SPEC_FULL.md §7).
package grafana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to one Grafana instance's legacy API-key endpoints.
type Client struct {
	baseURL      string
	adminAPIKey  string
	httpClient   *http.Client
}

// New returns a Client for the given base URL (e.g. "http://grafana-host:3000").
func New(baseURL, adminAPIKey string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		adminAPIKey: adminAPIKey,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateViewerKey mints a Viewer-role key named keyName with the given TTL.
// Non-fatal by contract: callers treat a returned error as an
// external-failure to log and proceed without a scoped key (SPEC_FULL.md §5.1).
func (c *Client) CreateViewerKey(ctx context.Context, keyName string, ttl time.Duration) (string, error) {
	body, err := json.Marshal(map[string]any{
		"name":          keyName,
		"role":          "Viewer",
		"secondsToLive": int(ttl.Seconds()),
	})
	if err != nil {
		return "", fmt.Errorf("grafana: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/keys", strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("grafana: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.adminAPIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("grafana: create key request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("grafana: create key failed with status %d", resp.StatusCode)
	}

	var out struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("grafana: decode response: %w", err)
	}
	return out.Key, nil
}

// DeleteKeyByName deletes the named key during session teardown. Best
// effort: callers log and ignore the error (the key's TTL will expire it
// regardless, per original_source's "optional, since TTL is set" comment).
func (c *Client) DeleteKeyByName(ctx context.Context, keyName string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/auth/keys/uid/"+keyName, nil)
	if err != nil {
		return fmt.Errorf("grafana: build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.adminAPIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("grafana: delete key request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("grafana: delete key failed with status %d", resp.StatusCode)
	}
	return nil
}
