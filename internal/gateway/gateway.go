// Package gateway holds the tool-gateway credential pair and its
// liveness probe. The probe is advisory: callers may use the gateway
// even when the probe reports it down.
package gateway

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Credentials address a tool gateway for one sandbox's lifetime. Never
// persisted beyond the owning session's in-memory record.
type Credentials struct {
	URL   string
	Token string
}

// DefaultProbeTimeout bounds a single health probe.
const DefaultProbeTimeout = 5 * time.Second

// Client probes tool gateways.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a gateway client with the default probe timeout.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{Timeout: DefaultProbeTimeout}}
}

// CheckHealth probes the gateway's health endpoint. Network failures,
// timeouts, and non-2xx responses all collapse to false; this never
// returns an error because the caller has no remediation path.
func (c *Client) CheckHealth(ctx context.Context, creds Credentials) bool {
	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, creds.URL+"/health", nil)
	if err != nil {
		return false
	}
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
