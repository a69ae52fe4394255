package optadmin

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/peterbourgon/unixtransport"
)

// Client talks to a remote Server, typically over a unix-socket admin
// listener, the way trchttp.NewServer's HTTPClient registers unixtransport
// so the same client can address both unix:// and http:// URIs.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client addressing baseURL, which may be a unix://
// socket URI (e.g. "unix:///var/run/optrackd/admin.sock:") or an ordinary
// http(s):// URL. Request paths such as "/ops/in_flight" are appended to it.
func NewClient(baseURL string) *Client {
	var transport http.Transport
	unixtransport.Register(&transport)

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Transport: &transport},
	}
}

// Get issues a GET request against path (e.g. "/ops/in_flight") and returns
// the raw response body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("optadmin: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("optadmin: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("optadmin: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return body, fmt.Errorf("optadmin: %s: %s", path, resp.Status)
	}

	return body, nil
}

// OpsInFlight fetches the ops_in_flight dump.
func (c *Client) OpsInFlight(ctx context.Context) ([]byte, error) {
	return c.Get(ctx, "/ops/in_flight")
}

// HistoricOps fetches the op_history dump.
func (c *Client) HistoricOps(ctx context.Context) ([]byte, error) {
	return c.Get(ctx, "/ops/historic")
}

// HistoricSlowOps fetches the slow sub-history dump.
func (c *Client) HistoricSlowOps(ctx context.Context) ([]byte, error) {
	return c.Get(ctx, "/ops/historic_slow")
}

// Check fetches a slow-op check summary.
func (c *Client) Check(ctx context.Context) ([]byte, error) {
	return c.Get(ctx, "/ops/check")
}
