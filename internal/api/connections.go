package api

import (
	"context"
	"fmt"
)

// OpenConnectionPath is the method that issues WebSocket URLs.
const OpenConnectionPath = "/apps.connections.open"

// OpenConnection asks the web API for a new single-use WebSocket URL.
func (c *Client) OpenConnection(ctx context.Context) (*ConnectionInfo, error) {
	var resp OpenConnectionResponse
	if err := c.post(ctx, OpenConnectionPath, nil, &resp); err != nil {
		return nil, err
	}
	if resp.URL == "" {
		return nil, fmt.Errorf("open connection: empty url in response")
	}

	c.logger.Debug("connection url issued", "expires_in", resp.ExpiresIn)
	return &ConnectionInfo{URL: resp.URL, ExpiresIn: resp.ExpiresIn}, nil
}

// AcquireURL returns a fresh connection URL. It lets *Client serve as the
// connection client's URL source.
func (c *Client) AcquireURL(ctx context.Context) (string, error) {
	info, err := c.OpenConnection(ctx)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}
