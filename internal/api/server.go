package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// GetUser fetches a user profile.
func (c *Client) GetUser(ctx context.Context, userID string) (*Profile, error) {
	resp, err := get[Profile](ctx, c, "/users", url.Values{"id": {userID}})
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &resp.Data, nil
}

// GetStats fetches aggregate server statistics.
func (c *Client) GetStats(ctx context.Context) (*ServerStats, error) {
	resp, err := get[ServerStats](ctx, c, "/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &resp.Data, nil
}

// GetCacheStats fetches cache statistics.
func (c *Client) GetCacheStats(ctx context.Context) (*CacheStats, error) {
	resp, err := get[CacheStats](ctx, c, "/cache/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("get cache stats: %w", err)
	}
	return &resp.Data, nil
}

// GetWebSocketStats fetches the server's view of connected feed clients.
func (c *Client) GetWebSocketStats(ctx context.Context) (*WebSocketStats, error) {
	resp, err := get[WebSocketStats](ctx, c, "/websocket/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("get websocket stats: %w", err)
	}
	return &resp.Data, nil
}

// ClearCache empties the server cache.
func (c *Client) ClearCache(ctx context.Context) error {
	if _, err := post[any](ctx, c, "/cache/clear", nil); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// HealthCheck calls the health endpoint and returns its data unparsed.
func (c *Client) HealthCheck(ctx context.Context) (json.RawMessage, error) {
	resp, err := get[json.RawMessage](ctx, c, "/health", nil)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return resp.Data, nil
}

// GetServerInfo fetches the server's root description.
func (c *Client) GetServerInfo(ctx context.Context) (json.RawMessage, error) {
	resp, err := get[json.RawMessage](ctx, c, "/", nil)
	if err != nil {
		return nil, fmt.Errorf("get server info: %w", err)
	}
	return resp.Data, nil
}
