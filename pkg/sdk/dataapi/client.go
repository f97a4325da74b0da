// Package dataapi wraps the Polymarket Data API endpoints the daemon
// consumes: open positions per wallet and the recent activity feed.
package dataapi

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/betbot/copytrader/pkg/ratelimit"
	"github.com/betbot/copytrader/pkg/sdk/httpx"
)

// DefaultHost is the public Data API endpoint.
const DefaultHost = "https://data-api.polymarket.com"

// positionsPageLimit matches the API's maximum page size.
const positionsPageLimit = 500

// Client is a rate-limited Data API client.
type Client struct {
	http    *httpx.Client
	limiter *ratelimit.Manager
}

// NewClient targets host, or DefaultHost when host is empty.
func NewClient(host string) *Client {
	if host == "" {
		host = DefaultHost
	}
	return &Client{
		http:    httpx.NewClient(host),
		limiter: ratelimit.NewManager(),
	}
}

// GetPositions returns every open position for a wallet. Pagination is
// followed until a short page arrives. A wallet with no positions returns
// an empty slice, not an error.
func (c *Client) GetPositions(ctx context.Context, user string) ([]Position, error) {
	var all []Position
	offset := 0
	for {
		if err := c.limiter.Wait(ctx, "data:positions:get"); err != nil {
			return nil, err
		}

		var page []Position
		resp, err := c.http.DoRequest(ctx, "GET", "/positions", &httpx.RequestOptions{
			Params: map[string]any{
				"user":          user,
				"sizeThreshold": 0,
				"limit":         positionsPageLimit,
				"offset":        offset,
			},
		}, &page)
		if err != nil {
			return nil, errors.Wrapf(err, "data api positions for %s", user)
		}
		if !resp.IsSuccess() {
			if resp.StatusCode() == 404 {
				return nil, nil
			}
			return nil, fmt.Errorf("data api positions for %s: status %d: %s", user, resp.StatusCode(), resp.String())
		}

		all = append(all, page...)
		if len(page) < positionsPageLimit {
			return all, nil
		}
		offset += positionsPageLimit
	}
}

// GetActivity returns the most recent activity rows for a wallet, newest
// first.
func (c *Client) GetActivity(ctx context.Context, user string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	if err := c.limiter.Wait(ctx, "data:general"); err != nil {
		return nil, err
	}

	var rows []Activity
	resp, err := c.http.DoRequest(ctx, "GET", "/activity", &httpx.RequestOptions{
		Params: map[string]any{
			"user":  user,
			"limit": limit,
		},
	}, &rows)
	if err != nil {
		return nil, errors.Wrapf(err, "data api activity for %s", user)
	}
	if !resp.IsSuccess() {
		if resp.StatusCode() == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("data api activity for %s: status %d: %s", user, resp.StatusCode(), resp.String())
	}
	return rows, nil
}
