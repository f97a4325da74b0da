package client

import (
	"context"

	"github.com/pkg/errors"

	"github.com/betbot/copytrader/clob/types"
)

// GetOrderBook fetches the book for one token. Public endpoint, no auth.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*types.OrderBookSummary, error) {
	if err := c.rateLimiter.Wait(ctx, "clob:orders:get"); err != nil {
		return nil, errors.Wrap(err, "rate limit wait")
	}

	resp, err := c.httpClient.get(ctx, EndpointGetOrderBook, nil, map[string]string{
		"token_id": tokenID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "get order book")
	}

	var book types.OrderBookSummary
	if err := parseResponse(resp, &book); err != nil {
		return nil, err
	}

	return &book, nil
}
