package client

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/betbot/copytrader/clob/types"
)

// PostOrder submits a signed order. The payload is marshalled once and the
// same bytes are both HMAC-signed and sent, the server verifies the body
// against the signature byte for byte.
func (c *Client) PostOrder(ctx context.Context, order *types.SignedOrder, orderType types.OrderType, deferExec bool) (*types.OrderResponse, error) {
	if err := c.CanL2Auth(); err != nil {
		return nil, err
	}

	if err := c.rateLimiter.Wait(ctx, "clob:order:post"); err != nil {
		return nil, errors.Wrap(err, "rate limit wait")
	}

	payload := types.NewOrder{
		Order:     *order,
		Owner:     c.authConfig.Creds.Key,
		OrderType: orderType,
		DeferExec: deferExec,
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal order payload")
	}
	bodyStr := string(bodyBytes)

	headers, err := c.l2Headers(&types.L2HeaderArgs{
		Method:      "POST",
		RequestPath: EndpointPostOrder,
		Body:        &bodyStr,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.post(ctx, EndpointPostOrder, headers, bodyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "post order")
	}

	var orderResp types.OrderResponse
	if err := parseResponse(resp, &orderResp); err != nil {
		return nil, errors.Wrap(err, "decode order response")
	}

	return &orderResp, nil
}

// CreateOrder builds and signs an order spending from the signer wallet.
func (c *Client) CreateOrder(req *types.UserOrder, options *types.CreateOrderOptions) (*types.SignedOrder, error) {
	return c.CreateOrderWithFunder(req, options, "", types.SignatureTypeEOA)
}

// CreateOrderWithFunder builds and signs an order spending from a proxy
// wallet. funderAddress is the proxy that holds the USDC, signatureType
// tells the exchange how the proxy authorizes the signer.
func (c *Client) CreateOrderWithFunder(req *types.UserOrder, options *types.CreateOrderOptions, funderAddress string, signatureType types.SignatureType) (*types.SignedOrder, error) {
	if err := c.CanL1Auth(); err != nil {
		return nil, err
	}

	builder := NewOrderBuilder(c, signatureType, funderAddress)
	return builder.BuildOrder(req, options)
}

// clampMarketable rewrites price and size to the precision marketable
// orders require and lifts dust orders to the exchange minimums: $1 USDC on
// buys, 0.1 token either way.
func clampMarketable(req *types.UserOrder) *types.UserOrder {
	price := roundNormal(req.Price, 2)
	size := roundNormal(req.Size, 4)

	const minOrderUSDC = 1.0
	usdcValue := roundNormal(size*price, 2)
	if req.Side == types.SideBuy && usdcValue < minOrderUSDC && price > 0 {
		size = roundNormal(minOrderUSDC/price, 4)
	}

	const minTokenSize = 0.1
	if size < minTokenSize {
		size = minTokenSize
	}

	out := *req
	out.Price = price
	out.Size = size
	return &out
}

// CreateOrderMarketable builds a signed order at FOK/FAK precision: price at
// 2 places, size at 4.
func (c *Client) CreateOrderMarketable(req *types.UserOrder, options *types.CreateOrderOptions, funderAddress string, signatureType types.SignatureType) (*types.SignedOrder, error) {
	return c.CreateOrderWithFunder(clampMarketable(req), options, funderAddress, signatureType)
}

// PlaceLimitOrder submits a GTC order that rests on the book until filled
// or cancelled.
func (c *Client) PlaceLimitOrder(ctx context.Context, tokenID string, side types.Side, size float64, price float64, options *types.CreateOrderOptions) (*types.OrderResponse, error) {
	if err := c.CanL2Auth(); err != nil {
		return nil, err
	}

	signedOrder, err := c.CreateOrder(&types.UserOrder{
		TokenID: tokenID,
		Side:    side,
		Size:    size,
		Price:   price,
	}, options)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	return c.PostOrder(ctx, signedOrder, types.OrderTypeGTC, false)
}

// PlaceOrderFOK submits a fill-or-kill order: all of it executes at price or
// better, or none of it does.
func (c *Client) PlaceOrderFOK(ctx context.Context, tokenID string, side types.Side, size float64, price float64, options *types.CreateOrderOptions) (*types.OrderResponse, error) {
	return c.placeMarketable(ctx, tokenID, side, size, price, options, types.OrderTypeFOK, "", types.SignatureTypeEOA)
}

// PlaceOrderFAK submits a fill-and-kill order: whatever crosses executes,
// the remainder is cancelled. This is the order type used for copying, a
// partial fill beats no fill.
func (c *Client) PlaceOrderFAK(ctx context.Context, tokenID string, side types.Side, size float64, price float64, options *types.CreateOrderOptions) (*types.OrderResponse, error) {
	return c.placeMarketable(ctx, tokenID, side, size, price, options, types.OrderTypeFAK, "", types.SignatureTypeEOA)
}

// PlaceOrderFAKWithFunder is PlaceOrderFAK spending from a proxy wallet.
func (c *Client) PlaceOrderFAKWithFunder(ctx context.Context, tokenID string, side types.Side, size float64, price float64, options *types.CreateOrderOptions, funderAddress string, signatureType types.SignatureType) (*types.OrderResponse, error) {
	return c.placeMarketable(ctx, tokenID, side, size, price, options, types.OrderTypeFAK, funderAddress, signatureType)
}

func (c *Client) placeMarketable(ctx context.Context, tokenID string, side types.Side, size float64, price float64, options *types.CreateOrderOptions, orderType types.OrderType, funderAddress string, signatureType types.SignatureType) (*types.OrderResponse, error) {
	if err := c.CanL2Auth(); err != nil {
		return nil, err
	}

	if err := ValidateMarketablePrecision(size, price); err != nil {
		return nil, err
	}

	signedOrder, err := c.CreateOrderMarketable(&types.UserOrder{
		TokenID: tokenID,
		Side:    side,
		Size:    size,
		Price:   price,
	}, options, funderAddress, signatureType)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	return c.PostOrder(ctx, signedOrder, orderType, false)
}
