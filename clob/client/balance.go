package client

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/betbot/copytrader/clob/types"
)

// GetBalanceAllowance returns the balance and exchange allowance for the
// asset. For proxy wallets pass the signature type so the server resolves
// the proxy's balance rather than the signer's.
func (c *Client) GetBalanceAllowance(ctx context.Context, params *types.BalanceAllowanceParams) (*types.BalanceAllowanceResponse, error) {
	if err := c.CanL2Auth(); err != nil {
		return nil, err
	}

	queryParams := map[string]string{
		"asset_type": string(params.AssetType),
	}
	if params.TokenID != nil {
		queryParams["token_id"] = *params.TokenID
	}
	if params.SignatureType != nil {
		queryParams["signature_type"] = strconv.Itoa(int(*params.SignatureType))
	}

	headers, err := c.l2Headers(&types.L2HeaderArgs{
		Method:      "GET",
		RequestPath: EndpointGetBalanceAllowance,
		Body:        nil,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.get(ctx, EndpointGetBalanceAllowance, headers, queryParams)
	if err != nil {
		return nil, errors.Wrap(err, "get balance allowance")
	}

	var balance types.BalanceAllowanceResponse
	if err := parseResponse(resp, &balance); err != nil {
		return nil, err
	}

	return &balance, nil
}
