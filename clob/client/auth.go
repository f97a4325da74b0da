package client

import (
	"context"
	"crypto/ecdsa"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/betbot/copytrader/clob/signing"
	"github.com/betbot/copytrader/clob/types"
)

// AuthConfig holds the signing key and, once provisioned, api credentials.
type AuthConfig struct {
	PrivateKey *ecdsa.PrivateKey
	ChainID    types.Chain
	Creds      *types.ApiKeyCreds
}

// CanL1Auth reports whether private-key signed requests are possible.
func (c *Client) CanL1Auth() error {
	if c.authConfig == nil || c.authConfig.PrivateKey == nil {
		return errors.New("level 1 auth unavailable: private key not configured")
	}
	return nil
}

// CanL2Auth reports whether api-key signed requests are possible.
func (c *Client) CanL2Auth() error {
	if c.authConfig == nil || c.authConfig.Creds == nil {
		return errors.New("level 2 auth unavailable: api credentials not configured")
	}
	return nil
}

// GetAddress returns the signer address derived from the private key.
func (c *Client) GetAddress() (common.Address, error) {
	if err := c.CanL1Auth(); err != nil {
		return common.Address{}, err
	}
	return signing.GetAddressFromPrivateKey(c.authConfig.PrivateKey), nil
}

// CreateOrDeriveAPIKey provisions api credentials for the signing key. It
// first tries to derive an existing key; a 400 means the account has none
// yet, in which case a fresh key is created.
func (c *Client) CreateOrDeriveAPIKey(ctx context.Context, nonce *int64) (*types.ApiKeyCreds, error) {
	if err := c.CanL1Auth(); err != nil {
		return nil, err
	}

	var n int64
	if nonce != nil {
		n = *nonce
	}

	headers, err := signing.CreateL1Headers(c.authConfig.PrivateKey, c.authConfig.ChainID, &n, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create level 1 headers")
	}
	headerMap := l1HeaderMap(headers)

	resp, err := c.httpClient.get(ctx, EndpointDeriveAPIKey, headerMap, nil)
	if err == nil && resp != nil {
		switch {
		case resp.StatusCode == http.StatusOK:
			var raw types.ApiKeyRaw
			if err := parseResponse(resp, &raw); err != nil {
				return nil, errors.Wrap(err, "decode derived api key")
			}
			return &types.ApiKeyCreds{Key: raw.ApiKey, Secret: raw.Secret, Passphrase: raw.Passphrase}, nil
		case resp.StatusCode == http.StatusBadRequest:
			// No existing key, fall through to create one.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		default:
			bodyBytes, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, errors.Errorf("derive api key: http %d: %s", resp.StatusCode, string(bodyBytes))
		}
	}

	resp, err = c.httpClient.post(ctx, EndpointCreateAPIKey, headerMap, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create api key")
	}

	var raw types.ApiKeyRaw
	if err := parseResponse(resp, &raw); err != nil {
		return nil, errors.Wrap(err, "decode created api key")
	}

	return &types.ApiKeyCreds{Key: raw.ApiKey, Secret: raw.Secret, Passphrase: raw.Passphrase}, nil
}

// l2Headers signs args with the configured credentials and returns the
// header map for the request.
func (c *Client) l2Headers(args *types.L2HeaderArgs) (map[string]string, error) {
	headers, err := signing.CreateL2Headers(c.authConfig.PrivateKey, c.authConfig.Creds, args, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create level 2 headers")
	}
	return map[string]string{
		"POLY_ADDRESS":    headers.PolyAddress,
		"POLY_SIGNATURE":  headers.PolySignature,
		"POLY_TIMESTAMP":  headers.PolyTimestamp,
		"POLY_API_KEY":    headers.PolyAPIKey,
		"POLY_PASSPHRASE": headers.PolyPassphrase,
	}, nil
}

func l1HeaderMap(h *types.L1PolyHeader) map[string]string {
	return map[string]string{
		"POLY_ADDRESS":   h.PolyAddress,
		"POLY_SIGNATURE": h.PolySignature,
		"POLY_TIMESTAMP": h.PolyTimestamp,
		"POLY_NONCE":     h.PolyNonce,
	}
}
