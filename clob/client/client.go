// Package client implements the subset of the Polymarket CLOB API the bot
// needs: api key provisioning, balance lookups, order books and signed
// order placement.
package client

import (
	"crypto/ecdsa"
	"net/url"
	"os"
	"strings"

	"github.com/betbot/copytrader/clob/types"
	"github.com/betbot/copytrader/pkg/ratelimit"
)

const DefaultHost = "https://clob.polymarket.com"

// Client talks to one CLOB host with one signing key.
type Client struct {
	host        string
	chainID     types.Chain
	authConfig  *AuthConfig
	httpClient  *httpClient
	rateLimiter *ratelimit.Manager
}

// NewClient builds a client. creds may be nil until CreateOrDeriveAPIKey has
// run; L2 endpoints refuse to fire without them.
func NewClient(host string, chainID types.Chain, privateKey *ecdsa.PrivateKey, creds *types.ApiKeyCreds) *Client {
	if host == "" {
		host = DefaultHost
	}

	authConfig := &AuthConfig{
		PrivateKey: privateKey,
		ChainID:    chainID,
		Creds:      creds,
	}

	// Proxy is opt-in via the usual environment variables.
	var proxyURL *url.URL
	if raw := proxyFromEnv(); raw != "" {
		if parsed, err := url.Parse(raw); err == nil {
			proxyURL = parsed
		}
	}

	return &Client{
		host:        strings.TrimSuffix(host, "/"),
		chainID:     chainID,
		authConfig:  authConfig,
		httpClient:  newHTTPClient(host, proxyURL),
		rateLimiter: ratelimit.NewManager(),
	}
}

func proxyFromEnv() string {
	for _, v := range []string{"HTTP_PROXY", "HTTPS_PROXY", "http_proxy", "https_proxy"} {
		if val := os.Getenv(v); val != "" {
			return val
		}
	}
	return ""
}

func (c *Client) GetHost() string {
	return c.host
}

func (c *Client) GetChainID() types.Chain {
	return c.chainID
}

// SetCreds installs api credentials after a derive/create round trip.
func (c *Client) SetCreds(creds *types.ApiKeyCreds) {
	c.authConfig.Creds = creds
}
