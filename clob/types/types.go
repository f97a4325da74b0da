// Package types defines the wire and auth types shared by the CLOB client
// and its signers.
package types

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the execution mode requested from the matching engine.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // rests on the book until cancelled
	OrderTypeFOK OrderType = "FOK" // fills completely or not at all
	OrderTypeGTD OrderType = "GTD" // rests until the given date
	OrderTypeFAK OrderType = "FAK" // fills what it can, cancels the rest
)

// Chain is the target network.
type Chain int

const (
	ChainPolygon Chain = 137
	ChainAmoy    Chain = 80002
)

// SignatureType tells the exchange how the maker address relates to the
// signing key.
type SignatureType int

const (
	SignatureTypeEOA        SignatureType = 0 // standard wallet, maker == signer
	SignatureTypeMagic      SignatureType = 1 // Magic Link proxy wallet
	SignatureTypeGnosisSafe SignatureType = 2 // Gnosis Safe proxy wallet
)

// TickSize is the market's price resolution.
type TickSize string

const (
	TickSize01    TickSize = "0.1"
	TickSize001   TickSize = "0.01"
	TickSize0001  TickSize = "0.001"
	TickSize00001 TickSize = "0.0001"
)

// AssetType selects collateral (USDC) or conditional tokens in balance
// queries.
type AssetType string

const (
	AssetTypeCollateral  AssetType = "COLLATERAL"
	AssetTypeConditional AssetType = "CONDITIONAL"
)

// ApiKeyCreds are the L2 credentials used to HMAC-sign requests.
type ApiKeyCreds struct {
	Key        string
	Secret     string
	Passphrase string
}

// ApiKeyRaw is the create/derive response shape.
type ApiKeyRaw struct {
	ApiKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// L2HeaderArgs describes the request being HMAC-signed.
type L2HeaderArgs struct {
	Method      string
	RequestPath string
	Body        *string
}

// L1PolyHeader carries the EIP-712 wallet attestation.
type L1PolyHeader struct {
	PolyAddress   string `json:"POLY_ADDRESS"`
	PolySignature string `json:"POLY_SIGNATURE"`
	PolyTimestamp string `json:"POLY_TIMESTAMP"`
	PolyNonce     string `json:"POLY_NONCE"`
}

// L2PolyHeader carries the API-key HMAC auth.
type L2PolyHeader struct {
	PolyAddress    string `json:"POLY_ADDRESS"`
	PolySignature  string `json:"POLY_SIGNATURE"`
	PolyTimestamp  string `json:"POLY_TIMESTAMP"`
	PolyAPIKey     string `json:"POLY_API_KEY"`
	PolyPassphrase string `json:"POLY_PASSPHRASE"`
}

// UserOrder is the caller's view of a limit order before building and
// signing.
type UserOrder struct {
	// TokenID is the conditional token asset id.
	TokenID string

	// Price per share.
	Price float64

	// Size in shares.
	Size float64

	Side Side

	// FeeRateBps, optional.
	FeeRateBps *int

	// Nonce for on-chain cancellation, optional.
	Nonce *int

	// Expiration as a unix timestamp, optional.
	Expiration *int64

	// Taker address; zero address means a public order. Optional.
	Taker *string
}

// SignedOrder is the exchange wire format of a built and signed order.
type SignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          Side   `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// NewOrder is the POST /order payload.
type NewOrder struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType OrderType   `json:"orderType"`
	DeferExec bool        `json:"deferExec"`
}

// OrderResponse is the matching engine's reply to an order submission.
type OrderResponse struct {
	Success           bool     `json:"success"`
	ErrorMsg          string   `json:"errorMsg"`
	OrderID           string   `json:"orderID"`
	TransactionHashes []string `json:"transactionsHashes"`
	Status            string   `json:"status"`
	TakingAmount      string   `json:"takingAmount"`
	MakingAmount      string   `json:"makingAmount"`
}

// CreateOrderOptions selects market parameters the builder cannot infer.
type CreateOrderOptions struct {
	TickSize TickSize
	NegRisk  *bool
}

// BalanceAllowanceParams queries collateral or a specific conditional
// token.
type BalanceAllowanceParams struct {
	AssetType     AssetType
	TokenID       *string
	SignatureType *SignatureType
}

// BalanceAllowanceResponse reports balances in USDC micro units.
type BalanceAllowanceResponse struct {
	Balance             string            `json:"balance"`
	Allowance           string            `json:"allowance"`
	CollateralBalance   string            `json:"collateralBalance,omitempty"`
	CollateralAllowance string            `json:"collateralAllowance,omitempty"`
	Allowances          map[string]string `json:"allowances,omitempty"`
}
