package client

import (
	"github.com/pkg/errors"
	orderconfig "github.com/polymarket/go-order-utils/pkg/config"

	"github.com/betbot/copytrader/clob/types"
)

// ContractConfig carries the exchange addresses for one chain.
type ContractConfig struct {
	Exchange        string
	NegRiskExchange string
}

const (
	// CollateralTokenDecimals is the USDC precision.
	CollateralTokenDecimals = 6

	// ConditionalTokenDecimals is the outcome token precision.
	ConditionalTokenDecimals = 6
)

// GetContractConfig resolves the exchange contracts for chainID. Negative
// risk markets settle through a separate exchange, so orders must be signed
// against the right verifying contract.
func GetContractConfig(chainID types.Chain) (*ContractConfig, error) {
	contracts, err := orderconfig.GetContracts(int64(chainID))
	if err != nil {
		return nil, errors.Wrapf(err, "no contracts for chain %d", chainID)
	}
	return &ContractConfig{
		Exchange:        contracts.Exchange.Hex(),
		NegRiskExchange: contracts.NegRiskExchange.Hex(),
	}, nil
}
