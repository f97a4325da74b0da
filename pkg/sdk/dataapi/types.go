package dataapi

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Num handles Polymarket numbers that may arrive as strings, numbers or
// null. The zero value is decimal zero.
type Num struct {
	decimal.Decimal
}

func (n *Num) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || strings.EqualFold(string(data), "null") || string(data) == `""` {
		n.Decimal = decimal.Zero
		return nil
	}

	if data[0] == '"' && data[len(data)-1] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		n.Decimal = d
		return nil
	}

	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return err
	}
	n.Decimal = d
	return nil
}

// Position is one open position as the Data API reports it.
type Position struct {
	ProxyWallet  string `json:"proxyWallet"`
	Asset        string `json:"asset"` // ERC-1155 token id
	ConditionID  string `json:"conditionId"`
	Size         Num    `json:"size"`
	AvgPrice     Num    `json:"avgPrice"`
	CurPrice     Num    `json:"curPrice"`
	InitialValue Num    `json:"initialValue"`
	CurrentValue Num    `json:"currentValue"`
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	Outcome      string `json:"outcome"`
	OutcomeIndex int    `json:"outcomeIndex"`
	EventSlug    string `json:"eventSlug"`
	NegativeRisk bool   `json:"negativeRisk"`
	Redeemable   bool   `json:"redeemable"`
}

// Activity is one row from the wallet activity feed.
type Activity struct {
	ProxyWallet     string `json:"proxyWallet"`
	Type            string `json:"type"` // TRADE, REDEEM, SPLIT, MERGE
	Side            string `json:"side"`
	Asset           string `json:"asset"`
	ConditionID     string `json:"conditionId"`
	Size            Num    `json:"size"`
	UsdcSize        Num    `json:"usdcSize"`
	Price           Num    `json:"price"`
	Timestamp       int64  `json:"timestamp"`
	Title           string `json:"title"`
	Outcome         string `json:"outcome"`
	TransactionHash string `json:"transactionHash"`
}
