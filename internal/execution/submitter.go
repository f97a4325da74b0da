package execution

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/copytrader/clob/client"
	"github.com/betbot/copytrader/clob/types"
	"github.com/betbot/copytrader/internal/domain"
	"github.com/betbot/copytrader/pkg/logger"
)

// sellFloorRatio bounds how far below the source's reference price a close
// is allowed to fill.
const sellFloorRatio = 0.90

// buySlippageCap returns the maximum fraction above the source's reference
// price an open may pay. Cheap outcomes move in larger relative steps, so
// the cap widens as the price drops.
func buySlippageCap(refPrice float64) float64 {
	switch {
	case refPrice < 0.10:
		return 2.00
	case refPrice < 0.20:
		return 0.80
	case refPrice < 0.30:
		return 0.50
	case refPrice < 0.40:
		return 0.30
	default:
		return 0.20
	}
}

// ClobSubmitter places candidate actions on the Polymarket CLOB as FAK
// orders. Each submission reads the order book once and walks it within the
// slippage bounds; if nothing crosses, the submission fails retryably so
// the engine's bounded retry can wait out a thin book.
type ClobSubmitter struct {
	client        *client.Client
	funderAddress string
	signatureType types.SignatureType
}

// NewClobSubmitter wires the boundary. funderAddress may be empty for EOA
// wallets that hold their own collateral.
func NewClobSubmitter(c *client.Client, funderAddress string, signatureType types.SignatureType) *ClobSubmitter {
	return &ClobSubmitter{client: c, funderAddress: funderAddress, signatureType: signatureType}
}

// Submit implements Submitter against the live CLOB.
func (s *ClobSubmitter) Submit(ctx context.Context, action domain.CandidateAction) (Fill, error) {
	tokenID := action.Position.ID
	refPrice := action.Price.InexactFloat64()
	wantSize := action.Quantity.InexactFloat64()
	if refPrice <= 0 || wantSize <= 0 {
		return Fill{}, &domain.RejectedError{Reason: "non-positive size or reference price"}
	}

	side := types.SideBuy
	var bound float64
	if action.Side == domain.SideClose {
		side = types.SideSell
		bound = refPrice * sellFloorRatio
	} else {
		bound = refPrice * (1 + buySlippageCap(refPrice))
	}

	book, err := s.client.GetOrderBook(ctx, tokenID)
	if err != nil {
		return Fill{}, categorize(err, "order book")
	}

	fillSize, worstPrice, avgPrice := client.FillFromBook(book, side, wantSize, bound)
	if fillSize <= 0 {
		return Fill{}, &domain.TransportError{
			Err: errors.Errorf("no book liquidity for %s within price bound %.4f", tokenID, bound),
		}
	}
	if fillSize < wantSize {
		logger.Warnf("execution: book covers %.4f of %.4f for %s, submitting the coverable part", fillSize, wantSize, tokenID)
	}

	size := roundDown(math.Min(fillSize, wantSize), 4)
	price := limitPriceFor(side, worstPrice)

	negRisk := action.Position.NegRisk
	resp, err := s.client.PlaceOrderFAKWithFunder(ctx, tokenID, side, size, price,
		&types.CreateOrderOptions{NegRisk: &negRisk}, s.funderAddress, s.signatureType)
	if err != nil {
		return Fill{}, categorize(err, "post order")
	}
	if !resp.Success || resp.ErrorMsg != "" {
		reason := resp.ErrorMsg
		if reason == "" {
			reason = "order not accepted, status " + resp.Status
		}
		return Fill{}, &domain.RejectedError{Reason: reason}
	}

	fill := fillFromResponse(resp, side)
	if fill.Quantity.IsZero() {
		fill.Quantity = decimal.NewFromFloat(size)
		fill.Price = decimal.NewFromFloat(avgPrice)
	}
	fill.OrderID = resp.OrderID
	return fill, nil
}

// categorize maps a transport-layer error onto the retry taxonomy: server
// faults and rate limiting are retryable, everything the exchange rejected
// outright is not.
func categorize(err error, op string) error {
	var se *client.StatusError
	if errors.As(err, &se) {
		if se.Temporary() {
			return &domain.TransportError{Err: errors.Wrap(err, op)}
		}
		return &domain.RejectedError{Reason: op + ": " + se.Error()}
	}
	return &domain.TransportError{Err: errors.Wrap(err, op)}
}

// fillFromResponse recovers executed quantity and price from the matching
// engine's maker/taker amounts. For a buy the taker receives tokens and
// makes collateral; a sell is the reverse.
func fillFromResponse(resp *types.OrderResponse, side types.Side) Fill {
	making, err1 := decimal.NewFromString(resp.MakingAmount)
	taking, err2 := decimal.NewFromString(resp.TakingAmount)
	if err1 != nil || err2 != nil {
		return Fill{}
	}

	var qty, notional decimal.Decimal
	if side == types.SideBuy {
		qty, notional = taking, making
	} else {
		qty, notional = making, taking
	}
	if qty.IsZero() {
		return Fill{}
	}
	return Fill{Quantity: qty, Price: notional.Div(qty)}
}

// limitPriceFor converts the worst book level into a FAK limit at order
// precision: rounded against the taker so the walked levels stay crossable,
// clamped to the valid (0, 1) band.
func limitPriceFor(side types.Side, worstPrice float64) float64 {
	var p float64
	if side == types.SideBuy {
		p = math.Ceil(worstPrice*100) / 100
	} else {
		p = math.Floor(worstPrice*100) / 100
	}
	if p < 0.01 {
		p = 0.01
	}
	if p > 0.99 {
		p = 0.99
	}
	return p
}

func roundDown(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Floor(v*scale) / scale
}
