package client

import (
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/betbot/copytrader/clob/types"
)

// FillFromBook walks the levels a taker order of size shares would cross:
// asks for buys, bids for sells. limitPrice caps the walk (highest
// acceptable ask for buys, lowest acceptable bid for sells); zero means no
// cap. It returns the size available within the cap, the worst price the
// fill reaches and the volume-weighted average. The CLOB serves levels
// outside-in, so they are re-sorted best first before walking.
func FillFromBook(book *types.OrderBookSummary, side types.Side, size, limitPrice float64) (fillSize, worstPrice, avgPrice float64) {
	var levels []types.OrderSummary
	if side == types.SideBuy {
		levels = book.Asks
	} else {
		levels = book.Bids
	}
	if len(levels) == 0 || size <= 0 {
		return 0, 0, 0
	}

	type level struct {
		price float64
		size  float64
	}
	parsed := make([]level, 0, len(levels))
	for _, l := range levels {
		price, err1 := strconv.ParseFloat(l.Price, 64)
		lvlSize, err2 := strconv.ParseFloat(l.Size, 64)
		if err1 != nil || err2 != nil || lvlSize <= 0 {
			continue
		}
		parsed = append(parsed, level{price: price, size: lvlSize})
	}

	sort.Slice(parsed, func(i, j int) bool {
		if side == types.SideBuy {
			return parsed[i].price < parsed[j].price
		}
		return parsed[i].price > parsed[j].price
	})

	remaining := size
	totalCost := 0.0
	for _, l := range parsed {
		if limitPrice > 0 {
			if side == types.SideBuy && l.price > limitPrice {
				break
			}
			if side == types.SideSell && l.price < limitPrice {
				break
			}
		}
		take := l.size
		if take > remaining {
			take = remaining
		}
		fillSize += take
		totalCost += take * l.price
		worstPrice = l.price
		remaining -= take
		if remaining <= 0 {
			break
		}
	}

	if fillSize > 0 {
		avgPrice = totalCost / fillSize
	}
	return fillSize, worstPrice, avgPrice
}

// RoundToTickSize rounds price to the market's tick.
func RoundToTickSize(price float64, tickSize types.TickSize) float64 {
	var tick float64
	switch tickSize {
	case types.TickSize01:
		tick = 0.1
	case types.TickSize001:
		tick = 0.01
	case types.TickSize0001:
		tick = 0.001
	case types.TickSize00001:
		tick = 0.0001
	default:
		tick = 0.01
	}

	return float64(int(price/tick+0.5)) * tick
}

// ValidateMarketablePrecision checks the FOK/FAK decimal limits: price at 2
// places, size at 4. Callers round before submitting, this catches the ones
// that did not.
func ValidateMarketablePrecision(size float64, price float64) error {
	if decimalPlaces(price) > 2 {
		return errors.Errorf("marketable order price must have at most 2 decimals, got %v", price)
	}
	if decimalPlaces(size) > 4 {
		return errors.Errorf("marketable order size must have at most 4 decimals, got %v", size)
	}
	return nil
}
