package client

import (
	"math"
	"testing"

	"github.com/betbot/copytrader/clob/types"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFillFromBookBuyWalksAsksBestFirst(t *testing.T) {
	// Levels outside-in, the way the CLOB serves them.
	book := &types.OrderBookSummary{
		Asks: []types.OrderSummary{
			{Price: "0.60", Size: "100"},
			{Price: "0.55", Size: "50"},
			{Price: "0.52", Size: "30"},
		},
	}

	fill, worst, avg := FillFromBook(book, types.SideBuy, 40, 0)
	if !approx(fill, 40) {
		t.Fatalf("fill = %v, want 40", fill)
	}
	if !approx(worst, 0.55) {
		t.Fatalf("worst = %v, want 0.55", worst)
	}
	want := (30*0.52 + 10*0.55) / 40
	if !approx(avg, want) {
		t.Fatalf("avg = %v, want %v", avg, want)
	}
}

func TestFillFromBookBuyStopsAtLimit(t *testing.T) {
	book := &types.OrderBookSummary{
		Asks: []types.OrderSummary{
			{Price: "0.60", Size: "100"},
			{Price: "0.55", Size: "50"},
			{Price: "0.52", Size: "30"},
		},
	}

	// Only the 0.52 and 0.55 levels are inside the cap.
	fill, worst, _ := FillFromBook(book, types.SideBuy, 200, 0.55)
	if !approx(fill, 80) {
		t.Fatalf("fill = %v, want 80", fill)
	}
	if !approx(worst, 0.55) {
		t.Fatalf("worst = %v, want 0.55", worst)
	}
}

func TestFillFromBookSellPartialFill(t *testing.T) {
	book := &types.OrderBookSummary{
		Bids: []types.OrderSummary{
			{Price: "0.40", Size: "5"},
			{Price: "0.45", Size: "10"},
		},
	}

	fill, worst, _ := FillFromBook(book, types.SideSell, 30, 0)
	if !approx(fill, 15) {
		t.Fatalf("fill = %v, want 15", fill)
	}
	if !approx(worst, 0.40) {
		t.Fatalf("worst = %v, want 0.40", worst)
	}
}

func TestFillFromBookSellFloor(t *testing.T) {
	book := &types.OrderBookSummary{
		Bids: []types.OrderSummary{
			{Price: "0.40", Size: "5"},
			{Price: "0.45", Size: "10"},
		},
	}

	// The 0.40 level sits below the floor and must not be crossed.
	fill, worst, _ := FillFromBook(book, types.SideSell, 30, 0.45)
	if !approx(fill, 10) {
		t.Fatalf("fill = %v, want 10", fill)
	}
	if !approx(worst, 0.45) {
		t.Fatalf("worst = %v, want 0.45", worst)
	}
}

func TestFillFromBookEmpty(t *testing.T) {
	fill, worst, avg := FillFromBook(&types.OrderBookSummary{}, types.SideBuy, 10, 0)
	if fill != 0 || worst != 0 || avg != 0 {
		t.Fatalf("empty book should fill nothing, got %v %v %v", fill, worst, avg)
	}
}

func TestClampMarketableLiftsDustBuy(t *testing.T) {
	order := clampMarketable(&types.UserOrder{
		TokenID: "123",
		Side:    types.SideBuy,
		Size:    0.5,
		Price:   0.40,
	})

	// 0.5 shares at $0.40 is $0.20, below the $1 exchange minimum.
	if !approx(order.Size, 2.5) {
		t.Fatalf("size = %v, want 2.5", order.Size)
	}
	if !approx(order.Price, 0.40) {
		t.Fatalf("price = %v, want 0.40", order.Price)
	}
}

func TestClampMarketableMinTokenSize(t *testing.T) {
	order := clampMarketable(&types.UserOrder{
		TokenID: "123",
		Side:    types.SideSell,
		Size:    0.03,
		Price:   0.50,
	})

	if !approx(order.Size, 0.1) {
		t.Fatalf("size = %v, want 0.1", order.Size)
	}
}

func TestClampMarketableRoundsPrecision(t *testing.T) {
	order := clampMarketable(&types.UserOrder{
		TokenID: "123",
		Side:    types.SideSell,
		Size:    1.23456789,
		Price:   0.123456,
	})

	if !approx(order.Price, 0.12) {
		t.Fatalf("price = %v, want 0.12", order.Price)
	}
	if !approx(order.Size, 1.2346) {
		t.Fatalf("size = %v, want 1.2346", order.Size)
	}
}

func TestValidateMarketablePrecision(t *testing.T) {
	if err := ValidateMarketablePrecision(1.2345, 0.55); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := ValidateMarketablePrecision(1.23456, 0.55); err == nil {
		t.Fatal("expected size precision error")
	}
	if err := ValidateMarketablePrecision(1.0, 0.555); err == nil {
		t.Fatal("expected price precision error")
	}
}
