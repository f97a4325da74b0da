package watcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/copytrader/pkg/sdk/dataapi"
)

func num(s string) dataapi.Num {
	return dataapi.Num{Decimal: decimal.RequireFromString(s)}
}

func TestNormalizeValueFallback(t *testing.T) {
	tests := []struct {
		name string
		row  dataapi.Position
		want string
	}{
		{
			name: "current value wins",
			row:  dataapi.Position{Asset: "tok", Size: num("100"), CurPrice: num("0.5"), CurrentValue: num("55"), InitialValue: num("40")},
			want: "55",
		},
		{
			name: "price times quantity when current value missing",
			row:  dataapi.Position{Asset: "tok", Size: num("100"), CurPrice: num("0.5"), InitialValue: num("40")},
			want: "50",
		},
		{
			name: "initial value as last resort",
			row:  dataapi.Position{Asset: "tok", Size: num("100"), InitialValue: num("40")},
			want: "40",
		},
	}

	now := time.Now()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := normalize(tt.row, now)
			if !ok {
				t.Fatal("normalize dropped a valid row")
			}
			if !p.Value.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Value = %s, want %s", p.Value, tt.want)
			}
		})
	}
}

func TestNormalizePriceFallsBackToAvgPrice(t *testing.T) {
	row := dataapi.Position{Asset: "tok", Size: num("10"), AvgPrice: num("0.42")}
	p, ok := normalize(row, time.Now())
	if !ok {
		t.Fatal("normalize dropped a valid row")
	}
	if !p.Price.Equal(decimal.RequireFromString("0.42")) {
		t.Errorf("Price = %s, want 0.42", p.Price)
	}
}

func TestNormalizeDropsEmptyRows(t *testing.T) {
	tests := []struct {
		name string
		row  dataapi.Position
	}{
		{"no asset id", dataapi.Position{Size: num("10")}},
		{"zero size", dataapi.Position{Asset: "tok"}},
		{"negative size", dataapi.Position{Asset: "tok", Size: num("-5")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := normalize(tt.row, time.Now()); ok {
				t.Error("normalize kept a row it should drop")
			}
		})
	}
}
