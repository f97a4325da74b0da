package diff

import (
	"testing"
	"testing/quick"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/copytrader/internal/domain"
)

func pos(id string, qty string) domain.Position {
	return domain.Position{
		ID:       id,
		Market:   "cond-" + id,
		Outcome:  "Yes",
		Quantity: decimal.RequireFromString(qty),
		Price:    decimal.RequireFromString("0.50"),
		Value:    decimal.RequireFromString(qty).Mul(decimal.RequireFromString("0.50")),
	}
}

func snap(source string, positions ...domain.Position) domain.Snapshot {
	return domain.NewSnapshot(source, positions, time.Now())
}

func TestDetectFirstObservation(t *testing.T) {
	// Three positions on first poll with no prior snapshot: all Opened,
	// nothing Closed or Resized.
	curr := snap("0xabc", pos("t1", "100"), pos("t2", "250"), pos("t3", "7"))

	events := Detect(nil, curr, time.Now())

	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	for _, ev := range events {
		if ev.Kind != domain.ChangeOpened {
			t.Errorf("kind for %s = %s, want %s", ev.Position.ID, ev.Kind, domain.ChangeOpened)
		}
		if ev.Source != "0xabc" {
			t.Errorf("source = %q, want %q", ev.Source, "0xabc")
		}
	}
}

func TestDetectOpenedAndClosed(t *testing.T) {
	prev := snap("0xabc", pos("keep", "100"), pos("gone", "40"))
	curr := snap("0xabc", pos("keep", "100"), pos("new", "12"))

	events := Detect(&prev, curr, time.Now())

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	byID := map[string]domain.ChangeEvent{}
	for _, ev := range events {
		byID[ev.Position.ID] = ev
	}
	if ev, ok := byID["new"]; !ok || ev.Kind != domain.ChangeOpened {
		t.Errorf("new position: got %+v, want Opened event", ev)
	}
	if ev, ok := byID["gone"]; !ok || ev.Kind != domain.ChangeClosed {
		t.Errorf("gone position: got %+v, want Closed event", ev)
	}
}

func TestDetectResizeThreshold(t *testing.T) {
	tests := []struct {
		name    string
		oldQty  string
		newQty  string
		resized bool
	}{
		{"exactly one percent is not significant", "1000", "1010", false},
		{"just above one percent is significant", "1000", "1010.0001", true},
		{"one percent below", "1000", "990", false},
		{"decrease just beyond one percent", "1000", "989.9999", true},
		{"small position uses the one unit floor", "50", "50.9", false},
		{"small position crossing the floor", "50", "51.5", true},
		{"floor applies on exact one unit", "50", "51", false},
		{"large relative move", "200", "400", true},
		{"unchanged", "333", "333", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := snap("0xabc", pos("tok", tt.oldQty))
			curr := snap("0xabc", pos("tok", tt.newQty))

			events := Detect(&prev, curr, time.Now())

			if tt.resized && len(events) != 1 {
				t.Fatalf("events = %d, want 1 Resized", len(events))
			}
			if !tt.resized && len(events) != 0 {
				t.Fatalf("events = %d, want none", len(events))
			}
			if tt.resized && events[0].Kind != domain.ChangeResized {
				t.Errorf("kind = %s, want %s", events[0].Kind, domain.ChangeResized)
			}
		})
	}
}

func TestSignificantResizeBoundary(t *testing.T) {
	// For any holding size, a move of exactly max(1, old*0.01) is not
	// significant and any strictly larger move is.
	boundary := func(cents uint32, stepCents uint16) bool {
		old := decimal.New(int64(cents%10_000_000)+1, -2) // 0.01 through 100000.00
		threshold := old.Mul(resizeRatio)
		if threshold.LessThan(resizeFloor) {
			threshold = resizeFloor
		}
		step := decimal.New(int64(stepCents)+1, -2) // at least one cent

		grown := old.Add(threshold)
		return !significantResize(old, grown) && significantResize(old, grown.Add(step))
	}
	if err := quick.Check(boundary, nil); err != nil {
		t.Error(err)
	}
}

func TestDetectAggregateDriftAlone(t *testing.T) {
	// Same positions, different prices: aggregate value moves but no
	// per-position quantity change, so nothing is emitted.
	p1 := pos("tok", "100")
	p2 := pos("tok", "100")
	p2.Price = decimal.RequireFromString("0.90")
	p2.Value = p2.Quantity.Mul(p2.Price)

	prev := snap("0xabc", p1)
	curr := snap("0xabc", p2)

	if events := Detect(&prev, curr, time.Now()); len(events) != 0 {
		t.Errorf("events = %d, want 0", len(events))
	}
}

func TestDetectResizedCarriesBothObservations(t *testing.T) {
	prev := snap("0xabc", pos("tok", "100"))
	curr := snap("0xabc", pos("tok", "150"))

	events := Detect(&prev, curr, time.Now())

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if !ev.Position.Quantity.Equal(decimal.RequireFromString("150")) {
		t.Errorf("current qty = %s, want 150", ev.Position.Quantity)
	}
	if !ev.PrevPos.Quantity.Equal(decimal.RequireFromString("100")) {
		t.Errorf("previous qty = %s, want 100", ev.PrevPos.Quantity)
	}
}

func TestDetectDeterministicOrder(t *testing.T) {
	curr := snap("0xabc", pos("c", "1"), pos("a", "1"), pos("b", "1"))

	first := Detect(nil, curr, time.Now())
	for i := 0; i < 10; i++ {
		again := Detect(nil, curr, time.Now())
		for j := range first {
			if first[j].Position.ID != again[j].Position.ID {
				t.Fatalf("run %d: order differs at %d: %s vs %s",
					i, j, first[j].Position.ID, again[j].Position.ID)
			}
		}
	}
	if first[0].Position.ID != "a" || first[1].Position.ID != "b" || first[2].Position.ID != "c" {
		t.Errorf("order = [%s %s %s], want [a b c]",
			first[0].Position.ID, first[1].Position.ID, first[2].Position.ID)
	}
}
