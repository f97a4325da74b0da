package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one open holding of a source at a point in time. It is an
// immutable snapshot value: a fresh observation produces a new Position
// rather than mutating the old one.
type Position struct {
	ID           string          // token id, unique per source+market+outcome
	Market       string          // condition id
	Title        string          // market question, informational
	Outcome      string          // outcome label, e.g. "Yes"
	Quantity     decimal.Decimal // tokens held, non-negative
	Price        decimal.Decimal // unit price at observation
	Value        decimal.Decimal // position value, see normalizer fallbacks
	InitialValue decimal.Decimal // provider-reported cost basis, zero if absent
	NegRisk      bool            // market settles through the neg risk exchange
	ObservedAt   time.Time
}

// Notional returns Quantity * Price.
func (p Position) Notional() decimal.Decimal {
	return p.Quantity.Mul(p.Price)
}

// Snapshot is the full set of one source's open positions at capture time.
// Exactly one Snapshot is current per source; the previous one is retained
// only transiently for diffing.
type Snapshot struct {
	Source     string
	Positions  map[string]Position // keyed by Position.ID
	TotalValue decimal.Decimal
	CapturedAt time.Time
}

// NewSnapshot builds a Snapshot from normalized positions, indexing them by
// id and summing their values.
func NewSnapshot(source string, positions []Position, capturedAt time.Time) Snapshot {
	byID := make(map[string]Position, len(positions))
	total := decimal.Zero
	for _, p := range positions {
		byID[p.ID] = p
		total = total.Add(p.Value)
	}
	return Snapshot{
		Source:     source,
		Positions:  byID,
		TotalValue: total,
		CapturedAt: capturedAt,
	}
}

// Len returns the number of open positions in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Positions)
}

// Get returns the position with the given id, if present.
func (s Snapshot) Get(id string) (Position, bool) {
	p, ok := s.Positions[id]
	return p, ok
}
