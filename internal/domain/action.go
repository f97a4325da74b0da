package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionSide is the direction of a candidate action.
type ActionSide string

const (
	SideOpen  ActionSide = "open"
	SideClose ActionSide = "close"
)

// CandidateAction is a proposed, not-yet-executed trade derived from a
// change event. Quantity is already scaled by the position size multiplier.
type CandidateAction struct {
	Side     ActionSide
	Source   string
	Position Position
	Quantity decimal.Decimal // scaled quantity to trade
	Price    decimal.Decimal // reference price from the source snapshot
}

// Notional returns Quantity * Price for the scaled action.
func (a CandidateAction) Notional() decimal.Decimal {
	return a.Quantity.Mul(a.Price)
}

// Key returns the deduplication key for this action.
func (a CandidateAction) Key() ExecutionKey {
	return ExecutionKey{PositionID: a.Position.ID, Source: a.Source, Side: a.Side}
}

// ExecutionKey uniquely identifies one logical execution: the same source
// opening (or closing) the same position twice maps to the same key.
type ExecutionKey struct {
	PositionID string
	Source     string
	Side       ActionSide
}

// String renders the key in its store/wire form.
func (k ExecutionKey) String() string {
	return k.PositionID + "|" + k.Source + "|" + string(k.Side)
}

// ExecutionOutcome is the terminal state of one execution attempt chain.
type ExecutionOutcome string

const (
	OutcomeSuccess   ExecutionOutcome = "success"
	OutcomeFailed    ExecutionOutcome = "failed"
	OutcomeDuplicate ExecutionOutcome = "skipped_duplicate"
)

// ExecutionRecord is the durable result of executing one candidate action.
type ExecutionRecord struct {
	Key        ExecutionKey
	Outcome    ExecutionOutcome
	OrderID    string          // boundary order id (synthetic for dry runs), empty unless Success
	Quantity   decimal.Decimal // executed quantity, zero unless Success
	Price      decimal.Decimal // executed price, zero unless Success
	Retries    int             // submissions beyond the first
	Error      string          // failure detail, empty unless Failed
	DryRun     bool
	ExecutedAt time.Time
}

// Succeeded reports whether the record is a Success outcome.
func (r ExecutionRecord) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}
