// Package planner turns detected position changes into scaled, risk-checked
// candidate actions.
package planner

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/copytrader/internal/domain"
)

// Limits are the risk knobs applied to open actions. Notional amounts are
// denominated in the collateral currency (USDC).
type Limits struct {
	Multiplier      decimal.Decimal // scales the source quantity, > 0
	MinTradeSize    decimal.Decimal // reject opens with notional below this
	MaxTradeSize    decimal.Decimal // reject opens with notional above this
	MaxPositionSize decimal.Decimal // reject opens whose scaled source value exceeds this
}

// Planner maps change events to candidate actions and validates opens
// against the configured limits. Closes are never validated: a close always
// reduces risk and must not be blocked by sizing ceilings.
type Planner struct {
	limits Limits
}

func New(limits Limits) *Planner {
	return &Planner{limits: limits}
}

// Plan converts one change event into a candidate action.
//
// Opened maps to an Open action, Closed to a Close action. Resized events
// return (nil, nil): they are detected and counted upstream but not traded.
// A non-nil error is always a *domain.ValidationError and means the action
// was rejected before reaching the execution engine.
func (p *Planner) Plan(ev domain.ChangeEvent) (*domain.CandidateAction, error) {
	switch ev.Kind {
	case domain.ChangeOpened:
		action := p.scale(ev, domain.SideOpen)
		if err := p.validateOpen(action, ev.Position); err != nil {
			return nil, err
		}
		return action, nil
	case domain.ChangeClosed:
		return p.scale(ev, domain.SideClose), nil
	default:
		return nil, nil
	}
}

func (p *Planner) scale(ev domain.ChangeEvent, side domain.ActionSide) *domain.CandidateAction {
	return &domain.CandidateAction{
		Side:     side,
		Source:   ev.Source,
		Position: ev.Position,
		Quantity: ev.Position.Quantity.Mul(p.limits.Multiplier),
		Price:    ev.Position.Price,
	}
}

// validateOpen applies the limits in order, short-circuiting on the first
// failure.
func (p *Planner) validateOpen(action *domain.CandidateAction, src domain.Position) error {
	notional := action.Notional()
	if notional.LessThan(p.limits.MinTradeSize) {
		return &domain.ValidationError{
			Reason: domain.ReasonBelowMinimum,
			Detail: fmt.Sprintf("notional %s < min %s", notional, p.limits.MinTradeSize),
		}
	}
	if notional.GreaterThan(p.limits.MaxTradeSize) {
		return &domain.ValidationError{
			Reason: domain.ReasonAboveMaximum,
			Detail: fmt.Sprintf("notional %s > max %s", notional, p.limits.MaxTradeSize),
		}
	}
	scaledValue := src.Value.Mul(p.limits.Multiplier)
	if scaledValue.GreaterThan(p.limits.MaxPositionSize) {
		return &domain.ValidationError{
			Reason: domain.ReasonPositionLimitExceeded,
			Detail: fmt.Sprintf("scaled position value %s > limit %s", scaledValue, p.limits.MaxPositionSize),
		}
	}
	return nil
}
