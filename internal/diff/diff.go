// Package diff compares successive position snapshots for one source and
// reports significant changes. It is purely functional: no I/O, no shared
// state, safe to call from any goroutine.
package diff

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/copytrader/internal/domain"
)

// resizeFloor is the absolute minimum quantity move that counts as a resize.
var resizeFloor = decimal.NewFromInt(1)

// resizeRatio is the relative threshold applied above the floor.
var resizeRatio = decimal.RequireFromString("0.01")

// Detect returns the significant changes between the previously accepted
// snapshot and the current one. A nil prev means first observation: every
// current position is reported as Opened so downstream state can bootstrap.
//
// Events are ordered by position id so repeated runs over the same inputs
// produce identical output.
func Detect(prev *domain.Snapshot, curr domain.Snapshot, now time.Time) []domain.ChangeEvent {
	if prev == nil {
		events := make([]domain.ChangeEvent, 0, len(curr.Positions))
		for _, pos := range curr.Positions {
			events = append(events, domain.ChangeEvent{
				Kind:       domain.ChangeOpened,
				Source:     curr.Source,
				Position:   pos,
				DetectedAt: now,
			})
		}
		sortEvents(events)
		return events
	}

	var events []domain.ChangeEvent
	for id, pos := range curr.Positions {
		old, ok := prev.Positions[id]
		if !ok {
			events = append(events, domain.ChangeEvent{
				Kind:       domain.ChangeOpened,
				Source:     curr.Source,
				Position:   pos,
				DetectedAt: now,
			})
			continue
		}
		if significantResize(old.Quantity, pos.Quantity) {
			events = append(events, domain.ChangeEvent{
				Kind:       domain.ChangeResized,
				Source:     curr.Source,
				Position:   pos,
				PrevPos:    old,
				DetectedAt: now,
			})
		}
	}
	for id, old := range prev.Positions {
		if _, ok := curr.Positions[id]; !ok {
			events = append(events, domain.ChangeEvent{
				Kind:       domain.ChangeClosed,
				Source:     curr.Source,
				Position:   old,
				PrevPos:    old,
				DetectedAt: now,
			})
		}
	}
	sortEvents(events)
	return events
}

// significantResize reports whether the move from oldQty to newQty exceeds
// max(1, oldQty*0.01). Sub-threshold drift is ignored so price-only ticks
// and dust adjustments do not flood the pipeline with orders.
func significantResize(oldQty, newQty decimal.Decimal) bool {
	delta := newQty.Sub(oldQty).Abs()
	threshold := oldQty.Mul(resizeRatio)
	if threshold.LessThan(resizeFloor) {
		threshold = resizeFloor
	}
	return delta.GreaterThan(threshold)
}

func sortEvents(events []domain.ChangeEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Position.ID != events[j].Position.ID {
			return events[i].Position.ID < events[j].Position.ID
		}
		return events[i].Kind < events[j].Kind
	})
}
