package domain

import (
	"time"
)

// ChangeKind classifies how a position moved between two snapshots.
type ChangeKind string

const (
	ChangeOpened  ChangeKind = "opened"
	ChangeClosed  ChangeKind = "closed"
	ChangeResized ChangeKind = "resized"
)

// ChangeEvent is a significant position change detected for one source.
// Resized events below the significance threshold are never emitted.
type ChangeEvent struct {
	Kind       ChangeKind
	Source     string
	Position   Position // the current position for Opened/Resized, the last known one for Closed
	PrevPos    Position // previous observation, zero value for Opened
	DetectedAt time.Time
}
