// Package store persists execution records and position baselines. The
// badger-backed implementation is the source of truth for duplicate
// suppression across restarts; the in-memory one covers runs without a
// durable path, where dedup only has to hold for the process lifetime.
package store

import (
	"github.com/betbot/copytrader/internal/domain"
)

// Store is what the execution engine and the stats surface need from
// persistence.
type Store interface {
	// HasExecution reports whether a blocking record exists for the key.
	HasExecution(key domain.ExecutionKey) (bool, error)
	// GetExecution returns the stored record for the key, nil when none
	// exists.
	GetExecution(key domain.ExecutionKey) (*domain.ExecutionRecord, error)
	// SaveExecution writes one record, overwriting any previous one for
	// the same key.
	SaveExecution(rec domain.ExecutionRecord) error
	// ListExecutions returns up to limit records, newest first.
	ListExecutions(limit int) ([]domain.ExecutionRecord, error)
	// SaveSnapshot persists a source's position baseline.
	SaveSnapshot(snap domain.Snapshot) error
	// LoadSnapshot returns a source's persisted baseline, nil when none
	// exists.
	LoadSnapshot(source string) (*domain.Snapshot, error)
	// Close releases the underlying resources.
	Close() error
}
