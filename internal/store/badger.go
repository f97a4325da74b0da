package store

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/betbot/copytrader/internal/domain"
)

const (
	execPrefix = "exec:"
	snapPrefix = "snap:"

	// Executed trades stay deduplicable for 30 days. Positions older than
	// that have long since closed on both sides.
	execTTL = 30 * 24 * time.Hour
)

// BadgerStore is the durable Store implementation.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens or creates the store at path.
func OpenBadger(path string) (*BadgerStore, error) {
	if path == "" {
		return nil, errors.New("store: path is required")
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func execKey(key domain.ExecutionKey) []byte {
	return []byte(execPrefix + key.String())
}

func snapKey(source string) []byte {
	return []byte(snapPrefix + source)
}

// HasExecution reports whether the keyed action already ran to completion.
// Only a Success record blocks a re-run; a Failed record leaves the key
// free for another attempt.
func (s *BadgerStore) HasExecution(key domain.ExecutionKey) (bool, error) {
	rec, err := s.GetExecution(key)
	if err != nil || rec == nil {
		return false, err
	}
	return rec.Outcome == domain.OutcomeSuccess, nil
}

// GetExecution returns the stored record for key, nil when none exists.
func (s *BadgerStore) GetExecution(key domain.ExecutionKey) (*domain.ExecutionRecord, error) {
	var rec *domain.ExecutionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(execKey(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded domain.ExecutionRecord
			if err := json.Unmarshal(val, &decoded); err != nil {
				return err
			}
			rec = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SaveExecution writes one record with the dedup TTL.
func (s *BadgerStore) SaveExecution(rec domain.ExecutionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(execKey(rec.Key), data).WithTTL(execTTL)
		return txn.SetEntry(e)
	})
}

// ListExecutions returns up to limit records, newest first.
func (s *BadgerStore) ListExecutions(limit int) ([]domain.ExecutionRecord, error) {
	var records []domain.ExecutionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(execPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec domain.ExecutionRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ExecutedAt.After(records[j].ExecutedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// SaveSnapshot persists a source's position baseline.
func (s *BadgerStore) SaveSnapshot(snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapKey(snap.Source), data)
	})
}

// LoadSnapshot returns a source's persisted baseline, nil when none exists.
func (s *BadgerStore) LoadSnapshot(source string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapKey(source))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded domain.Snapshot
			if err := json.Unmarshal(val, &decoded); err != nil {
				return err
			}
			snap = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
