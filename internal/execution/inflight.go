package execution

import (
	"hash/fnv"
	"sync"
)

// positionState tracks one copied position between its open and its close.
type positionState uint8

const (
	stateReserved positionState = iota // open dispatched, outcome pending
	stateHeld                          // open succeeded, no close yet
)

// InFlightSet is the process-local memory of which source positions the bot
// has opened or is opening right now. It is the authoritative same-process
// dedup: the durable store may be degraded, this set may not.
//
// Check-and-insert is a single atomic operation per key, so two concurrent
// Opened events for the same position cannot both pass Reserve. Sharded
// maps keep contention off the hot poll/execute paths.
type InFlightSet struct {
	shards []inFlightShard
}

type inFlightShard struct {
	mu sync.Mutex
	m  map[string]positionState
}

// NewInFlightSet creates the set. shardCount <= 0 picks a default.
func NewInFlightSet(shardCount int) *InFlightSet {
	if shardCount <= 0 {
		shardCount = 16
	}
	shards := make([]inFlightShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]positionState)
	}
	return &InFlightSet{shards: shards}
}

func inFlightKey(source, positionID string) string {
	return source + "|" + positionID
}

// Reserve claims (source, positionID) for an open about to execute. It
// returns false when the position is already reserved or held, in which
// case the caller must not execute.
func (s *InFlightSet) Reserve(source, positionID string) bool {
	key := inFlightKey(source, positionID)
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.m[key]; ok {
		return false
	}
	sh.m[key] = stateReserved
	return true
}

// Confirm upgrades a reservation to held after the open succeeded.
func (s *InFlightSet) Confirm(source, positionID string) {
	key := inFlightKey(source, positionID)
	sh := s.shard(key)
	sh.mu.Lock()
	sh.m[key] = stateHeld
	sh.mu.Unlock()
}

// Release drops a reservation whose open failed, freeing the key for a
// later attempt. A held entry is left untouched.
func (s *InFlightSet) Release(source, positionID string) {
	key := inFlightKey(source, positionID)
	sh := s.shard(key)
	sh.mu.Lock()
	if st, ok := sh.m[key]; ok && st == stateReserved {
		delete(sh.m, key)
	}
	sh.mu.Unlock()
}

// Held reports whether the position was opened by this process and not yet
// closed. Close actions are gated on this.
func (s *InFlightSet) Held(source, positionID string) bool {
	key := inFlightKey(source, positionID)
	sh := s.shard(key)
	sh.mu.Lock()
	st, ok := sh.m[key]
	sh.mu.Unlock()
	return ok && st == stateHeld
}

// Remove deletes a held entry after its close succeeded. It reports whether
// the entry was held.
func (s *InFlightSet) Remove(source, positionID string) bool {
	key := inFlightKey(source, positionID)
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.m[key]
	if !ok || st != stateHeld {
		return false
	}
	delete(sh.m, key)
	return true
}

// Len counts held positions across all shards. Reservations in progress do
// not count until confirmed.
func (s *InFlightSet) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for _, st := range sh.m {
			if st == stateHeld {
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

func (s *InFlightSet) shard(key string) *inFlightShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	idx := h.Sum32() % uint32(len(s.shards))
	return &s.shards[idx]
}
