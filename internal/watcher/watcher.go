// Package watcher polls source wallets for their open positions and hands
// fresh snapshots to the pipeline. One Poller runs per source; cadence is
// the configured interval, with an optional kick path for event-driven
// re-polls.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/betbot/copytrader/internal/domain"
	"github.com/betbot/copytrader/pkg/logger"
	"github.com/betbot/copytrader/pkg/sigchan"
)

// SnapshotHandler receives every successfully fetched snapshot, in order,
// from the poller goroutine.
type SnapshotHandler func(snap domain.Snapshot)

// ErrorHandler receives fetch failures. The poller keeps running; the next
// tick retries.
type ErrorHandler func(source string, err error)

// Status is a point-in-time view of one poller, for the stats surface.
type Status struct {
	Source        string    `json:"source"`
	LastPollAt    time.Time `json:"lastPollAt"`
	LastError     string    `json:"lastError,omitempty"`
	Polls         uint64    `json:"polls"`
	Failures      uint64    `json:"failures"`
	OpenPositions int       `json:"openPositions"`
}

// Poller polls one source wallet on a fixed interval. Kick forces an
// immediate extra poll; kicks arriving while one is already pending
// coalesce.
type Poller struct {
	source     string
	interval   time.Duration
	fetcher    Fetcher
	kick       *sigchan.Chan
	onSnapshot SnapshotHandler
	onError    ErrorHandler

	mu       sync.Mutex
	lastSnap *domain.Snapshot
	lastErr  error
	lastPoll time.Time
	polls    uint64
	failures uint64
}

// NewPoller builds a poller for one source. Handlers must be non-nil.
func NewPoller(source string, interval time.Duration, fetcher Fetcher, onSnapshot SnapshotHandler, onError ErrorHandler) *Poller {
	return &Poller{
		source:     source,
		interval:   interval,
		fetcher:    fetcher,
		kick:       sigchan.New(1),
		onSnapshot: onSnapshot,
		onError:    onError,
	}
}

// Source returns the wallet this poller watches.
func (p *Poller) Source() string {
	return p.source
}

// Kick requests an immediate poll without waiting for the next tick.
func (p *Poller) Kick() {
	p.kick.Emit()
}

// Run polls until ctx is done. The first poll happens immediately so the
// pipeline has a baseline before the first interval elapses.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.kick.C():
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	snap, err := p.fetcher.FetchPositions(ctx, p.source)

	p.mu.Lock()
	p.lastPoll = time.Now()
	p.polls++
	p.lastErr = err
	if err == nil {
		p.lastSnap = &snap
	} else {
		p.failures++
	}
	p.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.WithField("source", p.source).Warnf("poll failed: %v", err)
		p.onError(p.source, err)
		return
	}
	p.onSnapshot(snap)
}

// LastSnapshot returns the most recent successful snapshot, nil before the
// first success.
func (p *Poller) LastSnapshot() *domain.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSnap
}

// Status reports the poller's counters and last outcome.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		Source:     p.source,
		LastPollAt: p.lastPoll,
		Polls:      p.polls,
		Failures:   p.failures,
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	if p.lastSnap != nil {
		st.OpenPositions = p.lastSnap.Len()
	}
	return st
}
