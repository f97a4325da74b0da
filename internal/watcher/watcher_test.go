package watcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/copytrader/internal/domain"
)

func decOne() decimal.Decimal { return decimal.NewFromInt(1) }

type fetchFunc func(ctx context.Context, source string) (domain.Snapshot, error)

func (f fetchFunc) FetchPositions(ctx context.Context, source string) (domain.Snapshot, error) {
	return f(ctx, source)
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestPollerFirstPollIsImmediate(t *testing.T) {
	snaps := make(chan domain.Snapshot, 1)
	fetcher := fetchFunc(func(ctx context.Context, source string) (domain.Snapshot, error) {
		return domain.NewSnapshot(source, nil, time.Now()), nil
	})

	p := NewPoller("0xabc", time.Hour, fetcher,
		func(s domain.Snapshot) { snaps <- s },
		func(string, error) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	snap := waitFor(t, snaps, "first snapshot")
	if snap.Source != "0xabc" {
		t.Errorf("snapshot source = %q, want %q", snap.Source, "0xabc")
	}
}

func TestPollerKickTriggersExtraPoll(t *testing.T) {
	var calls atomic.Int64
	snaps := make(chan domain.Snapshot, 4)
	fetcher := fetchFunc(func(ctx context.Context, source string) (domain.Snapshot, error) {
		calls.Add(1)
		return domain.NewSnapshot(source, nil, time.Now()), nil
	})

	p := NewPoller("0xabc", time.Hour, fetcher,
		func(s domain.Snapshot) { snaps <- s },
		func(string, error) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	waitFor(t, snaps, "baseline snapshot")
	p.Kick()
	waitFor(t, snaps, "kicked snapshot")

	if got := calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestPollerSurvivesFetchErrors(t *testing.T) {
	var calls atomic.Int64
	snaps := make(chan domain.Snapshot, 1)
	failures := make(chan error, 1)
	fetcher := fetchFunc(func(ctx context.Context, source string) (domain.Snapshot, error) {
		if calls.Add(1) == 1 {
			return domain.Snapshot{}, &domain.FetchError{Source: source, Err: errors.New("boom")}
		}
		return domain.NewSnapshot(source, nil, time.Now()), nil
	})

	p := NewPoller("0xabc", time.Hour, fetcher,
		func(s domain.Snapshot) { snaps <- s },
		func(_ string, err error) { failures <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	err := waitFor(t, failures, "fetch error")
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %T, want *domain.FetchError", err)
	}

	p.Kick()
	waitFor(t, snaps, "snapshot after recovery")

	st := p.Status()
	if st.Polls != 2 {
		t.Errorf("Status.Polls = %d, want 2", st.Polls)
	}
	if st.Failures != 1 {
		t.Errorf("Status.Failures = %d, want 1", st.Failures)
	}
	if st.LastError != "" {
		t.Errorf("Status.LastError = %q, want empty after recovery", st.LastError)
	}
}

func TestPollerStatusReflectsSnapshot(t *testing.T) {
	snaps := make(chan domain.Snapshot, 1)
	fetcher := fetchFunc(func(ctx context.Context, source string) (domain.Snapshot, error) {
		positions := []domain.Position{
			{ID: "tok-1", Quantity: decOne(), Price: decOne(), Value: decOne()},
			{ID: "tok-2", Quantity: decOne(), Price: decOne(), Value: decOne()},
		}
		return domain.NewSnapshot(source, positions, time.Now()), nil
	})

	p := NewPoller("0xabc", time.Hour, fetcher,
		func(s domain.Snapshot) { snaps <- s },
		func(string, error) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	waitFor(t, snaps, "snapshot")

	st := p.Status()
	if st.OpenPositions != 2 {
		t.Errorf("Status.OpenPositions = %d, want 2", st.OpenPositions)
	}
	if last := p.LastSnapshot(); last == nil || last.Len() != 2 {
		t.Errorf("LastSnapshot = %v, want 2 positions", last)
	}
}
