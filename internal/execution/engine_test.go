package execution

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/copytrader/internal/domain"
	"github.com/betbot/copytrader/internal/store"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func openAction(id string) domain.CandidateAction {
	return domain.CandidateAction{
		Side:   domain.SideOpen,
		Source: "0xsource",
		Position: domain.Position{
			ID:       id,
			Market:   "market-" + id,
			Outcome:  "Yes",
			Quantity: dec("100"),
			Price:    dec("0.50"),
		},
		Quantity: dec("5"),
		Price:    dec("0.50"),
	}
}

// stubSubmitter fails its first failFirst calls with failErr, then returns
// fill.
type stubSubmitter struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	failErr   error
	fill      Fill
}

func (s *stubSubmitter) Submit(ctx context.Context, action domain.CandidateAction) (Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return Fill{}, s.failErr
	}
	return s.fill, nil
}

func (s *stubSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func transientErr(msg string) error {
	return &domain.TransportError{Err: errors.New(msg)}
}

func TestExecuteDryRunSynthesizesSuccess(t *testing.T) {
	sub := &stubSubmitter{}
	eng := NewEngine(store.NewMemoryStore(), nil, sub, Options{DryRun: true})

	action := openAction("tok1")
	rec := eng.Execute(context.Background(), action)

	if rec.Outcome != domain.OutcomeSuccess {
		t.Fatalf("outcome = %s, want success", rec.Outcome)
	}
	if !rec.DryRun {
		t.Fatal("record should be flagged dry-run")
	}
	if !rec.Quantity.Equal(action.Quantity) || !rec.Price.Equal(action.Price) {
		t.Fatalf("synthesized fill = %s @ %s, want %s @ %s", rec.Quantity, rec.Price, action.Quantity, action.Price)
	}
	if sub.callCount() != 0 {
		t.Fatalf("dry-run must not touch the boundary, got %d calls", sub.callCount())
	}
}

func TestExecuteDryRunWithoutStoreHasNoMemory(t *testing.T) {
	sub := &stubSubmitter{}
	eng := NewEngine(nil, nil, sub, Options{DryRun: true})

	action := openAction("tok9")
	first := eng.Execute(context.Background(), action)
	second := eng.Execute(context.Background(), action)

	if first.Outcome != domain.OutcomeSuccess || second.Outcome != domain.OutcomeSuccess {
		t.Fatalf("outcomes = %s, %s, want success twice without a store", first.Outcome, second.Outcome)
	}
	if !second.Quantity.Equal(first.Quantity) || !second.Price.Equal(first.Price) {
		t.Fatalf("second fill %s @ %s differs from first %s @ %s",
			second.Quantity, second.Price, first.Quantity, first.Price)
	}
	if first.OrderID == second.OrderID {
		t.Fatal("synthetic order ids must be distinct per run")
	}
	if sub.callCount() != 0 {
		t.Fatalf("dry-run must not touch the boundary, got %d calls", sub.callCount())
	}
}

func TestExecuteSkipsDuplicate(t *testing.T) {
	st := store.NewMemoryStore()
	action := openAction("tok2")
	prior := domain.ExecutionRecord{
		Key:        action.Key(),
		Outcome:    domain.OutcomeSuccess,
		Quantity:   dec("5"),
		Price:      dec("0.50"),
		ExecutedAt: time.Now(),
	}
	if err := st.SaveExecution(prior); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	sub := &stubSubmitter{}
	eng := NewEngine(st, nil, sub, Options{})

	rec := eng.Execute(context.Background(), action)
	if rec.Outcome != domain.OutcomeDuplicate {
		t.Fatalf("outcome = %s, want skipped_duplicate", rec.Outcome)
	}
	if sub.callCount() != 0 {
		t.Fatalf("duplicate must not touch the boundary, got %d calls", sub.callCount())
	}
}

func TestExecuteDuplicateKeepsBlockingRecord(t *testing.T) {
	st := store.NewMemoryStore()
	action := openAction("tok2b")
	prior := domain.ExecutionRecord{
		Key:        action.Key(),
		Outcome:    domain.OutcomeSuccess,
		OrderID:    "ord-7",
		Quantity:   dec("5"),
		Price:      dec("0.50"),
		ExecutedAt: time.Now(),
	}
	if err := st.SaveExecution(prior); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	eng := NewEngine(st, nil, &stubSubmitter{}, Options{})
	if rec := eng.Execute(context.Background(), action); rec.Outcome != domain.OutcomeDuplicate {
		t.Fatalf("outcome = %s, want skipped_duplicate", rec.Outcome)
	}

	// The original fill amounts must survive the skip; close sizing reads
	// them later.
	stored, err := st.GetExecution(action.Key())
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if stored == nil || stored.Outcome != domain.OutcomeSuccess {
		t.Fatalf("stored record = %+v, want the original success", stored)
	}
	if !stored.Quantity.Equal(dec("5")) || stored.OrderID != "ord-7" {
		t.Errorf("stored fill = %s order %q, want 5 and ord-7", stored.Quantity, stored.OrderID)
	}
}

func TestExecuteRetryBound(t *testing.T) {
	sub := &stubSubmitter{failFirst: 1 << 30, failErr: transientErr("boom")}
	eng := NewEngine(store.NewMemoryStore(), nil, sub, Options{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})

	rec := eng.Execute(context.Background(), openAction("tok3"))

	if rec.Outcome != domain.OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", rec.Outcome)
	}
	if got := sub.callCount(); got != 4 {
		t.Fatalf("submissions = %d, want exactly maxRetries+1 = 4", got)
	}
	if rec.Retries != 3 {
		t.Fatalf("retries = %d, want 3", rec.Retries)
	}
}

func TestExecuteNonRetryableFailsImmediately(t *testing.T) {
	sub := &stubSubmitter{failFirst: 1 << 30, failErr: &domain.RejectedError{Reason: "not enough balance / allowance"}}
	eng := NewEngine(store.NewMemoryStore(), nil, sub, Options{
		MaxRetries: 5,
		RetryDelay: time.Millisecond,
	})

	rec := eng.Execute(context.Background(), openAction("tok4"))

	if rec.Outcome != domain.OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", rec.Outcome)
	}
	if got := sub.callCount(); got != 1 {
		t.Fatalf("submissions = %d, rejection must not be retried", got)
	}
	if !strings.Contains(rec.Error, "not enough balance") {
		t.Fatalf("error detail lost: %q", rec.Error)
	}
}

func TestExecuteSucceedsAfterTransientFailures(t *testing.T) {
	sub := &stubSubmitter{
		failFirst: 2,
		failErr:   transientErr("flaky"),
		fill:      Fill{OrderID: "ord-1", Quantity: dec("5"), Price: dec("0.52")},
	}
	eng := NewEngine(store.NewMemoryStore(), nil, sub, Options{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})

	rec := eng.Execute(context.Background(), openAction("tok5"))

	if rec.Outcome != domain.OutcomeSuccess {
		t.Fatalf("outcome = %s, want success (error %s)", rec.Outcome, rec.Error)
	}
	if rec.Retries != 2 {
		t.Fatalf("retries = %d, want 2", rec.Retries)
	}
	if rec.OrderID != "ord-1" {
		t.Fatalf("order id = %q, want ord-1", rec.OrderID)
	}
	if sub.callCount() != 3 {
		t.Fatalf("submissions = %d, want 3", sub.callCount())
	}
}

func TestExecuteObservesCancellationDuringRetryWait(t *testing.T) {
	sub := &stubSubmitter{failFirst: 1 << 30, failErr: transientErr("down")}
	eng := NewEngine(store.NewMemoryStore(), nil, sub, Options{
		MaxRetries: 10,
		RetryDelay: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan domain.ExecutionRecord, 1)
	go func() { done <- eng.Execute(ctx, openAction("tok6")) }()

	select {
	case rec := <-done:
		if rec.Outcome != domain.OutcomeFailed {
			t.Fatalf("outcome = %s, want failed", rec.Outcome)
		}
		if sub.callCount() != 1 {
			t.Fatalf("submissions = %d, want 1 before cancellation", sub.callCount())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not observe cancellation")
	}
}

func TestExecutePersistsSuccessRecord(t *testing.T) {
	st := store.NewMemoryStore()
	sub := &stubSubmitter{fill: Fill{OrderID: "ord-9", Quantity: dec("5"), Price: dec("0.50")}}
	eng := NewEngine(st, nil, sub, Options{})

	action := openAction("tok7")
	rec := eng.Execute(context.Background(), action)
	if rec.Outcome != domain.OutcomeSuccess {
		t.Fatalf("outcome = %s, want success", rec.Outcome)
	}

	has, err := st.HasExecution(action.Key())
	if err != nil {
		t.Fatalf("HasExecution: %v", err)
	}
	if !has {
		t.Fatal("success record was not persisted")
	}
}

func TestExecuteFailedRecordDoesNotBlockRetry(t *testing.T) {
	st := store.NewMemoryStore()
	sub := &stubSubmitter{
		failFirst: 1,
		failErr:   &domain.RejectedError{Reason: "market closed"},
		fill:      Fill{OrderID: "ord-2", Quantity: dec("5"), Price: dec("0.50")},
	}
	eng := NewEngine(st, nil, sub, Options{MaxRetries: 0})

	action := openAction("tok8")
	first := eng.Execute(context.Background(), action)
	if first.Outcome != domain.OutcomeFailed {
		t.Fatalf("first outcome = %s, want failed", first.Outcome)
	}

	// A later event for the same key may try again: Failed never blocks.
	second := eng.Execute(context.Background(), action)
	if second.Outcome != domain.OutcomeSuccess {
		t.Fatalf("second outcome = %s, want success", second.Outcome)
	}
}
