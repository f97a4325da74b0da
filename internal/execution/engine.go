package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/copytrader/internal/domain"
	"github.com/betbot/copytrader/internal/journal"
	"github.com/betbot/copytrader/internal/metrics"
	"github.com/betbot/copytrader/internal/store"
	"github.com/betbot/copytrader/pkg/logger"
)

// Fill is the boundary's answer to a submitted action.
type Fill struct {
	OrderID  string
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Submitter places one candidate action at the execution boundary.
// Implementations categorize failures: *domain.TransportError for faults
// worth retrying, *domain.RejectedError for terminal rejections.
type Submitter interface {
	Submit(ctx context.Context, action domain.CandidateAction) (Fill, error)
}

// Options bound the engine's behavior per action.
type Options struct {
	DryRun     bool
	MaxRetries int           // resubmissions allowed after the first attempt
	RetryDelay time.Duration // fixed wait between attempts
}

// Engine runs one validated candidate action to a terminal outcome:
// durable dedup check, then submission with bounded retry, then
// best-effort persistence of the record.
type Engine struct {
	store     store.Store
	journal   *journal.Journal
	submitter Submitter
	opts      Options
}

// NewEngine wires the engine. journal may be nil (journaling disabled),
// store may be nil (dedup degraded to the caller's in-flight set).
func NewEngine(st store.Store, jr *journal.Journal, sub Submitter, opts Options) *Engine {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	return &Engine{store: st, journal: jr, submitter: sub, opts: opts}
}

// Execute takes a candidate action to Success, Failed or Skipped-Duplicate.
// The returned record is always usable; store and journal write failures
// are logged and swallowed.
func (e *Engine) Execute(ctx context.Context, action domain.CandidateAction) domain.ExecutionRecord {
	key := action.Key()

	if e.hasExecuted(key) {
		rec := domain.ExecutionRecord{
			Key:        key,
			Outcome:    domain.OutcomeDuplicate,
			DryRun:     e.opts.DryRun,
			ExecutedAt: time.Now(),
		}
		metrics.TradesSkipped.Add(1)
		logger.Infof("execution: skip duplicate %s", key)
		// The store keeps the blocking record and its fill amounts; only
		// the journal notes the skip.
		e.journalRecord(action, rec, "already executed")
		return rec
	}

	if e.opts.DryRun {
		// Synthetic order id keeps dry-run records correlatable across the
		// store, the journal and the API.
		rec := domain.ExecutionRecord{
			Key:        key,
			Outcome:    domain.OutcomeSuccess,
			OrderID:    "dry-" + uuid.NewString(),
			Quantity:   action.Quantity,
			Price:      action.Price,
			DryRun:     true,
			ExecutedAt: time.Now(),
		}
		metrics.TradesExecuted.Add(1)
		logger.Infof("execution: dry-run %s %s %s @ %s", action.Side, action.Position.ID, action.Quantity, action.Price)
		e.persist(action, rec, "")
		return rec
	}

	rec := e.submitWithRetry(ctx, action)
	if rec.Succeeded() {
		metrics.TradesExecuted.Add(1)
		logger.Infof("execution: %s %s filled %s @ %s order=%s retries=%d",
			action.Side, action.Position.ID, rec.Quantity, rec.Price, rec.OrderID, rec.Retries)
		e.persist(action, rec, "")
	} else {
		metrics.TradesFailed.Add(1)
		logger.Errorf("execution: %s %s failed after %d retries: %s",
			action.Side, action.Position.ID, rec.Retries, rec.Error)
		e.persist(action, rec, rec.Error)
	}
	return rec
}

// submitWithRetry drives the bounded attempt loop: the first submission plus
// up to MaxRetries resubmissions a fixed delay apart. The action is byte
// identical across attempts so an idempotent boundary can reject repeats.
// Only transport faults are retried; rejections fail immediately.
func (e *Engine) submitWithRetry(ctx context.Context, action domain.CandidateAction) domain.ExecutionRecord {
	key := action.Key()

	var lastErr error
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Warnf("execution: retry %d/%d for %s: %v", attempt, e.opts.MaxRetries, key, lastErr)
			select {
			case <-ctx.Done():
				return failedRecord(key, attempt-1, errors.Wrap(ctx.Err(), "cancelled during retry wait"))
			case <-time.After(e.opts.RetryDelay):
			}
		}

		fill, err := e.submitter.Submit(ctx, action)
		if err == nil {
			return domain.ExecutionRecord{
				Key:        key,
				Outcome:    domain.OutcomeSuccess,
				OrderID:    fill.OrderID,
				Quantity:   fill.Quantity,
				Price:      fill.Price,
				Retries:    attempt,
				ExecutedAt: time.Now(),
			}
		}
		if !domain.Retryable(err) {
			return failedRecord(key, attempt, err)
		}
		lastErr = err
	}

	return failedRecord(key, e.opts.MaxRetries, lastErr)
}

// hasExecuted consults the durable store for a prior blocking record.
// A store error degrades to "not seen": the in-flight set upstream remains
// the same-process guard.
func (e *Engine) hasExecuted(key domain.ExecutionKey) bool {
	if e.store == nil {
		return false
	}
	has, err := e.store.HasExecution(key)
	if err != nil {
		perr := &domain.PersistenceError{Op: "dedup lookup", Err: err}
		logger.Warnf("execution: %v", perr)
		return false
	}
	return has
}

// persist writes the record to the durable store and the journal. Both are
// fire-and-forget.
func (e *Engine) persist(action domain.CandidateAction, rec domain.ExecutionRecord, reason string) {
	if e.store != nil {
		if err := e.store.SaveExecution(rec); err != nil {
			perr := &domain.PersistenceError{Op: "save execution", Err: err}
			logger.Errorf("execution: %v", perr)
		}
	}
	e.journalRecord(action, rec, reason)
}

// journalRecord appends one audit row. It uses a background context so a
// cancelled action still leaves a trace.
func (e *Engine) journalRecord(action domain.CandidateAction, rec domain.ExecutionRecord, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.journal.Record(ctx, action, rec, reason); err != nil {
		logger.Errorf("execution: journal write: %v", err)
	}
}

func failedRecord(key domain.ExecutionKey, retries int, err error) domain.ExecutionRecord {
	return domain.ExecutionRecord{
		Key:        key,
		Outcome:    domain.OutcomeFailed,
		Retries:    retries,
		Error:      err.Error(),
		ExecutedAt: time.Now(),
	}
}
