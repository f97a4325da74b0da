// Package services hosts the copy pipeline orchestrator: it owns the
// per-source pollers, routes detected changes through the planner into the
// execution engine, and keeps the aggregate counters the stats surface
// reports.
package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copytrader/internal/diff"
	"github.com/betbot/copytrader/internal/domain"
	"github.com/betbot/copytrader/internal/execution"
	"github.com/betbot/copytrader/internal/journal"
	"github.com/betbot/copytrader/internal/metrics"
	"github.com/betbot/copytrader/internal/planner"
	"github.com/betbot/copytrader/internal/store"
	"github.com/betbot/copytrader/internal/watcher"
	"github.com/betbot/copytrader/pkg/config"
	"github.com/betbot/copytrader/pkg/logger"
	"github.com/betbot/copytrader/pkg/syncgroup"
)

// Stats is the read-only aggregate snapshot exposed over HTTP.
type Stats struct {
	Enabled          bool            `json:"enabled"`
	DryRun           bool            `json:"dryRun"`
	TotalExecuted    int64           `json:"totalExecuted"`
	TotalFailed      int64           `json:"totalFailed"`
	TotalVolume      decimal.Decimal `json:"totalVolume"`
	TradersMonitored int             `json:"tradersMonitored"`
	ActivePositions  int             `json:"activePositions"`
	LastTradeTime    time.Time       `json:"lastTradeTime"`
}

// CopyService wires pollers, change detection, planning and execution. It
// is the only owner of the in-flight set and the diff baselines; both are
// mutated exclusively on the per-source poller goroutines and the shared
// structures are internally synchronized.
type CopyService struct {
	cfg      *config.Config
	fetcher  watcher.Fetcher
	engine   *execution.Engine
	st       store.Store
	jr       *journal.Journal
	inflight *execution.InFlightSet
	planners map[string]*planner.Planner
	group    *syncgroup.SyncGroup

	pollMu  sync.RWMutex
	pollers []*watcher.Poller

	snapMu sync.Mutex
	prev   map[string]*domain.Snapshot

	statsMu       sync.RWMutex
	running       bool
	cancel        context.CancelFunc
	totalExecuted int64
	totalFailed   int64
	totalVolume   decimal.Decimal
	lastTradeAt   time.Time
}

// NewCopyService builds the orchestrator. st and jr may be nil for the
// degraded modes; fetcher and engine must not be.
func NewCopyService(cfg *config.Config, fetcher watcher.Fetcher, engine *execution.Engine, st store.Store, jr *journal.Journal) *CopyService {
	planners := make(map[string]*planner.Planner, len(cfg.Sources))
	for _, src := range cfg.Sources {
		planners[src.Address] = planner.New(plannerLimits(cfg, src.Address))
	}

	return &CopyService{
		cfg:      cfg,
		fetcher:  fetcher,
		engine:   engine,
		st:       st,
		jr:       jr,
		inflight: execution.NewInFlightSet(16),
		planners: planners,
		group:    syncgroup.NewSyncGroup(),
		prev:     make(map[string]*domain.Snapshot),
	}
}

func plannerLimits(cfg *config.Config, source string) planner.Limits {
	return planner.Limits{
		Multiplier:      decimal.NewFromFloat(cfg.SourceMultiplier(source)),
		MinTradeSize:    decimal.NewFromFloat(cfg.Copy.MinTradeSize),
		MaxTradeSize:    decimal.NewFromFloat(cfg.Copy.MaxTradeSize),
		MaxPositionSize: decimal.NewFromFloat(cfg.Copy.MaxPositionSize),
	}
}

// Start launches one poller per configured source. Each poller runs on its
// own goroutine, so a slow or failing source never delays the others.
func (s *CopyService) Start(ctx context.Context) error {
	s.statsMu.Lock()
	if s.running {
		s.statsMu.Unlock()
		return errors.New("copy service already running")
	}
	s.running = true
	s.statsMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.statsMu.Lock()
	s.cancel = cancel
	s.statsMu.Unlock()

	pollers := make([]*watcher.Poller, 0, len(s.cfg.Sources))
	for _, src := range s.cfg.Sources {
		p := watcher.NewPoller(src.Address, s.cfg.Copy.PollInterval, s.fetcher,
			func(snap domain.Snapshot) { s.handleSnapshot(runCtx, snap) },
			s.handleFetchError,
		)
		pollers = append(pollers, p)
		s.group.Add(func() { p.Run(runCtx) })
	}

	s.pollMu.Lock()
	s.pollers = pollers
	s.pollMu.Unlock()

	s.group.Run()

	logger.Infof("copy service started: %d sources, interval=%s, multiplier=%.3f, dry_run=%v, enabled=%v",
		len(pollers), s.cfg.Copy.PollInterval, s.cfg.Copy.Multiplier, s.cfg.Copy.DryRun, s.cfg.Copy.Enabled)
	return nil
}

// Stop cancels the pollers and waits for every in-flight cycle, including
// any execution it triggered, to return.
func (s *CopyService) Stop() {
	s.statsMu.Lock()
	if !s.running {
		s.statsMu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.statsMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.group.WaitAndClear()
	logger.Info("copy service stopped")
}

// handleSnapshot is the per-source pipeline: diff against the accepted
// baseline, act on every event, then advance the baseline. The baseline
// only moves after detection and dispatch complete, so an interrupted cycle
// re-detects its events on the next poll and the dedup layers drop what
// already ran.
func (s *CopyService) handleSnapshot(ctx context.Context, snap domain.Snapshot) {
	s.snapMu.Lock()
	prev := s.prev[snap.Source]
	s.snapMu.Unlock()

	events := diff.Detect(prev, snap, time.Now())
	for _, ev := range events {
		if ctx.Err() != nil {
			return
		}
		s.handleEvent(ctx, ev)
	}

	s.snapMu.Lock()
	s.prev[snap.Source] = &snap
	s.snapMu.Unlock()

	if s.st != nil {
		if err := s.st.SaveSnapshot(snap); err != nil {
			logger.Warnf("copy: persist snapshot for %s: %v", snap.Source, err)
		} else {
			metrics.SnapshotSaves.Add(1)
		}
	}
}

func (s *CopyService) handleEvent(ctx context.Context, ev domain.ChangeEvent) {
	switch ev.Kind {
	case domain.ChangeOpened:
		metrics.EventsOpened.Add(1)
		s.handleOpened(ctx, ev)
	case domain.ChangeClosed:
		metrics.EventsClosed.Add(1)
		s.handleClosed(ctx, ev)
	case domain.ChangeResized:
		metrics.EventsResized.Add(1)
		// Surfaced for visibility, never traded.
		logger.WithFields(logrus.Fields{
			"source":   ev.Source,
			"position": ev.Position.ID,
		}).Infof("copy: resize %s -> %s observed, not copied", ev.PrevPos.Quantity, ev.Position.Quantity)
	}
}

// handleOpened reserves the position, plans and executes the open, then
// confirms or releases the reservation. Reserve is the atomic gate: two
// concurrent Opened events for the same position cannot both reach the
// engine.
func (s *CopyService) handleOpened(ctx context.Context, ev domain.ChangeEvent) {
	if !s.cfg.Copy.Enabled {
		return
	}
	source, id := ev.Source, ev.Position.ID

	if !s.inflight.Reserve(source, id) {
		logger.Debugf("copy: %s/%s already in flight, skipped", source, id)
		return
	}

	action, err := s.plannerFor(source).Plan(ev)
	if err != nil {
		s.inflight.Release(source, id)
		s.recordRejected(ev, err)
		return
	}
	if action == nil {
		s.inflight.Release(source, id)
		return
	}

	rec := s.engine.Execute(ctx, *action)
	switch rec.Outcome {
	case domain.OutcomeSuccess:
		s.inflight.Confirm(source, id)
		s.noteExecuted(rec)
	case domain.OutcomeDuplicate:
		// Opened by a previous run. Keep holding it unless that run
		// closed it too, so a later close from the source still copies.
		if s.stillHeldDurably(source, id) {
			s.inflight.Confirm(source, id)
		} else {
			s.inflight.Release(source, id)
		}
	default:
		s.inflight.Release(source, id)
		s.noteFailed()
	}
}

// handleClosed copies a source's exit, but only for positions this process
// (or a prior run, via the durable record) actually opened.
func (s *CopyService) handleClosed(ctx context.Context, ev domain.ChangeEvent) {
	if !s.cfg.Copy.Enabled {
		return
	}
	source, id := ev.Source, ev.Position.ID

	if !s.inflight.Held(source, id) {
		logger.Debugf("copy: close for %s/%s not held, nothing to do", source, id)
		return
	}

	action, err := s.plannerFor(source).Plan(ev)
	if err != nil || action == nil {
		logger.Errorf("copy: plan close %s/%s: %v", source, id, err)
		return
	}
	s.capToOpenFill(action)

	rec := s.engine.Execute(ctx, *action)
	switch rec.Outcome {
	case domain.OutcomeSuccess:
		s.inflight.Remove(source, id)
		s.noteExecuted(rec)
	case domain.OutcomeDuplicate:
		s.inflight.Remove(source, id)
	default:
		s.noteFailed()
		logger.Errorf("copy: close %s/%s failed, position stays held: %s", source, id, rec.Error)
	}
}

// capToOpenFill sizes the close to what the open actually filled, so a
// partially filled open never triggers an oversized sell.
func (s *CopyService) capToOpenFill(action *domain.CandidateAction) {
	if s.st == nil {
		return
	}
	openRec, err := s.st.GetExecution(domain.ExecutionKey{
		PositionID: action.Position.ID,
		Source:     action.Source,
		Side:       domain.SideOpen,
	})
	if err != nil || openRec == nil || !openRec.Succeeded() {
		return
	}
	if openRec.Quantity.IsPositive() && openRec.Quantity.LessThan(action.Quantity) {
		action.Quantity = openRec.Quantity
	}
}

// stillHeldDurably checks whether a position opened in a prior run has
// already been closed by one.
func (s *CopyService) stillHeldDurably(source, id string) bool {
	if s.st == nil {
		return false
	}
	closed, err := s.st.HasExecution(domain.ExecutionKey{PositionID: id, Source: source, Side: domain.SideClose})
	if err != nil {
		return false
	}
	return !closed
}

// recordRejected surfaces a planner rejection as a Failed record: counted,
// persisted and journalled so the paper trail shows why nothing was copied.
// A Failed record never blocks a later attempt.
func (s *CopyService) recordRejected(ev domain.ChangeEvent, planErr error) {
	var verr *domain.ValidationError
	if !errors.As(planErr, &verr) {
		logger.Errorf("copy: plan open %s/%s: %v", ev.Source, ev.Position.ID, planErr)
		return
	}

	multiplier := decimal.NewFromFloat(s.cfg.SourceMultiplier(ev.Source))
	action := domain.CandidateAction{
		Side:     domain.SideOpen,
		Source:   ev.Source,
		Position: ev.Position,
		Quantity: ev.Position.Quantity.Mul(multiplier),
		Price:    ev.Position.Price,
	}
	rec := domain.ExecutionRecord{
		Key:        action.Key(),
		Outcome:    domain.OutcomeFailed,
		Error:      verr.Error(),
		DryRun:     s.cfg.Copy.DryRun,
		ExecutedAt: time.Now(),
	}

	metrics.TradesFailed.Add(1)
	s.noteFailed()
	logger.WithFields(logrus.Fields{
		"source":   ev.Source,
		"position": ev.Position.ID,
		"reason":   string(verr.Reason),
	}).Warnf("copy: open rejected: %s", verr.Error())

	if s.st != nil {
		if err := s.st.SaveExecution(rec); err != nil {
			logger.Errorf("copy: persist rejection: %v", err)
		}
	}
	jctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.jr.Record(jctx, action, rec, verr.Error()); err != nil {
		logger.Errorf("copy: journal rejection: %v", err)
	}
}

// handleFetchError counts the failure; the poller already logged it.
func (s *CopyService) handleFetchError(string, error) {
	metrics.FetchErrors.Add(1)
}

func (s *CopyService) plannerFor(source string) *planner.Planner {
	if p, ok := s.planners[source]; ok {
		return p
	}
	// Sources are fixed at startup; anything else gets the global limits.
	return planner.New(plannerLimits(s.cfg, source))
}

func (s *CopyService) noteExecuted(rec domain.ExecutionRecord) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.totalExecuted++
	s.totalVolume = s.totalVolume.Add(rec.Quantity.Mul(rec.Price))
	s.lastTradeAt = rec.ExecutedAt
}

func (s *CopyService) noteFailed() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.totalFailed++
}

// Stats returns the aggregate counters. Pure accessor, safe from any
// goroutine.
func (s *CopyService) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return Stats{
		Enabled:          s.cfg.Copy.Enabled,
		DryRun:           s.cfg.Copy.DryRun,
		TotalExecuted:    s.totalExecuted,
		TotalFailed:      s.totalFailed,
		TotalVolume:      s.totalVolume,
		TradersMonitored: len(s.cfg.Sources),
		ActivePositions:  s.inflight.Len(),
		LastTradeTime:    s.lastTradeAt,
	}
}

// SourceLabels maps each monitored wallet to its configured label.
func (s *CopyService) SourceLabels() map[string]string {
	out := make(map[string]string, len(s.cfg.Sources))
	for _, src := range s.cfg.Sources {
		out[src.Address] = src.Label
	}
	return out
}

// PollerStatuses reports every poller's counters for the stats surface.
func (s *CopyService) PollerStatuses() []watcher.Status {
	s.pollMu.RLock()
	defer s.pollMu.RUnlock()
	out := make([]watcher.Status, 0, len(s.pollers))
	for _, p := range s.pollers {
		out = append(out, p.Status())
	}
	return out
}

// Snapshots returns the latest accepted baseline per source, sorted by the
// configured source order.
func (s *CopyService) Snapshots() []domain.Snapshot {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	out := make([]domain.Snapshot, 0, len(s.cfg.Sources))
	for _, src := range s.cfg.Sources {
		if snap := s.prev[src.Address]; snap != nil {
			out = append(out, *snap)
		}
	}
	return out
}

// GetStatus runs one fetch-and-normalize cycle for the source immediately,
// outside the polling cadence, and returns the snapshot without feeding it
// to the pipeline.
func (s *CopyService) GetStatus(ctx context.Context, source string) (domain.Snapshot, error) {
	return s.fetcher.FetchPositions(ctx, strings.ToLower(source))
}

// Kick asks the source's poller for an immediate out-of-cadence poll.
// It reports whether the source is monitored.
func (s *CopyService) Kick(source string) bool {
	source = strings.ToLower(source)
	s.pollMu.RLock()
	defer s.pollMu.RUnlock()
	for _, p := range s.pollers {
		if p.Source() == source {
			p.Kick()
			metrics.StreamKicks.Add(1)
			return true
		}
	}
	return false
}
