// Package server exposes the read-only HTTP surface: health, aggregate
// stats, tracked positions and the execution history. It never mutates
// pipeline state; every handler is a view over the copy service and the
// stores.
package server

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/betbot/copytrader/internal/domain"
	"github.com/betbot/copytrader/internal/journal"
	"github.com/betbot/copytrader/internal/metrics"
	"github.com/betbot/copytrader/internal/services"
	"github.com/betbot/copytrader/internal/store"
	"github.com/betbot/copytrader/internal/stream"
	"github.com/betbot/copytrader/internal/watcher"
	"github.com/betbot/copytrader/pkg/logger"
)

const (
	defaultExecutionLimit = 50
	maxExecutionLimit     = 500
	shutdownGrace         = 2 * time.Second
)

// Server wires the HTTP handlers to the running pipeline. st, jr and
// stream watcher may be nil; the affected endpoints degrade instead of
// failing.
type Server struct {
	svc    *services.CopyService
	st     store.Store
	jr     *journal.Journal
	stream *stream.Watcher
}

func New(svc *services.CopyService, st store.Store, jr *journal.Journal, sw *stream.Watcher) *Server {
	return &Server{svc: svc, st: st, jr: jr, stream: sw}
}

// Router builds the gin handler tree. Logging goes through the process
// logger, so gin's own request logger stays off.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)

	api := r.Group("/api/v1")
	api.GET("/stats", s.handleStats)
	api.GET("/positions", s.handlePositions)
	api.GET("/positions/:source", s.handlePositionsSource)
	api.GET("/executions", s.handleExecutions)

	return r
}

// StartAsync serves the API on addr until ctx is cancelled. The listener
// is opened synchronously so a bad address fails at startup, not later.
func (s *Server) StartAsync(ctx context.Context, addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{Handler: s.Router()}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Errorf("api server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("api server listening on %s", ln.Addr())
	return srv, nil
}

func (s *Server) handleHealthz(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.stream != nil {
		if s.stream.Connected() {
			resp["stream"] = "connected"
		} else {
			resp["stream"] = "disconnected"
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Stats())
}

// positionView is the wire shape of one tracked position.
type positionView struct {
	ID       string          `json:"id"`
	Market   string          `json:"market"`
	Title    string          `json:"title"`
	Outcome  string          `json:"outcome"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
}

// sourceView is one monitored wallet with its poller counters and the last
// accepted snapshot.
type sourceView struct {
	watcher.Status
	Label      string          `json:"label,omitempty"`
	CapturedAt time.Time       `json:"capturedAt"`
	TotalValue decimal.Decimal `json:"totalValue"`
	Positions  []positionView  `json:"positions"`
}

// handlePositions reports the accepted baseline per source. Before the
// first poll completes it falls back to the persisted snapshot, so a
// restarted process answers immediately.
func (s *Server) handlePositions(c *gin.Context) {
	statuses := make(map[string]watcher.Status)
	for _, st := range s.svc.PollerStatuses() {
		statuses[st.Source] = st
	}
	snaps := make(map[string]domain.Snapshot)
	for _, snap := range s.svc.Snapshots() {
		snaps[snap.Source] = snap
	}

	views := make([]sourceView, 0, len(s.svc.SourceLabels()))
	for source, label := range s.svc.SourceLabels() {
		view := sourceView{
			Status:     statuses[source],
			Label:      label,
			TotalValue: decimal.Zero,
			Positions:  []positionView{},
		}
		view.Status.Source = source

		snap, ok := snaps[source]
		if !ok && s.st != nil {
			if stored, err := s.st.LoadSnapshot(source); err == nil && stored != nil {
				snap, ok = *stored, true
				metrics.SnapshotLoads.Add(1)
			}
		}
		if ok {
			view.CapturedAt = snap.CapturedAt
			view.TotalValue = snap.TotalValue
			view.Positions = positionViews(snap)
		}
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Source < views[j].Source })

	c.JSON(http.StatusOK, gin.H{"sources": views})
}

// handlePositionsSource runs a live fetch for one wallet, bypassing the
// poll cadence. The result is informational and never fed to the pipeline.
func (s *Server) handlePositionsSource(c *gin.Context) {
	source := c.Param("source")
	snap, err := s.svc.GetStatus(c.Request.Context(), source)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"source":     snap.Source,
		"capturedAt": snap.CapturedAt,
		"totalValue": snap.TotalValue,
		"positions":  positionViews(snap),
	})
}

func positionViews(snap domain.Snapshot) []positionView {
	out := make([]positionView, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		out = append(out, positionView{
			ID:       p.ID,
			Market:   p.Market,
			Title:    p.Title,
			Outcome:  p.Outcome,
			Quantity: p.Quantity,
			Price:    p.Price,
			Value:    p.Value,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// executionView is the wire shape of one execution record.
type executionView struct {
	PositionID string          `json:"positionId"`
	Source     string          `json:"source"`
	Side       string          `json:"side"`
	Outcome    string          `json:"outcome"`
	OrderID    string          `json:"orderId,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Retries    int             `json:"retries"`
	Error      string          `json:"error,omitempty"`
	DryRun     bool            `json:"dryRun"`
	ExecutedAt time.Time       `json:"executedAt"`
}

// handleExecutions lists recent executions from the store, falling back to
// the journal when the store is unavailable. With neither it returns an
// empty list rather than an error.
func (s *Server) handleExecutions(c *gin.Context) {
	limit := defaultExecutionLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxExecutionLimit {
		limit = maxExecutionLimit
	}

	views := s.executionsFromStore(limit)
	if views == nil {
		views = s.executionsFromJournal(c.Request.Context(), limit)
	}
	if views == nil {
		views = []executionView{}
	}
	c.JSON(http.StatusOK, gin.H{"executions": views})
}

func (s *Server) executionsFromStore(limit int) []executionView {
	if s.st == nil {
		return nil
	}
	recs, err := s.st.ListExecutions(limit)
	if err != nil {
		logger.Warnf("api: list executions: %v", err)
		return nil
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ExecutedAt.After(recs[j].ExecutedAt) })
	views := make([]executionView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, executionView{
			PositionID: rec.Key.PositionID,
			Source:     rec.Key.Source,
			Side:       string(rec.Key.Side),
			Outcome:    string(rec.Outcome),
			OrderID:    rec.OrderID,
			Quantity:   rec.Quantity,
			Price:      rec.Price,
			Retries:    rec.Retries,
			Error:      rec.Error,
			DryRun:     rec.DryRun,
			ExecutedAt: rec.ExecutedAt,
		})
	}
	return views
}

func (s *Server) executionsFromJournal(ctx context.Context, limit int) []executionView {
	if s.jr == nil {
		return nil
	}
	trades, err := s.jr.Recent(ctx, limit)
	if err != nil {
		logger.Warnf("api: journal fallback: %v", err)
		return nil
	}
	views := make([]executionView, 0, len(trades))
	for _, tr := range trades {
		views = append(views, executionView{
			PositionID: tr.PositionID,
			Source:     tr.Source,
			Side:       tr.Side,
			Outcome:    tr.Status,
			OrderID:    tr.OrderID,
			Quantity:   decOr(tr.ExecutedQty),
			Price:      decOr(tr.Price),
			Retries:    tr.Retries,
			Error:      tr.Reason,
			DryRun:     tr.DryRun,
			ExecutedAt: tr.At,
		})
	}
	return views
}

func decOr(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
