package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/copytrader/internal/domain"
	"github.com/betbot/copytrader/internal/execution"
	"github.com/betbot/copytrader/internal/journal"
	"github.com/betbot/copytrader/internal/services"
	"github.com/betbot/copytrader/internal/store"
	"github.com/betbot/copytrader/pkg/config"
)

type okSubmitter struct{}

func (okSubmitter) Submit(_ context.Context, action domain.CandidateAction) (execution.Fill, error) {
	return execution.Fill{OrderID: "ord", Quantity: action.Quantity, Price: action.Price}, nil
}

type fetchFunc func(ctx context.Context, source string) (domain.Snapshot, error)

func (f fetchFunc) FetchPositions(ctx context.Context, source string) (domain.Snapshot, error) {
	return f(ctx, source)
}

func testConfig() *config.Config {
	return &config.Config{
		Sources: []config.SourceConfig{{Address: "0xsource", Label: "whale"}},
		Copy: config.CopyConfig{
			Enabled:         true,
			DryRun:          true,
			PollInterval:    time.Hour,
			Multiplier:      0.05,
			MinTradeSize:    1.05,
			MaxTradeSize:    250,
			MaxPositionSize: 1000,
		},
	}
}

func testPosition(id string) domain.Position {
	qty := decimal.NewFromInt(1000)
	price := decimal.RequireFromString("0.50")
	return domain.Position{
		ID:       id,
		Market:   "cond-" + id,
		Title:    "Will it settle?",
		Outcome:  "Yes",
		Quantity: qty,
		Price:    price,
		Value:    qty.Mul(price),
	}
}

func newService(cfg *config.Config, st store.Store, fetcher fetchFunc) *services.CopyService {
	eng := execution.NewEngine(st, nil, okSubmitter{}, execution.Options{
		DryRun:     cfg.Copy.DryRun,
		RetryDelay: time.Millisecond,
	})
	return services.NewCopyService(cfg, fetcher, eng, st, nil)
}

func get(t *testing.T, router http.Handler, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	body := map[string]json.RawMessage{}
	if w.Code == http.StatusOK || w.Code == http.StatusBadGateway {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal %s response: %v\n%s", path, err, w.Body.String())
		}
	}
	return w, body
}

func TestHealthz(t *testing.T) {
	svc := newService(testConfig(), store.NewMemoryStore(), nil)
	router := New(svc, nil, nil, nil).Router()

	w, body := get(t, router, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if string(body["status"]) != `"ok"` {
		t.Fatalf("status field = %s", body["status"])
	}
	if _, ok := body["stream"]; ok {
		t.Fatal("stream field should be absent when the stream is disabled")
	}
}

func TestStatsFieldNames(t *testing.T) {
	svc := newService(testConfig(), store.NewMemoryStore(), nil)
	router := New(svc, nil, nil, nil).Router()

	w, body := get(t, router, "/api/v1/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	for _, field := range []string{
		"enabled", "dryRun", "totalExecuted", "totalFailed",
		"totalVolume", "tradersMonitored", "activePositions", "lastTradeTime",
	} {
		if _, ok := body[field]; !ok {
			t.Fatalf("stats response missing %q: %v", field, body)
		}
	}
	if len(body) != 8 {
		t.Fatalf("stats response has %d fields, want 8", len(body))
	}
}

func TestPositionsFallsBackToStoredSnapshot(t *testing.T) {
	st := store.NewMemoryStore()
	snap := domain.NewSnapshot("0xsource", []domain.Position{testPosition("tokA")}, time.Now())
	if err := st.SaveSnapshot(snap); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	svc := newService(testConfig(), st, nil)
	router := New(svc, st, nil, nil).Router()

	w, body := get(t, router, "/api/v1/positions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var sources []sourceView
	if err := json.Unmarshal(body["sources"], &sources); err != nil {
		t.Fatalf("unmarshal sources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("sources = %d, want 1", len(sources))
	}
	if sources[0].Label != "whale" {
		t.Fatalf("label = %q, want whale", sources[0].Label)
	}
	if len(sources[0].Positions) != 1 || sources[0].Positions[0].ID != "tokA" {
		t.Fatalf("positions = %+v", sources[0].Positions)
	}
}

func TestPositionsServedFromLiveBaseline(t *testing.T) {
	cfg := testConfig()
	cfg.Copy.Enabled = false
	snap := domain.NewSnapshot("0xsource", []domain.Position{testPosition("tokA")}, time.Now())
	fetcher := fetchFunc(func(ctx context.Context, source string) (domain.Snapshot, error) {
		return snap, nil
	})

	svc := newService(cfg, nil, fetcher)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Stop()

	deadline := time.After(5 * time.Second)
	for len(svc.Snapshots()) == 0 {
		select {
		case <-deadline:
			t.Fatal("baseline never arrived")
		case <-time.After(10 * time.Millisecond):
		}
	}

	router := New(svc, nil, nil, nil).Router()
	w, body := get(t, router, "/api/v1/positions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var sources []sourceView
	if err := json.Unmarshal(body["sources"], &sources); err != nil {
		t.Fatalf("unmarshal sources: %v", err)
	}
	if len(sources) != 1 || len(sources[0].Positions) != 1 {
		t.Fatalf("sources = %+v", sources)
	}
	if sources[0].Polls == 0 {
		t.Fatal("poller counters missing from positions response")
	}
}

func TestLiveSourceFetch(t *testing.T) {
	snap := domain.NewSnapshot("0xother", []domain.Position{testPosition("tokZ")}, time.Now())
	fetcher := fetchFunc(func(ctx context.Context, source string) (domain.Snapshot, error) {
		if source != "0xother" {
			return domain.Snapshot{}, errors.Errorf("unexpected source %s", source)
		}
		return snap, nil
	})

	svc := newService(testConfig(), nil, fetcher)
	router := New(svc, nil, nil, nil).Router()

	w, body := get(t, router, "/api/v1/positions/0xOTHER")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var positions []positionView
	if err := json.Unmarshal(body["positions"], &positions); err != nil {
		t.Fatalf("unmarshal positions: %v", err)
	}
	if len(positions) != 1 || positions[0].ID != "tokZ" {
		t.Fatalf("positions = %+v", positions)
	}
}

func TestLiveSourceFetchFailure(t *testing.T) {
	fetcher := fetchFunc(func(ctx context.Context, source string) (domain.Snapshot, error) {
		return domain.Snapshot{}, &domain.FetchError{Source: source, Err: errors.New("upstream 500")}
	})

	svc := newService(testConfig(), nil, fetcher)
	router := New(svc, nil, nil, nil).Router()

	w, body := get(t, router, "/api/v1/positions/0xsource")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if len(body["error"]) == 0 {
		t.Fatal("error body missing")
	}
}

func TestExecutionsFromStore(t *testing.T) {
	st := store.NewMemoryStore()
	older := domain.ExecutionRecord{
		Key:        domain.ExecutionKey{PositionID: "tokA", Source: "0xsource", Side: domain.SideOpen},
		Outcome:    domain.OutcomeSuccess,
		OrderID:    "ord-1",
		Quantity:   decimal.NewFromInt(50),
		Price:      decimal.RequireFromString("0.50"),
		ExecutedAt: time.Now().Add(-time.Minute),
	}
	newer := domain.ExecutionRecord{
		Key:        domain.ExecutionKey{PositionID: "tokB", Source: "0xsource", Side: domain.SideOpen},
		Outcome:    domain.OutcomeFailed,
		Error:      "not enough balance",
		ExecutedAt: time.Now(),
	}
	for _, rec := range []domain.ExecutionRecord{older, newer} {
		if err := st.SaveExecution(rec); err != nil {
			t.Fatalf("seed execution: %v", err)
		}
	}

	svc := newService(testConfig(), st, nil)
	router := New(svc, st, nil, nil).Router()

	w, body := get(t, router, "/api/v1/executions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var views []executionView
	if err := json.Unmarshal(body["executions"], &views); err != nil {
		t.Fatalf("unmarshal executions: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("executions = %d, want 2", len(views))
	}
	if views[0].PositionID != "tokB" {
		t.Fatalf("newest first, got %q", views[0].PositionID)
	}
	if views[1].OrderID != "ord-1" {
		t.Fatalf("order id = %q, want ord-1", views[1].OrderID)
	}
}

func TestExecutionsFallsBackToJournal(t *testing.T) {
	jr, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer jr.Close()

	action := domain.CandidateAction{
		Side:     domain.SideOpen,
		Source:   "0xsource",
		Position: testPosition("tokA"),
		Quantity: decimal.NewFromInt(50),
		Price:    decimal.RequireFromString("0.50"),
	}
	rec := domain.ExecutionRecord{
		Key:        action.Key(),
		Outcome:    domain.OutcomeSuccess,
		OrderID:    "ord-9",
		Quantity:   decimal.NewFromInt(50),
		Price:      decimal.RequireFromString("0.50"),
		ExecutedAt: time.Now(),
	}
	if err := jr.Record(context.Background(), action, rec, ""); err != nil {
		t.Fatalf("seed journal: %v", err)
	}

	svc := newService(testConfig(), nil, nil)
	router := New(svc, nil, jr, nil).Router()

	w, body := get(t, router, "/api/v1/executions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var views []executionView
	if err := json.Unmarshal(body["executions"], &views); err != nil {
		t.Fatalf("unmarshal executions: %v", err)
	}
	if len(views) != 1 || views[0].OrderID != "ord-9" {
		t.Fatalf("executions = %+v", views)
	}
	if views[0].Outcome != string(domain.OutcomeSuccess) {
		t.Fatalf("outcome = %q", views[0].Outcome)
	}
}

func TestExecutionsDegradesToEmpty(t *testing.T) {
	svc := newService(testConfig(), nil, nil)
	router := New(svc, nil, nil, nil).Router()

	w, body := get(t, router, "/api/v1/executions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if string(body["executions"]) != "[]" {
		t.Fatalf("executions = %s, want []", body["executions"])
	}
}
