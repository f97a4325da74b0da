// Package journal keeps an append-only sqlite log of every copy decision
// and its outcome. The journal is an audit artifact: writes are best-effort
// and never gate the trading path.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/betbot/copytrader/internal/domain"
)

// Journal is a sqlite-backed trade log.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS copy_trades (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts TEXT NOT NULL,
  source TEXT NOT NULL,
  position_id TEXT NOT NULL,
  market TEXT,
  title TEXT,
  outcome TEXT,
  side TEXT NOT NULL,
  intended_qty TEXT NOT NULL,
  executed_qty TEXT,
  price TEXT,
  notional TEXT,
  status TEXT NOT NULL,
  reason TEXT,
  order_id TEXT,
  dry_run INTEGER NOT NULL DEFAULT 0,
  retries INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE INDEX IF NOT EXISTS idx_copy_trades_ts ON copy_trades(ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_copy_trades_source ON copy_trades(source, ts DESC);`,
	}

	for _, q := range stmts {
		if _, err := j.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("journal: migrate exec failed: %w", err)
		}
	}
	return nil
}

// Record appends one decision outcome. reason is free text for skips and
// failures, empty on success.
func (j *Journal) Record(ctx context.Context, action domain.CandidateAction, rec domain.ExecutionRecord, reason string) error {
	if j == nil || j.db == nil {
		return nil
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO copy_trades
  (ts, source, position_id, market, title, outcome, side, intended_qty, executed_qty, price, notional, status, reason, order_id, dry_run, retries)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.ExecutedAt.UTC().Format(time.RFC3339Nano),
		rec.Key.Source,
		rec.Key.PositionID,
		action.Position.Market,
		action.Position.Title,
		action.Position.Outcome,
		string(rec.Key.Side),
		action.Quantity.String(),
		rec.Quantity.String(),
		rec.Price.String(),
		rec.Quantity.Mul(rec.Price).String(),
		string(rec.Outcome),
		reason,
		rec.OrderID,
		boolToInt(rec.DryRun),
		rec.Retries,
	)
	if err != nil {
		return fmt.Errorf("journal: insert copy_trade: %w", err)
	}
	return nil
}

// Trade is one journal row read back for display.
type Trade struct {
	ID          int64
	At          time.Time
	Source      string
	PositionID  string
	Market      string
	Title       string
	Outcome     string
	Side        string
	IntendedQty string
	ExecutedQty string
	Price       string
	Notional    string
	Status      string
	Reason      string
	OrderID     string
	DryRun      bool
	Retries     int
}

// Recent returns up to limit rows, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, ts, source, position_id, market, title, outcome, side,
       intended_qty, executed_qty, price, notional, status, reason, order_id, dry_run, retries
FROM copy_trades ORDER BY ts DESC, id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query copy_trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		var ts string
		var dryRun int
		if err := rows.Scan(&t.ID, &ts, &t.Source, &t.PositionID, &t.Market, &t.Title, &t.Outcome, &t.Side,
			&t.IntendedQty, &t.ExecutedQty, &t.Price, &t.Notional, &t.Status, &t.Reason, &t.OrderID, &dryRun, &t.Retries); err != nil {
			return nil, err
		}
		t.At, _ = time.Parse(time.RFC3339Nano, ts)
		t.DryRun = dryRun != 0
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
