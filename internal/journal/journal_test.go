package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copytrader/internal/domain"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func sampleAction() domain.CandidateAction {
	return domain.CandidateAction{
		Side:   domain.SideOpen,
		Source: "0xabc",
		Position: domain.Position{
			ID:      "tok-1",
			Market:  "cond-1",
			Title:   "Will it rain tomorrow?",
			Outcome: "Yes",
		},
		Quantity: decimal.RequireFromString("25"),
		Price:    decimal.RequireFromString("0.4"),
	}
}

func TestRecordAndRecent(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	action := sampleAction()
	rec := domain.ExecutionRecord{
		Key:        action.Key(),
		Outcome:    domain.OutcomeSuccess,
		OrderID:    "order-9",
		Quantity:   decimal.RequireFromString("25"),
		Price:      decimal.RequireFromString("0.41"),
		Retries:    1,
		ExecutedAt: time.Now(),
	}
	require.NoError(t, j.Record(ctx, action, rec, ""))

	trades, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	got := trades[0]
	require.Equal(t, "0xabc", got.Source)
	require.Equal(t, "tok-1", got.PositionID)
	require.Equal(t, "open", got.Side)
	require.Equal(t, "25", got.IntendedQty)
	require.Equal(t, "success", got.Status)
	require.Equal(t, "order-9", got.OrderID)
	require.Equal(t, 1, got.Retries)
	require.False(t, got.DryRun)
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	action := sampleAction()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"first", "second", "third"} {
		rec := domain.ExecutionRecord{
			Key:        domain.ExecutionKey{PositionID: id, Source: "0xabc", Side: domain.SideOpen},
			Outcome:    domain.OutcomeFailed,
			ExecutedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, j.Record(ctx, action, rec, "transport: connection refused"))
	}

	trades, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	require.Equal(t, "third", trades[0].PositionID)
	require.Equal(t, "second", trades[1].PositionID)
	require.Equal(t, "transport: connection refused", trades[0].Reason)
}

func TestRecordSkippedDuplicate(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	action := sampleAction()
	rec := domain.ExecutionRecord{
		Key:        action.Key(),
		Outcome:    domain.OutcomeDuplicate,
		ExecutedAt: time.Now(),
	}
	require.NoError(t, j.Record(ctx, action, rec, "already executed"))

	trades, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, "skipped_duplicate", trades[0].Status)
	require.Equal(t, "already executed", trades[0].Reason)
}
