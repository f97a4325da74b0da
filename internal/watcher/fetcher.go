package watcher

import (
	"context"
	"strings"
	"time"

	"github.com/betbot/copytrader/internal/domain"
	"github.com/betbot/copytrader/pkg/sdk/dataapi"
)

// Fetcher produces the current open-position snapshot for one source
// wallet.
type Fetcher interface {
	FetchPositions(ctx context.Context, source string) (domain.Snapshot, error)
}

// DataAPIFetcher reads snapshots from the Polymarket Data API.
type DataAPIFetcher struct {
	api *dataapi.Client
}

// NewDataAPIFetcher wraps a Data API client.
func NewDataAPIFetcher(api *dataapi.Client) *DataAPIFetcher {
	return &DataAPIFetcher{api: api}
}

// FetchPositions fetches and normalizes one source's open positions. An
// unknown wallet or a wallet with nothing open yields an empty snapshot;
// only transport and decode failures are errors.
func (f *DataAPIFetcher) FetchPositions(ctx context.Context, source string) (domain.Snapshot, error) {
	rows, err := f.api.GetPositions(ctx, source)
	if err != nil {
		return domain.Snapshot{}, &domain.FetchError{Source: source, Err: err}
	}

	now := time.Now()
	positions := make([]domain.Position, 0, len(rows))
	for _, row := range rows {
		p, ok := normalize(row, now)
		if !ok {
			continue
		}
		positions = append(positions, p)
	}
	return domain.NewSnapshot(strings.ToLower(source), positions, now), nil
}

// normalize converts one wire row. Rows without an asset id or with a
// non-positive size carry no copyable exposure and are dropped.
func normalize(row dataapi.Position, now time.Time) (domain.Position, bool) {
	if row.Asset == "" || !row.Size.Decimal.IsPositive() {
		return domain.Position{}, false
	}

	price := row.CurPrice.Decimal
	if price.IsZero() {
		price = row.AvgPrice.Decimal
	}

	// Value precedence: what the API says it is worth now, then
	// price*quantity, then the cost basis.
	value := row.CurrentValue.Decimal
	if value.IsZero() {
		value = price.Mul(row.Size.Decimal)
	}
	if value.IsZero() {
		value = row.InitialValue.Decimal
	}

	return domain.Position{
		ID:           row.Asset,
		Market:       row.ConditionID,
		Title:        row.Title,
		Outcome:      row.Outcome,
		Quantity:     row.Size.Decimal,
		Price:        price,
		Value:        value,
		InitialValue: row.InitialValue.Decimal,
		NegRisk:      row.NegativeRisk,
		ObservedAt:   now,
	}, true
}
