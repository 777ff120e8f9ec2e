package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/rickgao/rtd-loader/internal/decoder"
	"github.com/rickgao/rtd-loader/internal/model"
	"github.com/rickgao/rtd-loader/internal/store"
)

// BrokerFlusher writes broker balance changes.
type BrokerFlusher struct {
	store   BrokerStore
	table   *decoder.BrokerTable
	refDate time.Time
}

// NewBrokerFlusher creates a broker ranking flusher.
func NewBrokerFlusher(s BrokerStore, table *decoder.BrokerTable, refDate time.Time) *BrokerFlusher {
	return &BrokerFlusher{store: s, table: table, refDate: refDate}
}

func (f *BrokerFlusher) Family() model.Family { return model.FamilyBroker }

func (f *BrokerFlusher) Flush(ctx context.Context, skew time.Duration, final bool) (int, error) {
	latest, err := f.store.LatestBrokers(ctx, f.refDate)
	if err != nil {
		return 0, fmt.Errorf("load latest brokers: %w", err)
	}

	var rows []store.BrokerRow
	for _, key := range f.table.Keys() {
		b, _ := f.table.Load(key)
		if !b.Active {
			continue
		}
		if prev, ok := latest[key]; ok && prev.Volume == b.Volume && prev.VWAP == b.VWAP {
			continue
		}
		rows = append(rows, store.BrokerRow{
			Key:         key,
			At:          stamp(b.UpdatedAt, skew, final),
			Volume:      b.Volume,
			VWAP:        b.VWAP,
			Provisional: !final,
		})
	}

	if len(rows) == 0 {
		return 0, nil
	}
	if err := f.store.InsertBrokers(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (f *BrokerFlusher) Finalize(ctx context.Context, skew time.Duration) (int64, error) {
	return f.store.Finalize(ctx, model.FamilyBroker, skew)
}

func (f *BrokerFlusher) Purge(ctx context.Context) (int64, error) {
	return f.store.Purge(ctx, model.FamilyBroker)
}
