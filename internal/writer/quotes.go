package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/rickgao/rtd-loader/internal/decoder"
	"github.com/rickgao/rtd-loader/internal/model"
	"github.com/rickgao/rtd-loader/internal/store"
)

// QuoteFlusher writes quote changes.
type QuoteFlusher struct {
	store   QuoteStore
	table   *decoder.QuoteTable
	refDate time.Time
	cutoff  time.Duration
	now     func() time.Time
}

// NewQuoteFlusher creates a quotes flusher. refDate is midnight of the
// reference day in the exchange zone. cutoff is the time of day after
// which the session ends; zero disables it.
func NewQuoteFlusher(s QuoteStore, table *decoder.QuoteTable, refDate time.Time, cutoff time.Duration) *QuoteFlusher {
	return &QuoteFlusher{
		store:   s,
		table:   table,
		refDate: refDate,
		cutoff:  cutoff,
		now:     time.Now,
	}
}

func (f *QuoteFlusher) Family() model.Family { return model.FamilyQuotes }

// Flush inserts one row per instrument whose quote differs from the latest
// persisted one. The cutoff is only evaluated on the exchange clock, that
// is once the skew is known.
func (f *QuoteFlusher) Flush(ctx context.Context, skew time.Duration, final bool) (int, error) {
	if final && f.cutoff > 0 {
		now := f.now().Add(-skew)
		if now.After(f.refDate.Add(f.cutoff)) {
			return 0, ErrCutoffReached
		}
	}

	latest, err := f.store.LatestQuotes(ctx, f.refDate)
	if err != nil {
		return 0, fmt.Errorf("load latest quotes: %w", err)
	}

	var rows []store.QuoteRow
	for _, code := range f.table.Keys() {
		q, _ := f.table.Load(code)
		if !q.Active || q.UpdatedAt.IsZero() {
			continue
		}
		if prev, ok := latest[code]; ok && prev.SameValues(q) {
			continue
		}
		rows = append(rows, store.QuoteRow{
			Code:        code,
			At:          stamp(q.UpdatedAt, skew, final),
			Quote:       q,
			Provisional: !final,
		})
	}

	if len(rows) == 0 {
		return 0, nil
	}
	if err := f.store.InsertQuotes(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (f *QuoteFlusher) Finalize(ctx context.Context, skew time.Duration) (int64, error) {
	return f.store.Finalize(ctx, model.FamilyQuotes, skew)
}

func (f *QuoteFlusher) Purge(ctx context.Context) (int64, error) {
	return f.store.Purge(ctx, model.FamilyQuotes)
}
