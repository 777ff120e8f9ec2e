package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/rickgao/rtd-loader/internal/decoder"
	"github.com/rickgao/rtd-loader/internal/model"
	"github.com/rickgao/rtd-loader/internal/store"
)

// BookFlusher writes depth snapshots that changed.
type BookFlusher struct {
	store   BookStore
	table   *decoder.BookTable
	refDate time.Time
}

// NewBookFlusher creates a book flusher.
func NewBookFlusher(s BookStore, table *decoder.BookTable, refDate time.Time) *BookFlusher {
	return &BookFlusher{store: s, table: table, refDate: refDate}
}

func (f *BookFlusher) Family() model.Family { return model.FamilyBook }

func (f *BookFlusher) Flush(ctx context.Context, skew time.Duration, final bool) (int, error) {
	latest, err := f.store.LatestBooks(ctx, f.refDate)
	if err != nil {
		return 0, fmt.Errorf("load latest books: %w", err)
	}

	var rows []store.BookRow
	for _, code := range f.table.Keys() {
		b, _ := f.table.Load(code)
		if !b.Active || len(b.Levels) == 0 {
			continue
		}
		if prev, ok := latest[code]; ok && model.BooksEqual(prev, b.Levels) {
			continue
		}
		rows = append(rows, store.BookRow{
			Code:        code,
			At:          stamp(b.UpdatedAt, skew, final),
			Levels:      b.Levels,
			Provisional: !final,
		})
	}

	if len(rows) == 0 {
		return 0, nil
	}
	if err := f.store.InsertBooks(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (f *BookFlusher) Finalize(ctx context.Context, skew time.Duration) (int64, error) {
	return f.store.Finalize(ctx, model.FamilyBook, skew)
}

func (f *BookFlusher) Purge(ctx context.Context) (int64, error) {
	return f.store.Purge(ctx, model.FamilyBook)
}
