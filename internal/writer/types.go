package writer

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/rtd-loader/internal/model"
	"github.com/rickgao/rtd-loader/internal/store"
)

// Flush interval bounds.
const (
	DefaultFlushInterval = 10 * time.Second
	MinFlushInterval     = 5 * time.Second
)

// ErrCutoffReached is returned by a Flusher once the session cutoff time
// has passed. The writer stops flushing and signals the session.
var ErrCutoffReached = errors.New("session cutoff time reached")

// Config contains configuration for a writer.
type Config struct {
	// FlushInterval is the time between the end of one flush and the start
	// of the next. Values below the floor are raised to it.
	FlushInterval time.Duration

	// MinFlushInterval is the floor. Zero selects MinFlushInterval.
	MinFlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{FlushInterval: DefaultFlushInterval}
}

// interval returns the effective flush interval.
func (c Config) interval() time.Duration {
	floor := c.MinFlushInterval
	if floor <= 0 {
		floor = MinFlushInterval
	}
	d := c.FlushInterval
	if d <= 0 {
		d = DefaultFlushInterval
	}
	return max(d, floor)
}

// Stats tracks writer performance.
type Stats struct {
	Flushes   int64 // Successful cycles
	Inserts   int64 // Rows inserted
	Errors    int64 // Failed cycles
	Finalized int64 // Provisional rows rewritten
	Purged    int64 // Provisional rows deleted
}

// Flusher computes and persists the deltas of one family.
type Flusher interface {
	Family() model.Family

	// Flush inserts the changed keys and returns the number of rows. With
	// final set, timestamps are shifted by -skew and rows are final;
	// otherwise they are provisional.
	Flush(ctx context.Context, skew time.Duration, final bool) (int, error)

	// Finalize rewrites the provisional rows.
	Finalize(ctx context.Context, skew time.Duration) (int64, error)

	// Purge deletes the provisional rows.
	Purge(ctx context.Context) (int64, error)
}

// Provisional row maintenance shared by every family store.
type Finalizer interface {
	Finalize(ctx context.Context, family model.Family, skew time.Duration) (int64, error)
	Purge(ctx context.Context, family model.Family) (int64, error)
}

// QuoteStore persists quote rows.
type QuoteStore interface {
	Finalizer
	LatestQuotes(ctx context.Context, day time.Time) (map[string]model.QuoteState, error)
	InsertQuotes(ctx context.Context, rows []store.QuoteRow) error
}

// BookStore persists book rows.
type BookStore interface {
	Finalizer
	LatestBooks(ctx context.Context, day time.Time) (map[string][]model.BookLevel, error)
	InsertBooks(ctx context.Context, rows []store.BookRow) error
}

// BrokerStore persists broker ranking rows.
type BrokerStore interface {
	Finalizer
	LatestBrokers(ctx context.Context, day time.Time) (map[model.BrokerKey]model.BrokerBalance, error)
	InsertBrokers(ctx context.Context, rows []store.BrokerRow) error
}

// stamp converts a capture time to the persisted timestamp.
func stamp(captured time.Time, skew time.Duration, final bool) time.Time {
	if !final {
		return captured
	}
	return captured.Add(-skew)
}
