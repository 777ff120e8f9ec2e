package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/rtd-loader/internal/clock"
	"github.com/rickgao/rtd-loader/internal/decoder"
	"github.com/rickgao/rtd-loader/internal/instrument"
	"github.com/rickgao/rtd-loader/internal/model"
	"github.com/rickgao/rtd-loader/internal/store"
)

var (
	brt      = time.FixedZone("BRT", -3*60*60)
	refDate  = time.Date(2024, 1, 15, 0, 0, 0, 0, brt)
	captured = time.Date(2024, 1, 15, 13, 0, 5, 0, time.UTC)
)

// memStore is an in-memory implementation of every family store.
type memStore struct {
	mu sync.Mutex

	quotes  []store.QuoteRow
	books   []store.BookRow
	brokers []store.BrokerRow

	finalizeCalls int
	finalizeRows  int64
	finalizeErr   error
	purgeCalls    int
	insertErr     error
	latestErr     error
}

func (s *memStore) Finalize(_ context.Context, _ model.Family, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizeCalls++
	if s.finalizeErr != nil {
		return 0, s.finalizeErr
	}
	return s.finalizeRows, nil
}

func (s *memStore) Purge(_ context.Context, _ model.Family) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeCalls++
	var n int64
	kept := s.quotes[:0]
	for _, r := range s.quotes {
		if r.Provisional {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.quotes = kept
	return n, nil
}

func (s *memStore) LatestQuotes(context.Context, time.Time) (map[string]model.QuoteState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	out := make(map[string]model.QuoteState)
	for _, r := range s.quotes {
		out[r.Code] = r.Quote
	}
	return out, nil
}

func (s *memStore) InsertQuotes(_ context.Context, rows []store.QuoteRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.quotes = append(s.quotes, rows...)
	return nil
}

func (s *memStore) LatestBooks(context.Context, time.Time) (map[string][]model.BookLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]model.BookLevel)
	for _, r := range s.books {
		out[r.Code] = r.Levels
	}
	return out, nil
}

func (s *memStore) InsertBooks(_ context.Context, rows []store.BookRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = append(s.books, rows...)
	return nil
}

func (s *memStore) LatestBrokers(context.Context, time.Time) (map[model.BrokerKey]model.BrokerBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.BrokerKey]model.BrokerBalance)
	for _, r := range s.brokers {
		out[r.Key] = model.BrokerBalance{Volume: r.Volume, VWAP: r.VWAP}
	}
	return out, nil
}

func (s *memStore) InsertBrokers(_ context.Context, rows []store.BrokerRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brokers = append(s.brokers, rows...)
	return nil
}

func (s *memStore) counts() (quotes, finalizes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.quotes), s.finalizeCalls
}

// eventLog collects emitted events.
type eventLog struct {
	mu     sync.Mutex
	events []model.Event
}

func (l *eventLog) emit(ev model.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(kind model.EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func testRegistry(t *testing.T) *instrument.Registry {
	t.Helper()
	reg, err := instrument.NewRegistry([]model.Instrument{{Code: "WINZ24"}, {Code: "PETR4"}}, []int{3, 8})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func activeQuote(last float64) model.QuoteState {
	return model.QuoteState{Last: last, VWAP: last, State: model.MarketStateTrading, UpdatedAt: captured, Active: true}
}

// -----------------------------------------------------------------------------
// Flushers
// -----------------------------------------------------------------------------

func TestQuoteFlusher_InsertsOnlyChanges(t *testing.T) {
	table := decoder.NewQuoteTable(testRegistry(t))
	st := &memStore{}
	f := NewQuoteFlusher(st, table, refDate, 0)
	ctx := context.Background()

	table.Store("WINZ24", activeQuote(100))

	n, err := f.Flush(ctx, 0, false)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n != 1 {
		t.Errorf("first flush rows = %d, want 1", n)
	}

	// Same values, later capture: no row.
	q := activeQuote(100)
	q.UpdatedAt = captured.Add(time.Minute)
	table.Store("WINZ24", q)

	n, err = f.Flush(ctx, 0, false)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n != 0 {
		t.Errorf("unchanged flush rows = %d, want 0", n)
	}

	table.Store("WINZ24", activeQuote(101))
	n, _ = f.Flush(ctx, 0, false)
	if n != 1 {
		t.Errorf("changed flush rows = %d, want 1", n)
	}

	if len(st.quotes) != 2 {
		t.Errorf("stored rows = %d, want 2", len(st.quotes))
	}
}

func TestQuoteFlusher_Stamping(t *testing.T) {
	table := decoder.NewQuoteTable(testRegistry(t))
	ctx := context.Background()
	table.Store("WINZ24", activeQuote(100))

	st := &memStore{}
	f := NewQuoteFlusher(st, table, refDate, 0)
	if _, err := f.Flush(ctx, 2*time.Second, false); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	row := st.quotes[0]
	if !row.Provisional || !row.At.Equal(captured) {
		t.Errorf("provisional row = %v/%v, want true/%v", row.Provisional, row.At, captured)
	}

	st = &memStore{}
	f = NewQuoteFlusher(st, table, refDate, 0)
	if _, err := f.Flush(ctx, 2*time.Second, true); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	row = st.quotes[0]
	if row.Provisional || !row.At.Equal(captured.Add(-2*time.Second)) {
		t.Errorf("final row = %v/%v, want false/%v", row.Provisional, row.At, captured.Add(-2*time.Second))
	}
}

func TestQuoteFlusher_SkipsInactive(t *testing.T) {
	table := decoder.NewQuoteTable(testRegistry(t))
	st := &memStore{}
	f := NewQuoteFlusher(st, table, refDate, 0)

	n, err := f.Flush(context.Background(), 0, false)
	if err != nil || n != 0 {
		t.Errorf("Flush() = %d, %v, want 0, nil", n, err)
	}
}

func TestQuoteFlusher_Cutoff(t *testing.T) {
	table := decoder.NewQuoteTable(testRegistry(t))
	table.Store("WINZ24", activeQuote(100))
	st := &memStore{}

	f := NewQuoteFlusher(st, table, refDate, 17*time.Hour+30*time.Minute)
	f.now = func() time.Time { return time.Date(2024, 1, 15, 17, 31, 0, 0, brt) }

	// Unknown skew: the local clock is not trusted for the cutoff.
	if _, err := f.Flush(context.Background(), 0, false); err != nil {
		t.Errorf("provisional Flush() error = %v, want nil", err)
	}

	if _, err := f.Flush(context.Background(), 0, true); !errors.Is(err, ErrCutoffReached) {
		t.Errorf("Flush() error = %v, want %v", err, ErrCutoffReached)
	}

	// Local clock 2 minutes ahead: exchange time is 17:29.
	if _, err := f.Flush(context.Background(), 2*time.Minute, true); err != nil {
		t.Errorf("Flush() with skew error = %v, want nil", err)
	}
}

func TestQuoteFlusher_LoadError(t *testing.T) {
	table := decoder.NewQuoteTable(testRegistry(t))
	table.Store("WINZ24", activeQuote(100))
	st := &memStore{latestErr: errors.New("timeout")}

	f := NewQuoteFlusher(st, table, refDate, 0)
	if _, err := f.Flush(context.Background(), 0, false); err == nil {
		t.Error("expected error")
	}
}

func TestBookFlusher_LevelComparison(t *testing.T) {
	table := decoder.NewBookTable(testRegistry(t))
	st := &memStore{}
	f := NewBookFlusher(st, table, refDate)
	ctx := context.Background()

	levels := []model.BookLevel{{BuyOffers: 1, BuyVolume: 5, BuyLevel: 10}, {SellOffers: 2, SellVolume: 3, SellLevel: 11}}
	table.Store("PETR4", model.BookState{Levels: levels, UpdatedAt: captured, Active: true})

	if n, _ := f.Flush(ctx, 0, false); n != 1 {
		t.Errorf("first flush rows = %d, want 1", n)
	}

	same := append([]model.BookLevel(nil), levels...)
	table.Store("PETR4", model.BookState{Levels: same, UpdatedAt: captured.Add(time.Second), Active: true})
	if n, _ := f.Flush(ctx, 0, false); n != 0 {
		t.Errorf("unchanged flush rows = %d, want 0", n)
	}

	changed := append([]model.BookLevel(nil), levels...)
	changed[1].SellVolume = 4
	table.Store("PETR4", model.BookState{Levels: changed, UpdatedAt: captured.Add(2 * time.Second), Active: true})
	if n, _ := f.Flush(ctx, 0, false); n != 1 {
		t.Errorf("changed flush rows = %d, want 1", n)
	}
}

func TestBrokerFlusher_PerPairChanges(t *testing.T) {
	table := decoder.NewBrokerTable(testRegistry(t))
	st := &memStore{}
	f := NewBrokerFlusher(st, table, refDate)
	ctx := context.Background()

	k1 := model.BrokerKey{Code: "WINZ24", BrokerID: 3}
	k2 := model.BrokerKey{Code: "PETR4", BrokerID: 8}
	table.Store(k1, model.BrokerBalance{Volume: 150, VWAP: 12.5, UpdatedAt: captured, Active: true})
	table.Store(k2, model.BrokerBalance{Volume: -10, UpdatedAt: captured, Active: true})

	if n, _ := f.Flush(ctx, 0, false); n != 2 {
		t.Errorf("first flush rows = %d, want 2", n)
	}

	table.Store(k2, model.BrokerBalance{Volume: -20, UpdatedAt: captured, Active: true})
	if n, _ := f.Flush(ctx, 0, false); n != 1 {
		t.Errorf("second flush rows = %d, want 1", n)
	}

	last := st.brokers[len(st.brokers)-1]
	if last.Key != k2 || last.Volume != -20 {
		t.Errorf("last row = %+v, want %v volume -20", last, k2)
	}
}

// -----------------------------------------------------------------------------
// Writer
// -----------------------------------------------------------------------------

func newTestWriter(t *testing.T, st *memStore, skew *clock.Skew, events *eventLog) (*Writer, *decoder.QuoteTable) {
	t.Helper()
	table := decoder.NewQuoteTable(testRegistry(t))
	f := NewQuoteFlusher(st, table, refDate, 0)
	return New(DefaultConfig(), f, skew, events.emit, nil, nil), table
}

func TestWriter_FinalizesOnce(t *testing.T) {
	st := &memStore{finalizeRows: 4}
	skew := clock.NewSkew()
	events := &eventLog{}
	w, table := newTestWriter(t, st, skew, events)
	ctx := context.Background()

	table.Store("WINZ24", activeQuote(100))
	w.cycle(ctx)
	if st.finalizeCalls != 0 {
		t.Errorf("finalize before skew: calls = %d, want 0", st.finalizeCalls)
	}

	skew.Set(time.Second)
	skew.Set(5 * time.Second) // ignored
	w.cycle(ctx)
	w.cycle(ctx)
	w.finalize(ctx, time.Second)

	if st.finalizeCalls != 1 {
		t.Errorf("finalize calls = %d, want 1", st.finalizeCalls)
	}
	if got := events.count(model.EventSkewCorrectionApplied); got != 1 {
		t.Errorf("skew correction events = %d, want 1", got)
	}
	if w.Stats().Finalized != 4 {
		t.Errorf("Finalized = %d, want 4", w.Stats().Finalized)
	}
}

func TestWriter_FinalizeRetriedAfterFailure(t *testing.T) {
	st := &memStore{finalizeErr: errors.New("deadlock")}
	skew := clock.NewSkew()
	skew.Set(time.Second)
	events := &eventLog{}
	w, _ := newTestWriter(t, st, skew, events)
	ctx := context.Background()

	w.cycle(ctx)
	if w.finalized {
		t.Error("finalized after failure")
	}
	if events.count(model.EventWriteFailed) != 1 {
		t.Errorf("write failed events = %d, want 1", events.count(model.EventWriteFailed))
	}

	st.mu.Lock()
	st.finalizeErr = nil
	st.mu.Unlock()

	w.cycle(ctx)
	w.cycle(ctx)
	if st.finalizeCalls != 2 {
		t.Errorf("finalize calls = %d, want 2", st.finalizeCalls)
	}
}

func TestWriter_WriteFailureIsRecoverable(t *testing.T) {
	st := &memStore{insertErr: errors.New("disk full")}
	events := &eventLog{}
	w, table := newTestWriter(t, st, clock.NewSkew(), events)
	ctx := context.Background()

	table.Store("WINZ24", activeQuote(100))
	w.cycle(ctx)

	if got := w.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
	if got := events.count(model.EventWriteFailed); got != 1 {
		t.Errorf("write failed events = %d, want 1", got)
	}

	st.mu.Lock()
	st.insertErr = nil
	st.mu.Unlock()

	w.cycle(ctx)
	stats := w.Stats()
	if stats.Flushes != 1 || stats.Inserts != 1 {
		t.Errorf("Stats = %+v, want 1 flush with 1 insert", stats)
	}
}

func TestWriter_CutoffHaltsFlushing(t *testing.T) {
	st := &memStore{}
	skew := clock.NewSkew()
	skew.Set(0)
	events := &eventLog{}

	table := decoder.NewQuoteTable(testRegistry(t))
	table.Store("WINZ24", activeQuote(100))
	f := NewQuoteFlusher(st, table, refDate, time.Hour)
	f.now = func() time.Time { return refDate.Add(2 * time.Hour) }
	w := New(DefaultConfig(), f, skew, events.emit, nil, nil)

	w.cycle(context.Background())
	w.cycle(context.Background())

	if got := events.count(model.EventShutdownTimeReached); got != 1 {
		t.Errorf("shutdown events = %d, want 1", got)
	}
	if len(st.quotes) != 0 {
		t.Errorf("rows = %d, want 0", len(st.quotes))
	}
}

func TestWriter_ReadyTriggersFinalize(t *testing.T) {
	st := &memStore{}
	skew := clock.NewSkew()
	events := &eventLog{}
	w, _ := newTestWriter(t, st, skew, events)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	skew.Set(time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, finalizes := st.counts(); finalizes == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("finalize not triggered by Ready()")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, finalizes := st.counts(); finalizes != 1 {
		t.Errorf("finalize calls = %d, want 1", finalizes)
	}
}

func TestWriter_StopFlushesWhenCalibrated(t *testing.T) {
	st := &memStore{}
	skew := clock.NewSkew()
	skew.Set(time.Second)
	w, table := newTestWriter(t, st, skew, &eventLog{})

	table.Store("WINZ24", activeQuote(100))
	w.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Stop(ctx)

	if quotes, _ := st.counts(); quotes != 1 {
		t.Errorf("rows after Stop = %d, want 1", quotes)
	}
	if st.quotes[0].Provisional {
		t.Error("final flush wrote a provisional row")
	}
}

func TestWriter_Purge(t *testing.T) {
	st := &memStore{}
	w, table := newTestWriter(t, st, clock.NewSkew(), &eventLog{})
	table.Store("WINZ24", activeQuote(100))
	w.cycle(context.Background())

	n, err := w.Purge(context.Background())
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 || len(st.quotes) != 0 {
		t.Errorf("Purge() = %d, remaining %d, want 1, 0", n, len(st.quotes))
	}
}

func TestConfig_Interval(t *testing.T) {
	tests := []struct {
		in    time.Duration
		floor time.Duration
		want  time.Duration
	}{
		{0, 0, DefaultFlushInterval},
		{time.Second, 0, MinFlushInterval},
		{30 * time.Second, 0, 30 * time.Second},
		{2 * time.Second, time.Second, 2 * time.Second},
		{time.Second, 3 * time.Second, 3 * time.Second},
	}
	for _, tt := range tests {
		cfg := Config{FlushInterval: tt.in, MinFlushInterval: tt.floor}
		if got := cfg.interval(); got != tt.want {
			t.Errorf("interval(%v, floor %v) = %v, want %v", tt.in, tt.floor, got, tt.want)
		}
	}
}
