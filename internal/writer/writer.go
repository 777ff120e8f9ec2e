package writer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/rtd-loader/internal/clock"
	"github.com/rickgao/rtd-loader/internal/metrics"
	"github.com/rickgao/rtd-loader/internal/model"
)

// Writer runs the periodic flush of one family.
type Writer struct {
	cfg     Config
	flusher Flusher
	skew    *clock.Skew
	emit    func(model.Event)
	metrics *metrics.Metrics
	logger  *slog.Logger

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	running   bool

	// Owned by the flush goroutine, then by Stop/Purge once it exits.
	finalized bool
	halted    bool

	mu    sync.Mutex
	stats Stats
}

// New creates a writer. emit receives the writer's events and may be nil.
func New(
	cfg Config,
	flusher Flusher,
	skew *clock.Skew,
	emit func(model.Event),
	m *metrics.Metrics,
	logger *slog.Logger,
) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if emit == nil {
		emit = func(model.Event) {}
	}
	return &Writer{
		cfg:     cfg,
		flusher: flusher,
		skew:    skew,
		emit:    emit,
		metrics: m,
		logger:  logger.With("component", "writer", "family", flusher.Family()),
	}
}

// Start launches the flush loop. Calls after the first are no-ops.
func (w *Writer) Start(ctx context.Context) error {
	w.startOnce.Do(func() {
		w.ctx, w.cancel = context.WithCancel(ctx)
		w.running = true

		w.wg.Add(1)
		go w.flushLoop()

		w.logger.Info("writer started", "flush_interval", w.cfg.interval())
	})
	return nil
}

// Stop ends the flush loop and runs a last cycle when the skew is known.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping writer")

	w.startOnce.Do(func() {}) // a writer never started stays stopped
	if w.cancel != nil {
		w.cancel()
	}

	// Wait for the loop
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("writer stop timed out")
		return ctx.Err()
	}

	// Final flush
	if w.running && w.skew.Known() {
		w.cycle(ctx)
	}

	w.logger.Info("writer stopped", "flushes", w.Stats().Flushes, "inserts", w.Stats().Inserts)
	return nil
}

// Purge deletes the provisional rows of the reference day. Call after Stop.
func (w *Writer) Purge(ctx context.Context) (int64, error) {
	n, err := w.flusher.Purge(ctx)
	if err != nil {
		w.logger.Error("purge provisional rows failed", "error", err)
		return 0, err
	}

	w.mu.Lock()
	w.stats.Purged += n
	w.mu.Unlock()
	w.metrics.AddPurged(string(w.flusher.Family()), n)

	if n > 0 {
		w.logger.Info("purged provisional rows", "rows", n)
	}
	return n, nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// flushLoop runs cycles until cancelled. The timer is re-armed after each
// cycle so cycles never overlap.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	timer := time.NewTimer(w.cfg.interval())
	defer timer.Stop()

	ready := w.skew.Ready()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ready:
			ready = nil
			if d, ok := w.skew.Value(); ok {
				w.finalize(w.ctx, d)
			}
		case <-timer.C:
			w.cycle(w.ctx)
			timer.Reset(w.cfg.interval())
		}
	}
}

// cycle runs one finalize-if-needed + flush.
func (w *Writer) cycle(ctx context.Context) {
	if w.halted {
		return
	}

	skew, known := w.skew.Value()
	if known && !w.finalized {
		w.finalize(ctx, skew)
	}

	start := time.Now()
	n, err := w.flusher.Flush(ctx, skew, known)
	if errors.Is(err, ErrCutoffReached) {
		w.halted = true
		w.logger.Info("cutoff time reached, flushing stopped")
		w.emit(model.Event{
			Kind:   model.EventShutdownTimeReached,
			Family: w.flusher.Family(),
			At:     time.Now(),
		})
		return
	}
	w.metrics.ObserveFlush(string(w.flusher.Family()), n, time.Since(start), err)

	if err != nil {
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()

		w.logger.Error("flush failed", "error", err)
		w.emit(model.Event{
			Kind:   model.EventWriteFailed,
			Family: w.flusher.Family(),
			At:     time.Now(),
			Err:    err,
		})
		return
	}

	w.mu.Lock()
	w.stats.Flushes++
	w.stats.Inserts += int64(n)
	w.mu.Unlock()

	if n > 0 {
		w.logger.Debug("flushed changes",
			"rows", n,
			"final", known,
			"duration", time.Since(start),
		)
	}
}

// finalize rewrites the provisional rows once. A failure is retried on the
// next cycle.
func (w *Writer) finalize(ctx context.Context, skew time.Duration) {
	if w.finalized {
		return
	}

	n, err := w.flusher.Finalize(ctx, skew)
	if err != nil {
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()

		w.logger.Error("finalize provisional rows failed", "error", err)
		w.emit(model.Event{
			Kind:   model.EventWriteFailed,
			Family: w.flusher.Family(),
			At:     time.Now(),
			Err:    err,
		})
		return
	}
	w.finalized = true

	w.mu.Lock()
	w.stats.Finalized += n
	w.mu.Unlock()
	w.metrics.AddFinalized(string(w.flusher.Family()), n)

	w.logger.Info("skew correction applied", "rows", n, "skew", skew)
	w.emit(model.Event{
		Kind:   model.EventSkewCorrectionApplied,
		Family: w.flusher.Family(),
		At:     time.Now(),
		Skew:   skew,
		Rows:   n,
	})
}
