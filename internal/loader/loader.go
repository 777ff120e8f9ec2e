package loader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/rtd-loader/internal/clock"
	"github.com/rickgao/rtd-loader/internal/connection"
	"github.com/rickgao/rtd-loader/internal/decoder"
	"github.com/rickgao/rtd-loader/internal/frame"
	"github.com/rickgao/rtd-loader/internal/metrics"
	"github.com/rickgao/rtd-loader/internal/model"
	"github.com/rickgao/rtd-loader/internal/writer"
)

// Loader runs one family.
type Loader struct {
	decoder     decoder.Decoder
	reassembler *frame.Reassembler
	supervisor  *connection.Supervisor
	writer      *writer.Writer
	skew        *clock.Skew
	calibrate   bool
	emit        func(model.Event)
	metrics     *metrics.Metrics
	logger      *slog.Logger

	ctx         context.Context
	writerStart sync.Once
	wg          sync.WaitGroup
}

// New creates a loader. emit receives every event of the family and may be
// called from several goroutines.
func New(
	cfg connection.SupervisorConfig,
	dec decoder.Decoder,
	w *writer.Writer,
	skew *clock.Skew,
	emit func(model.Event),
	m *metrics.Metrics,
	logger *slog.Logger,
) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if emit == nil {
		emit = func(model.Event) {}
	}
	if cfg.Name == "" {
		cfg.Name = string(dec.Family())
	}

	l := &Loader{
		decoder:     dec,
		reassembler: frame.NewReassembler(dec.Framing()),
		writer:      w,
		skew:        skew,
		calibrate:   dec.Family() == model.FamilyQuotes,
		emit:        emit,
		metrics:     m,
		logger:      logger.With("component", "loader", "family", dec.Family()),
	}
	l.supervisor = connection.NewSupervisor(cfg, l, logger)
	return l
}

// Family returns the loader's record family.
func (l *Loader) Family() model.Family {
	return l.decoder.Family()
}

// State returns the connection state.
func (l *Loader) State() connection.State {
	return l.supervisor.State()
}

// Writer returns the family writer.
func (l *Loader) Writer() *writer.Writer {
	return l.writer
}

// Start connects. The writer starts on the first successful subscription.
func (l *Loader) Start(ctx context.Context) error {
	l.ctx = ctx
	if err := l.supervisor.Start(ctx); err != nil {
		return err
	}

	l.wg.Add(1)
	go l.watchFatal()

	l.logger.Info("loader started")
	return nil
}

// Stop disconnects and stops the writer.
func (l *Loader) Stop(ctx context.Context) error {
	l.logger.Info("stopping loader")

	errSup := l.supervisor.Stop(ctx)
	l.wg.Wait()

	errWriter := l.writer.Stop(ctx)
	return errors.Join(errSup, errWriter)
}

// Purge deletes the provisional rows left by this loader.
func (l *Loader) Purge(ctx context.Context) (int64, error) {
	return l.writer.Purge(ctx)
}

// watchFatal forwards the supervisor's fatal error as an event.
func (l *Loader) watchFatal() {
	defer l.wg.Done()

	select {
	case err := <-l.supervisor.Fatal():
		l.emitFatal(err)
	case <-l.supervisor.Done():
		// fail() sends before Done closes
		select {
		case err := <-l.supervisor.Fatal():
			l.emitFatal(err)
		default:
		}
	}
}

func (l *Loader) emitFatal(err error) {
	l.emit(model.Event{
		Kind:   model.EventConnectionFatal,
		Family: l.Family(),
		At:     time.Now(),
		Err:    err,
	})
}

// -----------------------------------------------------------------------------
// connection.Handler
// -----------------------------------------------------------------------------

func (l *Loader) Subscription() []byte {
	return []byte(l.decoder.Subscription())
}

// OnConnected drops any partial frame from the previous connection.
func (l *Loader) OnConnected() {
	l.reassembler.Reset()
}

func (l *Loader) OnSubscribed() {
	l.writerStart.Do(func() {
		ctx := l.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		l.writer.Start(ctx)
	})
}

func (l *Loader) OnMessage(msg connection.TimestampedMessage) {
	batch, ok := l.reassembler.Push(msg.Data)
	if !ok {
		return
	}

	res := l.decoder.Decode(batch, msg.ReceivedAt)
	l.metrics.ObserveBatch(string(l.Family()), res.Applied, res.Skipped, len(res.Errors))

	for _, err := range res.Errors {
		l.logger.Warn("decode error", "error", err)
		l.emit(model.Event{
			Kind:   model.EventDecodeError,
			Family: l.Family(),
			At:     msg.ReceivedAt,
			Err:    err,
		})
	}

	if l.calibrate && len(res.Candidates) > 0 && !l.skew.Known() {
		l.calibrateSkew(msg.ReceivedAt, res.Candidates)
	}
}

func (l *Loader) OnStateChange(from, to connection.State) {
	l.metrics.SetConnectionState(string(l.Family()), int(to))
	if to == connection.StateReconnecting {
		l.metrics.IncReconnects(string(l.Family()))
	}
	l.logger.Debug("connection state", "from", from, "to", to)
}

// calibrateSkew estimates the skew from one batch of exchange timestamps.
func (l *Loader) calibrateSkew(receivedAt time.Time, candidates []clock.Candidate) {
	est, ok := clock.EstimateSkew(receivedAt, candidates)
	for _, o := range est.Outliers {
		l.logger.Debug("clock candidate discarded", "code", o.Code, "at", o.At)
	}
	if !ok {
		return
	}
	if !l.skew.Set(est.Skew) {
		return
	}

	l.metrics.SetSkew(est.Skew)
	l.logger.Info("clock skew established",
		"skew", est.Skew,
		"inliers", len(est.Inliers),
		"outliers", len(est.Outliers),
	)
}
