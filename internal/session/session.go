package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/rtd-loader/internal/clock"
	"github.com/rickgao/rtd-loader/internal/connection"
	"github.com/rickgao/rtd-loader/internal/decoder"
	"github.com/rickgao/rtd-loader/internal/instrument"
	"github.com/rickgao/rtd-loader/internal/loader"
	"github.com/rickgao/rtd-loader/internal/metrics"
	"github.com/rickgao/rtd-loader/internal/model"
	"github.com/rickgao/rtd-loader/internal/writer"
)

// Errors
var (
	ErrNoFamilies     = errors.New("no record family enabled")
	ErrAlreadyRunning = errors.New("session already running")
)

// errShutdownTime ends Run without an error.
var errShutdownTime = errors.New("shutdown time reached")

// Defaults
const (
	DefaultStopTimeout = 30 * time.Second
	DefaultEventBuffer = 256
)

// Store is the persistence the three family writers need. *store.PG
// satisfies it.
type Store interface {
	writer.QuoteStore
	writer.BookStore
	writer.BrokerStore
}

// Config describes one trading session.
type Config struct {
	// ID identifies the session in logs. Empty generates a UUID.
	ID string

	Instruments  []model.Instrument
	Brokers      []int
	ReferenceDay time.Time     // Midnight of the session day in the exchange zone
	Cutoff       time.Duration // Offset from midnight, 0 disables

	// Families maps each enabled family to its connection settings.
	Families  map[model.Family]connection.SupervisorConfig
	BookDepth int

	Writer      writer.Config
	StopTimeout time.Duration
	EventBuffer int
}

// Session runs the loaders of one trading session.
type Session struct {
	id       string
	cfg      Config
	registry *instrument.Registry
	skew     *clock.Skew
	loaders  []*loader.Loader
	metrics  *metrics.Metrics
	logger   *slog.Logger

	events  chan model.Event
	done    chan struct{} // Closed when the event loop exits
	dropped atomic.Int64
	running atomic.Bool

	mu     sync.Mutex
	counts map[model.EventKind]int64
}

// New builds the session and its loaders. Nothing connects until Run.
func New(cfg Config, st Store, m *metrics.Metrics, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Families) == 0 {
		return nil, ErrNoFamilies
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.BookDepth <= 0 {
		cfg.BookDepth = decoder.DefaultBookDepth
	}

	reg, err := instrument.NewRegistry(cfg.Instruments, cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("build instrument registry: %w", err)
	}

	s := &Session{
		id:       cfg.ID,
		cfg:      cfg,
		registry: reg,
		skew:     clock.NewSkew(),
		metrics:  m,
		logger: logger.With(
			"session", cfg.ID,
			"reference_date", cfg.ReferenceDay.Format(time.DateOnly),
		),
		events: make(chan model.Event, cfg.EventBuffer),
		done:   make(chan struct{}),
		counts: make(map[model.EventKind]int64),
	}

	for _, family := range model.Families() {
		supCfg, ok := cfg.Families[family]
		if !ok {
			continue
		}
		if supCfg.Name == "" {
			supCfg.Name = string(family)
		}
		dec, flusher := s.build(family, st)
		w := writer.New(cfg.Writer, flusher, s.skew, s.emit, m, s.logger)
		s.loaders = append(s.loaders, loader.New(supCfg, dec, w, s.skew, s.emit, m, s.logger))
	}

	if _, ok := cfg.Families[model.FamilyQuotes]; !ok {
		s.logger.Warn("quotes family disabled, clock skew will never be established; rows stay provisional")
	}
	return s, nil
}

// build creates the decoder and flusher of a family over a shared table.
func (s *Session) build(family model.Family, st Store) (decoder.Decoder, writer.Flusher) {
	day := s.cfg.ReferenceDay
	switch family {
	case model.FamilyQuotes:
		table := decoder.NewQuoteTable(s.registry)
		return decoder.NewQuotes(s.registry, table, s.skew, day, s.logger),
			writer.NewQuoteFlusher(st, table, day, s.cfg.Cutoff)
	case model.FamilyBook:
		table := decoder.NewBookTable(s.registry)
		return decoder.NewBook(s.registry, table, s.cfg.BookDepth, s.logger),
			writer.NewBookFlusher(st, table, day)
	default:
		table := decoder.NewBrokerTable(s.registry)
		return decoder.NewBroker(s.registry, table, s.logger),
			writer.NewBrokerFlusher(st, table, day)
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Skew returns the session clock skew.
func (s *Session) Skew() *clock.Skew {
	return s.skew
}

// SkewValue returns the session clock skew and whether it is established.
func (s *Session) SkewValue() (time.Duration, bool) {
	return s.skew.Value()
}

// Loaders returns the session's loaders in family order.
func (s *Session) Loaders() []*loader.Loader {
	return slices.Clone(s.loaders)
}

// States returns the connection state of every loader.
func (s *Session) States() map[model.Family]connection.State {
	out := make(map[model.Family]connection.State, len(s.loaders))
	for _, l := range s.loaders {
		out[l.Family()] = l.State()
	}
	return out
}

// EventCount returns how many events of a kind the session handled.
func (s *Session) EventCount(kind model.EventKind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[kind]
}

// Dropped returns how many recoverable events were dropped on a full buffer.
func (s *Session) Dropped() int64 {
	return s.dropped.Load()
}

// Run starts the loaders and blocks until ctx is cancelled, the shutdown
// time is reached, or a loader fails. The loaders are stopped and the
// unfinalized provisional rows purged before Run returns. A loader failure
// is returned; the other two endings return nil.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	s.logger.Info("session starting",
		"instruments", s.registry.Len(),
		"brokers", len(s.registry.Brokers()),
		"loaders", len(s.loaders),
	)

	loaderCtx, cancelLoaders := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelLoaders()

	var started []*loader.Loader
	var startErr error
	for _, l := range s.loaders {
		if err := l.Start(loaderCtx); err != nil {
			startErr = fmt.Errorf("start %s loader: %w", l.Family(), err)
			break
		}
		started = append(started, l)
	}

	g, gctx := errgroup.WithContext(ctx)
	if startErr == nil {
		g.Go(func() error {
			return s.eventLoop(gctx)
		})
	}
	err := g.Wait()
	close(s.done)

	s.teardown(started)
	cancelLoaders()

	switch {
	case startErr != nil:
		return startErr
	case errors.Is(err, errShutdownTime):
		return nil
	default:
		return err
	}
}

// eventLoop handles loader events until one ends the session.
func (s *Session) eventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session cancelled")
			return nil
		case ev := <-s.events:
			if err := s.handle(ev); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handle(ev model.Event) error {
	s.mu.Lock()
	s.counts[ev.Kind]++
	s.mu.Unlock()

	logger := s.logger.With("family", ev.Family)
	switch ev.Kind {
	case model.EventDecodeError:
		logger.Debug("decode error", "error", ev.Err)
	case model.EventWriteFailed:
		logger.Warn("write cycle failed", "error", ev.Err)
	case model.EventSkewCorrectionApplied:
		logger.Info("provisional rows finalized", "skew", ev.Skew, "rows", ev.Rows)
	case model.EventShutdownTimeReached:
		logger.Info("shutdown time reached", "at", ev.At)
		return errShutdownTime
	case model.EventConnectionFatal:
		logger.Error("loader failed", "error", ev.Err)
		return fmt.Errorf("%s loader: %w", ev.Family, ev.Err)
	}
	return nil
}

// emit delivers a loader event. Recoverable events are dropped when the
// buffer is full so the read path never blocks on them; the rest wait
// until the event loop takes them or has exited.
func (s *Session) emit(ev model.Event) {
	switch ev.Kind {
	case model.EventDecodeError, model.EventWriteFailed:
		select {
		case s.events <- ev:
		default:
			s.dropped.Add(1)
		}
	default:
		select {
		case s.events <- ev:
		case <-s.done:
		}
	}
}

// teardown stops the loaders concurrently, then purges what was never
// finalized.
func (s *Session) teardown(loaders []*loader.Loader) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	defer cancel()

	var stop errgroup.Group
	for _, l := range loaders {
		stop.Go(func() error {
			if err := l.Stop(ctx); err != nil {
				return fmt.Errorf("stop %s loader: %w", l.Family(), err)
			}
			return nil
		})
	}
	if err := stop.Wait(); err != nil {
		s.logger.Error("error stopping loaders", "error", err)
	}

	var purge errgroup.Group
	for _, l := range loaders {
		purge.Go(func() error {
			if _, err := l.Purge(ctx); err != nil {
				return fmt.Errorf("purge %s: %w", l.Family(), err)
			}
			return nil
		})
	}
	if err := purge.Wait(); err != nil {
		s.logger.Error("error purging provisional rows", "error", err)
	}

	skew, known := s.skew.Value()
	s.logger.Info("session stopped",
		"skew_known", known,
		"skew", skew,
		"dropped_events", s.dropped.Load(),
	)
}
