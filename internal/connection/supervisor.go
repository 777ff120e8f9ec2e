package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Handler receives the supervisor's connection callbacks. All callbacks run
// on the supervisor goroutine.
type Handler interface {
	// Subscription returns the command written after every connect.
	Subscription() []byte

	// OnConnected is called before the subscription is written.
	OnConnected()

	// OnSubscribed is called once the subscription has been written.
	OnSubscribed()

	// OnMessage is called for every raw read, in order.
	OnMessage(msg TimestampedMessage)
}

// StateObserver is optionally implemented by a Handler to follow state
// transitions.
type StateObserver interface {
	OnStateChange(from, to State)
}

// ClientFactory creates the client for one connection attempt.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// Supervisor keeps one subscribed connection alive.
type Supervisor struct {
	cfg       SupervisorConfig
	handler   Handler
	logger    *slog.Logger
	newClient ClientFactory
	backoff   *backoff.ConstantBackOff

	state      atomic.Int32
	attempts   atomic.Int32
	generation atomic.Int64

	fatal    chan error
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  atomic.Bool
}

// NewSupervisor creates a supervisor in the idle state.
func NewSupervisor(cfg SupervisorConfig, handler Handler, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultSupervisorConfig().ReconnectInterval
	}

	return &Supervisor{
		cfg:       cfg,
		handler:   handler,
		logger:    logger.With("component", "supervisor", "name", cfg.Name, "addr", cfg.Client.Addr),
		newClient: NewClient,
		backoff:   backoff.NewConstantBackOff(cfg.ReconnectInterval),
		fatal:     make(chan error, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// SetClientFactory replaces the client constructor. Must be called before
// Start.
func (s *Supervisor) SetClientFactory(f ClientFactory) {
	s.newClient = f
}

// Start launches the supervisor goroutine.
func (s *Supervisor) Start(ctx context.Context) error {
	select {
	case <-s.stop:
		return ErrStopped
	default:
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	go s.run(ctx)
	return nil
}

// Stop cancels any pending reconnect, closes the socket and waits for the
// supervisor goroutine to exit. Stop is irreversible.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})

	if !s.started.Load() {
		s.setState(StateStopped)
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fatal delivers at most one unrecoverable error.
func (s *Supervisor) Fatal() <-chan error {
	return s.fatal
}

// Done is closed when the supervisor goroutine exits.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// State returns the current state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Attempts returns the consecutive reconnect attempts since the last
// successful connect.
func (s *Supervisor) Attempts() int {
	return int(s.attempts.Load())
}

// termination is how a connection generation ended.
type termination int

const (
	termStopped termination = iota
	termClosed
	termEnded
	termFailed
)

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	for {
		term, err := s.connectOnce(ctx)
		switch term {
		case termStopped:
			s.setState(StateStopped)
			return
		case termFailed:
			s.fail(err)
			return
		case termEnded:
			s.setState(StateEnded)
		case termClosed:
			s.setState(StateClosed)
		}

		attempt := int(s.attempts.Add(1))
		if attempt > s.cfg.MaxReconnectAttempts {
			s.fail(fmt.Errorf("%w: %d attempts", ErrReconnectExhausted, s.cfg.MaxReconnectAttempts))
			return
		}

		s.setState(StateReconnecting)
		wait := s.backoff.NextBackOff()
		s.logger.Warn("connection lost, reconnecting",
			"attempt", attempt,
			"max_attempts", s.cfg.MaxReconnectAttempts,
			"wait", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-s.stop:
			timer.Stop()
			s.setState(StateStopped)
			return
		case <-ctx.Done():
			timer.Stop()
			s.setState(StateStopped)
			return
		case <-timer.C:
		}
	}
}

// connectOnce runs one connection generation to its end.
func (s *Supervisor) connectOnce(ctx context.Context) (termination, error) {
	if s.stopping(ctx) {
		return termStopped, nil
	}

	gen := s.generation.Add(1)
	s.setState(StateConnecting)
	logger := s.logger.With("gen", gen)

	// Dial is cancelled by Stop as well as by ctx.
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-dialCtx.Done():
		}
	}()

	client := s.newClient(s.cfg.Client, logger)
	defer client.Close()

	if err := client.Connect(dialCtx); err != nil {
		if s.stopping(ctx) {
			return termStopped, nil
		}
		if isRefused(err) {
			logger.Debug("connection refused", "error", err)
			return termClosed, nil
		}
		return termFailed, fmt.Errorf("connect %s: %w", s.cfg.Client.Addr, err)
	}

	s.attempts.Store(0)
	s.backoff.Reset()
	s.handler.OnConnected()

	if err := client.Send(s.handler.Subscription()); err != nil {
		if s.stopping(ctx) {
			return termStopped, nil
		}
		return termFailed, fmt.Errorf("subscribe: %w", err)
	}

	s.setState(StateSubscribed)
	s.handler.OnSubscribed()
	logger.Info("subscribed")

	return s.consume(ctx, client, logger)
}

// consume forwards reads until the connection ends.
func (s *Supervisor) consume(ctx context.Context, client Client, logger *slog.Logger) (termination, error) {
	for {
		select {
		case <-s.stop:
			return termStopped, nil
		case <-ctx.Done():
			return termStopped, nil
		case msg := <-client.Messages():
			s.handler.OnMessage(msg)
		case err := <-client.Errors():
			s.drain(client)
			switch {
			case errors.Is(err, io.EOF):
				logger.Info("connection ended by peer")
				return termEnded, nil
			case errors.Is(err, net.ErrClosed):
				logger.Info("connection closed")
				return termClosed, nil
			default:
				return termFailed, fmt.Errorf("read: %w", err)
			}
		}
	}
}

// drain delivers reads that were queued before the terminal error.
func (s *Supervisor) drain(client Client) {
	for {
		select {
		case msg := <-client.Messages():
			s.handler.OnMessage(msg)
		default:
			return
		}
	}
}

func (s *Supervisor) fail(err error) {
	s.setState(StateFailed)
	s.logger.Error("connection failed", "error", err)
	select {
	case s.fatal <- err:
	default:
	}
}

func (s *Supervisor) stopping(ctx context.Context) bool {
	select {
	case <-s.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Supervisor) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	if obs, ok := s.handler.(StateObserver); ok {
		obs.OnStateChange(from, to)
	}
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
