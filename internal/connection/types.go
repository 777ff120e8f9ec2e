package connection

import (
	"context"
	"errors"
	"net"
	"time"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrAlreadyStarted     = errors.New("supervisor already started")
	ErrStopped            = errors.New("supervisor stopped")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// TimestampedMessage wraps raw bytes with their receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw bytes of one socket read
	ReceivedAt time.Time // Local timestamp when Read returned
}

// Dialer opens network connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ClientConfig configures a TCP client.
type ClientConfig struct {
	Addr           string        // host:port of the RTD terminal
	DialTimeout    time.Duration // Connect timeout
	KeepAlive      time.Duration // TCP keep-alive period
	WriteTimeout   time.Duration // Write deadline for sends
	ReadBufferSize int           // Bytes per socket read
	BufferSize     int           // Message channel buffer size

	// Dialer overrides the default net.Dialer (tests).
	Dialer Dialer
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialTimeout:    10 * time.Second,
		KeepAlive:      5 * time.Second,
		WriteTimeout:   5 * time.Second,
		ReadBufferSize: 64 * 1024,
		BufferSize:     1024,
	}
}

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	Name                 string        // Used in logs (family name)
	Client               ClientConfig  // Per-connection settings
	ReconnectInterval    time.Duration // Fixed wait between attempts
	MaxReconnectAttempts int           // Consecutive attempts before giving up
}

// DefaultSupervisorConfig returns sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		Client:               DefaultClientConfig(),
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

// State is the supervisor lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribed
	StateClosed
	StateEnded
	StateReconnecting
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	case StateEnded:
		return "ended"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}
