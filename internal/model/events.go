package model

import (
	"fmt"
	"time"
)

// EventKind classifies events surfaced by loaders to the owning session.
type EventKind int

const (
	// EventDecodeError is a recoverable, record-local decode failure.
	EventDecodeError EventKind = iota + 1

	// EventConnectionFatal means the loader gave up on its connection.
	EventConnectionFatal

	// EventSkewCorrectionApplied reports the one-time provisional rewrite.
	EventSkewCorrectionApplied

	// EventShutdownTimeReached asks the session to begin shutdown.
	EventShutdownTimeReached

	// EventWriteFailed is a recoverable, per-cycle persistence failure.
	EventWriteFailed
)

func (k EventKind) String() string {
	switch k {
	case EventDecodeError:
		return "decode_error"
	case EventConnectionFatal:
		return "connection_fatal"
	case EventSkewCorrectionApplied:
		return "skew_correction_applied"
	case EventShutdownTimeReached:
		return "shutdown_time_reached"
	case EventWriteFailed:
		return "write_failed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a notification from a loader to its session.
type Event struct {
	Kind   EventKind
	Family Family
	At     time.Time
	Err    error         // Set for error kinds
	Skew   time.Duration // Set for EventSkewCorrectionApplied
	Rows   int64         // Rows rewritten for EventSkewCorrectionApplied
}

// Fatal reports whether the event ends the loader that emitted it.
func (e Event) Fatal() bool {
	return e.Kind == EventConnectionFatal
}
