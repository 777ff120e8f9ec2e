package clock

import (
	"sync"
	"time"
)

// Skew is a single-assignment clock offset. The first successful Set wins;
// later calibrations are ignored so finalized rows are never corrected twice.
type Skew struct {
	mu    sync.RWMutex
	value time.Duration
	known bool
	ready chan struct{}
}

// NewSkew returns an unset skew.
func NewSkew() *Skew {
	return &Skew{ready: make(chan struct{})}
}

// Set assigns the skew. Returns false if it was already set.
func (s *Skew) Set(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.known {
		return false
	}
	s.value = d
	s.known = true
	close(s.ready)
	return true
}

// Value returns the skew and whether it has been set.
func (s *Skew) Value() (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.known
}

// Known reports whether the skew has been set.
func (s *Skew) Known() bool {
	_, ok := s.Value()
	return ok
}

// Ready returns a channel closed when the skew is set.
func (s *Skew) Ready() <-chan struct{} {
	return s.ready
}
