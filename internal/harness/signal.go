package harness

import "sync/atomic"

// Signal is a cooperative stop flag shared between a controller and the
// supervisor of one execution. It carries no data.
type Signal struct {
	raised atomic.Bool
}

// NewSignal returns a Signal in the "not raised" state.
func NewSignal() *Signal {
	return &Signal{}
}

// Raise marks the signal. Safe to call from any goroutine, any number of
// times.
func (s *Signal) Raise() {
	s.raised.Store(true)
}

// Raised reports whether Raise has been called since creation or the last
// Reset.
func (s *Signal) Raised() bool {
	return s.raised.Load()
}

// Reset returns the signal to "not raised". Call it only between
// executions, never while one is being supervised.
func (s *Signal) Reset() {
	s.raised.Store(false)
}
