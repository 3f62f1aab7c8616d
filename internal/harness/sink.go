// Package harness runs one guest script at a time on a supervised worker,
// captures everything it prints, and reduces every way the run can end to a
// single Outcome.
package harness

import (
	"bytes"
	"errors"
	"sync"
)

// ErrSinkDrained is returned by writes and drains on a sink that has already
// been drained.
var ErrSinkDrained = errors.New("output sink already drained")

// Sink is the append-only buffer a script writes to instead of the host's
// standard streams. A Sink belongs to exactly one execution and is drained
// exactly once when that execution ends.
//
// Writes are serialised, so stdout and stderr of a guest can share one Sink
// and still interleave in real write order.
type Sink struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	drained bool
}

// NewSink returns an empty, writable Sink.
func NewSink() *Sink {
	return &Sink{}
}

// Write implements io.Writer.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained {
		return 0, ErrSinkDrained
	}
	return s.buf.Write(p)
}

// WriteString implements io.StringWriter.
func (s *Sink) WriteString(text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained {
		return 0, ErrSinkDrained
	}
	return s.buf.WriteString(text)
}

// Len returns the number of bytes captured so far.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Drain returns everything written so far and seals the sink. Later writes
// are rejected, so the returned text is final even if a writer is still
// running.
func (s *Sink) Drain() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained {
		return "", ErrSinkDrained
	}
	s.drained = true
	out := s.buf.String()
	s.buf.Reset()
	return out, nil
}
