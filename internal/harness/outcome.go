package harness

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies how an execution ended.
type Kind int

const (
	KindSuccess      Kind = iota // Script ran to completion
	KindCompileError             // Rejected before any worker started
	KindRuntimeError             // Script failed while running
	KindCancelled                // Stopped because its Signal was raised
	KindInterrupted              // The supervising wait itself was interrupted
	KindIOFailure                // Output capture failed
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindCompileError:
		return "compile error"
	case KindRuntimeError:
		return "runtime error"
	case KindCancelled:
		return "cancelled"
	case KindInterrupted:
		return "interrupted"
	case KindIOFailure:
		return "io failure"
	default:
		return "unknown"
	}
}

// Sentinel errors matched by *Error through errors.Is.
var (
	ErrCompile     = errors.New("script compile error")
	ErrRuntime     = errors.New("script runtime error")
	ErrCancelled   = errors.New("script cancelled")
	ErrInterrupted = errors.New("script supervision interrupted")
	ErrIO          = errors.New("script output failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindCompileError:
		return ErrCompile
	case KindRuntimeError:
		return ErrRuntime
	case KindCancelled:
		return ErrCancelled
	case KindInterrupted:
		return ErrInterrupted
	case KindIOFailure:
		return ErrIO
	default:
		return nil
	}
}

// Outcome is the single terminal result of one execution.
// Output holds everything the script wrote, including on failure.
type Outcome struct {
	Kind    Kind
	Output  string
	Message string // Human-readable; empty on success
	Cause   error  // Underlying error, if any

	Engine   string
	Script   string
	Duration time.Duration
}

// Success returns a successful Outcome carrying output.
func Success(output string) Outcome {
	return Outcome{Kind: KindSuccess, Output: output}
}

// Failure returns a failed Outcome of the given kind.
func Failure(kind Kind, message, output string, cause error) Outcome {
	return Outcome{Kind: kind, Message: message, Output: output, Cause: cause}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// Err returns nil for a success and an *Error otherwise.
func (o Outcome) Err() error {
	if o.OK() {
		return nil
	}
	return &Error{Kind: o.Kind, Message: o.Message, Output: o.Output, Err: o.Cause}
}

// Error is the error form of a failed Outcome.
type Error struct {
	Kind    Kind
	Message string
	Output  string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// CompileError is returned by Engine.Validate. Line and Column are 1-based;
// zero means unknown.
type CompileError struct {
	Message string
	Line    int
	Column  int
	Err     error
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d, col %d)", e.Message, e.Line, e.Column)
	}
	return e.Message
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Is makes every CompileError match ErrCompile.
func (e *CompileError) Is(target error) bool {
	return target == ErrCompile
}
