package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeberg.org/sigterm-de/scriptbox/internal/logging"
)

const (
	// DefaultPollInterval is how often the supervisor checks the stop signal.
	DefaultPollInterval = 50 * time.Millisecond
	// DefaultStopGrace is how long a stopped worker gets to return before it
	// is abandoned.
	DefaultStopGrace = time.Second
)

// ErrConfiguration indicates an invalid or incomplete Config.
var ErrConfiguration = errors.New("harness configuration error")

// Config holds the settings shared by Supervisor and Harness.
type Config struct {
	// Engine runs the scripts. Required.
	Engine Engine

	// PollInterval is the delay between stop-signal checks. Zero selects
	// DefaultPollInterval; negative values are rejected.
	PollInterval time.Duration

	// StopGrace bounds the wait for a worker after a stop was requested.
	// Zero selects DefaultStopGrace; negative values are rejected.
	StopGrace time.Duration

	// MaxConcurrent caps simultaneous executions of one Harness.
	// Zero means unbounded. Ignored by Supervisor.
	MaxConcurrent int
}

// Validate reports every invalid field at once, wrapped in ErrConfiguration.
func (c *Config) Validate() error {
	var problems []string
	if c.Engine == nil {
		problems = append(problems, "missing Engine")
	}
	if c.PollInterval < 0 {
		problems = append(problems, fmt.Sprintf("PollInterval must be positive, got %v", c.PollInterval))
	}
	if c.StopGrace < 0 {
		problems = append(problems, fmt.Sprintf("StopGrace must be positive, got %v", c.StopGrace))
	}
	if c.MaxConcurrent < 0 {
		problems = append(problems, fmt.Sprintf("MaxConcurrent must not be negative, got %d", c.MaxConcurrent))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StopGrace == 0 {
		c.StopGrace = DefaultStopGrace
	}
}

// Supervisor runs one Unit on a dedicated worker goroutine and turns
// whatever happens into exactly one Outcome. It keeps no state between
// calls and is safe for concurrent use.
type Supervisor struct {
	cfg Config
}

// NewSupervisor validates cfg and applies defaults.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &Supervisor{cfg: cfg}, nil
}

type workerResult struct {
	value    string
	err      error
	panicked bool
}

// Supervise executes unit with binding, writing to sink, until the script
// returns, signal is raised, or ctx is done. The sink is drained exactly
// once before Supervise returns, on every path.
//
// Cancellation is cooperative. When signal is raised the worker's context
// is cancelled and the worker gets StopGrace to return; a worker that
// ignores the request is abandoned and keeps running in the background,
// but its later writes no longer reach the drained sink.
//
// When ctx ends first the outcome is KindInterrupted and ctx's error is
// kept as the outcome's cause, so callers still see context.Canceled or
// context.DeadlineExceeded through errors.Is.
func (s *Supervisor) Supervise(ctx context.Context, unit *Unit, binding Binding, sink *Sink, signal *Signal) (outcome Outcome) {
	if unit == nil {
		return Failure(KindCompileError, "no script unit to execute", "", ErrCompile)
	}
	if sink == nil {
		return Failure(KindIOFailure, "no output sink", "", ErrIO)
	}
	if signal == nil {
		signal = NewSignal()
	}

	start := time.Now()
	defer func() {
		outcome.Engine = unit.Engine
		outcome.Script = unit.Name
		outcome.Duration = time.Since(start)
		logging.Logf(logging.INFO, unit.Name, "finished engine=%s outcome=%q duration=%s",
			unit.Engine, outcome.Kind, outcome.Duration.Round(time.Millisecond))
	}()
	logging.Logf(logging.DEBUG, unit.Name, "starting engine=%s", unit.Engine)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()

	done := make(chan workerResult, 1)
	go s.work(workerCtx, unit, binding, sink, done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case res := <-done:
			if res.err != nil && ctx.Err() != nil {
				// The worker saw the caller's cancellation before we did.
				return interrupted(ctx, sink)
			}
			return s.completed(unit, sink, res)

		case <-ctx.Done():
			stopWorker()
			if _, finished := s.awaitStop(done); !finished {
				s.logAbandoned(unit)
			}
			return interrupted(ctx, sink)

		case <-ticker.C:
			if !signal.Raised() {
				continue
			}
			logging.Log(logging.INFO, unit.Name, "stop requested")
			stopWorker()
			res, finished := s.awaitStop(done)
			if finished && res.err == nil {
				// The script completed before the stop took effect.
				return s.completed(unit, sink, res)
			}
			if !finished {
				s.logAbandoned(unit)
				return seal(KindCancelled,
					fmt.Sprintf("execution cancelled; worker still running after %v and was abandoned", s.cfg.StopGrace),
					sink, context.Canceled)
			}
			return seal(KindCancelled, "execution cancelled", sink, res.err)
		}
	}
}

func (s *Supervisor) work(ctx context.Context, unit *Unit, binding Binding, sink *Sink, done chan<- workerResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.Logf(logging.ERROR, unit.Name, "engine %s panicked: %v", unit.Engine, r)
			done <- workerResult{err: fmt.Errorf("internal engine error: %v", r), panicked: true}
		}
	}()
	value, err := s.cfg.Engine.Execute(ctx, unit, binding, sink)
	done <- workerResult{value: value, err: err}
}

func (s *Supervisor) awaitStop(done <-chan workerResult) (workerResult, bool) {
	timer := time.NewTimer(s.cfg.StopGrace)
	defer timer.Stop()
	select {
	case res := <-done:
		return res, true
	case <-timer.C:
		return workerResult{}, false
	}
}

func (s *Supervisor) logAbandoned(unit *Unit) {
	logging.Logf(logging.WARN, unit.Name,
		"engine %s ignored the stop request for %v; worker abandoned and may still be running",
		unit.Engine, s.cfg.StopGrace)
}

func (s *Supervisor) completed(unit *Unit, sink *Sink, res workerResult) Outcome {
	if res.err != nil {
		return seal(KindRuntimeError, res.err.Error(), sink, res.err)
	}
	if res.value != "" {
		if _, err := sink.WriteString(res.value); err != nil {
			return seal(KindIOFailure, "write result: "+err.Error(), sink, err)
		}
	}
	out, err := sink.Drain()
	if err != nil {
		return Failure(KindIOFailure, "drain output: "+err.Error(), "", err)
	}
	return Success(out)
}

func interrupted(ctx context.Context, sink *Sink) Outcome {
	cause := context.Cause(ctx)
	return seal(KindInterrupted, "supervision interrupted: "+cause.Error(), sink, cause)
}

// seal drains sink into a failure outcome. A failing drain turns the
// outcome into KindIOFailure.
func seal(kind Kind, message string, sink *Sink, cause error) Outcome {
	out, err := sink.Drain()
	if err != nil {
		return Failure(KindIOFailure, fmt.Sprintf("%s; drain output: %v", message, err), "", errors.Join(cause, err))
	}
	return Failure(kind, message, out, cause)
}
