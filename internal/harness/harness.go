package harness

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"codeberg.org/sigterm-de/scriptbox/internal/logging"
)

// DefaultScriptName is used when a caller does not name its script.
const DefaultScriptName = "script"

// Harness validates script text with one Engine and supervises its
// execution. It is safe for concurrent use; every execution gets its own
// Sink and Signal.
type Harness struct {
	engine Engine
	sup    *Supervisor
	slots  *semaphore.Weighted // nil when unbounded

	mu     sync.Mutex
	active map[*Signal]struct{}
}

// New validates cfg and returns a ready Harness.
func New(cfg Config) (*Harness, error) {
	sup, err := NewSupervisor(cfg)
	if err != nil {
		return nil, err
	}
	h := &Harness{
		engine: cfg.Engine,
		sup:    sup,
		active: make(map[*Signal]struct{}),
	}
	if cfg.MaxConcurrent > 0 {
		h.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return h, nil
}

// Engine returns the engine the harness drives.
func (h *Harness) Engine() Engine {
	return h.engine
}

// Run executes scriptText with contextValue bound to "ctx" and blocks until
// it ends. Exactly one Outcome is returned.
func (h *Harness) Run(ctx context.Context, scriptText, contextValue string) Outcome {
	return h.RunBinding(ctx, DefaultScriptName, scriptText, ContextBinding(contextValue))
}

// RunBinding is Run with a script name and an arbitrary binding.
func (h *Harness) RunBinding(ctx context.Context, name, scriptText string, binding Binding) Outcome {
	unit, failure, ok := h.validate(name, scriptText)
	if !ok {
		return failure
	}
	sig := NewSignal()
	h.track(sig)
	defer h.untrack(sig)
	return h.execute(ctx, unit, binding, sig)
}

// Start validates scriptText and runs it in the background. A compile error
// yields an Execution that is already done.
func (h *Harness) Start(ctx context.Context, name, scriptText string, binding Binding) *Execution {
	exec := &Execution{signal: NewSignal(), done: make(chan struct{})}
	unit, failure, ok := h.validate(name, scriptText)
	if !ok {
		exec.finish(failure)
		return exec
	}
	h.track(exec.signal)
	go func() {
		defer h.untrack(exec.signal)
		exec.finish(h.execute(ctx, unit, binding, exec.signal))
	}()
	return exec
}

// RequestStop asks every in-flight execution of h to stop. It may be called
// from any goroutine, any number of times; with nothing running it does
// nothing.
func (h *Harness) RequestStop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sig := range h.active {
		sig.Raise()
	}
}

func (h *Harness) validate(name, scriptText string) (*Unit, Outcome, bool) {
	if name == "" {
		name = DefaultScriptName
	}
	unit, err := h.engine.Validate(name, scriptText)
	if err != nil {
		logging.Log(logging.INFO, name, "rejected: "+err.Error())
		o := Failure(KindCompileError, err.Error(), "", err)
		o.Engine = h.engine.Name()
		o.Script = name
		return nil, o, false
	}
	return unit, Outcome{}, true
}

func (h *Harness) execute(ctx context.Context, unit *Unit, binding Binding, sig *Signal) Outcome {
	if h.slots != nil {
		if err := h.acquire(ctx, sig); err != nil {
			var o Outcome
			if ctx.Err() != nil {
				cause := context.Cause(ctx)
				o = Failure(KindInterrupted, "waiting for a worker slot: "+cause.Error(), "", cause)
			} else {
				logging.Log(logging.INFO, unit.Name, "stop requested while waiting for a worker slot")
				o = Failure(KindCancelled, "execution cancelled while waiting for a worker slot", "", context.Canceled)
			}
			o.Engine = unit.Engine
			o.Script = unit.Name
			return o
		}
		defer h.slots.Release(1)
	}
	return h.sup.Supervise(ctx, unit, binding, NewSink(), sig)
}

// acquire takes a worker slot. It gives up when ctx ends or sig is raised,
// checking sig every PollInterval.
func (h *Harness) acquire(ctx context.Context, sig *Signal) error {
	if sig.Raised() {
		return context.Canceled
	}
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(h.sup.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-waitCtx.Done():
				return
			case <-ticker.C:
				if sig.Raised() {
					cancel()
					return
				}
			}
		}
	}()

	if err := h.slots.Acquire(waitCtx, 1); err != nil {
		return err
	}
	if sig.Raised() {
		h.slots.Release(1)
		return context.Canceled
	}
	return nil
}

func (h *Harness) track(sig *Signal) {
	h.mu.Lock()
	h.active[sig] = struct{}{}
	h.mu.Unlock()
}

func (h *Harness) untrack(sig *Signal) {
	h.mu.Lock()
	delete(h.active, sig)
	h.mu.Unlock()
}

// Execution is a handle on one background run started by Harness.Start.
type Execution struct {
	signal  *Signal
	done    chan struct{}
	outcome Outcome
}

// Stop requests a cooperative stop. Calling it after the execution ended
// has no effect on the outcome.
func (e *Execution) Stop() {
	e.signal.Raise()
}

// Done is closed once the outcome is available.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the execution ends and returns its outcome.
func (e *Execution) Wait() Outcome {
	<-e.done
	return e.outcome
}

func (e *Execution) finish(o Outcome) {
	e.outcome = o
	close(e.done)
}
