package harness

import (
	"context"
	"io"
)

// Unit is a validated script ready to execute. Engines create Units in
// Validate and are the only readers of Compiled. A Unit is never mutated.
type Unit struct {
	Engine   string // Name of the engine that produced it
	Name     string // Script name, for messages and log entries
	Source   string // Source text as given to Validate
	Compiled any    // Engine-private compiled form
}

// Engine is a guest-language implementation the supervisor can drive.
//
// Contract:
//   - Validate must not execute any part of the script. Failures should be
//     *CompileError values.
//   - Execute runs on a worker goroutine. It writes everything the script
//     prints, on any channel, to out, and returns the script's result as
//     text ("" for none).
//   - Cancellation of ctx is the stop request. Execute should translate it
//     into the engine's own interrupt and return promptly; engines that
//     cannot interrupt a running script will be abandoned by the supervisor.
//   - Implementations must be safe for concurrent use; each Execute call
//     owns its interpreter state.
type Engine interface {
	Name() string
	Validate(name, source string) (*Unit, error)
	Execute(ctx context.Context, unit *Unit, binding Binding, out io.Writer) (string, error)
}
