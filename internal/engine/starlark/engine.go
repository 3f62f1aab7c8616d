// Package starlark runs Starlark scripts. Scripts cannot load other modules;
// everything they see comes from the universe and the execution binding.
package starlark

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"codeberg.org/sigterm-de/scriptbox/internal/harness"
)

// Name is the registry name of this engine.
const Name = "starlark"

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Engine implements harness.Engine.
type Engine struct{}

// New returns a Starlark engine.
func New() *Engine { return &Engine{} }

// Name implements harness.Engine.
func (e *Engine) Name() string { return Name }

// Validate parses, resolves and compiles source. Names that are neither
// defined by the script nor universal are treated as binding values and
// checked when the script runs.
func (e *Engine) Validate(name, source string) (*harness.Unit, error) {
	f, err := fileOptions.Parse(name, source, 0)
	if err != nil {
		return nil, compileError(err)
	}
	for _, stmt := range f.Stmts {
		if load, ok := stmt.(*syntax.LoadStmt); ok {
			return nil, &harness.CompileError{
				Message: "script must not load modules",
				Line:    int(load.Load.Line),
				Column:  int(load.Load.Col),
			}
		}
	}
	prog, err := starlark.FileProgram(f, isPredeclared)
	if err != nil {
		return nil, compileError(err)
	}
	return &harness.Unit{Engine: Name, Name: name, Source: source, Compiled: prog}, nil
}

func isPredeclared(name string) bool {
	return !starlark.Universe.Has(name)
}

func compileError(err error) *harness.CompileError {
	var serr syntax.Error
	if errors.As(err, &serr) {
		return &harness.CompileError{Message: serr.Msg, Line: int(serr.Pos.Line), Column: int(serr.Pos.Col), Err: err}
	}
	var rerrs resolve.ErrorList
	if errors.As(err, &rerrs) && len(rerrs) > 0 {
		first := rerrs[0]
		return &harness.CompileError{Message: first.Msg, Line: int(first.Pos.Line), Column: int(first.Pos.Col), Err: err}
	}
	return &harness.CompileError{Message: err.Error(), Err: err}
}

// Execute initialises the program's globals with the binding predeclared and
// print() writing to out. A global main function is then called with the
// context value when it takes a parameter; its non-None result is returned.
func (e *Engine) Execute(ctx context.Context, unit *harness.Unit, binding harness.Binding, out io.Writer) (string, error) {
	prog, ok := unit.Compiled.(*starlark.Program)
	if !ok {
		return "", fmt.Errorf("starlark: unit %q was not compiled by this engine", unit.Name)
	}

	predeclared := make(starlark.StringDict, binding.Len())
	for _, name := range binding.Names() {
		v, _ := binding.Lookup(name)
		predeclared[name] = starlark.String(v)
	}

	thread := &starlark.Thread{
		Name: unit.Name,
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(out, msg)
		},
	}

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-finished:
		}
	}()

	globals, err := prog.Init(thread, predeclared)
	if err != nil {
		return "", runError(ctx, err)
	}
	globals.Freeze()

	fn, ok := globals["main"].(*starlark.Function)
	if !ok {
		return "", nil
	}
	var args starlark.Tuple
	if fn.NumParams() > 0 {
		args = starlark.Tuple{starlark.String(binding.Context())}
	}
	v, err := starlark.Call(thread, fn, args, nil)
	if err != nil {
		return "", runError(ctx, err)
	}
	if v == starlark.None {
		return "", nil
	}
	if s, ok := starlark.AsString(v); ok {
		return s, nil
	}
	return v.String(), nil
}

func runError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("script execution stopped: %w", ctxErr)
	}
	var eerr *starlark.EvalError
	if errors.As(err, &eerr) {
		return &backtraceError{eerr}
	}
	return err
}

// backtraceError reports an evaluation error with its Starlark call stack.
type backtraceError struct {
	err *starlark.EvalError
}

func (b *backtraceError) Error() string { return b.err.Backtrace() }
func (b *backtraceError) Unwrap() error { return b.err }
