// Package shell runs POSIX-style shell scripts on the mvdan.cc/sh
// interpreter. Only builtins and functions run; external programs are
// refused.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"codeberg.org/sigterm-de/scriptbox/internal/harness"
)

// Name is the registry name of this engine.
const Name = "shell"

// ErrExternalCommand is returned when a script tries to start a program.
var ErrExternalCommand = errors.New("external commands are not allowed")

// Engine implements harness.Engine. Parsed files are shared read-only; each
// Execute builds its own interp.Runner.
type Engine struct {
	variant syntax.LangVariant
}

// New returns a shell engine parsing the Bash dialect.
func New() *Engine {
	return &Engine{variant: syntax.LangBash}
}

// Name implements harness.Engine.
func (e *Engine) Name() string { return Name }

// Validate parses source. Background jobs and coprocesses are rejected since
// they would outlive the supervised run.
func (e *Engine) Validate(name, source string) (*harness.Unit, error) {
	f, err := syntax.NewParser(syntax.Variant(e.variant)).Parse(strings.NewReader(source), name)
	if err != nil {
		var perr syntax.ParseError
		if errors.As(err, &perr) {
			return nil, &harness.CompileError{
				Message: perr.Text,
				Line:    int(perr.Pos.Line()),
				Column:  int(perr.Pos.Col()),
				Err:     err,
			}
		}
		return nil, &harness.CompileError{Message: err.Error(), Err: err}
	}

	var bad *harness.CompileError
	syntax.Walk(f, func(node syntax.Node) bool {
		if bad != nil {
			return false
		}
		st, ok := node.(*syntax.Stmt)
		if !ok {
			return true
		}
		var what string
		switch {
		case st.Background:
			what = "background jobs"
		case st.Coprocess:
			what = "coprocesses"
		default:
			return true
		}
		pos := st.Pos()
		bad = &harness.CompileError{
			Message: "script must not start " + what,
			Line:    int(pos.Line()),
			Column:  int(pos.Col()),
		}
		return false
	})
	if bad != nil {
		return nil, bad
	}

	return &harness.Unit{Engine: Name, Name: name, Source: source, Compiled: f}, nil
}

// Execute runs the script with stdout and stderr both on out and the
// binding exported as environment variables; $1 is the context value.
// A non-zero exit status is an error.
func (e *Engine) Execute(ctx context.Context, unit *harness.Unit, binding harness.Binding, out io.Writer) (string, error) {
	f, ok := unit.Compiled.(*syntax.File)
	if !ok {
		return "", fmt.Errorf("shell: unit %q was not parsed by this engine", unit.Name)
	}

	env := []string{"HOME=/", "PATH="}
	for _, name := range binding.Names() {
		if !syntax.ValidName(name) {
			continue
		}
		v, _ := binding.Lookup(name)
		env = append(env, name+"="+v)
	}

	runner, err := interp.New(
		interp.StdIO(strings.NewReader(""), out, out),
		interp.Env(expand.ListEnviron(env...)),
		interp.Params("--", binding.Context()),
		interp.ExecHandlers(refuseExec),
		interp.OpenHandler(openDevNullOnly),
	)
	if err != nil {
		return "", fmt.Errorf("shell: new runner: %w", err)
	}

	err = runner.Run(ctx, f)
	if err == nil {
		return "", nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("script execution stopped: %w", ctxErr)
	}
	if status, ok := interp.IsExitStatus(err); ok {
		if status == 0 {
			return "", nil
		}
		return "", fmt.Errorf("exit status %d", status)
	}
	return "", err
}

func refuseExec(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		return fmt.Errorf("%w: %s", ErrExternalCommand, args[0])
	}
}

// openDevNullOnly lets redirections to /dev/null through and refuses every
// other file.
func openDevNullOnly(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		return devNull{}, nil
	}
	return nil, fmt.Errorf("file access is not allowed: %s", path)
}

type devNull struct{}

func (devNull) Read([]byte) (int, error)    { return 0, io.EOF }
func (devNull) Write(p []byte) (int, error) { return len(p), nil }
func (devNull) Close() error                { return nil }
