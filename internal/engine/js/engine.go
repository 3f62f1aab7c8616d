// Package js runs JavaScript guest scripts on goja.
package js

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"

	"codeberg.org/sigterm-de/scriptbox/internal/harness"
)

// Name is the registry name of this engine.
const Name = "js"

// errStopped is the interrupt value used when the supervisor cancels a run.
var errStopped = errors.New("script execution stopped")

// Options tunes validation.
type Options struct {
	// RequireMain rejects scripts without a top-level function main.
	RequireMain bool
	// Strict compiles scripts in strict mode.
	Strict bool
}

// Engine implements harness.Engine. Every Execute call creates its own goja
// runtime; compiled programs are shared read-only between runs.
type Engine struct {
	opts Options
}

// New returns a JavaScript engine.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Name implements harness.Engine.
func (e *Engine) Name() string { return Name }

// Validate parses and compiles source without running it. Top-level class
// declarations are rejected.
func (e *Engine) Validate(name, source string) (*harness.Unit, error) {
	prg, err := parser.ParseFile(nil, name, source, 0)
	if err != nil {
		return nil, syntaxError(err)
	}

	hasMain := false
	for _, stmt := range prg.Body {
		switch s := stmt.(type) {
		case *ast.ClassDeclaration:
			pos := prg.File.Position(int(s.Idx0()) - 1)
			return nil, &harness.CompileError{
				Message: "script must not define top-level classes",
				Line:    pos.Line,
				Column:  pos.Column,
			}
		case *ast.FunctionDeclaration:
			if s.Function.Name != nil && s.Function.Name.Name == "main" {
				hasMain = true
			}
		}
	}
	if e.opts.RequireMain && !hasMain {
		return nil, &harness.CompileError{Message: "script does not define a top-level function main(ctx)"}
	}

	program, err := goja.CompileAST(prg, e.opts.Strict)
	if err != nil {
		return nil, &harness.CompileError{Message: err.Error(), Err: err}
	}
	return &harness.Unit{
		Engine:   Name,
		Name:     name,
		Source:   source,
		Compiled: program,
	}, nil
}

func syntaxError(err error) error {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		return &harness.CompileError{
			Message: first.Message,
			Line:    first.Position.Line,
			Column:  first.Position.Column,
			Err:     err,
		}
	}
	return &harness.CompileError{Message: err.Error(), Err: err}
}

// Execute runs the program, then main(ctx) if the script defines it. The
// result is main's return value, or the program's completion value when
// there is no main; undefined and null yield "".
func (e *Engine) Execute(ctx context.Context, unit *harness.Unit, binding harness.Binding, out io.Writer) (string, error) {
	program, ok := unit.Compiled.(*goja.Program)
	if !ok {
		return "", fmt.Errorf("js: unit %q was not compiled by this engine", unit.Name)
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	for _, name := range binding.Names() {
		if reservedName(name) {
			return "", fmt.Errorf("js: binding name %q is reserved", name)
		}
		v, _ := binding.Lookup(name)
		if err := vm.Set(name, v); err != nil {
			return "", fmt.Errorf("js: bind %q: %w", name, err)
		}
	}

	poisonGlobals(vm)

	registry := require.NewRegistry(require.WithLoader(blockingRequireLoader))
	registerModules(registry)
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer{out: out}))
	registry.Enable(vm)
	console.Enable(vm)

	registerPrint(vm, out)
	registerBtoaAtob(vm)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(errStopped)
		case <-stop:
		}
	}()

	val, err := vm.RunProgram(program)
	if err != nil {
		return "", runError(ctx, err)
	}

	if mainFn, ok := goja.AssertFunction(vm.Get("main")); ok {
		val, err = mainFn(goja.Undefined(), vm.ToValue(binding.Context()))
		if err != nil {
			return "", runError(ctx, err)
		}
	}

	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return "", nil
	}
	return val.String(), nil
}

// runError strips goja types from err so they do not leak past the engine.
func runError(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", errStopped, ctxErr)
		}
		return fmt.Errorf("script interrupted: %v", interrupted.Value())
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return errors.New(exception.Error())
	}
	return err
}
