package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"codeberg.org/sigterm-de/scriptbox/internal/harness"
)

func (a *App) cmdRepl(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	engineName := fs.String("engine", a.Prefs.DefaultEngine, "engine to evaluate input with")
	ctxValue := fs.String("ctx", a.Prefs.Context, "value bound to ctx")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}

	h, err := a.replHarness(*engineName)
	if err != nil {
		fmt.Fprintln(a.Stderr, "scriptbox:", err)
		return ExitUsage
	}
	binding := harness.ContextBinding(*ctxValue)

	if !isTerminal(a.Stdin) {
		src, err := io.ReadAll(a.Stdin)
		if err != nil {
			fmt.Fprintln(a.Stderr, "scriptbox: read stdin:", err)
			return ExitIO
		}
		return a.runBlock(ctx, h, "stdin", string(src), binding)
	}
	return a.interactive(ctx, h, binding)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (a *App) replHarness(name string) (*harness.Harness, error) {
	e, err := a.Registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return harness.New(a.Prefs.HarnessConfig(e))
}

func (a *App) runBlock(ctx context.Context, h *harness.Harness, name, src string, binding harness.Binding) int {
	ctx, cancel := trapSignals(ctx, h.RequestStop)
	defer cancel()
	return a.report(h.RunBinding(ctx, name, src, binding))
}

// interactive reads blocks of source, each ended by an empty line, and runs
// them one at a time. Lines starting with "." outside a block are commands.
func (a *App) interactive(ctx context.Context, h *harness.Harness, binding harness.Binding) int {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt(h),
		HistoryFile:       a.Config.HistoryPath,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintln(a.Stderr, "scriptbox: failed to start line editor:", err)
		return ExitIO
	}
	defer func() { _ = rl.Close() }()

	fmt.Fprintf(a.Stdout, "scriptbox %s (%s). End a block with an empty line; .help lists commands.\n",
		a.Version, h.Engine().Name())

	var block []string
	code := ExitOK
	for {
		if len(block) == 0 {
			rl.SetPrompt(prompt(h))
		} else {
			rl.SetPrompt("... ")
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			block = block[:0]
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(block) > 0 {
				code = a.runBlock(ctx, h, "repl", strings.Join(block, "\n"), binding)
			}
			return code
		}
		if err != nil {
			fmt.Fprintln(a.Stderr, "scriptbox: read input:", err)
			return ExitIO
		}

		trimmed := strings.TrimSpace(line)
		if len(block) == 0 && strings.HasPrefix(trimmed, ".") {
			var quit bool
			h, binding, quit = a.replCommand(trimmed, h, binding)
			if quit {
				return code
			}
			continue
		}
		if trimmed == "" {
			if len(block) > 0 {
				code = a.runBlock(ctx, h, "repl", strings.Join(block, "\n"), binding)
				block = block[:0]
			}
			continue
		}
		block = append(block, line)
	}
}

func prompt(h *harness.Harness) string {
	return h.Engine().Name() + "> "
}

// replCommand applies a dot command and returns the possibly replaced
// harness and binding.
func (a *App) replCommand(line string, h *harness.Harness, binding harness.Binding) (*harness.Harness, harness.Binding, bool) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case ".exit", ".quit":
		return h, binding, true
	case ".engine":
		if arg == "" {
			fmt.Fprintf(a.Stdout, "engine %s (available: %s)\n", h.Engine().Name(), strings.Join(a.Registry.Names(), ", "))
			return h, binding, false
		}
		next, err := a.replHarness(arg)
		if err != nil {
			fmt.Fprintln(a.Stderr, err)
			return h, binding, false
		}
		return next, binding, false
	case ".ctx":
		return h, binding.With(harness.ContextKey, arg), false
	case ".help":
		fmt.Fprint(a.Stdout, `.engine [name]  show or switch the engine
.ctx value      set the ctx value
.exit           leave
Ctrl+C while a block runs stops it.
`)
	default:
		fmt.Fprintf(a.Stderr, "unknown command %s; try .help\n", cmd)
	}
	return h, binding, false
}
