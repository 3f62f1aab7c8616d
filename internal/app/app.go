package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"

	"codeberg.org/sigterm-de/scriptbox/assets"
	"codeberg.org/sigterm-de/scriptbox/internal/engine"
	"codeberg.org/sigterm-de/scriptbox/internal/harness"
	"codeberg.org/sigterm-de/scriptbox/internal/logging"
	"codeberg.org/sigterm-de/scriptbox/internal/scripts"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitRuntime     = 1
	ExitUsage       = 2 // also compile errors
	ExitCancelled   = 3
	ExitInterrupted = 4
	ExitIO          = 5
)

func exitCode(kind harness.Kind) int {
	switch kind {
	case harness.KindSuccess:
		return ExitOK
	case harness.KindCompileError:
		return ExitUsage
	case harness.KindCancelled:
		return ExitCancelled
	case harness.KindInterrupted:
		return ExitInterrupted
	case harness.KindIOFailure:
		return ExitIO
	default:
		return ExitRuntime
	}
}

// App is one command-line invocation. Zero-valued Registry and Library are
// filled in on first use.
type App struct {
	Version string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer

	Config   UserConfiguration
	Prefs    Preferences
	Registry *engine.Registry
	Library  scripts.Library

	style styles
}

type styles struct {
	name    lipgloss.Style
	dim     lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
}

// newStyles renders for w, so colour is dropped when w is not a terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		name:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("241")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		warning: r.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
	}
}

// Run wires configuration, logging and the script library, then executes
// args as a subcommand. It returns the exit code that main() should pass
// to os.Exit.
func Run(appVersion string, args []string, verbose bool) int {
	cfg, err := NewUserConfiguration()
	if err != nil {
		fmt.Fprintln(os.Stderr, "scriptbox: fatal:", err)
		return ExitIO
	}

	if verbose {
		logging.SetOutput(os.Stderr)
		logging.SetLevel(logging.DEBUG)
	} else if _, err := logging.InitLogger(appName); err != nil {
		fmt.Fprintf(os.Stderr, "scriptbox: warning: cannot initialise logger: %v\n", err)
	}
	defer logging.Close()
	logging.Log(logging.INFO, "", fmt.Sprintf("scriptbox %s starting", appVersion))

	a := &App{
		Version: appVersion,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
		Prefs:   LoadPreferences(cfg.PreferencesPath),
	}
	return a.Execute(context.Background(), args)
}

// Execute dispatches args[0] to its subcommand.
func (a *App) Execute(ctx context.Context, args []string) int {
	a.setup()
	if len(args) == 0 {
		a.usage()
		return ExitUsage
	}

	switch args[0] {
	case "run":
		return a.cmdRun(ctx, args[1:])
	case "list":
		return a.cmdList(args[1:])
	case "repl":
		return a.cmdRepl(ctx, args[1:])
	case "config":
		return a.cmdConfig(args[1:])
	case "help", "-h", "-help", "--help":
		a.usage()
		return ExitOK
	default:
		fmt.Fprintf(a.Stderr, "scriptbox: unknown command %q\n", args[0])
		a.usage()
		return ExitUsage
	}
}

func (a *App) usage() {
	fmt.Fprint(a.Stderr, `usage: scriptbox [-version] [-verbose] <command> [arguments]

commands:
  run [-engine name] [-ctx value] [-timeout d] [-watch] <file|script name>
  list [query]
  repl [-engine name] [-ctx value]
  config [-write]
`)
}

func (a *App) setup() {
	if a.Stdin == nil {
		a.Stdin = os.Stdin
	}
	if a.Stdout == nil {
		a.Stdout = os.Stdout
	}
	if a.Stderr == nil {
		a.Stderr = os.Stderr
	}
	if a.Prefs == (Preferences{}) {
		a.Prefs = defaultPreferences()
	}
	if a.Registry == nil {
		a.Registry = engine.Bundled(a.Prefs.JSOptions())
	}
	if a.Library == nil {
		a.Library = loadLibrary(a.Config.ScriptsDir)
	}
	a.style = newStyles(a.Stdout)
}

func loadLibrary(userDir string) scripts.Library {
	result, err := scripts.NewLoader(assets.Scripts()).Load(userDir)
	if err != nil {
		logging.Log(logging.ERROR, "", "failed to load built-in scripts: "+err.Error())
	}
	for _, skipped := range result.SkippedFiles {
		logging.Log(logging.WARN, skipped, "script was skipped during load")
	}
	logging.Log(logging.INFO, "",
		fmt.Sprintf("loaded %d built-in scripts, %d user scripts (%d skipped)",
			result.BuiltInCount, result.UserCount, len(result.SkippedFiles)))
	return scripts.NewLibrary(result)
}

// report prints an outcome's output to stdout and, for failures, a styled
// summary to stderr. It returns the matching exit code.
func (a *App) report(o harness.Outcome) int {
	if o.Output != "" {
		io.WriteString(a.Stdout, o.Output)
		if o.Output[len(o.Output)-1] != '\n' {
			io.WriteString(a.Stdout, "\n")
		}
	}
	if !o.OK() {
		label := a.style.failure
		if o.Kind == harness.KindCancelled || o.Kind == harness.KindInterrupted {
			label = a.style.warning
		}
		fmt.Fprintf(a.Stderr, "%s %s\n", label.Render(o.Kind.String()+":"), o.Message)
	}
	return exitCode(o.Kind)
}

// trapSignals calls stop on the first SIGINT or SIGTERM and cancels the
// returned context on the second.
func trapSignals(ctx context.Context, stop func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)
		stopped := false
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				if !stopped {
					stopped = true
					logging.Log(logging.INFO, "", "received "+sig.String()+"; stopping script")
					stop()
					continue
				}
				cancel()
				return
			}
		}
	}()
	return ctx, cancel
}
