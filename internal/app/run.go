package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"codeberg.org/sigterm-de/scriptbox/internal/harness"
	"codeberg.org/sigterm-de/scriptbox/internal/logging"
	"codeberg.org/sigterm-de/scriptbox/internal/scripts"
)

// watchDebounce collapses the burst of events editors emit on save.
const watchDebounce = 200 * time.Millisecond

func (a *App) cmdRun(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	engineName := fs.String("engine", "", "engine to run the script with (default: header, extension, then preferences)")
	ctxValue := fs.String("ctx", "", "value bound to ctx (default: @ctx header, then preferences)")
	timeout := fs.Duration("timeout", a.Prefs.Timeout(), "stop the script after this long; 0 disables")
	watch := fs.Bool("watch", false, "run again whenever the script file changes")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.Stderr, "usage: scriptbox run [flags] <file|script name>")
		return ExitUsage
	}
	ctxSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "ctx" {
			ctxSet = true
		}
	})

	script, path, err := a.resolve(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(a.Stderr, "scriptbox:", err)
		return ExitUsage
	}
	h, err := a.harnessFor(*engineName, script)
	if err != nil {
		fmt.Fprintln(a.Stderr, "scriptbox:", err)
		return ExitUsage
	}

	bind := func(s scripts.Script) harness.Binding {
		value := a.Prefs.Context
		if s.Context != "" {
			value = s.Context
		}
		if ctxSet {
			value = *ctxValue
		}
		return harness.ContextBinding(value)
	}

	if *watch {
		if path == "" {
			fmt.Fprintln(a.Stderr, "scriptbox: -watch needs a script file")
			return ExitUsage
		}
		return a.watch(ctx, h, path, bind, *timeout)
	}

	ctx, cancel := trapSignals(ctx, h.RequestStop)
	defer cancel()
	return a.report(a.start(ctx, h, script, bind(script), *timeout).Wait())
}

// resolve finds the script named by arg: a file on disk first, then a
// library script of that name. path is empty for built-in scripts.
func (a *App) resolve(arg string) (script scripts.Script, path string, err error) {
	if info, statErr := os.Stat(arg); statErr == nil && !info.IsDir() {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return scripts.Script{}, "", err
		}
		script, err = scripts.LoadAdHoc(abs)
		return script, abs, err
	}
	if s, ok := a.Library.Find(arg); ok {
		if s.Source == scripts.UserProvided {
			path = s.FilePath
		}
		return s, path, nil
	}
	return scripts.Script{}, "", fmt.Errorf("no script file or library script named %q", arg)
}

// harnessFor picks the engine from the flag, the script, then preferences.
func (a *App) harnessFor(name string, s scripts.Script) (*harness.Harness, error) {
	if name == "" {
		name = s.Engine
	}
	if name == "" {
		name = a.Prefs.DefaultEngine
	}
	e, err := a.Registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return harness.New(a.Prefs.HarnessConfig(e))
}

// start runs s in the background, stopping it once timeout elapses.
func (a *App) start(ctx context.Context, h *harness.Harness, s scripts.Script, b harness.Binding, timeout time.Duration) *harness.Execution {
	exec := h.Start(ctx, s.Name, s.Content, b)
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			logging.Logf(logging.INFO, s.Name, "timeout after %v", timeout)
			exec.Stop()
		})
		go func() {
			<-exec.Done()
			timer.Stop()
		}()
	}
	return exec
}

// watch runs the file at path and runs it again after every change,
// stopping the previous run first. It returns when ctx ends or on SIGINT.
func (a *App) watch(ctx context.Context, h *harness.Harness, path string, bind func(scripts.Script) harness.Binding, timeout time.Duration) int {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(a.Stderr, "scriptbox: failed to create file watcher: %v\n", err)
		return ExitIO
	}
	defer func() { _ = watcher.Close() }()

	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		fmt.Fprintf(a.Stderr, "scriptbox: failed to watch %s: %v\n", path, err)
		return ExitIO
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		current  *harness.Execution
		code     = ExitOK
		debounce <-chan time.Time
	)
	launch := func() {
		s, err := scripts.LoadAdHoc(path)
		if err != nil {
			fmt.Fprintln(a.Stderr, "scriptbox:", err)
			code = ExitIO
			return
		}
		fmt.Fprintln(a.Stderr, a.style.dim.Render("==> running "+s.Name))
		current = a.start(ctx, h, s, bind(s), timeout)
	}
	finish := func() {
		code = a.report(current.Wait())
		current = nil
	}

	launch()
	for {
		var done <-chan struct{}
		if current != nil {
			done = current.Done()
		}

		select {
		case <-ctx.Done():
			if current != nil {
				current.Stop()
				finish()
			}
			return code

		case <-done:
			finish()

		case event, ok := <-watcher.Events:
			if !ok {
				return code
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				debounce = time.After(watchDebounce)
			}

		case <-debounce:
			debounce = nil
			if current != nil {
				logging.Log(logging.INFO, path, "file changed; stopping the running script")
				current.Stop()
				finish()
			}
			launch()

		case err, ok := <-watcher.Errors:
			if !ok {
				return code
			}
			logging.Log(logging.WARN, path, "file watcher error: "+err.Error())
		}
	}
}
