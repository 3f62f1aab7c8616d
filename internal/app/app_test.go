package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/sigterm-de/scriptbox/internal/harness"
)

// syncBuffer lets the test read output while a watch loop writes it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestApp(t *testing.T) (*App, *syncBuffer, *syncBuffer) {
	t.Helper()
	dir := t.TempDir()
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	prefs := defaultPreferences()
	prefs.PollIntervalMS = 5
	prefs.StopGraceMS = 500
	return &App{
		Version: "test",
		Stdin:   strings.NewReader(""),
		Stdout:  stdout,
		Stderr:  stderr,
		Config: UserConfiguration{
			ScriptsDir:      filepath.Join(dir, "scripts"),
			PreferencesPath: filepath.Join(dir, "preferences.json"),
			HistoryPath:     filepath.Join(dir, "history"),
		},
		Prefs: prefs,
	}, stdout, stderr
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunBuiltInByName(t *testing.T) {
	a, stdout, stderr := newTestApp(t)
	code := a.Execute(context.Background(), []string{"run", "Hello JavaScript"})
	if code != ExitOK {
		t.Fatalf("exit %d; stderr %q", code, stderr.String())
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "main, ctx=external context\n") || !strings.HasSuffix(out, "main finished\n") {
		t.Fatalf("stdout = %q", out)
	}
}

func TestRunEveryBundledHello(t *testing.T) {
	for _, name := range []string{"Hello JavaScript", "Hello Shell", "Hello Starlark"} {
		t.Run(name, func(t *testing.T) {
			a, stdout, stderr := newTestApp(t)
			if code := a.Execute(context.Background(), []string{"run", "-ctx", "flag value", name}); code != ExitOK {
				t.Fatalf("exit %d; stderr %q", code, stderr.String())
			}
			if !strings.Contains(stdout.String(), "main, ctx=flag value\n") {
				t.Fatalf("stdout = %q", stdout.String())
			}
		})
	}
}

func TestRunFileUsesPreferenceContext(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	a.Prefs.Context = "from prefs"
	path := filepath.Join(t.TempDir(), "plain.sh")
	writeFile(t, path, "echo \"got $ctx\"\n")

	if code := a.Execute(context.Background(), []string{"run", path}); code != ExitOK {
		t.Fatalf("exit %d", code)
	}
	if stdout.String() != "got from prefs\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunEngineFlagOverridesExtension(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	writeFile(t, path, "print('star ' + ctx)\n")

	if code := a.Execute(context.Background(), []string{"run", "-engine", "starlark", "-ctx", "x", path}); code != ExitOK {
		t.Fatalf("exit %d", code)
	}
	if stdout.String() != "star x\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunHonoursJavaScriptPreferences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sloppy.js")
	writeFile(t, path, "leaked = 1;\nprint('ran');\n")

	a, stdout, _ := newTestApp(t)
	if code := a.Execute(context.Background(), []string{"run", path}); code != ExitOK || stdout.String() != "ran\n" {
		t.Fatalf("default preferences: exit %d, stdout %q", code, stdout.String())
	}

	a, _, _ = newTestApp(t)
	a.Prefs.JSRequireMain = true
	if code := a.Execute(context.Background(), []string{"run", path}); code != ExitUsage {
		t.Fatalf("js_require_main: exit %d; want %d", code, ExitUsage)
	}

	a, stdout, _ = newTestApp(t)
	a.Prefs.JSStrict = true
	if code := a.Execute(context.Background(), []string{"run", path}); code != ExitRuntime {
		t.Fatalf("js_strict: exit %d; want %d", code, ExitRuntime)
	}
	if stdout.String() != "" {
		t.Fatalf("js_strict: stdout = %q", stdout.String())
	}
}

func TestRunResultGetsTrailingNewline(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	path := filepath.Join(t.TempDir(), "r.js")
	writeFile(t, path, "function main(ctx) { return 'value'; }\n")

	a.Execute(context.Background(), []string{"run", path})
	if stdout.String() != "value\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunFailureExitCodes(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		src    string
		want   int
		stderr string
	}{
		{"compile error", "c.js", "class A {}\n", ExitUsage, "compile error:"},
		{"runtime error", "r.js", "print('partial'); throw new Error('boom');\n", ExitRuntime, "runtime error:"},
		{"shell exit status", "e.sh", "exit 7\n", ExitRuntime, "exit status 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, stderr := newTestApp(t)
			path := filepath.Join(t.TempDir(), tt.file)
			writeFile(t, path, tt.src)
			if code := a.Execute(context.Background(), []string{"run", path}); code != tt.want {
				t.Fatalf("exit %d; want %d (stderr %q)", code, tt.want, stderr.String())
			}
			if !strings.Contains(stderr.String(), tt.stderr) {
				t.Fatalf("stderr = %q; want it to contain %q", stderr.String(), tt.stderr)
			}
		})
	}
}

func TestRunTimeoutCancels(t *testing.T) {
	a, stdout, stderr := newTestApp(t)
	code := a.Execute(context.Background(), []string{"run", "-timeout", "100ms", "Spin Forever"})
	if code != ExitCancelled {
		t.Fatalf("exit %d; want %d (stderr %q)", code, ExitCancelled, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "spinning") {
		t.Fatalf("stdout = %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "cancelled:") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunInterruptedByContext(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if code := a.Execute(ctx, []string{"run", "Spin Forever"}); code != ExitInterrupted {
		t.Fatalf("exit %d; want %d", code, ExitInterrupted)
	}
}

func TestRunUsageErrors(t *testing.T) {
	cases := map[string][]string{
		"no script":      {"run"},
		"unknown script": {"run", "no such script"},
		"unknown engine": {"run", "-engine", "cobol", "Hello JavaScript"},
		"watch built-in": {"run", "-watch", "Hello JavaScript"},
		"bad flag":       {"run", "-nope", "x"},
		"no command":     {},
		"bad command":    {"frobnicate"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			a, _, _ := newTestApp(t)
			if code := a.Execute(context.Background(), args); code != ExitUsage {
				t.Fatalf("exit %d; want %d", code, ExitUsage)
			}
		})
	}
}

func TestRunWatchRerunsOnChange(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	path := filepath.Join(t.TempDir(), "w.js")
	writeFile(t, path, `print("v1")`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan int, 1)
	go func() { done <- a.Execute(ctx, []string{"run", "-watch", path}) }()

	waitForOutput(t, stdout, "v1\n")
	writeFile(t, path, `print("v2")`)
	waitForOutput(t, stdout, "v2\n")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not return after cancellation")
	}
}

func waitForOutput(t *testing.T, b *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(b.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output %q never contained %q", b.String(), want)
}

func TestList(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	if code := a.Execute(context.Background(), []string{"list"}); code != ExitOK {
		t.Fatalf("exit %d", code)
	}
	for _, name := range []string{"Hello JavaScript", "Hello Shell", "Hello Starlark", "Spin Forever"} {
		if !strings.Contains(stdout.String(), name) {
			t.Errorf("list output misses %q:\n%s", name, stdout.String())
		}
	}

	a, stdout, _ = newTestApp(t)
	a.Execute(context.Background(), []string{"list", "yaml"})
	if !strings.Contains(stdout.String(), "YAML to JSON") {
		t.Errorf("list yaml = %q", stdout.String())
	}

	a, _, _ = newTestApp(t)
	if code := a.Execute(context.Background(), []string{"list", "zzznomatch999"}); code != ExitRuntime {
		t.Errorf("exit %d; want %d", code, ExitRuntime)
	}
}

func TestListIncludesUserScripts(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	if err := os.MkdirAll(a.Config.ScriptsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(a.Config.ScriptsDir, "mine.star"), "# @name Mine\n# @description Mine too\nprint(ctx)\n")

	a.Execute(context.Background(), []string{"list", "mine"})
	if !strings.Contains(stdout.String(), "Mine") || !strings.Contains(stdout.String(), "starlark") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestReplReadsNonTerminalStdin(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	a.Stdin = strings.NewReader("x = 'hi ' + ctx\nprint(x)\n")
	code := a.Execute(context.Background(), []string{"repl", "-engine", "starlark", "-ctx", "you"})
	if code != ExitOK {
		t.Fatalf("exit %d", code)
	}
	if stdout.String() != "hi you\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestReplCommands(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	a.setup()
	h, err := a.replHarness("js")
	if err != nil {
		t.Fatal(err)
	}
	b := harness.ContextBinding("")

	h, b, quit := a.replCommand(".engine bash", h, b)
	if quit || h.Engine().Name() != "shell" {
		t.Fatalf("engine = %s, quit = %v", h.Engine().Name(), quit)
	}
	h, b, _ = a.replCommand(".engine cobol", h, b)
	if h.Engine().Name() != "shell" {
		t.Fatal("a failed switch must keep the engine")
	}
	_, b, _ = a.replCommand(".ctx new value", h, b)
	if b.Context() != "new value" {
		t.Fatalf("ctx = %q", b.Context())
	}
	a.replCommand(".help", h, b)
	if !strings.Contains(stdout.String(), ".engine") {
		t.Fatalf("help output = %q", stdout.String())
	}
	if _, _, quit := a.replCommand(".exit", h, b); !quit {
		t.Fatal(".exit must quit")
	}
}

func TestConfigWrite(t *testing.T) {
	a, stdout, _ := newTestApp(t)
	a.Prefs.DefaultEngine = "shell"
	if code := a.Execute(context.Background(), []string{"config", "-write"}); code != ExitOK {
		t.Fatalf("exit %d", code)
	}
	if got := LoadPreferences(a.Config.PreferencesPath); got.DefaultEngine != "shell" {
		t.Fatalf("saved DefaultEngine = %q", got.DefaultEngine)
	}
	if !strings.Contains(stdout.String(), `"default_engine": "shell"`) {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestExitCode(t *testing.T) {
	cases := map[harness.Kind]int{
		harness.KindSuccess:      ExitOK,
		harness.KindRuntimeError: ExitRuntime,
		harness.KindCompileError: ExitUsage,
		harness.KindCancelled:    ExitCancelled,
		harness.KindInterrupted:  ExitInterrupted,
		harness.KindIOFailure:    ExitIO,
	}
	for kind, want := range cases {
		if got := exitCode(kind); got != want {
			t.Errorf("exitCode(%s) = %d; want %d", kind, got, want)
		}
	}
}
