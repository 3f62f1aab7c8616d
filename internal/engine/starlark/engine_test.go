package starlark_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"codeberg.org/sigterm-de/scriptbox/internal/engine/starlark"
	"codeberg.org/sigterm-de/scriptbox/internal/harness"
)

func newHarness(t *testing.T) *harness.Harness {
	t.Helper()
	h, err := harness.New(harness.Config{
		Engine:       starlark.New(),
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("harness.New: %v", err)
	}
	return h
}

func TestMainReceivesContext(t *testing.T) {
	o := newHarness(t).Run(context.Background(), `
def main(ctx):
    print("main, ctx=" + ctx)
    print("main finished")
`, "external context")
	if !o.OK() {
		t.Fatalf("expected success, got %s: %s", o.Kind, o.Message)
	}
	want := "main, ctx=external context\nmain finished\n"
	if o.Output != want {
		t.Fatalf("Output = %q; want %q", o.Output, want)
	}
}

func TestTopLevelCodeSeesBinding(t *testing.T) {
	h := newHarness(t)
	b := harness.ContextBinding("c").With("user", "bob")
	o := h.RunBinding(context.Background(), "bind", `print(user + "/" + ctx)`, b)
	if o.Output != "bob/c\n" {
		t.Fatalf("Output = %q", o.Output)
	}
}

func TestResultAppended(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"string", "def main(ctx):\n    print(\"a\")\n    return ctx.upper()\n", "a\nX"},
		{"non-string", "def main(ctx):\n    return [1, 2]\n", "[1, 2]"},
		{"none", "def main(ctx):\n    print(\"only\")\n", "only\n"},
		{"no params", "def main():\n    return \"ok\"\n", "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newHarness(t).Run(context.Background(), tt.src, "x")
			if !o.OK() || o.Output != tt.want {
				t.Fatalf("got %s %q (%s); want %q", o.Kind, o.Output, o.Message, tt.want)
			}
		})
	}
}

func TestLoadRejected(t *testing.T) {
	_, err := starlark.New().Validate("s", "x = 1\nload(\"other.star\", \"y\")\n")
	var ce *harness.CompileError
	if !errors.As(err, &ce) || ce.Line != 2 {
		t.Fatalf("expected CompileError on line 2, got %v", err)
	}
}

func TestSyntaxErrorHasPosition(t *testing.T) {
	_, err := starlark.New().Validate("s", "def main(:\n    pass\n")
	var ce *harness.CompileError
	if !errors.As(err, &ce) || ce.Line != 1 {
		t.Fatalf("expected CompileError on line 1, got %v", err)
	}
}

func TestResolveErrorIsCompileError(t *testing.T) {
	_, err := starlark.New().Validate("s", "x = 1\nbreak\n")
	if !errors.Is(err, harness.ErrCompile) {
		t.Fatalf("Validate() = %v; want compile error", err)
	}
}

func TestRuntimeErrorKeepsPartialOutput(t *testing.T) {
	o := newHarness(t).Run(context.Background(), `
def main(ctx):
    print("before")
    fail("boom")
`, "")
	if o.Kind != harness.KindRuntimeError {
		t.Fatalf("Kind = %s; want runtime error", o.Kind)
	}
	if o.Output != "before\n" {
		t.Fatalf("Output = %q", o.Output)
	}
	if !strings.Contains(o.Message, "boom") || !strings.Contains(o.Message, "Traceback") {
		t.Fatalf("Message = %q; want a backtrace mentioning boom", o.Message)
	}
}

func TestUnboundNameFailsAtRuntime(t *testing.T) {
	o := newHarness(t).Run(context.Background(), `print(missing)`, "")
	if o.Kind != harness.KindRuntimeError {
		t.Fatalf("Kind = %s; want runtime error", o.Kind)
	}
}

func TestInfiniteLoopIsCancelled(t *testing.T) {
	h := newHarness(t)
	exec := h.Start(context.Background(), "spin", "def main(ctx):\n    print(\"spinning\")\n    while True:\n        pass\n", harness.ContextBinding(""))
	time.AfterFunc(50*time.Millisecond, exec.Stop)

	o := exec.Wait()
	if o.Kind != harness.KindCancelled {
		t.Fatalf("Kind = %s (%s); want cancelled", o.Kind, o.Message)
	}
	if o.Output != "spinning\n" {
		t.Fatalf("Output = %q", o.Output)
	}
	if strings.Contains(o.Message, "abandoned") {
		t.Fatal("thread.Cancel is honoured; the worker should not be abandoned")
	}
}
