package engine_test

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"

	"codeberg.org/sigterm-de/scriptbox/internal/engine"
	"codeberg.org/sigterm-de/scriptbox/internal/engine/js"
	"codeberg.org/sigterm-de/scriptbox/internal/harness"
)

type namedEngine string

func (n namedEngine) Name() string { return string(n) }
func (n namedEngine) Validate(name, source string) (*harness.Unit, error) {
	return &harness.Unit{Engine: string(n), Name: name, Source: source}, nil
}
func (n namedEngine) Execute(context.Context, *harness.Unit, harness.Binding, io.Writer) (string, error) {
	return "", nil
}

func TestNewRegistryRejectsBadEngines(t *testing.T) {
	tests := []struct {
		name    string
		engines []harness.Engine
	}{
		{"empty", nil},
		{"nil engine", []harness.Engine{nil}},
		{"unnamed", []harness.Engine{namedEngine("")}},
		{"duplicate", []harness.Engine{namedEngine("a"), namedEngine("a")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.NewRegistry(tt.engines...); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := engine.Default()
	if got, want := reg.Names(), []string{"js", "shell", "starlark"}; !slices.Equal(got, want) {
		t.Fatalf("Names() = %v; want %v", got, want)
	}
}

func TestLookup(t *testing.T) {
	reg := engine.Default()
	tests := map[string]string{
		"js":         "js",
		"JavaScript": "js",
		"bash":       "shell",
		" shell ":    "shell",
		"star":       "starlark",
	}
	for in, want := range tests {
		e, err := reg.Lookup(in)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", in, err)
		}
		if e.Name() != want {
			t.Fatalf("Lookup(%q) = %s; want %s", in, e.Name(), want)
		}
	}

	if _, err := reg.Lookup("cobol"); !errors.Is(err, engine.ErrUnknownEngine) {
		t.Fatalf("Lookup(cobol) = %v; want ErrUnknownEngine", err)
	}
}

func TestEngineForExtension(t *testing.T) {
	tests := map[string]string{
		".js":   "js",
		".mjs":  "js",
		".SH":   "shell",
		".bash": "shell",
		".star": "starlark",
	}
	reg := engine.Default()
	for ext, want := range tests {
		name, ok := engine.EngineForExtension(ext)
		if !ok || name != want {
			t.Fatalf("EngineForExtension(%q) = %q, %v; want %q", ext, name, ok, want)
		}
		if _, err := reg.Lookup(name); err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
	}
	if _, ok := engine.EngineForExtension(".txt"); ok {
		t.Fatal("EngineForExtension(.txt) must not match")
	}
}

func TestLookupNeedsRegisteredEngine(t *testing.T) {
	reg, err := engine.NewRegistry(namedEngine("js"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Lookup("bash"); !errors.Is(err, engine.ErrUnknownEngine) {
		t.Fatalf("Lookup(bash) = %v; want ErrUnknownEngine", err)
	}
}

func TestBundledAppliesJSOptions(t *testing.T) {
	e, err := engine.Bundled(js.Options{RequireMain: true}).Lookup("js")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Validate("s", `print("no main")`); !errors.Is(err, harness.ErrCompile) {
		t.Fatalf("Validate() = %v; want compile error", err)
	}
}

// The bundled engines must all produce the same transcript for the
// canonical hello scenario.
func TestEnginesAgreeOnScenario(t *testing.T) {
	scripts := map[string]string{
		"js":       "function main(ctx) {\n  print(\"main, ctx=\" + ctx);\n  print(\"main finished\");\n}\n",
		"shell":    "echo \"main, ctx=$1\"\necho \"main finished\"\n",
		"starlark": "def main(ctx):\n    print(\"main, ctx=\" + ctx)\n    print(\"main finished\")\n",
	}
	reg := engine.Default()
	for name, src := range scripts {
		t.Run(name, func(t *testing.T) {
			e, err := reg.Lookup(name)
			if err != nil {
				t.Fatal(err)
			}
			h, err := harness.New(harness.Config{Engine: e})
			if err != nil {
				t.Fatal(err)
			}
			o := h.Run(context.Background(), src, "external context")
			if want := "main, ctx=external context\nmain finished\n"; o.Output != want || !o.OK() {
				t.Fatalf("got %s %q; want success %q", o.Kind, o.Output, want)
			}
		})
	}
}
