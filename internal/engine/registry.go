// Package engine collects the script engines scriptbox ships with and picks
// one by name or by file extension.
package engine

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"codeberg.org/sigterm-de/scriptbox/internal/engine/js"
	"codeberg.org/sigterm-de/scriptbox/internal/engine/shell"
	"codeberg.org/sigterm-de/scriptbox/internal/engine/starlark"
	"codeberg.org/sigterm-de/scriptbox/internal/harness"
)

// ErrUnknownEngine is returned when no registered engine matches a name or
// file extension.
var ErrUnknownEngine = errors.New("unknown engine")

// extensions maps file extensions to engine names.
var extensions = map[string]string{
	".js":   js.Name,
	".mjs":  js.Name,
	".sh":   shell.Name,
	".bash": shell.Name,
	".star": starlark.Name,
}

// aliases lets headers and flags use the common spellings.
var aliases = map[string]string{
	"javascript": js.Name,
	"sh":         shell.Name,
	"bash":       shell.Name,
	"star":       starlark.Name,
}

// Registry maps engine names to engines. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	engines map[string]harness.Engine
}

// NewRegistry builds a registry from the supplied engines.
func NewRegistry(engines ...harness.Engine) (*Registry, error) {
	reg := &Registry{engines: make(map[string]harness.Engine, len(engines))}

	for _, e := range engines {
		if e == nil {
			return nil, fmt.Errorf("engine cannot be nil")
		}
		name := e.Name()
		if name == "" {
			return nil, fmt.Errorf("engine missing name")
		}
		if _, exists := reg.engines[name]; exists {
			return nil, fmt.Errorf("duplicate engine %q", name)
		}
		reg.engines[name] = e
	}

	if len(reg.engines) == 0 {
		return nil, fmt.Errorf("at least one engine must be registered")
	}
	return reg, nil
}

// Default returns a registry with the bundled js, shell and starlark engines.
func Default() *Registry {
	return Bundled(js.Options{})
}

// Bundled is Default with the JavaScript engine tuned by jsOpts.
func Bundled(jsOpts js.Options) *Registry {
	reg, err := NewRegistry(js.New(jsOpts), shell.New(), starlark.New())
	if err != nil {
		panic(err)
	}
	return reg
}

// Lookup returns the engine registered under name or one of its aliases.
// Matching is case-insensitive.
func (r *Registry) Lookup(name string) (harness.Engine, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	e, ok := r.engines[key]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownEngine, name, strings.Join(r.Names(), ", "))
	}
	return e, nil
}

// Names returns the registered engine names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// EngineForExtension reports the engine name for a file extension such as
// ".js", without consulting a registry.
func EngineForExtension(ext string) (string, bool) {
	name, ok := extensions[strings.ToLower(ext)]
	return name, ok
}
