package harness

import (
	"maps"
	"slices"
)

// ContextKey is the binding name every engine exposes the caller's context
// value under.
const ContextKey = "ctx"

// Binding is the read-only environment handed to a running script. The zero
// value is an empty binding.
type Binding struct {
	values map[string]string
}

// NewBinding copies values into a new Binding. Later changes to values are
// not visible through the Binding.
func NewBinding(values map[string]string) Binding {
	return Binding{values: maps.Clone(values)}
}

// ContextBinding returns the binding {"ctx": value}.
func ContextBinding(value string) Binding {
	return Binding{values: map[string]string{ContextKey: value}}
}

// Lookup returns the value bound to name.
func (b Binding) Lookup(name string) (string, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Context returns the value bound to ContextKey, or "" when unbound.
func (b Binding) Context() string {
	return b.values[ContextKey]
}

// Names returns the bound names in sorted order.
func (b Binding) Names() []string {
	return slices.Sorted(maps.Keys(b.values))
}

// Len returns the number of bound names.
func (b Binding) Len() int {
	return len(b.values)
}

// With returns a copy of b with name bound to value.
func (b Binding) With(name, value string) Binding {
	out := make(map[string]string, len(b.values)+1)
	maps.Copy(out, b.values)
	out[name] = value
	return Binding{values: out}
}
