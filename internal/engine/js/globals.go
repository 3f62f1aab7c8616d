package js

import (
	"encoding/base64"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dop251/goja"
)

// poisoned lists network, process and timer APIs, and eval, which would let
// a script run code that never went through Validate.
var poisoned = []string{
	"fetch", "XMLHttpRequest", "WebSocket",
	"process", "global", "Buffer",
	"setTimeout", "setInterval", "clearTimeout", "clearInterval",
	"eval",
}

// installed are the globals the engine defines after the binding is set.
var installed = []string{"print", "println", "console", "require", "btoa", "atob"}

// reservedName reports whether a binding called name would be replaced by
// the engine's own globals.
func reservedName(name string) bool {
	return slices.Contains(poisoned, name) || slices.Contains(installed, name)
}

func poisonGlobals(vm *goja.Runtime) {
	for _, name := range poisoned {
		vm.Set(name, goja.Undefined())
	}
}

// registerPrint installs print() and println(). Both write their arguments,
// space separated, as one line.
func registerPrint(vm *goja.Runtime, out io.Writer) {
	fn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		if _, err := fmt.Fprintln(out, strings.Join(parts, " ")); err != nil {
			panic(vm.NewGoError(fmt.Errorf("print: %w", err)))
		}
		return goja.Undefined()
	}
	vm.Set("print", fn)
	vm.Set("println", fn)
}

// printer routes the console module into the execution's output. Log, warn
// and error share one stream so they keep their relative order.
type printer struct {
	out io.Writer
}

func (p printer) Log(s string)   { fmt.Fprintln(p.out, s) }
func (p printer) Warn(s string)  { fmt.Fprintln(p.out, s) }
func (p printer) Error(s string) { fmt.Fprintln(p.out, s) }

// registerBtoaAtob registers the browser base64 helpers. btoa only accepts
// Latin-1 input, as in browsers.
func registerBtoaAtob(vm *goja.Runtime) {
	vm.Set("btoa", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}
		runes := []rune(call.Arguments[0].String())
		buf := make([]byte, len(runes))
		for i, r := range runes {
			if r > 0xFF {
				panic(vm.NewGoError(fmt.Errorf("InvalidCharacterError: btoa received a character (U+%04X) outside the Latin-1 range", r)))
			}
			buf[i] = byte(r)
		}
		return vm.ToValue(base64.StdEncoding.EncodeToString(buf))
	})

	vm.Set("atob", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}
		decoded, err := base64.StdEncoding.DecodeString(call.Arguments[0].String())
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("atob: %w", err)))
		}
		return vm.ToValue(string(decoded))
	})
}
