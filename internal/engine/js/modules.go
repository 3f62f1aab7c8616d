package js

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"gopkg.in/yaml.v3"
	"howett.net/plist"

	"codeberg.org/sigterm-de/scriptbox/assets"
)

// modulePrefix is the only require() namespace scripts can reach.
const modulePrefix = "@box/"

// libFS holds the embedded scripts/lib directory with the JS helper modules.
var libFS fs.FS

func init() {
	sub, err := fs.Sub(assets.Scripts(), "lib")
	if err != nil {
		// lib dir missing; @box/ JS modules fail at require() time.
		return
	}
	libFS = sub
}

type nativeFunc func(vm *goja.Runtime, call goja.FunctionCall) goja.Value

// nativeModules maps module names to their exported functions.
var nativeModules = map[string]map[string]nativeFunc{
	modulePrefix + "yaml": {
		"parse":     yamlParse,
		"parseAll":  yamlParseAll,
		"stringify": yamlStringify,
	},
	modulePrefix + "plist": {
		"parse":     plistParse,
		"stringify": plistStringify,
	},
}

func registerModules(registry *require.Registry) {
	for name, exports := range nativeModules {
		registry.RegisterNativeModule(name, nativeLoader(exports))
	}
}

func nativeLoader(exports map[string]nativeFunc) require.ModuleLoader {
	return func(vm *goja.Runtime, module *goja.Object) {
		obj := module.Get("exports").(*goja.Object)
		for name, fn := range exports {
			obj.Set(name, func(call goja.FunctionCall) goja.Value {
				return fn(vm, call)
			})
		}
	}
}

// arg returns the first argument as a string or throws a TypeError naming fn.
func arg(vm *goja.Runtime, call goja.FunctionCall, fn string) string {
	if len(call.Arguments) == 0 || goja.IsUndefined(call.Arguments[0]) {
		panic(vm.NewTypeError(fn + " requires an argument"))
	}
	return call.Arguments[0].String()
}

func throw(vm *goja.Runtime, fn string, err error) {
	panic(vm.NewGoError(fmt.Errorf("%s: %w", fn, err)))
}

func yamlParse(vm *goja.Runtime, call goja.FunctionCall) goja.Value {
	var v any
	if err := yaml.Unmarshal([]byte(arg(vm, call, "yaml.parse")), &v); err != nil {
		throw(vm, "yaml.parse", err)
	}
	return vm.ToValue(normaliseYAML(v))
}

// yamlParseAll returns every document of a multi-document stream.
func yamlParseAll(vm *goja.Runtime, call goja.FunctionCall) goja.Value {
	dec := yaml.NewDecoder(strings.NewReader(arg(vm, call, "yaml.parseAll")))
	var docs []any
	for {
		var v any
		err := dec.Decode(&v)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			throw(vm, "yaml.parseAll", err)
		}
		docs = append(docs, normaliseYAML(v))
	}
	return vm.ToValue(docs)
}

func yamlStringify(vm *goja.Runtime, call goja.FunctionCall) goja.Value {
	if len(call.Arguments) == 0 {
		panic(vm.NewTypeError("yaml.stringify requires an argument"))
	}
	b, err := yaml.Marshal(call.Arguments[0].Export())
	if err != nil {
		throw(vm, "yaml.stringify", err)
	}
	return vm.ToValue(string(b))
}

func plistParse(vm *goja.Runtime, call goja.FunctionCall) goja.Value {
	var v any
	if _, err := plist.Unmarshal([]byte(arg(vm, call, "plist.parse")), &v); err != nil {
		throw(vm, "plist.parse", err)
	}
	return vm.ToValue(v)
}

func plistStringify(vm *goja.Runtime, call goja.FunctionCall) goja.Value {
	if len(call.Arguments) == 0 {
		panic(vm.NewTypeError("plist.stringify requires an argument"))
	}
	b, err := plist.MarshalIndent(call.Arguments[0].Export(), plist.XMLFormat, "\t")
	if err != nil {
		throw(vm, "plist.stringify", err)
	}
	return vm.ToValue(string(b))
}

// normaliseYAML turns map[any]any, which yaml.v3 produces for non-string
// keys, into map[string]any so goja exposes it as a plain object.
func normaliseYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = normaliseYAML(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[fmt.Sprintf("%v", k)] = normaliseYAML(vv)
		}
		return out
	case []any:
		for i, vv := range val {
			val[i] = normaliseYAML(vv)
		}
		return val
	default:
		return val
	}
}

// blockingRequireLoader serves @box/ helper files from the embedded lib
// directory and rejects every other path. goja_nodejs hands the loader
// "node_modules/@box/name" for require("@box/name").
func blockingRequireLoader(path string) ([]byte, error) {
	modPath := strings.TrimPrefix(path, "node_modules/")

	if name, ok := strings.CutPrefix(modPath, modulePrefix); ok {
		if libFS != nil {
			if data, err := fs.ReadFile(libFS, strings.TrimSuffix(name, ".js")+".js"); err == nil {
				return data, nil
			}
		}
		return nil, require.ModuleFileDoesNotExistError
	}
	return nil, fmt.Errorf("cannot find module '%s'", path)
}
