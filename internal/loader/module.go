package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/go-viper/mapstructure/v2"

	"github.com/poltergeist/polterpack/internal/engines/rollup"
)

// Module is an evaluated config module. Calls into its runtime are serialized.
type Module struct {
	Path string

	vm      *goja.Runtime
	exports goja.Value
	mu      sync.Mutex
}

func newModule(path string, vm *goja.Runtime, exports goja.Value) *Module {
	return &Module{Path: path, vm: vm, exports: unwrapDefault(exports)}
}

// compiled ES modules keep their default export under "default"
func unwrapDefault(v goja.Value) goja.Value {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v
	}
	if esm := obj.Get("__esModule"); esm == nil || !esm.ToBoolean() {
		return v
	}
	if d := obj.Get("default"); !isNullish(d) {
		return d
	}
	return v
}

// Exports returns the module's exports as Go values
func (m *Module) Exports() interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if isNullish(m.exports) {
		return nil
	}
	return m.exports.Export()
}

// IsObject reports whether the module exports an object
func (m *Module) IsObject() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.exports.(*goja.Object)
	return ok && !isNullish(m.exports)
}

// Keys returns the exported property names
func (m *Module) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.exports.(*goja.Object)
	if !ok {
		return nil
	}
	keys := obj.Keys()
	sort.Strings(keys)
	return keys
}

// Has reports whether key is exported with a non-null value
func (m *Module) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.exports.(*goja.Object)
	if !ok {
		return false
	}
	return !isNullish(obj.Get(key))
}

// RollupConfig decodes the exported sub-object key into engine options.
// JavaScript hooks are wrapped so the engine can call them from any goroutine.
func (m *Module) RollupConfig(key string) (*rollup.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exports, ok := m.exports.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("%s does not export an object", m.Path)
	}
	v := exports.Get(key)
	if isNullish(v) {
		return nil, fmt.Errorf("%s does not export %q", m.Path, key)
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("%s: %q is not an object", m.Path, key)
	}

	cfg := &rollup.Config{}

	input, err := decodeInput(obj.Get("input"))
	if err != nil {
		return nil, fmt.Errorf("%s: %s.input: %w", m.Path, key, err)
	}
	cfg.Input = input

	if cfg.Output, err = decodeOutput(obj.Get("output")); err != nil {
		return nil, fmt.Errorf("%s: %s.output: %w", m.Path, key, err)
	}
	if cfg.Plugins, err = m.decodePlugins(obj.Get("plugins")); err != nil {
		return nil, fmt.Errorf("%s: %s.plugins: %w", m.Path, key, err)
	}
	if cfg.Watch, err = decodeWatch(obj.Get("watch")); err != nil {
		return nil, fmt.Errorf("%s: %s.watch: %w", m.Path, key, err)
	}
	if err := m.decodeExternal(obj.Get("external"), cfg); err != nil {
		return nil, fmt.Errorf("%s: %s.external: %w", m.Path, key, err)
	}
	if fn, ok := goja.AssertFunction(obj.Get("onwarn")); ok {
		cfg.OnWarn = m.wrapOnWarn(fn)
	}
	if v := obj.Get("inlineDynamicImports"); !isNullish(v) {
		cfg.InlineDynamicImports = v.ToBoolean()
	}
	if v := obj.Get("minify"); !isNullish(v) {
		cfg.Minify = v.ToBoolean()
	}
	if v := obj.Get("platform"); !isNullish(v) {
		cfg.Platform = v.String()
	}
	if v := obj.Get("define"); !isNullish(v) {
		if defs, ok := v.Export().(map[string]interface{}); ok {
			cfg.Define = make(map[string]string, len(defs))
			for k, d := range defs {
				cfg.Define[k] = fmt.Sprint(d)
			}
		}
	}

	return cfg, nil
}

func decodeInput(v goja.Value) (rollup.Input, error) {
	if isNullish(v) {
		return rollup.Input{}, nil
	}

	switch x := v.Export().(type) {
	case string:
		return rollup.SingleInput(x), nil
	case []interface{}:
		named := make(map[string]string, len(x))
		for _, item := range x {
			p, ok := item.(string)
			if !ok {
				return rollup.Input{}, fmt.Errorf("expected string entry, got %T", item)
			}
			base := filepath.Base(p)
			named[strings.TrimSuffix(base, filepath.Ext(base))] = p
		}
		return rollup.NamedInput(named), nil
	case map[string]interface{}:
		named := make(map[string]string, len(x))
		for name, item := range x {
			p, ok := item.(string)
			if !ok {
				return rollup.Input{}, fmt.Errorf("expected string for %q, got %T", name, item)
			}
			named[name] = p
		}
		return rollup.NamedInput(named), nil
	case map[string]string:
		return rollup.NamedInput(x), nil
	default:
		return rollup.Input{}, fmt.Errorf("unsupported input %T", x)
	}
}

var sourcemapType = reflect.TypeOf(rollup.SourcemapMode(""))

// sourcemap accepts booleans as well as the named modes
func sourcemapHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != sourcemapType {
		return data, nil
	}
	switch v := data.(type) {
	case bool:
		if v {
			return rollup.SourcemapFile, nil
		}
		return rollup.SourcemapOff, nil
	case string:
		switch v {
		case "true":
			return rollup.SourcemapFile, nil
		case "false":
			return rollup.SourcemapOff, nil
		}
	}
	return data, nil
}

func decodeOutput(v goja.Value) (rollup.OutputOptions, error) {
	var out rollup.OutputOptions
	if isNullish(v) {
		return out, nil
	}

	raw := v.Export()
	// several outputs: the first one is built
	if list, ok := raw.([]interface{}); ok {
		if len(list) == 0 {
			return out, nil
		}
		raw = list[0]
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: sourcemapHook,
		Result:     &out,
		TagName:    "mapstructure",
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(raw); err != nil {
		return out, err
	}
	return out, nil
}

// decodeWatch reads watch.include and watch.exclude; each is a glob or a list of globs
func decodeWatch(v goja.Value) (rollup.WatchConfig, error) {
	var out rollup.WatchConfig
	if isNullish(v) {
		return out, nil
	}
	raw, ok := v.Export().(map[string]interface{})
	if !ok {
		return out, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	return out, decoder.Decode(raw)
}

func (m *Module) decodePlugins(v goja.Value) ([]rollup.Plugin, error) {
	if isNullish(v) {
		return nil, nil
	}
	list, ok := v.(*goja.Object)
	if !ok {
		return nil, errors.New("expected an array")
	}

	n := int(list.Get("length").ToInteger())
	plugins := make([]rollup.Plugin, 0, n)
	for i := 0; i < n; i++ {
		item := list.Get(fmt.Sprint(i))
		// falsy entries let configs toggle plugins inline
		if isNullish(item) || !item.ToBoolean() {
			continue
		}
		obj, ok := item.(*goja.Object)
		if !ok {
			return nil, fmt.Errorf("plugin %d is not an object", i)
		}
		plugins = append(plugins, m.wrapPlugin(obj, i))
	}
	return plugins, nil
}

func (m *Module) wrapPlugin(obj *goja.Object, index int) rollup.Plugin {
	p := rollup.Plugin{Name: fmt.Sprintf("plugin-%d", index)}
	if name := obj.Get("name"); !isNullish(name) {
		p.Name = name.String()
	}

	if fn, ok := goja.AssertFunction(obj.Get("options")); ok {
		p.Options = func(cfg *rollup.Config) error {
			m.mu.Lock()
			defer m.mu.Unlock()

			res, err := fn(obj, m.vm.ToValue(map[string]interface{}{"input": inputValue(cfg.Input)}))
			if err != nil {
				return jsError(err)
			}
			if res, err = settle(res); err != nil {
				return err
			}
			if ro, ok := res.(*goja.Object); ok && !isNullish(ro.Get("input")) {
				in, err := decodeInput(ro.Get("input"))
				if err != nil {
					return err
				}
				cfg.Input = in
			}
			return nil
		}
	}

	if fn, ok := goja.AssertFunction(obj.Get("transform")); ok {
		p.Transform = func(code, id string) (*rollup.TransformResult, error) {
			m.mu.Lock()
			defer m.mu.Unlock()

			res, err := fn(obj, m.vm.ToValue(code), m.vm.ToValue(id))
			if err != nil {
				return nil, jsError(err)
			}
			if res, err = settle(res); err != nil {
				return nil, err
			}
			if isNullish(res) {
				return nil, nil
			}
			if ro, ok := res.(*goja.Object); ok {
				c := ro.Get("code")
				if isNullish(c) {
					return nil, nil
				}
				return &rollup.TransformResult{Code: c.String()}, nil
			}
			return &rollup.TransformResult{Code: res.String()}, nil
		}
	}

	if fn, ok := goja.AssertFunction(obj.Get("renderChunk")); ok {
		p.RenderChunk = func(code string, chunk rollup.ChunkInfo) error {
			m.mu.Lock()
			defer m.mu.Unlock()

			res, err := fn(obj, m.vm.ToValue(code), m.vm.ToValue(chunkValue(chunk)))
			if err != nil {
				return jsError(err)
			}
			_, err = settle(res)
			return err
		}
	}

	return p
}

func (m *Module) decodeExternal(v goja.Value, cfg *rollup.Config) error {
	if isNullish(v) {
		return nil
	}
	if fn, ok := goja.AssertFunction(v); ok {
		cfg.IsExternal = func(id string) bool {
			m.mu.Lock()
			defer m.mu.Unlock()
			res, err := fn(goja.Undefined(), m.vm.ToValue(id))
			return err == nil && res.ToBoolean()
		}
		return nil
	}
	switch x := v.Export().(type) {
	case string:
		cfg.External = []string{x}
	case []interface{}:
		for _, item := range x {
			cfg.External = append(cfg.External, fmt.Sprint(item))
		}
	default:
		return fmt.Errorf("unsupported external %T", x)
	}
	return nil
}

func (m *Module) wrapOnWarn(fn goja.Callable) rollup.OnWarn {
	return func(w *rollup.Warning, next rollup.WarningHandler) {
		m.mu.Lock()
		defer m.mu.Unlock()

		warn := func(call goja.FunctionCall) goja.Value {
			next(w)
			return goja.Undefined()
		}
		if _, err := fn(goja.Undefined(), m.vm.ToValue(warningValue(w)), m.vm.ToValue(warn)); err != nil {
			// a throwing handler still surfaces the warning
			next(w)
		}
	}
}

// settle unwraps a promise returned by a hook. Jobs run when the call
// returns, so anything not settled by then never will be.
func settle(v goja.Value) (goja.Value, error) {
	if isNullish(v) {
		return v, nil
	}
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), nil
	case goja.PromiseStateRejected:
		return nil, valueError(p.Result())
	default:
		return nil, errors.New("hook returned a promise that never settled")
	}
}

func inputValue(in rollup.Input) interface{} {
	if !in.IsNamed() {
		return in.Path
	}
	named := make(map[string]interface{}, len(in.Named))
	for k, v := range in.Named {
		named[k] = v
	}
	return named
}

func chunkValue(c rollup.ChunkInfo) map[string]interface{} {
	modules := make(map[string]interface{}, len(c.Modules))
	for _, id := range c.Modules {
		modules[id] = map[string]interface{}{}
	}
	return map[string]interface{}{
		"fileName":       c.FileName,
		"name":           c.Name,
		"isEntry":        c.IsEntry,
		"facadeModuleId": c.FacadeModuleID,
		"imports":        stringsValue(c.Imports),
		"exports":        stringsValue(c.Exports),
		"modules":        modules,
	}
}

func warningValue(w *rollup.Warning) map[string]interface{} {
	v := map[string]interface{}{
		"code":    w.Code,
		"message": w.Message,
	}
	if w.ID != "" {
		v["id"] = w.ID
		v["loc"] = map[string]interface{}{"file": w.ID, "line": w.Line, "column": w.Column}
	}
	if w.Frame != "" {
		v["frame"] = w.Frame
	}
	if w.Plugin != "" {
		v["plugin"] = w.Plugin
	}
	return v
}

func stringsValue(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
