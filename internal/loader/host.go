// Package loader evaluates build configuration modules.
//
// A config module is first bundled by the engine it configures (so it may use
// ES module syntax and import local helpers) and the single CommonJS output is
// then evaluated in a JavaScript runtime. While it runs, requests for the
// config's own path resolve to the compiled code instead of the file on disk.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/process"
	"github.com/dop251/goja_nodejs/require"

	"github.com/poltergeist/polterpack/pkg/logger"
)

// Host resolves module sources for config evaluation. It is shared by every
// loader in the process, like a module system would be.
type Host struct {
	log logger.Logger

	// window serializes override windows
	window sync.Mutex

	mu        sync.RWMutex
	overrides map[string][]byte
	cache     map[string][]byte
	natives   map[string]require.ModuleLoader
}

var (
	defaultHost     *Host
	defaultHostOnce sync.Once
)

// Default returns the process-wide host
func Default() *Host {
	defaultHostOnce.Do(func() {
		defaultHost = NewHost(nil)
	})
	return defaultHost
}

// NewHost creates a host with the built-in native modules registered
func NewHost(log logger.Logger) *Host {
	if log == nil {
		log = logger.Nop()
	}
	h := &Host{
		log:       log,
		overrides: make(map[string][]byte),
		cache:     make(map[string][]byte),
		natives:   make(map[string]require.ModuleLoader),
	}
	h.RegisterNativeModule(PathModule, pathModule)
	h.RegisterNativeModule(ConfigModule, configModule)
	return h
}

// SetLogger replaces the logger that receives console output of config modules
func (h *Host) SetLogger(log logger.Logger) {
	if log == nil {
		log = logger.Nop()
	}
	h.mu.Lock()
	h.log = log
	h.mu.Unlock()
}

func (h *Host) logger() logger.Logger {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.log
}

// RegisterNativeModule makes a Go implemented module requirable by name
func (h *Host) RegisterNativeModule(name string, loader require.ModuleLoader) {
	h.mu.Lock()
	h.natives[name] = loader
	h.mu.Unlock()
}

// WithOverride resolves path to code while fn runs. The previous resolution is
// restored and the cached source for path evicted afterwards, even if fn
// panics. Windows are serialized, so fn must not open another one.
func (h *Host) WithOverride(path string, code []byte, fn func() error) error {
	key := filepath.Clean(path)

	h.window.Lock()
	defer h.window.Unlock()

	h.mu.Lock()
	prev, hadPrev := h.overrides[key]
	h.overrides[key] = code
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if hadPrev {
			h.overrides[key] = prev
		} else {
			delete(h.overrides, key)
		}
		delete(h.cache, key)
		h.mu.Unlock()
	}()

	return fn()
}

// Source returns what a require of path currently resolves to
func (h *Host) Source(path string) ([]byte, error) {
	key := filepath.Clean(path)

	h.mu.RLock()
	if code, ok := h.overrides[key]; ok {
		h.mu.RUnlock()
		return code, nil
	}
	if code, ok := h.cache[key]; ok {
		h.mu.RUnlock()
		return code, nil
	}
	h.mu.RUnlock()

	code, err := require.DefaultSourceLoader(key)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.cache[key] = code
	h.mu.Unlock()
	return code, nil
}

// Cached reports whether the source of path is held in the cache
func (h *Host) Cached(path string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.cache[filepath.Clean(path)]
	return ok
}

// newRuntime creates a runtime with its own registry, so compiled programs
// never outlive one evaluation.
func (h *Host) newRuntime() (*goja.Runtime, *require.RequireModule) {
	vm := goja.New()

	registry := require.NewRegistry(require.WithLoader(h.Source))

	h.mu.RLock()
	for name, loader := range h.natives {
		registry.RegisterNativeModule(name, loader)
	}
	h.mu.RUnlock()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&printer{log: h.logger()}))

	req := registry.Enable(vm)
	console.Enable(vm)
	process.Enable(vm)
	return vm, req
}

// Evaluate runs code as the module at path and returns its exports
func (h *Host) Evaluate(path string, code []byte) (*Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	vm, req := h.newRuntime()

	var exports goja.Value
	err = h.WithOverride(abs, code, func() error {
		v, err := req.Require(abs)
		exports = v
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate %s: %w", abs, jsError(err))
	}

	return newModule(abs, vm, exports), nil
}

// printer routes console output of config modules to the logger
type printer struct {
	log logger.Logger
}

func (p *printer) Log(s string)   { p.log.Info(s) }
func (p *printer) Warn(s string)  { p.log.Warn(s) }
func (p *printer) Error(s string) { p.log.Error(s) }

// jsError turns a thrown JavaScript value into a Go error carrying its message
func jsError(err error) error {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return err
	}
	return valueError(ex.Value())
}

func valueError(v goja.Value) error {
	if isNullish(v) {
		return errors.New("undefined thrown")
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); !isNullish(msg) {
			return errors.New(msg.String())
		}
	}
	return errors.New(v.String())
}

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
