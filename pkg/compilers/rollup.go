package compilers

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/poltergeist/polterpack/internal/engines/rollup"
	"github.com/poltergeist/polterpack/internal/loader"
	"github.com/poltergeist/polterpack/pkg/env"
	"github.com/poltergeist/polterpack/pkg/interfaces"
	"github.com/poltergeist/polterpack/pkg/logger"
	"github.com/poltergeist/polterpack/pkg/types"
)

// InternalPluginName names the plugin every adapter appends to the user's plugins
const InternalPluginName = "polterpack-internal"

var cssPattern = regexp.MustCompile(`\.css$`)

// AdapterOptions configures a Rollup or Nollup adapter
type AdapterOptions struct {
	// Cwd resolves relative inputs; the config module's directory when empty
	Cwd    string
	Logger logger.Logger

	// Host evaluates the config module; loader.Default() when nil
	Host *loader.Host
}

// RollupCompiler builds one target of a rollup.config.js
type RollupCompiler struct {
	*rollupCore
}

// NollupCompiler builds one target with the incremental engine. It serves
// its own output, so a set using it needs no separate dev server.
type NollupCompiler struct {
	*rollupCore
}

var (
	_ interfaces.Compiler = (*RollupCompiler)(nil)
	_ interfaces.Compiler = (*NollupCompiler)(nil)
)

// NewRollupCompiler loads configPath and prepares the target's sub-config
func NewRollupCompiler(ctx context.Context, configPath string, target types.BuildTarget, opts AdapterOptions) (*RollupCompiler, error) {
	core, err := newRollupCore(ctx, configPath, target, false, opts)
	if err != nil {
		return nil, err
	}
	return &RollupCompiler{core}, nil
}

// NewNollupCompiler is NewRollupCompiler backed by the incremental engine
func NewNollupCompiler(ctx context.Context, configPath string, target types.BuildTarget, opts AdapterOptions) (*NollupCompiler, error) {
	core, err := newRollupCore(ctx, configPath, target, true, opts)
	if err != nil {
		return nil, err
	}
	return &NollupCompiler{core}, nil
}

// rollupCore is shared by the Rollup and Nollup adapters
type rollupCore struct {
	target types.BuildTarget
	engine *rollup.Engine
	cfg    *rollup.Config
	log    logger.Logger

	mu      sync.Mutex
	current *cycle
	invalid interfaces.InvalidCallback
}

func newRollupCore(ctx context.Context, configPath string, target types.BuildTarget, incremental bool, opts AdapterOptions) (*rollupCore, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	host := opts.Host
	if host == nil {
		host = loader.Default()
	}

	engine := rollup.New(rollup.Options{Incremental: incremental, Logger: log})

	mod, err := host.Load(ctx, configPath, engine)
	if err != nil {
		engine.Close()
		return nil, &ConfigLoadError{Path: configPath, Err: err}
	}

	if !mod.Has(string(types.TargetClient)) || !mod.Has(string(types.TargetServer)) {
		engine.Close()
		return nil, &ConfigShapeError{Bundler: types.BundlerRollup}
	}
	if !mod.Has(string(target)) {
		engine.Close()
		return nil, fmt.Errorf("%s: %w", target, ErrBundleAbsent)
	}

	cfg, err := mod.RollupConfig(string(target))
	if err != nil {
		engine.Close()
		return nil, &ConfigLoadError{Path: configPath, Err: err}
	}
	if cfg.Cwd == "" {
		cfg.Cwd = opts.Cwd
	}
	if cfg.Cwd == "" {
		cfg.Cwd = filepath.Dir(mod.Path)
	}
	NormalizeInput(cfg)

	c := &rollupCore{
		target:  target,
		engine:  engine,
		cfg:     cfg,
		log:     log.WithBundle(string(target)),
		current: newCycle(),
	}
	c.instrument()

	c.log.Debug("Prepared bundle",
		logger.WithField("engine", engine.Name()),
		logger.WithField("input", cfg.Input.String()))
	return c, nil
}

// instrument appends the internal plugin and wraps the warning handler
func (c *rollupCore) instrument() {
	c.cfg.Plugins = append(c.cfg.Plugins, rollup.Plugin{
		Name: InternalPluginName,
		Options: func(cfg *rollup.Config) error {
			c.cycle().setInput(cfg.Input, cfg.Cwd)
			return nil
		},
		Transform: func(code, id string) (*rollup.TransformResult, error) {
			if !cssPattern.MatchString(id) {
				return nil, nil
			}
			c.cycle().addCSS(id, code)
			return &rollup.TransformResult{Code: ""}, nil
		},
		RenderChunk: func(code string, chunk rollup.ChunkInfo) error {
			c.cycle().addChunk(code, chunk)
			return nil
		},
	})

	user := c.cfg.OnWarn
	c.cfg.OnWarn = func(w *rollup.Warning, next rollup.WarningHandler) {
		c.cycle().addWarning(w)
		if user != nil {
			user(w, next)
		}
	}

	if c.cfg.Define == nil {
		c.cfg.Define = make(map[string]string)
	}
	if _, ok := c.cfg.Define["process.env.NODE_ENV"]; !ok {
		nodeEnv, _ := json.Marshal(env.Get().NodeEnv())
		c.cfg.Define["process.env.NODE_ENV"] = string(nodeEnv)
	}
}

// Target returns the bundle this adapter builds
func (c *rollupCore) Target() types.BuildTarget {
	return c.target
}

// Config returns the prepared engine configuration
func (c *rollupCore) Config() *rollup.Config {
	return c.cfg
}

// Close releases the engine's incremental state
func (c *rollupCore) Close() {
	c.engine.Close()
}

func (c *rollupCore) cycle() *cycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// reset replaces the accumulator and returns the new one
func (c *rollupCore) reset() *cycle {
	next := newCycle()
	c.mu.Lock()
	if prev := c.current; prev != nil {
		// the input is fixed per config; events may trail the Options hook
		in, cwd := prev.inputs()
		next.setInput(in, cwd)
	}
	c.current = next
	c.mu.Unlock()
	return next
}

// Compile builds and writes the target once
func (c *rollupCore) Compile(ctx context.Context) (*types.Result, error) {
	cyc := c.reset()

	bundle, err := c.engine.Rollup(ctx, c.cfg)
	if err != nil {
		return nil, rewriteError(err)
	}
	if _, err := bundle.Write(ctx, c.cfg.Output); err != nil {
		return nil, rewriteError(err)
	}

	result := newRollupResult(cyc.elapsed(), cyc)
	c.log.Debug("Compiled bundle", logger.WithField("duration_ms", result.DurationMs()))
	return result, nil
}

// Watch starts the engine watcher; it stops when ctx is cancelled
func (c *rollupCore) Watch(ctx context.Context, cb interfaces.WatchCallback) error {
	if cb == nil {
		return fmt.Errorf("%s: watch callback required", c.target)
	}

	_, err := c.engine.Watch(ctx, c.cfg, rollup.WatchHandlers{
		OnChange: func(id string) {
			c.handle(watchEvent{kind: eventInvalidate, id: id}, cb)
		},
		OnEvent: func(ev rollup.Event) {
			c.handle(translate(ev), cb)
		},
	})
	return err
}

// OnInvalid registers the callback run when a watched source changes
func (c *rollupCore) OnInvalid(cb interfaces.InvalidCallback) {
	c.mu.Lock()
	c.invalid = cb
	c.mu.Unlock()
}

func (c *rollupCore) handle(ev watchEvent, cb interfaces.WatchCallback) {
	switch ev.kind {
	case eventInvalidate:
		c.reset()
		c.log.Debug("Source changed", logger.WithField("file", ev.id))
		c.mu.Lock()
		invalid := c.invalid
		c.mu.Unlock()
		if invalid != nil {
			invalid(ev.id)
		}

	case eventCycleStart:
		c.reset()

	case eventCycleEnd:
		cyc := c.cycle()
		result := newRollupResult(cyc.elapsed(), cyc)
		c.log.Debug("Rebuilt bundle", logger.WithField("duration_ms", result.DurationMs()))
		cb(nil, result)

	case eventBuildError:
		cyc := c.cycle()
		if ev.err != nil {
			cyc.addError(ev.err)
		}
		cb(nil, newRollupResult(cyc.elapsed(), cyc))

	case eventFatal:
		var err error = &rollup.Error{Message: "watcher stopped"}
		if ev.err != nil {
			err = rewriteError(ev.err)
		}
		cb(err, nil)

	case eventBoundary:

	default:
		c.log.Warn("Unexpected event", logger.WithField("code", ev.code))
	}
}

type eventKind int

const (
	eventUnrecognized eventKind = iota
	eventBoundary
	eventCycleStart
	eventCycleEnd
	eventInvalidate
	eventBuildError
	eventFatal
)

type watchEvent struct {
	kind eventKind
	code rollup.EventCode
	id   string
	err  *rollup.Error
}

// translate maps an engine event onto the adapter's closed set of kinds
func translate(ev rollup.Event) watchEvent {
	we := watchEvent{code: ev.Code, err: ev.Error}
	switch ev.Code {
	case rollup.EventStart, rollup.EventEnd:
		we.kind = eventBoundary
	case rollup.EventBundleStart:
		we.kind = eventCycleStart
	case rollup.EventBundleEnd:
		we.kind = eventCycleEnd
	case rollup.EventError:
		we.kind = eventBuildError
	case rollup.EventFatal:
		we.kind = eventFatal
	default:
		we.kind = eventUnrecognized
	}
	return we
}
