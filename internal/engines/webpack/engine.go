// Package webpack drives a project's own webpack installation through a small
// node bridge and exposes it as compilers with run, watch and an invalid hook.
package webpack

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/poltergeist/polterpack/pkg/logger"
)

// ErrNoResult is returned when the bridge exits without reporting a build
var ErrNoResult = errors.New("webpack exited without reporting a result")

// Options configures an Engine
type Options struct {
	Node   string
	Cwd    string
	Env    []string
	Runner Runner
	Logger logger.Logger
}

// Engine creates compilers for the bundles of a webpack config
type Engine struct {
	runner Runner
	log    logger.Logger
}

// New creates an engine. Without a Runner the bridge runs under node.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = NewNodeRunner(opts.Node, opts.Cwd, opts.Env)
	}
	return &Engine{runner: runner, log: log}
}

// Describe returns the names of the bundles the config exports
func (e *Engine) Describe(ctx context.Context, configPath string) ([]string, error) {
	var names []string
	var bridgeErr error
	found := false

	err := e.runner.Run(ctx, Request{Command: CommandDescribe, Config: configPath}, func(m Message) {
		switch m.Type {
		case MessageDescribe:
			names = m.Names
			found = true
		case MessageError:
			bridgeErr = errors.New(m.Error)
		}
	})
	if err != nil {
		return nil, err
	}
	if bridgeErr != nil {
		return nil, bridgeErr
	}
	if !found {
		return nil, fmt.Errorf("failed to describe %s: %w", configPath, ErrNoResult)
	}
	return names, nil
}

// Compiler returns the compiler for one exported bundle
func (e *Engine) Compiler(configPath, name string) *Compiler {
	return &Compiler{
		engine:     e,
		configPath: configPath,
		name:       name,
		Hooks:      Hooks{Invalid: &SyncHook{}},
	}
}

// Hooks are the taps a compiler exposes
type Hooks struct {
	Invalid *SyncHook
}

// SyncHook calls its taps in registration order
type SyncHook struct {
	mu   sync.Mutex
	taps []tap
}

type tap struct {
	name string
	fn   func(string)
}

// Tap registers fn under name
func (h *SyncHook) Tap(name string, fn func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.taps = append(h.taps, tap{name: name, fn: fn})
}

// Call invokes every tap with arg
func (h *SyncHook) Call(arg string) {
	h.mu.Lock()
	taps := append([]tap(nil), h.taps...)
	h.mu.Unlock()
	for _, t := range taps {
		t.fn(arg)
	}
}

// Compiler builds one bundle of a webpack config
type Compiler struct {
	engine     *Engine
	configPath string
	name       string

	Hooks Hooks
}

// Name is the bundle name
func (c *Compiler) Name() string {
	return c.name
}

// Run compiles once. Engine failures are returned as errors; compilation
// errors are reported through the stats.
func (c *Compiler) Run(ctx context.Context) (*Stats, error) {
	var stats *Stats
	var runErr error

	req := Request{Command: CommandRun, Config: c.configPath, Name: c.name}
	err := c.engine.runner.Run(ctx, req, func(m Message) {
		switch m.Type {
		case MessageDone:
			stats, runErr = ParseStats(m.Stats, m.Text)
		case MessageError:
			runErr = errors.New(m.Error)
		}
	})
	if err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, runErr
	}
	if stats == nil {
		return nil, ErrNoResult
	}
	return stats, nil
}

// Watch starts the engine's watch mode and returns once it is running. The
// handler receives every completed compilation until ctx is cancelled; a
// bridge failure is delivered as a final error.
func (c *Compiler) Watch(ctx context.Context, handler func(err error, stats *Stats)) error {
	if handler == nil {
		return errors.New("watch handler is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := Request{Command: CommandWatch, Config: c.configPath, Name: c.name}
	go func() {
		err := c.engine.runner.Run(ctx, req, func(m Message) {
			switch m.Type {
			case MessageInvalid:
				c.Hooks.Invalid.Call(m.File)
			case MessageDone:
				stats, err := ParseStats(m.Stats, m.Text)
				handler(err, stats)
			case MessageError:
				handler(errors.New(m.Error), nil)
			}
		})
		if err != nil && ctx.Err() == nil {
			c.engine.log.Error("Webpack watcher stopped", logger.WithField("bundle", c.name), logger.WithError(err))
			handler(err, nil)
		}
	}()
	return nil
}
