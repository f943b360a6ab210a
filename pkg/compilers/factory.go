// Package compilers adapts the supported bundler engines to one compile and
// watch interface and builds the set of compilers for a project.
package compilers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/poltergeist/polterpack/internal/engines/webpack"
	"github.com/poltergeist/polterpack/internal/group"
	"github.com/poltergeist/polterpack/internal/loader"
	"github.com/poltergeist/polterpack/pkg/env"
	"github.com/poltergeist/polterpack/pkg/interfaces"
	"github.com/poltergeist/polterpack/pkg/logger"
	"github.com/poltergeist/polterpack/pkg/types"
)

// Options selects the engine and environment of a compiler set
type Options struct {
	Bundler types.Bundler

	// Nollup uses the incremental engine for rollup configs; it only applies in dev
	Nollup bool

	Cwd  string
	Src  string
	Dest string
	Dev  bool

	Logger  logger.Logger
	Host    *loader.Host
	Webpack WebpackOptions
}

// CompilerSet holds one compiler per bundle exported by the config module
type CompilerSet struct {
	Bundler       types.Bundler
	Client        interfaces.Compiler
	Server        interfaces.Compiler
	ServiceWorker interfaces.Compiler

	// UsesDevServer is false when the compilers serve their own output
	UsesDevServer bool
}

// Get returns the compiler for target, or nil
func (s *CompilerSet) Get(target types.BuildTarget) interfaces.Compiler {
	switch target {
	case types.TargetClient:
		return s.Client
	case types.TargetServer:
		return s.Server
	case types.TargetServiceWorker:
		return s.ServiceWorker
	}
	return nil
}

// Targets lists the targets that have a compiler, in construction order
func (s *CompilerSet) Targets() []types.BuildTarget {
	var out []types.BuildTarget
	for _, t := range types.BuildTargets() {
		if s.Get(t) != nil {
			out = append(out, t)
		}
	}
	return out
}

// Each calls fn for every present compiler and stops at the first error
func (s *CompilerSet) Each(fn func(types.BuildTarget, interfaces.Compiler) error) error {
	for _, t := range s.Targets() {
		if err := fn(t, s.Get(t)); err != nil {
			return err
		}
	}
	return nil
}

// Close releases engine state held by the compilers
func (s *CompilerSet) Close() {
	for _, t := range s.Targets() {
		if c, ok := s.Get(t).(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// Create sets the build environment and constructs the compilers for
// <cwd>/<bundler>.config.js. The service worker compiler is omitted when the
// config does not export one.
func Create(ctx context.Context, opts Options) (*CompilerSet, error) {
	if !opts.Bundler.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBundler, opts.Bundler)
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	cwd := opts.Cwd
	if cwd == "" {
		cwd = "."
	}
	cwd, err := filepath.Abs(cwd)
	if err != nil {
		return nil, err
	}

	current := env.Get()
	current.Dev = opts.Dev
	if opts.Src != "" {
		current.Src = opts.Src
	}
	if opts.Dest != "" {
		current.Dest = opts.Dest
	}
	env.Set(current)

	configPath := filepath.Join(cwd, opts.Bundler.ConfigFile())

	if opts.Bundler == types.BundlerWebpack {
		return createWebpack(ctx, configPath, cwd, current, opts, log)
	}
	return createRollup(ctx, configPath, cwd, opts, log)
}

func createRollup(ctx context.Context, configPath, cwd string, opts Options, log logger.Logger) (*CompilerSet, error) {
	nollup := opts.Dev && opts.Nollup
	adapterOpts := AdapterOptions{Cwd: cwd, Logger: log, Host: opts.Host}

	g, gctx := group.NewSafeGroup(ctx, log)
	built := make([]interfaces.Compiler, len(types.BuildTargets()))

	for i, target := range types.BuildTargets() {
		i, target := i, target
		g.Go(func() error {
			var (
				c   interfaces.Compiler
				err error
			)
			if nollup {
				c, err = NewNollupCompiler(gctx, configPath, target, adapterOpts)
			} else {
				c, err = NewRollupCompiler(gctx, configPath, target, adapterOpts)
			}
			if errors.Is(err, ErrBundleAbsent) && !target.IsRequired() {
				return nil
			}
			if err != nil {
				return err
			}
			built[i] = c
			return nil
		})
	}

	set := &CompilerSet{Bundler: types.BundlerRollup, UsesDevServer: !nollup}
	err := g.Wait()
	assign(set, built)
	if err != nil {
		set.Close()
		return nil, err
	}

	log.Debug("Created compilers",
		logger.WithField("bundler", set.Bundler),
		logger.WithField("nollup", nollup),
		logger.WithField("targets", set.Targets()))
	return set, nil
}

func createWebpack(ctx context.Context, configPath, cwd string, current env.Env, opts Options, log logger.Logger) (*CompilerSet, error) {
	engine := webpack.New(webpack.Options{
		Node:   opts.Webpack.Node,
		Cwd:    cwd,
		Env:    current.Vars(),
		Runner: opts.Webpack.Runner,
		Logger: log,
	})

	names, err := engine.Describe(ctx, configPath)
	if err != nil {
		return nil, &ConfigLoadError{Path: configPath, Err: err}
	}
	exported := make(map[string]bool, len(names))
	for _, n := range names {
		exported[n] = true
	}
	if !exported[string(types.TargetClient)] || !exported[string(types.TargetServer)] {
		return nil, &ConfigShapeError{Bundler: types.BundlerWebpack}
	}

	built := make([]interfaces.Compiler, len(types.BuildTargets()))
	for i, target := range types.BuildTargets() {
		if exported[string(target)] {
			built[i] = NewWebpackCompiler(engine, configPath, target, opts.Webpack, log)
		}
	}

	set := &CompilerSet{Bundler: types.BundlerWebpack, UsesDevServer: true}
	assign(set, built)

	log.Debug("Created compilers",
		logger.WithField("bundler", set.Bundler),
		logger.WithField("targets", set.Targets()))
	return set, nil
}

// assign places compilers built in types.BuildTargets() order
func assign(set *CompilerSet, built []interfaces.Compiler) {
	for i, target := range types.BuildTargets() {
		if built[i] == nil {
			continue
		}
		switch target {
		case types.TargetClient:
			set.Client = built[i]
		case types.TargetServer:
			set.Server = built[i]
		case types.TargetServiceWorker:
			set.ServiceWorker = built[i]
		}
	}
}
