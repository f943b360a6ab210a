package compilers

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/poltergeist/polterpack/internal/engines/webpack"
	"github.com/poltergeist/polterpack/pkg/interfaces"
	"github.com/poltergeist/polterpack/pkg/logger"
	"github.com/poltergeist/polterpack/pkg/types"
)

// WebpackOptions configures the webpack adapters
type WebpackOptions struct {
	// Node is the node executable running the bridge; "node" when empty
	Node string

	// Runner replaces the node process, mainly for tests
	Runner webpack.Runner

	// ExitOnError terminates the process when the engine itself fails
	ExitOnError bool

	// Exit is called with status 1 when ExitOnError applies; os.Exit when nil
	Exit func(code int)

	// Stderr receives the stats of failed builds; os.Stderr when nil
	Stderr io.Writer
}

// WebpackCompiler builds one bundle of a webpack.config.js
type WebpackCompiler struct {
	target   types.BuildTarget
	compiler *webpack.Compiler
	log      logger.Logger

	exitOnError bool
	exit        func(int)
	stderr      io.Writer
}

var _ interfaces.Compiler = (*WebpackCompiler)(nil)

// NewWebpackCompiler wraps the engine's compiler for target
func NewWebpackCompiler(engine *webpack.Engine, configPath string, target types.BuildTarget, opts WebpackOptions, log logger.Logger) *WebpackCompiler {
	if log == nil {
		log = logger.Nop()
	}
	exit := opts.Exit
	if exit == nil {
		exit = os.Exit
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	return &WebpackCompiler{
		target:      target,
		compiler:    engine.Compiler(configPath, string(target)),
		log:         log.WithBundle(string(target)),
		exitOnError: opts.ExitOnError,
		exit:        exit,
		stderr:      stderr,
	}
}

// Target returns the bundle this adapter builds
func (w *WebpackCompiler) Target() types.BuildTarget {
	return w.target
}

// Compile runs webpack once. Compilation errors print the stats and fail
// with ErrBuildFailed.
func (w *WebpackCompiler) Compile(ctx context.Context) (*types.Result, error) {
	stats, err := w.compiler.Run(ctx)
	if err != nil {
		w.log.Error("Webpack failed", logger.WithError(err))
		if w.exitOnError {
			w.exit(1)
		}
		return nil, err
	}

	if stats.HasErrors() {
		fmt.Fprintln(w.stderr, stats.String())
		return nil, ErrBuildFailed
	}

	return newWebpackResult(stats), nil
}

// Watch starts webpack's watch mode; it stops when ctx is cancelled
func (w *WebpackCompiler) Watch(ctx context.Context, cb interfaces.WatchCallback) error {
	if cb == nil {
		return fmt.Errorf("%s: watch callback required", w.target)
	}

	return w.compiler.Watch(ctx, func(err error, stats *webpack.Stats) {
		var result *types.Result
		if stats != nil {
			result = newWebpackResult(stats)
		}
		cb(err, result)
	})
}

// OnInvalid registers the callback run when webpack invalidates the build
func (w *WebpackCompiler) OnInvalid(cb interfaces.InvalidCallback) {
	w.compiler.Hooks.Invalid.Tap(InternalPluginName, func(file string) {
		cb(file)
	})
}
