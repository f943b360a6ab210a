package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/poltergeist/polterpack/internal/engines/rollup"
	"github.com/poltergeist/polterpack/pkg/logger"
)

// Externalize reports whether the config bundle leaves id to the runtime's
// require: bare package names and JSON files are not inlined.
func Externalize(id string) bool {
	if strings.HasSuffix(id, ".json") {
		return true
	}
	return id != "" && id[0] != '.' && !filepath.IsAbs(id)
}

// Load compiles the config module at path with engine and evaluates it
func (h *Host) Load(ctx context.Context, path string, engine *rollup.Engine) (*Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	cfg := &rollup.Config{
		Input:                rollup.SingleInput(abs),
		Output:               rollup.OutputOptions{Format: "cjs", File: bundledName(abs)},
		IsExternal:           Externalize,
		InlineDynamicImports: true,
		Platform:             "node",
		Cwd:                  filepath.Dir(abs),
	}

	bundle, err := engine.Rollup(ctx, cfg)
	if err != nil {
		return nil, err
	}
	out, err := bundle.Generate(ctx, cfg.Output)
	if err != nil {
		return nil, err
	}
	if len(out.Chunks) != 1 {
		return nil, fmt.Errorf("expected a single chunk for %s, got %d", abs, len(out.Chunks))
	}

	h.logger().Debug("Compiled config module", logger.WithField("path", abs))
	return h.Evaluate(abs, []byte(out.Chunks[0].Code))
}

// bundledName is where the compiled config would be written; it only names
// the in-memory output
func bundledName(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".polterpack.cjs"
}

// Load compiles and evaluates path with the process-wide host
func Load(ctx context.Context, path string, engine *rollup.Engine) (*Module, error) {
	return Default().Load(ctx, path, engine)
}
