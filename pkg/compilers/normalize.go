package compilers

import (
	"path/filepath"
	"strings"

	"github.com/poltergeist/polterpack/internal/engines/rollup"
)

// NormalizePath converts both separator styles to the platform separator and
// cleans the result. Applying it twice changes nothing.
func NormalizePath(p string) string {
	if p == "" {
		return p
	}
	p = strings.NewReplacer("/", string(filepath.Separator), `\`, string(filepath.Separator)).Replace(p)
	return filepath.Clean(p)
}

// NormalizeInput normalizes every entry path of cfg in place
func NormalizeInput(cfg *rollup.Config) {
	if cfg == nil {
		return
	}

	cfg.Input.Path = NormalizePath(cfg.Input.Path)
	for name, p := range cfg.Input.Named {
		cfg.Input.Named[name] = NormalizePath(p)
	}
}
