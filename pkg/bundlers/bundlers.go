// Package bundlers selects which bundler engine drives a project
package bundlers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poltergeist/polterpack/pkg/types"
)

// Select returns the requested bundler, or the first bundler whose config
// module exists in cwd when none was requested.
func Select(cwd string, requested types.Bundler) (types.Bundler, error) {
	if requested != "" {
		if !requested.IsValid() {
			return "", fmt.Errorf("unsupported bundler %q", requested)
		}
		if err := rejectConfigDir(cwd, requested); err != nil {
			return "", err
		}
		return requested, nil
	}

	supported := types.SupportedBundlers()
	for _, b := range supported {
		if fileExists(filepath.Join(cwd, b.ConfigFile())) {
			return b, nil
		}
	}

	for _, b := range supported {
		if err := rejectConfigDir(cwd, b); err != nil {
			return "", err
		}
	}

	names := make([]string, 0, len(supported))
	for _, b := range supported {
		names = append(names, b.ConfigFile())
	}
	return "", fmt.Errorf("could not find one of %s", strings.Join(names, ", "))
}

// rejectConfigDir fails for the old layout where build config lived in a
// directory named after the bundler.
func rejectConfigDir(cwd string, b types.Bundler) error {
	info, err := os.Stat(filepath.Join(cwd, string(b)))
	if err != nil || !info.IsDir() {
		return nil
	}
	return fmt.Errorf("build configuration should be placed in a single %s file, not a %s/ directory", b.ConfigFile(), b)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
