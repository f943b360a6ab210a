package compilers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/poltergeist/polterpack/internal/engines/rollup"
	"github.com/poltergeist/polterpack/pkg/types"
)

// Sentinel errors
var (
	// ErrUnsupportedBundler is returned by Create for an unknown bundler
	ErrUnsupportedBundler = errors.New("unsupported bundler")

	// ErrBundleAbsent is returned when the config module does not export the target
	ErrBundleAbsent = errors.New("bundle not exported by config")

	// ErrBuildFailed is returned when a one-shot build finished with build errors
	ErrBuildFailed = errors.New("encountered errors while building app")
)

// ConfigShapeError reports a config module that lacks the client or server bundle
type ConfigShapeError struct {
	Bundler types.Bundler
}

func (e *ConfigShapeError) Error() string {
	return fmt.Sprintf("%s must export a { client, server, serviceworker? } object", e.Bundler.ConfigFile())
}

// ConfigLoadError wraps a failure to compile or evaluate a config module
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error {
	return e.Err
}

// FormatDiagnostic renders a build failure for the terminal. Empty parts are
// left out.
func FormatDiagnostic(filename, message, frame string) string {
	head := message
	if filename != "" {
		head = fmt.Sprintf("Failed to build — error in %s: %s", filename, message)
	}

	var lines []string
	for _, s := range []string{head, frame} {
		if s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n")
}

// rewriteError rewrites the message of an engine error that names a file
func rewriteError(err error) error {
	var re *rollup.Error
	if !errors.As(err, &re) || re.Filename == "" {
		return err
	}
	re.Message = FormatDiagnostic(re.Filename, re.Message, re.Frame)
	return err
}
