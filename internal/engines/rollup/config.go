// Package rollup implements a Rollup-shaped bundler engine on top of esbuild.
//
// The engine speaks Rollup's vocabulary: input options with plugins whose
// options, transform and renderChunk hooks run during a build, an onwarn
// handler, bundles that are generated or written per output descriptor, and a
// watch mode that reports change notifications and the START, BUNDLE_START,
// BUNDLE_END, END, ERROR and FATAL event codes. Module resolution, bundling and
// code splitting are left to esbuild. In incremental mode the engine keeps one
// esbuild context alive and rebuilds it, which is the development-only variant.
package rollup

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Input is either a single entry path or a mapping from chunk name to entry path
type Input struct {
	Path  string
	Named map[string]string
}

// SingleInput creates an input with one unnamed entry point
func SingleInput(path string) Input {
	return Input{Path: path}
}

// NamedInput creates an input from a name to path mapping
func NamedInput(entries map[string]string) Input {
	named := make(map[string]string, len(entries))
	for k, v := range entries {
		named[k] = v
	}
	return Input{Named: named}
}

// IsNamed reports whether the input is a mapping
func (in Input) IsNamed() bool {
	return in.Named != nil
}

// IsZero reports whether no entry point was configured
func (in Input) IsZero() bool {
	return in.Path == "" && len(in.Named) == 0
}

// Names returns the entry names in sorted order
func (in Input) Names() []string {
	names := make([]string, 0, len(in.Named))
	for name := range in.Named {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Paths returns every entry path, named entries sorted by name
func (in Input) Paths() []string {
	if !in.IsNamed() {
		if in.Path == "" {
			return nil
		}
		return []string{in.Path}
	}
	paths := make([]string, 0, len(in.Named))
	for _, name := range in.Names() {
		paths = append(paths, in.Named[name])
	}
	return paths
}

func (in Input) String() string {
	if !in.IsNamed() {
		return in.Path
	}
	parts := make([]string, 0, len(in.Named))
	for _, name := range in.Names() {
		parts = append(parts, fmt.Sprintf("%s=%s", name, in.Named[name]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// SourcemapMode selects how source maps are emitted
type SourcemapMode string

const (
	SourcemapOff    SourcemapMode = ""
	SourcemapFile   SourcemapMode = "file"
	SourcemapInline SourcemapMode = "inline"
	SourcemapHidden SourcemapMode = "hidden"
)

// OutputOptions describes where and how a bundle is emitted
type OutputOptions struct {
	Dir            string        `mapstructure:"dir"`
	File           string        `mapstructure:"file"`
	Format         string        `mapstructure:"format"`
	Sourcemap      SourcemapMode `mapstructure:"sourcemap"`
	EntryFileNames string        `mapstructure:"entryFileNames"`
	ChunkFileNames string        `mapstructure:"chunkFileNames"`
}

// IsZero reports whether no output option was set
func (o OutputOptions) IsZero() bool {
	return o == OutputOptions{}
}

// OutDir returns the directory emitted files are placed in
func (o OutputOptions) OutDir() string {
	if o.Dir != "" {
		return o.Dir
	}
	if o.File != "" {
		return filepath.Dir(o.File)
	}
	return ""
}

// ChunkInfo describes a rendered chunk
type ChunkInfo struct {
	FileName       string
	Name           string
	IsEntry        bool
	FacadeModuleID string
	Imports        []string
	Exports        []string
	Modules        []string
}

// TransformResult replaces the code of a module
type TransformResult struct {
	Code string
}

// Plugin hooks into the build. Nil hooks are skipped.
type Plugin struct {
	Name string

	// Options sees the input options before each build.
	Options func(cfg *Config) error

	// Transform may replace the source of a module. A nil result keeps the code.
	// It can be called concurrently for different modules.
	Transform func(code, id string) (*TransformResult, error)

	// RenderChunk is called for every emitted JavaScript chunk.
	RenderChunk func(code string, chunk ChunkInfo) error
}

// Warning is a diagnostic reported by the engine
type Warning struct {
	Code    string
	Message string
	ID      string
	Line    int
	Column  int
	Frame   string
	Plugin  string
}

func (w *Warning) String() string {
	if w.ID == "" {
		return w.Message
	}
	return fmt.Sprintf("%s (%s:%d:%d)", w.Message, w.ID, w.Line, w.Column)
}

// WarningHandler consumes a warning
type WarningHandler func(w *Warning)

// OnWarn intercepts warnings; calling next hands the warning to the default handling.
type OnWarn func(w *Warning, next WarningHandler)

// Config holds the input options of a build (plus its output descriptor)
type Config struct {
	Input   Input
	Output  OutputOptions
	Plugins []Plugin

	// External lists module ids left as imports. IsExternal, when set, is
	// consulted for every non-entry import as well.
	External   []string
	IsExternal func(id string) bool

	OnWarn OnWarn
	Define map[string]string
	Minify bool

	// InlineDynamicImports disables code splitting so one output is produced.
	InlineDynamicImports bool

	// Platform is browser, node or neutral; derived from the output format when empty.
	Platform string

	// Cwd resolves relative paths; the process working directory when empty.
	Cwd string

	Watch WatchConfig
}

// WatchConfig limits which changed files trigger a rebuild. Globs are
// matched against paths relative to Cwd.
type WatchConfig struct {
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

// Error is a build failure reported by the engine
type Error struct {
	Code     string
	Message  string
	Filename string
	Line     int
	Column   int
	Frame    string
	Plugin   string

	// Related counts further errors reported by the same build
	Related int
}

func (e *Error) Error() string {
	return e.Message
}

// EventCode identifies a watch event
type EventCode string

const (
	EventStart       EventCode = "START"
	EventBundleStart EventCode = "BUNDLE_START"
	EventBundleEnd   EventCode = "BUNDLE_END"
	EventEnd         EventCode = "END"
	EventError       EventCode = "ERROR"
	EventFatal       EventCode = "FATAL"
)

// Event is emitted by a Watcher
type Event struct {
	Code     EventCode
	Input    Input
	Output   []string
	Duration int64 // milliseconds, BUNDLE_END only
	Error    *Error
}
