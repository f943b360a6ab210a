// Package types provides core types shared by the polterpack compilers
package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Bundler identifies a supported bundler engine
type Bundler string

const (
	BundlerRollup  Bundler = "rollup"
	BundlerWebpack Bundler = "webpack"
)

// SupportedBundlers lists the bundlers in lookup order
func SupportedBundlers() []Bundler {
	return []Bundler{BundlerRollup, BundlerWebpack}
}

// ConfigFile returns the conventional config module name for the bundler
func (b Bundler) ConfigFile() string {
	return fmt.Sprintf("%s.config.js", b)
}

// IsValid reports whether b is one of the supported bundlers
func (b Bundler) IsValid() bool {
	for _, s := range SupportedBundlers() {
		if s == b {
			return true
		}
	}
	return false
}

// BuildTarget names a sub-configuration of the config module
type BuildTarget string

const (
	TargetClient        BuildTarget = "client"
	TargetServer        BuildTarget = "server"
	TargetServiceWorker BuildTarget = "serviceworker"
)

// BuildTargets returns every target in construction order
func BuildTargets() []BuildTarget {
	return []BuildTarget{TargetClient, TargetServer, TargetServiceWorker}
}

// IsRequired reports whether the config module must export the target
func (t BuildTarget) IsRequired() bool {
	return t == TargetClient || t == TargetServer
}

// Chunk is one unit of emitted code
type Chunk struct {
	File    string   `json:"file"`
	Name    string   `json:"name,omitempty"`
	IsEntry bool     `json:"isEntry"`
	Facade  string   `json:"facadeModuleId,omitempty"`
	Imports []string `json:"imports,omitempty"`
	Modules []string `json:"modules,omitempty"`
	Code    string   `json:"-"`
	Size    int      `json:"size"`
}

// CSSFile is a stylesheet collected out of band during a build
type CSSFile struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// Warning is a recoverable build diagnostic
type Warning struct {
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Filename string `json:"filename,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Frame    string `json:"frame,omitempty"`
	Plugin   string `json:"plugin,omitempty"`
}

// String formats the warning as a single diagnostic line
func (w Warning) String() string {
	var b strings.Builder
	if w.Filename != "" {
		b.WriteString(w.Filename)
		if w.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", w.Line, w.Column)
		}
		b.WriteString(": ")
	}
	b.WriteString(w.Message)
	return b.String()
}

// BuildError is an error that marks a build cycle as failed
type BuildError struct {
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Filename string `json:"filename,omitempty"`
	Frame    string `json:"frame,omitempty"`
	Plugin   string `json:"plugin,omitempty"`
}

func (e BuildError) Error() string {
	return e.Message
}

// Result is the engine independent outcome of one build cycle
type Result struct {
	Bundler  Bundler           `json:"bundler"`
	Duration time.Duration     `json:"duration"`
	Chunks   []Chunk           `json:"chunks"`
	CSSFiles []CSSFile         `json:"cssFiles"`
	Warnings []Warning         `json:"warnings"`
	Errors   []BuildError      `json:"errors"`
	Assets   map[string]string `json:"assets,omitempty"`
}

// DurationMs returns the build duration in milliseconds
func (r *Result) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// HasErrors reports whether the cycle produced build errors
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Summary renders a short human readable report of the cycle
func (r *Result) Summary() string {
	var b strings.Builder

	status := "built"
	if r.HasErrors() {
		status = "failed"
	}
	fmt.Fprintf(&b, "%s in %dms (%d chunks, %d css, %d warnings, %d errors)\n",
		status, r.DurationMs(), len(r.Chunks), len(r.CSSFiles), len(r.Warnings), len(r.Errors))

	chunks := make([]Chunk, len(r.Chunks))
	copy(chunks, r.Chunks)
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].File < chunks[j].File })
	for _, c := range chunks {
		marker := " "
		if c.IsEntry {
			marker = "*"
		}
		fmt.Fprintf(&b, "  %s %-40s %8s\n", marker, c.File, FormatBytes(int64(c.Size)))
	}

	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  error: %s\n", e.Message)
	}

	return b.String()
}

// FormatBytes formats a byte count with a binary unit
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
