package compilers

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/poltergeist/polterpack/internal/engines/rollup"
	"github.com/poltergeist/polterpack/pkg/types"
)

// cycle accumulates what the internal plugin observes during one build.
// Adapters swap in a fresh cycle instead of clearing the current one, so a
// Result handed out earlier never changes underneath its reader.
type cycle struct {
	mu       sync.Mutex
	start    time.Time
	input    rollup.Input
	cwd      string
	chunks   []types.Chunk
	css      []types.CSSFile
	warnings []types.Warning
	errors   []types.BuildError
}

func newCycle() *cycle {
	return &cycle{start: time.Now()}
}

func (c *cycle) setInput(in rollup.Input, cwd string) {
	if abs, err := filepath.Abs(cwd); err == nil && cwd != "" {
		cwd = abs
	}
	c.mu.Lock()
	c.input = in
	c.cwd = cwd
	c.mu.Unlock()
}

func (c *cycle) inputs() (rollup.Input, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input, c.cwd
}

// entries maps each input name to its absolute entry path. A single
// unnamed input is keyed by the empty string.
func (c *cycle) entries() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(c.cwd, filepath.FromSlash(p))
	}

	out := make(map[string]string)
	if c.input.IsNamed() {
		for name, p := range c.input.Named {
			out[name] = abs(p)
		}
	} else if c.input.Path != "" {
		out[""] = abs(c.input.Path)
	}
	return out
}

func (c *cycle) addChunk(code string, info rollup.ChunkInfo) {
	chunk := types.Chunk{
		File:    info.FileName,
		Name:    info.Name,
		IsEntry: info.IsEntry,
		Facade:  info.FacadeModuleID,
		Imports: append([]string(nil), info.Imports...),
		Modules: append([]string(nil), info.Modules...),
		Code:    code,
		Size:    len(code),
	}

	c.mu.Lock()
	c.chunks = append(c.chunks, chunk)
	c.mu.Unlock()
}

func (c *cycle) addCSS(id, code string) {
	c.mu.Lock()
	c.css = append(c.css, types.CSSFile{ID: id, Code: code})
	c.mu.Unlock()
}

func (c *cycle) addWarning(w *rollup.Warning) {
	c.mu.Lock()
	c.warnings = append(c.warnings, types.Warning{
		Code:     w.Code,
		Message:  w.Message,
		Filename: w.ID,
		Line:     w.Line,
		Column:   w.Column,
		Frame:    w.Frame,
		Plugin:   w.Plugin,
	})
	c.mu.Unlock()
}

func (c *cycle) addError(err *rollup.Error) {
	c.mu.Lock()
	c.errors = append(c.errors, types.BuildError{
		Code:     err.Code,
		Message:  err.Message,
		Filename: err.Filename,
		Frame:    err.Frame,
		Plugin:   err.Plugin,
	})
	c.mu.Unlock()
}

// elapsed is the time since the cycle was started
func (c *cycle) elapsed() time.Duration {
	return time.Since(c.start)
}

// snapshot copies the collected data; transform hooks run concurrently, so
// stylesheets are ordered by module id
func (c *cycle) snapshot() (chunks []types.Chunk, css []types.CSSFile, warnings []types.Warning, errs []types.BuildError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chunks = append([]types.Chunk{}, c.chunks...)
	css = append([]types.CSSFile{}, c.css...)
	warnings = append([]types.Warning{}, c.warnings...)
	errs = append([]types.BuildError{}, c.errors...)

	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].File < chunks[j].File })
	sort.SliceStable(css, func(i, j int) bool { return css[i].ID < css[j].ID })
	return chunks, css, warnings, errs
}
