package compilers

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/poltergeist/polterpack/internal/engines/webpack"
	"github.com/poltergeist/polterpack/pkg/types"
)

// newRollupResult builds a Result from a cycle's collected data
func newRollupResult(duration time.Duration, c *cycle) *types.Result {
	chunks, css, warnings, errs := c.snapshot()

	return &types.Result{
		Bundler:  types.BundlerRollup,
		Duration: duration,
		Chunks:   chunks,
		CSSFiles: css,
		Warnings: warnings,
		Errors:   errs,
		Assets:   entryAssets(c.entries(), chunks),
	}
}

// entryAssets maps each input name to the file of the entry chunk built
// from it. An unnamed input is keyed by its chunk name, or "main".
func entryAssets(entries map[string]string, chunks []types.Chunk) map[string]string {
	byFacade := make(map[string]types.Chunk, len(chunks))
	for _, ch := range chunks {
		if ch.IsEntry && ch.Facade != "" {
			byFacade[filepath.Clean(ch.Facade)] = ch
		}
	}

	assets := make(map[string]string, len(entries))
	for name, entry := range entries {
		ch, ok := byFacade[entry]
		if !ok {
			continue
		}
		if name == "" {
			name = ch.Name
			if name == "" {
				name = "main"
			}
		}
		assets[name] = ch.File
	}
	return assets
}

// newWebpackResult builds a Result from webpack stats. Stylesheets are
// emitted as regular assets, so CSSFiles stays empty.
func newWebpackResult(stats *webpack.Stats) *types.Result {
	entries := stats.EntryAssets()
	entryFiles := make(map[string]bool, len(entries))
	for _, file := range entries {
		entryFiles[file] = true
	}

	var chunks []types.Chunk
	for _, a := range stats.Assets {
		if path.Ext(a.Name) != ".js" {
			continue
		}
		chunk := types.Chunk{
			File:    a.Name,
			IsEntry: entryFiles[a.Name],
			Size:    int(a.Size),
		}
		if len(a.ChunkNames) > 0 {
			chunk.Name = a.ChunkNames[0]
		}
		chunks = append(chunks, chunk)
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].File < chunks[j].File })

	result := &types.Result{
		Bundler:  types.BundlerWebpack,
		Duration: time.Duration(stats.Time) * time.Millisecond,
		Chunks:   chunks,
		CSSFiles: []types.CSSFile{},
		Warnings: []types.Warning{},
		Errors:   []types.BuildError{},
		Assets:   entries,
	}
	for _, w := range stats.Warnings {
		result.Warnings = append(result.Warnings, types.Warning{
			Message:  statsText(w),
			Filename: w.ModuleName,
		})
	}
	for _, e := range stats.Errors {
		result.Errors = append(result.Errors, types.BuildError{
			Message:  statsText(e),
			Filename: e.ModuleName,
		})
	}
	return result
}

func statsText(m webpack.StatsMessage) string {
	if m.Details == "" {
		return m.Message
	}
	return strings.TrimRight(m.Message, "\n") + "\n" + m.Details
}
