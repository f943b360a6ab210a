package rollup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/poltergeist/polterpack/pkg/logger"
)

// Options configures an Engine
type Options struct {
	// Incremental keeps a build context per config and rebuilds it
	Incremental bool
	Logger      logger.Logger
}

// Engine runs builds
type Engine struct {
	opts Options
	log  logger.Logger

	mu     sync.Mutex
	bctx   api.BuildContext
	ctxFor *Config
}

// New creates an engine
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{opts: opts, log: log}
}

// Name reports the engine variant
func (e *Engine) Name() string {
	if e.opts.Incremental {
		return "nollup"
	}
	return "rollup"
}

// Incremental reports whether builds reuse a live context
func (e *Engine) Incremental() bool {
	return e.opts.Incremental
}

// Close releases the incremental context, if any
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposeLocked()
}

func (e *Engine) disposeLocked() {
	if e.bctx != nil {
		e.bctx.Dispose()
		e.bctx = nil
		e.ctxFor = nil
	}
}

// Rollup runs the options hooks, builds cfg and returns the resulting bundle.
// Build failures are returned as *Error.
func (e *Engine) Rollup(ctx context.Context, cfg *Config) (*Bundle, error) {
	if cfg == nil {
		return nil, &Error{Code: "INVALID_OPTION", Message: "missing build configuration"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, p := range cfg.Plugins {
		if p.Options == nil {
			continue
		}
		if err := p.Options(cfg); err != nil {
			return nil, pluginError(p.Name, "options", err)
		}
	}

	if cfg.Input.IsZero() {
		return nil, &Error{Code: "MISSING_INPUT", Message: "you must supply an input"}
	}

	cwd, err := workingDir(cfg)
	if err != nil {
		return nil, err
	}
	opts, err := buildOptions(cfg, cfg.Output, cwd)
	if err != nil {
		return nil, err
	}

	result, err := e.run(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	e.reportWarnings(cfg, result.Warnings, cwd)
	if len(result.Errors) > 0 {
		return nil, newError(result.Errors, cwd)
	}

	b := &Bundle{engine: e, cfg: cfg, cwd: cwd, output: cfg.Output, result: result}
	if err := b.parseMetafile(); err != nil {
		return nil, err
	}
	return b, nil
}

func (e *Engine) run(ctx context.Context, cfg *Config, opts api.BuildOptions) (api.BuildResult, error) {
	if !e.opts.Incremental {
		return waitBuild(ctx, func() api.BuildResult { return api.Build(opts) }, nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.bctx == nil || e.ctxFor != cfg {
		e.disposeLocked()
		bctx, ctxErr := api.Context(opts)
		if ctxErr != nil {
			return api.BuildResult{Errors: ctxErr.Errors}, nil
		}
		e.bctx = bctx
		e.ctxFor = cfg
		e.log.Debug("Created incremental build context", logger.WithField("input", cfg.Input.String()))
	}

	bctx := e.bctx
	return waitBuild(ctx, bctx.Rebuild, bctx.Cancel)
}

func waitBuild(ctx context.Context, build func() api.BuildResult, cancel func()) (api.BuildResult, error) {
	done := make(chan api.BuildResult, 1)
	go func() {
		done <- build()
	}()

	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		return api.BuildResult{}, ctx.Err()
	}
}

func (e *Engine) reportWarnings(cfg *Config, msgs []api.Message, cwd string) {
	fallback := func(w *Warning) {
		e.log.Warn(w.String(), logger.WithField("code", w.Code))
	}
	for _, m := range msgs {
		w := newWarning(m, cwd)
		if cfg.OnWarn != nil {
			cfg.OnWarn(w, fallback)
			continue
		}
		fallback(w)
	}
}

func workingDir(cfg *Config) (string, error) {
	if cfg.Cwd != "" {
		return filepath.Abs(cfg.Cwd)
	}
	return os.Getwd()
}

func buildOptions(cfg *Config, out OutputOptions, cwd string) (api.BuildOptions, error) {
	format, err := parseFormat(out.Format)
	if err != nil {
		return api.BuildOptions{}, err
	}

	opts := api.BuildOptions{
		AbsWorkingDir:     cwd,
		Bundle:            true,
		Write:             false,
		Metafile:          true,
		LogLevel:          api.LogLevelSilent,
		Format:            format,
		Platform:          platformFor(cfg.Platform, format),
		Sourcemap:         sourcemapFor(out.Sourcemap),
		External:          cfg.External,
		Define:            cfg.Define,
		MinifyWhitespace:  cfg.Minify,
		MinifyIdentifiers: cfg.Minify,
		MinifySyntax:      cfg.Minify,
		EntryNames:        namePattern(out.EntryFileNames, "[name]", out.Format),
		ChunkNames:        namePattern(out.ChunkFileNames, "[name]-[hash]", out.Format),
		AssetNames:        "assets/[name]-[hash]",
	}

	switch {
	case out.File != "":
		opts.Outfile = out.File
	case out.Dir != "":
		opts.Outdir = out.Dir
	}

	opts.Splitting = format == api.FormatESModule && opts.Outdir != "" && !cfg.InlineDynamicImports

	if cfg.Input.IsNamed() {
		for _, name := range cfg.Input.Names() {
			opts.EntryPointsAdvanced = append(opts.EntryPointsAdvanced, api.EntryPoint{
				InputPath:  cfg.Input.Named[name],
				OutputPath: name,
			})
		}
	} else {
		opts.EntryPoints = []string{cfg.Input.Path}
	}

	if cfg.IsExternal != nil {
		opts.Plugins = append(opts.Plugins, externalPlugin(cfg.IsExternal))
	}
	if hasTransform(cfg.Plugins) {
		opts.Plugins = append(opts.Plugins, transformPlugin(cfg.Plugins))
	}

	return opts, nil
}

func parseFormat(format string) (api.Format, error) {
	switch strings.ToLower(format) {
	case "", "es", "esm", "module":
		return api.FormatESModule, nil
	case "cjs", "commonjs":
		return api.FormatCommonJS, nil
	case "iife":
		return api.FormatIIFE, nil
	default:
		return api.FormatDefault, &Error{
			Code:    "INVALID_OPTION",
			Message: fmt.Sprintf("invalid output format %q, expected one of es, cjs, iife", format),
		}
	}
}

func platformFor(platform string, format api.Format) api.Platform {
	switch platform {
	case "node":
		return api.PlatformNode
	case "neutral":
		return api.PlatformNeutral
	case "browser":
		return api.PlatformBrowser
	}
	if format == api.FormatCommonJS {
		return api.PlatformNode
	}
	return api.PlatformBrowser
}

func sourcemapFor(mode SourcemapMode) api.SourceMap {
	switch mode {
	case SourcemapFile, "true":
		return api.SourceMapLinked
	case SourcemapInline:
		return api.SourceMapInline
	case SourcemapHidden:
		return api.SourceMapExternal
	default:
		return api.SourceMapNone
	}
}

// namePattern turns a file name pattern like "[name].[hash].js" into one
// esbuild accepts; the extension is always chosen by the output format.
func namePattern(pattern, fallback, format string) string {
	if pattern == "" {
		return fallback
	}
	for _, ext := range []string{".js", ".mjs", ".cjs"} {
		if strings.HasSuffix(pattern, ext) {
			pattern = strings.TrimSuffix(pattern, ext)
			break
		}
	}
	if format == "" {
		format = "es"
	}
	return strings.ReplaceAll(pattern, "[format]", format)
}

func externalPlugin(isExternal func(string) bool) api.Plugin {
	return api.Plugin{
		Name: "external",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Kind == api.ResolveEntryPoint || !isExternal(args.Path) {
					return api.OnResolveResult{}, nil
				}
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})
		},
	}
}

func hasTransform(plugins []Plugin) bool {
	for _, p := range plugins {
		if p.Transform != nil {
			return true
		}
	}
	return false
}

func transformPlugin(plugins []Plugin) api.Plugin {
	return api.Plugin{
		Name: "transform",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				src, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}

				code := string(src)
				changed := false
				for _, p := range plugins {
					if p.Transform == nil {
						continue
					}
					res, err := p.Transform(code, args.Path)
					if err != nil {
						return api.OnLoadResult{
							PluginName: p.Name,
							Errors: []api.Message{{
								Text:       err.Error(),
								PluginName: p.Name,
								Location:   &api.Location{File: args.Path},
							}},
						}, nil
					}
					if res != nil {
						code = res.Code
						changed = true
					}
				}

				if !changed {
					return api.OnLoadResult{}, nil
				}
				return api.OnLoadResult{
					Contents:   &code,
					Loader:     loaderFor(args.Path),
					ResolveDir: filepath.Dir(args.Path),
				}, nil
			})
		},
	}
}

// transformed modules are JavaScript unless their extension says otherwise
func loaderFor(path string) api.Loader {
	switch filepath.Ext(path) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	case ".json":
		return api.LoaderJSON
	default:
		return api.LoaderJS
	}
}

func pluginError(plugin, hook string, err error) *Error {
	return &Error{
		Code:    "PLUGIN_ERROR",
		Message: fmt.Sprintf("%s (in %s hook)", err.Error(), hook),
		Plugin:  plugin,
	}
}

// Bundle is the result of a successful build
type Bundle struct {
	engine *Engine
	cfg    *Config
	cwd    string
	output OutputOptions
	result api.BuildResult
	meta   metafile
}

type metafile struct {
	Inputs  map[string]json.RawMessage `json:"inputs"`
	Outputs map[string]metaOutput      `json:"outputs"`
}

type metaOutput struct {
	Bytes      int    `json:"bytes"`
	EntryPoint string `json:"entryPoint"`
	Imports    []struct {
		Path     string `json:"path"`
		Kind     string `json:"kind"`
		External bool   `json:"external"`
	} `json:"imports"`
	Exports []string                   `json:"exports"`
	Inputs  map[string]json.RawMessage `json:"inputs"`
}

func (b *Bundle) parseMetafile() error {
	if b.result.Metafile == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(b.result.Metafile), &b.meta); err != nil {
		return fmt.Errorf("failed to parse build metadata: %w", err)
	}
	return nil
}

// Inputs returns the absolute paths of every file the build read
func (b *Bundle) Inputs() []string {
	inputs := make([]string, 0, len(b.meta.Inputs))
	for key := range b.meta.Inputs {
		if p, ok := b.fileKey(key); ok {
			inputs = append(inputs, p)
		}
	}
	sort.Strings(inputs)
	return inputs
}

// metafile keys are relative to the working dir; other namespaces carry a prefix
func (b *Bundle) fileKey(key string) (string, bool) {
	if i := strings.Index(key, ":"); i > 1 && !filepath.IsAbs(key) {
		return "", false
	}
	if filepath.IsAbs(key) {
		return filepath.Clean(key), true
	}
	return filepath.Join(b.cwd, filepath.FromSlash(key)), true
}

// OutputChunk is an emitted JavaScript file
type OutputChunk struct {
	ChunkInfo
	Path string
	Code string
}

// OutputAsset is any other emitted file, such as a source map
type OutputAsset struct {
	FileName string
	Path     string
	Source   []byte
}

// Output holds the generated files of a bundle
type Output struct {
	Chunks []OutputChunk
	Assets []OutputAsset
}

// Files returns the paths of all emitted files
func (o *Output) Files() []string {
	files := make([]string, 0, len(o.Chunks)+len(o.Assets))
	for _, c := range o.Chunks {
		files = append(files, c.Path)
	}
	for _, a := range o.Assets {
		files = append(files, a.Path)
	}
	return files
}

// Generate renders the bundle for out, running the renderChunk hooks. A zero
// out reuses the output options the bundle was built with.
func (b *Bundle) Generate(ctx context.Context, out OutputOptions) (*Output, error) {
	result, meta, out, err := b.resultFor(ctx, out)
	if err != nil {
		return nil, err
	}

	outDir := out.OutDir()
	if outDir != "" && !filepath.IsAbs(outDir) {
		outDir = filepath.Join(b.cwd, outDir)
	}
	if outDir == "" {
		outDir = b.cwd
	}

	output := &Output{}
	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(outDir, f.Path)
		if err != nil {
			rel = filepath.Base(f.Path)
		}
		rel = filepath.ToSlash(rel)

		if !isChunk(f.Path) {
			output.Assets = append(output.Assets, OutputAsset{FileName: rel, Path: f.Path, Source: f.Contents})
			continue
		}

		info := b.chunkInfo(meta, f.Path, rel, outDir)
		code := string(f.Contents)
		for _, p := range b.cfg.Plugins {
			if p.RenderChunk == nil {
				continue
			}
			if err := p.RenderChunk(code, info); err != nil {
				return nil, pluginError(p.Name, "renderChunk", err)
			}
		}
		output.Chunks = append(output.Chunks, OutputChunk{ChunkInfo: info, Path: f.Path, Code: code})
	}

	sort.Slice(output.Chunks, func(i, j int) bool { return output.Chunks[i].FileName < output.Chunks[j].FileName })
	sort.Slice(output.Assets, func(i, j int) bool { return output.Assets[i].FileName < output.Assets[j].FileName })
	return output, nil
}

// Write generates the bundle and writes every file to disk
func (b *Bundle) Write(ctx context.Context, out OutputOptions) (*Output, error) {
	output, err := b.Generate(ctx, out)
	if err != nil {
		return nil, err
	}
	for _, c := range output.Chunks {
		if err := writeFile(c.Path, []byte(c.Code)); err != nil {
			return nil, err
		}
	}
	for _, a := range output.Assets {
		if err := writeFile(a.Path, a.Source); err != nil {
			return nil, err
		}
	}
	return output, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// resultFor reuses the build result when out matches it, otherwise rebuilds
func (b *Bundle) resultFor(ctx context.Context, out OutputOptions) (api.BuildResult, metafile, OutputOptions, error) {
	if out.IsZero() || out == b.output {
		return b.result, b.meta, b.output, nil
	}

	opts, err := buildOptions(b.cfg, out, b.cwd)
	if err != nil {
		return api.BuildResult{}, metafile{}, out, err
	}
	result, err := waitBuild(ctx, func() api.BuildResult { return api.Build(opts) }, nil)
	if err != nil {
		return api.BuildResult{}, metafile{}, out, err
	}
	if len(result.Errors) > 0 {
		return api.BuildResult{}, metafile{}, out, newError(result.Errors, b.cwd)
	}

	rb := &Bundle{result: result}
	if err := rb.parseMetafile(); err != nil {
		return api.BuildResult{}, metafile{}, out, err
	}
	return result, rb.meta, out, nil
}

func isChunk(path string) bool {
	switch filepath.Ext(path) {
	case ".js", ".mjs", ".cjs":
		return true
	}
	return false
}

func (b *Bundle) chunkInfo(meta metafile, path, rel, outDir string) ChunkInfo {
	info := ChunkInfo{FileName: rel}

	key := path
	if r, err := filepath.Rel(b.cwd, path); err == nil {
		key = filepath.ToSlash(r)
	}
	mo, ok := meta.Outputs[key]
	if !ok {
		info.Name = chunkName(rel)
		return info
	}

	info.Exports = mo.Exports
	for input := range mo.Inputs {
		if p, ok := b.fileKey(input); ok {
			info.Modules = append(info.Modules, p)
		}
	}
	sort.Strings(info.Modules)

	for _, imp := range mo.Imports {
		if imp.External || imp.Kind == "dynamic-import" {
			continue
		}
		abs := imp.Path
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(b.cwd, filepath.FromSlash(abs))
		}
		if r, err := filepath.Rel(outDir, abs); err == nil {
			info.Imports = append(info.Imports, filepath.ToSlash(r))
		}
	}

	if mo.EntryPoint != "" {
		info.IsEntry = true
		if p, ok := b.fileKey(mo.EntryPoint); ok {
			info.FacadeModuleID = p
		}
		info.Name = b.entryName(mo.EntryPoint)
	} else {
		info.Name = chunkName(rel)
	}
	return info
}

func (b *Bundle) entryName(entryPoint string) string {
	target, _ := b.fileKey(entryPoint)
	if b.cfg.Input.IsNamed() {
		for name, p := range b.cfg.Input.Named {
			abs := p
			if !filepath.IsAbs(abs) {
				abs = filepath.Join(b.cwd, p)
			}
			if filepath.Clean(abs) == target {
				return name
			}
		}
	}
	return chunkName(target)
}

func chunkName(file string) string {
	base := filepath.Base(file)
	if i := strings.IndexAny(base, ".-"); i > 0 {
		return base[:i]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
