package loader_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poltergeist/polterpack/internal/engines/rollup"
	"github.com/poltergeist/polterpack/internal/loader"
	"github.com/poltergeist/polterpack/pkg/env"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestExternalize(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"svelte", true},
		{"@rollup/plugin-node-resolve", true},
		{"polterpack/config", true},
		{"./helpers.js", false},
		{"../shared/util.js", false},
		{"/abs/path/module.js", false},
		{"./package.json", true},
		{"/abs/data.json", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := loader.Externalize(tt.id); got != tt.want {
				t.Errorf("Externalize(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestWithOverride_Restores(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollup.config.js")
	writeFile(t, path, "module.exports = 'disk';")

	tests := []struct {
		name string
		fn   func() error
	}{
		{"success", func() error { return nil }},
		{"error", func() error { return errors.New("boom") }},
		{"panic", func() error { panic("boom") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := loader.NewHost(nil)

			var during []byte
			func() {
				defer func() { _ = recover() }()
				_ = h.WithOverride(path, []byte("compiled"), func() error {
					during, _ = h.Source(path)
					return tt.fn()
				})
			}()

			if string(during) != "compiled" {
				t.Errorf("expected override inside window, got %q", during)
			}
			if h.Cached(path) {
				t.Error("expected cache entry to be evicted")
			}
			after, err := h.Source(path)
			if err != nil {
				t.Fatalf("Source() error = %v", err)
			}
			if string(after) != "module.exports = 'disk';" {
				t.Errorf("expected disk source after window, got %q", after)
			}
		})
	}
}

func TestWithOverride_MissingFile(t *testing.T) {
	h := loader.NewHost(nil)
	path := filepath.Join(t.TempDir(), "a.js")

	err := h.WithOverride(path, []byte("compiled"), func() error {
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Source(path); err == nil {
		t.Error("expected missing file once the window closed")
	}
}

func TestEvaluate(t *testing.T) {
	h := loader.NewHost(nil)
	path := filepath.Join(t.TempDir(), "config.js")

	mod, err := h.Evaluate(path, []byte(`
		const path = require('path');
		module.exports = { client: { input: path.join('src', 'client.js') }, server: null };
	`))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if !mod.IsObject() {
		t.Fatal("expected object export")
	}
	if !mod.Has("client") || mod.Has("server") || mod.Has("serviceworker") {
		t.Errorf("unexpected keys %v", mod.Keys())
	}

	cfg, err := mod.RollupConfig("client")
	if err != nil {
		t.Fatalf("RollupConfig() error = %v", err)
	}
	if cfg.Input.Path != filepath.Join("src", "client.js") {
		t.Errorf("unexpected input %v", cfg.Input)
	}
}

func TestEvaluate_Throws(t *testing.T) {
	h := loader.NewHost(nil)
	path := filepath.Join(t.TempDir(), "config.js")

	_, err := h.Evaluate(path, []byte(`throw new Error("bad config");`))
	if err == nil || !strings.Contains(err.Error(), "bad config") {
		t.Fatalf("expected thrown message, got %v", err)
	}
}

func TestLoad_CompilesWithEngine(t *testing.T) {
	env.Set(env.Env{Dev: true, Src: "src", Dest: filepath.Join("__sapper__", "dev")})
	defer env.Set(env.Env{Src: "src", Dest: filepath.Join("__sapper__", "build")})

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "helpers.js"), `export const banner = 'built';`)
	writeFile(t, filepath.Join(dir, "settings.json"), `{"minify": true}`)
	writeFile(t, filepath.Join(dir, "rollup.config.js"), `
import config from 'polterpack/config';
import { banner } from './helpers.js';
import settings from './settings.json';

export default {
	client: {
		input: config.client.input(),
		output: config.client.output(),
		minify: settings.minify,
		plugins: [
			false,
			{
				name: 'banner',
				transform(code, id) {
					return id.endsWith('.css') ? { code: '' } : null;
				}
			}
		]
	},
	server: {
		input: config.server.input(),
		output: config.server.output(),
		external: ['svelte']
	},
	meta: banner
};
`)

	h := loader.NewHost(nil)
	mod, err := h.Load(context.Background(), filepath.Join(dir, "rollup.config.js"), rollup.New(rollup.Options{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	keys := strings.Join(mod.Keys(), ",")
	if keys != "client,meta,server" {
		t.Fatalf("expected default export keys, got %s", keys)
	}

	client, err := mod.RollupConfig("client")
	if err != nil {
		t.Fatalf("RollupConfig(client) error = %v", err)
	}
	if client.Input.Path != filepath.Join("src", "client.js") {
		t.Errorf("unexpected client input %v", client.Input)
	}
	if client.Output.Dir != filepath.Join("__sapper__", "dev", "client") || client.Output.Format != "esm" {
		t.Errorf("unexpected client output %+v", client.Output)
	}
	if client.Output.Sourcemap != rollup.SourcemapFile {
		t.Errorf("expected sourcemap from dev flag, got %q", client.Output.Sourcemap)
	}
	if !client.Minify {
		t.Error("expected minify from required JSON")
	}
	if len(client.Plugins) != 1 || client.Plugins[0].Name != "banner" {
		t.Fatalf("expected falsy plugin entries dropped, got %+v", client.Plugins)
	}

	res, err := client.Plugins[0].Transform("body{}", "/x/style.css")
	if err != nil || res == nil || res.Code != "" {
		t.Errorf("expected stylesheet to be emptied, got %+v, %v", res, err)
	}
	res, err = client.Plugins[0].Transform("export {}", "/x/main.js")
	if err != nil || res != nil {
		t.Errorf("expected untouched module, got %+v, %v", res, err)
	}

	server, err := mod.RollupConfig("server")
	if err != nil {
		t.Fatalf("RollupConfig(server) error = %v", err)
	}
	if server.Input.Named["server"] != filepath.Join("src", "server.js") {
		t.Errorf("unexpected server input %v", server.Input)
	}
	if len(server.External) != 1 || server.External[0] != "svelte" {
		t.Errorf("unexpected externals %v", server.External)
	}

	if h.Cached(filepath.Join(dir, "rollup.config.js")) {
		t.Error("compiled config must not stay cached")
	}
}

func TestLoad_SyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "rollup.config.js"), "export default {\n\tclient: ,\n};\n")

	_, err := loader.NewHost(nil).Load(context.Background(), filepath.Join(dir, "rollup.config.js"), rollup.New(rollup.Options{}))
	var buildErr *rollup.Error
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if buildErr.Filename != filepath.Join(dir, "rollup.config.js") {
		t.Errorf("unexpected filename %q", buildErr.Filename)
	}
}

func TestRollupConfig_OnWarnAndHooks(t *testing.T) {
	h := loader.NewHost(nil)
	mod, err := h.Evaluate(filepath.Join(t.TempDir(), "c.js"), []byte(`
		module.exports = {
			client: {
				input: ['src/a.js', 'src/b.js'],
				output: [{ dir: 'out', format: 'cjs', sourcemap: 'inline' }],
				external: id => id === 'fs',
				onwarn(warning, warn) {
					if (warning.code === 'IGNORED') return;
					warn(warning);
				},
				plugins: [{
					name: 'async-transform',
					options(opts) {
						return { input: { main: 'src/main.js' } };
					},
					transform: async (code) => code.toUpperCase(),
					renderChunk(code, chunk) {
						if (!chunk.isEntry) throw new Error('not an entry: ' + chunk.fileName);
					}
				}]
			}
		};
	`))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	cfg, err := mod.RollupConfig("client")
	if err != nil {
		t.Fatalf("RollupConfig() error = %v", err)
	}

	if cfg.Input.Named["a"] != "src/a.js" || cfg.Input.Named["b"] != "src/b.js" {
		t.Errorf("expected array input keyed by basename, got %v", cfg.Input)
	}
	if cfg.Output.Dir != "out" || cfg.Output.Sourcemap != rollup.SourcemapInline {
		t.Errorf("unexpected output %+v", cfg.Output)
	}
	if cfg.IsExternal == nil || !cfg.IsExternal("fs") || cfg.IsExternal("./x.js") {
		t.Error("expected external function to be wrapped")
	}

	var forwarded []string
	next := func(w *rollup.Warning) { forwarded = append(forwarded, w.Code) }
	cfg.OnWarn(&rollup.Warning{Code: "IGNORED"}, next)
	cfg.OnWarn(&rollup.Warning{Code: "KEPT"}, next)
	if strings.Join(forwarded, ",") != "KEPT" {
		t.Errorf("unexpected forwarded warnings %v", forwarded)
	}

	p := cfg.Plugins[0]
	if err := p.Options(cfg); err != nil {
		t.Fatalf("options hook error = %v", err)
	}
	if cfg.Input.Named["main"] != "src/main.js" {
		t.Errorf("expected options hook to replace input, got %v", cfg.Input)
	}

	res, err := p.Transform("abc", "src/main.js")
	if err != nil || res == nil || res.Code != "ABC" {
		t.Errorf("expected settled async transform, got %+v, %v", res, err)
	}

	if err := p.RenderChunk("", rollup.ChunkInfo{FileName: "chunk.js"}); err == nil || !strings.Contains(err.Error(), "not an entry: chunk.js") {
		t.Errorf("expected renderChunk error, got %v", err)
	}
}

func TestRollupConfig_WatchOptions(t *testing.T) {
	tests := []struct {
		name        string
		watch       string
		wantInclude []string
		wantExclude []string
	}{
		{"absent", `undefined`, nil, nil},
		{"disabled", `false`, nil, nil},
		{"single globs", `{ include: 'src/**', exclude: 'node_modules/**' }`, []string{"src/**"}, []string{"node_modules/**"}},
		{"lists", `{ exclude: ['a/**', 'b/**'], clearScreen: false }`, nil, []string{"a/**", "b/**"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := loader.NewHost(nil)
			mod, err := h.Evaluate(filepath.Join(t.TempDir(), "c.js"), []byte(
				`module.exports = { client: { input: 'src/a.js', watch: `+tt.watch+` } };`))
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}

			cfg, err := mod.RollupConfig("client")
			if err != nil {
				t.Fatalf("RollupConfig() error = %v", err)
			}
			if strings.Join(cfg.Watch.Include, ",") != strings.Join(tt.wantInclude, ",") ||
				strings.Join(cfg.Watch.Exclude, ",") != strings.Join(tt.wantExclude, ",") {
				t.Errorf("unexpected watch options %+v", cfg.Watch)
			}
		})
	}
}
