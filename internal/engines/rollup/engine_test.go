package rollup_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poltergeist/polterpack/internal/engines/rollup"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRollup_SingleInput(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/main.js": "import { greet } from './dep.js';\nconsole.log(greet('x'));\n",
		"src/dep.js":  "export function greet(n) { return 'hi ' + n; }\n",
	})

	cfg := &rollup.Config{
		Input:  rollup.SingleInput("src/main.js"),
		Output: rollup.OutputOptions{File: "dist/main.js", Format: "cjs"},
		Cwd:    dir,
	}

	bundle, err := rollup.New(rollup.Options{}).Rollup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Rollup() error = %v", err)
	}

	out, err := bundle.Generate(context.Background(), rollup.OutputOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(out.Chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(out.Chunks))
	}

	chunk := out.Chunks[0]
	if !chunk.IsEntry {
		t.Error("expected entry chunk")
	}
	if chunk.FileName != "main.js" {
		t.Errorf("expected main.js, got %s", chunk.FileName)
	}
	if !strings.Contains(chunk.Code, "hi ") {
		t.Error("expected bundled dependency code")
	}
	if len(chunk.Modules) != 2 {
		t.Errorf("expected 2 modules, got %v", chunk.Modules)
	}

	inputs := bundle.Inputs()
	want := filepath.Join(dir, "src", "dep.js")
	found := false
	for _, in := range inputs {
		if in == want {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s among inputs %v", want, inputs)
	}

	// nothing is written until Write
	if _, err := os.Stat(filepath.Join(dir, "dist", "main.js")); !os.IsNotExist(err) {
		t.Error("Generate should not write files")
	}
}

func TestRollup_NamedInputWrite(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/server.js": "module.exports = { ok: true };\n",
	})

	cfg := &rollup.Config{
		Input:  rollup.NamedInput(map[string]string{"server": "src/server.js"}),
		Output: rollup.OutputOptions{Dir: "build/server", Format: "cjs"},
		Cwd:    dir,
	}

	bundle, err := rollup.New(rollup.Options{}).Rollup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Rollup() error = %v", err)
	}
	out, err := bundle.Write(context.Background(), cfg.Output)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if len(out.Chunks) != 1 || out.Chunks[0].Name != "server" {
		t.Fatalf("expected one chunk named server, got %+v", out.Chunks)
	}
	if _, err := os.Stat(filepath.Join(dir, "build", "server", out.Chunks[0].FileName)); err != nil {
		t.Errorf("expected written chunk: %v", err)
	}
}

func TestRollup_PluginHooks(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"main.js":   "import './style.css';\nexport const x = 1;\n",
		"style.css": "body { color: red; }\n",
	})

	var mu sync.Mutex
	css := map[string]string{}
	var optionsCalled bool
	var rendered []rollup.ChunkInfo

	cfg := &rollup.Config{
		Input:  rollup.SingleInput("main.js"),
		Output: rollup.OutputOptions{Dir: "out", Format: "esm"},
		Cwd:    dir,
		Plugins: []rollup.Plugin{{
			Name: "css",
			Options: func(c *rollup.Config) error {
				optionsCalled = true
				return nil
			},
			Transform: func(code, id string) (*rollup.TransformResult, error) {
				if !strings.HasSuffix(id, ".css") {
					return nil, nil
				}
				mu.Lock()
				css[id] = code
				mu.Unlock()
				return &rollup.TransformResult{Code: ""}, nil
			},
			RenderChunk: func(code string, chunk rollup.ChunkInfo) error {
				rendered = append(rendered, chunk)
				return nil
			},
		}},
	}

	bundle, err := rollup.New(rollup.Options{}).Rollup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Rollup() error = %v", err)
	}
	out, err := bundle.Generate(context.Background(), rollup.OutputOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if !optionsCalled {
		t.Error("expected options hook to run")
	}
	if got := css[filepath.Join(dir, "style.css")]; !strings.Contains(got, "color: red") {
		t.Errorf("expected stylesheet to reach transform, got %v", css)
	}
	for _, c := range out.Chunks {
		if strings.Contains(c.Code, "color: red") {
			t.Error("stylesheet contents leaked into chunk output")
		}
	}
	if len(rendered) != len(out.Chunks) {
		t.Errorf("expected renderChunk per chunk, got %d for %d", len(rendered), len(out.Chunks))
	}
}

func TestRollup_UnresolvedImport(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"main.js": "import x from './missing.js';\nconsole.log(x);\n",
	})

	cfg := &rollup.Config{
		Input:  rollup.SingleInput("main.js"),
		Output: rollup.OutputOptions{File: "out.js"},
		Cwd:    dir,
	}

	_, err := rollup.New(rollup.Options{}).Rollup(context.Background(), cfg)
	var buildErr *rollup.Error
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected *rollup.Error, got %v", err)
	}
	if buildErr.Code != "UNRESOLVED_IMPORT" {
		t.Errorf("expected UNRESOLVED_IMPORT, got %s", buildErr.Code)
	}
	if buildErr.Filename != filepath.Join(dir, "main.js") {
		t.Errorf("unexpected filename %q", buildErr.Filename)
	}
	if !strings.Contains(buildErr.Frame, "^") {
		t.Errorf("expected code frame, got %q", buildErr.Frame)
	}
}

func TestRollup_TransformError(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"main.js": "export default 1;\n"})

	cfg := &rollup.Config{
		Input: rollup.SingleInput("main.js"),
		Cwd:   dir,
		Plugins: []rollup.Plugin{{
			Name: "broken",
			Transform: func(code, id string) (*rollup.TransformResult, error) {
				return nil, errors.New("cannot transform")
			},
		}},
	}

	_, err := rollup.New(rollup.Options{}).Rollup(context.Background(), cfg)
	var buildErr *rollup.Error
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected *rollup.Error, got %v", err)
	}
	if buildErr.Plugin != "broken" || buildErr.Code != "PLUGIN_ERROR" {
		t.Errorf("expected plugin error from broken, got %+v", buildErr)
	}
}

func TestRollup_OnWarn(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"main.js": "export function check(x) { return x === NaN; }\n",
	})

	var warnings []*rollup.Warning
	cfg := &rollup.Config{
		Input: rollup.SingleInput("main.js"),
		Cwd:   dir,
		OnWarn: func(w *rollup.Warning, next rollup.WarningHandler) {
			warnings = append(warnings, w)
		},
	}

	if _, err := rollup.New(rollup.Options{}).Rollup(context.Background(), cfg); err != nil {
		t.Fatalf("Rollup() error = %v", err)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a warning")
	}
	if warnings[0].ID != filepath.Join(dir, "main.js") {
		t.Errorf("expected warning id to be the module path, got %q", warnings[0].ID)
	}
}

func TestRollup_InvalidFormat(t *testing.T) {
	cfg := &rollup.Config{
		Input:  rollup.SingleInput("main.js"),
		Output: rollup.OutputOptions{Format: "amd"},
		Cwd:    t.TempDir(),
	}
	_, err := rollup.New(rollup.Options{}).Rollup(context.Background(), cfg)
	var buildErr *rollup.Error
	if !errors.As(err, &buildErr) || buildErr.Code != "INVALID_OPTION" {
		t.Fatalf("expected INVALID_OPTION, got %v", err)
	}
}

func TestRollup_MissingInput(t *testing.T) {
	_, err := rollup.New(rollup.Options{}).Rollup(context.Background(), &rollup.Config{Cwd: t.TempDir()})
	var buildErr *rollup.Error
	if !errors.As(err, &buildErr) || buildErr.Code != "MISSING_INPUT" {
		t.Fatalf("expected MISSING_INPUT, got %v", err)
	}
}

func TestRollup_Incremental(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"main.js": "console.log('one');\n"})

	engine := rollup.New(rollup.Options{Incremental: true})
	defer engine.Close()

	if engine.Name() != "nollup" {
		t.Errorf("expected nollup, got %s", engine.Name())
	}

	cfg := &rollup.Config{
		Input:  rollup.SingleInput("main.js"),
		Output: rollup.OutputOptions{Dir: "out"},
		Cwd:    dir,
	}

	first, err := engine.Rollup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	out1, _ := first.Generate(context.Background(), rollup.OutputOptions{})

	writeFiles(t, dir, map[string]string{"main.js": "console.log('two');\n"})
	second, err := engine.Rollup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	out2, _ := second.Generate(context.Background(), rollup.OutputOptions{})

	if !strings.Contains(out1.Chunks[0].Code, "one") || !strings.Contains(out2.Chunks[0].Code, "two") {
		t.Error("expected rebuild to pick up the edited source")
	}
}

func TestRollup_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &rollup.Config{Input: rollup.SingleInput("main.js"), Cwd: t.TempDir()}
	_, err := rollup.New(rollup.Options{}).Rollup(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWatch_RebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"main.js": "console.log('v1');\n"})

	cfg := &rollup.Config{
		Input:  rollup.SingleInput("main.js"),
		Output: rollup.OutputOptions{Dir: "out", Format: "esm"},
		Cwd:    dir,
	}

	events := make(chan rollup.Event, 32)
	changes := make(chan string, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := rollup.New(rollup.Options{}).Watch(ctx, cfg, rollup.WatchHandlers{
		OnChange: func(id string) { changes <- id },
		OnEvent:  func(ev rollup.Event) { events <- ev },
	}, rollup.WatchOptions{SettlingDelay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	waitFor := func(code rollup.EventCode) rollup.Event {
		t.Helper()
		timeout := time.After(5 * time.Second)
		for {
			select {
			case ev := <-events:
				if ev.Code == code {
					return ev
				}
				if ev.Code == rollup.EventFatal {
					t.Fatalf("unexpected FATAL: %v", ev.Error)
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %s", code)
			}
		}
	}

	end := waitFor(rollup.EventBundleEnd)
	if len(end.Output) == 0 {
		t.Fatal("expected output files on BUNDLE_END")
	}

	writeFiles(t, dir, map[string]string{"main.js": "console.log('v2');\n"})

	select {
	case id := <-changes:
		if id != filepath.Join(dir, "main.js") {
			t.Errorf("unexpected change id %s", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
	}

	waitFor(rollup.EventBundleStart)
	waitFor(rollup.EventBundleEnd)

	data, err := os.ReadFile(filepath.Join(dir, "out", "main.js"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "v2") {
		t.Error("expected rewritten output")
	}
}

func TestWatch_RequiresOutput(t *testing.T) {
	cfg := &rollup.Config{Input: rollup.SingleInput("main.js"), Cwd: t.TempDir()}
	if _, err := rollup.New(rollup.Options{}).Watch(context.Background(), cfg, rollup.WatchHandlers{}); err == nil {
		t.Fatal("expected error without output location")
	}
}
