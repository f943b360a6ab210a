package compilers_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poltergeist/polterpack/internal/engines/webpack"
	"github.com/poltergeist/polterpack/pkg/compilers"
	"github.com/poltergeist/polterpack/pkg/types"
)

// scriptedRunner replays messages per bridge command
type scriptedRunner struct {
	mu       sync.Mutex
	requests []webpack.Request
	messages map[string][]webpack.Message
	err      error
	block    bool
}

func (r *scriptedRunner) Run(ctx context.Context, req webpack.Request, handle func(webpack.Message)) error {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	msgs := r.messages[req.Command]
	r.mu.Unlock()

	for _, m := range msgs {
		handle(m)
	}
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.err
}

const okStats = `{
	"hash": "abc123",
	"time": 42,
	"assets": [
		{"name": "client.abc123.js", "size": 1200, "chunkNames": ["main"]},
		{"name": "1.def456.js", "size": 300, "chunkNames": []},
		{"name": "main.css", "size": 80, "chunkNames": ["main"]}
	],
	"entrypoints": {"main": {"name": "main", "assets": ["client.abc123.js", "main.css"]}},
	"warnings": [{"message": "asset size limit", "moduleName": "./src/big.js"}],
	"errors": []
}`

const failedStats = `{
	"time": 7,
	"errors": ["Module not found: Error: Can't resolve './missing'"],
	"warnings": []
}`

func describeMessages(names ...string) []webpack.Message {
	return []webpack.Message{{Type: webpack.MessageDescribe, Names: names}}
}

func newWebpackSet(t *testing.T, runner webpack.Runner, wopts compilers.WebpackOptions) *compilers.CompilerSet {
	t.Helper()
	wopts.Runner = runner
	set, err := compilers.Create(context.Background(), compilers.Options{
		Bundler: types.BundlerWebpack,
		Cwd:     t.TempDir(),
		Webpack: wopts,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return set
}

func TestCreate_Webpack(t *testing.T) {
	runner := &scriptedRunner{messages: map[string][]webpack.Message{
		webpack.CommandDescribe: describeMessages("client", "server"),
	}}
	set := newWebpackSet(t, runner, compilers.WebpackOptions{})

	if !set.UsesDevServer {
		t.Error("expected webpack to use the dev server")
	}
	if set.ServiceWorker != nil {
		t.Error("expected no service worker compiler")
	}
	if set.Bundler != types.BundlerWebpack {
		t.Errorf("unexpected bundler %s", set.Bundler)
	}
	if !strings.HasSuffix(runner.requests[0].Config, "webpack.config.js") {
		t.Errorf("unexpected config path %s", runner.requests[0].Config)
	}
}

func TestCreate_WebpackConfigShape(t *testing.T) {
	runner := &scriptedRunner{messages: map[string][]webpack.Message{
		webpack.CommandDescribe: describeMessages("client"),
	}}

	_, err := compilers.Create(context.Background(), compilers.Options{
		Bundler: types.BundlerWebpack,
		Cwd:     t.TempDir(),
		Webpack: compilers.WebpackOptions{Runner: runner},
	})

	var shape *compilers.ConfigShapeError
	if !errors.As(err, &shape) || shape.Bundler != types.BundlerWebpack {
		t.Fatalf("expected webpack ConfigShapeError, got %v", err)
	}
}

func TestWebpackCompiler_Compile(t *testing.T) {
	runner := &scriptedRunner{messages: map[string][]webpack.Message{
		webpack.CommandDescribe: describeMessages("client", "server", "serviceworker"),
		webpack.CommandRun:      {{Type: webpack.MessageDone, Stats: []byte(okStats)}},
	}}
	set := newWebpackSet(t, runner, compilers.WebpackOptions{})

	result, err := set.Client.Compile(context.Background())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if result.DurationMs() != 42 {
		t.Errorf("expected 42ms, got %d", result.DurationMs())
	}
	if len(result.Chunks) != 2 {
		t.Fatalf("expected two script chunks, got %+v", result.Chunks)
	}
	if result.Chunks[1].File != "client.abc123.js" || !result.Chunks[1].IsEntry || result.Chunks[1].Name != "main" {
		t.Errorf("unexpected entry chunk %+v", result.Chunks[1])
	}
	if result.Assets["main"] != "client.abc123.js" {
		t.Errorf("unexpected assets %v", result.Assets)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Filename != "./src/big.js" {
		t.Errorf("unexpected warnings %+v", result.Warnings)
	}
	if result.HasErrors() {
		t.Errorf("unexpected errors %+v", result.Errors)
	}
	if last := runner.requests[len(runner.requests)-1]; last.Name != "client" {
		t.Errorf("expected the client bundle to run, got %+v", last)
	}
}

func TestWebpackCompiler_BuildErrors(t *testing.T) {
	runner := &scriptedRunner{messages: map[string][]webpack.Message{
		webpack.CommandDescribe: describeMessages("client", "server"),
		webpack.CommandRun:      {{Type: webpack.MessageDone, Stats: []byte(failedStats), Text: "ERROR in ./src/client.js"}},
	}}
	var stderr bytes.Buffer
	set := newWebpackSet(t, runner, compilers.WebpackOptions{Stderr: &stderr})

	_, err := set.Server.Compile(context.Background())
	if !errors.Is(err, compilers.ErrBuildFailed) {
		t.Fatalf("expected ErrBuildFailed, got %v", err)
	}
	if !strings.Contains(stderr.String(), "ERROR in ./src/client.js") {
		t.Errorf("expected stats printed, got %q", stderr.String())
	}
}

func TestWebpackCompiler_EngineError(t *testing.T) {
	tests := []struct {
		name        string
		exitOnError bool
		wantExit    bool
	}{
		{"default keeps running", false, false},
		{"exit on error", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &scriptedRunner{messages: map[string][]webpack.Message{
				webpack.CommandDescribe: describeMessages("client", "server"),
				webpack.CommandRun:      {{Type: webpack.MessageError, Error: "Cannot find module 'webpack'"}},
			}}

			exitCode := -1
			set := newWebpackSet(t, runner, compilers.WebpackOptions{
				ExitOnError: tt.exitOnError,
				Exit:        func(code int) { exitCode = code },
			})

			_, err := set.Client.Compile(context.Background())
			if err == nil || !strings.Contains(err.Error(), "Cannot find module") {
				t.Fatalf("expected engine error, got %v", err)
			}
			if errors.Is(err, compilers.ErrBuildFailed) {
				t.Error("engine errors must not be reported as build failures")
			}
			if (exitCode == 1) != tt.wantExit {
				t.Errorf("exit code = %d, want exit %v", exitCode, tt.wantExit)
			}
		})
	}
}

func TestWebpackCompiler_Watch(t *testing.T) {
	runner := &scriptedRunner{
		block: true,
		messages: map[string][]webpack.Message{
			webpack.CommandDescribe: describeMessages("client", "server"),
			webpack.CommandWatch: {
				{Type: webpack.MessageDone, Stats: []byte(okStats)},
				{Type: webpack.MessageInvalid, File: "/app/src/client.js"},
				{Type: webpack.MessageDone, Stats: []byte(failedStats)},
			},
		},
	}
	set := newWebpackSet(t, runner, compilers.WebpackOptions{})

	var mu sync.Mutex
	var sequence []string
	done := make(chan struct{})

	set.Client.OnInvalid(func(id string) {
		mu.Lock()
		sequence = append(sequence, "invalid:"+id)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := set.Client.Watch(ctx, func(err error, result *types.Result) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			t.Errorf("unexpected watch error %v", err)
			return
		}
		sequence = append(sequence, "result")
		if result.HasErrors() {
			close(done)
		}
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch results")
	}

	mu.Lock()
	defer mu.Unlock()
	if got := strings.Join(sequence, ","); got != "result,invalid:/app/src/client.js,result" {
		t.Errorf("unexpected sequence %s", got)
	}
}
