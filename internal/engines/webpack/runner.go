package webpack

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

//go:embed bridge.js
var bridgeSource []byte

// Request is sent to the bridge
type Request struct {
	Command string `json:"command"`
	Config  string `json:"config"`
	Name    string `json:"name,omitempty"`
}

const (
	CommandDescribe = "describe"
	CommandRun      = "run"
	CommandWatch    = "watch"
)

// Message is one event reported by the bridge
type Message struct {
	Type  string          `json:"type"`
	Names []string        `json:"names,omitempty"`
	File  string          `json:"file,omitempty"`
	Stats json.RawMessage `json:"stats,omitempty"`
	Text  string          `json:"text,omitempty"`
	Error string          `json:"error,omitempty"`
}

const (
	MessageDescribe = "describe"
	MessageInvalid  = "invalid"
	MessageDone     = "done"
	MessageError    = "error"
)

// Runner executes a bridge request, handing every message to handle in order.
// Run returns once the bridge exits or ctx is cancelled.
type Runner interface {
	Run(ctx context.Context, req Request, handle func(Message)) error
}

// NodeRunner runs the bridge with a node executable
type NodeRunner struct {
	Node string
	Dir  string
	Env  []string

	once       sync.Once
	scriptPath string
	scriptErr  error
}

// NewNodeRunner creates a runner; node defaults to "node" on PATH
func NewNodeRunner(node, dir string, env []string) *NodeRunner {
	if node == "" {
		node = "node"
	}
	return &NodeRunner{Node: node, Dir: dir, Env: env}
}

func (r *NodeRunner) script() (string, error) {
	r.once.Do(func() {
		sum := sha256.Sum256(bridgeSource)
		path := filepath.Join(os.TempDir(), "polterpack-bridge-"+hex.EncodeToString(sum[:6])+".js")
		if _, err := os.Stat(path); err == nil {
			r.scriptPath = path
			return
		}
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, bridgeSource, 0644); err != nil {
			r.scriptErr = fmt.Errorf("failed to write webpack bridge: %w", err)
			return
		}
		if err := os.Rename(tmp, path); err != nil {
			r.scriptErr = fmt.Errorf("failed to install webpack bridge: %w", err)
			return
		}
		r.scriptPath = path
	})
	return r.scriptPath, r.scriptErr
}

// Run implements Runner
func (r *NodeRunner) Run(ctx context.Context, req Request, handle func(Message)) error {
	script, err := r.script()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, r.Node, script, string(payload))
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), r.Env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", r.Node, err)
	}

	if err := ReadMessages(stdout, handle); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return err
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("webpack bridge failed: %w", err)
		}
		return fmt.Errorf("webpack bridge failed: %w\n%s", err, msg)
	}
	return nil
}

// ReadMessages decodes newline-delimited JSON messages. Lines that are not
// JSON objects (stray output from the build) are skipped.
func ReadMessages(r io.Reader, handle func(Message)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		handle(msg)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read webpack bridge output: %w", err)
	}
	return nil
}
