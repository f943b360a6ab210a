// Package mocks provides test doubles for the compiler capability.
// MockCompiler and MockNotifier are generated; FakeCompiler is a scriptable
// stand-in for tests that drive watch cycles by hand.
package mocks

import (
	"context"
	"sync"

	"github.com/poltergeist/polterpack/pkg/interfaces"
	"github.com/poltergeist/polterpack/pkg/types"
)

// FakeCompiler implements interfaces.Compiler with scripted results
type FakeCompiler struct {
	mu           sync.Mutex
	result       *types.Result
	compileError error
	watchError   error
	compileCount int
	watchCB      interfaces.WatchCallback
	invalidCB    interfaces.InvalidCallback
	watchCtx     context.Context
}

var _ interfaces.Compiler = (*FakeCompiler)(nil)

// NewFakeCompiler creates a fake that compiles to an empty result
func NewFakeCompiler() *FakeCompiler {
	return &FakeCompiler{result: &types.Result{}}
}

// Compile returns the scripted result or error
func (f *FakeCompiler) Compile(ctx context.Context) (*types.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compileCount++
	if f.compileError != nil {
		return nil, f.compileError
	}
	return f.result, nil
}

// Watch records the callback; cycles are driven with Invalidate and Complete
func (f *FakeCompiler) Watch(ctx context.Context, cb interfaces.WatchCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchError != nil {
		return f.watchError
	}
	f.watchCB = cb
	f.watchCtx = ctx
	return nil
}

// OnInvalid records the invalidation callback
func (f *FakeCompiler) OnInvalid(cb interfaces.InvalidCallback) {
	f.mu.Lock()
	f.invalidCB = cb
	f.mu.Unlock()
}

// Invalidate simulates a source change
func (f *FakeCompiler) Invalidate(id string) {
	f.mu.Lock()
	cb := f.invalidCB
	f.mu.Unlock()
	if cb != nil {
		cb(id)
	}
}

// Complete simulates the end of a watch cycle
func (f *FakeCompiler) Complete(err error, result *types.Result) {
	f.mu.Lock()
	cb := f.watchCB
	f.mu.Unlock()
	if cb != nil {
		cb(err, result)
	}
}

// Watching reports whether Watch was called with a live context
func (f *FakeCompiler) Watching() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watchCB != nil && f.watchCtx != nil && f.watchCtx.Err() == nil
}

// SetResult sets the result returned by Compile
func (f *FakeCompiler) SetResult(result *types.Result) {
	f.mu.Lock()
	f.result = result
	f.mu.Unlock()
}

// SetCompileError makes Compile fail
func (f *FakeCompiler) SetCompileError(err error) {
	f.mu.Lock()
	f.compileError = err
	f.mu.Unlock()
}

// SetWatchError makes Watch fail
func (f *FakeCompiler) SetWatchError(err error) {
	f.mu.Lock()
	f.watchError = err
	f.mu.Unlock()
}

// CompileCount returns how often Compile ran
func (f *FakeCompiler) CompileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.compileCount
}
