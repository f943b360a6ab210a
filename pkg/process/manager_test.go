package process_test

import (
	"context"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/poltergeist/polterpack/pkg/process"
)

func TestManager_SignalCancelsAndRunsHandlers(t *testing.T) {
	m := process.NewManager(nil)

	var mu sync.Mutex
	var order []string
	m.RegisterShutdownHandler(func() { mu.Lock(); order = append(order, "first"); mu.Unlock() })
	m.RegisterShutdownHandler(func() { mu.Lock(); order = append(order, "second"); mu.Unlock() })

	ctx := m.Start(context.Background())
	if !m.IsRunning() {
		t.Fatal("expected manager running")
	}

	m.Signal(syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled after signal")
	}
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(order, ",") != "second,first" {
		t.Errorf("expected handlers in reverse order, got %v", order)
	}
	if m.IsRunning() {
		t.Error("expected manager stopped after shutdown")
	}
}

func TestManager_ParentCancel(t *testing.T) {
	m := process.NewManager(nil)

	called := make(chan struct{})
	m.RegisterShutdownHandler(func() { close(called) })

	parent, cancel := context.WithCancel(context.Background())
	ctx := m.Start(parent)
	cancel()

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown handler not called")
	}
	if ctx.Err() == nil {
		t.Error("expected derived context cancelled")
	}
}
