// Package process handles signals and graceful shutdown of long running commands
package process

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/poltergeist/polterpack/pkg/logger"
)

// Manager cancels a context on SIGINT, SIGTERM or SIGHUP and runs the
// registered shutdown handlers in reverse order
type Manager struct {
	logger           logger.Logger
	shutdownHandlers []func()
	signals          chan os.Signal
	wg               sync.WaitGroup
	mu               sync.Mutex
	running          bool
}

// NewManager creates a new process manager
func NewManager(log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		logger:           log,
		shutdownHandlers: make([]func(), 0),
	}
}

// RegisterShutdownHandler adds a shutdown handler
func (m *Manager) RegisterShutdownHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownHandlers = append(m.shutdownHandlers, handler)
}

// Start returns a context that is cancelled when a signal arrives or parent
// is done. Shutdown handlers run once, after the cancellation.
func (m *Manager) Start(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		cancel()
		return ctx
	}
	m.running = true
	m.signals = make(chan os.Signal, 1)
	m.mu.Unlock()

	signal.Notify(m.signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer signal.Stop(m.signals)

		select {
		case <-ctx.Done():
		case sig, ok := <-m.signals:
			if ok {
				m.logger.Info("Received signal", logger.WithField("signal", sig))
			}
		}
		cancel()
		m.handleShutdown()
	}()

	return ctx
}

// Signal delivers sig as if the process had received it
func (m *Manager) Signal(sig os.Signal) {
	m.mu.Lock()
	ch := m.signals
	m.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- sig:
	default:
	}
}

// Wait blocks until the shutdown handlers have run
func (m *Manager) Wait() {
	m.wg.Wait()
}

// IsRunning checks if the process manager is running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) handleShutdown() {
	m.logger.Info("Initiating graceful shutdown...")

	m.mu.Lock()
	handlers := make([]func(), len(m.shutdownHandlers))
	copy(handlers, m.shutdownHandlers)
	m.running = false
	m.mu.Unlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i]()
	}
}
