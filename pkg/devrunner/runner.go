// Package devrunner keeps every compiler of a set in watch mode and tracks
// which targets are waiting for a rebuild.
package devrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/poltergeist/polterpack/pkg/compilers"
	"github.com/poltergeist/polterpack/pkg/interfaces"
	"github.com/poltergeist/polterpack/pkg/logger"
	"github.com/poltergeist/polterpack/pkg/types"
)

// EventKind classifies runner events
type EventKind string

const (
	EventInvalid EventKind = "invalid"
	EventBuilt   EventKind = "built"
	EventFailed  EventKind = "failed"
)

// Event reports a change of one target's state
type Event struct {
	Target types.BuildTarget
	Kind   EventKind
	File   string
	Result *types.Result
	Err    error
}

// Options configures a Runner
type Options struct {
	Logger   logger.Logger
	Notifier interfaces.Notifier

	// OnEvent is called for every invalidation and completed cycle
	OnEvent func(Event)
}

// Status is a snapshot of one target
type Status struct {
	Target       types.BuildTarget
	Pending      bool
	Builds       int
	Failures     int
	LastBuild    time.Time
	LastResult   *types.Result
	LastError    error
	ChangedFiles []string
}

type targetState struct {
	status Status
	done   bool
}

// Runner watches all compilers of a set
type Runner struct {
	set      *compilers.CompilerSet
	logger   logger.Logger
	notifier interfaces.Notifier
	onEvent  func(Event)

	mu      sync.Mutex
	states  map[types.BuildTarget]*targetState
	changed chan struct{}
	started bool
}

// New creates a runner for set
func New(set *compilers.CompilerSet, opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	r := &Runner{
		set:      set,
		logger:   log,
		notifier: opts.Notifier,
		onEvent:  opts.OnEvent,
		states:   make(map[types.BuildTarget]*targetState),
		changed:  make(chan struct{}),
	}
	for _, t := range set.Targets() {
		r.states[t] = &targetState{status: Status{Target: t, Pending: true}}
	}
	return r
}

// Start puts every compiler into watch mode. Watching ends when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("runner already started")
	}
	r.started = true
	r.mu.Unlock()

	return r.set.Each(func(target types.BuildTarget, c interfaces.Compiler) error {
		c.OnInvalid(func(file string) {
			r.invalidate(target, file)
		})

		err := c.Watch(ctx, func(err error, result *types.Result) {
			r.complete(target, err, result)
		})
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", target, err)
		}

		r.logger.Info("Watching", logger.WithField("target", target))
		return nil
	})
}

func (r *Runner) invalidate(target types.BuildTarget, file string) {
	r.mu.Lock()
	st := r.states[target]
	st.status.Pending = true
	st.status.ChangedFiles = append(st.status.ChangedFiles, file)
	r.broadcastLocked()
	r.mu.Unlock()

	r.logger.Debug("Invalidated", logger.WithField("target", target), logger.WithField("file", file))
	r.emit(Event{Target: target, Kind: EventInvalid, File: file})
}

func (r *Runner) complete(target types.BuildTarget, err error, result *types.Result) {
	failed := err != nil || (result != nil && result.HasErrors())

	r.mu.Lock()
	st := r.states[target]
	st.done = true
	st.status.Pending = false
	st.status.Builds++
	st.status.LastBuild = time.Now()
	st.status.LastResult = result
	st.status.LastError = err
	st.status.ChangedFiles = nil
	if failed {
		st.status.Failures++
	}
	r.broadcastLocked()
	r.mu.Unlock()

	if failed {
		if err == nil {
			err = result.Errors[0]
		}
		r.logger.Error("Build failed", logger.WithField("target", target), logger.WithError(err))
		if r.notifier != nil {
			r.notifier.NotifyBuildFailed(string(target), err)
		}
		r.emit(Event{Target: target, Kind: EventFailed, Result: result, Err: err})
		return
	}

	if result != nil {
		r.logger.Success("Built", logger.WithField("target", target), logger.WithField("duration_ms", result.DurationMs()))
	}
	if r.notifier != nil {
		r.notifier.NotifyBuildComplete(string(target), result)
	}
	r.emit(Event{Target: target, Kind: EventBuilt, Result: result})
}

func (r *Runner) emit(ev Event) {
	if r.onEvent != nil {
		r.onEvent(ev)
	}
}

// broadcastLocked wakes every Wait call; r.mu must be held
func (r *Runner) broadcastLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// Pending lists targets that changed since their last completed cycle
func (r *Runner) Pending() []types.BuildTarget {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []types.BuildTarget
	for _, t := range r.set.Targets() {
		if r.states[t].status.Pending {
			out = append(out, t)
		}
	}
	return out
}

// Status returns a snapshot of target
func (r *Runner) Status(target types.BuildTarget) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[target]
	if !ok {
		return Status{}, false
	}
	s := st.status
	s.ChangedFiles = append([]string(nil), st.status.ChangedFiles...)
	return s, true
}

// Wait blocks until every target finished at least one cycle and none is
// pending, so a server can hold requests while a rebuild is running.
func (r *Runner) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		ready := true
		for _, st := range r.states {
			if !st.done || st.status.Pending {
				ready = false
				break
			}
		}
		changed := r.changed
		r.mu.Unlock()

		if ready {
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
