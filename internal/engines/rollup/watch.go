package rollup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/poltergeist/polterpack/internal/watchman"
	"github.com/poltergeist/polterpack/pkg/logger"
)

// WatchHandlers receive watcher notifications. Both are called from a single
// goroutine, in order.
type WatchHandlers struct {
	OnChange func(id string)
	OnEvent  func(Event)
}

// WatchOptions tunes a watcher
type WatchOptions struct {
	// SettlingDelay groups rapid file changes; watchman.DefaultSettlingDelay when zero
	SettlingDelay time.Duration
}

// Watcher rebuilds a config whenever one of its input files changes and
// writes the output after every successful build.
type Watcher struct {
	engine   *Engine
	cfg      *Config
	handlers WatchHandlers
	fs       *watchman.FSNotifyWatcher
	filter   *watchman.Filter
	root     string
	log      logger.Logger

	changes chan string
	done    chan struct{}
	stopped chan struct{}

	mu     sync.Mutex
	inputs map[string]bool

	closeOnce sync.Once
}

// Watch builds cfg, then keeps rebuilding it on change until ctx is cancelled,
// Close is called or a FATAL event is emitted.
func (e *Engine) Watch(ctx context.Context, cfg *Config, handlers WatchHandlers, opts ...WatchOptions) (*Watcher, error) {
	if cfg == nil {
		return nil, errors.New("missing build configuration")
	}
	if cfg.Output.OutDir() == "" {
		return nil, &Error{Code: "MISSING_OPTION", Message: "watch requires output.dir or output.file"}
	}

	cwd, err := workingDir(cfg)
	if err != nil {
		return nil, err
	}

	filter, err := watchman.NewFilter(cfg.Watch.Include, cfg.Watch.Exclude)
	if err != nil {
		return nil, &Error{Code: "INVALID_OPTION", Message: fmt.Sprintf("watch: %v", err)}
	}

	fs, err := watchman.NewFSNotifyWatcher(e.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	for _, o := range opts {
		if o.SettlingDelay > 0 {
			fs.SetSettlingDelay(o.SettlingDelay)
		}
	}
	outDir := cfg.Output.OutDir()
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(cwd, outDir)
	}
	fs.SetExclusions([]string{outDir})

	w := &Watcher{
		engine:   e,
		cfg:      cfg,
		handlers: handlers,
		fs:       fs,
		filter:   filter,
		root:     cwd,
		log:      e.log,
		changes:  make(chan string, 64),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		inputs:   make(map[string]bool),
	}

	if err := fs.WatchProject(cwd, w.onFileEvent); err != nil {
		fs.Close()
		return nil, err
	}

	go w.loop(ctx)
	return w, nil
}

// Close stops watching and waits for a running build to finish. It must not
// be called from a handler.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	<-w.stopped
	return err
}

// Done is closed once the watcher has stopped
func (w *Watcher) Done() <-chan struct{} {
	return w.stopped
}

func (w *Watcher) onFileEvent(ev watchman.FileEvent) {
	if ev.IsDir || !w.isInput(ev.Path) {
		return
	}
	if rel, err := filepath.Rel(w.root, ev.Path); err == nil && !w.filter.Allows(rel) {
		return
	}
	select {
	case w.changes <- ev.Path:
	case <-w.done:
	case <-w.stopped:
	}
}

// isInput reports whether path was read by the last build. Before any build
// has succeeded every file counts.
func (w *Watcher) isInput(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.inputs) == 0 {
		return true
	}
	return w.inputs[filepath.Clean(path)]
}

func (w *Watcher) setInputs(paths []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inputs = make(map[string]bool, len(paths))
	for _, p := range paths {
		w.inputs[p] = true
	}
}

func (w *Watcher) addInput(path string) {
	if path == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.inputs) > 0 {
		w.inputs[filepath.Clean(path)] = true
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.stopped)
	defer w.fs.Close()

	if !w.cycle(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case id := <-w.changes:
			w.emitChange(id)
			w.drain()
			if !w.cycle(ctx) {
				return
			}
		}
	}
}

// drain reports changes that queued up while the previous one was handled
func (w *Watcher) drain() {
	seen := make(map[string]bool)
	for {
		select {
		case id := <-w.changes:
			if !seen[id] {
				seen[id] = true
				w.emitChange(id)
			}
		default:
			return
		}
	}
}

func (w *Watcher) emitChange(id string) {
	w.log.Debug("File changed", logger.WithField("id", id))
	if w.handlers.OnChange != nil {
		w.handlers.OnChange(id)
	}
}

func (w *Watcher) emit(ev Event) {
	if w.handlers.OnEvent != nil {
		w.handlers.OnEvent(ev)
	}
}

// cycle runs one build; it returns false after a FATAL event
func (w *Watcher) cycle(ctx context.Context) bool {
	w.emit(Event{Code: EventStart})
	w.emit(Event{Code: EventBundleStart, Input: w.cfg.Input})

	start := time.Now()
	bundle, err := w.engine.Rollup(ctx, w.cfg)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		var buildErr *Error
		if errors.As(err, &buildErr) {
			w.addInput(buildErr.Filename)
			w.emit(Event{Code: EventError, Error: buildErr})
			w.emit(Event{Code: EventEnd})
			return true
		}
		w.emit(Event{Code: EventFatal, Error: &Error{Code: "FATAL", Message: err.Error()}})
		return false
	}

	output, err := bundle.Write(ctx, w.cfg.Output)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		var buildErr *Error
		if !errors.As(err, &buildErr) {
			buildErr = &Error{Code: "FATAL", Message: err.Error()}
		}
		w.emit(Event{Code: EventFatal, Error: buildErr})
		return false
	}

	w.setInputs(bundle.Inputs())
	w.emit(Event{
		Code:     EventBundleEnd,
		Input:    w.cfg.Input,
		Output:   output.Files(),
		Duration: time.Since(start).Milliseconds(),
	})
	w.emit(Event{Code: EventEnd})
	return true
}
