// Package watchman provides the file change notifications behind the
// engines' native watch modes.
package watchman

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/poltergeist/polterpack/pkg/logger"
)

// EventType represents the type of file event
type EventType int

const (
	FileCreated EventType = iota
	FileModified
	FileDeleted
	FileRenamed
)

func (t EventType) String() string {
	switch t {
	case FileCreated:
		return "create"
	case FileDeleted:
		return "delete"
	case FileRenamed:
		return "rename"
	default:
		return "update"
	}
}

// FileEvent represents a settled file change
type FileEvent struct {
	Path    string
	Type    EventType
	IsDir   bool
	ModTime time.Time
}

// DefaultSettlingDelay is how long a path must stay quiet before its event is dispatched
const DefaultSettlingDelay = 50 * time.Millisecond

var commonExclusions = map[string]bool{
	".git": true, ".svn": true, ".hg": true,
	"node_modules": true, "__sapper__": true,
	".idea": true, ".vscode": true,
}

// FSNotifyWatcher watches a directory tree with fsnotify and dispatches
// one event per path once writes to it have settled.
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	logger     logger.Logger
	exclusions []string
	settling   time.Duration
	pending    map[string]*time.Timer
	callback   func(FileEvent)
	mu         sync.Mutex
	done       chan struct{}
	closeOnce  sync.Once
}

// NewFSNotifyWatcher creates a new fsnotify-based watcher
func NewFSNotifyWatcher(log logger.Logger) (*FSNotifyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}

	return &FSNotifyWatcher{
		watcher:  watcher,
		logger:   log,
		settling: DefaultSettlingDelay,
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}, nil
}

// SetSettlingDelay sets the delay for event settling
func (f *FSNotifyWatcher) SetSettlingDelay(delay time.Duration) {
	f.mu.Lock()
	f.settling = delay
	f.mu.Unlock()
}

// SetExclusions sets path fragments that are never watched
func (f *FSNotifyWatcher) SetExclusions(exclusions []string) {
	f.mu.Lock()
	f.exclusions = exclusions
	f.mu.Unlock()
}

// WatchProject watches root recursively and calls callback for every settled change.
// Only one project can be watched per watcher.
func (f *FSNotifyWatcher) WatchProject(root string, callback func(FileEvent)) error {
	f.mu.Lock()
	if f.callback != nil {
		f.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	f.callback = callback
	f.mu.Unlock()

	if err := f.addDirectory(root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	go f.processEvents()

	f.logger.Debug("Watching project", logger.WithField("root", root))
	return nil
}

// Close stops the watcher; pending events are dropped
func (f *FSNotifyWatcher) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)

		f.mu.Lock()
		for path, timer := range f.pending {
			timer.Stop()
			delete(f.pending, path)
		}
		f.mu.Unlock()

		err = f.watcher.Close()
	})
	return err
}

// List returns all watched directories
func (f *FSNotifyWatcher) List() []string {
	return f.watcher.WatchList()
}

func (f *FSNotifyWatcher) addDirectory(dir string) error {
	if f.isExcluded(dir) {
		return nil
	}

	if err := f.watcher.Add(dir); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		subdir := filepath.Join(dir, entry.Name())
		if err := f.addDirectory(subdir); err != nil {
			f.logger.Warn(fmt.Sprintf("Failed to watch subdirectory %s: %v", subdir, err))
		}
	}

	return nil
}

func (f *FSNotifyWatcher) processEvents() {
	for {
		select {
		case <-f.done:
			return

		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if f.isExcluded(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}

			// new directories join the watch set
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := f.addDirectory(event.Name); err != nil {
						f.logger.Warn(fmt.Sprintf("Failed to watch new directory %s: %v", event.Name, err))
					}
				}
			}

			f.settle(event)

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Error(fmt.Sprintf("Watcher error: %v", err))
		}
	}
}

func (f *FSNotifyWatcher) settle(event fsnotify.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if timer, ok := f.pending[event.Name]; ok {
		timer.Stop()
	}

	f.pending[event.Name] = time.AfterFunc(f.settling, func() {
		f.mu.Lock()
		delete(f.pending, event.Name)
		callback := f.callback
		f.mu.Unlock()

		select {
		case <-f.done:
			return
		default:
		}

		if callback != nil {
			callback(convertEvent(event))
		}
	})
}

func convertEvent(event fsnotify.Event) FileEvent {
	fileEvent := FileEvent{Path: event.Name}

	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		fileEvent.Type = FileCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		fileEvent.Type = FileModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		fileEvent.Type = FileDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		fileEvent.Type = FileRenamed
	default:
		fileEvent.Type = FileModified
	}

	if info, err := os.Stat(event.Name); err == nil {
		fileEvent.IsDir = info.IsDir()
		fileEvent.ModTime = info.ModTime()
	} else if fileEvent.Type != FileDeleted {
		// gone by the time it settled
		fileEvent.Type = FileDeleted
	}

	return fileEvent
}

func (f *FSNotifyWatcher) isExcluded(path string) bool {
	if commonExclusions[filepath.Base(path)] {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pattern := range f.exclusions {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}
