// Package env holds the per-invocation build environment (dev flag, source
// and destination directories) consulted while loading config modules.
package env

import (
	"path/filepath"
	"sync"
)

// Env is a snapshot of the build environment
type Env struct {
	Dev  bool
	Src  string
	Dest string
}

var (
	mu      sync.RWMutex
	current = Env{Src: "src", Dest: filepath.Join("__sapper__", "build")}
)

// SetDev sets the dev mode flag
func SetDev(dev bool) {
	mu.Lock()
	current.Dev = dev
	mu.Unlock()
}

// SetSrc sets the source directory
func SetSrc(src string) {
	mu.Lock()
	current.Src = src
	mu.Unlock()
}

// SetDest sets the destination directory
func SetDest(dest string) {
	mu.Lock()
	current.Dest = dest
	mu.Unlock()
}

// Set replaces the whole environment at once
func Set(e Env) {
	mu.Lock()
	current = e
	mu.Unlock()
}

// Get returns a snapshot of the current environment
func Get() Env {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Vars returns the environment as variables for child processes
func (e Env) Vars() []string {
	dev := "false"
	if e.Dev {
		dev = "true"
	}
	return []string{
		"POLTERPACK_DEV=" + dev,
		"POLTERPACK_SRC=" + e.Src,
		"POLTERPACK_DEST=" + e.Dest,
		"NODE_ENV=" + e.NodeEnv(),
	}
}

// NodeEnv returns the NODE_ENV value matching the dev flag
func (e Env) NodeEnv() string {
	if e.Dev {
		return "development"
	}
	return "production"
}
