// Package interfaces provides abstractions for dependency injection and testability
package interfaces

//go:generate mockgen -destination=../mocks/compiler_mock.go -package=mocks github.com/poltergeist/polterpack/pkg/interfaces Compiler,Notifier

import (
	"context"

	"github.com/poltergeist/polterpack/pkg/types"
)

// WatchCallback receives the outcome of every watch cycle. err and result may
// both be set when a cycle finished with build errors.
type WatchCallback func(err error, result *types.Result)

// InvalidCallback receives the id of a changed source before the rebuild starts
type InvalidCallback func(changedID string)

// Compiler builds one target with one engine
type Compiler interface {
	// Compile runs a one-shot build and writes its output
	Compile(ctx context.Context) (*types.Result, error)

	// Watch starts the engine's watch mode; it returns once watching began.
	// Watching stops when ctx is cancelled.
	Watch(ctx context.Context, cb WatchCallback) error

	// OnInvalid registers the invalidation callback
	OnInvalid(cb InvalidCallback)
}

// Notifier sends build notifications
type Notifier interface {
	NotifyBuildComplete(target string, result *types.Result)
	NotifyBuildFailed(target string, err error)
}
