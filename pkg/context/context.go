// Package context carries build tracing values through context.Context
package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Context keys for build tracing.
// Using unexported struct pointers prevents key collisions.
var (
	cycleIDKey   = &struct{}{}
	bundleKey    = &struct{}{}
	operationKey = &struct{}{}
	startTimeKey = &struct{}{}
)

// WithCycleID adds a build cycle ID to the context
func WithCycleID(parent context.Context, cycleID string) context.Context {
	if cycleID == "" {
		cycleID = GenerateCycleID()
	}
	return context.WithValue(parent, cycleIDKey, cycleID)
}

// GetCycleID retrieves the build cycle ID from context
func GetCycleID(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey).(string); ok && id != "" {
		return id
	}
	return ""
}

// WithBundle records which bundle (client, server, serviceworker) the context belongs to
func WithBundle(parent context.Context, bundle string) context.Context {
	return context.WithValue(parent, bundleKey, bundle)
}

// GetBundle retrieves the bundle name from context
func GetBundle(ctx context.Context) string {
	if b, ok := ctx.Value(bundleKey).(string); ok {
		return b
	}
	return ""
}

// WithOperation adds an operation name to the context
func WithOperation(parent context.Context, operation string) context.Context {
	return context.WithValue(parent, operationKey, operation)
}

// GetOperation retrieves the operation name from context
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok {
		return op
	}
	return ""
}

// WithStartTime adds the operation start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetDuration returns the time elapsed since the start time in context,
// or zero when no start time was recorded.
func GetDuration(ctx context.Context) time.Duration {
	if t, ok := ctx.Value(startTimeKey).(time.Time); ok {
		return time.Since(t)
	}
	return 0
}

// GenerateCycleID creates a new unique build cycle ID
func GenerateCycleID() string {
	return "cyc_" + uuid.New().String()
}

// NewCycle starts a traced build cycle for the given bundle and operation
func NewCycle(parent context.Context, bundle, operation string) context.Context {
	ctx := WithCycleID(parent, "")
	ctx = WithBundle(ctx, bundle)
	ctx = WithOperation(ctx, operation)
	return WithStartTime(ctx, time.Now())
}

// TracingFields returns the tracing values present in ctx
func TracingFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})
	if id := GetCycleID(ctx); id != "" {
		fields["cycle_id"] = id
	}
	if b := GetBundle(ctx); b != "" {
		fields["bundle"] = b
	}
	if op := GetOperation(ctx); op != "" {
		fields["operation"] = op
	}
	if d := GetDuration(ctx); d > 0 {
		fields["duration_ms"] = d.Milliseconds()
	}
	return fields
}
