package context_test

import (
	"context"
	"strings"
	"testing"
	"time"

	pcontext "github.com/poltergeist/polterpack/pkg/context"
)

func TestNewCycle(t *testing.T) {
	ctx := pcontext.NewCycle(context.Background(), "client", "compile")

	if id := pcontext.GetCycleID(ctx); !strings.HasPrefix(id, "cyc_") {
		t.Errorf("expected generated cycle id, got %q", id)
	}
	if b := pcontext.GetBundle(ctx); b != "client" {
		t.Errorf("expected bundle client, got %q", b)
	}
	if op := pcontext.GetOperation(ctx); op != "compile" {
		t.Errorf("expected operation compile, got %q", op)
	}
}

func TestGetDuration(t *testing.T) {
	if d := pcontext.GetDuration(context.Background()); d != 0 {
		t.Errorf("expected zero duration without start time, got %s", d)
	}

	ctx := pcontext.WithStartTime(context.Background(), time.Now().Add(-time.Second))
	if d := pcontext.GetDuration(ctx); d < time.Second {
		t.Errorf("expected at least 1s, got %s", d)
	}
}

func TestTracingFields(t *testing.T) {
	fields := pcontext.TracingFields(context.Background())
	if len(fields) != 0 {
		t.Errorf("expected no fields on empty context, got %v", fields)
	}

	ctx := pcontext.WithCycleID(context.Background(), "cyc_fixed")
	ctx = pcontext.WithBundle(ctx, "server")
	fields = pcontext.TracingFields(ctx)
	if fields["cycle_id"] != "cyc_fixed" || fields["bundle"] != "server" {
		t.Errorf("unexpected fields: %v", fields)
	}
}
