package group_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/poltergeist/polterpack/internal/group"
)

func TestSafeGroup_RecoversPanic(t *testing.T) {
	g, _ := group.NewSafeGroup(context.Background(), nil)

	g.Go(func() error { panic("kaboom") })

	err := g.Wait()
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected panic converted to error, got %v", err)
	}
}

func TestSafeGroup_FirstErrorCancels(t *testing.T) {
	g, ctx := group.NewSafeGroup(context.Background(), nil)
	sentinel := errors.New("first")

	g.Go(func() error { return sentinel })
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := g.Wait(); !errors.Is(err, sentinel) {
		t.Fatalf("expected first error, got %v", err)
	}
}

func TestSafeGroup_AllSucceed(t *testing.T) {
	g, _ := group.NewSafeGroup(context.Background(), nil)
	g.SetLimit(2)

	var count int32
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			atomic.AddInt32(&count, 1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if count != 5 {
		t.Errorf("expected 5 runs, got %d", count)
	}
}
