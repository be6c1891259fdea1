package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGoPanicCancelsOnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("boom", func(context.Context) error { panic("kaput") })
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	err := s.Wait(waitCtx(t))
	if err == nil || !strings.Contains(err.Error(), "boom: panic: kaput") {
		t.Fatalf("Wait err = %v", err)
	}
	c := s.Counters()
	if c.Started != 2 || c.Active != 0 || c.Panics != 1 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestGoCanceledIsClean(t *testing.T) {
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond))

	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n := runs.Load(); n != 3 {
		t.Fatalf("runs = %d, want 3", n)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("broken", func(context.Context) error {
		runs.Add(1)
		return errors.New("still broken")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	err := s.Wait(waitCtx(t))
	if err == nil || !strings.Contains(err.Error(), "still broken") {
		t.Fatalf("Wait err = %v", err)
	}
	if n := runs.Load(); n != 3 {
		t.Fatalf("runs = %d, want initial run plus 2 restarts", n)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	s := New(context.Background())
	block := make(chan struct{})
	defer close(block)
	s.Go0("stuck", func(context.Context) { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err = %v, want deadline exceeded", err)
	}
}
