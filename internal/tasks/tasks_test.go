package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"reelsmith/internal/events"
)

func TestRunObservesSuccess(t *testing.T) {
	hub := events.NewHub(8)
	runner := NewRunner(context.Background(), hub, nil)

	ran := false
	handle := runner.Run("noop", func(ctx context.Context) error {
		ran = true
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := handle.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !ran {
		t.Fatal("task never ran")
	}
	if handle.Err() != nil {
		t.Fatalf("unexpected task error: %v", handle.Err())
	}

	published, _, err := hub.Fetch(ctx, 0, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(published) != 1 || published[0].Type != events.TypeTaskFinished {
		t.Fatalf("expected one task.finished event, got %#v", published)
	}
	if published[0].Status != "ok" || published[0].Fields["task"] != "noop" {
		t.Fatalf("unexpected event payload: %#v", published[0])
	}
}

func TestRunObservesFailure(t *testing.T) {
	hub := events.NewHub(8)
	runner := NewRunner(context.Background(), hub, nil)

	boom := errors.New("gateway down")
	handle := runner.Run("submit", func(ctx context.Context) error {
		return boom
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := handle.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !errors.Is(handle.Err(), boom) {
		t.Fatalf("expected task error, got %v", handle.Err())
	}

	published, _, _ := hub.Fetch(ctx, 0, 10, false)
	if len(published) != 1 || published[0].Status != "failed" {
		t.Fatalf("expected failed event, got %#v", published)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	runner := NewRunner(context.Background(), nil, nil)

	handle := runner.Run("explode", func(ctx context.Context) error {
		panic("boom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := handle.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if handle.Err() == nil {
		t.Fatal("expected panicking task to report an error")
	}
}

func TestRunBatchBoundsConcurrency(t *testing.T) {
	runner := NewRunner(context.Background(), nil, nil)

	var active, peak int64
	fn := func(ctx context.Context) error {
		current := atomic.AddInt64(&active, 1)
		for {
			observed := atomic.LoadInt64(&peak)
			if current <= observed || atomic.CompareAndSwapInt64(&peak, observed, current) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return nil
	}

	fns := make([]func(ctx context.Context) error, 8)
	for i := range fns {
		fns[i] = fn
	}

	handle := runner.RunBatch("fan-out", 2, fns...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := handle.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if handle.Err() != nil {
		t.Fatalf("batch failed: %v", handle.Err())
	}
	if got := atomic.LoadInt64(&peak); got > 2 {
		t.Fatalf("expected at most 2 concurrent tasks, saw %d", got)
	}
}

func TestRunBatchReportsFirstError(t *testing.T) {
	runner := NewRunner(context.Background(), nil, nil)

	boom := errors.New("one bad submission")
	handle := runner.RunBatch("fan-out", 0,
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error { return nil },
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := handle.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !errors.Is(handle.Err(), boom) {
		t.Fatalf("expected batch to surface the failure, got %v", handle.Err())
	}
}

func TestRunnerWaitDrainsTasks(t *testing.T) {
	runner := NewRunner(context.Background(), nil, nil)

	var finished int64
	for i := 0; i < 4; i++ {
		runner.Run("tick", func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&finished, 1)
			return nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := runner.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := atomic.LoadInt64(&finished); got != 4 {
		t.Fatalf("expected 4 finished tasks, got %d", got)
	}
}
