// Package tasks runs fire-and-forget work as explicit handles. Every task's
// completion or failure is observed: the runner logs the outcome and publishes
// it to the event hub, so a failed background submission is never silent.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"reelsmith/internal/events"
	"reelsmith/internal/logging"
)

// Handle tracks one background task to completion.
type Handle struct {
	Name string

	done chan struct{}
	err  error
}

// Err returns the task's outcome. Valid only after Wait returns nil.
func (h *Handle) Err() error {
	return h.err
}

// Wait blocks until the task finishes or the context ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Runner launches and observes background tasks. Tasks run against the
// runner's base context, not the caller's, so an HTTP request ending does not
// abort work it kicked off.
type Runner struct {
	base   context.Context
	hub    *events.Hub
	logger *slog.Logger

	wg sync.WaitGroup
}

// NewRunner constructs a task runner. base bounds the lifetime of every task;
// the daemon passes its shutdown context.
func NewRunner(base context.Context, hub *events.Hub, logger *slog.Logger) *Runner {
	if base == nil {
		base = context.Background()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		base:   base,
		hub:    hub,
		logger: logging.NewComponentLogger(logger, "tasks"),
	}
}

// Run launches fn in the background and returns its handle. The outcome is
// logged and published whether or not anyone waits on the handle.
func (r *Runner) Run(name string, fn func(ctx context.Context) error) *Handle {
	handle := &Handle{Name: name, done: make(chan struct{})}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(handle.done)

		started := time.Now()
		err := runGuarded(r.base, fn)
		handle.err = err
		r.observe(name, started, err)
	}()

	return handle
}

// RunBatch launches fns as one named task, running at most limit at a time.
// The batch fails with the first error but sibling fns already started run to
// completion.
func (r *Runner) RunBatch(name string, limit int, fns ...func(ctx context.Context) error) *Handle {
	return r.Run(name, func(ctx context.Context) error {
		group, groupCtx := errgroup.WithContext(ctx)
		if limit > 0 {
			group.SetLimit(limit)
		}
		for _, fn := range fns {
			fn := fn
			group.Go(func() error {
				return runGuarded(groupCtx, fn)
			})
		}
		return group.Wait()
	})
}

// Wait blocks until every launched task finishes or the context ends.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) observe(name string, started time.Time, err error) {
	elapsed := time.Since(started).Round(time.Millisecond)
	status := "ok"
	if err != nil {
		status = "failed"
		r.logger.Error("background task failed",
			"task", name, "elapsed", elapsed.String(), logging.Error(err))
	} else {
		r.logger.Debug("background task finished",
			"task", name, "elapsed", elapsed.String())
	}

	r.hub.Publish(events.Event{
		Type:   events.TypeTaskFinished,
		Status: status,
		Fields: map[string]string{"task": name, "elapsed": elapsed.String()},
	})
}

func runGuarded(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("task panic: %v", recovered)
		}
	}()
	return fn(ctx)
}
