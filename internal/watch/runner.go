// Package watch keeps a site published: it republishes when sources change
// on disk and, optionally, on a fixed interval.
package watch

import (
	"context"
	"fmt"
	"sync"

	perrors "git.home.luguber.info/inful/presto/internal/errors"
	"git.home.luguber.info/inful/presto/internal/logfields"
	"git.home.luguber.info/inful/presto/internal/observability"
)

// Trigger names recorded on each run's log context.
const (
	TriggerStartup  = "startup"
	TriggerChange   = "change"
	TriggerInterval = "interval"
)

// RunFunc performs one publish run.
type RunFunc func(ctx context.Context) error

// Runner serializes publish runs. Watch events and scheduled ticks share one
// Runner so two runs never touch the destination tree at the same time.
type Runner struct {
	mu  sync.Mutex
	fn  RunFunc
	err error
}

// NewRunner wraps fn.
func NewRunner(fn RunFunc) *Runner {
	return &Runner{fn: fn}
}

// Run waits for any run in progress and then performs one run tagged with trigger.
func (r *Runner) Run(ctx context.Context, trigger string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = observability.WithTrigger(ctx, trigger)
	observability.DebugContext(ctx, "Starting publish run")
	r.err = r.call(ctx)
	switch {
	case r.err == nil:
	case perrors.IsFatal(r.err):
		observability.ErrorContext(ctx, "Publish run failed", logfields.Error(r.err))
	default:
		observability.WarnContext(ctx, "Publish run finished with errors", logfields.Error(r.err))
	}
	return r.err
}

// call runs fn, turning a panic into an internal error so a long-lived
// watcher survives one bad run.
func (r *Runner) call(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = perrors.InternalError("publish run panicked", fmt.Errorf("%v", rec))
		}
	}()
	return r.fn(ctx)
}

// LastError returns the error of the most recent run.
func (r *Runner) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
