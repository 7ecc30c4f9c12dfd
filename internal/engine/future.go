package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/seantiz/crucible/internal/executor"
	"github.com/seantiz/crucible/internal/model"
)

// Future is an awaitable handle to a submitted run. It holds a reference
// to the underlying run's state, not ownership: the run's persisted state
// and result outlive the future.
type Future struct {
	done   chan struct{}
	cancel context.CancelFunc
	raise  bool

	mu  sync.Mutex
	run *model.Run
	err error
}

// Submit enqueues def for execution on the named (or default) executor and
// returns an awaitable handle. With the serial executor the work runs in
// the submitting goroutine before Submit returns; concurrent executors
// return immediately. Relative resolution order of concurrently submitted
// futures is unspecified.
func (e *Engine) Submit(ctx context.Context, def *Definition, inputs map[string]any, opts Options) (*Future, error) {
	name := opts.Executor
	if name == "" {
		name = e.cfg.DefaultExecutor
	}
	if name == "" {
		name = executor.NameSerial
	}
	exec, err := e.execs.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("resolve executor: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	f := &Future{
		done:   make(chan struct{}),
		cancel: cancel,
		raise:  opts.RaiseOnFailure,
	}

	e.wg.Add(1)
	exec.Launch(func() {
		defer e.wg.Done()
		run, runErr := e.Run(runCtx, def, inputs, opts)
		f.mu.Lock()
		f.run, f.err = run, runErr
		f.mu.Unlock()
		close(f.done)
		cancel()
	})
	return f, nil
}

// SubmitByName resolves a catalog definition and submits it.
func (e *Engine) SubmitByName(ctx context.Context, name string, inputs map[string]any, opts Options) (*Future, error) {
	def, err := e.catalog.Resolve(name)
	if err != nil {
		return nil, err
	}
	return e.Submit(ctx, def, inputs, opts)
}

// Wait blocks until the underlying run is terminal or ctx is done, and
// returns the terminal run regardless of its state.
func (f *Future) Wait(ctx context.Context) (*model.Run, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

// Result blocks until the run is terminal, then returns its value for
// completed-class states. For other terminal states it returns a *RunError
// when the submission opted into raising, and the terminal run itself
// otherwise, for manual inspection.
func (f *Future) Result(ctx context.Context) (any, error) {
	run, err := f.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if run.State.CompletedLike() {
		return run.Result, nil
	}
	if f.raise {
		return nil, &RunError{Run: run}
	}
	return run, nil
}

// Resolved reports whether the underlying run has reached a terminal
// state, without blocking.
func (f *Future) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// State returns the terminal state once resolved and StatePending before
// that, without blocking.
func (f *Future) State() model.State {
	if !f.Resolved() {
		return model.StatePending
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.run == nil {
		return model.StatePending
	}
	return f.run.State
}

// Cancel requests cooperative cancellation of the underlying run. The
// signal is observed at the work's next checkpoint; already-terminal runs
// ignore it, so Cancel is an idempotent no-op after resolution.
func (f *Future) Cancel() {
	f.cancel()
}
