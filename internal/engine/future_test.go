package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seantiz/crucible/internal/executor"
	"github.com/seantiz/crucible/internal/model"
)

func TestSubmitPoolRunsConcurrently(t *testing.T) {
	e := newTestEngine(t)

	var effects atomic.Int64
	release := make(chan struct{})
	def := &Definition{
		Name:   "parallel",
		Source: "sha256:abc123",
		Fn: func(rc *RunContext) (any, error) {
			effects.Add(1)
			<-release
			return rc.Input("i"), nil
		},
	}

	const n = 5
	futures := make([]*Future, n)
	for i := 0; i < n; i++ {
		f, err := e.Submit(context.Background(), def, map[string]any{"i": i}, Options{
			Executor: executor.NamePool,
		})
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		futures[i] = f
	}

	// All bodies must be in flight at once before any is released.
	deadline := time.Now().Add(2 * time.Second)
	for effects.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d bodies started concurrently", effects.Load(), n)
		}
		time.Sleep(time.Millisecond)
	}
	close(release)

	for i, f := range futures {
		run, err := f.Wait(context.Background())
		if err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
		if run.State != model.StateCompleted {
			t.Errorf("future %d state = %s, want %s", i, run.State, model.StateCompleted)
		}
	}
	if got := effects.Load(); got != n {
		t.Fatalf("side effects = %d, want %d", got, n)
	}
	e.Wait()
}

func TestSubmitSerialResolvesBeforeReturn(t *testing.T) {
	e := newTestEngine(t)

	def := &Definition{
		Name:   "inline",
		Source: "sha256:abc123",
		Fn: func(rc *RunContext) (any, error) {
			return "ok", nil
		},
	}

	f, err := e.Submit(context.Background(), def, nil, Options{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !f.Resolved() {
		t.Fatal("serial submission is not resolved on return")
	}
	if got := f.State(); got != model.StateCompleted {
		t.Fatalf("State() = %s, want %s", got, model.StateCompleted)
	}
}

func TestSubmitUnknownExecutor(t *testing.T) {
	e := newTestEngine(t)

	def := &Definition{
		Name:   "nowhere",
		Source: "sha256:abc123",
		Fn: func(rc *RunContext) (any, error) {
			return nil, nil
		},
	}

	if _, err := e.Submit(context.Background(), def, nil, Options{Executor: "quantum"}); err == nil {
		t.Fatal("Submit with an unregistered executor succeeded")
	}
}

func TestSubmitByName(t *testing.T) {
	e := newTestEngine(t)

	def := &Definition{
		Name:   "registered",
		Source: "sha256:abc123",
		Fn: func(rc *RunContext) (any, error) {
			return "found", nil
		},
	}
	if err := e.Catalog().Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	f, err := e.SubmitByName(context.Background(), "registered", nil, Options{})
	if err != nil {
		t.Fatalf("SubmitByName: %v", err)
	}
	value, err := f.Result(context.Background())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if value != "found" {
		t.Fatalf("result = %v, want %q", value, "found")
	}

	if _, err := e.SubmitByName(context.Background(), "missing", nil, Options{}); err == nil {
		t.Fatal("SubmitByName for an unregistered definition succeeded")
	}
}

func TestFutureResultRaisesOnFailure(t *testing.T) {
	e := newTestEngine(t)

	def := &Definition{
		Name:   "raiser",
		Source: "sha256:abc123",
		Fn: func(rc *RunContext) (any, error) {
			return nil, errors.New("deliberate fault")
		},
	}

	f, err := e.Submit(context.Background(), def, nil, Options{RaiseOnFailure: true})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = f.Result(context.Background())
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("Result error = %v, want *RunError", err)
	}
	if runErr.Run.State != model.StateFailed {
		t.Fatalf("raised run state = %s, want %s", runErr.Run.State, model.StateFailed)
	}
}

func TestFutureResultReturnsRunWithoutRaise(t *testing.T) {
	e := newTestEngine(t)

	def := &Definition{
		Name:   "quiet-failure",
		Source: "sha256:abc123",
		Fn: func(rc *RunContext) (any, error) {
			return nil, errors.New("deliberate fault")
		},
	}

	f, err := e.Submit(context.Background(), def, nil, Options{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	value, err := f.Result(context.Background())
	if err != nil {
		t.Fatalf("Result without raise returned error: %v", err)
	}
	run, ok := value.(*model.Run)
	if !ok {
		t.Fatalf("result = %T, want *model.Run for manual inspection", value)
	}
	if run.State != model.StateFailed {
		t.Fatalf("inspected run state = %s, want %s", run.State, model.StateFailed)
	}
}

func TestFutureCancelIsIdempotent(t *testing.T) {
	e := newTestEngine(t)

	started := make(chan struct{})
	def := &Definition{
		Name:   "long-haul",
		Source: "sha256:abc123",
		Fn: func(rc *RunContext) (any, error) {
			close(started)
			for {
				if err := rc.Checkpoint(); err != nil {
					return nil, err
				}
				time.Sleep(time.Millisecond)
			}
		},
	}

	f, err := e.Submit(context.Background(), def, nil, Options{Executor: executor.NamePool})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	f.Cancel()
	run, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if run.State != model.StateCancelled {
		t.Fatalf("state = %s, want %s", run.State, model.StateCancelled)
	}

	// Cancel after resolution is a no-op.
	f.Cancel()
	f.Cancel()
	if got := f.State(); got != model.StateCancelled {
		t.Fatalf("state after repeated Cancel = %s, want %s", got, model.StateCancelled)
	}
}

func TestFutureWaitHonorsCallerContext(t *testing.T) {
	e := newTestEngine(t)

	release := make(chan struct{})
	defer close(release)
	def := &Definition{
		Name:   "stuck",
		Source: "sha256:abc123",
		Fn: func(rc *RunContext) (any, error) {
			<-release
			return nil, nil
		},
	}

	f, err := e.Submit(context.Background(), def, nil, Options{Executor: executor.NamePool})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait error = %v, want deadline exceeded", err)
	}
	if f.State() != model.StatePending {
		t.Fatalf("unresolved future state = %s, want %s", f.State(), model.StatePending)
	}
}

func TestFutureFanInWaitFor(t *testing.T) {
	e := newTestEngine(t)

	def := &Definition{
		Name:   "stage-one",
		Source: "sha256:abc123",
		Fn: func(rc *RunContext) (any, error) {
			return rc.Input("i"), nil
		},
	}

	var ups []*Future
	for i := 0; i < 3; i++ {
		f, err := e.Submit(context.Background(), def, map[string]any{"i": i}, Options{
			Executor: executor.NamePool,
		})
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		ups = append(ups, f)
	}

	sink := &Definition{
		Name:   "stage-two",
		Source: "sha256:abc123",
		Fn: func(rc *RunContext) (any, error) {
			return "joined", nil
		},
	}

	final := mustRun(t, e, sink, nil, Options{WaitFor: ups})
	if final.State != model.StateCompleted {
		t.Fatalf("fan-in state = %s, want %s", final.State, model.StateCompleted)
	}
	for i, up := range ups {
		if !up.Resolved() {
			t.Errorf("upstream %d not resolved after downstream completed", i)
		}
	}
}
