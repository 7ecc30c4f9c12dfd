package engine

import (
	"context"
	"time"

	"github.com/seantiz/crucible/internal/model"
)

// RunContext is the view a work function gets of its own run: the bound
// inputs, the cancellation/timeout context, and the emission channel for
// dynamically produced values.
type RunContext struct {
	ctx    context.Context
	engine *Engine
	run    *model.Run
	inputs map[string]any
}

// Context returns the context carrying this attempt's deadline and
// cancellation signal. Long-running work should pass it to blocking calls.
func (rc *RunContext) Context() context.Context {
	return rc.ctx
}

// Inputs returns the bound input values.
func (rc *RunContext) Inputs() map[string]any {
	return rc.inputs
}

// Input returns one bound input value, or nil when absent.
func (rc *RunContext) Input(name string) any {
	return rc.inputs[name]
}

// RunID returns the identifier of the executing attempt.
func (rc *RunContext) RunID() string {
	return rc.run.ID
}

// Attempt returns the zero-based attempt counter.
func (rc *RunContext) Attempt() int {
	return rc.run.Attempt
}

// Checkpoint is the cooperative cancellation point. It returns ErrCancelled
// when cancellation was requested, the context error when the attempt's
// deadline passed, and nil otherwise. Work functions should call it inside
// loops and return the error unmodified.
func (rc *RunContext) Checkpoint() error {
	switch rc.ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return context.DeadlineExceeded
	default:
		return ErrCancelled
	}
}

// Emit records an intermediate value as a lineage-linked child run of the
// executing attempt. The child references its producer for tracking only;
// the parent does not own its lifecycle. Emit observes cancellation like a
// checkpoint and returns the child run's ID.
func (rc *RunContext) Emit(value any) (string, error) {
	if err := rc.Checkpoint(); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	child := &model.Run{
		ID:         model.NewID(),
		LogicalID:  model.NewLogicalID(),
		TaskName:   rc.run.TaskName,
		FlowRunID:  rc.run.FlowRunID,
		ParentID:   rc.run.ID,
		State:      model.StateCompleted,
		Result:     value,
		CreatedAt:  now,
		FinishedAt: &now,
	}
	if err := rc.engine.runs.Create(child); err != nil {
		return "", err
	}
	emittedTotal.Inc()
	rc.engine.broker.Publish(Event{
		RunID:     child.ID,
		LogicalID: child.LogicalID,
		TaskName:  child.TaskName,
		ParentID:  rc.run.ID,
		State:     model.StateCompleted,
		At:        now,
	})
	return child.ID, nil
}
