package engine

import (
	"log/slog"

	"github.com/seantiz/crucible/internal/model"
)

// dispatcher invokes definition-registered hooks after a transition
// commits. Hook failures are isolated: a panicking callback is logged and
// counted, sibling callbacks still run, and the committed state is never
// altered.
type dispatcher struct {
	logger *slog.Logger
}

// dispatch fires the hooks registered for the run's state class, in
// registration order, before control returns to any waiter. States without
// a hook class (scheduled, pending) dispatch nothing.
func (d *dispatcher) dispatch(def *Definition, run *model.Run) {
	class := run.State.StateClass()
	if class == "" || def == nil {
		return
	}
	for i, hook := range def.Hooks[class] {
		d.invoke(def, run, hook, i)
	}
}

func (d *dispatcher) invoke(def *Definition, run *model.Run, hook Hook, index int) {
	defer func() {
		if r := recover(); r != nil {
			hookFailuresTotal.Inc()
			d.logger.Error("hook failed",
				"task", def.Name,
				"run_id", run.ID,
				"state", run.State,
				"hook_index", index,
				"panic", r,
			)
		}
	}()
	hook(def, run.Clone(), run.State)
}
