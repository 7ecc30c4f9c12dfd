package engine

import (
	"errors"
	"fmt"

	"github.com/seantiz/crucible/internal/model"
)

// ErrCancelled is the cooperative cancellation signal. Work functions
// receive it from RunContext.Checkpoint and should return it (or an error
// wrapping it) to stop at the checkpoint.
var ErrCancelled = errors.New("cancellation requested")

// CrashError reports that the executing context itself terminated
// abnormally (a panic escaped the work function) rather than the work
// returning an error. Crashed runs are never retried.
type CrashError struct {
	Value any
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("execution context crashed: %v", e.Value)
}

// RunError is the raised representation of a terminal non-completed run,
// returned by Future.Result when the caller opted into raising.
type RunError struct {
	Run *model.Run
}

func (e *RunError) Error() string {
	if e.Run.Error != "" {
		return fmt.Sprintf("run %s finished %s: %s", e.Run.ID, e.Run.State, e.Run.Error)
	}
	return fmt.Sprintf("run %s finished %s", e.Run.ID, e.Run.State)
}
