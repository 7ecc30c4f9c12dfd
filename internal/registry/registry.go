// Package registry tracks every run the engine has created, keyed by run
// ID, and arbitrates state transitions with compare-and-set semantics so
// racing signals (cancellation versus completion) cannot both commit.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/seantiz/crucible/internal/model"
)

// ErrNotFound is returned when a run is not registered.
var ErrNotFound = errors.New("run not found")

// ErrDuplicate is returned when a run ID is registered twice.
var ErrDuplicate = errors.New("run already registered")

// ErrInvalidTransition is returned when the state machine forbids the
// requested transition.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrStaleTransition is returned when the run's current state no longer
// matches the transition's expected source state: another transition
// committed first.
var ErrStaleTransition = errors.New("stale state transition")

// Stats holds aggregate run statistics.
type Stats struct {
	Total         int                 `json:"total"`
	CountByState  map[model.State]int `json:"count_by_state"`
	CountByTask   map[string]int      `json:"count_by_task"`
	AvgDurationMS float64             `json:"avg_duration_ms"`
}

// Registry is an in-memory run registry safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*model.Run
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{runs: make(map[string]*model.Run)}
}

// Create registers a new run. The registry stores its own copy; later
// mutations happen only through Transition.
func (r *Registry) Create(run *model.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[run.ID]; ok {
		return ErrDuplicate
	}
	r.runs[run.ID] = run.Clone()
	return nil
}

// Get returns a copy of the run with the given ID.
func (r *Registry) Get(id string) (*model.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run.Clone(), nil
}

// ListByLogicalID returns all attempts sharing a logical identity, ordered
// by attempt number.
func (r *Registry) ListByLogicalID(logicalID string) []*model.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var attempts []*model.Run
	for _, run := range r.runs {
		if run.LogicalID == logicalID {
			attempts = append(attempts, run.Clone())
		}
	}
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].Attempt < attempts[j].Attempt
	})
	return attempts
}

// List returns all runs ordered by creation time, newest first.
func (r *Registry) List() []*model.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]*model.Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run.Clone())
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs
}

// Transition atomically moves the run from the expected state to the new
// state, applying mutate (if non-nil) to the stored run under the same
// lock. It returns ErrStaleTransition when the current state differs from
// the expected one, and ErrInvalidTransition when the state machine forbids
// the edge. The returned run is a copy of the committed record.
func (r *Registry) Transition(id string, from, to model.State, mutate func(*model.Run)) (*model.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if run.State != from {
		return nil, ErrStaleTransition
	}
	if !model.ValidTransition(from, to) {
		return nil, ErrInvalidTransition
	}

	run.State = to
	if mutate != nil {
		mutate(run)
	}
	return run.Clone(), nil
}

// Stats aggregates counts and average duration over all registered runs.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total:        len(r.runs),
		CountByState: make(map[model.State]int),
		CountByTask:  make(map[string]int),
	}
	var durTotal, durCount int
	for _, run := range r.runs {
		stats.CountByState[run.State]++
		stats.CountByTask[run.TaskName]++
		if run.DurationMS != nil {
			durTotal += *run.DurationMS
			durCount++
		}
	}
	if durCount > 0 {
		stats.AvgDurationMS = float64(durTotal) / float64(durCount)
	}
	return stats
}
