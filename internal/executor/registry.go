package executor

import (
	"fmt"
	"sort"
	"sync"
)

// Info pairs an executor name with its capabilities.
type Info struct {
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry holds registered executors and resolves which one to use for a
// submission.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// Register adds an executor to the registry under the given name.
func (r *Registry) Register(name string, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[name] = e
}

// Resolve returns the executor registered under name.
func (r *Registry) Resolve(name string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[name]
	if !ok {
		return nil, fmt.Errorf("executor %q is not registered", name)
	}
	return e, nil
}

// List returns information about all registered executors, sorted by name
// for a stable API response.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.executors))
	for name, e := range r.executors {
		infos = append(infos, Info{
			Name:         name,
			Capabilities: e.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
