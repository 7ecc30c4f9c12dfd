package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/seantiz/crucible/internal/cache"
	"github.com/seantiz/crucible/internal/model"
)

// WorkFunc is the body of a unit of work. It receives the run-scoped
// context (inputs, cancellation checkpoints, value emission) and returns
// the terminal value or an error.
type WorkFunc func(rc *RunContext) (any, error)

// Hook is a callback invoked after a state transition commits. Hooks
// receive read-only views and must not mutate the run; bound parameters
// are supplied by the caller via closures at registration time.
type Hook func(def *Definition, run *model.Run, state model.State)

// Definition describes a registered unit of work and its definition-time
// defaults. Definitions are immutable after registration.
type Definition struct {
	// Name is the logical task name.
	Name string
	// Source is the source fingerprint (code version) feeding the
	// source-sensitive cache dimensions.
	Source string
	// Fn is the work body.
	Fn WorkFunc

	CachePolicy     cache.Policy
	CacheExpiration time.Duration
	Retries         int
	RetryDelay      time.Duration
	Timeout         time.Duration
	Tags            []string

	// Hooks maps state classes to callbacks run in registration order.
	Hooks map[model.Class][]Hook
}

// ErrDefinitionExists is returned when registering a duplicate task name.
var ErrDefinitionExists = errors.New("definition already registered")

// Catalog holds registered definitions so external collaborators (the API
// server, the CLI) can submit work by name.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{defs: make(map[string]*Definition)}
}

// Register adds a definition to the catalog.
func (c *Catalog) Register(def *Definition) error {
	if def.Name == "" {
		return errors.New("definition name is required")
	}
	if def.Fn == nil {
		return fmt.Errorf("definition %q has no work function", def.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.defs[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDefinitionExists, def.Name)
	}
	c.defs[def.Name] = def
	return nil
}

// Resolve returns the definition registered under name.
func (c *Catalog) Resolve(name string) (*Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[name]
	if !ok {
		return nil, fmt.Errorf("definition %q is not registered", name)
	}
	return def, nil
}

// List returns registered task names, sorted for a stable API response.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.defs))
	for name := range c.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
