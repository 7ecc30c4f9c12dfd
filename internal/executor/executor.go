// Package executor defines the pluggable execution strategies the engine
// dispatches submitted work to, along with the registry that resolves a
// strategy by name.
package executor

// Executor launches units of submitted work. Implementations decide where
// the function runs: inline in the submitting goroutine, on a bounded
// worker pool, or on remote infrastructure.
type Executor interface {
	// Launch runs fn according to the executor's strategy. Serial executors
	// run fn before returning; concurrent executors return immediately.
	Launch(fn func())

	// Capabilities reports the executor's concurrency characteristics.
	Capabilities() Capabilities
}

// Capabilities describes an executor.
type Capabilities struct {
	Name           string `json:"name"`
	Concurrent     bool   `json:"concurrent"`
	MaxConcurrency int    `json:"max_concurrency"`
}
