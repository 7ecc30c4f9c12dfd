// Package engine orchestrates task run execution. It resolves cache keys
// via the policy engine, consults the result store, drives the run state
// machine through timeouts, retries, and cooperative cancellation, and
// reports every committed transition to hooks, metrics, and the event
// broker.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/crucible/internal/cache"
	"github.com/seantiz/crucible/internal/executor"
	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/registry"
	"github.com/seantiz/crucible/internal/result"
)

// Config holds engine-wide behavior set at construction. Per-call options
// override it; there is no ambient mutable global.
type Config struct {
	// RefreshCacheDefault applies when a submission leaves RefreshCache
	// unset.
	RefreshCacheDefault bool
	// DefaultTimeout applies to attempts with no definition or call-time
	// timeout. Zero disables the default.
	DefaultTimeout time.Duration
	// DefaultExecutor names the executor used when a submission names
	// none. Empty means the serial executor.
	DefaultExecutor string
}

// Engine executes units of work against the result store and run registry.
type Engine struct {
	store   result.Store
	runs    *registry.Registry
	execs   *executor.Registry
	catalog *Catalog
	broker  *Broker
	hooks   dispatcher
	logger  *slog.Logger
	cfg     Config
	wg      sync.WaitGroup
}

// NewEngine creates a new execution engine.
func NewEngine(store result.Store, runs *registry.Registry, execs *executor.Registry, logger *slog.Logger, cfg Config) *Engine {
	return &Engine{
		store:   store,
		runs:    runs,
		execs:   execs,
		catalog: NewCatalog(),
		broker:  NewBroker(),
		hooks:   dispatcher{logger: logger},
		logger:  logger,
		cfg:     cfg,
	}
}

// Catalog returns the engine's definition catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *Broker { return e.broker }

// Runs returns the engine's run registry for queries.
func (e *Engine) Runs() *registry.Registry { return e.runs }

// ResultStore returns the engine's result store for key queries.
func (e *Engine) ResultStore() result.Store { return e.store }

// Wait blocks until all in-flight submissions complete.
func (e *Engine) Wait() { e.wg.Wait() }

// NewFlowRunID mints an identity for a flow run. Tasks submitted with the
// same flow run ID share the flow-run cache dimension.
func (e *Engine) NewFlowRunID() string { return model.NewLogicalID() }

// Run executes def with the given inputs and blocks until a terminal run
// exists. The returned run reflects the final attempt; work failures are
// reported through its state, not the error value, which is reserved for
// engine-internal faults.
func (e *Engine) Run(ctx context.Context, def *Definition, inputs map[string]any, opts Options) (*model.Run, error) {
	res := e.resolveOptions(def, opts)
	logicalID := model.NewLogicalID()

	// Dependency barrier: all upstream runs must be terminal and
	// non-failed before this run leaves Scheduled.
	for _, up := range opts.WaitFor {
		upRun, err := up.Wait(ctx)
		if err != nil {
			return e.finishUnstarted(def, logicalID, opts, res, model.StateCancelled,
				fmt.Sprintf("cancelled while waiting for upstream: %v", err))
		}
		if upRun.State.FailedLike() || upRun.State == model.StateCancelled {
			return e.finishUnstarted(def, logicalID, opts, res, model.StateFailed,
				fmt.Sprintf("upstream run %s finished %s", upRun.ID, upRun.State))
		}
	}

	key, err := res.policy.Compute(cache.Context{
		TaskName:       def.Name,
		Source:         def.Source,
		FlowRunID:      opts.FlowRunID,
		FlowParameters: opts.FlowParameters,
	}, inputs)
	if err != nil {
		// Caching failures never block execution.
		keyFailuresTotal.Inc()
		e.logger.Warn("cache key computation failed, caching disabled for run",
			"task", def.Name, "error", err)
		key = cache.NoCache
	}

	refresh := e.cfg.RefreshCacheDefault
	if res.refresh != nil {
		refresh = *res.refresh
	}

	for attempt := 0; ; attempt++ {
		run := e.newRun(def, logicalID, opts, res, attempt, key)
		if err := e.runs.Create(run); err != nil {
			return nil, fmt.Errorf("register run: %w", err)
		}
		activeRuns.Inc()

		e.transition(def, run.ID, model.StateScheduled, model.StatePending, nil)

		if key != cache.NoCache && !refresh {
			if final, ok := e.tryCacheHit(ctx, def, run.ID, key); ok {
				activeRuns.Dec()
				return final, nil
			}
		}

		start := time.Now().UTC()
		e.transition(def, run.ID, model.StatePending, model.StateRunning, func(m *model.Run) {
			m.StartedAt = &start
		})

		value, runErr := e.invoke(ctx, def, run, inputs, res.timeout)
		if runErr == nil {
			runErr = failedStates(value)
		}
		elapsed := time.Since(start)
		runDuration.Observe(elapsed.Seconds())

		final := e.settle(ctx, def, run.ID, key, value, runErr, res, refresh)
		activeRuns.Dec()

		if retryable(runErr) && attempt < res.retries {
			retriesTotal.Inc()
			e.logger.Info("retrying run",
				"task", def.Name, "logical_id", logicalID,
				"attempt", attempt+1, "retries", res.retries, "error", runErr)
			if res.retryDelay > 0 {
				select {
				case <-time.After(res.retryDelay):
				case <-ctx.Done():
					return final, nil
				}
			}
			continue
		}
		return final, nil
	}
}

// newRun builds the Scheduled record for one attempt.
func (e *Engine) newRun(def *Definition, logicalID string, opts Options, res resolved, attempt int, key string) *model.Run {
	return &model.Run{
		ID:        model.NewID(),
		LogicalID: logicalID,
		TaskName:  def.Name,
		FlowRunID: opts.FlowRunID,
		ParentID:  opts.ParentRunID,
		State:     model.StateScheduled,
		Attempt:   attempt,
		Tags:      res.tags,
		CacheKey:  key,
		CreatedAt: time.Now().UTC(),
	}
}

// tryCacheHit consults the result store and, on a usable record,
// synthesizes the Cached terminal state. Completed-class hooks fire, since
// a cache hit is a completed variant.
func (e *Engine) tryCacheHit(ctx context.Context, def *Definition, runID, key string) (*model.Run, bool) {
	rec, err := e.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, result.ErrNotFound) && !errors.Is(err, result.ErrExpired) {
			e.logger.Warn("cache lookup failed", "task", def.Name, "key", key, "error", err)
		}
		cacheMissesTotal.Inc()
		return nil, false
	}

	var value any
	if err := json.Unmarshal(rec.Value, &value); err != nil {
		e.logger.Warn("cached record undecodable, treating as miss",
			"task", def.Name, "key", key, "error", err)
		cacheMissesTotal.Inc()
		return nil, false
	}

	cacheHitsTotal.Inc()
	now := time.Now().UTC()
	final := e.transition(def, runID, model.StatePending, model.StateCached, func(m *model.Run) {
		m.Result = value
		m.FinishedAt = &now
	})
	return final, true
}

// invoke runs one attempt of the work body under the attempt's timeout.
// A panic escaping the body is converted to a *CrashError; a deadline that
// elapsed during execution overrides a value returned afterwards. A value
// returned after a plain cancel request stands: the body reached no
// checkpoint, so the run completed.
func (e *Engine) invoke(parent context.Context, def *Definition, run *model.Run, inputs map[string]any, timeout time.Duration) (value any, err error) {
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			value, err = nil, &CrashError{Value: r}
		}
	}()

	rc := &RunContext{ctx: ctx, engine: e, run: run, inputs: inputs}
	value, err = def.Fn(rc)
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = context.DeadlineExceeded
	}
	return value, err
}

// settle commits the attempt's terminal state and, on success, persists the
// result. Write rules follow the refresh tri-state: refresh overwrites,
// otherwise the store's idempotent put writes only if absent.
func (e *Engine) settle(ctx context.Context, def *Definition, runID, key string, value any, runErr error, res resolved, refresh bool) *model.Run {
	now := time.Now().UTC()
	finish := func(m *model.Run) {
		m.FinishedAt = &now
		if m.StartedAt != nil {
			d := int(now.Sub(*m.StartedAt).Milliseconds())
			m.DurationMS = &d
		}
	}

	switch classify(runErr) {
	case outcomeSuccess:
		if key != cache.NoCache {
			e.persist(ctx, def, key, value, res, refresh)
		}
		return e.transition(def, runID, model.StateRunning, model.StateCompleted, func(m *model.Run) {
			m.Result = value
			finish(m)
		})

	case outcomeCancelled:
		e.transition(def, runID, model.StateRunning, model.StateCancelling, nil)
		return e.transition(def, runID, model.StateCancelling, model.StateCancelled, func(m *model.Run) {
			m.Error = "cancellation requested"
			finish(m)
		})

	case outcomeCrashed:
		return e.transition(def, runID, model.StateRunning, model.StateCrashed, func(m *model.Run) {
			m.Error = runErr.Error()
			finish(m)
		})

	case outcomeTimedOut:
		return e.transition(def, runID, model.StateRunning, model.StateTimedOut, func(m *model.Run) {
			m.Error = fmt.Sprintf("run exceeded timeout of %s", res.timeout)
			finish(m)
		})

	default:
		return e.transition(def, runID, model.StateRunning, model.StateFailed, func(m *model.Run) {
			m.Error = runErr.Error()
			finish(m)
		})
	}
}

// persist writes the result value under key. Serialization failures only
// disable caching for this run; the completed state stands.
func (e *Engine) persist(ctx context.Context, def *Definition, key string, value any, res resolved, refresh bool) {
	data, err := json.Marshal(value)
	if err != nil {
		e.logger.Warn("result not serializable, skipping cache write",
			"task", def.Name, "key", key, "error", err)
		return
	}

	var expiresAt *time.Time
	if res.expiration > 0 {
		t := time.Now().UTC().Add(res.expiration)
		expiresAt = &t
	}
	if err := e.store.Put(ctx, key, data, expiresAt, refresh); err != nil {
		e.logger.Warn("cache write failed", "task", def.Name, "key", key, "error", err)
	}
}

// finishUnstarted records a run that never reached Running: upstream
// failure or cancellation during the dependency barrier.
func (e *Engine) finishUnstarted(def *Definition, logicalID string, opts Options, res resolved, state model.State, msg string) (*model.Run, error) {
	run := e.newRun(def, logicalID, opts, res, 0, cache.NoCache)
	if err := e.runs.Create(run); err != nil {
		return nil, fmt.Errorf("register run: %w", err)
	}
	now := time.Now().UTC()
	final := e.transition(def, run.ID, model.StateScheduled, state, func(m *model.Run) {
		m.Error = msg
		m.FinishedAt = &now
	})
	return final, nil
}

// transition commits a state change through the registry's compare-and-set
// and reports it to the broker, metrics, and hooks. A rejected transition
// (another signal committed first) is logged and the currently committed
// run is returned unchanged.
func (e *Engine) transition(def *Definition, runID string, from, to model.State, mutate func(*model.Run)) *model.Run {
	run, err := e.runs.Transition(runID, from, to, mutate)
	if err != nil {
		e.logger.Warn("state transition rejected",
			"run_id", runID, "from", from, "to", to, "error", err)
		current, gerr := e.runs.Get(runID)
		if gerr != nil {
			return nil
		}
		return current
	}

	if to.Terminal() {
		runsTotal.WithLabelValues(string(to)).Inc()
	}
	e.broker.Publish(Event{
		RunID:     run.ID,
		LogicalID: run.LogicalID,
		TaskName:  run.TaskName,
		ParentID:  run.ParentID,
		State:     to,
		Attempt:   run.Attempt,
		At:        time.Now().UTC(),
	})
	if to.Terminal() {
		e.broker.CloseRun(run.ID)
	}

	// Hooks observe the committed state before control returns to waiters.
	e.hooks.dispatch(def, run)
	return run
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailed
	outcomeTimedOut
	outcomeCancelled
	outcomeCrashed
)

// classify maps a work error to its lifecycle outcome.
func classify(err error) outcome {
	var crash *CrashError
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.As(err, &crash):
		return outcomeCrashed
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeTimedOut
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		return outcomeCancelled
	default:
		return outcomeFailed
	}
}

// retryable reports whether the error consumes retry budget. Only
// execution failures and timeouts retry; cancellation and crashes are
// terminal immediately.
func retryable(err error) bool {
	switch classify(err) {
	case outcomeFailed, outcomeTimedOut:
		return true
	}
	return false
}

// failedStates inspects a returned collection of explicit states: all must
// be non-failed for the parent to complete.
func failedStates(value any) error {
	states, ok := value.([]model.State)
	if !ok {
		return nil
	}
	for _, s := range states {
		if s.FailedLike() {
			return fmt.Errorf("returned state %s is a failure", s)
		}
	}
	return nil
}
