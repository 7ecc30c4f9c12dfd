package engine

import (
	"time"

	"github.com/seantiz/crucible/internal/cache"
)

// Options is the per-call configuration bundle accepted at submission.
// Unset fields fall back to the definition's defaults, then to the
// engine's.
type Options struct {
	// CachePolicy overrides the definition's policy. The zero policy means
	// "not set".
	CachePolicy cache.Policy

	// CacheExpiration bounds how long a persisted result satisfies
	// lookups. Zero means no expiration.
	CacheExpiration time.Duration

	// Retries is the additional-attempt budget. Nil means "use the
	// definition's"; a pointer to zero disables retries for this call.
	Retries *int

	// RetryDelay is the pause between attempts.
	RetryDelay *time.Duration

	// Timeout is the per-attempt wall-clock budget. Zero disables it.
	Timeout *time.Duration

	// Tags are unioned with the definition's tags.
	Tags []string

	// RefreshCache selects cache behavior: true always bypasses the read
	// and overwrites on success, false reads and writes only if absent,
	// nil follows the engine-wide default.
	RefreshCache *bool

	// WaitFor are upstream futures that must reach a terminal,
	// non-failed state before this run leaves Scheduled.
	WaitFor []*Future

	// RaiseOnFailure makes Future.Result return a *RunError for
	// failed-class terminal states instead of the run itself.
	RaiseOnFailure bool

	// Executor names the execution strategy for Submit. Empty uses the
	// engine default.
	Executor string

	// FlowRunID identifies the owning flow run, if any.
	FlowRunID string

	// FlowParameters are the top-level invocation's parameters, consulted
	// by the FlowParameters cache policy.
	FlowParameters map[string]any

	// ParentRunID records lineage for dynamically produced work.
	ParentRunID string
}

// resolved is the fully-merged view of definition defaults and call-time
// overrides the engine executes against.
type resolved struct {
	policy     cache.Policy
	expiration time.Duration
	retries    int
	retryDelay time.Duration
	timeout    time.Duration
	tags       []string
	refresh    *bool
}

func (e *Engine) resolveOptions(def *Definition, opts Options) resolved {
	r := resolved{
		policy:     def.CachePolicy,
		expiration: def.CacheExpiration,
		retries:    def.Retries,
		retryDelay: def.RetryDelay,
		timeout:    def.Timeout,
		tags:       unionTags(def.Tags, opts.Tags),
		refresh:    opts.RefreshCache,
	}
	if !opts.CachePolicy.IsZero() {
		r.policy = opts.CachePolicy
	}
	if r.policy.IsZero() {
		r.policy = cache.Default()
	}
	if opts.CacheExpiration > 0 {
		r.expiration = opts.CacheExpiration
	}
	if opts.Retries != nil {
		r.retries = *opts.Retries
	}
	if opts.RetryDelay != nil {
		r.retryDelay = *opts.RetryDelay
	}
	if opts.Timeout != nil {
		r.timeout = *opts.Timeout
	}
	if r.timeout == 0 {
		r.timeout = e.cfg.DefaultTimeout
	}
	return r
}

// unionTags merges definition and call-time tags preserving first-seen
// order and dropping duplicates.
func unionTags(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, t := range append(append([]string(nil), a...), b...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
