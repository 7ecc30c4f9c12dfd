// Package cache computes cache keys from run context and input bindings.
//
// A Policy is an immutable value describing which dimensions contribute to
// the key: the input bindings, the definition's source fingerprint, the
// owning flow run identity, the top-level flow parameters, and any custom
// dimensions. Policies compose with Combine (union of dimensions) and
// Exclude (drop named input fields), so Combine(A, B) is always at least as
// selective as either A or B alone.
package cache

import (
	"sort"

	"github.com/seantiz/crucible/internal/keys"
)

// NoCache is the sentinel key meaning result persistence is disabled for
// the run.
const NoCache = ""

// Context carries the run-scoped dimensions a policy may draw from.
type Context struct {
	// TaskName is the logical name of the unit of work.
	TaskName string
	// Source is the definition's source fingerprint (code version).
	Source string
	// FlowRunID identifies the owning flow run, empty outside a flow.
	FlowRunID string
	// FlowParameters are the top-level invocation's parameters.
	FlowParameters map[string]any
}

// Policy selects which dimensions feed the cache key. The zero value
// contributes nothing and computes to NoCache.
type Policy struct {
	inputs     bool
	source     bool
	flowRun    bool
	flowParams bool
	disabled   bool
	exclude    []string
	extras     map[string]string
}

// Default keys on inputs, source fingerprint, and flow run identity:
// a task re-executes for new arguments, new code, or a new flow run.
func Default() Policy {
	return Policy{inputs: true, source: true, flowRun: true}
}

// InputsOnly keys on the input bindings alone, enabling cross-flow-run
// result sharing.
func InputsOnly() Policy {
	return Policy{inputs: true}
}

// SourceOnly keys on the source fingerprint alone: run once per code
// version, arguments ignored.
func SourceOnly() Policy {
	return Policy{source: true}
}

// FlowParameters keys on the top-level invocation's parameters rather than
// the immediate task's inputs.
func FlowParameters() Policy {
	return Policy{flowParams: true}
}

// Disabled always computes NoCache and disables result persistence.
func Disabled() Policy {
	return Policy{disabled: true}
}

// Extra returns a policy contributing one custom named dimension.
func Extra(name, value string) Policy {
	return Policy{extras: map[string]string{name: value}}
}

// IsZero reports whether p contributes no dimensions and is not explicitly
// disabled. Callers substitute their configured default for zero policies.
func (p Policy) IsZero() bool {
	return !p.inputs && !p.source && !p.flowRun && !p.flowParams &&
		!p.disabled && len(p.extras) == 0
}

// Disabled reports whether p unconditionally disables caching.
func (p Policy) Disabled() bool {
	return p.disabled
}

// Combine merges policies into one keyed on the union of their dimensions.
// The operation is associative and commutative over dimension sets. A
// Disabled member disables the combination.
func Combine(policies ...Policy) Policy {
	var out Policy
	for _, p := range policies {
		out.inputs = out.inputs || p.inputs
		out.source = out.source || p.source
		out.flowRun = out.flowRun || p.flowRun
		out.flowParams = out.flowParams || p.flowParams
		out.disabled = out.disabled || p.disabled
		out.exclude = mergeExclusions(out.exclude, p.exclude)
		for name, value := range p.extras {
			if out.extras == nil {
				out.extras = make(map[string]string)
			}
			out.extras[name] = value
		}
	}
	return out
}

// Exclude returns a copy of p that ignores the named input fields when
// hashing the inputs dimension.
func Exclude(p Policy, fields ...string) Policy {
	p.exclude = mergeExclusions(p.exclude, fields)
	return p
}

// Compute derives the cache key for (ctx, inputs), or NoCache when the
// policy has no contributing dimensions or is disabled. The only error
// returned is a *keys.KeyComputationError; callers must degrade it to
// NoCache rather than failing the run.
func (p Policy) Compute(ctx Context, inputs map[string]any) (string, error) {
	if p.disabled {
		return NoCache, nil
	}

	var digests []string
	if p.inputs {
		d, err := keys.InputsDigest(inputs, p.exclude...)
		if err != nil {
			return NoCache, err
		}
		digests = append(digests, d)
	}
	if p.source {
		digests = append(digests, keys.SourceDigest(ctx.TaskName, ctx.Source))
	}
	if p.flowRun {
		digests = append(digests, keys.FlowRunDigest(ctx.FlowRunID))
	}
	if p.flowParams {
		d, err := keys.ParamsDigest(ctx.FlowParameters)
		if err != nil {
			return NoCache, err
		}
		digests = append(digests, d)
	}
	for name, value := range p.extras {
		digests = append(digests, keys.ExtraDigest(name, value))
	}

	if len(digests) == 0 {
		return NoCache, nil
	}
	return keys.Combine(digests), nil
}

// mergeExclusions unions two exclusion lists into a fresh sorted slice, so
// exclusion order never affects key computation.
func mergeExclusions(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	set := make(map[string]bool, len(a)+len(b))
	for _, f := range a {
		set[f] = true
	}
	for _, f := range b {
		set[f] = true
	}
	merged := make([]string, 0, len(set))
	for f := range set {
		merged = append(merged, f)
	}
	sort.Strings(merged)
	return merged
}
