// Package keys derives stable identifiers for units of work and their
// inputs. All digests are SHA-256 over domain-separated canonical JSON so
// that equal (source, name, inputs) tuples always produce equal keys across
// processes and restarts.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Domain prefixes for content-addressed identity. The version suffix enables
// future algorithm migration.
const (
	DomainInputs  = "crucible/inputs/v1"
	DomainSource  = "crucible/source/v1"
	DomainFlowRun = "crucible/flowrun/v1"
	DomainParams  = "crucible/params/v1"
	DomainExtra   = "crucible/extra/v1"
	DomainKey     = "crucible/key/v1"
)

// KeyComputationError reports that an input or definition is not
// addressable. Callers must treat it as "no caching", not a fatal run error.
type KeyComputationError struct {
	Reason string
	Err    error
}

func (e *KeyComputationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("key computation: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("key computation: %s", e.Reason)
}

func (e *KeyComputationError) Unwrap() error { return e.Err }

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + part1 + 0x00 + part2 ...). The null byte
// separator prevents boundary ambiguity between parts.
func hashWithDomain(domain string, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write([]byte{0x00})
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// InputsDigest hashes the input bindings, minus any excluded field names.
// The digest is order-independent over map iteration because canonical JSON
// sorts keys. Non-serializable values yield a *KeyComputationError.
func InputsDigest(inputs map[string]any, exclude ...string) (string, error) {
	filtered := make(map[string]any, len(inputs))
	for k, v := range inputs {
		filtered[k] = v
	}
	for _, name := range exclude {
		delete(filtered, name)
	}

	canonical, err := Canonical(filtered)
	if err != nil {
		return "", err
	}
	return hashWithDomain(DomainInputs, canonical), nil
}

// SourceDigest hashes a definition's logical name and source fingerprint.
func SourceDigest(name, source string) string {
	return hashWithDomain(DomainSource, []byte(name), []byte(source))
}

// FlowRunDigest hashes the owning flow run identity.
func FlowRunDigest(flowRunID string) string {
	return hashWithDomain(DomainFlowRun, []byte(flowRunID))
}

// ParamsDigest hashes the top-level invocation's parameters.
func ParamsDigest(params map[string]any) (string, error) {
	canonical, err := Canonical(params)
	if err != nil {
		return "", err
	}
	return hashWithDomain(DomainParams, canonical), nil
}

// ExtraDigest hashes a caller-supplied custom cache dimension.
func ExtraDigest(name, value string) string {
	return hashWithDomain(DomainExtra, []byte(name), []byte(value))
}

// Combine folds per-dimension digests into one cache key. Digests are
// sorted first, so combination is order-independent: Combine(a, b) equals
// Combine(b, a).
func Combine(digests []string) string {
	sorted := append([]string(nil), digests...)
	sort.Strings(sorted)
	return hashWithDomain(DomainKey, []byte(strings.Join(sorted, "\n")))
}
