// Package challenge holds the in-memory set of live ACME HTTP-01
// tokens the proxy must be able to answer. It is grounded on the
// teacher's pkg/k8s.Registry (RWMutex-guarded map, copy-out List
// methods) and on original_source's acme/challenge.rs ChallengeState.
package challenge

import (
	"sort"
	"sync"
)

// Active is one live HTTP-01 challenge: a token the proxy must answer
// with KeyAuthorization, on behalf of CertName's in-flight order.
type Active struct {
	Token            string
	KeyAuthorization string
	Domain           string
	CertName         string
}

// Registry is the shared, concurrency-safe set of active challenges
// keyed by token. A single registry is shared between the certificate
// orderer (writer) and the config merger (reader, via Snapshot).
type Registry struct {
	mu      sync.RWMutex
	byToken map[string]Active
}

func NewRegistry() *Registry {
	return &Registry{byToken: make(map[string]Active)}
}

// Add inserts or replaces a challenge by token.
func (r *Registry) Add(c Active) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byToken[c.Token] = c
}

// ClearFor removes all entries belonging to certName. Idempotent.
func (r *Registry) ClearFor(certName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, c := range r.byToken {
		if c.CertName == certName {
			delete(r.byToken, token)
		}
	}
}

// Snapshot returns a consistent copy of all active challenges, safe to
// call concurrently with Add/ClearFor. Entries are sorted by token.
func (r *Registry) Snapshot() []Active {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Active, 0, len(r.byToken))
	for _, c := range r.byToken {
		out = append(out, c)
	}
	// Deterministic order, not just "some" order: two Snapshot() calls
	// against the same map contents must agree, since Go randomizes map
	// iteration order per call.
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// IsEmpty reports whether any challenges are currently active.
func (r *Registry) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byToken) == 0
}
