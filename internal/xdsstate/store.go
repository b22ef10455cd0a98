// Package xdsstate holds the central, version-stamped xDS resource
// collections (C2): listeners, clusters, and secrets, plus the
// broadcast mechanism discovery-server streams use to learn when to
// re-push. Grounded on original_source's src/xds/state.rs XdsState,
// re-expressed with a sync.RWMutex and per-subscriber buffered
// channels in place of tokio's RwLock/broadcast, following the
// per-client-channel fan-out idiom in the teacher's gRPC server.
package xdsstate

import (
	"sync"

	clusterv3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	listenerv3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	tlsv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/transport_sockets/tls/v3"
	"go.uber.org/zap"
)

// subscriberBuffer is the per-subscriber channel depth. A slow
// subscriber that falls behind coalesces: notifyAll replaces a pending,
// unread value rather than blocking, so a laggard only ever sees the
// latest version, never an unbounded backlog.
const subscriberBuffer = 1

// Store is the single source of truth for the listener, cluster, and
// secret collections the discovery server publishes. All mutators bump
// a shared monotonic version and notify subscribers after releasing
// the write lock, matching the lock-then-version-then-notify ordering
// original_source relies on.
type Store struct {
	log *zap.Logger

	mu        sync.RWMutex
	version   uint64
	listeners []*listenerv3.Listener
	clusters  []*clusterv3.Cluster
	secrets   map[string]*tlsv3.Secret

	subMu sync.Mutex
	subs  map[int]chan uint64
	nextSub int
}

// New constructs an empty Store at version 0.
func New(log *zap.Logger) *Store {
	return &Store{
		log:     log,
		secrets: make(map[string]*tlsv3.Secret),
		subs:    make(map[int]chan uint64),
	}
}

// Version returns the current resource version as a decimal string,
// suitable for the version_info field of a DiscoveryResponse.
func (s *Store) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return formatVersion(s.version)
}

// Subscribe registers a new listener for version-change notifications.
// The returned channel receives the new version on every bump, and
// receives 0 on a RequestRebuild notification. Callers must call the
// returned cancel function when done to avoid leaking the channel.
func (s *Store) Subscribe() (<-chan uint64, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan uint64, subscriberBuffer)
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
	}
}

// RequestRebuild notifies every subscriber without bumping the
// version, used when the set of active ACME challenges changes and a
// merge recompute is needed even though no xDS resource has yet
// changed (see lifecycle's rebuild driver).
func (s *Store) RequestRebuild() {
	s.notifyAll(0)
}

func (s *Store) notifyAll(version uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- version:
		default:
			// Laggard subscriber: drain the stale pending value and
			// replace it so it only ever observes the latest version.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- version:
			default:
			}
		}
	}
}

func (s *Store) bumpVersion() uint64 {
	s.mu.Lock()
	s.version++
	v := s.version
	s.mu.Unlock()

	if s.log != nil {
		s.log.Debug("xds state version bumped", zap.Uint64("version", v))
	}
	s.notifyAll(v)
	return v
}

// PutListeners replaces the listener collection and bumps the version.
func (s *Store) PutListeners(listeners []*listenerv3.Listener) {
	s.mu.Lock()
	s.listeners = listeners
	s.mu.Unlock()
	s.bumpVersion()
}

// PutClusters replaces the cluster collection and bumps the version.
func (s *Store) PutClusters(clusters []*clusterv3.Cluster) {
	s.mu.Lock()
	s.clusters = clusters
	s.mu.Unlock()
	s.bumpVersion()
}

// PutSecret upserts a single named secret and bumps the version.
func (s *Store) PutSecret(name string, secret *tlsv3.Secret) {
	s.mu.Lock()
	if s.secrets == nil {
		s.secrets = make(map[string]*tlsv3.Secret)
	}
	s.secrets[name] = secret
	s.mu.Unlock()
	s.bumpVersion()
}

// Listeners returns a snapshot of the current listener collection.
func (s *Store) Listeners() []*listenerv3.Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*listenerv3.Listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

// Clusters returns a snapshot of the current cluster collection.
func (s *Store) Clusters() []*clusterv3.Cluster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*clusterv3.Cluster, len(s.clusters))
	copy(out, s.clusters)
	return out
}

// Secrets returns a snapshot of all current secrets, in no particular
// order — the SDS service narrows this list to the resource names a
// subscriber requests, matching Envoy's own usage.
func (s *Store) Secrets() []*tlsv3.Secret {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*tlsv3.Secret, 0, len(s.secrets))
	for _, sec := range s.secrets {
		out = append(out, sec)
	}
	return out
}

// Secret returns a single named secret, or (nil, false) if absent.
func (s *Store) Secret(name string) (*tlsv3.Secret, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.secrets[name]
	return sec, ok
}
