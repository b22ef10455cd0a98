// Package lifecycle wires every component together (C8) and drives the
// process's startup, steady-state, and shutdown sequence. Grounded on
// original_source's src/main.rs run function: build storage, xDS
// state, and challenge registry; load or create the ACME account;
// seed xDS state with the unmerged workload listeners/clusters; run
// initial issuance; spawn the rebuild driver and renewal loop; serve
// until a shutdown signal arrives.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	listenerv3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"

	"github.com/csssuf/envoy-acme-xds/internal/challenge"
	"github.com/csssuf/envoy-acme-xds/internal/config"
	"github.com/csssuf/envoy-acme-xds/internal/merge"
	"github.com/csssuf/envoy-acme-xds/internal/orderer"
	"github.com/csssuf/envoy-acme-xds/internal/renewal"
	"github.com/csssuf/envoy-acme-xds/internal/storage"
	"github.com/csssuf/envoy-acme-xds/internal/xdsserver"
	"github.com/csssuf/envoy-acme-xds/internal/xdsstate"
)

// renewalCheckInterval matches original_source's hardcoded hourly
// renewal check cadence.
const renewalCheckInterval = time.Hour

// Run builds every component from cfg and serves until ctx is
// canceled, returning the first fatal error encountered (startup
// failures are always fatal; a clean shutdown returns nil).
// configPath is watched for changes so that edits to
// envoy.listeners/envoy.clusters are picked up without a restart.
func Run(ctx context.Context, configPath string, cfg *config.Config, log *zap.Logger) error {
	log.Info("starting sidecar",
		zap.String("storage_dir", cfg.Meta.StorageDir),
		zap.String("socket_path", cfg.Meta.SocketPath),
		zap.String("acme_directory", cfg.Meta.ACMEDirectoryURL),
		zap.Int("num_certificates", len(cfg.Certificates)))

	store := storage.New(cfg.Meta.StorageDir)
	if err := store.Init(); err != nil {
		return err
	}

	state := xdsstate.New(log)
	registry := challenge.NewRegistry()

	ord, err := orderer.New(ctx, cfg.Meta.ACMEDirectoryURL, store, log)
	if err != nil {
		return err
	}

	workloadListeners, err := config.DeserializeListeners(cfg.Envoy.Listeners)
	if err != nil {
		return err
	}
	workloadClusters, err := config.DeserializeClusters(cfg.Envoy.Clusters)
	if err != nil {
		return err
	}

	// Seed xDS state with the workload's own resources before any
	// certificate issuance begins. The discovery server starts serving
	// only after InitialIssuance returns.
	mergedListeners, err := merge.Listeners(workloadListeners, registry.Snapshot())
	if err != nil {
		return err
	}
	state.PutListeners(mergedListeners)
	state.PutClusters(workloadClusters)

	renewalMgr := renewal.New(store, ord, registry, state, cfg.Certificates, log)
	renewalMgr.InitialIssuance(ctx)

	workload := &workloadResources{listeners: workloadListeners}

	go runRebuildDriver(ctx, state, registry, workload, log)
	go renewalMgr.Run(ctx, renewalCheckInterval)
	startConfigWatcher(ctx, configPath, workload, registry, state, log)

	server := xdsserver.New(state, cfg.Meta.SocketPath, log)
	if err := server.Serve(ctx, cfg.Meta.SocketPermissions); err != nil {
		return err
	}

	log.Info("shutdown complete")
	return nil
}

// workloadResources holds the workload's own listeners as last
// deserialized from configuration, guarded by a mutex since both
// runRebuildDriver and the config watcher read and replace it.
type workloadResources struct {
	mu        sync.Mutex
	listeners []*listenerv3.Listener
}

func (w *workloadResources) get() []*listenerv3.Listener {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.listeners
}

func (w *workloadResources) set(listeners []*listenerv3.Listener) {
	w.mu.Lock()
	w.listeners = listeners
	w.mu.Unlock()
}

// runRebuildDriver recomputes the merged listener set whenever xDS
// state changes (including RequestRebuild's version-0 notifications
// fired when challenges are added) and republishes only if the result
// actually differs from what's already published, avoiding a
// notify-republish-notify loop. Mirrors original_source's
// state_updater task in main.rs.
func runRebuildDriver(ctx context.Context, state *xdsstate.Store, registry *challenge.Registry, workload *workloadResources, log *zap.Logger) {
	updates, cancel := state.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}

			merged, err := merge.Listeners(workload.get(), registry.Snapshot())
			if err != nil {
				log.Error("rebuilding merged listeners", zap.Error(err))
				continue
			}

			current := state.Listeners()
			if listenersEqual(current, merged) {
				continue
			}
			state.PutListeners(merged)
		}
	}
}

// startConfigWatcher watches configPath for changes and, on each
// successful reload, re-derives the workload's listeners and clusters
// and republishes them, so edits to envoy.listeners/envoy.clusters take
// effect without a restart. A failure to start the watcher is logged
// as a warning, not fatal: the sidecar still runs, just without
// hot-reload. Grounded on the teacher's pkg/config.Watcher wiring into
// its server's reload path.
func startConfigWatcher(ctx context.Context, configPath string, workload *workloadResources, registry *challenge.Registry, state *xdsstate.Store, log *zap.Logger) {
	watcher, err := config.NewWatcher(configPath, log)
	if err != nil {
		log.Warn("failed to start config watcher, hot reload disabled", zap.Error(err))
		return
	}

	go func() {
		if err := watcher.Start(); err != nil {
			log.Error("config watcher stopped", zap.Error(err))
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-watcher.Updates():
				if !ok {
					return
				}
				applyConfigReload(cfg, workload, registry, state, log)
			}
		}
	}()
}

// applyConfigReload re-deserializes the workload's listeners and
// clusters from a freshly reloaded cfg and republishes the merged
// result. A cfg whose envoy.listeners/envoy.clusters no longer parse
// is rejected and the previous, known-good configuration keeps running.
func applyConfigReload(cfg *config.Config, workload *workloadResources, registry *challenge.Registry, state *xdsstate.Store, log *zap.Logger) {
	newListeners, err := config.DeserializeListeners(cfg.Envoy.Listeners)
	if err != nil {
		log.Error("reloaded config has invalid listeners, keeping previous configuration", zap.Error(err))
		return
	}
	newClusters, err := config.DeserializeClusters(cfg.Envoy.Clusters)
	if err != nil {
		log.Error("reloaded config has invalid clusters, keeping previous configuration", zap.Error(err))
		return
	}

	workload.set(newListeners)

	merged, err := merge.Listeners(newListeners, registry.Snapshot())
	if err != nil {
		log.Error("rebuilding merged listeners after config reload", zap.Error(err))
		return
	}
	state.PutListeners(merged)
	state.PutClusters(newClusters)
	log.Info("applied reloaded configuration")
}

// listenersEqual reports whether two listener slices are equivalent,
// guarding runRebuildDriver against republishing (and so re-notifying
// subscribers) when nothing actually changed.
func listenersEqual(a, b []*listenerv3.Listener) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !proto.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
