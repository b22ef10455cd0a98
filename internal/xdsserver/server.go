package xdsserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/coreos/go-systemd/v22/activation"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	clusterservice "github.com/envoyproxy/go-control-plane/envoy/service/cluster/v3"
	listenerservice "github.com/envoyproxy/go-control-plane/envoy/service/listener/v3"
	secretservice "github.com/envoyproxy/go-control-plane/envoy/service/secret/v3"

	"github.com/csssuf/envoy-acme-xds/internal/xdsstate"
)

// Server hosts the LDS, CDS, and SDS services over a single Unix
// domain socket. Grounded on original_source's src/xds/server.rs
// XdsServer, which wires the same three separate (non-aggregated)
// services onto one tonic Server bound to a UnixListener.
type Server struct {
	grpcServer *grpc.Server
	socketPath string
	log        *zap.Logger
}

// New constructs a Server wired with all three discovery services
// backed by state.
func New(state *xdsstate.Store, socketPath string, log *zap.Logger) *Server {
	grpcServer := grpc.NewServer()

	listenerservice.RegisterListenerDiscoveryServiceServer(grpcServer, NewLDS(state, log))
	clusterservice.RegisterClusterDiscoveryServiceServer(grpcServer, NewCDS(state, log))
	secretservice.RegisterSecretDiscoveryServiceServer(grpcServer, NewSDS(state, log))

	return &Server{grpcServer: grpcServer, socketPath: socketPath, log: log}
}

// Serve binds the configured Unix socket (or reuses a socket-activated
// file descriptor, if systemd passed one) with the given permissions,
// and blocks serving until ctx is canceled. The socket file is removed
// on both entry (if stale) and clean exit.
func (s *Server) Serve(ctx context.Context, socketPermissions uint32) error {
	listener, ownsSocketFile, err := s.bind(socketPermissions)
	if err != nil {
		return err
	}
	if ownsSocketFile {
		defer os.Remove(s.socketPath)
	}

	s.log.Info("xds server listening on unix socket", zap.String("path", s.socketPath))

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.grpcServer.Serve(listener) }()

	select {
	case <-ctx.Done():
		s.grpcServer.GracefulStop()
		return nil
	case err := <-serveErr:
		return err
	}
}

// bind returns the listener to serve on, preferring a systemd
// socket-activation file descriptor over binding the path ourselves.
// ownsSocketFile is false when we're using an activation fd, since
// systemd (not us) owns that socket's lifecycle.
func (s *Server) bind(socketPermissions uint32) (net.Listener, bool, error) {
	listeners, err := activation.Listeners()
	if err == nil && len(listeners) > 0 && listeners[0] != nil {
		s.log.Info("using systemd socket-activated listener")
		return listeners[0], false, nil
	}

	if err := os.RemoveAll(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("removing stale socket: %w", err)
	}
	if parent := filepath.Dir(s.socketPath); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, false, fmt.Errorf("creating socket directory: %w", err)
		}
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, false, fmt.Errorf("binding unix socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, os.FileMode(socketPermissions)); err != nil {
		return nil, false, fmt.Errorf("setting socket permissions: %w", err)
	}

	return listener, true, nil
}
