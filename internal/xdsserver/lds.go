package xdsserver

import (
	"context"
	"io"

	"go.uber.org/zap"

	discoveryv3 "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	listenerservice "github.com/envoyproxy/go-control-plane/envoy/service/listener/v3"

	"github.com/csssuf/envoy-acme-xds/internal/xdsstate"
)

// ldsService serves the listener discovery service. Delta and
// aggregated variants are intentionally unimplemented: embedding
// UnimplementedListenerDiscoveryServiceServer makes DeltaListeners
// return codes.Unimplemented without us writing that case out by hand.
type ldsService struct {
	listenerservice.UnimplementedListenerDiscoveryServiceServer

	state *xdsstate.Store
	log   *zap.Logger
}

// NewLDS constructs the listener discovery service.
func NewLDS(state *xdsstate.Store, log *zap.Logger) listenerservice.ListenerDiscoveryServiceServer {
	return &ldsService{state: state, log: log}
}

func (s *ldsService) buildResponse() (*discoveryv3.DiscoveryResponse, error) {
	resources, err := toAny(s.state.Listeners())
	if err != nil {
		return nil, err
	}
	return buildDiscoveryResponse(listenerTypeURL, s.state, resources), nil
}

func (s *ldsService) StreamListeners(stream listenerservice.ListenerDiscoveryService_StreamListenersServer) error {
	s.log.Info("new LDS stream connection")
	ctx := stream.Context()

	updates, cancel := s.state.Subscribe()
	defer cancel()

	recvDone := watchForStreamClose(ctx, func() (*discoveryv3.DiscoveryRequest, error) { return stream.Recv() })

	resp, err := s.buildResponse()
	if err != nil {
		return err
	}
	if err := stream.Send(resp); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-recvDone:
			if err == io.EOF || err == nil {
				return nil
			}
			return err
		case <-updates:
			resp, err := s.buildResponse()
			if err != nil {
				return err
			}
			if err := stream.Send(resp); err != nil {
				return err
			}
		}
	}
}

func (s *ldsService) FetchListeners(_ context.Context, _ *discoveryv3.DiscoveryRequest) (*discoveryv3.DiscoveryResponse, error) {
	return s.buildResponse()
}
