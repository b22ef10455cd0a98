package xdsserver

import (
	"context"
	"io"

	"go.uber.org/zap"

	clusterservice "github.com/envoyproxy/go-control-plane/envoy/service/cluster/v3"
	discoveryv3 "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"

	"github.com/csssuf/envoy-acme-xds/internal/xdsstate"
)

type cdsService struct {
	clusterservice.UnimplementedClusterDiscoveryServiceServer

	state *xdsstate.Store
	log   *zap.Logger
}

// NewCDS constructs the cluster discovery service.
func NewCDS(state *xdsstate.Store, log *zap.Logger) clusterservice.ClusterDiscoveryServiceServer {
	return &cdsService{state: state, log: log}
}

func (s *cdsService) buildResponse() (*discoveryv3.DiscoveryResponse, error) {
	resources, err := toAny(s.state.Clusters())
	if err != nil {
		return nil, err
	}
	return buildDiscoveryResponse(clusterTypeURL, s.state, resources), nil
}

func (s *cdsService) StreamClusters(stream clusterservice.ClusterDiscoveryService_StreamClustersServer) error {
	s.log.Info("new CDS stream connection")
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

func (s *cdsService) FetchClusters(_ context.Context, _ *discoveryv3.DiscoveryRequest) (*discoveryv3.DiscoveryResponse, error) {
	return s.buildResponse()
}
