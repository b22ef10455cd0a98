package xdsserver

import (
	"context"
	"io"

	"go.uber.org/zap"

	discoveryv3 "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	secretservice "github.com/envoyproxy/go-control-plane/envoy/service/secret/v3"

	"github.com/csssuf/envoy-acme-xds/internal/xdsstate"
)

type sdsService struct {
	secretservice.UnimplementedSecretDiscoveryServiceServer

	state *xdsstate.Store
	log   *zap.Logger
}

// NewSDS constructs the secret discovery service.
func NewSDS(state *xdsstate.Store, log *zap.Logger) secretservice.SecretDiscoveryServiceServer {
	return &sdsService{state: state, log: log}
}

// buildResponse returns all secrets when resourceNames is empty,
// otherwise only the ones whose name is requested, matching Envoy's
// own SDS filtering convention.
func (s *sdsService) buildResponse(resourceNames []string) (*discoveryv3.DiscoveryResponse, error) {
	secrets := s.state.Secrets()

	if len(resourceNames) > 0 {
		wanted := make(map[string]bool, len(resourceNames))
		for _, n := range resourceNames {
			wanted[n] = true
		}
		filtered := secrets[:0:0]
		for _, sec := range secrets {
			if wanted[sec.Name] {
				filtered = append(filtered, sec)
			}
		}
		secrets = filtered
	}

	resources, err := toAny(secrets)
	if err != nil {
		return nil, err
	}
	return buildDiscoveryResponse(secretTypeURL, s.state, resources), nil
}

// StreamSecrets tracks the most recently requested resource_names
// across the life of the stream so a subscriber that narrows or
// widens its request (as Envoy does when a listener starts or stops
// referencing a secret) gets a correctly filtered response on every
// subsequent push, not just the first.
func (s *sdsService) StreamSecrets(stream secretservice.SecretDiscoveryService_StreamSecretsServer) error {
	s.log.Info("new SDS stream connection")
	ctx := stream.Context()

	updates, cancel := s.state.Subscribe()
	defer cancel()

	requests := make(chan *discoveryv3.DiscoveryRequest, 1)
	recvDone := make(chan error, 1)
	go func() {
		for {
			req, err := stream.Recv()
			if err != nil {
				recvDone <- err
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	var resourceNames []string
	send := func() error {
		resp, err := s.buildResponse(resourceNames)
		if err != nil {
			return err
		}
		return stream.Send(resp)
	}

	if err := send(); err != nil {
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
		case req := <-requests:
			resourceNames = req.ResourceNames
			if err := send(); err != nil {
				return err
			}
		case <-updates:
			if err := send(); err != nil {
				return err
			}
		}
	}
}

func (s *sdsService) FetchSecrets(_ context.Context, req *discoveryv3.DiscoveryRequest) (*discoveryv3.DiscoveryResponse, error) {
	return s.buildResponse(req.ResourceNames)
}
