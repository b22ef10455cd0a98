// Package xdsserver implements the three separate (non-aggregated)
// xDS gRPC services the sidecar exposes over a Unix socket: LDS, CDS,
// and SDS (C6). Grounded on original_source's
// src/xds/{server,lds,cds,sds}.rs, re-expressed against
// github.com/envoyproxy/go-control-plane's generated v3 service
// stubs and the teacher's per-client broadcast-channel idiom,
// rather than go-control-plane's own pkg/cache/v3 (which targets
// aggregated discovery, out of scope here).
package xdsserver

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	discoveryv3 "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"

	"github.com/csssuf/envoy-acme-xds/internal/xdsstate"
)

// toAny wraps resources into google.protobuf.Any values, deriving
// each type URL from the message's own descriptor rather than
// hardcoding "type.googleapis.com/..." strings by hand.
func toAny[T proto.Message](resources []T) ([]*anypb.Any, error) {
	out := make([]*anypb.Any, 0, len(resources))
	for _, r := range resources {
		a, err := anypb.New(r)
		if err != nil {
			return nil, fmt.Errorf("marshaling resource to Any: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func buildDiscoveryResponse(typeURL string, state *xdsstate.Store, resources []*anypb.Any) *discoveryv3.DiscoveryResponse {
	return &discoveryv3.DiscoveryResponse{
		VersionInfo: state.Version(),
		Resources:   resources,
		TypeUrl:     typeURL,
	}
}
