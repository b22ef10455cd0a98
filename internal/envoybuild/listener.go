// Package envoybuild constructs the small set of Envoy v3 protobuf
// messages the sidecar needs: a direct-response ACME challenge route, a
// synthesized port-80 listener, and a TLS secret. Grounded on
// original_source's src/envoy/{listener,route,secret,cluster}.rs,
// re-expressed against github.com/envoyproxy/go-control-plane's
// generated v3 types (the Go ecosystem counterpart of the Rust xds-api
// crate the original depends on).
package envoybuild

import (
	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	listenerv3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	routev3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	routerv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/router/v3"
	hcmv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"
	"google.golang.org/protobuf/types/known/anypb"
)

// Well-known filter and resource names used throughout the merger and
// builders below, matching both Envoy's own naming and
// original_source's merge.rs constants.
const (
	HTTPConnectionManagerFilterName = "envoy.filters.network.http_connection_manager"
	RouterFilterName                = "envoy.filters.http.router"

	AcmeChallengeVirtualHostName = "acme-challenges"
	AcmeListenerName             = "acme-http"
	AcmeRouteConfigName          = "acme_routes"
)

// BuildListenerPort returns the TCP port a listener is bound to, or
// (0, false) if it isn't a plain socket-address listener.
func BuildListenerPort(l *listenerv3.Listener) (uint32, bool) {
	addr := l.GetAddress()
	if addr == nil {
		return 0, false
	}
	sa := addr.GetSocketAddress()
	if sa == nil {
		return 0, false
	}
	return sa.GetPortValue(), true
}

// BuildHTTPConnectionManagerAny wraps an HttpConnectionManager message
// into a typed google.protobuf.Any, deriving the type URL from the
// message's own descriptor.
func BuildHTTPConnectionManagerAny(hcm *hcmv3.HttpConnectionManager) (*anypb.Any, error) {
	return anypb.New(hcm)
}

// BuildRouterFilter returns the terminal HTTP router filter every HCM
// filter chain must end with.
func BuildRouterFilter() (*hcmv3.HttpFilter, error) {
	routerAny, err := anypb.New(&routerv3.Router{})
	if err != nil {
		return nil, err
	}
	return &hcmv3.HttpFilter{
		Name:       RouterFilterName,
		ConfigType: &hcmv3.HttpFilter_TypedConfig{TypedConfig: routerAny},
	}, nil
}

// BuildAcmeListener synthesizes a brand-new listener bound to
// 0.0.0.0:80 whose sole filter chain answers the given ACME challenge
// routes via an inline route configuration with a single wildcard
// virtual host.
func BuildAcmeListener(routes []*routev3.Route) (*listenerv3.Listener, error) {
	routeConfig := &routev3.RouteConfiguration{
		Name: AcmeRouteConfigName,
		VirtualHosts: []*routev3.VirtualHost{
			{
				Name:    AcmeChallengeVirtualHostName,
				Domains: []string{"*"},
				Routes:  routes,
			},
		},
	}

	routerFilter, err := BuildRouterFilter()
	if err != nil {
		return nil, err
	}

	hcm := &hcmv3.HttpConnectionManager{
		StatPrefix:     "acme",
		RouteSpecifier: &hcmv3.HttpConnectionManager_RouteConfig{RouteConfig: routeConfig},
		HttpFilters:    []*hcmv3.HttpFilter{routerFilter},
	}
	hcmAny, err := BuildHTTPConnectionManagerAny(hcm)
	if err != nil {
		return nil, err
	}

	return &listenerv3.Listener{
		Name: AcmeListenerName,
		Address: &corev3.Address{
			Address: &corev3.Address_SocketAddress{
				SocketAddress: &corev3.SocketAddress{
					Address:       "0.0.0.0",
					PortSpecifier: &corev3.SocketAddress_PortValue{PortValue: 80},
				},
			},
		},
		FilterChains: []*listenerv3.FilterChain{
			{
				Filters: []*listenerv3.Filter{
					{
						Name:       HTTPConnectionManagerFilterName,
						ConfigType: &listenerv3.Filter_TypedConfig{TypedConfig: hcmAny},
					},
				},
			},
		},
	}, nil
}
