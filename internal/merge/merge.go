// Package merge implements the pure listener-merging function C3: it
// takes workload listeners plus the set of currently active ACME
// challenges and produces the listener set that must be published to
// the data plane so it can answer HTTP-01 validation requests.
//
// Grounded line-for-line on original_source's src/xds/merge.rs
// ConfigMerger, re-expressed against go-control-plane's v3 types.
package merge

import (
	"google.golang.org/protobuf/proto"

	listenerv3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	routev3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	hcmv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"

	"github.com/csssuf/envoy-acme-xds/internal/challenge"
	"github.com/csssuf/envoy-acme-xds/internal/envoybuild"
)

// Listeners merges workload listeners with the routes derived from
// challenges, per spec.md §4.3's four-step algorithm:
//  1. no challenges -> return workload unchanged.
//  2. build one direct-response route per challenge.
//  3. find the first port-80 listener and prepend the routes into its
//     HCM's wildcard virtual host (creating one if absent).
//  4. if no port-80 listener exists, synthesize one.
//
// Decoding failure of a workload listener's HCM filter is treated as
// "leave that listener untouched" — Listeners never fails; callers
// that need to surface a build error (e.g. Any-marshaling the
// synthesized listener) get it back as the second return value, but a
// non-nil error here only ever originates from constructing the new
// synthesized listener/routes, never from parsing workload input.
func Listeners(workload []*listenerv3.Listener, challenges []challenge.Active) ([]*listenerv3.Listener, error) {
	if len(challenges) == 0 {
		return workload, nil
	}

	routes := make([]*routev3.Route, 0, len(challenges))
	for _, c := range challenges {
		routes = append(routes, envoybuild.BuildAcmeChallengeRoute(c.Token, c.KeyAuthorization))
	}

	out := make([]*listenerv3.Listener, len(workload))
	copy(out, workload)

	port80 := -1
	for i, l := range out {
		if port, ok := envoybuild.BuildListenerPort(l); ok && port == 80 {
			port80 = i
			break
		}
	}

	if port80 >= 0 {
		out[port80] = prependRoutesToListener(out[port80], routes)
		return out, nil
	}

	acmeListener, err := envoybuild.BuildAcmeListener(routes)
	if err != nil {
		return nil, err
	}
	return append(out, acmeListener), nil
}

// prependRoutesToListener returns a deep-enough copy of listener with
// the ACME routes prepended to the wildcard virtual host of its HTTP
// connection manager filter (if one decodes cleanly). A listener whose
// HCM filter can't be found or doesn't decode is returned unmodified —
// decoding failure is "leave untouched", not an error, per spec.md
// §4.3's edge-case policy.
func prependRoutesToListener(l *listenerv3.Listener, routes []*routev3.Route) *listenerv3.Listener {
	cloned := proto.Clone(l).(*listenerv3.Listener)

	for _, fc := range cloned.GetFilterChains() {
		for _, filter := range fc.GetFilters() {
			if filter.GetName() != envoybuild.HTTPConnectionManagerFilterName {
				continue
			}
			typedConfig := filter.GetTypedConfig()
			if typedConfig == nil {
				continue
			}

			var hcm hcmv3.HttpConnectionManager
			if err := typedConfig.UnmarshalTo(&hcm); err != nil {
				continue
			}

			routeConfig, ok := hcm.GetRouteSpecifier().(*hcmv3.HttpConnectionManager_RouteConfig)
			if !ok || routeConfig.RouteConfig == nil {
				continue
			}
			prependRoutesToRouteConfig(routeConfig.RouteConfig, routes)

			newAny, err := envoybuild.BuildHTTPConnectionManagerAny(&hcm)
			if err != nil {
				continue
			}
			filter.ConfigType = &listenerv3.Filter_TypedConfig{TypedConfig: newAny}
		}
	}

	return cloned
}

// prependRoutesToRouteConfig mutates routeConfig in place, prepending
// routes to the first wildcard ("*") virtual host, or inserting a new
// "acme-challenges" virtual host at position 0 if none exists. Routes
// whose name already appears in the virtual host are skipped, so
// re-applying the same challenge set to a listener that's already
// been merged doesn't duplicate routes.
func prependRoutesToRouteConfig(routeConfig *routev3.RouteConfiguration, routes []*routev3.Route) {
	for _, vh := range routeConfig.GetVirtualHosts() {
		for _, d := range vh.GetDomains() {
			if d == "*" {
				fresh := newRoutesOnly(routes, vh.Routes)
				vh.Routes = append(append([]*routev3.Route{}, fresh...), vh.Routes...)
				return
			}
		}
	}

	acmeVH := &routev3.VirtualHost{
		Name:    envoybuild.AcmeChallengeVirtualHostName,
		Domains: []string{"*"},
		Routes:  routes,
	}
	routeConfig.VirtualHosts = append([]*routev3.VirtualHost{acmeVH}, routeConfig.VirtualHosts...)
}

// newRoutesOnly returns the subset of candidates whose Name doesn't
// already appear in existing.
func newRoutesOnly(candidates, existing []*routev3.Route) []*routev3.Route {
	present := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		present[r.GetName()] = struct{}{}
	}

	out := make([]*routev3.Route, 0, len(candidates))
	for _, r := range candidates {
		if _, ok := present[r.GetName()]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}
