package config

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"

	clusterv3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	listenerv3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"

	"github.com/csssuf/envoy-acme-xds/internal/apperr"
)

// DeserializeListeners converts the raw decoded-YAML listener entries
// into typed go-control-plane Listener messages.
//
// original_source hand-rolls a JSON tree walk that rewrites each
// typed_config's expanded "@type" form into a binary type_url/value
// pair before handing it to prost, because prost-types' Any has no
// native support for the expanded form. protojson does support it
// natively (it resolves "@type" against the global proto registry,
// which go-control-plane's generated types register into via their
// init() functions), so DeserializeListeners skips that tree walk
// entirely and unmarshals straight through protojson.
func DeserializeListeners(raw []interface{}) ([]*listenerv3.Listener, error) {
	out := make([]*listenerv3.Listener, 0, len(raw))
	for i, v := range raw {
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return nil, apperr.WrapConfigError(fmt.Sprintf("re-encoding listener %d as JSON", i), err)
		}

		var l listenerv3.Listener
		if err := protojson.Unmarshal(jsonBytes, &l); err != nil {
			return nil, apperr.WrapConfigError(fmt.Sprintf("parsing listener %d", i), err)
		}
		out = append(out, &l)
	}
	return out, nil
}

// DeserializeClusters converts the raw decoded-YAML cluster entries
// into typed go-control-plane Cluster messages.
func DeserializeClusters(raw []interface{}) ([]*clusterv3.Cluster, error) {
	out := make([]*clusterv3.Cluster, 0, len(raw))
	for i, v := range raw {
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return nil, apperr.WrapConfigError(fmt.Sprintf("re-encoding cluster %d as JSON", i), err)
		}

		var c clusterv3.Cluster
		if err := protojson.Unmarshal(jsonBytes, &c); err != nil {
			return nil, apperr.WrapConfigError(fmt.Sprintf("parsing cluster %d", i), err)
		}
		out = append(out, &c)
	}
	return out, nil
}
