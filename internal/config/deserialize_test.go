package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func unmarshalRawList(t *testing.T, doc string) []interface{} {
	t.Helper()
	var raw []interface{}
	require.NoError(t, yaml.Unmarshal([]byte(doc), &raw))
	return raw
}

func TestDeserializeListenersParsesExpandedTypedConfig(t *testing.T) {
	raw := unmarshalRawList(t, `
- name: http
  address:
    socket_address:
      address: 0.0.0.0
      port_value: 8080
  filter_chains:
    - filters:
        - name: envoy.filters.network.http_connection_manager
          typed_config:
            "@type": type.googleapis.com/envoy.extensions.filters.network.http_connection_manager.v3.HttpConnectionManager
            stat_prefix: ingress
            route_config:
              name: local_route
              virtual_hosts:
                - name: backend
                  domains: ["*"]
                  routes:
                    - match:
                        prefix: "/"
                      route:
                        cluster: backend
            http_filters:
              - name: envoy.filters.http.router
                typed_config:
                  "@type": type.googleapis.com/envoy.extensions.filters.http.router.v3.Router
`)

	listeners, err := DeserializeListeners(raw)
	require.NoError(t, err)
	require.Len(t, listeners, 1)
	assert.Equal(t, "http", listeners[0].Name)
	require.Len(t, listeners[0].FilterChains, 1)
	require.Len(t, listeners[0].FilterChains[0].Filters, 1)
	assert.Equal(t, "envoy.filters.network.http_connection_manager", listeners[0].FilterChains[0].Filters[0].Name)
	assert.NotNil(t, listeners[0].FilterChains[0].Filters[0].GetTypedConfig())
}

func TestDeserializeClustersParsesBasicFields(t *testing.T) {
	raw := unmarshalRawList(t, `
- name: backend
  connect_timeout: 5s
  type: STRICT_DNS
  load_assignment:
    cluster_name: backend
    endpoints:
      - lb_endpoints:
          - endpoint:
              address:
                socket_address:
                  address: backend.internal
                  port_value: 9000
`)

	clusters, err := DeserializeClusters(raw)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, "backend", clusters[0].Name)
}

func TestDeserializeListenersEmptyInputReturnsEmptySlice(t *testing.T) {
	listeners, err := DeserializeListeners(nil)
	require.NoError(t, err)
	assert.Empty(t, listeners)
}
