package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	listenerv3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
)

func listenerNamed(name string) *listenerv3.Listener {
	return &listenerv3.Listener{
		Name: name,
		Address: &corev3.Address{
			Address: &corev3.Address_SocketAddress{
				SocketAddress: &corev3.SocketAddress{
					Address:       "0.0.0.0",
					PortSpecifier: &corev3.SocketAddress_PortValue{PortValue: 80},
				},
			},
		},
	}
}

func TestListenersEqualTrueForIdenticalContent(t *testing.T) {
	a := []*listenerv3.Listener{listenerNamed("one")}
	b := []*listenerv3.Listener{listenerNamed("one")}
	assert.True(t, listenersEqual(a, b))
}

func TestListenersEqualFalseForDifferentLength(t *testing.T) {
	a := []*listenerv3.Listener{listenerNamed("one")}
	b := []*listenerv3.Listener{listenerNamed("one"), listenerNamed("two")}
	assert.False(t, listenersEqual(a, b))
}

func TestListenersEqualFalseForDifferentContent(t *testing.T) {
	a := []*listenerv3.Listener{listenerNamed("one")}
	b := []*listenerv3.Listener{listenerNamed("two")}
	assert.False(t, listenersEqual(a, b))
}
