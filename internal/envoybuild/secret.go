package envoybuild

import (
	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	tlsv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/transport_sockets/tls/v3"
)

// BuildTLSSecret builds an SDS tls_certificate secret with the chain
// and key inlined as strings, matching original_source's
// envoy/secret.rs build_tls_secret.
func BuildTLSSecret(name, chainPEM, keyPEM string) *tlsv3.Secret {
	return &tlsv3.Secret{
		Name: name,
		Type: &tlsv3.Secret_TlsCertificate{
			TlsCertificate: &tlsv3.TlsCertificate{
				CertificateChain: &corev3.DataSource{
					Specifier: &corev3.DataSource_InlineString{InlineString: chainPEM},
				},
				PrivateKey: &corev3.DataSource{
					Specifier: &corev3.DataSource_InlineString{InlineString: keyPEM},
				},
			},
		},
	}
}
