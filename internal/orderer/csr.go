package orderer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
)

// generateCSR creates a fresh ECDSA P-256 certificate key and a CSR
// for the given domains, matching original_source's
// CertificateOrder::generate_csr (rcgen with PKCS_ECDSA_P256_SHA256).
// The first domain is used as the CSR's CommonName, the full list as
// its DNS SANs.
func generateCSR(domains []string) (csrDER []byte, keyPEM string, key *ecdsa.PrivateKey, err error) {
	key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, "", nil, fmt.Errorf("generating certificate key: %w", err)
	}

	template := &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: domains[0]},
		DNSNames:           domains,
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	}

	csrDER, err = x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, "", nil, fmt.Errorf("creating certificate request: %w", err)
	}

	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, "", nil, fmt.Errorf("marshaling certificate key: %w", err)
	}
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))

	return csrDER, keyPEM, key, nil
}
