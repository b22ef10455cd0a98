package orderer

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCSRProducesParsableRequestWithExpectedSANs(t *testing.T) {
	domains := []string{"web.example.test", "alt.example.test"}

	der, keyPEM, key, err := generateCSR(domains)
	require.NoError(t, err)
	require.NotEmpty(t, keyPEM)
	require.NotNil(t, key)

	csr, err := x509.ParseCertificateRequest(der)
	require.NoError(t, err)

	assert.Equal(t, domains[0], csr.Subject.CommonName)
	assert.ElementsMatch(t, domains, csr.DNSNames)
	require.NoError(t, csr.CheckSignature())
}

func TestGenerateCSRUsesFreshKeyEachCall(t *testing.T) {
	_, _, key1, err := generateCSR([]string{"a.example.test"})
	require.NoError(t, err)
	_, _, key2, err := generateCSR([]string{"a.example.test"})
	require.NoError(t, err)

	assert.False(t, key1.Equal(key2))
}
