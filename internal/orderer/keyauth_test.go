package orderer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsupportedSigner is a crypto.Signer whose public key is not an EC
// key, used to exercise jwkThumbprint's type guard.
type unsupportedSigner struct{}

func (unsupportedSigner) Public() crypto.PublicKey                                       { return "not-a-key" }
func (unsupportedSigner) Sign(io.Reader, []byte, crypto.SignerOpts) ([]byte, error) { return nil, nil }

func TestKeyAuthorizationIsDeterministicForSameKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	a, err := keyAuthorization(key, "tok-123")
	require.NoError(t, err)
	b, err := keyAuthorization(key, "tok-123")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "tok-123."))
}

func TestKeyAuthorizationDiffersByToken(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	a, err := keyAuthorization(key, "tok-a")
	require.NoError(t, err)
	b, err := keyAuthorization(key, "tok-b")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestKeyAuthorizationDiffersByKey(t *testing.T) {
	key1, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	key2, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	a, err := keyAuthorization(key1, "tok-123")
	require.NoError(t, err)
	b, err := keyAuthorization(key2, "tok-123")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestKeyAuthorizationRejectsNonECKey(t *testing.T) {
	_, err := keyAuthorization(unsupportedSigner{}, "tok-123")
	assert.Error(t, err)
}
