package envoybuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildTLSSecretInlinesChainAndKey(t *testing.T) {
	secret := BuildTLSSecret("web", "chain-pem", "key-pem")

	assert.Equal(t, "web", secret.Name)
	tlsCert := secret.GetTlsCertificate()
	assert.Equal(t, "chain-pem", tlsCert.GetCertificateChain().GetInlineString())
	assert.Equal(t, "key-pem", tlsCert.GetPrivateKey().GetInlineString())
}
