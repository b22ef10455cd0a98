package orderer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// keyAuthorization computes the RFC 8555 §8.1 key authorization for a
// challenge token: the token, a period, and the base64url (no
// padding) SHA-256 thumbprint of the account key's JWK, per RFC 7638.
//
// instant-acme (and by extension acmez) compute this internally and
// hand the caller a ready-to-serve string; we compute it ourselves
// because the lower-level acme.Client exposes the order/authorization
// objects but not a key-authorization helper on this code path.
func keyAuthorization(accountKey crypto.Signer, token string) (string, error) {
	thumb, err := jwkThumbprint(accountKey)
	if err != nil {
		return "", fmt.Errorf("computing account key thumbprint: %w", err)
	}
	return token + "." + thumb, nil
}

// jwkThumbprint implements RFC 7638 for EC public keys: the required
// JWK members (crv, kty, x, y), serialized in lexicographic key order
// with no insignificant whitespace, then SHA-256'd and base64url
// (no padding) encoded.
func jwkThumbprint(signer crypto.Signer) (string, error) {
	pub, ok := signer.Public().(*ecdsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("unsupported account key type %T, want *ecdsa.PublicKey", signer.Public())
	}

	size := (pub.Curve.Params().BitSize + 7) / 8
	x := make([]byte, size)
	y := make([]byte, size)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)

	jwk := struct {
		Crv string `json:"crv"`
		Kty string `json:"kty"`
		X   string `json:"x"`
		Y   string `json:"y"`
	}{
		Crv: pub.Curve.Params().Name,
		Kty: "EC",
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	}

	encoded, err := json.Marshal(jwk)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(encoded)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
