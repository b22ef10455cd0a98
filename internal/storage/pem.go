package storage

import (
	"encoding/pem"
	"errors"
)

// decodeFirstPEMBlock returns the DER bytes of the first PEM block in
// data, which for a certificate chain is always the leaf certificate.
func decodeFirstPEMBlock(data []byte) ([]byte, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	return block.Bytes, nil
}
