package verify

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// Sign appends a signature trailer to payload: one UPDATE SIGNATURE block
// followed by the certificate chain, leaf first. The signer must hold the
// private key for chain[0]. This is the producing side of Trust; the
// release tooling and the test suite both use it.
func Sign(payload []byte, signer crypto.Signer, chain []*x509.Certificate) ([]byte, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("signing requires at least the leaf certificate")
	}

	digest := sha256.Sum256(payload)

	sig, err := signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("failed to sign artifact: %w", err)
	}

	out := make([]byte, 0, len(payload)+len(sig)+len(chain)*1024)
	out = append(out, payload...)
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: signaturePEMType, Bytes: sig})...)

	for _, cert := range chain {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: certificatePEMType, Bytes: cert.Raw})...)
	}

	return out, nil
}
