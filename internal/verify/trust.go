package verify

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// Artifact trailer PEM block types. A signed artifact is the raw payload
// followed by one signature block and the signing certificate chain,
// leaf first.
const (
	signaturePEMType   = "UPDATE SIGNATURE"
	certificatePEMType = "CERTIFICATE"
)

var signatureMarker = []byte("-----BEGIN " + signaturePEMType + "-----")

// UntrustedSignatureError signals an unsigned, malformed, or untrusted
// artifact. It is never retried.
type UntrustedSignatureError struct {
	Path   string // Artifact path that failed verification
	Reason string // Human-readable explanation
	Err    error  // Underlying error, if any
}

func (e *UntrustedSignatureError) Error() string {
	return fmt.Sprintf("no valid signature on '%s': %s", e.Path, e.Reason)
}

func (e *UntrustedSignatureError) Unwrap() error {
	return e.Err
}

// Trust verifies that the artifact at path carries a signature whose
// certificate chains to one of the given roots and whose signature covers
// the payload bytes. A missing or malformed trailer and an invalid chain
// are both terminal: neither indicates a transient condition.
func Trust(path string, roots *x509.CertPool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &UntrustedSignatureError{Path: path, Reason: "failed to read artifact", Err: err}
	}

	payload, sig, chain, err := splitArtifact(data)
	if err != nil {
		return &UntrustedSignatureError{Path: path, Reason: err.Error(), Err: err}
	}

	leaf := chain[0]

	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}

	if _, err := leaf.Verify(opts); err != nil {
		return &UntrustedSignatureError{Path: path, Reason: "certificate does not chain to a trusted root", Err: err}
	}

	algo, err := signatureAlgorithm(leaf)
	if err != nil {
		return &UntrustedSignatureError{Path: path, Reason: err.Error(), Err: err}
	}

	if err := leaf.CheckSignature(algo, payload, sig); err != nil {
		return &UntrustedSignatureError{Path: path, Reason: "signature does not cover artifact content", Err: err}
	}

	return nil
}

// LoadRoots reads a PEM bundle of trusted root certificates.
func LoadRoots(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trusted roots: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}

	return pool, nil
}

// splitArtifact separates the payload from the signature trailer and parses
// the embedded certificate chain.
func splitArtifact(data []byte) (payload, sig []byte, chain []*x509.Certificate, err error) {
	idx := bytes.Index(data, signatureMarker)
	if idx < 0 {
		return nil, nil, nil, fmt.Errorf("artifact is not signed")
	}

	payload = data[:idx]
	rest := data[idx:]

	for len(rest) > 0 {
		var block *pem.Block

		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		switch block.Type {
		case signaturePEMType:
			if sig != nil {
				return nil, nil, nil, fmt.Errorf("artifact carries more than one signature block")
			}

			sig = block.Bytes
		case certificatePEMType:
			cert, parseErr := x509.ParseCertificate(block.Bytes)
			if parseErr != nil {
				return nil, nil, nil, fmt.Errorf("malformed certificate in trailer: %w", parseErr)
			}

			chain = append(chain, cert)
		}
	}

	if len(sig) == 0 {
		return nil, nil, nil, fmt.Errorf("artifact signature block is empty")
	}

	if len(chain) == 0 {
		return nil, nil, nil, fmt.Errorf("artifact carries no signing certificate")
	}

	return payload, sig, chain, nil
}

func signatureAlgorithm(cert *x509.Certificate) (x509.SignatureAlgorithm, error) {
	switch cert.PublicKey.(type) {
	case *ecdsa.PublicKey:
		return x509.ECDSAWithSHA256, nil
	case *rsa.PublicKey:
		return x509.SHA256WithRSA, nil
	default:
		return x509.UnknownSignatureAlgorithm, fmt.Errorf("unsupported signing key type %T", cert.PublicKey)
	}
}
