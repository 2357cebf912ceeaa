package verify

import "crypto/x509"

// Suite bundles both acceptance checks behind one value so the
// orchestrator can depend on a single collaborator.
type Suite struct {
	roots *x509.CertPool
}

// NewSuite creates a verification suite trusting the given roots.
func NewSuite(roots *x509.CertPool) *Suite {
	return &Suite{roots: roots}
}

// VerifyIntegrity checks the artifact's SHA-256 against the expected hex string.
func (s *Suite) VerifyIntegrity(path, expectedHex string) error {
	return Checksum(path, expectedHex)
}

// VerifyTrust checks the artifact's embedded signature against the trusted roots.
func (s *Suite) VerifyTrust(path string) error {
	return Trust(path, s.roots)
}
