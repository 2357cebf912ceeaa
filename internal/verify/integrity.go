// Package verify decides whether a downloaded artifact can be accepted:
// its content hash must match the manifest checksum and its embedded
// signature must chain to a trusted root.
package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// ChecksumMismatchError signals a corrupted or tampered artifact.
// It is never retried.
type ChecksumMismatchError struct {
	Path     string // Artifact path that failed verification
	Expected string // Checksum from the manifest, lowercase hex
	Computed string // Checksum computed from the file, lowercase hex
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for '%s': expected %s, computed %s", e.Path, e.Expected, e.Computed)
}

// ComputeChecksum returns the SHA-256 hash of the file at path as a
// lowercase hex string.
func ComputeChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}

	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash artifact: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Checksum verifies that the SHA-256 hash of the file at path equals
// expectedHex. The comparison is case-insensitive; manifests in the wild
// carry both casings.
func Checksum(path, expectedHex string) error {
	expected := strings.TrimSpace(expectedHex)
	if expected == "" {
		return &ChecksumMismatchError{Path: path, Expected: expected}
	}

	computed, err := ComputeChecksum(path)
	if err != nil {
		return err
	}

	if !strings.EqualFold(computed, expected) {
		return &ChecksumMismatchError{Path: path, Expected: strings.ToLower(expected), Computed: computed}
	}

	return nil
}
