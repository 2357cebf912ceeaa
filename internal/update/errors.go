package update

import (
	"errors"
	"fmt"
)

// ErrCancelled is the terminal error for a user-cancelled task. It is
// distinct from transient transfer errors even though both interrupt a
// transfer mid-flight: cancellation is never retried.
var ErrCancelled = errors.New("download cancelled by user")

// RetriesExhaustedError is surfaced after the attempt cap is reached.
// It wraps the final attempt's error.
type RetriesExhaustedError struct {
	Attempts int   // Total attempts made, including the first
	Err      error // The last recorded transfer error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("download failed after %d attempts: %s", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

// ArtifactMissingError signals that the destination file is absent even
// though the transfer reported success. Fatal; verification never ran.
type ArtifactMissingError struct {
	Path string // Expected artifact location
	Err  error  // Underlying stat error, if any
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("artifact missing at '%s'", e.Path)
}

func (e *ArtifactMissingError) Unwrap() error {
	return e.Err
}
