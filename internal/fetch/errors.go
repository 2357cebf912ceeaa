package fetch

import "fmt"

// TransientError represents failures believed recoverable by retrying:
// connection failures, timeouts, connectivity loss mid-transfer, and
// 5xx responses from the artifact server.
type TransientError struct {
	Operation  string // The operation that failed (e.g., "request", "copy", "connectivity")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Err        error  // Underlying error, if any
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient error during %s (HTTP %d)", e.Operation, e.StatusCode)
	}

	if e.Err != nil {
		return fmt.Sprintf("transient error during %s: %s", e.Operation, e.Err)
	}

	return fmt.Sprintf("transient error during %s", e.Operation)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// DestinationError represents failures preparing or writing the destination
// file. Like any other transfer failure it counts as a failed attempt and
// goes through the retry policy; the distinction only matters for reporting.
type DestinationError struct {
	Path string // Destination path that could not be written
	Err  error  // Underlying error, if any
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("destination error for '%s': %s", e.Path, e.Err)
}

func (e *DestinationError) Unwrap() error {
	return e.Err
}
