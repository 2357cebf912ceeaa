package fetch

import (
	"errors"
	"testing"
)

// TestTransientError_Error verifies error message formatting
func TestTransientError_Error(t *testing.T) {
	tests := []struct {
		name       string
		err        *TransientError
		wantFormat string
	}{
		{
			name: "with HTTP status code",
			err: &TransientError{
				Operation:  "request",
				StatusCode: 503,
			},
			wantFormat: "transient error during request (HTTP 503)",
		},
		{
			name: "with underlying error",
			err: &TransientError{
				Operation: "copy",
				Err:       errors.New("connection timeout"),
			},
			wantFormat: "transient error during copy: connection timeout",
		},
		{
			name: "bare operation",
			err: &TransientError{
				Operation: "connectivity",
			},
			wantFormat: "transient error during connectivity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantFormat {
				t.Errorf("Error() = %q, want %q", got, tt.wantFormat)
			}
		})
	}
}

// TestDestinationError_Error verifies error message formatting
func TestDestinationError_Error(t *testing.T) {
	err := &DestinationError{
		Path: "/downloads/app.pkg",
		Err:  errors.New("permission denied"),
	}

	expected := "destination error for '/downloads/app.pkg': permission denied"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}
