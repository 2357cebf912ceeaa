package update

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTask_ProgressIsMonotonicAndCapped(t *testing.T) {
	task := NewTask("t1", "app", "https://example.com/app.pkg", "/tmp/app.pkg", "abc")

	desc := task.Progress(50, 100)
	require.Equal(t, "downloading app 50%", desc)

	// A retried attempt restarting from zero must not rewind the gauge.
	desc = task.Progress(10, 100)
	require.Equal(t, "downloading app 50%", desc)

	// The last stretch is held back until verification passes.
	desc = task.Progress(100, 100)
	require.Equal(t, "downloading app 95%", desc)

	task.complete()
	snap := task.Snapshot()
	require.Equal(t, 100, snap.Percent)
}

func TestTask_ProgressWithUnknownTotal(t *testing.T) {
	task := NewTask("t2", "app", "https://example.com/app.pkg", "/tmp/app.pkg", "abc")

	desc := task.Progress(1024, 0)
	require.Equal(t, "downloading app 0%", desc)
	require.Equal(t, 0, task.Snapshot().Percent)
}

func TestTask_CancelLatchResetsPerAttempt(t *testing.T) {
	task := NewTask("t3", "app", "https://example.com/app.pkg", "/tmp/app.pkg", "abc")

	task.RequestCancel()

	require.True(t, task.markCancelIssued())
	require.False(t, task.markCancelIssued(), "second poll tick must not issue another cancel")

	// A new attempt re-arms the latch.
	task.beginAttempt()
	require.True(t, task.markCancelIssued())
}

func TestTask_RecordFailureReturnsToPending(t *testing.T) {
	task := NewTask("t4", "app", "https://example.com/app.pkg", "/tmp/app.pkg", "abc")

	task.beginAttempt()
	require.Equal(t, StateInProgress, task.State())

	attemptErr := errors.New("connection reset")
	task.recordFailure(attemptErr)

	require.Equal(t, StatePending, task.State())
	require.Equal(t, 1, task.Retries())
	require.Equal(t, attemptErr, task.LastErr())
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StatePending, "pending"},
		{StateInProgress, "in_progress"},
		{StateCompleted, "completed"},
		{StateCancelled, "cancelled"},
		{StateError, "error"},
		{State(42), "State(42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestTask_SnapshotCarriesLastError(t *testing.T) {
	task := NewTask("t5", "app", "https://example.com/app.pkg", "/tmp/app.pkg", "abc")

	task.fail(errors.New("boom"))

	snap := task.Snapshot()
	require.Equal(t, StateError, snap.State)
	require.Equal(t, "boom", snap.Err)
	require.Equal(t, "boom", snap.Description)
}
