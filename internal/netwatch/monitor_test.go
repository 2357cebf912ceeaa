package netwatch

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/update_fetcher/internal/fetch"
	"github.com/stretchr/testify/require"
)

// recordingTransfer implements update.Transfer and records abort calls.
type recordingTransfer struct {
	mu     sync.Mutex
	aborts []error
}

func (r *recordingTransfer) Start(ctx context.Context) error { return nil }

func (r *recordingTransfer) Cancel() {}

func (r *recordingTransfer) Abort(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.aborts = append(r.aborts, err)
}

func (r *recordingTransfer) Done() <-chan fetch.Result { return nil }

func (r *recordingTransfer) Aborts() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]error(nil), r.aborts...)
}

func TestMonitor_LossAbortsBoundTransfer(t *testing.T) {
	m := NewMonitor()
	tr := &recordingTransfer{}

	m.Bind(tr)
	m.SetAvailable(false)

	aborts := tr.Aborts()
	require.Len(t, aborts, 1)
	require.ErrorIs(t, aborts[0], ErrConnectivityLost)

	var transient *fetch.TransientError
	require.ErrorAs(t, aborts[0], &transient)
	require.Equal(t, "connectivity", transient.Operation)
}

func TestMonitor_OnlyTheEdgeAborts(t *testing.T) {
	m := NewMonitor()
	tr := &recordingTransfer{}
	m.Bind(tr)

	// Repeated loss reports collapse into one abort.
	m.SetAvailable(false)
	m.SetAvailable(false)
	require.Len(t, tr.Aborts(), 1)

	// Recovery and a second loss is a new edge.
	m.SetAvailable(true)
	m.SetAvailable(false)
	require.Len(t, tr.Aborts(), 2)
}

func TestMonitor_NoTransferBound(t *testing.T) {
	m := NewMonitor()

	m.SetAvailable(false)
	require.False(t, m.Available())

	m.SetAvailable(true)
	require.True(t, m.Available())
}

func TestMonitor_UnboundTransferIsLeftAlone(t *testing.T) {
	m := NewMonitor()
	tr := &recordingTransfer{}

	m.Bind(tr)
	m.Unbind()
	m.SetAvailable(false)

	require.Empty(t, tr.Aborts())
}

func TestMonitor_RecoveryDoesNotAbort(t *testing.T) {
	m := NewMonitor()
	m.SetAvailable(false)

	tr := &recordingTransfer{}
	m.Bind(tr)

	m.SetAvailable(true)
	require.Empty(t, tr.Aborts())
	require.True(t, m.Available())
}

func TestMonitor_WatchFeedsTransitions(t *testing.T) {
	m := NewMonitor()

	var mu sync.Mutex
	up := true
	probe := func() bool {
		mu.Lock()
		defer mu.Unlock()

		return up
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Watch(ctx, time.Millisecond, probe)
		close(done)
	}()

	mu.Lock()
	up = false
	mu.Unlock()

	require.Eventually(t, func() bool { return !m.Available() }, time.Second, time.Millisecond)

	mu.Lock()
	up = true
	mu.Unlock()

	require.Eventually(t, m.Available, time.Second, time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on context cancellation")
	}
}

func TestDialProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	probe := DialProbe(ln.Addr().String(), time.Second)
	require.True(t, probe())

	ln.Close()
	require.False(t, probe())
}
