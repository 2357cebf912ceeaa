// Package fetch performs the byte transfer of a single update artifact.
// It knows nothing about checksums or signatures; it downloads bytes to a
// destination path and reports how the transfer ended.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/italolelis/update_fetcher/internal/fetch/progress"
	"github.com/italolelis/update_fetcher/internal/logctx"
)

const (
	dirPerm = 0755

	// progressInterval is how many bytes pass between progress reports.
	progressInterval = int64(256 * 1024)
)

// Outcome classifies how a transfer ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is delivered on the fetcher's done channel exactly once per transfer.
type Result struct {
	Outcome Outcome
	Err     error // nil unless Outcome is OutcomeFailed
}

// ProgressFunc receives cumulative bytes received and the total byte count.
// Total is -1 when the server did not report a content length.
type ProgressFunc func(received, total int64)

// Fetcher transfers one artifact from a source URL to a destination path.
// A Fetcher instance supports at most one transfer; starting a second
// transfer on the same instance is a caller error.
type Fetcher struct {
	client     *http.Client
	source     string
	dest       string
	onProgress ProgressFunc

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	abortErr error

	done chan Result
}

// NewFetcher creates a fetcher for a single transfer. The client is typically
// an authenticated oauth2 client; pass nil to use http.DefaultClient.
func NewFetcher(client *http.Client, source, dest string, onProgress ProgressFunc) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	return &Fetcher{
		client:     client,
		source:     source,
		dest:       dest,
		onProgress: onProgress,
		done:       make(chan Result, 1),
	}
}

// Done returns the channel on which the transfer result is delivered.
// The channel receives exactly one Result per started transfer.
func (f *Fetcher) Done() <-chan Result {
	return f.done
}

// Start begins the transfer asynchronously. The result arrives on Done().
func (f *Fetcher) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return errors.New("fetch: transfer already started on this fetcher")
	}

	f.started = true

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	go f.run(ctx)

	return nil
}

// Cancel cooperatively terminates an in-flight transfer. The transfer is
// reported as OutcomeCancelled. Safe to call multiple times and before Start.
func (f *Fetcher) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
}

// Abort terminates an in-flight transfer on behalf of an external condition
// such as connectivity loss. Unlike Cancel, the transfer is reported as
// OutcomeFailed carrying err, which keeps the failure retryable.
func (f *Fetcher) Abort(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.abortErr == nil {
		f.abortErr = err
	}

	if f.cancel != nil {
		f.cancel()
	}
}

func (f *Fetcher) run(ctx context.Context) {
	err := f.transfer(ctx)
	if err == nil {
		f.done <- Result{Outcome: OutcomeSuccess}

		return
	}

	// An interrupted transfer surfaces as a context error from the HTTP
	// stack or the copy loop. Whether that is a user cancellation or an
	// injected failure depends on which entry point fired the context.
	if ctx.Err() != nil {
		f.mu.Lock()
		abortErr := f.abortErr
		f.mu.Unlock()

		if abortErr != nil {
			f.done <- Result{Outcome: OutcomeFailed, Err: abortErr}

			return
		}

		f.done <- Result{Outcome: OutcomeCancelled}

		return
	}

	f.done <- Result{Outcome: OutcomeFailed, Err: err}
}

func (f *Fetcher) transfer(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.source, nil)
	if err != nil {
		return &TransientError{Operation: "request", Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &TransientError{Operation: "request", Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransientError{Operation: "request", StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(f.dest), dirPerm); err != nil {
		return &DestinationError{Path: f.dest, Err: err}
	}

	out, err := os.Create(f.dest)
	if err != nil {
		return &DestinationError{Path: f.dest, Err: err}
	}

	defer out.Close()

	total := resp.ContentLength
	pr := progress.NewReader(resp.Body, total, progressInterval, f.onProgress)

	if _, err := io.Copy(out, pr); err != nil {
		return &TransientError{Operation: "copy", Err: err}
	}

	if err := out.Sync(); err != nil {
		return &DestinationError{Path: f.dest, Err: err}
	}

	logger.Debug("transfer finished", "source", f.source, "target", f.dest)

	return nil
}
