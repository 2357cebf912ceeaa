package update

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/italolelis/update_fetcher/internal/fetch"
	"github.com/italolelis/update_fetcher/internal/logctx"
)

// Policy fixes the retry behaviour of the orchestrator.
type Policy struct {
	MaxAttempts  int           // total attempts including the first
	RetryDelay   time.Duration // wait before attempts 2..N
	PollInterval time.Duration // cancellation poll while a transfer is in flight
}

// DefaultPolicy returns the production retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		RetryDelay:   5 * time.Second,
		PollInterval: 900 * time.Millisecond,
	}
}

// Transfer is one attempt's byte transfer. *fetch.Fetcher satisfies it;
// tests substitute fakes.
type Transfer interface {
	Start(ctx context.Context) error
	Cancel()
	Abort(err error)
	Done() <-chan fetch.Result
}

// TransferFactory produces a fresh Transfer per attempt; a Transfer carries
// at most one transfer in its lifetime.
type TransferFactory func() Transfer

// Watcher observes the transfer currently in flight, typically a
// connectivity monitor that aborts it when the network drops.
type Watcher interface {
	Bind(t Transfer)
	Unbind()
}

// Verifier runs the acceptance checks on a completed download.
// *verify.Suite satisfies it.
type Verifier interface {
	VerifyIntegrity(path, expectedHex string) error
	VerifyTrust(path string) error
}

// Orchestrator sequences transfer attempts, absorbs transient failures up
// to the attempt cap, observes cancellation, and accepts the artifact only
// after integrity and trust verification both pass.
type Orchestrator struct {
	task        *Task
	newTransfer TransferFactory
	verifier    Verifier
	policy      Policy
	watcher     Watcher // nil when no connectivity monitoring is wired
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPolicy overrides the default retry policy.
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithWatcher binds a connectivity watcher to each in-flight transfer.
func WithWatcher(w Watcher) Option {
	return func(o *Orchestrator) { o.watcher = w }
}

// NewOrchestrator creates an orchestrator for one task. The factory is only
// consulted when the task names a source URL; a task without one skips the
// transfer entirely and goes straight to verification.
func NewOrchestrator(task *Task, newTransfer TransferFactory, verifier Verifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		task:        task,
		newTransfer: newTransfer,
		verifier:    verifier,
		policy:      DefaultPolicy(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Task returns the task this orchestrator owns.
func (o *Orchestrator) Task() *Task {
	return o.task
}

// Run drives the task to a terminal state. It blocks on the calling
// goroutine; the caller decides where that goroutine lives. A nil return
// means the task completed and the artifact was verified.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx).With("task_id", o.task.ID, "artifact", o.task.Artifact)

	if o.task.SourceURL == "" {
		logger.Info("artifact already present locally, skipping transfer")

		return o.verifyAndAccept(ctx)
	}

	var lastErr error

	for attempt := 1; attempt <= o.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(o.policy.RetryDelay):
			case <-ctx.Done():
				o.task.cancelled()

				return ErrCancelled
			}
		}

		if o.task.CancelRequested() {
			o.task.cancelled()

			return ErrCancelled
		}

		res := o.runAttempt(ctx)

		switch res.Outcome {
		case fetch.OutcomeCancelled:
			logger.Info("download cancelled", "attempt", attempt)
			o.task.cancelled()

			return ErrCancelled

		case fetch.OutcomeFailed:
			// Failures injected by the connectivity monitor arrive here
			// too and are treated like any other transfer failure.
			lastErr = res.Err
			o.task.recordFailure(res.Err)
			logger.Warn("transfer attempt failed",
				"attempt", attempt,
				"max_attempts", o.policy.MaxAttempts,
				"err", res.Err,
			)

		case fetch.OutcomeSuccess:
			logger.Info("transfer succeeded", "attempt", attempt)

			return o.verifyAndAccept(ctx)
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}

	err := &RetriesExhaustedError{Attempts: o.policy.MaxAttempts, Err: lastErr}
	o.task.fail(err)

	return err
}

// runAttempt starts one transfer and polls for cancellation at the fixed
// interval until the transfer reports a result. The cancel signal is issued
// at most once per attempt.
func (o *Orchestrator) runAttempt(ctx context.Context) fetch.Result {
	o.task.beginAttempt()

	t := o.newTransfer()
	if err := t.Start(ctx); err != nil {
		return fetch.Result{Outcome: fetch.OutcomeFailed, Err: err}
	}

	if o.watcher != nil {
		o.watcher.Bind(t)
		defer o.watcher.Unbind()
	}

	ticker := time.NewTicker(o.policy.PollInterval)
	defer ticker.Stop()

	ctxDone := ctx.Done()

	for {
		select {
		case res := <-t.Done():
			return res

		case <-ctxDone:
			// Host shutdown is treated as a cancellation request; the
			// transfer acknowledges through its completion path.
			o.task.RequestCancel()

			ctxDone = nil

		case <-ticker.C:
		}

		if o.task.CancelRequested() && o.task.markCancelIssued() {
			t.Cancel()
			o.task.setDescription("download cancelled")
		}
	}
}

// verifyAndAccept runs the acceptance checks. Any failure here is fatal and
// never retried: a bad checksum or signature means a corrupted or untrusted
// artifact, not a transient network condition. The file is left on disk for
// diagnostics either way.
func (o *Orchestrator) verifyAndAccept(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx).With("task_id", o.task.ID, "artifact", o.task.Artifact)

	o.task.setDescription("verifying " + o.task.Artifact)

	if _, err := os.Stat(o.task.Destination); err != nil {
		missing := &ArtifactMissingError{Path: o.task.Destination, Err: err}
		o.task.fail(missing)

		return missing
	}

	if err := o.verifier.VerifyIntegrity(o.task.Destination, o.task.ExpectedChecksum); err != nil {
		logger.Error("integrity verification failed", "err", err)
		o.task.fail(err)

		return err
	}

	if err := o.verifier.VerifyTrust(o.task.Destination); err != nil {
		logger.Error("trust verification failed", "err", err)
		o.task.fail(err)

		return err
	}

	o.task.complete()
	logger.Info("update accepted", "target", o.task.Destination)

	return nil
}
