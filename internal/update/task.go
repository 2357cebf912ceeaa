// Package update contains the state machine that drives one artifact from
// "download requested" to "accepted": transfer with bounded retry,
// cooperative cancellation, and checksum plus trust verification.
package update

import (
	"fmt"
	"sync"
)

// progressCeiling is the highest percentage shown while bytes are still
// moving; the remaining headroom is released when verification passes.
const progressCeiling = 95

// State is the lifecycle state of a task. Transitions within one attempt
// are monotonic (Pending -> InProgress -> terminal); a retryable failure
// restarts the cycle at Pending while attempts remain.
type State int

const (
	StatePending State = iota
	StateInProgress
	StateCompleted
	StateCancelled
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is a point-in-time copy of a task's observable state, safe to
// hand to HTTP handlers and log sinks.
type Snapshot struct {
	ID          string
	Artifact    string
	State       State
	Percent     int
	Retries     int
	Description string
	Err         string
}

// Task identifies one update transfer. All mutable fields live behind one
// mutex; the poll loop, the fetcher's completion path, and the connectivity
// monitor all funnel their writes through the methods below.
type Task struct {
	ID               string
	Artifact         string // display name
	SourceURL        string // empty means the artifact is already on disk
	Destination      string
	ExpectedChecksum string // hex, either casing

	mu              sync.Mutex
	state           State
	lastErr         error
	description     string
	retries         int
	percent         int
	cancelRequested bool
	cancelIssued    bool // reset at the start of every attempt
}

// NewTask creates a task in StatePending.
func NewTask(id, artifact, sourceURL, destination, expectedChecksum string) *Task {
	return &Task{
		ID:               id,
		Artifact:         artifact,
		SourceURL:        sourceURL,
		Destination:      destination,
		ExpectedChecksum: expectedChecksum,
		state:            StatePending,
		description:      "update pending",
	}
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// LastErr returns the most recently recorded error, if any.
func (t *Task) LastErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lastErr
}

// Retries returns how many failed attempts have been absorbed so far.
func (t *Task) Retries() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.retries
}

// RequestCancel asks for cooperative cancellation. It is observed by the
// orchestrator's poll loop at the next tick; the state is never mutated
// directly from this path.
func (t *Task) RequestCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelRequested = true
}

// CancelRequested reports whether cancellation has been asked for.
func (t *Task) CancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cancelRequested
}

// markCancelIssued returns true exactly once per attempt, guaranteeing a
// single cancel signal no matter how many poll ticks observe the request.
func (t *Task) markCancelIssued() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelIssued {
		return false
	}

	t.cancelIssued = true

	return true
}

// beginAttempt transitions the task into StateInProgress and re-arms the
// per-attempt cancel latch.
func (t *Task) beginAttempt() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = StateInProgress
	t.cancelIssued = false
	t.description = "downloading " + t.Artifact
}

// recordFailure absorbs a retryable attempt failure: the error is kept,
// the retry counter advances, and the task re-enters StatePending.
func (t *Task) recordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = StatePending
	t.lastErr = err
	t.retries++
}

// fail moves the task to a terminal StateError.
func (t *Task) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = StateError
	t.lastErr = err
	t.description = err.Error()
}

// cancelled moves the task to a terminal StateCancelled.
func (t *Task) cancelled() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = StateCancelled
	t.description = "download cancelled"
}

// complete moves the task to StateCompleted and releases the progress
// headroom held back during transfer.
func (t *Task) complete() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = StateCompleted
	t.percent = 100
	t.description = "update downloaded and verified"
}

func (t *Task) setDescription(desc string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.description = desc
}

// Progress records transfer progress and returns a display description.
// The percentage is monotonic and capped below 100 while bytes are moving,
// reserving headroom for the verification steps that follow the transfer.
func (t *Task) Progress(received, total int64) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if total > 0 {
		pct := int(received * 100 / total)
		if pct > progressCeiling {
			pct = progressCeiling
		}

		if pct > t.percent {
			t.percent = pct
		}
	}

	t.description = fmt.Sprintf("downloading %s %d%%", t.Artifact, t.percent)

	return t.description
}

// Snapshot returns a consistent copy of the observable task state.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		ID:          t.ID,
		Artifact:    t.Artifact,
		State:       t.state,
		Percent:     t.percent,
		Retries:     t.retries,
		Description: t.description,
	}

	if t.lastErr != nil {
		snap.Err = t.lastErr.Error()
	}

	return snap
}
