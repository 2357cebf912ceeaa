// Package manager wires the update pipeline together: it claims artifact
// versions, creates tasks, runs orchestrators, and records outcomes in the
// history repository.
package manager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/italolelis/update_fetcher/internal/fetch"
	"github.com/italolelis/update_fetcher/internal/logctx"
	"github.com/italolelis/update_fetcher/internal/manifest"
	"github.com/italolelis/update_fetcher/internal/notifier"
	"github.com/italolelis/update_fetcher/internal/storage"
	"github.com/italolelis/update_fetcher/internal/telemetry"
	"github.com/italolelis/update_fetcher/internal/update"
	"github.com/italolelis/update_fetcher/internal/verify"
)

// ErrUnknownArtifact is returned when a trigger names an artifact the
// current manifest doesn't list.
var ErrUnknownArtifact = errors.New("artifact not present in manifest")

// defaultTaskRetention is how long a finished task stays queryable through
// Status before it is pruned. The durable record lives in the repository.
const defaultTaskRetention = time.Hour

// Manager owns the set of running update tasks. Each task gets its own
// orchestrator and fetcher; nothing is shared between concurrent tasks.
type Manager struct {
	downloadDir   string
	client        *http.Client
	verifier      update.Verifier
	watcher       update.Watcher
	policy        update.Policy
	repo          storage.UpdateRepository
	notif         notifier.Notifier
	tel           *telemetry.Telemetry
	instanceID    string
	taskRetention time.Duration

	mu       sync.Mutex
	manifest *manifest.Manifest
	tasks    map[string]*update.Task
}

// Config carries the manager's collaborators; zero-value optional fields
// fall back to safe defaults.
type Config struct {
	DownloadDir string
	Client      *http.Client // authenticated HTTP client for transfers
	Verifier    update.Verifier
	Watcher     update.Watcher // optional connectivity monitor
	Policy      update.Policy
	Repo        storage.UpdateRepository
	Notifier    notifier.Notifier
	Telemetry   *telemetry.Telemetry

	// TaskRetention bounds how long terminal tasks stay in memory.
	// Zero means defaultTaskRetention.
	TaskRetention time.Duration
}

// New creates a manager. The manifest starts empty; call SetManifest or
// Refresh before triggering updates.
func New(cfg Config) *Manager {
	if cfg.Notifier == nil {
		cfg.Notifier = notifier.NopNotifier{}
	}

	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = update.DefaultPolicy()
	}

	if cfg.Telemetry == nil {
		cfg.Telemetry = &telemetry.Telemetry{}
	}

	if cfg.TaskRetention == 0 {
		cfg.TaskRetention = defaultTaskRetention
	}

	return &Manager{
		downloadDir:   cfg.DownloadDir,
		client:        cfg.Client,
		verifier:      cfg.Verifier,
		watcher:       cfg.Watcher,
		policy:        cfg.Policy,
		repo:          cfg.Repo,
		notif:         cfg.Notifier,
		tel:           cfg.Telemetry,
		instanceID:    storage.GenerateInstanceID(),
		taskRetention: cfg.TaskRetention,
		tasks:         make(map[string]*update.Task),
	}
}

// SetManifest replaces the manifest used to resolve trigger requests.
func (m *Manager) SetManifest(doc *manifest.Manifest) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.manifest = doc
}

// Refresh fetches the manifest from url and installs it.
func (m *Manager) Refresh(ctx context.Context, url string) error {
	doc, err := manifest.Fetch(ctx, m.client, url)
	if err != nil {
		return err
	}

	m.SetManifest(doc)

	return nil
}

// Latest exposes the newest manifest entry for the named artifact.
func (m *Manager) Latest(name string) (*manifest.Artifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.manifest == nil {
		return nil, false
	}

	return m.manifest.Latest(name)
}

// Trigger claims the latest version of the named artifact and starts the
// pipeline on its own goroutine. It returns the new task's ID, or
// storage.ErrAlreadyApplied when this version has already been accepted.
func (m *Manager) Trigger(ctx context.Context, name string) (string, error) {
	art, ok := m.Latest(name)
	if !ok {
		return "", ErrUnknownArtifact
	}

	taskID := uuid.New().String()
	fileName := fmt.Sprintf("%s-%s.pkg", art.Name, art.Version)
	dest := filepath.Join(m.downloadDir, fileName)

	rec := storage.UpdateRecord{
		TaskID:    taskID,
		Artifact:  art.Name,
		Version:   art.Version,
		SourceURL: art.URL,
		Checksum:  art.SHA256,
		FilePath:  fileName,
	}

	claimed, err := m.repo.ClaimUpdate(rec, m.instanceID)
	if err != nil {
		return "", err
	}

	if !claimed {
		return "", fmt.Errorf("artifact %s %s is claimed by another run", art.Name, art.Version)
	}

	task := update.NewTask(taskID, art.Name, art.URL, dest, art.SHA256)

	m.mu.Lock()
	m.tasks[taskID] = task
	m.mu.Unlock()

	// The trigger context is often request-scoped and dies as soon as the
	// caller gets its response; the task must outlive it. Keep the context
	// values (logger, trace) but detach from its cancellation.
	go m.run(context.WithoutCancel(ctx), task)

	return taskID, nil
}

// Status reports a snapshot of a known task.
func (m *Manager) Status(taskID string) (update.Snapshot, bool) {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	m.mu.Unlock()

	if !ok {
		return update.Snapshot{}, false
	}

	return task.Snapshot(), true
}

// Cancel requests cooperative cancellation of a known task. The request is
// observed at the orchestrator's next poll tick.
func (m *Manager) Cancel(taskID string) bool {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	m.mu.Unlock()

	if !ok {
		return false
	}

	task.RequestCancel()

	return true
}

// run drives one task to its terminal state and records the outcome.
func (m *Manager) run(ctx context.Context, task *update.Task) {
	logger := logctx.LoggerFromContext(ctx).With("task_id", task.ID, "artifact", task.Artifact)

	orch := update.NewOrchestrator(
		task,
		m.transferFactory(ctx, task),
		m.verifier,
		update.WithPolicy(m.policy),
		update.WithWatcher(m.watcher),
	)

	start := time.Now()

	err := m.tel.InstrumentUpdate(ctx, func(ctx context.Context) error {
		return orch.Run(ctx)
	})

	snap := task.Snapshot()
	status := snap.State.String()
	m.tel.RecordUpdate(status, time.Since(start))

	if repoErr := m.repo.FinishUpdate(task.ID, status, snap.Retries, snap.Err); repoErr != nil {
		logger.Error("failed to record update outcome", "err", repoErr)
	}

	switch {
	case err == nil:
		logger.Info("update completed", "retries", snap.Retries)
		m.notify("✅ Update completed: " + task.Artifact)
	case errors.Is(err, update.ErrCancelled):
		logger.Info("update cancelled")
		m.notify("🚫 Update cancelled: " + task.Artifact)
	default:
		logger.Error("update failed", "err", err)
		m.recordFailureKind(err)
		m.notify("❌ Update failed: " + task.Artifact + " (" + err.Error() + ")")
	}

	// The task is terminal; keep it queryable for a while, then drop it so
	// the map doesn't grow forever. History stays in the repository.
	time.AfterFunc(m.taskRetention, func() {
		m.mu.Lock()
		delete(m.tasks, task.ID)
		m.mu.Unlock()
	})
}

// transferFactory builds one fetcher per attempt; progress flows into the
// task description and the bytes counter.
func (m *Manager) transferFactory(ctx context.Context, task *update.Task) update.TransferFactory {
	logger := logctx.LoggerFromContext(ctx).With("task_id", task.ID, "artifact", task.Artifact)

	return func() update.Transfer {
		var lastReported int64

		onProgress := func(received, total int64) {
			desc := task.Progress(received, total)
			m.tel.AddBytesDownloaded(received - lastReported)
			lastReported = received

			if total > 0 {
				logger.Debug("download progress",
					"downloaded", humanize.Bytes(uint64(received)),
					"total", humanize.Bytes(uint64(total)),
					"description", desc,
				)
			} else {
				logger.Debug("download progress",
					"downloaded", humanize.Bytes(uint64(received)),
					"description", desc,
				)
			}
		}

		m.tel.RecordAttempt("started")

		return fetch.NewFetcher(m.client, task.SourceURL, task.Destination, onProgress)
	}
}

func (m *Manager) recordFailureKind(err error) {
	var (
		retriesErr   *update.RetriesExhaustedError
		artifactErr  *update.ArtifactMissingError
		checksumErr  *verify.ChecksumMismatchError
		signatureErr *verify.UntrustedSignatureError
	)

	switch {
	case errors.As(err, &retriesErr):
		m.tel.RecordSystemError("orchestrator", "retries_exhausted")
	case errors.As(err, &artifactErr):
		m.tel.RecordVerificationFailure("missing")
	case errors.As(err, &checksumErr):
		m.tel.RecordVerificationFailure("checksum")
	case errors.As(err, &signatureErr):
		m.tel.RecordVerificationFailure("signature")
	default:
		m.tel.RecordSystemError("orchestrator", "unknown")
	}
}

func (m *Manager) notify(content string) {
	// A failed notification never affects the task outcome.
	_ = m.notif.Notify(content)
}
