package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/update_fetcher/internal/logctx"
	"github.com/italolelis/update_fetcher/internal/storage"
)

// DeleteExpiredArtifacts deletes accepted artifacts older than keepDuration.
// Only completed updates are eligible: artifacts from failed or rejected
// tasks stay on disk for diagnostics.
func DeleteExpiredArtifacts(ctx context.Context, records []storage.UpdateRecord, dir string, keepDuration time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	for _, rec := range records {
		if rec.Status != "completed" {
			continue
		}

		filePath := filepath.Join(dir, rec.FilePath)

		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				continue // already deleted
			}

			logger.Error("failed to stat artifact", "file", filePath, "err", err)

			return err
		}

		finishedAt, err := time.Parse(time.RFC3339, rec.FinishedAt)
		if err != nil {
			// fallback: use file mod time
			logger.Warn("failed to parse finish time, using file mod time", "file", filePath, "err", err)

			finishedAt = info.ModTime()
		}

		if now.Sub(finishedAt) > keepDuration {
			if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
				logger.Error("failed to delete expired artifact", "file", filePath, "err", err)

				return err
			}

			logger.Info("deleted expired artifact", "file", filePath)
		}
	}

	return nil
}
