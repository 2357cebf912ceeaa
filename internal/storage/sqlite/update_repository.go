package sqlite

import (
	"database/sql"
	"time"

	"github.com/italolelis/update_fetcher/internal/storage"
)

type UpdateRepository struct {
	db *sql.DB
}

func NewUpdateRepository(dbConn *sql.DB) *UpdateRepository {
	return &UpdateRepository{db: dbConn}
}

func (r *UpdateRepository) GetUpdates() ([]storage.UpdateRecord, error) {
	rows, err := r.db.Query(`
		SELECT task_id, artifact, version, source_url, checksum, file_path,
			status, attempts, last_error, started_at, finished_at, locked_by
		FROM updates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []storage.UpdateRecord

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		updates = append(updates, *record)
	}

	return updates, rows.Err()
}

func (r *UpdateRepository) GetUpdate(taskID string) (*storage.UpdateRecord, error) {
	row := r.db.QueryRow(`
		SELECT task_id, artifact, version, source_url, checksum, file_path,
			status, attempts, last_error, started_at, finished_at, locked_by
		FROM updates WHERE task_id = ?`, taskID)

	return scanRecord(row)
}

// ClaimUpdate atomically records the task as 'downloading' with this
// instance as the lock owner. A version that already finished successfully
// is reported via storage.ErrAlreadyApplied; a version currently locked by
// another instance is reported as not claimed.
func (r *UpdateRepository) ClaimUpdate(rec storage.UpdateRecord, instanceID string) (bool, error) {
	var status string

	err := r.db.QueryRow(
		`SELECT status FROM updates WHERE artifact = ? AND version = ?`,
		rec.Artifact, rec.Version,
	).Scan(&status)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}

	if status == "completed" {
		return false, storage.ErrAlreadyApplied
	}

	res, err := r.db.Exec(`
		INSERT INTO updates (task_id, artifact, version, source_url, checksum, file_path, status, started_at, locked_by)
		VALUES (?, ?, ?, ?, ?, ?, 'downloading', ?, ?)
		ON CONFLICT(artifact, version) DO UPDATE SET
			task_id = excluded.task_id,
			status = 'downloading',
			started_at = excluded.started_at,
			locked_by = excluded.locked_by
		WHERE updates.status IN ('pending', 'error', 'cancelled') AND (updates.locked_by IS NULL OR updates.locked_by = '')
	`, rec.TaskID, rec.Artifact, rec.Version, rec.SourceURL, rec.Checksum, rec.FilePath,
		time.Now().Format(time.RFC3339), instanceID)
	if err != nil {
		return false, err
	}

	affected, _ := res.RowsAffected()

	return affected > 0, nil
}

// FinishUpdate records the terminal outcome and releases the lock.
func (r *UpdateRepository) FinishUpdate(taskID, status string, attempts int, lastError string) error {
	_, err := r.db.Exec(`
		UPDATE updates
		SET status = ?, attempts = ?, last_error = ?, finished_at = ?, locked_by = NULL
		WHERE task_id = ?`,
		status, attempts, lastError, time.Now().Format(time.RFC3339), taskID)

	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*storage.UpdateRecord, error) {
	var record storage.UpdateRecord

	var lastError, finishedAt, lockedBy sql.NullString

	err := row.Scan(&record.TaskID, &record.Artifact, &record.Version, &record.SourceURL,
		&record.Checksum, &record.FilePath, &record.Status, &record.Attempts,
		&lastError, &record.StartedAt, &finishedAt, &lockedBy)
	if err != nil {
		return nil, err
	}

	record.LastError = lastError.String
	record.FinishedAt = finishedAt.String
	record.LockedBy = lockedBy.String

	return &record, nil
}
