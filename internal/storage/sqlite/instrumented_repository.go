package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/update_fetcher/internal/storage"
	"github.com/italolelis/update_fetcher/internal/telemetry"
)

// InstrumentedUpdateRepository wraps UpdateRepository with telemetry.
type InstrumentedUpdateRepository struct {
	repo      *UpdateRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedUpdateRepository creates a new instrumented update repository.
func NewInstrumentedUpdateRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedUpdateRepository {
	return &InstrumentedUpdateRepository{
		repo:      NewUpdateRepository(dbConn),
		telemetry: tel,
	}
}

// GetUpdates retrieves all update records with telemetry.
func (r *InstrumentedUpdateRepository) GetUpdates() ([]storage.UpdateRecord, error) {
	var result []storage.UpdateRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "get_updates", func(ctx context.Context) error {
		result, err = r.repo.GetUpdates()

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// GetUpdate retrieves one update record with telemetry.
func (r *InstrumentedUpdateRepository) GetUpdate(taskID string) (*storage.UpdateRecord, error) {
	var result *storage.UpdateRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "get_update", func(ctx context.Context) error {
		result, err = r.repo.GetUpdate(taskID)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// ClaimUpdate claims an artifact version with telemetry.
func (r *InstrumentedUpdateRepository) ClaimUpdate(rec storage.UpdateRecord, instanceID string) (bool, error) {
	var result bool

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "claim_update", func(ctx context.Context) error {
		result, err = r.repo.ClaimUpdate(rec, instanceID)

		return err
	})

	if instrumentedErr != nil {
		return false, instrumentedErr
	}

	return result, nil
}

// FinishUpdate records a terminal outcome with telemetry.
func (r *InstrumentedUpdateRepository) FinishUpdate(taskID, status string, attempts int, lastError string) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "finish_update", func(ctx context.Context) error {
		return r.repo.FinishUpdate(taskID, status, attempts, lastError)
	})
}
