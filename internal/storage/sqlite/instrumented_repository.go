package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/media_downloader/internal/storage"
	"github.com/italolelis/media_downloader/internal/telemetry"
)

// InstrumentedOperationRepository wraps OperationRepository with telemetry.
type InstrumentedOperationRepository struct {
	repo      *OperationRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedOperationRepository creates a new instrumented operation repository.
func NewInstrumentedOperationRepository(db *sql.DB, tel *telemetry.Telemetry) *InstrumentedOperationRepository {
	return &InstrumentedOperationRepository{
		repo:      NewOperationRepository(db),
		telemetry: tel,
	}
}

func (r *InstrumentedOperationRepository) GetOperation(ctx context.Context, id string) (storage.OperationRecord, error) {
	var rec storage.OperationRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_operation", func(ctx context.Context) error {
		var err error
		rec, err = r.repo.GetOperation(ctx, id)

		return err
	})

	return rec, err
}

func (r *InstrumentedOperationRepository) ListOperations(ctx context.Context, limit int) ([]storage.OperationRecord, error) {
	var records []storage.OperationRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_operations", func(ctx context.Context) error {
		var err error
		records, err = r.repo.ListOperations(ctx, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *InstrumentedOperationRepository) SaveOperation(ctx context.Context, rec storage.OperationRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "save_operation", func(ctx context.Context) error {
		return r.repo.SaveOperation(ctx, rec)
	})
}

func (r *InstrumentedOperationRepository) DeleteFinishedBefore(ctx context.Context, t time.Time) (int64, error) {
	var n int64

	err := r.telemetry.InstrumentDBOperation(ctx, "delete_finished_operations", func(ctx context.Context) error {
		var err error
		n, err = r.repo.DeleteFinishedBefore(ctx, t)

		return err
	})

	return n, err
}
