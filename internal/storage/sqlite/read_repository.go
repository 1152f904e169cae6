package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/media_downloader/internal/storage"
)

const selectColumns = `SELECT id, kind, source, format, resolution, destination, playlist, state,
	message, artifact_path, artifact_count, started_at, ended_at FROM operations`

// OperationRepository stores operation history in SQLite.
type OperationRepository struct {
	db *sql.DB
}

func NewOperationRepository(db *sql.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (storage.OperationRecord, error) {
	var (
		rec                                      storage.OperationRecord
		format, resolution, destination, message sql.NullString
		artifactPath                             sql.NullString
		startedAt                                int64
		endedAt                                  sql.NullInt64
	)

	err := s.Scan(&rec.ID, &rec.Kind, &rec.Source, &format, &resolution, &destination, &rec.Playlist,
		&rec.State, &message, &artifactPath, &rec.ArtifactCount, &startedAt, &endedAt)
	if err != nil {
		return storage.OperationRecord{}, err
	}

	rec.Format = format.String
	rec.Resolution = resolution.String
	rec.Destination = destination.String
	rec.Message = message.String
	rec.ArtifactPath = artifactPath.String
	rec.StartedAt = time.UnixMilli(startedAt)

	if endedAt.Valid {
		rec.EndedAt = time.UnixMilli(endedAt.Int64)
	}

	return rec, nil
}

// GetOperation returns the operation with the given id or storage.ErrNotFound.
func (r *OperationRepository) GetOperation(ctx context.Context, id string) (storage.OperationRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.OperationRecord{}, storage.ErrNotFound
	}

	if err != nil {
		return storage.OperationRecord{}, fmt.Errorf("failed to get operation %s: %w", id, err)
	}

	return rec, nil
}

// ListOperations returns up to limit operations, newest first.
func (r *OperationRepository) ListOperations(ctx context.Context, limit int) ([]storage.OperationRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var records []storage.OperationRecord

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}
