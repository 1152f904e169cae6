package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/media_downloader/internal/storage"
)

// SaveOperation upserts the record.
func (r *OperationRepository) SaveOperation(ctx context.Context, rec storage.OperationRecord) error {
	var endedAt sql.NullInt64
	if rec.Finished() {
		endedAt = sql.NullInt64{Int64: rec.EndedAt.UnixMilli(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO operations (id, kind, source, format, resolution, destination, playlist, state,
			message, artifact_path, artifact_count, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			playlist = excluded.playlist,
			destination = excluded.destination,
			message = excluded.message,
			artifact_path = excluded.artifact_path,
			artifact_count = excluded.artifact_count,
			ended_at = excluded.ended_at
	`, rec.ID, rec.Kind, rec.Source, rec.Format, rec.Resolution, rec.Destination, rec.Playlist, rec.State,
		rec.Message, rec.ArtifactPath, rec.ArtifactCount, rec.StartedAt.UnixMilli(), endedAt)
	if err != nil {
		return fmt.Errorf("failed to save operation %s: %w", rec.ID, err)
	}

	return nil
}

// DeleteFinishedBefore removes finished operations that ended before t and
// returns how many were removed. Running operations are never removed.
func (r *OperationRepository) DeleteFinishedBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM operations WHERE ended_at IS NOT NULL AND ended_at < ?`, t.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished operations: %w", err)
	}

	n, _ := res.RowsAffected()

	return n, nil
}
