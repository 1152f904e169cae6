package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record matches the requested id.
var ErrNotFound = errors.New("operation not found")

// OperationRecord is the stored history of one download or conversion.
type OperationRecord struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Source        string    `json:"source"`
	Format        string    `json:"format,omitempty"`
	Resolution    string    `json:"resolution,omitempty"`
	Destination   string    `json:"destination,omitempty"`
	Playlist      bool      `json:"playlist"`
	State         string    `json:"state"`
	Message       string    `json:"message,omitempty"`
	ArtifactPath  string    `json:"artifactPath,omitempty"`
	ArtifactCount int       `json:"artifactCount,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	EndedAt       time.Time `json:"endedAt,omitempty"`
}

// Finished reports whether the operation reached a terminal state.
func (r OperationRecord) Finished() bool {
	return !r.EndedAt.IsZero()
}

type OperationReadRepository interface {
	GetOperation(ctx context.Context, id string) (OperationRecord, error)
	// ListOperations returns the most recent operations first.
	ListOperations(ctx context.Context, limit int) ([]OperationRecord, error)
}

type OperationWriteRepository interface {
	// SaveOperation inserts the record or replaces the one with the same id.
	SaveOperation(ctx context.Context, rec OperationRecord) error
	// DeleteFinishedBefore removes finished operations that ended before t.
	DeleteFinishedBefore(ctx context.Context, t time.Time) (int64, error)
}

type OperationRepository interface {
	OperationReadRepository
	OperationWriteRepository
}
