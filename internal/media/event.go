package media

import "time"

// EventKind classifies a progress event.
type EventKind string

const (
	EventPercent       EventKind = "percent"
	EventStatusLine    EventKind = "status_line"
	EventDurationKnown EventKind = "duration_known"
)

// ProgressEvent is a single piece of progress extracted from tool output.
type ProgressEvent struct {
	OperationID string        `json:"operationId"`
	Kind        EventKind     `json:"kind"`
	Payload     string        `json:"payload"`
	Duration    time.Duration `json:"duration,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}
