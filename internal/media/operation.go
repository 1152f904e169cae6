package media

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of work an operation performs.
type Kind string

const (
	KindDownload Kind = "download"
	KindConvert  Kind = "convert"
)

// State is the lifecycle state of an operation.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateErrored   State = "errored"
)

// ErrInvalidTransition is returned when a state change would move an operation
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid state transition")

// IsTerminal reports whether no further transition is possible from s.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut || s == StateErrored
}

func (s State) String() string {
	return string(s)
}

// Operation identifies one download or conversion request.
type Operation struct {
	ID          string
	Kind        Kind
	Source      string
	Format      string
	Resolution  string
	Destination string
	Playlist    bool
	State       State
	StartedAt   time.Time
	EndedAt     time.Time
}

// NewOperation creates a pending operation with a fresh identifier.
func NewOperation(kind Kind, source string) *Operation {
	return &Operation{
		ID:        uuid.New().String(),
		Kind:      kind,
		Source:    source,
		State:     StatePending,
		StartedAt: time.Now(),
	}
}

// Transition moves the operation to the given state.
//
// Allowed moves are pending → running, pending → errored (failures before the
// tool is launched) and running → any terminal state. Reaching a terminal state
// records EndedAt.
func (o *Operation) Transition(to State) error {
	allowed := false

	switch o.State {
	case StatePending:
		allowed = to == StateRunning || to == StateErrored
	case StateRunning:
		allowed = to.IsTerminal()
	}

	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.State, to)
	}

	o.State = to
	if to.IsTerminal() {
		o.EndedAt = time.Now()
	}

	return nil
}

// Elapsed returns how long the operation ran, or has been running so far.
func (o *Operation) Elapsed() time.Duration {
	if o.EndedAt.IsZero() {
		return time.Since(o.StartedAt)
	}

	return o.EndedAt.Sub(o.StartedAt)
}
