package media

import (
	"errors"
	"fmt"
	"time"
)

// ErrCancelled is reported when an operation is stopped before the tool exits.
var ErrCancelled = errors.New("operation cancelled")

// ValidationError represents a request missing a required field. It is raised
// before any process is launched.
type ValidationError struct {
	Field   string // Name of the offending request field
	Message string // Human-readable message returned to the caller
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request field %s: %s", e.Field, e.Message)
}

// SpawnError represents a failure to launch the external tool: the executable
// is missing, not permitted, or the OS refused to start it.
type SpawnError struct {
	Executable string // Executable that failed to start
	Reason     string // Short category: "executable not found", "permission denied", ...
	Err        error  // Underlying error, if any
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %s", e.Executable, e.Reason)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// TimeoutError represents a tool that did not exit within its allotted window.
type TimeoutError struct {
	Executable string
	After      time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s did not exit within %s", e.Executable, e.After)
}

// ProcessFailure represents a tool that exited with a non-zero code.
type ProcessFailure struct {
	Executable string
	ExitCode   int
}

func (e *ProcessFailure) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Executable, e.ExitCode)
}

// UnexpectedError wraps any other failure raised while supervising a tool,
// including stream read errors and recovered panics.
type UnexpectedError struct {
	Stage string // Where the failure happened, e.g. "read_output"
	Err   error  // Underlying error, if any
}

func (e *UnexpectedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unexpected failure during %s", e.Stage)
	}

	return fmt.Sprintf("unexpected failure during %s: %v", e.Stage, e.Err)
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}
