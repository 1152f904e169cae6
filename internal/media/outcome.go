package media

// Outcome is the terminal classification of an operation.
type Outcome struct {
	OperationID   string `json:"operationId,omitempty"`
	Success       bool   `json:"success"`
	State         State  `json:"state"`
	Message       string `json:"message"`
	ArtifactPath  string `json:"artifactPath,omitempty"`
	ArtifactCount int    `json:"artifactCount,omitempty"`
	Label         string `json:"label,omitempty"`

	// Err carries the underlying cause for logging; it never leaves the process.
	Err error `json:"-"`
}

// ErroredOutcome builds the outcome of an operation that could not be supervised.
func ErroredOutcome(message string, err error) Outcome {
	return Outcome{
		State:   StateErrored,
		Message: message,
		Err:     err,
	}
}
