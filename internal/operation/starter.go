package operation

import (
	"context"
	"io"

	"github.com/italolelis/media_downloader/internal/invocation"
	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/process"
)

// Process is a running external tool as seen by the coordinator.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Done() <-chan struct{}
	ExitCode() int
	// Err reports a failure to collect the exit status once Done is closed.
	Err() error
	Terminate() error
	Close() error
}

// Starter launches tool invocations.
type Starter interface {
	Start(ctx context.Context, spec invocation.Spec) (Process, error)
}

// Publisher receives progress events. Publish must not block.
type Publisher interface {
	Publish(ctx context.Context, ev media.ProgressEvent) int
}

// SupervisorStarter adapts a process.Supervisor to Starter.
type SupervisorStarter struct {
	Supervisor *process.Supervisor
}

func (s SupervisorStarter) Start(ctx context.Context, spec invocation.Spec) (Process, error) {
	h, err := s.Supervisor.Start(ctx, spec)
	if err != nil {
		return nil, err
	}

	return h, nil
}
