// Package process launches external tools and supervises them as child
// processes whose output is streamed while they run.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/italolelis/media_downloader/internal/invocation"
	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
)

// DefaultWaitDelay bounds how long a child's output may stay open after it exited.
const DefaultWaitDelay = 5 * time.Second

// Supervisor starts tool invocations as child processes.
type Supervisor struct {
	waitDelay time.Duration
}

// NewSupervisor creates a Supervisor. A non-positive waitDelay uses DefaultWaitDelay.
func NewSupervisor(waitDelay time.Duration) *Supervisor {
	if waitDelay <= 0 {
		waitDelay = DefaultWaitDelay
	}

	return &Supervisor{waitDelay: waitDelay}
}

// Start launches spec and returns a handle to the running process.
//
// The process is not tied to ctx; callers stop it with Terminate or Close.
// Both output streams must be drained for the process to make progress.
func (s *Supervisor) Start(ctx context.Context, spec invocation.Spec) (*Handle, error) {
	logger := logctx.LoggerFromContext(ctx).With("executable", spec.Executable)

	if spec.Dir != "" {
		if _, err := os.Stat(spec.Dir); err != nil {
			return nil, &media.SpawnError{Executable: spec.Executable, Reason: "working directory unavailable", Err: err}
		}
	}

	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.WaitDelay = s.waitDelay
	configure(cmd)

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()

		return nil, spawnError(spec.Executable, err)
	}

	h := &Handle{
		cmd:      cmd,
		stdout:   stdoutR,
		stderr:   stderrR,
		done:     make(chan struct{}),
		exitCode: -1,
	}

	logger.DebugContext(ctx, "process started", "pid", cmd.Process.Pid, "args", spec.Args)

	go h.wait(stdoutW, stderrW, logger)

	return h, nil
}

func spawnError(executable string, err error) error {
	reason := "launch failed"

	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		reason = "executable not found"
	case errors.Is(err, fs.ErrPermission):
		reason = "permission denied"
	}

	return &media.SpawnError{Executable: executable, Reason: reason, Err: err}
}

// Handle is a running child process. It is owned by a single caller.
type Handle struct {
	cmd    *exec.Cmd
	stdout *io.PipeReader
	stderr *io.PipeReader

	done     chan struct{}
	exitCode int
	waitErr  error

	terminateOnce sync.Once
	terminateErr  error
	closeOnce     sync.Once
}

func (h *Handle) wait(stdoutW, stderrW *io.PipeWriter, logger *slog.Logger) {
	err := h.cmd.Wait()
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError

	switch {
	case err == nil, errors.As(err, &exitErr):
	case errors.Is(err, exec.ErrWaitDelay):
		logger.Debug("process output held open after exit", "pid", h.cmd.Process.Pid)
	default:
		h.waitErr = fmt.Errorf("failed to wait for %s: %w", h.cmd.Path, err)
	}

	stdoutW.Close()
	stderrW.Close()

	close(h.done)
}

// Pid returns the OS process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Stdout returns the standard output stream. It reaches EOF after the process exits.
func (h *Handle) Stdout() io.Reader {
	return h.stdout
}

// Stderr returns the standard error stream. It reaches EOF after the process exits.
func (h *Handle) Stderr() io.Reader {
	return h.stderr
}

// Done is closed once the process has exited and its streams are flushed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitCode returns the exit status. It is -1 until Done is closed and when the
// process was killed by a signal.
func (h *Handle) ExitCode() int {
	select {
	case <-h.done:
		return h.exitCode
	default:
		return -1
	}
}

// Err returns a failure to collect the exit status, if any. Valid after Done.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.waitErr
	default:
		return nil
	}
}

// Terminate forcibly stops the process and every process it spawned. Calling it
// more than once, or after the process exited, is a no-op.
func (h *Handle) Terminate() error {
	h.terminateOnce.Do(func() {
		select {
		case <-h.done:
			return
		default:
		}

		err := kill(h.cmd.Process)
		if err != nil && !errors.Is(err, os.ErrProcessDone) {
			h.terminateErr = fmt.Errorf("failed to terminate process %d: %w", h.cmd.Process.Pid, err)
		}
	})

	return h.terminateErr
}

// Close terminates the process if it is still running and releases its
// streams. Pending reads return io.ErrClosedPipe.
func (h *Handle) Close() error {
	var err error

	h.closeOnce.Do(func() {
		err = h.Terminate()

		h.stdout.CloseWithError(io.ErrClosedPipe)
		h.stderr.CloseWithError(io.ErrClosedPipe)
	})

	return err
}
