package operation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/progress"
)

const (
	reasonTimeout     = "timeout"
	reasonCancelled   = "cancelled"
	reasonStreamError = "stream_error"
)

// pipeline reads both output streams of a process and feeds every line
// through the job's parser, in arrival order, to the publisher.
type pipeline struct {
	// readErr receives a reader's error as soon as it happens, while the other
	// stream may still be open.
	readErr chan error
	aggDone chan struct{}
	aggErr  error // only valid once aggDone is closed
}

func (c *Coordinator) startPipeline(ctx context.Context, j *job, proc Process) *pipeline {
	logger := logctx.LoggerFromContext(ctx)

	p := &pipeline{
		readErr: make(chan error, 2),
		aggDone: make(chan struct{}),
	}

	lines := make(chan progress.Line, lineBuffer)

	// Readers stop on EOF or when the process is closed, never on ctx.
	readCtx := context.WithoutCancel(ctx)

	var g errgroup.Group

	read := func(r io.Reader, stream progress.Stream) func() error {
		return func() error {
			err := progress.ReadLines(readCtx, r, stream, lines)
			if err != nil {
				p.readErr <- err
			}

			return err
		}
	}

	g.Go(read(proc.Stdout(), progress.Stdout))
	g.Go(read(proc.Stderr(), progress.Stderr))

	go func() {
		_ = g.Wait()
		close(lines)
	}()

	go func() {
		defer close(p.aggDone)
		defer func() {
			if r := recover(); r != nil {
				p.aggErr = fmt.Errorf("panic while parsing output: %v", r)

				go func() {
					for range lines {
					}
				}()
			}
		}()

		for line := range lines {
			logger.DebugContext(ctx, "tool output", "stream", line.Stream, "line", line.Text)

			for _, ev := range j.parser.Parse(line) {
				c.publisher.Publish(ctx, ev)
			}
		}
	}()

	return p
}

func (c *Coordinator) supervise(ctx context.Context, j *job) (outcome media.Outcome) {
	logger := logctx.LoggerFromContext(ctx)
	executable := filepath.Base(j.spec.Executable)

	defer func() {
		if r := recover(); r != nil {
			outcome = c.errored(ctx, j, &media.UnexpectedError{Stage: "supervise", Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	proc, err := c.starter.Start(ctx, j.spec)
	if err != nil {
		c.telemetry.RecordProcessSpawn(ctx, executable, "error")
		return c.errored(ctx, j, err)
	}

	c.telemetry.RecordProcessSpawn(ctx, executable, "success")

	defer func() {
		if err := proc.Close(); err != nil {
			logger.DebugContext(ctx, "failed to close process", "err", err)
		}
	}()

	if err := j.op.Transition(media.StateRunning); err != nil {
		return c.errored(ctx, j, &media.UnexpectedError{Stage: "supervise", Err: err})
	}

	c.save(ctx, j.op, media.Outcome{})
	logger.InfoContext(ctx, "operation running", "executable", j.spec.Executable, "args", j.spec.Args)

	p := c.startPipeline(ctx, j, proc)

	var timeout <-chan time.Time
	if j.spec.Timeout > 0 {
		timer := time.NewTimer(j.spec.Timeout)
		defer timer.Stop()

		timeout = timer.C
	}

	for {
		select {
		case <-proc.Done():
			// an expired timer wins over an exit observed at the same time
			select {
			case <-timeout:
				return c.timedOut(ctx, j, proc, p)
			default:
			}

			return c.exited(ctx, j, proc, p)

		case <-timeout:
			return c.timedOut(ctx, j, proc, p)

		case <-ctx.Done():
			c.stop(ctx, j, proc, p, reasonCancelled)

			err := context.Cause(ctx)
			if !errors.Is(err, media.ErrCancelled) {
				err = fmt.Errorf("%w: %w", media.ErrCancelled, err)
			}

			return media.ErroredOutcome(j.noun+" cancelled.", err)

		case err := <-p.readErr:
			c.stop(ctx, j, proc, p, reasonStreamError)
			return c.errored(ctx, j, &media.UnexpectedError{Stage: "read_output", Err: err})
		}
	}
}

func (c *Coordinator) timedOut(ctx context.Context, j *job, proc Process, p *pipeline) media.Outcome {
	c.stop(ctx, j, proc, p, reasonTimeout)

	return media.Outcome{
		State:   media.StateTimedOut,
		Message: fmt.Sprintf("%s timed out after %s.", j.noun, j.spec.Timeout),
		Err:     &media.TimeoutError{Executable: j.spec.Executable, After: j.spec.Timeout},
	}
}

// exited classifies a process that exited on its own.
func (c *Coordinator) exited(ctx context.Context, j *job, proc Process, p *pipeline) media.Outcome {
	if !c.await(ctx, p.aggDone, "output drain") {
		return c.classify(ctx, j, proc)
	}

	if p.aggErr != nil {
		return c.errored(ctx, j, &media.UnexpectedError{Stage: "parse_output", Err: p.aggErr})
	}

	select {
	case err := <-p.readErr:
		return c.errored(ctx, j, &media.UnexpectedError{Stage: "read_output", Err: err})
	default:
	}

	return c.classify(ctx, j, proc)
}

func (c *Coordinator) classify(ctx context.Context, j *job, proc Process) media.Outcome {
	if err := proc.Err(); err != nil {
		return c.errored(ctx, j, &media.UnexpectedError{Stage: "wait", Err: err})
	}

	code := proc.ExitCode()

	outcome := j.classify(ctx, code)
	if outcome.State == media.StateFailed {
		outcome.Err = &media.ProcessFailure{Executable: j.spec.Executable, ExitCode: code}
	}

	return outcome
}

// stop terminates the process once and waits, bounded, for it and its output
// to wind down.
func (c *Coordinator) stop(ctx context.Context, j *job, proc Process, p *pipeline, reason string) {
	logger := logctx.LoggerFromContext(ctx)

	if err := proc.Terminate(); err != nil {
		logger.WarnContext(ctx, "failed to terminate process", "err", err, "reason", reason)
	}

	c.telemetry.RecordProcessTermination(ctx, filepath.Base(j.spec.Executable), reason)

	c.await(ctx, proc.Done(), "process exit")

	if err := proc.Close(); err != nil {
		logger.DebugContext(ctx, "failed to close process", "err", err)
	}

	c.await(ctx, p.aggDone, "output drain")
}

// await waits up to the drain timeout for done. ctx is only used for logging;
// a cancelled operation still gets its full drain window.
func (c *Coordinator) await(ctx context.Context, done <-chan struct{}, what string) bool {
	timer := time.NewTimer(c.drainTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "gave up waiting", "for", what, "after", c.drainTimeout)
		c.telemetry.RecordSystemError(ctx, "coordinator", "drain_timeout")

		return false
	}
}
