// Package operation runs download and conversion requests end to end: it
// builds the tool invocation, supervises the process, streams its progress and
// classifies the result.
package operation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/italolelis/media_downloader/internal/invocation"
	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/progress"
	"github.com/italolelis/media_downloader/internal/result"
	"github.com/italolelis/media_downloader/internal/storage"
	"github.com/italolelis/media_downloader/internal/telemetry"
)

const (
	// DefaultDrainTimeout bounds how long the coordinator waits for a process
	// and its output after the decision to stop it, or after it exited.
	DefaultDrainTimeout = 10 * time.Second

	finishedBuffer = 32
	lineBuffer     = 64
)

// ErrUnknownOperation is returned by Cancel when no running operation has the id.
var ErrUnknownOperation = errors.New("no running operation with that id")

// Finished is emitted on OnOperationFinished for every terminal operation.
type Finished struct {
	Operation media.Operation
	Outcome   media.Outcome
}

// Coordinator drives operations from request to outcome.
type Coordinator struct {
	builder   *invocation.Builder
	starter   Starter
	publisher Publisher
	history   storage.OperationWriteRepository
	telemetry *telemetry.Telemetry

	drainTimeout time.Duration

	mu     sync.Mutex
	active map[string]context.CancelCauseFunc

	// OnOperationFinished receives every finished operation. Sends never
	// block; when nobody keeps up, notifications are dropped.
	OnOperationFinished chan Finished
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithHistory records every operation in repo.
func WithHistory(repo storage.OperationWriteRepository) Option {
	return func(c *Coordinator) {
		c.history = repo
	}
}

// WithTelemetry instruments operations.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(c *Coordinator) {
		if tel != nil {
			c.telemetry = tel
		}
	}
}

// WithDrainTimeout overrides DefaultDrainTimeout.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.drainTimeout = d
		}
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(builder *invocation.Builder, starter Starter, publisher Publisher, opts ...Option) *Coordinator {
	c := &Coordinator{
		builder:             builder,
		starter:             starter,
		publisher:           publisher,
		telemetry:           &telemetry.Telemetry{},
		drainTimeout:        DefaultDrainTimeout,
		active:              make(map[string]context.CancelCauseFunc),
		OnOperationFinished: make(chan Finished, finishedBuffer),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// job is everything execute needs to run one operation.
type job struct {
	op       *media.Operation
	spec     invocation.Spec
	parser   progress.Parser
	noun     string // "Download" or "Conversion", used in messages
	errorMsg string // prefix of errored messages
	classify func(ctx context.Context, exitCode int) media.Outcome
}

// Download fetches req.URL with the download tool and blocks until the
// operation reaches a terminal state. Invalid requests are rejected before
// anything is launched.
func (c *Coordinator) Download(ctx context.Context, req media.DownloadRequest) media.Outcome {
	if err := req.Validate(); err != nil {
		return rejected(err)
	}

	req = req.WithDefaults()

	op := media.NewOperation(media.KindDownload, req.URL)
	op.Format = req.Format
	op.Resolution = req.Resolution
	op.Destination = req.Destination
	op.Playlist = invocation.IsPlaylist(req.URL)

	j := &job{
		op:       op,
		parser:   progress.NewDownloadParser(op.ID),
		noun:     "Download",
		errorMsg: "An error occurred",
	}

	spec, err := c.builder.Download(req)
	if err != nil {
		return c.finish(ctx, j, c.errored(ctx, j, &media.UnexpectedError{Stage: "prepare", Err: err}))
	}

	j.spec = spec
	op.Destination = spec.Dir

	before, err := result.Snapshot(spec.Dir)
	if err != nil {
		return c.finish(ctx, j, c.errored(ctx, j, &media.UnexpectedError{Stage: "prepare", Err: err}))
	}

	j.classify = func(ctx context.Context, exitCode int) media.Outcome {
		if exitCode != 0 {
			return result.ClassifyDownload(exitCode, spec.Dir, nil)
		}

		artifacts, err := result.NewArtifacts(spec.Dir, before)
		if err != nil {
			return c.errored(ctx, j, &media.UnexpectedError{Stage: "classify", Err: err})
		}

		return result.ClassifyDownload(exitCode, spec.Dir, artifacts)
	}

	return c.execute(ctx, j)
}

// Convert transcodes req.InputFilePath with the conversion tool and blocks
// until the operation reaches a terminal state.
func (c *Coordinator) Convert(ctx context.Context, req media.ConvertRequest) media.Outcome {
	if err := req.Validate(); err != nil {
		return rejected(err)
	}

	op := media.NewOperation(media.KindConvert, req.InputFilePath)
	op.Format = req.OutputFormat

	j := &job{
		op:       op,
		parser:   progress.NewConvertParser(op.ID),
		noun:     "Conversion",
		errorMsg: "An error occurred during conversion",
	}

	spec, err := c.builder.Convert(req)
	if err != nil {
		return c.finish(ctx, j, c.errored(ctx, j, &media.UnexpectedError{Stage: "prepare", Err: err}))
	}

	j.spec = spec
	op.Destination = spec.Output

	j.classify = func(_ context.Context, exitCode int) media.Outcome {
		return result.ClassifyConvert(exitCode, spec.Output)
	}

	return c.execute(ctx, j)
}

func rejected(err error) media.Outcome {
	msg := err.Error()

	var vErr *media.ValidationError
	if errors.As(err, &vErr) {
		msg = vErr.Message
	}

	return media.ErroredOutcome(msg, err)
}

// Cancel stops a running operation. Its outcome becomes errored with
// media.ErrCancelled.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	cancel, ok := c.active[id]
	c.mu.Unlock()

	if !ok {
		return ErrUnknownOperation
	}

	cancel(media.ErrCancelled)

	return nil
}

// CancelAll stops every running operation.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cancel := range c.active {
		cancel(media.ErrCancelled)
	}
}

// Active returns the ids of the running operations.
func (c *Coordinator) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}

	return ids
}

func (c *Coordinator) register(id string, cancel context.CancelCauseFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active[id] = cancel
}

func (c *Coordinator) unregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.active, id)
}

func (c *Coordinator) execute(ctx context.Context, j *job) media.Outcome {
	ctx = logctx.WithOperationID(ctx, j.op.ID)
	ctx = logctx.WithLogger(ctx, logctx.LoggerFromContext(ctx).With("kind", j.op.Kind, "source", j.op.Source))

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c.register(j.op.ID, cancel)
	defer c.unregister(j.op.ID)

	c.save(ctx, j.op, media.Outcome{})

	var outcome media.Outcome

	c.telemetry.InstrumentMediaOperation(ctx, string(j.op.Kind), func(ctx context.Context) string {
		outcome = c.supervise(ctx, j)
		return outcome.State.String()
	})

	return c.finish(ctx, j, outcome)
}

// finish moves the operation to the outcome's state, records it and
// announces the final message.
func (c *Coordinator) finish(ctx context.Context, j *job, outcome media.Outcome) media.Outcome {
	ctx = context.WithoutCancel(ctx)
	logger := logctx.LoggerFromContext(ctx)

	if err := j.op.Transition(outcome.State); err != nil {
		logger.ErrorContext(ctx, "operation state change rejected", "err", err)
		c.telemetry.RecordSystemError(ctx, "coordinator", "invalid_transition")
	}

	outcome.OperationID = j.op.ID

	c.save(ctx, j.op, outcome)

	c.publisher.Publish(ctx, media.ProgressEvent{
		OperationID: j.op.ID,
		Kind:        media.EventStatusLine,
		Payload:     outcome.Message,
		Timestamp:   time.Now(),
	})

	attrs := []any{"state", outcome.State, "elapsed", j.op.Elapsed().Round(time.Millisecond), "message", outcome.Message}
	if outcome.Err != nil {
		attrs = append(attrs, "err", outcome.Err)
	}

	switch outcome.State {
	case media.StateSucceeded:
		logger.InfoContext(ctx, "operation finished", attrs...)
	case media.StateErrored:
		logger.ErrorContext(ctx, "operation finished", attrs...)
	default:
		logger.WarnContext(ctx, "operation finished", attrs...)
	}

	select {
	case c.OnOperationFinished <- Finished{Operation: *j.op, Outcome: outcome}:
	default:
		logger.DebugContext(ctx, "finished operation notification dropped")
	}

	return outcome
}

func (c *Coordinator) errored(ctx context.Context, j *job, err error) media.Outcome {
	c.telemetry.RecordSystemError(ctx, "coordinator", errorType(err))

	return media.ErroredOutcome(fmt.Sprintf("%s: %s", j.errorMsg, err), err)
}

func errorType(err error) string {
	var (
		spawnErr      *media.SpawnError
		unexpectedErr *media.UnexpectedError
	)

	switch {
	case errors.As(err, &spawnErr):
		return "spawn"
	case errors.Is(err, media.ErrCancelled):
		return "cancelled"
	case errors.As(err, &unexpectedErr):
		return unexpectedErr.Stage
	default:
		return "unknown"
	}
}

func (c *Coordinator) save(ctx context.Context, op *media.Operation, outcome media.Outcome) {
	if c.history == nil {
		return
	}

	rec := storage.OperationRecord{
		ID:            op.ID,
		Kind:          string(op.Kind),
		Source:        op.Source,
		Format:        op.Format,
		Resolution:    op.Resolution,
		Destination:   op.Destination,
		Playlist:      op.Playlist,
		State:         op.State.String(),
		Message:       outcome.Message,
		ArtifactPath:  outcome.ArtifactPath,
		ArtifactCount: outcome.ArtifactCount,
		StartedAt:     op.StartedAt,
		EndedAt:       op.EndedAt,
	}

	if err := c.history.SaveOperation(context.WithoutCancel(ctx), rec); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to record operation", "err", err)
	}
}
