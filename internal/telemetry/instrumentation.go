package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Metric attributes must stay bounded: kinds, states, executables and
// component names are fine. Operation ids, URLs and file paths belong in logs
// and span events, never in metric or span attributes.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation wraps fn in a span named operationName.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDBOperation(ctx, operation, status, time.Since(start))

	return err
}

// InstrumentMediaOperation traces one download or conversion and keeps the
// active operation gauge up to date while fn runs. fn reports the terminal
// state, which is recorded alongside the duration.
func (t *Telemetry) InstrumentMediaOperation(ctx context.Context, kind string, fn func(ctx context.Context) string) string {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.AddActiveOperations(ctx, kind, 1)
	defer t.AddActiveOperations(ctx, kind, -1)

	var state string

	_ = t.InstrumentOperation(ctx, kind, "coordinator", func(ctx context.Context) error {
		state = fn(ctx)

		trace.SpanFromContext(ctx).SetAttributes(attribute.String("operation.state", state))

		return nil
	})

	t.RecordOperation(ctx, kind, state, time.Since(start))

	return state
}
