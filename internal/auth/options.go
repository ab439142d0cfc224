// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/holoauth/pkg/errutil"
)

const tracerName = "github.com/holomush/holoauth/internal/auth"

// Option configures the services in this package.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger *slog.Logger
	now    func() time.Time
	tracer trace.Tracer
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTracer sets the tracer. Defaults to the global OpenTelemetry provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func newServiceOptions(opts []Option) serviceOptions {
	o := serviceOptions{
		logger: slog.Default(),
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// instrument starts a span for operation and returns a func to be deferred
// with the operation's error. Internal failures are logged in full there;
// classified failures are only counted.
func (o serviceOptions) instrument(ctx context.Context, operation string) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "auth."+operation)
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		recordOperation(operation, err, time.Since(start))

		if err != nil {
			kind := KindOf(err)
			span.SetAttributes(attribute.String("auth.outcome", kind.String()))
			if kind == KindInternal {
				span.RecordError(err)
				span.SetStatus(codes.Error, "internal error")
				errutil.LogErrorContext(ctx, o.logger, "auth operation failed", err, "operation", operation)
			} else {
				o.logger.DebugContext(ctx, "auth operation rejected",
					"operation", operation,
					"kind", kind.String(),
					"code", errutil.Code(err))
			}
		} else {
			span.SetAttributes(attribute.String("auth.outcome", OutcomeSuccess))
		}
		span.End()
	}
}
