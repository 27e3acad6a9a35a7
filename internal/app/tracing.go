package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/kudos/internal/domain/model"
	"github.com/okian/kudos/pkg/metrics"
)

const tracerName = "github.com/okian/kudos/internal/app"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// begin opens a span for op. The returned func ends it, recording *errp
// as the outcome.
func begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(errp *error)) {
	ctx, span := tracer().Start(ctx, "kudos."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			err := *errp
			kind := errorKind(err)
			metrics.RecordEngineError(op, kind)
			span.SetAttributes(attribute.String("error.kind", kind))
			// Client errors leave the span status unset.
			if !errors.Is(err, model.ErrInvalidArgument) && !errors.Is(err, model.ErrNotFound) {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
	}
}

func userAttr(userID string) attribute.KeyValue {
	return attribute.String("kudos.user_id", userID)
}
