package storage

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ahmad-alkadri/depot-upload/internal/storage"

// TracedStore records an OpenTelemetry span around every call to the
// wrapped store.
type TracedStore struct {
	next   ObjectStore
	tracer trace.Tracer
}

// NewTracedStore wraps next with spans from provider. Pass
// otel.GetTracerProvider() to use the globally configured provider.
func NewTracedStore(next ObjectStore, provider trace.TracerProvider) *TracedStore {
	return &TracedStore{
		next:   next,
		tracer: provider.Tracer(tracerName),
	}
}

func (t *TracedStore) Store(ctx context.Context, key string, content io.Reader, size int64, contentType string) error {
	ctx, span := t.tracer.Start(ctx, "storage.Store",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("storage.key", key),
			attribute.Int64("storage.size", size),
			attribute.String("storage.content_type", contentType),
		),
	)
	defer span.End()

	err := t.next.Store(ctx, key, content, size, contentType)
	record(span, err)
	return err
}

func (t *TracedStore) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, span := t.tracer.Start(ctx, "storage.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("storage.key", key)),
	)
	defer span.End()

	rc, err := t.next.Fetch(ctx, key)
	record(span, err)
	return rc, err
}

func record(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
