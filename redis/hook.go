package redis

import (
	"context"
	stderrors "errors"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/coordkit/observability"
)

// tracingHook opens a client span around every command and pipeline.
type tracingHook struct {
	attrs []attribute.KeyValue
}

var _ goredis.Hook = tracingHook{}

func newTracingHook(name string, db int) tracingHook {
	return tracingHook{attrs: []attribute.KeyValue{
		attribute.String("db.system", "redis"),
		attribute.String("db.connection", name),
		attribute.Int("db.redis.database_index", db),
	}}
}

func (h tracingHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return next
}

func (h tracingHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		ctx, span := h.start(ctx, "redis."+cmd.Name(), attribute.String("db.operation", cmd.Name()))
		defer span.End()

		err := next(ctx, cmd)
		h.finish(span, err)
		return err
	}
}

func (h tracingHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		ctx, span := h.start(ctx, "redis.pipeline", attribute.Int("db.redis.num_cmd", len(cmds)))
		defer span.End()

		err := next(ctx, cmds)
		h.finish(span, err)
		return err
	}
}

func (h tracingHook) start(ctx context.Context, name string, extra attribute.KeyValue) (context.Context, trace.Span) {
	return observability.StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(h.attrs...),
		trace.WithAttributes(extra),
	)
}

func (h tracingHook) finish(span trace.Span, err error) {
	if err == nil || stderrors.Is(err, goredis.Nil) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
