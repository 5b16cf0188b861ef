package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/utafrali/EcommerceGo/pkg/database"

// TraceCommand starts a span for a Redis operation. The returned function
// must be called when the operation completes:
//
//	ctx, end := database.TraceCommand(ctx, "get", "GET cart:42")
//	defer func() { end(err) }()
func TraceCommand(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "redis."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		// A missing key is a normal answer, not a failure.
		if err != nil && !errors.Is(err, redis.Nil) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// TracingHook is a go-redis hook that wraps every command and pipeline in a
// span and logs the ones slower than a threshold.
type TracingHook struct {
	threshold time.Duration
	logger    *slog.Logger
}

var _ redis.Hook = (*TracingHook)(nil)

// NewTracingHook returns a hook logging commands slower than threshold to l.
// A zero threshold or nil logger disables slow command logging.
func NewTracingHook(threshold time.Duration, l *slog.Logger) *TracingHook {
	return &TracingHook{threshold: threshold, logger: l}
}

func (h *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		stmt := statement(cmd)
		ctx, end := TraceCommand(ctx, cmd.Name(), stmt)

		err := next(ctx, cmd)
		end(err)
		h.logSlow(ctx, cmd.Name(), stmt, time.Since(start), err)
		return err
	}
}

func (h *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		names := make([]string, len(cmds))
		for i, c := range cmds {
			names[i] = c.Name()
		}
		stmt := strings.Join(names, " ")
		ctx, end := TraceCommand(ctx, "pipeline", stmt)

		err := next(ctx, cmds)
		end(err)
		h.logSlow(ctx, "pipeline", stmt, time.Since(start), err)
		return err
	}
}

func (h *TracingHook) logSlow(ctx context.Context, operation, stmt string, elapsed time.Duration, err error) {
	if h.threshold <= 0 || h.logger == nil || elapsed < h.threshold {
		return
	}
	attrs := []any{
		slog.String("operation", operation),
		slog.String("statement", stmt),
		slog.Duration("duration", elapsed),
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	h.logger.WarnContext(ctx, "slow redis command", attrs...)
}

// statement renders the command name and its key. Values are left out so
// cart payloads never end up in traces.
func statement(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return strings.ToUpper(cmd.Name())
	}
	return fmt.Sprintf("%s %v", strings.ToUpper(cmd.Name()), args[1])
}
