package extensions

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	core "github.com/coregraph/core"
)

// TracingExtension starts one OpenTelemetry span per resource init and
// task run (event emissions are not reported to extensions), grounded on a tracing.OTelTracer.StartSpan pairing (start returns an end func that
// records the error and closes the span). Operation carries no
// correlation id across the OnStart/OnEnd pair, so spans in flight are
// tracked per (kind, id) as a LIFO stack under a mutex: correct for
// sequential or properly-nested calls, and for concurrent calls to
// distinct ids, but a best-effort attribution if the same id runs
// concurrently with itself (e.g. two overlapping RunTask calls for the
// same task id).
type TracingExtension struct {
	core.BaseExtension

	tracer oteltrace.Tracer

	mu    sync.Mutex
	spans map[string][]oteltrace.Span
}

// NewTracingExtension creates a tracing extension from provider (nil
// uses otel.GetTracerProvider()).
func NewTracingExtension(provider oteltrace.TracerProvider, instrumentation string) *TracingExtension {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	if instrumentation == "" {
		instrumentation = "coregraph"
	}
	return &TracingExtension{
		BaseExtension: core.BaseExtension{ExtName: "tracing"},
		tracer:        provider.Tracer(instrumentation),
		spans:         map[string][]oteltrace.Span{},
	}
}

func spanKey(op core.Operation) string {
	return string(op.Kind) + ":" + op.ID
}

func (e *TracingExtension) OnStart(op core.Operation) {
	_, span := e.tracer.Start(context.Background(), spanKey(op),
		oteltrace.WithAttributes(
			attribute.String("coregraph.kind", string(op.Kind)),
			attribute.String("coregraph.id", op.ID),
		),
	)
	e.mu.Lock()
	key := spanKey(op)
	e.spans[key] = append(e.spans[key], span)
	e.mu.Unlock()
}

func (e *TracingExtension) OnEnd(op core.Operation) {
	key := spanKey(op)
	e.mu.Lock()
	stack := e.spans[key]
	var span oteltrace.Span
	if n := len(stack); n > 0 {
		span = stack[n-1]
		e.spans[key] = stack[:n-1]
	}
	e.mu.Unlock()
	if span == nil {
		return
	}
	if op.Err != nil {
		span.RecordError(op.Err)
		span.SetStatus(codes.Error, op.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
