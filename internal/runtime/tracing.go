package runtime

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/webviewflow/internal/runtime/webview"
)

const tracerName = "webviewflow-mediator"

func startForwardSpan(ctx context.Context, transportName string, event webview.TransportEvent, msg webview.Message) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ForwardToTransport")
	span.SetAttributes(
		attribute.String("webview.transport", transportName),
		attribute.String("webview.event", string(event)),
		attribute.String("webview.id", string(msg.WebviewID)),
		attribute.String("webview.instance_id", string(msg.WebviewInstanceID)),
		attribute.String("webview.message_type", msg.Type),
	)
	if msg.RequestID != "" {
		span.SetAttributes(attribute.String("webview.request_id", msg.RequestID))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
