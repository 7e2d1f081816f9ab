package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	"github.com/drblury/webviewflow/internal/runtime/ids"
	"github.com/drblury/webviewflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/webviewflow/internal/runtime/metadata"
	"github.com/drblury/webviewflow/internal/runtime/webview"
)

const (
	tracerName          = "webviewflow-broker"
	routerCloseTimeout  = 5 * time.Second
	poisonTopicSuffix   = "poison"
	metricsSubsystem    = "broker"
	metricsNamespace    = "webviewflow"
	routerStartupWindow = 10 * time.Second
)

// endpointConfig is shared by Transport and Relay.
type endpointConfig struct {
	name              string
	publisher         message.Publisher
	subscriber        message.Subscriber
	prefix            string
	codec             Codec
	log               logging.ServiceLogger
	metricsRegisterer prometheus.Registerer
	closePubSub       bool
}

// endpoint consumes one set of event topics through a watermill router and
// publishes another.
type endpoint struct {
	endpointConfig
	router *message.Router

	runCtx    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

type deliverFunc func(event webview.TransportEvent, msg webview.Message)

func newEndpoint(ctx context.Context, cfg endpointConfig, consume []webview.TransportEvent, deliver deliverFunc) (*endpoint, error) {
	if cfg.publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if cfg.subscriber == nil {
		return nil, errspkg.ErrSubscriberRequired
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: routerCloseTimeout}, logging.NewWatermillAdapter(cfg.log))
	if err != nil {
		return nil, err
	}

	poison, err := middleware.PoisonQueue(cfg.publisher, cfg.prefix+"."+poisonTopicSuffix)
	if err != nil {
		return nil, err
	}
	router.AddMiddleware(
		tracerMiddleware(cfg.name),
		poison,
		middleware.Recoverer,
	)

	if cfg.metricsRegisterer != nil {
		builder := metrics.NewPrometheusMetricsBuilder(cfg.metricsRegisterer, metricsNamespace, metricsSubsystem)
		builder.AddPrometheusRouterMetrics(router)
	}

	e := &endpoint{endpointConfig: cfg, router: router, done: make(chan struct{})}
	for _, event := range consume {
		topic := Topic(cfg.prefix, event)
		router.AddConsumerHandler(
			fmt.Sprintf("%s_%s", cfg.name, event),
			topic,
			cfg.subscriber,
			e.consumer(event, deliver),
		)
	}

	e.runCtx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		defer close(e.done)
		if err := router.Run(e.runCtx); err != nil {
			e.log.Error("Broker router stopped", err, nil)
		}
	}()

	select {
	case <-router.Running():
	case <-e.done:
		return nil, fmt.Errorf("webviewflow: broker router for %s stopped during startup", cfg.name)
	case <-ctx.Done():
		e.close()
		return nil, ctx.Err()
	case <-time.After(routerStartupWindow):
		e.close()
		return nil, fmt.Errorf("webviewflow: broker router for %s did not start", cfg.name)
	}
	return e, nil
}

func (e *endpoint) consumer(event webview.TransportEvent, deliver deliverFunc) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		md := metadatapkg.FromWatermill(msg.Metadata)
		fields, err := e.codec.Decode(event, msg.Payload)
		var decoded webview.Message
		if err == nil {
			decoded, err = openEnvelope(event, fields)
		}
		if err != nil {
			e.log.Warn("Dropping malformed broker payload", logging.LogFields{
				"event":          string(event),
				"message_uuid":   msg.UUID,
				"correlation_id": md.CorrelationID(),
				"error":          err.Error(),
			})
			return nil
		}
		deliver(event, decoded)
		return nil
	}
}

func (e *endpoint) publish(ctx context.Context, event webview.TransportEvent, msg webview.Message) error {
	payload, err := e.codec.Encode(event, envelope(msg))
	if err != nil {
		return fmt.Errorf("webviewflow: encoding %s: %w", event, err)
	}

	md := metadatapkg.ForEvent(event, msg).With(metadatapkg.KeyContentType, e.codec.ContentType())
	out := message.NewMessage(ids.CreateULID(), payload)
	out.Metadata = metadatapkg.ToWatermill(md)
	correlationID := msg.RequestID
	if correlationID == "" {
		correlationID = out.UUID
	}
	middleware.SetCorrelationID(correlationID, out)
	out.SetContext(ctx)

	return e.publisher.Publish(Topic(e.prefix, event), out)
}

func (e *endpoint) close() {
	e.closeOnce.Do(func() {
		if err := e.router.Close(); err != nil {
			e.log.Error("Failed to close broker router", err, nil)
		}
		if e.cancel != nil {
			e.cancel()
		}
		if e.closePubSub {
			if err := e.publisher.Close(); err != nil {
				e.log.Error("Failed to close broker publisher", err, nil)
			}
			if any(e.subscriber) != any(e.publisher) {
				if err := e.subscriber.Close(); err != nil {
					e.log.Error("Failed to close broker subscriber", err, nil)
				}
			}
		}
	})
}

// tracerMiddleware wraps message handling with an OpenTelemetry span.
func tracerMiddleware(name string) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx, span := otel.Tracer(tracerName).Start(msg.Context(), "ConsumeWebviewEvent")
			defer span.End()
			msg.SetContext(ctx)

			span.SetAttributes(
				attribute.String("broker.endpoint", name),
				attribute.String("message.uuid", msg.UUID),
				attribute.String("webview.event", msg.Metadata.Get(metadatapkg.KeyEvent)),
				attribute.String("correlation_id", middleware.MessageCorrelationID(msg)),
			)
			produced, err := h(msg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return produced, err
		}
	}
}
