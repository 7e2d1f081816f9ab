// Package transport defines the contract between a webview transport and the
// runtime mediator. Each concrete transport (socket.io, JSON-RPC, broker
// bridges) lives in its own sub-package and registers a Builder with the
// transport registry.
package transport

import (
	"context"
	"time"

	"github.com/drblury/webviewflow/internal/runtime/bus"
	"github.com/drblury/webviewflow/internal/runtime/disposable"
	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/internal/runtime/webview"
)

// Handler receives one inbound transport event.
type Handler func(msg webview.Message)

// Transport moves webview messages between UI instances and the host.
// Inbound events (instance created/destroyed, notification/request/response
// received) are delivered through On; outbound events go through Publish.
type Transport interface {
	On(event webview.TransportEvent, handler Handler) disposable.Disposable
	Publish(ctx context.Context, event webview.TransportEvent, msg webview.Message) error
}

// Closer is implemented by transports that own network resources.
type Closer interface {
	Dispose()
}

// Builder is the function signature for creating a transport from config.
type Builder func(ctx context.Context, cfg Config, log logging.ServiceLogger) (Transport, error)

// Config provides the configuration values needed by transports.
// This interface allows transports to access only the config they need
// without depending on the full config package.
type Config interface {
	GetRequestTimeout() time.Duration

	// Socket server
	GetSocketPath() string
	GetSocketNamespacePrefix() string
	GetSocketCORSOrigins() []string

	// JSON-RPC
	GetJSONRPCCreatedMethod() string
	GetJSONRPCDestroyedMethod() string
	GetJSONRPCNotificationMethod() string

	// Broker bridge
	GetBrokerTopicPrefix() string
	GetBrokerCodec() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// EventSource keeps the per-event handler lists of a transport. Handlers run
// synchronously on the emitting goroutine in registration order.
type EventSource struct {
	bus *bus.Bus[webview.TransportEvent, webview.Message]
}

func NewEventSource() *EventSource {
	return &EventSource{bus: bus.New[webview.TransportEvent, webview.Message]()}
}

// On registers handler for event.
func (s *EventSource) On(event webview.TransportEvent, handler Handler) disposable.Disposable {
	if handler == nil {
		return disposable.Nop
	}
	return s.bus.Subscribe(event, bus.Listener[webview.Message](handler))
}

// Emit delivers msg to every handler registered for event.
func (s *EventSource) Emit(event webview.TransportEvent, msg webview.Message) {
	s.bus.Publish(event, msg)
}

func (s *EventSource) HasHandlers(event webview.TransportEvent) bool {
	return s.bus.HasListeners(event)
}

// Close drops every handler. Emit becomes a no-op afterwards.
func (s *EventSource) Close() {
	s.bus.Dispose()
}
