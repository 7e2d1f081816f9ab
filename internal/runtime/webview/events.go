package webview

import "github.com/drblury/webviewflow/internal/runtime/bus"

// TransportEvent names the events exchanged between a transport and its
// mediator.
type TransportEvent string

// Inbound events travel from a transport to its mediator.
const (
	EventInstanceCreated      TransportEvent = "webview_instance_created"
	EventInstanceDestroyed    TransportEvent = "webview_instance_destroyed"
	EventNotificationReceived TransportEvent = "webview_instance_notification_received"
	EventRequestReceived      TransportEvent = "webview_instance_request_received"
	EventResponseReceived     TransportEvent = "webview_instance_response_received"
)

// Outbound events travel from a mediator to its transport.
const (
	EventNotification TransportEvent = "webview_instance_notification"
	EventRequest      TransportEvent = "webview_instance_request"
	EventResponse     TransportEvent = "webview_instance_response"
)

// InboundEvents lists the events a transport emits, in lifecycle order.
func InboundEvents() []TransportEvent {
	return []TransportEvent{
		EventInstanceCreated,
		EventInstanceDestroyed,
		EventNotificationReceived,
		EventRequestReceived,
		EventResponseReceived,
	}
}

// OutboundEvents lists the events a transport accepts through Publish.
func OutboundEvents() []TransportEvent {
	return []TransportEvent{EventNotification, EventRequest, EventResponse}
}

// RuntimeEvent names the events on the process-wide runtime bus.
type RuntimeEvent string

const (
	RuntimeConnect      RuntimeEvent = "webview:connect"
	RuntimeDisconnect   RuntimeEvent = "webview:disconnect"
	RuntimeNotification RuntimeEvent = "webview:notification"
	RuntimeRequest      RuntimeEvent = "webview:request"
	RuntimeResponse     RuntimeEvent = "webview:response"

	PluginNotification RuntimeEvent = "plugin:notification"
	PluginRequest      RuntimeEvent = "plugin:request"
	PluginResponse     RuntimeEvent = "plugin:response"
)

// Socket channel names shared by the socket transport and the client bus.
const (
	ChannelNotification = "notification"
	ChannelRequest      = "request"
	ChannelResponse     = "response"
)

// RuntimeBus is the bus shared by every mediator and plugin in a process.
type RuntimeBus = bus.Bus[RuntimeEvent, Message]

func NewRuntimeBus() *RuntimeBus {
	return bus.New[RuntimeEvent, Message]()
}

// InboundRuntimeEvent maps an inbound transport event onto its runtime bus
// name.
func InboundRuntimeEvent(event TransportEvent) (RuntimeEvent, bool) {
	switch event {
	case EventInstanceCreated:
		return RuntimeConnect, true
	case EventInstanceDestroyed:
		return RuntimeDisconnect, true
	case EventNotificationReceived:
		return RuntimeNotification, true
	case EventRequestReceived:
		return RuntimeRequest, true
	case EventResponseReceived:
		return RuntimeResponse, true
	}
	return "", false
}

// OutboundTransportEvent maps a plugin runtime event onto the transport event
// that carries it to the UI.
func OutboundTransportEvent(event RuntimeEvent) (TransportEvent, bool) {
	switch event {
	case PluginNotification:
		return EventNotification, true
	case PluginRequest:
		return EventRequest, true
	case PluginResponse:
		return EventResponse, true
	}
	return "", false
}
