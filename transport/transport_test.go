package transport_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/webviewflow/internal/runtime/webview"
	"github.com/drblury/webviewflow/transport"
)

type (
	webviewEvent   = webview.TransportEvent
	webviewMessage = webview.Message
)

func TestEventSource_EmitInRegistrationOrder(t *testing.T) {
	src := transport.NewEventSource()
	var order []string

	src.On(webview.EventInstanceCreated, func(webview.Message) { order = append(order, "first") })
	src.On(webview.EventInstanceCreated, func(webview.Message) { order = append(order, "second") })
	src.On(webview.EventInstanceDestroyed, func(webview.Message) { order = append(order, "other") })

	src.Emit(webview.EventInstanceCreated, webview.Lifecycle(webview.Address{WebviewID: "chat", WebviewInstanceID: "a"}))

	assert.Equal(t, []string{"first", "second"}, order)
	assert.True(t, src.HasHandlers(webview.EventInstanceDestroyed))
	assert.False(t, src.HasHandlers(webview.EventResponseReceived))
}

func TestEventSource_DisposeRemovesHandler(t *testing.T) {
	src := transport.NewEventSource()
	calls := 0
	sub := src.On(webview.EventNotificationReceived, func(webview.Message) { calls++ })

	src.Emit(webview.EventNotificationReceived, webview.Message{})
	sub.Dispose()
	sub.Dispose()
	src.Emit(webview.EventNotificationReceived, webview.Message{})

	assert.Equal(t, 1, calls)
}

func TestEventSource_NilHandlerIsIgnored(t *testing.T) {
	src := transport.NewEventSource()
	sub := src.On(webview.EventRequestReceived, nil)
	assert.NotNil(t, sub)
	assert.False(t, src.HasHandlers(webview.EventRequestReceived))
}

func TestEventSource_CloseStopsDelivery(t *testing.T) {
	src := transport.NewEventSource()
	calls := 0
	src.On(webview.EventResponseReceived, func(webview.Message) { calls++ })

	src.Close()
	src.Emit(webview.EventResponseReceived, webview.Message{})

	assert.Zero(t, calls)
}

func TestCapabilities_NotificationsOnly(t *testing.T) {
	assert.True(t, transport.JSONRPCCapabilities.NotificationsOnly())
	assert.False(t, transport.SocketIOCapabilities.NotificationsOnly())
	assert.False(t, transport.SocketIOCapabilities.CrossProcess)
	for _, caps := range []transport.Capabilities{
		transport.NATSCapabilities,
		transport.KafkaCapabilities,
		transport.RabbitMQCapabilities,
		transport.AWSCapabilities,
	} {
		assert.True(t, caps.CrossProcess, caps.Name)
	}
}
