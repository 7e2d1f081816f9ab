// Package jsonrpc provides a webview transport over a single JSON-RPC peer
// connection, typically the editor that hosts the language server process.
package jsonrpc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/drblury/webviewflow/internal/runtime/config"
	"github.com/drblury/webviewflow/internal/runtime/disposable"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/internal/runtime/webview"
	"github.com/drblury/webviewflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "jsonrpc"

// Methods names the JSON-RPC methods used on the connection. Notification is
// used in both directions.
type Methods struct {
	Created      string
	Destroyed    string
	Notification string
}

// DefaultMethods returns the method names editors speak out of the box.
func DefaultMethods() Methods {
	return Methods{
		Created:      config.DefaultJSONRPCCreatedMethod,
		Destroyed:    config.DefaultJSONRPCDestroyedMethod,
		Notification: config.DefaultJSONRPCNotificationMethod,
	}
}

func (m Methods) withDefaults() Methods {
	d := DefaultMethods()
	if m.Created == "" {
		m.Created = d.Created
	}
	if m.Destroyed == "" {
		m.Destroyed = d.Destroyed
	}
	if m.Notification == "" {
		m.Notification = d.Notification
	}
	return m
}

// Transport re-emits validated webview traffic from one JSON-RPC connection.
// Only notifications can be published; the single peer has no request or
// response plumbing.
type Transport struct {
	conn    Connection
	methods Methods
	events  *transport.EventSource
	subs    *disposable.Composite
	log     logging.ServiceLogger

	disposeOnce sync.Once
}

// New subscribes to the created, destroyed and notification methods on conn.
func New(conn Connection, methods Methods, log logging.ServiceLogger) (*Transport, error) {
	if conn == nil {
		return nil, errspkg.ErrConnectionRequired
	}
	t := &Transport{
		conn:    conn,
		methods: methods.withDefaults(),
		events:  transport.NewEventSource(),
		log:     logging.OrNop(log).With(logging.LogFields{"transport": TransportName}),
	}
	t.subs = disposable.NewComposite(
		conn.OnNotification(t.methods.Created, t.relay(webview.EventInstanceCreated)),
		conn.OnNotification(t.methods.Destroyed, t.relay(webview.EventInstanceDestroyed)),
		conn.OnNotification(t.methods.Notification, t.relay(webview.EventNotificationReceived)),
	)
	return t, nil
}

func (t *Transport) relay(event webview.TransportEvent) NotificationHandler {
	return func(params json.RawMessage) {
		msg, err := webview.DecodeEvent(event, params)
		if err != nil {
			t.log.Warn("Dropping malformed JSON-RPC payload", logging.LogFields{
				"event": string(event),
				"error": err.Error(),
			})
			return
		}
		t.events.Emit(event, msg)
	}
}

func (t *Transport) On(event webview.TransportEvent, handler transport.Handler) disposable.Disposable {
	return t.events.On(event, handler)
}

func (t *Transport) Publish(ctx context.Context, event webview.TransportEvent, msg webview.Message) error {
	if event != webview.EventNotification {
		return &errspkg.UnknownMessageTypeError{Type: string(event)}
	}
	return t.conn.Notify(ctx, t.methods.Notification, msg)
}

// Methods returns the method names in effect.
func (t *Transport) Methods() Methods {
	return t.methods
}

func (t *Transport) Capabilities() transport.Capabilities {
	return transport.JSONRPCCapabilities
}

// Dispose removes the connection subscriptions and every registered handler.
// The connection itself stays open; it belongs to the caller.
func (t *Transport) Dispose() {
	t.disposeOnce.Do(func() {
		t.subs.Dispose()
		t.events.Close()
	})
}
