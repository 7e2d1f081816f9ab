// Package socketio serves webview instances over socket.io. Every UI surface
// connects to its own namespace, <prefix>/<webviewId>, and each connection
// becomes one webview instance with a freshly minted instance id.
package socketio

import (
	"context"
	"net/http"
	"regexp"
	"sync"

	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io/v2/socket"

	"github.com/drblury/webviewflow/internal/runtime/config"
	"github.com/drblury/webviewflow/internal/runtime/disposable"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	"github.com/drblury/webviewflow/internal/runtime/ids"
	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/internal/runtime/webview"
	"github.com/drblury/webviewflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "socketio"

// Options configures a Transport.
type Options struct {
	// NamespacePrefix precedes the webview id in namespace names.
	NamespacePrefix string
	// Path is the HTTP path the engine is served on.
	Path string
	// CORSOrigins lists allowed origins; empty disables the CORS middleware.
	CORSOrigins []string
	// InstanceIDs mints instance ids; defaults to ULIDs.
	InstanceIDs ids.Generator
	Logger      logging.ServiceLogger
}

// Transport is the socket-server transport. It keeps one socket per
// webview address.
type Transport struct {
	events     *transport.EventSource
	log        logging.ServiceLogger
	newID      ids.Generator
	namespaces *regexp.Regexp

	server  *socket.Server
	handler http.Handler

	mu       sync.Mutex
	sockets  map[webview.Address]Socket
	disposed bool
}

// New creates the transport and its socket.io server.
func New(opts Options) *Transport {
	t := newTransport(opts)

	serverOpts := socket.DefaultServerOptions()
	serverOpts.SetPath(orDefault(opts.Path, config.DefaultSocketPath))
	if len(opts.CORSOrigins) > 0 {
		origins := make([]any, 0, len(opts.CORSOrigins))
		for _, o := range opts.CORSOrigins {
			origins = append(origins, o)
		}
		serverOpts.SetCors(&types.Cors{Origin: origins, Credentials: true})
	}

	t.server = socket.NewServer(nil, serverOpts)
	t.server.Of(t.namespaces, func(clients ...any) {
		sock, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		webviewID, ok := t.webviewID(sock.Nsp().Name())
		if !ok {
			t.log.Warn("Rejecting connection on unexpected namespace", logging.LogFields{"namespace": sock.Nsp().Name()})
			sock.Disconnect(true)
			return
		}
		t.accept(webviewID, wrapSocket(sock))
	})
	t.handler = t.server.ServeHandler(nil)
	return t
}

func newTransport(opts Options) *Transport {
	prefix := orDefault(opts.NamespacePrefix, config.DefaultSocketNamespacePrefix)
	return &Transport{
		events:     transport.NewEventSource(),
		log:        logging.OrNop(opts.Logger).With(logging.LogFields{"transport": TransportName}),
		newID:      opts.InstanceIDs.OrDefault(),
		namespaces: regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + "/([^/]+)$"),
		sockets:    make(map[webview.Address]Socket),
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Handler serves the socket.io engine. Mount it on the configured path.
func (t *Transport) Handler() http.Handler {
	return t.handler
}

func (t *Transport) webviewID(namespace string) (webview.ID, bool) {
	match := t.namespaces.FindStringSubmatch(namespace)
	if match == nil {
		return "", false
	}
	return webview.ID(match[1]), true
}

// accept registers sock as a new instance of webviewID.
func (t *Transport) accept(webviewID webview.ID, sock Socket) {
	addr := webview.Address{WebviewID: webviewID, WebviewInstanceID: webview.InstanceID(t.newID())}

	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		sock.Disconnect()
		return
	}
	t.sockets[addr] = sock
	t.mu.Unlock()

	// Listeners go on before created is emitted so a disconnect during a slow
	// connect handler is still seen.
	sock.On(webview.ChannelNotification, t.inbound(addr, webview.EventNotificationReceived, webview.DecodeNotificationBody))
	sock.On(webview.ChannelRequest, t.inbound(addr, webview.EventRequestReceived, webview.DecodeRequestBody))
	sock.On(webview.ChannelResponse, t.inbound(addr, webview.EventResponseReceived, webview.DecodeResponseBody))
	sock.On("disconnect", func(args ...any) {
		t.mu.Lock()
		current, ok := t.sockets[addr]
		if ok && current == sock {
			delete(t.sockets, addr)
		}
		t.mu.Unlock()

		t.log.Debug("Webview instance disconnected", logging.LogFields{"address": addr.String(), "reason": firstArg(args)})
		t.events.Emit(webview.EventInstanceDestroyed, webview.Lifecycle(addr))
	})

	t.log.Debug("Webview instance connected", logging.LogFields{"address": addr.String(), "socket": sock.ID()})
	t.events.Emit(webview.EventInstanceCreated, webview.Lifecycle(addr))
}

func (t *Transport) inbound(addr webview.Address, event webview.TransportEvent, decode func(any) (webview.Message, error)) func(args ...any) {
	return func(args ...any) {
		msg, err := decode(firstArg(args))
		if err != nil {
			t.log.Warn("Dropping malformed socket payload", logging.LogFields{
				"event":   string(event),
				"address": addr.String(),
				"error":   err.Error(),
			})
			return
		}
		t.events.Emit(event, msg.WithAddress(addr))
	}
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func channelFor(event webview.TransportEvent) (string, bool) {
	switch event {
	case webview.EventNotification:
		return webview.ChannelNotification, true
	case webview.EventRequest:
		return webview.ChannelRequest, true
	case webview.EventResponse:
		return webview.ChannelResponse, true
	}
	return "", false
}

func (t *Transport) On(event webview.TransportEvent, handler transport.Handler) disposable.Disposable {
	return t.events.On(event, handler)
}

// Publish emits msg on the channel matching event to the socket at msg's
// address. A missing socket is logged and ignored; the instance is gone.
func (t *Transport) Publish(_ context.Context, event webview.TransportEvent, msg webview.Message) error {
	channel, ok := channelFor(event)
	if !ok {
		return &errspkg.UnknownMessageTypeError{Type: string(event)}
	}

	t.mu.Lock()
	sock, ok := t.sockets[msg.Address]
	t.mu.Unlock()

	if !ok {
		t.log.Warn("No socket for webview instance", logging.LogFields{
			"event":   string(event),
			"address": msg.Address.String(),
		})
		return nil
	}
	return sock.Emit(channel, msg.Body())
}

// Instances returns the addresses with a live socket.
func (t *Transport) Instances() []webview.Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]webview.Address, 0, len(t.sockets))
	for addr := range t.sockets {
		out = append(out, addr)
	}
	return out
}

func (t *Transport) Capabilities() transport.Capabilities {
	return transport.SocketIOCapabilities
}

// Dispose disconnects every socket, drops all handlers and closes the
// server.
func (t *Transport) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	sockets := t.sockets
	t.sockets = make(map[webview.Address]Socket)
	t.mu.Unlock()

	t.events.Close()
	for _, sock := range sockets {
		sock.Disconnect()
	}
	if t.server != nil {
		t.server.Close(nil)
	}
}
