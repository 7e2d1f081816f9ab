// Package client is the UI side of a webview conversation: a MessageBus over
// one socket.io connection to the host.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/drblury/webviewflow/internal/runtime/config"
	"github.com/drblury/webviewflow/internal/runtime/disposable"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	"github.com/drblury/webviewflow/internal/runtime/ids"
	"github.com/drblury/webviewflow/internal/runtime/jsoncodec"
	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/internal/runtime/pending"
	"github.com/drblury/webviewflow/internal/runtime/registry"
	"github.com/drblury/webviewflow/internal/runtime/webview"
)

// Socket is the client end of the connection, reduced to channel listeners
// and emits.
type Socket interface {
	On(channel string, handler func(payload any)) disposable.Disposable
	Emit(channel string, payload any) error
}

// Option configures a Bus.
type Option func(*Bus)

// WithRequestTimeout overrides config.DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(b *Bus) { b.timeout = d }
}

func WithLogger(log logging.ServiceLogger) Option {
	return func(b *Bus) { b.log = log }
}

// WithRequestIDs replaces the ULID request id generator.
func WithRequestIDs(gen ids.Generator) Option {
	return func(b *Bus) { b.newID = gen }
}

// Bus implements webview.MessageBus over a Socket.
type Bus struct {
	sock    Socket
	timeout time.Duration
	newID   ids.Generator
	log     logging.ServiceLogger

	notifications *registry.Registry[string, any, struct{}]
	requests      *registry.Registry[string, any, any]
	pending       *pending.Table
	listeners     *disposable.Composite

	ctx         context.Context
	cancel      context.CancelFunc
	disposeOnce sync.Once
}

var _ webview.MessageBus = (*Bus)(nil)

// NewBus attaches to the notification, request and response channels of
// sock.
func NewBus(sock Socket, opts ...Option) (*Bus, error) {
	if sock == nil {
		return nil, errspkg.ErrSocketRequired
	}
	b := &Bus{sock: sock, timeout: config.DefaultRequestTimeout}
	for _, opt := range opts {
		opt(b)
	}
	b.log = logging.OrNop(b.log).With(logging.LogFields{"component": "client_bus"})
	b.newID = b.newID.OrDefault()
	b.notifications = registry.New[string, any, struct{}](registry.WithLogger(b.log), registry.WithName("notification"))
	b.requests = registry.New[string, any, any](registry.WithLogger(b.log), registry.WithName("request"))
	b.pending = pending.New(b.timeout)
	b.ctx, b.cancel = context.WithCancel(context.Background())

	b.listeners = disposable.NewComposite(
		sock.On(webview.ChannelNotification, b.handleNotification),
		sock.On(webview.ChannelRequest, b.handleRequest),
		sock.On(webview.ChannelResponse, b.handleResponse),
	)
	return b, nil
}

// SendNotification emits a fire-and-forget message.
func (b *Bus) SendNotification(_ context.Context, msgType string, payload any) error {
	return b.sock.Emit(webview.ChannelNotification, webview.Message{Type: msgType, Payload: payload}.Body())
}

// SendRequest emits a request and waits for the matching response. It fails
// with errors.ErrRequestTimedOut when no response arrives in time and with
// *errors.RequestFailedError when the host answers with success=false.
func (b *Bus) SendRequest(ctx context.Context, msgType string, payload any) (any, error) {
	requestID := b.newID()
	p, err := b.pending.Add(requestID)
	if err != nil {
		return nil, err
	}
	msg := webview.Message{Type: msgType, RequestID: requestID, Payload: payload}
	if err := b.sock.Emit(webview.ChannelRequest, msg.Body()); err != nil {
		p.Cancel(err)
		return nil, err
	}
	return p.Wait(ctx)
}

func (b *Bus) OnNotification(msgType string, handler webview.NotificationHandler) disposable.Disposable {
	if handler == nil {
		panic(errspkg.ErrHandlerRequired)
	}
	return b.notifications.Register(msgType, func(ctx context.Context, payload any) (struct{}, error) {
		return struct{}{}, handler(ctx, payload)
	})
}

func (b *Bus) OnRequest(msgType string, handler webview.RequestHandler) disposable.Disposable {
	return b.requests.Register(msgType, registry.Handler[any, any](handler))
}

// PendingRequests returns how many requests still await a response.
func (b *Bus) PendingRequests() int {
	return b.pending.Len()
}

func (b *Bus) handleNotification(raw any) {
	msg, err := webview.DecodeNotificationBody(raw)
	if err != nil {
		b.log.Warn("Dropping malformed notification", logging.LogFields{"error": err.Error()})
		return
	}
	if _, err := b.notifications.Handle(b.ctx, msg.Type, msg.Payload); err != nil {
		b.log.Error("Notification handler failed", err, logging.LogFields{"type": msg.Type})
	}
}

// handleRequest answers on its own goroutine so a handler may itself wait
// on a response arriving through this socket.
func (b *Bus) handleRequest(raw any) {
	msg, err := webview.DecodeRequestBody(raw)
	if err != nil {
		b.log.Warn("Dropping malformed request", logging.LogFields{"error": err.Error()})
		return
	}
	go b.answer(msg)
}

func (b *Bus) answer(req webview.Message) {
	result, err := b.requests.Handle(b.ctx, req.Type, req.Payload)

	var resp webview.Message
	if err != nil {
		b.log.Error("Request handler failed", err, logging.LogFields{"type": req.Type, "request_id": req.RequestID})
		resp = webview.FailureResponse(webview.Address{}, req.Type, req.RequestID, webview.FailureReason(err))
	} else {
		resp = webview.SuccessResponse(webview.Address{}, req.Type, req.RequestID, result)
	}
	if b.ctx.Err() != nil {
		return
	}
	if err := b.sock.Emit(webview.ChannelResponse, resp.Body()); err != nil {
		b.log.Error("Sending response failed", err, logging.LogFields{"type": req.Type, "request_id": req.RequestID})
	}
}

type responseBody struct {
	RequestID string `json:"requestId"`
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Success   *bool  `json:"success"`
	Reason    string `json:"reason"`
}

// handleResponse settles the matching pending request. Responses for unknown
// or already settled requests are ignored. A missing success flag counts as
// success.
func (b *Bus) handleResponse(raw any) {
	resp, ok := decodeResponse(raw)
	if !ok || resp.RequestID == "" {
		b.log.Warn("Dropping malformed response", nil)
		return
	}

	var settled bool
	if resp.Success != nil && !*resp.Success {
		settled = b.pending.Reject(resp.RequestID, &errspkg.RequestFailedError{Type: resp.Type, Reason: resp.Reason})
	} else {
		settled = b.pending.Resolve(resp.RequestID, resp.Payload)
	}
	if !settled {
		b.log.Debug("Ignoring response for unknown request", logging.LogFields{"request_id": resp.RequestID})
	}
}

func decodeResponse(raw any) (responseBody, bool) {
	if fields, ok := raw.(map[string]any); ok {
		var resp responseBody
		resp.RequestID, _ = fields["requestId"].(string)
		resp.Type, _ = fields["type"].(string)
		resp.Reason, _ = fields["reason"].(string)
		resp.Payload = fields["payload"]
		if success, isBool := fields["success"].(bool); isBool {
			resp.Success = &success
		}
		return resp, true
	}
	var resp responseBody
	if raw == nil || jsoncodec.Convert(raw, &resp) != nil {
		return responseBody{}, false
	}
	return resp, true
}

// Dispose detaches from the socket, drops every handler and fails pending
// requests with errors.ErrDisposed. Request handlers still running see their
// context cancelled and their responses are not sent.
func (b *Bus) Dispose() {
	b.disposeOnce.Do(func() {
		b.listeners.Dispose()
		b.cancel()
		b.notifications.Dispose()
		b.requests.Dispose()
		b.pending.Dispose()
	})
}
