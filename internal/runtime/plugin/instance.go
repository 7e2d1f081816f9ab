package plugin

import (
	"context"
	"sync"

	"github.com/drblury/webviewflow/internal/runtime/disposable"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	"github.com/drblury/webviewflow/internal/runtime/registry"
	"github.com/drblury/webviewflow/internal/runtime/webview"
)

// InstanceBus is the MessageBus of one connected webview instance. Messages
// are published on the runtime bus addressed to the instance; the mediator of
// the transport that manages it carries them to the UI.
type InstanceBus struct {
	addr webview.Address
	host *Host

	mu       sync.Mutex
	closed   bool
	handlers *disposable.Composite
}

var _ webview.MessageBus = (*InstanceBus)(nil)

func newInstanceBus(addr webview.Address, host *Host) *InstanceBus {
	return &InstanceBus{addr: addr, host: host, handlers: disposable.NewComposite()}
}

func (b *InstanceBus) Address() webview.Address {
	return b.addr
}

func (b *InstanceBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *InstanceBus) SendNotification(_ context.Context, msgType string, payload any) error {
	if b.isClosed() {
		return errspkg.ErrInstanceClosed
	}
	b.host.bus.Publish(webview.PluginNotification, webview.Notification(b.addr, msgType, payload))
	return nil
}

// SendRequest publishes a request to the instance and waits for the response
// with the same request id.
func (b *InstanceBus) SendRequest(ctx context.Context, msgType string, payload any) (any, error) {
	if b.isClosed() {
		return nil, errspkg.ErrInstanceClosed
	}
	requestID := b.host.newID()
	p, err := b.host.pending.Add(requestID)
	if err != nil {
		return nil, err
	}
	b.host.bus.Publish(webview.PluginRequest, webview.Request(b.addr, msgType, requestID, payload))
	return p.Wait(ctx)
}

func (b *InstanceBus) OnNotification(msgType string, handler webview.NotificationHandler) disposable.Disposable {
	if handler == nil {
		panic(errspkg.ErrHandlerRequired)
	}
	return b.track(b.host.notifications.Register(b.key(msgType), func(ctx context.Context, payload any) (struct{}, error) {
		return struct{}{}, handler(ctx, payload)
	}))
}

func (b *InstanceBus) OnRequest(msgType string, handler webview.RequestHandler) disposable.Disposable {
	if handler == nil {
		panic(errspkg.ErrHandlerRequired)
	}
	return b.track(b.host.requests.Register(b.key(msgType), registry.Handler[any, any](handler)))
}

func (b *InstanceBus) key(msgType string) handlerKey {
	return handlerKey{WebviewID: b.addr.WebviewID, WebviewInstanceID: b.addr.WebviewInstanceID, Type: msgType}
}

// track ties d to the instance lifetime. Handlers added after the instance
// disconnected are released right away.
func (b *InstanceBus) track(d disposable.Disposable) disposable.Disposable {
	b.handlers.Add(d)
	return d
}

func (b *InstanceBus) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	b.handlers.Dispose()
}
