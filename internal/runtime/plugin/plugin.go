package plugin

import (
	"context"
	"sync"

	"github.com/drblury/webviewflow/internal/runtime/bus"
	"github.com/drblury/webviewflow/internal/runtime/disposable"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	"github.com/drblury/webviewflow/internal/runtime/registry"
	"github.com/drblury/webviewflow/internal/runtime/webview"
)

// Plugin is the host's handle on one webview id.
type Plugin struct {
	id   webview.ID
	host *Host

	lifecycle *bus.Bus[webview.RuntimeEvent, *InstanceBus]
	handlers  *disposable.Composite

	disposeOnce sync.Once
}

func newPlugin(id webview.ID, host *Host) *Plugin {
	return &Plugin{
		id:        id,
		host:      host,
		lifecycle: bus.New[webview.RuntimeEvent, *InstanceBus](),
		handlers:  disposable.NewComposite(),
	}
}

func (p *Plugin) ID() webview.ID {
	return p.id
}

// OnInstanceConnected calls fn with the MessageBus of every instance that
// connects after the call.
func (p *Plugin) OnInstanceConnected(fn func(addr webview.Address, mb webview.MessageBus)) disposable.Disposable {
	if fn == nil {
		return disposable.Nop
	}
	return p.lifecycle.Subscribe(webview.RuntimeConnect, func(inst *InstanceBus) {
		fn(inst.addr, inst)
	})
}

// OnInstanceDisconnected calls fn before the instance's MessageBus closes.
func (p *Plugin) OnInstanceDisconnected(fn func(addr webview.Address)) disposable.Disposable {
	if fn == nil {
		return disposable.Nop
	}
	return p.lifecycle.Subscribe(webview.RuntimeDisconnect, func(inst *InstanceBus) {
		fn(inst.addr)
	})
}

// OnNotification handles msgType for every instance of the webview. A handler
// registered on an InstanceBus for the same type takes precedence.
func (p *Plugin) OnNotification(msgType string, handler webview.NotificationHandler) disposable.Disposable {
	if handler == nil {
		panic(errspkg.ErrHandlerRequired)
	}
	d := p.host.notifications.Register(handlerKey{WebviewID: p.id, Type: msgType}, func(ctx context.Context, payload any) (struct{}, error) {
		return struct{}{}, handler(ctx, payload)
	})
	p.handlers.Add(d)
	return d
}

// OnRequest answers msgType for every instance of the webview.
func (p *Plugin) OnRequest(msgType string, handler webview.RequestHandler) disposable.Disposable {
	if handler == nil {
		panic(errspkg.ErrHandlerRequired)
	}
	d := p.host.requests.Register(handlerKey{WebviewID: p.id, Type: msgType}, registry.Handler[any, any](handler))
	p.handlers.Add(d)
	return d
}

// Broadcast sends a notification to every connected instance of the webview.
func (p *Plugin) Broadcast(ctx context.Context, msgType string, payload any) error {
	for _, addr := range p.Instances() {
		inst := p.host.instance(addr)
		if inst == nil {
			continue
		}
		if err := inst.SendNotification(ctx, msgType, payload); err != nil {
			return err
		}
	}
	return nil
}

// Instances lists the connected instances of this webview.
func (p *Plugin) Instances() []webview.Address {
	var out []webview.Address
	for _, addr := range p.host.Instances() {
		if addr.WebviewID == p.id {
			out = append(out, addr)
		}
	}
	return out
}

// Dispose releases the webview id, its handlers and its instance buses.
func (p *Plugin) Dispose() {
	p.disposeOnce.Do(func() {
		p.host.unregister(p)
		p.handlers.Dispose()
		p.lifecycle.Dispose()
	})
}
