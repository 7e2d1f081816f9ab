// Package plugin is the host side of a webview conversation. A Host listens
// on the runtime bus, tracks the instances of every registered webview and
// gives each instance a MessageBus that travels through whichever transport
// manages it.
package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/drblury/webviewflow/internal/runtime/config"
	"github.com/drblury/webviewflow/internal/runtime/disposable"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	"github.com/drblury/webviewflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/internal/runtime/pending"
	"github.com/drblury/webviewflow/internal/runtime/registry"
	"github.com/drblury/webviewflow/internal/runtime/webview"
)

// Options configures a Host.
type Options struct {
	// RequestTimeout defaults to config.DefaultRequestTimeout.
	RequestTimeout time.Duration
	Logger         loggingpkg.ServiceLogger
	RequestIDs     ids.Generator
}

// handlerKey scopes a handler to a webview and message type. An empty
// instance id applies to every instance of the webview.
type handlerKey struct {
	WebviewID         webview.ID         `json:"webviewId"`
	WebviewInstanceID webview.InstanceID `json:"webviewInstanceId"`
	Type              string             `json:"type"`
}

// Host dispatches runtime bus traffic to registered webview plugins.
type Host struct {
	bus     *webview.RuntimeBus
	log     loggingpkg.ServiceLogger
	newID   ids.Generator
	pending *pending.Table

	notifications *registry.Hashed[handlerKey, any, struct{}]
	requests      *registry.Hashed[handlerKey, any, any]

	mu        sync.RWMutex
	plugins   map[webview.ID]*Plugin
	instances map[webview.Address]*InstanceBus

	subs        *disposable.Composite
	ctx         context.Context
	cancel      context.CancelFunc
	disposeOnce sync.Once
}

// NewHost subscribes to the webview:* events of runtimeBus.
func NewHost(runtimeBus *webview.RuntimeBus, opts Options) (*Host, error) {
	if runtimeBus == nil {
		return nil, errspkg.ErrRuntimeBusRequired
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	log := loggingpkg.OrNop(opts.Logger).With(loggingpkg.LogFields{"component": "plugin_host"})

	h := &Host{
		bus:           runtimeBus,
		log:           log,
		newID:         opts.RequestIDs.OrDefault(),
		pending:       pending.New(timeout),
		notifications: registry.NewHashed[handlerKey, any, struct{}](nil, registry.WithLogger(log), registry.WithName("plugin_notification")),
		requests:      registry.NewHashed[handlerKey, any, any](nil, registry.WithLogger(log), registry.WithName("plugin_request")),
		plugins:       make(map[webview.ID]*Plugin),
		instances:     make(map[webview.Address]*InstanceBus),
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.subs = disposable.NewComposite(
		runtimeBus.Subscribe(webview.RuntimeConnect, h.handleConnect),
		runtimeBus.Subscribe(webview.RuntimeDisconnect, h.handleDisconnect),
		runtimeBus.Subscribe(webview.RuntimeNotification, h.handleNotification),
		runtimeBus.Subscribe(webview.RuntimeRequest, h.handleRequest),
		runtimeBus.Subscribe(webview.RuntimeResponse, h.handleResponse),
	)
	return h, nil
}

// Register claims id. Instances of webviews nobody registered are ignored.
func (h *Host) Register(id webview.ID) (*Plugin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.plugins[id]; exists {
		return nil, fmt.Errorf("%w: %q", errspkg.ErrWebviewRegistered, id)
	}
	p := newPlugin(id, h)
	h.plugins[id] = p
	h.log.Info("Webview plugin registered", loggingpkg.LogFields{"webview_id": string(id)})
	return p, nil
}

func (h *Host) unregister(p *Plugin) {
	h.mu.Lock()
	if current, ok := h.plugins[p.id]; ok && current == p {
		delete(h.plugins, p.id)
	}
	var closing []*InstanceBus
	for addr, inst := range h.instances {
		if addr.WebviewID == p.id {
			delete(h.instances, addr)
			closing = append(closing, inst)
		}
	}
	h.mu.Unlock()

	for _, inst := range closing {
		inst.close()
	}
}

func (h *Host) plugin(id webview.ID) *Plugin {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.plugins[id]
}

func (h *Host) instance(addr webview.Address) *InstanceBus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.instances[addr]
}

// Instances lists the connected instances of registered webviews.
func (h *Host) Instances() []webview.Address {
	h.mu.RLock()
	out := make([]webview.Address, 0, len(h.instances))
	for addr := range h.instances {
		out = append(out, addr)
	}
	h.mu.RUnlock()
	sortAddresses(out)
	return out
}

// PendingRequests returns how many host requests await a response.
func (h *Host) PendingRequests() int {
	return h.pending.Len()
}

func (h *Host) handleConnect(msg webview.Message) {
	p := h.plugin(msg.WebviewID)
	if p == nil {
		h.log.Debug("Ignoring instance of unregistered webview", loggingpkg.LogFields{"address": msg.Address.String()})
		return
	}

	inst := newInstanceBus(msg.Address, h)
	h.mu.Lock()
	previous := h.instances[msg.Address]
	h.instances[msg.Address] = inst
	h.mu.Unlock()
	if previous != nil {
		previous.close()
	}

	h.log.Debug("Webview instance connected", loggingpkg.LogFields{"address": msg.Address.String()})
	p.lifecycle.Publish(webview.RuntimeConnect, inst)
}

func (h *Host) handleDisconnect(msg webview.Message) {
	h.mu.Lock()
	inst := h.instances[msg.Address]
	delete(h.instances, msg.Address)
	h.mu.Unlock()
	if inst == nil {
		return
	}

	h.log.Debug("Webview instance disconnected", loggingpkg.LogFields{"address": msg.Address.String()})
	if p := h.plugin(msg.WebviewID); p != nil {
		p.lifecycle.Publish(webview.RuntimeDisconnect, inst)
	}
	inst.close()
}

// lookup prefers a handler registered on the instance over one registered on
// the whole webview.
func lookup[O any](r *registry.Hashed[handlerKey, any, O], addr webview.Address, msgType string) (handlerKey, bool) {
	key := handlerKey{WebviewID: addr.WebviewID, WebviewInstanceID: addr.WebviewInstanceID, Type: msgType}
	if r.Has(key) {
		return key, true
	}
	key.WebviewInstanceID = ""
	return key, r.Has(key)
}

func (h *Host) handleNotification(msg webview.Message) {
	if h.instance(msg.Address) == nil {
		return
	}
	key, ok := lookup(h.notifications, msg.Address, msg.Type)
	if !ok {
		h.log.Warn("No handler for notification", loggingpkg.LogFields{"address": msg.Address.String(), "type": msg.Type})
		return
	}
	if _, err := h.notifications.Handle(h.ctx, key, msg.Payload); err != nil {
		h.log.Error("Notification handler failed", err, loggingpkg.LogFields{"address": msg.Address.String(), "type": msg.Type})
	}
}

// handleRequest answers on its own goroutine so a handler may send requests
// of its own back to the UI.
func (h *Host) handleRequest(msg webview.Message) {
	if h.instance(msg.Address) == nil {
		return
	}
	go h.answer(msg)
}

func (h *Host) answer(req webview.Message) {
	fields := loggingpkg.LogFields{"address": req.Address.String(), "type": req.Type, "request_id": req.RequestID}

	var resp webview.Message
	key, ok := lookup(h.requests, req.Address, req.Type)
	if !ok {
		h.log.Warn("No handler for request", fields)
		resp = webview.FailureResponse(req.Address, req.Type, req.RequestID, fmt.Sprintf("no handler for request type %q", req.Type))
	} else if result, err := h.requests.Handle(h.ctx, key, req.Payload); err != nil {
		h.log.Error("Request handler failed", err, fields)
		resp = webview.FailureResponse(req.Address, req.Type, req.RequestID, webview.FailureReason(err))
	} else {
		resp = webview.SuccessResponse(req.Address, req.Type, req.RequestID, result)
	}

	if h.ctx.Err() != nil {
		return
	}
	h.bus.Publish(webview.PluginResponse, resp)
}

func (h *Host) handleResponse(msg webview.Message) {
	if msg.RequestID == "" {
		return
	}
	var settled bool
	if msg.Succeeded() {
		settled = h.pending.Resolve(msg.RequestID, msg.Payload)
	} else {
		settled = h.pending.Reject(msg.RequestID, &errspkg.RequestFailedError{Type: msg.Type, Reason: msg.Reason})
	}
	if !settled {
		h.log.Debug("Ignoring response for unknown request", loggingpkg.LogFields{"request_id": msg.RequestID})
	}
}

// Dispose detaches from the runtime bus, closes every instance bus and fails
// pending requests with errors.ErrDisposed.
func (h *Host) Dispose() {
	h.disposeOnce.Do(func() {
		h.subs.Dispose()
		h.cancel()

		h.mu.Lock()
		instances := h.instances
		h.instances = make(map[webview.Address]*InstanceBus)
		h.plugins = make(map[webview.ID]*Plugin)
		h.mu.Unlock()

		for _, inst := range instances {
			inst.close()
		}
		h.notifications.Dispose()
		h.requests.Dispose()
		h.pending.Dispose()
	})
}

func sortAddresses(addrs []webview.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		if addrs[i].WebviewID != addrs[j].WebviewID {
			return addrs[i].WebviewID < addrs[j].WebviewID
		}
		return addrs[i].WebviewInstanceID < addrs[j].WebviewInstanceID
	})
}
