package runtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/drblury/webviewflow/internal/runtime/disposable"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/internal/runtime/webview"
	"github.com/drblury/webviewflow/transport"
)

// MediatorOptions configures a Mediator.
type MediatorOptions struct {
	// Name labels logs and metrics; defaults to "transport".
	Name    string
	Logger  loggingpkg.ServiceLogger
	Metrics *Metrics
}

// Mediator routes traffic between one transport and the runtime bus.
// Inbound transport events are republished under their webview:* names;
// plugin:* events addressed to an instance this transport manages (or to no
// instance at all) are forwarded to the transport.
type Mediator struct {
	name      string
	transport transport.Transport
	bus       *webview.RuntimeBus
	log       loggingpkg.ServiceLogger
	metrics   *Metrics
	traffic   *trafficRecorder

	// inboundMu serializes inbound events: each one updates the managed set
	// and is republished before the next starts.
	inboundMu sync.Mutex
	managedMu sync.RWMutex
	managed   map[webview.Address]struct{}

	subs        *disposable.Composite
	disposeOnce sync.Once
}

// NewMediator subscribes to both directions immediately. If subscribing
// panics, the subscriptions made so far are released before the panic
// continues.
//
// Inbound events are handled one at a time, so a transport must not emit an
// inbound event synchronously from inside a runtime bus handler it triggered;
// that would deadlock the mediator.
func NewMediator(t transport.Transport, runtimeBus *webview.RuntimeBus, opts MediatorOptions) (*Mediator, error) {
	if t == nil {
		return nil, errspkg.ErrTransportRequired
	}
	if runtimeBus == nil {
		return nil, errspkg.ErrRuntimeBusRequired
	}
	name := opts.Name
	if name == "" {
		name = "transport"
	}

	m := &Mediator{
		name:      name,
		transport: t,
		bus:       runtimeBus,
		log:       loggingpkg.OrNop(opts.Logger).With(loggingpkg.LogFields{"transport": name}),
		metrics:   opts.Metrics,
		traffic:   newTrafficRecorder(),
		managed:   make(map[webview.Address]struct{}),
		subs:      disposable.NewComposite(),
	}
	defer func() {
		if rec := recover(); rec != nil {
			m.subs.Dispose()
			panic(rec)
		}
	}()

	for _, event := range webview.InboundEvents() {
		m.subs.Add(t.On(event, m.relayInbound(event)))
	}
	for _, event := range []webview.RuntimeEvent{
		webview.PluginNotification,
		webview.PluginRequest,
		webview.PluginResponse,
	} {
		target, _ := webview.OutboundTransportEvent(event)
		m.subs.Add(runtimeBus.SubscribeFiltered(event, m.forward(target), m.manages))
	}
	return m, nil
}

func (m *Mediator) relayInbound(event webview.TransportEvent) transport.Handler {
	runtimeEvent, _ := webview.InboundRuntimeEvent(event)
	return func(msg webview.Message) {
		m.inboundMu.Lock()
		defer m.inboundMu.Unlock()

		if event == webview.EventInstanceCreated {
			m.setManaged(msg.Address, true)
		}

		m.bus.Publish(runtimeEvent, msg)
		m.metrics.recordInbound(m.name, string(event))
		m.traffic.inbound()

		if event == webview.EventInstanceDestroyed {
			m.setManaged(msg.Address, false)
		}
	}
}

func (m *Mediator) setManaged(addr webview.Address, managed bool) {
	m.managedMu.Lock()
	if managed {
		m.managed[addr] = struct{}{}
	} else {
		delete(m.managed, addr)
	}
	n := len(m.managed)
	m.managedMu.Unlock()

	m.metrics.setInstances(m.name, n)
	m.log.Debug("Managed instances changed", loggingpkg.LogFields{
		"address": addr.String(),
		"managed": managed,
		"count":   n,
	})
}

// manages reports whether msg is for this mediator. Messages without an
// address are system messages and go to every transport.
func (m *Mediator) manages(msg webview.Message) bool {
	if msg.Address.IsZero() {
		return true
	}
	m.managedMu.RLock()
	defer m.managedMu.RUnlock()
	_, ok := m.managed[msg.Address]
	return ok
}

func (m *Mediator) forward(event webview.TransportEvent) func(webview.Message) {
	return func(msg webview.Message) {
		ctx, span := startForwardSpan(context.Background(), m.name, event, msg)
		start := time.Now()
		err := m.transport.Publish(ctx, event, msg)
		m.traffic.forwarded(time.Since(start), err)
		endSpan(span, err)

		if err != nil {
			m.metrics.recordFailure(m.name, string(event))
			m.log.Error("Failed to publish to transport", err, loggingpkg.LogFields{
				"event":   string(event),
				"address": msg.Address.String(),
				"type":    msg.Type,
			})
			return
		}
		m.metrics.recordOutbound(m.name, string(event))
	}
}

// Name returns the label used in logs and metrics.
func (m *Mediator) Name() string {
	return m.name
}

// Traffic returns counters and publish latency for this transport.
func (m *Mediator) Traffic() TrafficStats {
	return m.traffic.snapshot()
}

// ManagedInstances returns the managed addresses in sorted order.
func (m *Mediator) ManagedInstances() []webview.Address {
	m.managedMu.RLock()
	out := make([]webview.Address, 0, len(m.managed))
	for addr := range m.managed {
		out = append(out, addr)
	}
	m.managedMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].WebviewID != out[j].WebviewID {
			return out[i].WebviewID < out[j].WebviewID
		}
		return out[i].WebviewInstanceID < out[j].WebviewInstanceID
	})
	return out
}

// Dispose removes every subscription in both directions. Sockets of managed
// instances are left to the transport.
func (m *Mediator) Dispose() {
	m.disposeOnce.Do(func() {
		m.subs.Dispose()
		m.log.Debug("Mediator disposed", nil)
	})
}
