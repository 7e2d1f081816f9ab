package runtime

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/drblury/webviewflow/internal/runtime/disposable"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/internal/runtime/webview"
	"github.com/drblury/webviewflow/transport"
)

// MediatorFactory builds the mediator for a newly registered transport.
type MediatorFactory func(t transport.Transport, runtimeBus *webview.RuntimeBus, opts MediatorOptions) (*Mediator, error)

// ServiceDependencies holds the optional collaborators of a TransportService.
// Leave fields nil to use the defaults.
type ServiceDependencies struct {
	MediatorFactory MediatorFactory
	Metrics         *Metrics
}

// TransportService owns one mediator per registered transport. It stays
// usable after Dispose; transports registered later get fresh mediators.
type TransportService struct {
	Logger loggingpkg.ServiceLogger

	bus     *webview.RuntimeBus
	factory MediatorFactory
	metrics *Metrics

	mu        sync.Mutex
	mediators map[transport.Transport]*Mediator
	order     []transport.Transport
}

// NewTransportService wires a service onto runtimeBus.
func NewTransportService(runtimeBus *webview.RuntimeBus, log loggingpkg.ServiceLogger, deps ServiceDependencies) *TransportService {
	factory := deps.MediatorFactory
	if factory == nil {
		factory = NewMediator
	}
	return &TransportService{
		Logger:    loggingpkg.OrNop(log),
		bus:       runtimeBus,
		factory:   factory,
		metrics:   deps.Metrics,
		mediators: make(map[transport.Transport]*Mediator),
	}
}

// RegisterTransport creates a mediator for t. Failures never propagate: a nil
// or already registered transport, or a mediator that cannot be built, is
// logged and yields a no-op disposable.
func (s *TransportService) RegisterTransport(t transport.Transport) (d disposable.Disposable) {
	log := s.Logger

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Failed to register transport", fmt.Errorf("panic: %v", rec), loggingpkg.LogFields{
				"stack": string(debug.Stack()),
			})
			d = disposable.Nop
		}
	}()

	if t == nil {
		log.Error("Failed to register transport", errspkg.ErrTransportRequired, nil)
		return disposable.Nop
	}
	name := transportName(t)
	log = log.With(loggingpkg.LogFields{"transport": name})

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.mediators[t]; exists {
		log.Warn("Transport is already registered", loggingpkg.LogFields{"error": errspkg.ErrTransportRegistered.Error()})
		return disposable.Nop
	}

	m, err := s.factory(t, s.bus, MediatorOptions{Name: name, Logger: s.Logger, Metrics: s.metrics})
	if err != nil {
		log.Error("Failed to register transport", err, nil)
		return disposable.Nop
	}
	if m == nil {
		log.Error("Failed to register transport", errspkg.ErrTransportRequired, loggingpkg.LogFields{"reason": "mediator factory returned nil"})
		return disposable.Nop
	}

	s.mediators[t] = m
	s.order = append(s.order, t)
	s.metrics.setTransports(len(s.mediators))
	log.Info("Transport registered", nil)

	return disposable.Func(func() { s.unregister(t, m) })
}

func (s *TransportService) unregister(t transport.Transport, m *Mediator) {
	s.mu.Lock()
	if current, ok := s.mediators[t]; ok && current == m {
		s.removeLocked(t)
	}
	s.mu.Unlock()

	m.Dispose()
	s.Logger.Info("Transport unregistered", loggingpkg.LogFields{"transport": m.Name()})
}

func (s *TransportService) removeLocked(t transport.Transport) {
	delete(s.mediators, t)
	for i, candidate := range s.order {
		if candidate == t {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.metrics.setTransports(len(s.mediators))
}

// IsRegistered reports whether t currently has a mediator.
func (s *TransportService) IsRegistered(t transport.Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.mediators[t]
	return ok
}

// Len returns the number of registered transports.
func (s *TransportService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mediators)
}

// Transports returns the registered transports in registration order.
func (s *TransportService) Transports() []transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Transport(nil), s.order...)
}

// TransportStatus is a snapshot of one registered transport.
type TransportStatus struct {
	Name         string                 `json:"name"`
	Capabilities transport.Capabilities `json:"capabilities"`
	Instances    []string               `json:"instances"`
	Traffic      TrafficStats           `json:"traffic"`
}

// Status returns a snapshot of every registered transport in registration
// order.
func (s *TransportService) Status() []TransportStatus {
	s.mu.Lock()
	order := append([]transport.Transport(nil), s.order...)
	mediators := make([]*Mediator, len(order))
	for i, t := range order {
		mediators[i] = s.mediators[t]
	}
	s.mu.Unlock()

	out := make([]TransportStatus, 0, len(order))
	for i, t := range order {
		m := mediators[i]
		status := TransportStatus{Name: m.Name(), Instances: []string{}, Traffic: m.Traffic()}
		if p, ok := t.(transport.CapabilitiesProvider); ok {
			status.Capabilities = p.Capabilities()
		}
		for _, addr := range m.ManagedInstances() {
			status.Instances = append(status.Instances, addr.String())
		}
		out = append(out, status)
	}
	return out
}

// Dispose tears down every mediator. Transports themselves are left open.
func (s *TransportService) Dispose() {
	s.mu.Lock()
	mediators := make([]*Mediator, 0, len(s.mediators))
	for _, t := range s.order {
		mediators = append(mediators, s.mediators[t])
	}
	s.mediators = make(map[transport.Transport]*Mediator)
	s.order = nil
	s.metrics.setTransports(0)
	s.mu.Unlock()

	for _, m := range mediators {
		m.Dispose()
	}
	if len(mediators) > 0 {
		s.Logger.Info("Transport service disposed", loggingpkg.LogFields{"transports": len(mediators)})
	}
}

// transportName prefers the reported capabilities name and falls back to the
// dynamic type.
func transportName(t transport.Transport) string {
	if p, ok := t.(transport.CapabilitiesProvider); ok {
		if name := p.Capabilities().Name; name != "" {
			return name
		}
	}
	return fmt.Sprintf("%T", t)
}
