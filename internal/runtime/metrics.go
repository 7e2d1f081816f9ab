package runtime

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks mediator traffic. A nil *Metrics records nothing.
type Metrics struct {
	mu sync.Mutex

	inboundTotal  *prometheus.CounterVec
	outboundTotal *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	instances     *prometheus.GaugeVec
	transports    prometheus.Gauge

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webviewflow",
			Subsystem: "mediator",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates the collectors. Call Register to expose them.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:    registerer,
		inboundTotal:  newCounterVec("inbound_events_total", "Transport events republished on the runtime bus", []string{"transport", "event"}),
		outboundTotal: newCounterVec("outbound_events_total", "Runtime bus events forwarded to a transport", []string{"transport", "event"}),
		failuresTotal: newCounterVec("forward_failures_total", "Outbound events the transport failed to publish", []string{"transport", "event"}),
		instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "webviewflow",
			Subsystem: "mediator",
			Name:      "managed_instances",
			Help:      "Webview instances currently managed per transport",
		}, []string{"transport"}),
		transports: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webviewflow",
			Subsystem: "service",
			Name:      "registered_transports",
			Help:      "Transports currently registered with the transport service",
		}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.inboundTotal,
		m.outboundTotal,
		m.failuresTotal,
		m.instances,
		m.transports,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) recordInbound(transport, event string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(transport, event).Inc()
}

func (m *Metrics) recordOutbound(transport, event string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(transport, event).Inc()
}

func (m *Metrics) recordFailure(transport, event string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(transport, event).Inc()
}

func (m *Metrics) setInstances(transport string, n int) {
	if m == nil {
		return
	}
	m.instances.WithLabelValues(transport).Set(float64(n))
}

func (m *Metrics) setTransports(n int) {
	if m == nil {
		return
	}
	m.transports.Set(float64(n))
}

// Reset clears every series (useful for testing).
func (m *Metrics) Reset() {
	m.inboundTotal.Reset()
	m.outboundTotal.Reset()
	m.failuresTotal.Reset()
	m.instances.Reset()
	m.transports.Set(0)
}
