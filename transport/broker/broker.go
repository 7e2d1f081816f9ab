// Package broker carries the webview transport contract over a watermill
// pub/sub, so UI instances connected to another process can be mediated like
// local ones.
//
// Each transport event travels on its own topic, "<prefix>.<event>". The host
// side (Transport) consumes the webview_instance_* inbound topics and
// publishes the outbound ones; the edge side (Relay) does the opposite on
// behalf of a local transport such as the socket server.
package broker

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/webviewflow/internal/runtime/config"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/internal/runtime/webview"
	"github.com/drblury/webviewflow/transport"
)

// Options configures a broker Transport or Relay.
type Options struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	// TopicPrefix defaults to config.DefaultBrokerTopicPrefix.
	TopicPrefix string
	// Codec defaults to JSONCodec.
	Codec Codec

	// Capabilities is reported by the host-side transport. Its Name labels
	// logs and router handlers.
	Capabilities transport.Capabilities

	Logger logging.ServiceLogger

	// MetricsRegisterer enables the watermill router metrics.
	MetricsRegisterer prometheus.Registerer

	// ClosePubSub closes Publisher and Subscriber on Dispose.
	ClosePubSub bool
}

func (o Options) endpointConfig(defaultName string) endpointConfig {
	name := o.Capabilities.Name
	if name == "" {
		name = defaultName
	}
	prefix := o.TopicPrefix
	if prefix == "" {
		prefix = config.DefaultBrokerTopicPrefix
	}
	codec := o.Codec
	if codec == nil {
		codec = JSONCodec{}
	}
	return endpointConfig{
		name:              name,
		publisher:         o.Publisher,
		subscriber:        o.Subscriber,
		prefix:            prefix,
		codec:             codec,
		log:               logging.OrNop(o.Logger).With(logging.LogFields{"broker": name, "topic_prefix": prefix}),
		metricsRegisterer: o.MetricsRegisterer,
		closePubSub:       o.ClosePubSub,
	}
}

// Transport is the host side of the bridge.
type Transport struct {
	*transport.EventSource

	caps     transport.Capabilities
	endpoint *endpoint

	disposeOnce sync.Once
}

var _ transport.Transport = (*Transport)(nil)

// New starts consuming the inbound topics. It returns once the router runs.
func New(ctx context.Context, opts Options) (*Transport, error) {
	t := &Transport{EventSource: transport.NewEventSource(), caps: opts.Capabilities}
	cfg := opts.endpointConfig("broker")
	if t.caps.Name == "" {
		t.caps.Name = cfg.name
	}

	ep, err := newEndpoint(ctx, cfg, webview.InboundEvents(), func(event webview.TransportEvent, msg webview.Message) {
		t.Emit(event, msg)
	})
	if err != nil {
		return nil, err
	}
	t.endpoint = ep
	return t, nil
}

// Publish sends an outbound event to its topic. Inbound event names are
// rejected with an unknown message type error.
func (t *Transport) Publish(ctx context.Context, event webview.TransportEvent, msg webview.Message) error {
	if !isOutbound(event) {
		return &errspkg.UnknownMessageTypeError{Type: string(event)}
	}
	return t.endpoint.publish(ctx, event, msg)
}

// Topic returns the topic used for event.
func (t *Transport) Topic(event webview.TransportEvent) string {
	return Topic(t.endpoint.prefix, event)
}

func (t *Transport) Capabilities() transport.Capabilities {
	return t.caps
}

// Dispose stops the router and drops every handler.
func (t *Transport) Dispose() {
	t.disposeOnce.Do(func() {
		t.endpoint.close()
		t.Close()
	})
}

// Build assembles a host-side transport from cfg for the builder
// subpackages. The publisher and subscriber are owned by the transport.
func Build(ctx context.Context, cfg transport.Config, log logging.ServiceLogger, pub message.Publisher, sub message.Subscriber, caps transport.Capabilities) (transport.Transport, error) {
	codec, err := CodecByName(cfg.GetBrokerCodec())
	if err != nil {
		return nil, err
	}
	t, err := New(ctx, Options{
		Publisher:    pub,
		Subscriber:   sub,
		TopicPrefix:  cfg.GetBrokerTopicPrefix(),
		Codec:        codec,
		Capabilities: caps,
		Logger:       log,
		ClosePubSub:  true,
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
