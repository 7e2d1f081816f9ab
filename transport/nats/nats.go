// Package nats carries webview events over NATS Core subjects.
package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/transport"
	"github.com/drblury/webviewflow/transport/broker"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// connectionName identifies the host in NATS server monitoring.
const connectionName = "webviewflow"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

// Register registers the NATS transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates the host side of a NATS bridge. Webview traffic is live, so
// JetStream persistence stays off.
func Build(ctx context.Context, cfg transport.Config, log logging.ServiceLogger) (transport.Transport, error) {
	pub, sub, err := PubSub(cfg, log)
	if err != nil {
		return nil, err
	}
	return broker.Build(ctx, cfg, log, pub, sub, transport.NATSCapabilities)
}

// PubSub opens the publisher and subscriber used by Build. Edge processes use
// it to attach a broker.Relay to the same subjects.
func PubSub(cfg transport.Config, log logging.ServiceLogger) (message.Publisher, message.Subscriber, error) {
	logger := logging.NewWatermillAdapter(logging.OrNop(log))
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}
	options := []nc.Option{nc.Name(connectionName), nc.MaxReconnects(-1)}
	jetStream := nats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: options,
			Marshaler:   marshaler,
			JetStream:   jetStream,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:         url,
			NatsOptions: options,
			Unmarshaler: marshaler,
			JetStream:   jetStream,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return nil, nil, err
	}
	return publisher, subscriber, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
