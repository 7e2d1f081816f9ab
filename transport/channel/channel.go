// Package channel bridges webview transports inside one process over an
// in-memory watermill pub/sub. It is useful for tests and local development,
// where the socket server and the host share a binary but are wired like a
// cross-process deployment.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/transport"
	"github.com/drblury/webviewflow/transport/broker"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

var (
	sharedOnce sync.Once
	sharedPub  message.Publisher
	sharedSub  message.Subscriber
)

// Shared returns the process-wide pub/sub used by Build and NewRelay. The
// first caller's logger is kept.
func Shared(log logging.ServiceLogger) (message.Publisher, message.Subscriber) {
	sharedOnce.Do(func() {
		sharedPub, sharedSub = Factory(gochannel.Config{OutputChannelBuffer: 256}, logging.NewWatermillAdapter(logging.OrNop(log)))
	})
	return sharedPub, sharedSub
}

// Register registers the channel transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates the host side of the in-process bridge. The shared pub/sub
// outlives the transport.
func Build(ctx context.Context, cfg transport.Config, log logging.ServiceLogger) (transport.Transport, error) {
	pub, sub := Shared(log)
	codec, err := broker.CodecByName(cfg.GetBrokerCodec())
	if err != nil {
		return nil, err
	}
	t, err := broker.New(ctx, broker.Options{
		Publisher:    pub,
		Subscriber:   sub,
		TopicPrefix:  cfg.GetBrokerTopicPrefix(),
		Codec:        codec,
		Capabilities: transport.ChannelCapabilities,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// NewRelay attaches local to the shared pub/sub, so a transport built by
// Build sees local's instances.
func NewRelay(ctx context.Context, local transport.Transport, cfg transport.Config, log logging.ServiceLogger) (*broker.Relay, error) {
	pub, sub := Shared(log)
	codec, err := broker.CodecByName(cfg.GetBrokerCodec())
	if err != nil {
		return nil, err
	}
	return broker.NewRelay(ctx, local, broker.Options{
		Publisher:   pub,
		Subscriber:  sub,
		TopicPrefix: cfg.GetBrokerTopicPrefix(),
		Codec:       codec,
		Logger:      log,
	})
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
