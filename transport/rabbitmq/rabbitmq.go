// Package rabbitmq carries webview events over AMQP exchanges.
package rabbitmq

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/transport"
	"github.com/drblury/webviewflow/transport/broker"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// queueSuffix is appended to each topic to name the host's queue.
const queueSuffix = "webviewflow"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// CloseConnection allows overriding how the shared connection is closed.
var CloseConnection = func(conn *amqp.ConnectionWrapper) error {
	return conn.Close()
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

// Register registers the RabbitMQ transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// Build creates the host side of a RabbitMQ bridge.
func Build(ctx context.Context, cfg transport.Config, log logging.ServiceLogger) (transport.Transport, error) {
	pub, sub, err := PubSub(cfg, log)
	if err != nil {
		return nil, err
	}
	return broker.Build(ctx, cfg, log, pub, sub, transport.RabbitMQCapabilities)
}

// PubSub opens one AMQP connection shared by the publisher and subscriber.
// Closing the subscriber also closes the connection.
func PubSub(cfg transport.Config, log logging.ServiceLogger) (message.Publisher, message.Subscriber, error) {
	logger := logging.NewWatermillAdapter(logging.OrNop(log))
	url := cfg.GetRabbitMQURL()

	// Queues are dropped with the connection; missed webview traffic is not
	// worth redelivering.
	amqpConfig := amqp.NewNonDurablePubSubConfig(
		url,
		amqp.GenerateQueueNameTopicNameWithSuffix(queueSuffix),
	)

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		TLSConfig: nil,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		_ = CloseConnection(conn)
		return nil, nil, err
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		_ = publisher.Close()
		_ = CloseConnection(conn)
		return nil, nil, err
	}
	return publisher, &connSubscriber{Subscriber: subscriber, conn: conn}, nil
}

// connSubscriber ties the shared connection to the subscriber's lifetime.
type connSubscriber struct {
	message.Subscriber
	conn *amqp.ConnectionWrapper
}

func (s *connSubscriber) Close() error {
	return errors.Join(s.Subscriber.Close(), CloseConnection(s.conn))
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}
