// Package kafka carries webview events over Kafka topics. Messages are
// partitioned by webview instance so every instance sees its traffic in order.
package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/webviewflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/webviewflow/internal/runtime/metadata"
	"github.com/drblury/webviewflow/transport"
	"github.com/drblury/webviewflow/transport/broker"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

// Register registers the Kafka transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates the host side of a Kafka bridge.
func Build(ctx context.Context, cfg transport.Config, log logging.ServiceLogger) (transport.Transport, error) {
	pub, sub, err := PubSub(cfg, log)
	if err != nil {
		return nil, err
	}
	return broker.Build(ctx, cfg, log, pub, sub, transport.KafkaCapabilities)
}

// PubSub opens the publisher and subscriber used by Build.
func PubSub(cfg transport.Config, log logging.ServiceLogger) (message.Publisher, message.Subscriber, error) {
	logger := logging.NewWatermillAdapter(logging.OrNop(log))
	brokers := cfg.GetKafkaBrokers()
	marshaler := kafka.NewWithPartitioningMarshaler(PartitionKey)

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: marshaler,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	saramaCfg := kafka.DefaultSaramaSubscriberConfig()
	// Instances that connect later must not replay old traffic.
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           marshaler,
			ConsumerGroup:         cfg.GetKafkaConsumerGroup(),
			OverwriteSaramaConfig: saramaCfg,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return nil, nil, err
	}
	return publisher, subscriber, nil
}

// PartitionKey keys a message by its webview address. Unaddressed broadcasts
// share the webview_event key.
func PartitionKey(_ string, msg *message.Message) (string, error) {
	md := metadatapkg.FromWatermill(msg.Metadata)
	if addr := md.Address(); !addr.IsZero() {
		return addr.String(), nil
	}
	return string(md.Event()), nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
