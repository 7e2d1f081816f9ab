// Package aws carries webview events over SNS topics fanned out to SQS
// queues. A custom endpoint (LocalStack) is honoured for both services.
package aws

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/transport"
	"github.com/drblury/webviewflow/transport/broker"
)

// TransportName is the name used to register this transport.
const TransportName = "aws"

const (
	localstackAccountID = "000000000000"
	awsAccountIDLength  = 12
)

// DefaultConfigLoader allows overriding the AWS config loader for testing.
var DefaultConfigLoader = awsconfig.LoadDefaultConfig

// TopicResolverFactory allows overriding the topic resolver creation for testing.
var TopicResolverFactory = sns.NewGenerateArnTopicResolver

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return sns.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return sns.NewSubscriber(cfg, sqsCfg, logger)
}

// Register registers the AWS transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.AWSCapabilities)
}

// Build creates the host side of an SNS/SQS bridge.
func Build(ctx context.Context, cfg transport.Config, log logging.ServiceLogger) (transport.Transport, error) {
	pub, sub, err := PubSub(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return broker.Build(ctx, cfg, log, pub, sub, transport.AWSCapabilities)
}

// PubSub loads the AWS config and opens the SNS publisher and the SNS->SQS
// subscriber used by Build.
func PubSub(ctx context.Context, cfg transport.Config, log logging.ServiceLogger) (message.Publisher, message.Subscriber, error) {
	log = logging.OrNop(log).With(logging.LogFields{"transport": TransportName})
	logger := logging.NewWatermillAdapter(log)

	awsCfg, err := loadAWSConfig(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	accountID, region := resolveAccountAndRegion(cfg, log, awsCfg.Region)
	log.Info("Resolved AWS target", logging.LogFields{
		"account_id":      accountID,
		"region":          region,
		"custom_endpoint": cfg.GetAWSEndpoint() != "",
	})

	arns, err := TopicResolverFactory(accountID, region)
	if err != nil {
		log.Error("Failed to create SNS topic resolver", err, logging.LogFields{"account_id": accountID, "region": region})
		return nil, nil, err
	}
	resolver := topicNameResolver{inner: arns}

	snsOpts, sqsOpts, err := endpointOptions(cfg)
	if err != nil {
		return nil, nil, err
	}

	publisher, err := PublisherFactory(sns.PublisherConfig{
		TopicResolver: resolver,
		AWSConfig:     awsCfg,
		OptFns:        snsOpts,
		Marshaler:     sns.DefaultMarshalerUnmarshaler{},
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	subscriber, err := SubscriberFactory(
		sns.SubscriberConfig{
			AWSConfig:            awsCfg,
			OptFns:               snsOpts,
			TopicResolver:        resolver,
			GenerateSqsQueueName: queueNameFromTopic,
		},
		sqs.SubscriberConfig{
			AWSConfig: awsCfg,
			OptFns:    sqsOpts,
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
	return transport.AWSCapabilities
}

func loadAWSConfig(ctx context.Context, cfg transport.Config, log logging.ServiceLogger) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	region := cfg.GetAWSRegion()
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if key, secret := cfg.GetAWSAccessKeyID(), cfg.GetAWSSecretAccessKey(); key != "" && secret != "" {
		log.Debug("Using static AWS credentials", nil)
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")))
	}

	awsCfg, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		log.Error("Failed to load AWS config", err, logging.LogFields{"requested_region": region})
		return aws.Config{}, err
	}
	// Some loaders ignore WithRegion.
	if region != "" {
		awsCfg.Region = region
	}
	return awsCfg, nil
}

func resolveAccountAndRegion(cfg transport.Config, log logging.ServiceLogger, fallbackRegion string) (string, string) {
	accountID := strings.Trim(cfg.GetAWSAccountID(), "\"' ")
	region := cfg.GetAWSRegion()
	if region == "" {
		region = fallbackRegion
	}

	if cfg.GetAWSEndpoint() == "" {
		return accountID, region
	}
	switch {
	case accountID == "":
		log.Info("AWS account ID empty; using LocalStack default", logging.LogFields{"account_id": localstackAccountID})
		accountID = localstackAccountID
	case len(accountID) != awsAccountIDLength:
		log.Warn("Invalid AWS account ID; using LocalStack default", logging.LogFields{"account_id": accountID})
		accountID = localstackAccountID
	}
	return accountID, region
}

// endpointOptions points both clients at the configured endpoint, if any.
func endpointOptions(cfg transport.Config) ([]func(*amazonsns.Options), []func(*amazonsqs.Options), error) {
	raw := cfg.GetAWSEndpoint()
	if raw == "" {
		return nil, nil, nil
	}
	endpoint, err := url.Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("webviewflow: parsing AWS endpoint: %w", err)
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, nil, fmt.Errorf("webviewflow: AWS endpoint %q must be an absolute URL", raw)
	}

	resolved := smithyendpoints.Endpoint{URI: *endpoint}
	snsOpts := []func(*amazonsns.Options){
		amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{Endpoint: resolved}),
	}
	sqsOpts := []func(*amazonsqs.Options){
		amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{Endpoint: resolved}),
	}
	return snsOpts, sqsOpts, nil
}

// topicNameResolver maps broker topics onto valid SNS topic names. SNS only
// accepts letters, digits, hyphens and underscores.
type topicNameResolver struct {
	inner sns.TopicResolver
}

func (r topicNameResolver) ResolveTopic(ctx context.Context, topic string) (sns.TopicArn, error) {
	return r.inner.ResolveTopic(ctx, SNSTopicName(topic))
}

// SNSTopicName replaces the characters SNS rejects with hyphens.
func SNSTopicName(topic string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, topic)
}

func queueNameFromTopic(_ context.Context, topicArn sns.TopicArn) (string, error) {
	topic, err := sns.ExtractTopicNameFromTopicArn(topicArn)
	if err != nil {
		return "", err
	}
	return string(topic), nil
}
