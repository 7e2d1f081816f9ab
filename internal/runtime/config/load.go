package config

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. WEBVIEWFLOW_NATS_URL.
const EnvPrefix = "WEBVIEWFLOW"

func setDefaults(v *viper.Viper) {
	v.SetDefault("transports", []string{"socketio"})
	v.SetDefault("listen_address", DefaultListenAddress)
	v.SetDefault("request_timeout", DefaultRequestTimeout)

	v.SetDefault("socket_path", DefaultSocketPath)
	v.SetDefault("socket_namespace_prefix", DefaultSocketNamespacePrefix)
	v.SetDefault("socket_cors_origins", []string{})

	v.SetDefault("jsonrpc_created_method", DefaultJSONRPCCreatedMethod)
	v.SetDefault("jsonrpc_destroyed_method", DefaultJSONRPCDestroyedMethod)
	v.SetDefault("jsonrpc_notification_method", DefaultJSONRPCNotificationMethod)

	v.SetDefault("broker_topic_prefix", DefaultBrokerTopicPrefix)
	v.SetDefault("broker_codec", DefaultBrokerCodec)
	v.SetDefault("kafka_brokers", []string{})
	v.SetDefault("kafka_consumer_group", "webviewflow")
	v.SetDefault("rabbitmq_url", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("aws_region", "")
	v.SetDefault("aws_account_id", "")
	v.SetDefault("aws_access_key_id", "")
	v.SetDefault("aws_secret_access_key", "")
	v.SetDefault("aws_endpoint", "")

	v.SetDefault("metrics_enabled", true)
	v.SetDefault("status_enabled", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// BindServeFlags binds the serve command's flags to viper keys.
func BindServeFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.String("config", "", "config file path")
	f.StringSlice("transport", nil, "transports to start (socketio, jsonrpc, channel, nats, kafka, rabbitmq, aws)")
	f.String("addr", "", "HTTP listen address for the socket endpoint, /metrics and /status")
	f.Duration("request-timeout", 0, "timeout for requests awaiting a response")
	f.String("namespace-prefix", "", "socket namespace prefix; the webview id follows it")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (json, text)")

	_ = v.BindPFlag("transports", f.Lookup("transport"))
	_ = v.BindPFlag("listen_address", f.Lookup("addr"))
	_ = v.BindPFlag("request_timeout", f.Lookup("request-timeout"))
	_ = v.BindPFlag("socket_namespace_prefix", f.Lookup("namespace-prefix"))
	_ = v.BindPFlag("log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("log_format", f.Lookup("log-format"))
}

// Load merges defaults, an optional config file, WEBVIEWFLOW_* environment
// variables and bound flags. A missing config file is only an error when
// configFile was given explicitly.
func Load(v *viper.Viper, configFile string, configPaths ...string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("webviewflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		for _, p := range configPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
