package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	runtimepkg "github.com/drblury/webviewflow/internal/runtime"
	"github.com/drblury/webviewflow/internal/runtime/config"
	"github.com/drblury/webviewflow/internal/runtime/disposable"
	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/internal/runtime/plugin"
	"github.com/drblury/webviewflow/internal/runtime/webview"
	"github.com/drblury/webviewflow/transport"
	"github.com/drblury/webviewflow/transport/transports"
)

// httpTransport is implemented by transports that serve their own endpoint.
type httpTransport interface {
	Handler() http.Handler
}

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured transports",
		Long: `Serve the configured transports on one runtime bus.

The socket.io endpoint, /metrics and /status share the listen address.
Broker transports connect to their brokers on start.

Examples:
  webviewflow serve
  webviewflow serve --transport socketio,nats --addr :9090
  webviewflow serve --config /etc/webviewflow/webviewflow.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(v, configFile, "/etc/webviewflow")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.ListenAddress)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return serve(ctx, &cfg, log, ln, prometheus.NewRegistry())
		},
	}

	config.BindServeFlags(cmd, v)
	return cmd
}

// serve validates cfg, runs until ctx is cancelled and closes ln on return.
// Every transport is built before the first request is accepted.
func serve(ctx context.Context, cfg *config.Config, log logging.ServiceLogger, ln net.Listener, registry *prometheus.Registry) error {
	defer ln.Close()
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}
	log = logging.OrNop(log)
	transports.RegisterAll()
	log.Info("Starting webviewflow", logging.LogFields{"version": version, "config": cfg.String()})

	var metrics *runtimepkg.Metrics
	if cfg.MetricsEnabled {
		metrics = runtimepkg.NewMetrics(registry)
		if err := metrics.Register(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	runtimeBus := webview.NewRuntimeBus()
	defer runtimeBus.Dispose()

	svc := runtimepkg.NewTransportService(runtimeBus, log, runtimepkg.ServiceDependencies{Metrics: metrics})
	defer svc.Dispose()

	host, err := plugin.NewHost(runtimeBus, plugin.Options{RequestTimeout: cfg.GetRequestTimeout(), Logger: log})
	if err != nil {
		return err
	}
	defer host.Dispose()

	subs := disposable.NewComposite(
		runtimeBus.Subscribe(webview.RuntimeConnect, func(msg webview.Message) {
			log.Info("Webview instance connected", logging.LogFields{"address": msg.Address.String()})
		}),
		runtimeBus.Subscribe(webview.RuntimeDisconnect, func(msg webview.Message) {
			log.Info("Webview instance disconnected", logging.LogFields{"address": msg.Address.String()})
		}),
	)
	defer subs.Dispose()

	server := runtimepkg.NewHTTPServer(cfg.ListenAddress, log)
	for _, name := range cfg.Transports {
		t, err := transport.Build(ctx, name, cfg, log)
		if err != nil {
			return fmt.Errorf("build transport %q: %w", name, err)
		}
		if c, ok := t.(transport.Closer); ok {
			defer c.Dispose()
		}
		if h, ok := t.(httpTransport); ok {
			server.RegisterHTTPHandler(cfg.GetSocketPath()+"/", h.Handler())
		}
		subs.Add(svc.RegisterTransport(t))
	}

	if cfg.MetricsEnabled {
		server.RegisterMetrics(registry)
	}
	if cfg.StatusEnabled {
		server.RegisterHTTPHandler("/status", runtimepkg.NewStatusHandler(svc, cfg.GetSocketCORSOrigins()))
	}

	return server.Serve(ctx, ln)
}
