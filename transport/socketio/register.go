package socketio

import (
	"context"

	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/transport"
)

// Register adds the socket.io transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.SocketIOCapabilities)
}

// Build creates a socket.io transport from cfg. The host mounts Handler()
// on cfg.GetSocketPath().
func Build(_ context.Context, cfg transport.Config, log logging.ServiceLogger) (transport.Transport, error) {
	return New(Options{
		NamespacePrefix: cfg.GetSocketNamespacePrefix(),
		Path:            cfg.GetSocketPath(),
		CORSOrigins:     cfg.GetSocketCORSOrigins(),
		Logger:          log,
	}), nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.SocketIOCapabilities
}
