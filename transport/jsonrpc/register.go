package jsonrpc

import (
	"context"

	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/transport"
)

// ConnFactory opens the peer connection for the registry builder. The default
// speaks over the process standard streams.
var ConnFactory = func(ctx context.Context, log logging.ServiceLogger) (Connection, error) {
	return NewConn(ctx, stdio{}, log), nil
}

// Register adds the JSON-RPC transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.JSONRPCCapabilities)
}

// Build creates a JSON-RPC transport with method names taken from cfg.
func Build(ctx context.Context, cfg transport.Config, log logging.ServiceLogger) (transport.Transport, error) {
	conn, err := ConnFactory(ctx, log)
	if err != nil {
		return nil, err
	}
	t, err := New(conn, Methods{
		Created:      cfg.GetJSONRPCCreatedMethod(),
		Destroyed:    cfg.GetJSONRPCDestroyedMethod(),
		Notification: cfg.GetJSONRPCNotificationMethod(),
	}, log)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.JSONRPCCapabilities
}
