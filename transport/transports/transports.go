// Package transports registers every built-in transport with the default
// registry.
package transports

import (
	"sync"

	"github.com/drblury/webviewflow/transport/aws"
	"github.com/drblury/webviewflow/transport/channel"
	"github.com/drblury/webviewflow/transport/jsonrpc"
	"github.com/drblury/webviewflow/transport/kafka"
	"github.com/drblury/webviewflow/transport/nats"
	"github.com/drblury/webviewflow/transport/rabbitmq"
	"github.com/drblury/webviewflow/transport/socketio"
)

var registerOnce sync.Once

// RegisterAll adds the socket, JSON-RPC and broker transports. Calling it
// more than once is harmless.
func RegisterAll() {
	registerOnce.Do(func() {
		socketio.Register()
		jsonrpc.Register()
		channel.Register()
		nats.Register()
		kafka.Register()
		rabbitmq.Register()
		aws.Register()
	})
}
