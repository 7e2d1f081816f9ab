package transports

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/webviewflow/transport"
)

func TestRegisterAll(t *testing.T) {
	RegisterAll()
	RegisterAll()

	for _, name := range []string{"socketio", "jsonrpc", "channel", "nats", "kafka", "rabbitmq", "aws"} {
		assert.True(t, transport.DefaultRegistry.Has(name), name)
		assert.Equal(t, name, transport.GetCapabilities(name).Name)
	}
}
