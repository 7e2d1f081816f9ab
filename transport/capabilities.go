package transport

// Capabilities describes what a transport can carry and how it is deployed.
type Capabilities struct {
	// Name is the registry name of the transport.
	Name string

	// SupportsRequests indicates the transport carries request/response
	// exchanges in both directions. When false only notifications and
	// lifecycle events travel over it.
	SupportsRequests bool

	// SupportsResponses indicates inbound responses can be received.
	SupportsResponses bool

	// MultiInstance indicates a single transport serves many webview
	// instances at once.
	MultiInstance bool

	// CrossProcess indicates the UI instances live behind a broker in
	// another process.
	CrossProcess bool
}

// NotificationsOnly reports whether the transport can only carry
// fire-and-forget traffic.
func (c Capabilities) NotificationsOnly() bool {
	return !c.SupportsRequests && !c.SupportsResponses
}

// Predefined capability sets for the built-in transports.
var (
	SocketIOCapabilities = Capabilities{
		Name:              "socketio",
		SupportsRequests:  true,
		SupportsResponses: true,
		MultiInstance:     true,
	}

	// JSONRPCCapabilities for a single editor connection. Only notifications
	// flow outbound.
	JSONRPCCapabilities = Capabilities{
		Name:          "jsonrpc",
		MultiInstance: true,
	}

	ChannelCapabilities = Capabilities{
		Name:              "channel",
		SupportsRequests:  true,
		SupportsResponses: true,
		MultiInstance:     true,
	}

	NATSCapabilities = Capabilities{
		Name:              "nats",
		SupportsRequests:  true,
		SupportsResponses: true,
		MultiInstance:     true,
		CrossProcess:      true,
	}

	KafkaCapabilities = Capabilities{
		Name:              "kafka",
		SupportsRequests:  true,
		SupportsResponses: true,
		MultiInstance:     true,
		CrossProcess:      true,
	}

	RabbitMQCapabilities = Capabilities{
		Name:              "rabbitmq",
		SupportsRequests:  true,
		SupportsResponses: true,
		MultiInstance:     true,
		CrossProcess:      true,
	}

	AWSCapabilities = Capabilities{
		Name:              "aws",
		SupportsRequests:  true,
		SupportsResponses: true,
		MultiInstance:     true,
		CrossProcess:      true,
	}
)

// GetCapabilities returns the capabilities for a transport by name from the
// default registry. Unknown names yield a zero Capabilities with Name set.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
