// Package webviewflow is the messaging substrate between a host process and
// the webviews it serves. Webview instances connect through a transport (a
// socket.io server, a JSON-RPC connection to an editor, or a Watermill
// broker such as NATS, Kafka, RabbitMQ, AWS SNS/SQS or Go channels), and
// host-side plugins talk to them through a process-wide RuntimeBus without
// knowing which transport carries the traffic.
//
// A minimal host creates a RuntimeBus, a TransportService and a PluginHost,
// registers a plugin per webview id, then registers each transport with the
// service:
//
//	runtimeBus := webviewflow.NewRuntimeBus()
//	svc := webviewflow.NewTransportService(runtimeBus, log, webviewflow.ServiceDependencies{})
//	host, _ := webviewflow.NewPluginHost(runtimeBus, webviewflow.PluginHostOptions{Logger: log})
//	chat, _ := host.Register("chat")
//	chat.OnRequest("getUser", webviewflow.JSONRequest(getUser))
//	svc.RegisterTransport(socketTransport)
//
// # Transports
//
// RegisterAllTransports adds the bundled transports to the default registry:
//   - socketio: one namespace per webview id, a fresh instance id per connection
//   - jsonrpc: $/gitlab/webview/* notifications over stdio
//   - channel: in-process Go channels for tests and single-binary setups
//   - nats, kafka, rabbitmq, aws: bridge webview traffic over a broker
//
// BuildTransports builds the transports named in Config.Transports.
//
// # Routing
//
// Each registered transport gets a Mediator. Inbound events are republished
// as webview:* events; plugin:* events reach only the transport that manages
// the addressed instance, while messages without an address go to every
// transport.
//
// # Client side
//
// The client package implements the webview end of the socket transport,
// including request timeouts ("Request timed out" after 10 seconds by default).
package webviewflow
