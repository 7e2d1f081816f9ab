/*
Package runtime connects webview transports to the process-wide runtime bus.

# Architecture Overview

Webview instances reach the host through transports (a socket server, a
JSON-RPC connection, a message broker). Plugins never talk to a transport
directly: they publish and subscribe on a webview.RuntimeBus, and one
Mediator per transport moves traffic between the two.

# Package Structure

## Transport Service (service.go)

TransportService owns the mediators. RegisterTransport never fails loudly: a
duplicate registration, a mediator factory error or a panic is logged and a
no-op disposable is returned. Dispose tears every mediator down and leaves the
service ready for new registrations.

## Mediator (mediator.go)

A Mediator republishes inbound transport events under their webview:* names
and forwards plugin:* events back to the transport:

	webview_instance_created              -> webview:connect
	webview_instance_destroyed            -> webview:disconnect
	webview_instance_notification_received -> webview:notification
	webview_instance_request_received      -> webview:request
	webview_instance_response_received     -> webview:response

	plugin:notification -> webview_instance_notification
	plugin:request      -> webview_instance_request
	plugin:response     -> webview_instance_response

An instance is marked managed before webview:connect is published and
unmanaged after webview:disconnect. Only plugin:* messages addressed to a
managed instance, or carrying no address, reach the transport.

## Observability (metrics.go, tracing.go, stats.go, status.go)

Metrics exports Prometheus counters per transport and event. Each forward is
wrapped in an OpenTelemetry span. Traffic counters and publish latency
percentiles are kept per mediator and served as JSON by StatusHandler.

## HTTP Server (server.go)

HTTPServer mounts the socket endpoint, /metrics and /status on one listener
and shuts down gracefully when its context is cancelled.

# Subpackages

  - webview: addresses, messages, event names and the RuntimeBus
  - bus: the generic synchronous message bus
  - registry: handler registries keyed by string or by hashed key
  - plugin: the plugin host that binds handlers to runtime bus events
  - pending: outstanding request tracking with timeouts
  - handlers: typed JSON and protobuf payload adapters
  - config, logging, metadata, errors, jsoncodec, ids, cloudevents, disposable
*/
package runtime
