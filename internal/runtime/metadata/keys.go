package metadata

import "github.com/drblury/webviewflow/internal/runtime/webview"

// Reserved keys set by the broker bridge.
const (
	KeyEvent             = "webview_event"
	KeyWebviewID         = "webview_id"
	KeyWebviewInstanceID = "webview_instance_id"
	KeyMessageType       = "webview_message_type"
	KeyRequestID         = "webview_request_id"
	KeyCorrelationID     = "correlation_id"
	KeyContentType       = "content_type"
)

// ForEvent describes msg travelling as event. The payload itself is encoded
// separately; these headers let consumers route without decoding it.
func ForEvent(event webview.TransportEvent, msg webview.Message) Metadata {
	md := Metadata{KeyEvent: string(event)}
	if !msg.Address.IsZero() {
		md[KeyWebviewID] = string(msg.WebviewID)
		md[KeyWebviewInstanceID] = string(msg.WebviewInstanceID)
	}
	if msg.Type != "" {
		md[KeyMessageType] = msg.Type
	}
	if msg.RequestID != "" {
		md[KeyRequestID] = msg.RequestID
	}
	return md
}

// Event returns the transport event recorded by ForEvent.
func (m Metadata) Event() webview.TransportEvent {
	return webview.TransportEvent(m[KeyEvent])
}

// Address returns the webview address recorded by ForEvent.
func (m Metadata) Address() webview.Address {
	return webview.Address{
		WebviewID:         webview.ID(m[KeyWebviewID]),
		WebviewInstanceID: webview.InstanceID(m[KeyWebviewInstanceID]),
	}
}

// CorrelationID returns the correlation id, if present.
func (m Metadata) CorrelationID() string {
	return m[KeyCorrelationID]
}
