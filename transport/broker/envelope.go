package broker

import (
	"github.com/drblury/webviewflow/internal/runtime/webview"
)

// Topic returns the broker topic that carries event.
func Topic(prefix string, event webview.TransportEvent) string {
	return prefix + "." + string(event)
}

func envelope(msg webview.Message) map[string]any {
	fields := msg.Body()
	if !msg.Address.IsZero() {
		fields["webviewId"] = string(msg.WebviewID)
		fields["webviewInstanceId"] = string(msg.WebviewInstanceID)
	}
	return fields
}

func isOutbound(event webview.TransportEvent) bool {
	switch event {
	case webview.EventNotification, webview.EventRequest, webview.EventResponse:
		return true
	}
	return false
}

// openEnvelope validates fields against event. Outbound events may omit the
// address, which marks a message for every instance.
func openEnvelope(event webview.TransportEvent, fields map[string]any) (webview.Message, error) {
	_, hasID := fields["webviewId"]
	_, hasInstance := fields["webviewInstanceId"]
	if hasID || hasInstance || !isOutbound(event) {
		return webview.DecodeEvent(event, fields)
	}

	switch event {
	case webview.EventRequest:
		return webview.DecodeRequestBody(fields)
	case webview.EventResponse:
		return webview.DecodeResponseBody(fields)
	default:
		return webview.DecodeNotificationBody(fields)
	}
}
