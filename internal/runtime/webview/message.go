package webview

import (
	"context"
	"errors"

	"github.com/drblury/webviewflow/internal/runtime/disposable"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
)

// Message is the envelope carried by every transport and runtime event.
// Lifecycle events only set the address; notifications add Type and Payload;
// requests add RequestID; responses add Success and, on failure, Reason.
type Message struct {
	Address
	Type      string `json:"type,omitempty"`
	Payload   any    `json:"payload,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Success   *bool  `json:"success,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Lifecycle builds a created/destroyed payload.
func Lifecycle(addr Address) Message {
	return Message{Address: addr}
}

func Notification(addr Address, msgType string, payload any) Message {
	return Message{Address: addr, Type: msgType, Payload: payload}
}

func Request(addr Address, msgType, requestID string, payload any) Message {
	return Message{Address: addr, Type: msgType, RequestID: requestID, Payload: payload}
}

func SuccessResponse(addr Address, msgType, requestID string, payload any) Message {
	ok := true
	return Message{Address: addr, Type: msgType, RequestID: requestID, Payload: payload, Success: &ok}
}

func FailureResponse(addr Address, msgType, requestID, reason string) Message {
	ok := false
	return Message{Address: addr, Type: msgType, RequestID: requestID, Success: &ok, Reason: reason}
}

// Succeeded treats a response without an explicit success flag as successful.
func (m Message) Succeeded() bool {
	return m.Success == nil || *m.Success
}

// WithAddress returns a copy of m routed to addr.
func (m Message) WithAddress(addr Address) Message {
	m.Address = addr
	return m
}

// Body returns the address-less wire form used on socket channels.
func (m Message) Body() map[string]any {
	body := map[string]any{"type": m.Type}
	if m.Payload != nil {
		body["payload"] = m.Payload
	}
	if m.RequestID != "" {
		body["requestId"] = m.RequestID
	}
	if m.Success != nil {
		body["success"] = *m.Success
		if !*m.Success {
			body["reason"] = m.Reason
		}
	}
	return body
}

// NotificationHandler reacts to a fire-and-forget message.
type NotificationHandler func(ctx context.Context, payload any) error

// RequestHandler answers a request; a returned error becomes a failure
// response carrying the error text as reason.
type RequestHandler func(ctx context.Context, payload any) (any, error)

// MessageBus is the contract both ends of a webview conversation expose: the
// client bus inside the UI and the per-instance plugin bus on the host.
type MessageBus interface {
	SendNotification(ctx context.Context, msgType string, payload any) error
	SendRequest(ctx context.Context, msgType string, payload any) (any, error)
	OnNotification(msgType string, handler NotificationHandler) disposable.Disposable
	OnRequest(msgType string, handler RequestHandler) disposable.Disposable
}

// FailureReason renders err as the reason of a failure response. Errors
// raised inside a handler are reported with their own text.
func FailureReason(err error) string {
	var unhandled *errspkg.UnhandledHandlerError
	if errors.As(err, &unhandled) && unhandled.Err != nil {
		return unhandled.Err.Error()
	}
	return err.Error()
}
