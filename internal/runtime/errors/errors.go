package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrHandlerRequired     = sterrors.New("webviewflow: handler function is required")
	ErrTransportRequired   = sterrors.New("webviewflow: transport is required")
	ErrTransportRegistered = sterrors.New("webviewflow: transport is already registered")
	ErrRuntimeBusRequired  = sterrors.New("webviewflow: runtime message bus is required")
	ErrConnectionRequired  = sterrors.New("webviewflow: connection is required")
	ErrSocketRequired      = sterrors.New("webviewflow: socket is required")
	ErrPublisherRequired   = sterrors.New("webviewflow: publisher is required")
	ErrSubscriberRequired  = sterrors.New("webviewflow: subscriber is required")
	ErrConfigRequired      = sterrors.New("webviewflow: configuration is required")
	ErrLoggerRequired      = sterrors.New("webviewflow: logger is required")
	ErrDisposed            = sterrors.New("webviewflow: component has been disposed")
	ErrInvalidPayload      = sterrors.New("webviewflow: invalid payload")
	ErrUnknownMessageType  = sterrors.New("webviewflow: unknown message type")
	ErrUnknownTransport    = sterrors.New("webviewflow: unknown transport")
	ErrWebviewRegistered   = sterrors.New("webviewflow: webview is already registered")
	ErrInstanceClosed      = sterrors.New("webviewflow: webview instance is disconnected")

	// ErrRequestTimedOut keeps the exact text surfaced to request callers.
	ErrRequestTimedOut = sterrors.New("Request timed out")
)

// UnknownMessageTypeError is returned by transports asked to publish an event
// category they do not carry.
type UnknownMessageTypeError struct {
	Type string
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("webviewflow: unknown message type %q", e.Type)
}

func (e *UnknownMessageTypeError) Is(target error) bool {
	return target == ErrUnknownMessageType
}

// HandlerNotFoundError reports a dispatch against a key with no handler.
type HandlerNotFoundError struct {
	Key string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("webviewflow: no handler found for %q", e.Key)
}

// UnhandledHandlerError wraps a failure raised inside a registered handler.
// Stack is captured where the failure was wrapped; for panics it includes
// the panicking frames.
type UnhandledHandlerError struct {
	Key   string
	Err   error
	Stack []byte
}

func (e *UnhandledHandlerError) Error() string {
	return fmt.Sprintf("webviewflow: unhandled error in handler %q: %v", e.Key, e.Err)
}

func (e *UnhandledHandlerError) Unwrap() error {
	return e.Err
}

// RequestFailedError is the caller-side view of a `success: false` response.
type RequestFailedError struct {
	Type   string
	Reason string
}

func (e *RequestFailedError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("webviewflow: request failed: %s", e.Reason)
	}
	return fmt.Sprintf("webviewflow: request %q failed: %s", e.Type, e.Reason)
}

// ConfigValidationError wraps configuration problems reported by Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "webviewflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
