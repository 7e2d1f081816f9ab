// Package handlers adapts typed functions to the untyped notification and
// request handlers accepted by message buses. Payloads arrive as whatever the
// transport decoded (usually map[string]any) and are re-encoded into the
// handler's parameter type.
package handlers

import (
	"context"
	"fmt"

	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/webviewflow/internal/runtime/jsoncodec"
	"github.com/drblury/webviewflow/internal/runtime/webview"
)

// JSONNotificationHandler processes a typed notification payload.
type JSONNotificationHandler[T any] func(ctx context.Context, payload T) error

// JSONRequestHandler answers a typed request payload.
type JSONRequestHandler[T any, O any] func(ctx context.Context, payload T) (O, error)

// JSONNotification converts handler into a webview.NotificationHandler. It
// panics on a nil handler, like registering one would.
func JSONNotification[T any](handler JSONNotificationHandler[T]) webview.NotificationHandler {
	if handler == nil {
		panic(errspkg.ErrHandlerRequired)
	}
	return func(ctx context.Context, payload any) error {
		typed, err := decodeJSON[T](payload)
		if err != nil {
			return err
		}
		return handler(ctx, typed)
	}
}

// JSONRequest converts handler into a webview.RequestHandler. The returned
// value is sent back as-is; the transport encodes it.
func JSONRequest[T any, O any](handler JSONRequestHandler[T, O]) webview.RequestHandler {
	if handler == nil {
		panic(errspkg.ErrHandlerRequired)
	}
	return func(ctx context.Context, payload any) (any, error) {
		typed, err := decodeJSON[T](payload)
		if err != nil {
			return nil, err
		}
		return handler(ctx, typed)
	}
}

func decodeJSON[T any](payload any) (T, error) {
	var typed T
	if v, ok := payload.(T); ok {
		return v, nil
	}
	if payload == nil {
		return typed, nil
	}
	if err := jsoncodec.Convert(payload, &typed); err != nil {
		return typed, fmt.Errorf("%w: decoding %T: %v", errspkg.ErrInvalidPayload, typed, err)
	}
	return typed, nil
}
