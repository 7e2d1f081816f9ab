package handlers

import (
	"context"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/webviewflow/internal/runtime/jsoncodec"
	"github.com/drblury/webviewflow/internal/runtime/webview"
)

// ProtoNotificationHandler processes a notification decoded into a protobuf
// message.
type ProtoNotificationHandler[T proto.Message] func(ctx context.Context, payload T) error

// ProtoRequestHandler answers a request decoded into a protobuf message.
type ProtoRequestHandler[T proto.Message, O proto.Message] func(ctx context.Context, payload T) (O, error)

// ProtoNotification decodes payloads with protojson into a fresh T.
func ProtoNotification[T proto.Message](handler ProtoNotificationHandler[T]) webview.NotificationHandler {
	if handler == nil {
		panic(errspkg.ErrHandlerRequired)
	}
	factory := mustPrototypeFactory[T]()
	return func(ctx context.Context, payload any) error {
		typed, err := decodeProto(factory, payload)
		if err != nil {
			return err
		}
		return handler(ctx, typed)
	}
}

// ProtoRequest decodes payloads into T and renders the O result with
// protojson, so the UI receives the canonical JSON mapping of the message.
func ProtoRequest[T proto.Message, O proto.Message](handler ProtoRequestHandler[T, O]) webview.RequestHandler {
	if handler == nil {
		panic(errspkg.ErrHandlerRequired)
	}
	factory := mustPrototypeFactory[T]()
	return func(ctx context.Context, payload any) (any, error) {
		typed, err := decodeProto(factory, payload)
		if err != nil {
			return nil, err
		}
		out, err := handler(ctx, typed)
		if err != nil {
			return nil, err
		}
		return EncodeProto(out)
	}
}

// EncodeProto renders msg as a JSON-compatible value.
func EncodeProto(msg proto.Message) (any, error) {
	if isNilProto(msg) {
		return nil, nil
	}
	data, err := protojson.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var out any
	if err := jsoncodec.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeProto[T proto.Message](factory func() T, payload any) (T, error) {
	typed := factory()
	if payload == nil {
		return typed, nil
	}
	data, err := jsoncodec.Marshal(payload)
	if err != nil {
		return typed, fmt.Errorf("%w: %v", errspkg.ErrInvalidPayload, err)
	}
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(data, typed); err != nil {
		return typed, fmt.Errorf("%w: decoding %T: %v", errspkg.ErrInvalidPayload, typed, err)
	}
	return typed, nil
}

// mustPrototypeFactory returns a constructor for fresh T values. T must be a
// pointer to a generated message.
func mustPrototypeFactory[T proto.Message]() func() T {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Ptr {
		panic(fmt.Sprintf("webviewflow: proto handler type %v must be a message pointer", typ))
	}
	elem := typ.Elem()
	return func() T {
		return reflect.New(elem).Interface().(T)
	}
}

func isNilProto(msg proto.Message) bool {
	if msg == nil {
		return true
	}
	val := reflect.ValueOf(msg)
	return val.Kind() == reflect.Ptr && val.IsNil()
}
