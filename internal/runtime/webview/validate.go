package webview

import (
	"encoding/json"
	"fmt"

	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/webviewflow/internal/runtime/jsoncodec"
)

// DecodeAddress reads and validates a webview address.
func DecodeAddress(raw any) (Address, error) {
	fields, err := normalize(raw)
	if err != nil {
		return Address{}, err
	}
	return addressFrom(fields)
}

// DecodeNotificationBody validates a notification channel payload.
func DecodeNotificationBody(raw any) (Message, error) {
	fields, err := normalize(raw)
	if err != nil {
		return Message{}, err
	}
	return notificationFrom(fields)
}

// DecodeRequestBody validates a request channel payload.
func DecodeRequestBody(raw any) (Message, error) {
	fields, err := normalize(raw)
	if err != nil {
		return Message{}, err
	}
	return requestFrom(fields)
}

// DecodeResponseBody validates a response channel payload. success is
// required and a failed response must explain itself through reason.
func DecodeResponseBody(raw any) (Message, error) {
	fields, err := normalize(raw)
	if err != nil {
		return Message{}, err
	}
	return responseFrom(fields)
}

// DecodeEvent validates an addressed payload against the shape required by
// event. It accepts both inbound and outbound transport events.
func DecodeEvent(event TransportEvent, raw any) (Message, error) {
	fields, err := normalize(raw)
	if err != nil {
		return Message{}, err
	}
	addr, err := addressFrom(fields)
	if err != nil {
		return Message{}, err
	}

	var msg Message
	switch event {
	case EventInstanceCreated, EventInstanceDestroyed:
		return Lifecycle(addr), nil
	case EventNotificationReceived, EventNotification:
		msg, err = notificationFrom(fields)
	case EventRequestReceived, EventRequest:
		msg, err = requestFrom(fields)
	case EventResponseReceived, EventResponse:
		msg, err = responseFrom(fields)
	default:
		return Message{}, &errspkg.UnknownMessageTypeError{Type: string(event)}
	}
	if err != nil {
		return Message{}, err
	}
	return msg.WithAddress(addr), nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errspkg.ErrInvalidPayload, fmt.Sprintf(format, args...))
}

func normalize(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, invalid("payload is missing")
	case map[string]any:
		return v, nil
	case Message:
		return v.fields(), nil
	case json.RawMessage:
		return unmarshalObject(v)
	case *json.RawMessage:
		if v == nil {
			return nil, invalid("payload is missing")
		}
		return unmarshalObject(*v)
	case []byte:
		return unmarshalObject(v)
	case string:
		return unmarshalObject([]byte(v))
	default:
		var fields map[string]any
		if err := jsoncodec.Convert(v, &fields); err != nil || fields == nil {
			return nil, invalid("payload must be an object, got %T", raw)
		}
		return fields, nil
	}
}

func unmarshalObject(data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := jsoncodec.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, invalid("payload must be a JSON object")
	}
	return fields, nil
}

func (m Message) fields() map[string]any {
	fields := m.Body()
	fields["webviewId"] = string(m.WebviewID)
	fields["webviewInstanceId"] = string(m.WebviewInstanceID)
	return fields
}

func requiredString(fields map[string]any, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", invalid("%s is required", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", invalid("%s must be a string", key)
	}
	if s == "" {
		return "", invalid("%s must not be empty", key)
	}
	return s, nil
}

func addressFrom(fields map[string]any) (Address, error) {
	id, err := requiredString(fields, "webviewId")
	if err != nil {
		return Address{}, err
	}
	instance, err := requiredString(fields, "webviewInstanceId")
	if err != nil {
		return Address{}, err
	}
	return Address{WebviewID: ID(id), WebviewInstanceID: InstanceID(instance)}, nil
}

func notificationFrom(fields map[string]any) (Message, error) {
	msgType, err := requiredString(fields, "type")
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Payload: fields["payload"]}, nil
}

func requestFrom(fields map[string]any) (Message, error) {
	msg, err := notificationFrom(fields)
	if err != nil {
		return Message{}, err
	}
	if msg.RequestID, err = requiredString(fields, "requestId"); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func responseFrom(fields map[string]any) (Message, error) {
	msg, err := requestFrom(fields)
	if err != nil {
		return Message{}, err
	}
	raw, ok := fields["success"]
	if !ok {
		return Message{}, invalid("success is required")
	}
	success, ok := raw.(bool)
	if !ok {
		return Message{}, invalid("success must be a boolean")
	}
	msg.Success = &success
	if !success {
		reason, isString := fields["reason"].(string)
		if !isString {
			return Message{}, invalid("reason must be a string on failed responses")
		}
		msg.Reason = reason
		msg.Payload = nil
	}
	return msg, nil
}
