package broker

import (
	"fmt"

	"github.com/drblury/webviewflow/internal/runtime/cloudevents"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/webviewflow/internal/runtime/jsoncodec"
	"github.com/drblury/webviewflow/internal/runtime/webview"
)

const (
	defaultEventSource = "/webviewflow"
	eventTypePrefix    = "webviewflow."
)

// CloudEventsCodec writes each message as a structured-mode CloudEvents JSON
// event. The body becomes data and the address travels in the webviewid and
// webviewinstanceid extensions.
type CloudEventsCodec struct {
	// Source defaults to "/webviewflow".
	Source string
}

func (CloudEventsCodec) Name() string        { return CodecCloudEvents }
func (CloudEventsCodec) ContentType() string { return cloudevents.ContentType }

// EventType returns the CloudEvents type used for event.
func EventType(event webview.TransportEvent) string {
	return eventTypePrefix + string(event)
}

func (c CloudEventsCodec) Encode(event webview.TransportEvent, envelope map[string]any) ([]byte, error) {
	source := c.Source
	if source == "" {
		source = defaultEventSource
	}

	data := make(map[string]any, len(envelope))
	for k, v := range envelope {
		data[k] = v
	}
	id, _ := data["webviewId"].(string)
	instance, _ := data["webviewInstanceId"].(string)
	delete(data, "webviewId")
	delete(data, "webviewInstanceId")

	evt := cloudevents.New(EventType(event), source, data).
		WithExtension(cloudevents.ExtWebviewID, id).
		WithExtension(cloudevents.ExtWebviewInstanceID, instance)
	if requestID, ok := data["requestId"].(string); ok {
		evt = evt.WithExtension(cloudevents.ExtCorrelationID, requestID)
	}
	if id != "" {
		evt.Subject = id + "/" + instance
	}
	return jsoncodec.Marshal(evt)
}

func (CloudEventsCodec) Decode(event webview.TransportEvent, payload []byte) (map[string]any, error) {
	var evt cloudevents.Event
	if err := jsoncodec.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", errspkg.ErrInvalidPayload, err)
	}
	if err := evt.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errspkg.ErrInvalidPayload, err)
	}
	if want := EventType(event); evt.Type != want {
		return nil, fmt.Errorf("%w: event type %q on the %s topic", errspkg.ErrInvalidPayload, evt.Type, event)
	}
	data, ok := evt.Data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: data must be an object", errspkg.ErrInvalidPayload)
	}

	fields := make(map[string]any, len(data)+2)
	for k, v := range data {
		fields[k] = v
	}
	if _, ok := evt.Extensions[cloudevents.ExtWebviewID]; ok {
		fields["webviewId"] = evt.ExtensionString(cloudevents.ExtWebviewID)
	}
	if _, ok := evt.Extensions[cloudevents.ExtWebviewInstanceID]; ok {
		fields["webviewInstanceId"] = evt.ExtensionString(cloudevents.ExtWebviewInstanceID)
	}
	return fields, nil
}
