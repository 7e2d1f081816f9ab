package broker

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/webviewflow/internal/runtime/jsoncodec"
	"github.com/drblury/webviewflow/internal/runtime/webview"
)

// Codec encodes the envelope of a webview message for the broker. The
// envelope is the socket body plus webviewId and webviewInstanceId.
type Codec interface {
	Name() string
	ContentType() string
	Encode(event webview.TransportEvent, envelope map[string]any) ([]byte, error)
	Decode(event webview.TransportEvent, data []byte) (map[string]any, error)
}

// Codec names accepted by CodecByName.
const (
	CodecJSON        = "json"
	CodecProto       = "proto"
	CodecCloudEvents = "cloudevents"
)

// CodecByName resolves a configured codec name. Empty means JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecProto, "protobuf":
		return ProtoCodec{}, nil
	case CodecCloudEvents:
		return CloudEventsCodec{}, nil
	}
	return nil, fmt.Errorf("webviewflow: unknown broker codec %q", name)
}

// JSONCodec writes the envelope as a JSON object.
type JSONCodec struct{}

func (JSONCodec) Name() string        { return CodecJSON }
func (JSONCodec) ContentType() string { return "application/json" }

func (JSONCodec) Encode(_ webview.TransportEvent, envelope map[string]any) ([]byte, error) {
	return jsoncodec.Marshal(envelope)
}

func (JSONCodec) Decode(_ webview.TransportEvent, data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := jsoncodec.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", errspkg.ErrInvalidPayload, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: envelope must be an object", errspkg.ErrInvalidPayload)
	}
	return fields, nil
}

// ProtoCodec writes the envelope as a binary google.protobuf.Struct, for
// brokers shared with protobuf consumers.
type ProtoCodec struct{}

func (ProtoCodec) Name() string        { return CodecProto }
func (ProtoCodec) ContentType() string { return "application/protobuf" }

func (ProtoCodec) Encode(_ webview.TransportEvent, envelope map[string]any) ([]byte, error) {
	// structpb only accepts JSON-shaped values, so typed payloads are
	// flattened first.
	var generic map[string]any
	if err := jsoncodec.Convert(envelope, &generic); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(generic)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func (ProtoCodec) Decode(_ webview.TransportEvent, data []byte) (map[string]any, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", errspkg.ErrInvalidPayload, err)
	}
	return st.AsMap(), nil
}
