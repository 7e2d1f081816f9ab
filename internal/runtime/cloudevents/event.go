// Package cloudevents implements the CloudEvents v1.0 structured JSON format
// used when webview traffic is shared with event-driven consumers on a broker.
// See https://github.com/cloudevents/spec/blob/v1.0/spec.md.
package cloudevents

import (
	"fmt"
	"regexp"
	"time"

	idspkg "github.com/drblury/webviewflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/webviewflow/internal/runtime/jsoncodec"
)

// SpecVersion is the CloudEvents specification version implemented.
const SpecVersion = "1.0"

// ContentType is the media type of a structured-mode JSON event.
const ContentType = "application/cloudevents+json"

// Extension attributes carried by webview events.
const (
	ExtWebviewID         = "webviewid"
	ExtWebviewInstanceID = "webviewinstanceid"
	ExtCorrelationID     = "correlationid"
)

// Extension names are limited to lowercase letters and digits.
var extensionName = regexp.MustCompile(`^[a-z0-9]{1,20}$`)

// Event is a CloudEvents v1.0 event. Extensions are flattened into the
// top-level JSON object on the wire.
type Event struct {
	SpecVersion     string
	Type            string
	Source          string
	ID              string
	Time            time.Time
	Subject         string
	DataContentType string
	Data            any
	Extensions      map[string]any
}

// New creates an event with a ULID id and the current time.
func New(eventType, source string, data any) Event {
	return Event{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          source,
		ID:              idspkg.CreateULID(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
}

// WithExtension returns a copy of e with key set. Empty values are skipped.
func (e Event) WithExtension(key string, value any) Event {
	if value == nil || value == "" {
		return e
	}
	ext := make(map[string]any, len(e.Extensions)+1)
	for k, v := range e.Extensions {
		ext[k] = v
	}
	ext[key] = value
	e.Extensions = ext
	return e
}

// ExtensionString returns the extension as a string, or "" if absent.
func (e Event) ExtensionString(key string) string {
	switch v := e.Extensions[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Validate checks the required attributes and the extension names.
func (e Event) Validate() error {
	switch {
	case e.SpecVersion != SpecVersion:
		return fmt.Errorf("specversion must be %q, got %q", SpecVersion, e.SpecVersion)
	case e.Type == "":
		return fmt.Errorf("type is required")
	case e.Source == "":
		return fmt.Errorf("source is required")
	case e.ID == "":
		return fmt.Errorf("id is required")
	}
	for k := range e.Extensions {
		if !extensionName.MatchString(k) {
			return fmt.Errorf("invalid extension name %q", k)
		}
		if _, reserved := attributes[k]; reserved {
			return fmt.Errorf("extension %q shadows a context attribute", k)
		}
	}
	return nil
}

var attributes = map[string]struct{}{
	"specversion": {}, "type": {}, "source": {}, "id": {}, "time": {},
	"subject": {}, "datacontenttype": {}, "dataschema": {}, "data": {}, "data_base64": {},
}

func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 8+len(e.Extensions))
	for k, v := range e.Extensions {
		m[k] = v
	}
	m["specversion"] = e.SpecVersion
	m["type"] = e.Type
	m["source"] = e.Source
	m["id"] = e.ID
	if !e.Time.IsZero() {
		m["time"] = FormatTime(e.Time)
	}
	if e.Subject != "" {
		m["subject"] = e.Subject
	}
	if e.DataContentType != "" {
		m["datacontenttype"] = e.DataContentType
	}
	if e.Data != nil {
		m["data"] = e.Data
	}
	return jsoncodec.Marshal(m)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := jsoncodec.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("event must be a JSON object")
	}

	out := Event{Data: m["data"]}
	for key, dst := range map[string]*string{
		"specversion":     &out.SpecVersion,
		"type":            &out.Type,
		"source":          &out.Source,
		"id":              &out.ID,
		"subject":         &out.Subject,
		"datacontenttype": &out.DataContentType,
	} {
		raw, ok := m[key]
		if !ok {
			continue
		}
		s, isString := raw.(string)
		if !isString {
			return fmt.Errorf("%s must be a string", key)
		}
		*dst = s
	}
	if raw, ok := m["time"]; ok {
		s, isString := raw.(string)
		if !isString {
			return fmt.Errorf("time must be a string")
		}
		t, err := ParseTime(s)
		if err != nil {
			return err
		}
		out.Time = t
	}
	if _, ok := m["data_base64"]; ok {
		return fmt.Errorf("binary data is not supported")
	}

	for k, v := range m {
		if _, known := attributes[k]; known {
			continue
		}
		if out.Extensions == nil {
			out.Extensions = make(map[string]any)
		}
		out.Extensions[k] = v
	}
	*e = out
	return nil
}

// ParseTime accepts RFC3339 with or without fractional seconds.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t, nil
}

// FormatTime renders t in UTC as RFC3339 with nanoseconds.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
