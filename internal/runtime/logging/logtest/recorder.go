// Package logtest provides a recording ServiceLogger for package tests.
package logtest

import (
	"sync"

	"github.com/drblury/webviewflow/internal/runtime/logging"
)

// Entry is one recorded log call.
type Entry struct {
	Level  string
	Msg    string
	Fields logging.LogFields
	Err    error
}

type sink struct {
	mu      sync.Mutex
	entries []Entry
}

// Recorder implements logging.ServiceLogger and keeps every entry in memory.
// Children created through With share the parent's sink.
type Recorder struct {
	sink   *sink
	fields logging.LogFields
}

func New() *Recorder {
	return &Recorder{sink: &sink{}}
}

func (r *Recorder) With(fields logging.LogFields) logging.ServiceLogger {
	return &Recorder{sink: r.sink, fields: merge(r.fields, fields)}
}

func (r *Recorder) Debug(msg string, fields logging.LogFields) { r.record("debug", msg, nil, fields) }
func (r *Recorder) Info(msg string, fields logging.LogFields)  { r.record("info", msg, nil, fields) }
func (r *Recorder) Warn(msg string, fields logging.LogFields)  { r.record("warn", msg, nil, fields) }
func (r *Recorder) Trace(msg string, fields logging.LogFields) { r.record("trace", msg, nil, fields) }

func (r *Recorder) Error(msg string, err error, fields logging.LogFields) {
	r.record("error", msg, err, fields)
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	return append([]Entry(nil), r.sink.entries...)
}

// Find returns the first entry with the given level and message.
func (r *Recorder) Find(level, msg string) (Entry, bool) {
	for _, e := range r.Entries() {
		if e.Level == level && e.Msg == msg {
			return e, true
		}
	}
	return Entry{}, false
}

// Count returns how many entries were recorded at level.
func (r *Recorder) Count(level string) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}

func (r *Recorder) record(level, msg string, err error, fields logging.LogFields) {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	r.sink.entries = append(r.sink.entries, Entry{Level: level, Msg: msg, Fields: merge(r.fields, fields), Err: err})
}

func merge(a, b logging.LogFields) logging.LogFields {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(logging.LogFields, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
