// Package metadata holds the string headers that travel alongside a webview
// message on a broker.
package metadata

import (
	"maps"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Metadata maps header names to values. The zero value is read-only.
type Metadata map[string]string

// New builds Metadata from alternating keys and values. A trailing key
// without a value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// With returns a copy of m with key set.
func (m Metadata) With(key, value string) Metadata {
	out := make(Metadata, len(m)+1)
	maps.Copy(out, m)
	out[key] = value
	return out
}

// FromWatermill copies the headers of a consumed message.
func FromWatermill(md message.Metadata) Metadata {
	out := make(Metadata, len(md))
	maps.Copy(out, md)
	return out
}

// ToWatermill copies m into headers for an outgoing message.
func ToWatermill(m Metadata) message.Metadata {
	out := make(message.Metadata, len(m))
	maps.Copy(out, m)
	return out
}
