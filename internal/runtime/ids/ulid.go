package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// Generator produces unique identifiers. Components take one so tests can
// pin instance and request ids.
type Generator func() string

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// OrDefault returns g, falling back to CreateULID when g is nil.
func (g Generator) OrDefault() Generator {
	if g == nil {
		return CreateULID
	}
	return g
}

// Sequence returns a Generator that yields ids in order and then falls back
// to CreateULID once exhausted.
func Sequence(values ...string) Generator {
	var (
		mu   sync.Mutex
		next int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		if next < len(values) {
			v := values[next]
			next++
			return v
		}
		return CreateULID()
	}
}
