package registry

import (
	"context"
	"fmt"

	"github.com/drblury/webviewflow/internal/runtime/disposable"
	jsoncodec "github.com/drblury/webviewflow/internal/runtime/jsoncodec"
)

// Hasher maps a composite key onto the string key stored in the base registry.
// It must be deterministic.
type Hasher[K any] func(key K) string

// JSONHasher hashes keys through their JSON encoding. Struct fields keep their
// declaration order and map keys are sorted, so equal keys encode equally.
func JSONHasher[K any]() Hasher[K] {
	return func(key K) string {
		data, err := jsoncodec.Marshal(key)
		if err != nil {
			return fmt.Sprintf("%#v", key)
		}
		return string(data)
	}
}

// Hashed lets composite keys (for example a webview id plus a message type)
// be used against a string-keyed Registry.
type Hashed[K any, I any, O any] struct {
	inner *Registry[string, I, O]
	hash  Hasher[K]
}

// NewHashed builds a hashed registry. A nil hasher falls back to JSONHasher.
func NewHashed[K any, I any, O any](hash Hasher[K], opts ...Option) *Hashed[K, I, O] {
	if hash == nil {
		hash = JSONHasher[K]()
	}
	return &Hashed[K, I, O]{inner: New[string, I, O](opts...), hash: hash}
}

func (h *Hashed[K, I, O]) Register(key K, handler Handler[I, O]) disposable.Disposable {
	return h.inner.Register(h.hash(key), handler)
}

func (h *Hashed[K, I, O]) Has(key K) bool {
	return h.inner.Has(h.hash(key))
}

func (h *Hashed[K, I, O]) Handle(ctx context.Context, key K, arg I) (O, error) {
	return h.inner.Handle(ctx, h.hash(key), arg)
}

func (h *Hashed[K, I, O]) Len() int {
	return h.inner.Len()
}

func (h *Hashed[K, I, O]) Dispose() {
	h.inner.Dispose()
}
