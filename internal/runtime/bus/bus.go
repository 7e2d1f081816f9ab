// Package bus implements the in-process typed publish/subscribe primitive the
// transports, mediators and plugin buses are built on.
//
// Publish is synchronous: every listener registered for the key at the time
// Publish is called runs, in registration order, before Publish returns.
// Listeners added or removed during a dispatch only affect later publishes.
package bus

import (
	"sync"

	"github.com/drblury/webviewflow/internal/runtime/disposable"
)

// Listener receives a published payload.
type Listener[P any] func(payload P)

// Filter decides per publish whether a listener sees the payload.
type Filter[P any] func(payload P) bool

type subscription[P any] struct {
	listener Listener[P]
	filter   Filter[P]
}

// Bus is a keyed fan-out. The zero value is not usable; call New.
type Bus[K comparable, P any] struct {
	mu       sync.RWMutex
	subs     map[K][]*subscription[P]
	disposed bool
}

func New[K comparable, P any]() *Bus[K, P] {
	return &Bus[K, P]{subs: make(map[K][]*subscription[P])}
}

// Subscribe registers listener for key.
func (b *Bus[K, P]) Subscribe(key K, listener Listener[P]) disposable.Disposable {
	return b.SubscribeFiltered(key, listener, nil)
}

// SubscribeFiltered registers listener for key; a nil filter accepts every
// payload. Subscribing to a disposed bus returns a no-op disposable.
func (b *Bus[K, P]) SubscribeFiltered(key K, listener Listener[P], filter Filter[P]) disposable.Disposable {
	if listener == nil {
		return disposable.Nop
	}
	sub := &subscription[P]{listener: listener, filter: filter}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return disposable.Nop
	}
	b.subs[key] = append(b.subs[key], sub)

	return disposable.Func(func() { b.remove(key, sub) })
}

func (b *Bus[K, P]) remove(key K, sub *subscription[P]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.subs[key]
	for i, s := range current {
		if s != sub {
			continue
		}
		next := make([]*subscription[P], 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, key)
		} else {
			b.subs[key] = next
		}
		return
	}
}

// Publish delivers payload to every matching listener of key. Publishing to a
// key without listeners, or to a disposed bus, does nothing.
func (b *Bus[K, P]) Publish(key K, payload P) {
	b.mu.RLock()
	snapshot := b.subs[key]
	b.mu.RUnlock()

	for _, sub := range snapshot {
		if sub.filter != nil && !sub.filter(payload) {
			continue
		}
		sub.listener(payload)
	}
}

func (b *Bus[K, P]) HasListeners(key K) bool {
	return b.ListenerCount(key) > 0
}

func (b *Bus[K, P]) ListenerCount(key K) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[key])
}

// Clear removes every subscription but keeps the bus open.
func (b *Bus[K, P]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.subs)
}

// Dispose removes every subscription. Later publishes are no-ops and later
// subscriptions are ignored.
func (b *Bus[K, P]) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposed = true
	clear(b.subs)
}
