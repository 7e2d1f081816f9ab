// Package disposable models release handles returned by subscriptions and
// registrations. Every implementation tolerates repeated Dispose calls.
package disposable

import "sync"

// Disposable releases whatever resource produced it.
type Disposable interface {
	Dispose()
}

type nop struct{}

func (nop) Dispose() {}

// Nop is returned where a registration failed or was skipped.
var Nop Disposable = nop{}

type funcDisposable struct {
	once sync.Once
	fn   func()
}

// Func turns fn into a Disposable that runs fn at most once.
func Func(fn func()) Disposable {
	if fn == nil {
		return Nop
	}
	return &funcDisposable{fn: fn}
}

func (f *funcDisposable) Dispose() {
	f.once.Do(f.fn)
}

// Composite aggregates disposables and releases them together, in the order
// they were added.
type Composite struct {
	mu       sync.Mutex
	items    []Disposable
	disposed bool
}

func NewComposite(items ...Disposable) *Composite {
	c := &Composite{}
	c.Add(items...)
	return c
}

// Add appends items. Adding to an already disposed composite disposes the
// items immediately.
func (c *Composite) Add(items ...Disposable) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		for _, item := range items {
			if item != nil {
				item.Dispose()
			}
		}
		return
	}
	for _, item := range items {
		if item != nil {
			c.items = append(c.items, item)
		}
	}
	c.mu.Unlock()
}

// Len reports how many members are still held.
func (c *Composite) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Composite) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	items := c.items
	c.items = nil
	c.mu.Unlock()

	for _, item := range items {
		item.Dispose()
	}
}
