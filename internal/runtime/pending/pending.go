// Package pending correlates outgoing requests with their responses. Each
// entry settles exactly once: by a response, by its timeout, by the caller's
// context, or by disposal of the table, whichever happens first.
package pending

import (
	"context"
	"sync"
	"time"

	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
)

// Result is the outcome delivered to a waiting caller.
type Result struct {
	Value any
	Err   error
}

type entry struct {
	done  chan Result
	timer *time.Timer
}

// Table holds in-flight requests keyed by request id.
type Table struct {
	mu       sync.Mutex
	entries  map[string]*entry
	timeout  time.Duration
	disposed bool
}

// New returns a table whose entries fail with errors.ErrRequestTimedOut after
// timeout. A non-positive timeout disables the timer.
func New(timeout time.Duration) *Table {
	return &Table{entries: make(map[string]*entry), timeout: timeout}
}

// Pending is the caller's handle on one entry.
type Pending struct {
	id    string
	table *Table
	entry *entry
}

// Add registers id and starts its timeout.
func (t *Table) Add(id string) (*Pending, error) {
	e := &entry{done: make(chan Result, 1)}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return nil, errspkg.ErrDisposed
	}
	if old, ok := t.entries[id]; ok {
		t.finish(old, Result{Err: errspkg.ErrDisposed})
	}
	t.entries[id] = e
	if t.timeout > 0 {
		e.timer = time.AfterFunc(t.timeout, func() {
			t.settle(id, e, Result{Err: errspkg.ErrRequestTimedOut})
		})
	}
	return &Pending{id: id, table: t, entry: e}, nil
}

// Resolve settles id with value. It reports false when id is unknown or
// already settled, which is how late responses are ignored.
func (t *Table) Resolve(id string, value any) bool {
	return t.settle(id, nil, Result{Value: value})
}

// Reject settles id with err.
func (t *Table) Reject(id string, err error) bool {
	return t.settle(id, nil, Result{Err: err})
}

// Has reports whether id is still waiting.
func (t *Table) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Dispose rejects every waiting entry with errors.ErrDisposed and refuses new
// ones. Calling it again does nothing.
func (t *Table) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	t.disposed = true
	for id, e := range t.entries {
		delete(t.entries, id)
		t.finish(e, Result{Err: errspkg.ErrDisposed})
	}
}

// settle removes the entry and delivers res. When want is set only that exact
// entry may be settled, so a stale timer cannot touch a newer entry.
func (t *Table) settle(id string, want *entry, res Result) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok || (want != nil && e != want) {
		return false
	}
	delete(t.entries, id)
	t.finish(e, res)
	return true
}

func (t *Table) finish(e *entry, res Result) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.done <- res
}

func (p *Pending) ID() string { return p.id }

// Wait blocks until the entry settles or ctx ends. A cancelled context
// settles the entry so a later response is ignored.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case res := <-p.entry.done:
		return res.Value, res.Err
	case <-ctx.Done():
		p.table.settle(p.id, p.entry, Result{Err: ctx.Err()})
		res := <-p.entry.done
		return res.Value, res.Err
	}
}

// Cancel settles the entry with err without waiting, for callers that fail
// before the request leaves.
func (p *Pending) Cancel(err error) {
	p.table.settle(p.id, p.entry, Result{Err: err})
}
