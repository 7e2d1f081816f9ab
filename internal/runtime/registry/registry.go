// Package registry stores keyed handlers and dispatches to them with a uniform
// error taxonomy: a missing key yields *errors.HandlerNotFoundError and any
// failure raised by the handler, panics included, yields
// *errors.UnhandledHandlerError.
package registry

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/drblury/webviewflow/internal/runtime/disposable"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/webviewflow/internal/runtime/logging"
)

// Handler processes one dispatched argument.
type Handler[I any, O any] func(ctx context.Context, arg I) (O, error)

// Option configures a Registry.
type Option func(*options)

type options struct {
	logger loggingpkg.ServiceLogger
	name   string
}

// WithLogger enables a warning when a key is registered twice.
func WithLogger(log loggingpkg.ServiceLogger) Option {
	return func(o *options) { o.logger = log }
}

// WithName labels log entries produced by the registry.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

type entry[I any, O any] struct {
	handler Handler[I, O]
}

// Registry maps keys to handlers. Registering an existing key replaces the
// previous handler; the disposable returned for the replaced handler no longer
// affects the key.
type Registry[K comparable, I any, O any] struct {
	mu       sync.RWMutex
	handlers map[K]*entry[I, O]
	opts     options
}

func New[K comparable, I any, O any](opts ...Option) *Registry[K, I, O] {
	r := &Registry[K, I, O]{handlers: make(map[K]*entry[I, O])}
	for _, opt := range opts {
		opt(&r.opts)
	}
	return r
}

// Register stores handler under key. It panics on a nil handler.
func (r *Registry[K, I, O]) Register(key K, handler Handler[I, O]) disposable.Disposable {
	if handler == nil {
		panic(errspkg.ErrHandlerRequired)
	}
	e := &entry[I, O]{handler: handler}

	r.mu.Lock()
	_, replaced := r.handlers[key]
	r.handlers[key] = e
	r.mu.Unlock()

	if replaced && r.opts.logger != nil {
		r.opts.logger.Warn("Handler replaced for existing key", loggingpkg.LogFields{
			"registry": r.opts.name,
			"key":      fmt.Sprint(key),
		})
	}

	return disposable.Func(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if current, ok := r.handlers[key]; ok && current == e {
			delete(r.handlers, key)
		}
	})
}

func (r *Registry[K, I, O]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[key]
	return ok
}

// Len returns the number of registered keys.
func (r *Registry[K, I, O]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Handle dispatches arg to the handler stored under key.
func (r *Registry[K, I, O]) Handle(ctx context.Context, key K, arg I) (O, error) {
	r.mu.RLock()
	e, ok := r.handlers[key]
	r.mu.RUnlock()

	if !ok {
		var zero O
		return zero, &errspkg.HandlerNotFoundError{Key: fmt.Sprint(key)}
	}
	return invoke(ctx, fmt.Sprint(key), e.handler, arg)
}

// Dispose drops every registration. The registry stays usable.
func (r *Registry[K, I, O]) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.handlers)
}

func invoke[I any, O any](ctx context.Context, key string, handler Handler[I, O], arg I) (out O, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero O
			out = zero
			err = &errspkg.UnhandledHandlerError{
				Key:   key,
				Err:   panicError(rec),
				Stack: debug.Stack(),
			}
		}
	}()

	out, err = handler(ctx, arg)
	if err != nil {
		var zero O
		return zero, &errspkg.UnhandledHandlerError{Key: key, Err: err, Stack: debug.Stack()}
	}
	return out, nil
}

func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return fmt.Errorf("handler panicked: %w", err)
	}
	return fmt.Errorf("handler panicked: %v", rec)
}
