package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	"github.com/drblury/webviewflow/internal/runtime/logging/logtest"
)

func echo(_ context.Context, arg string) (string, error) {
	return "echo:" + arg, nil
}

func TestRegistry_HandleDispatches(t *testing.T) {
	reg := New[string, string, string]()
	reg.Register("echo", echo)

	assert.True(t, reg.Has("echo"))
	out, err := reg.Handle(context.Background(), "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", out)
}

func TestRegistry_HandleUnknownKey(t *testing.T) {
	reg := New[string, string, string]()

	_, err := reg.Handle(context.Background(), "unknownKey", "")

	var notFound *errspkg.HandlerNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "unknownKey", notFound.Key)
}

func TestRegistry_HandlerErrorIsWrapped(t *testing.T) {
	reg := New[string, string, string]()
	boom := errors.New("boom")
	reg.Register("key", func(context.Context, string) (string, error) {
		return "partial", boom
	})

	out, err := reg.Handle(context.Background(), "key", "")

	var unhandled *errspkg.UnhandledHandlerError
	require.ErrorAs(t, err, &unhandled)
	assert.Equal(t, "key", unhandled.Key)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, string(unhandled.Stack), "registry.invoke")
	assert.Empty(t, out)
}

func TestRegistry_HandlerPanicIsWrapped(t *testing.T) {
	reg := New[string, int, int]()
	reg.Register("explode", func(context.Context, int) (int, error) {
		panic("kaboom")
	})

	_, err := reg.Handle(context.Background(), "explode", 1)

	var unhandled *errspkg.UnhandledHandlerError
	require.ErrorAs(t, err, &unhandled)
	assert.Contains(t, unhandled.Err.Error(), "kaboom")
	assert.NotEmpty(t, unhandled.Stack)
}

func TestRegistry_DisposeRemovesOnlyOwnRegistration(t *testing.T) {
	reg := New[string, string, string]()
	first := reg.Register("key", echo)
	reg.Register("key", func(context.Context, string) (string, error) { return "second", nil })

	first.Dispose()

	require.True(t, reg.Has("key"))
	out, err := reg.Handle(context.Background(), "key", "")
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestRegistry_DisposeRegistration(t *testing.T) {
	reg := New[string, string, string]()
	d := reg.Register("key", echo)

	d.Dispose()
	d.Dispose()

	assert.False(t, reg.Has("key"))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_DuplicateRegistrationWarns(t *testing.T) {
	log := logtest.New()
	reg := New[string, string, string](WithLogger(log), WithName("notifications"))

	reg.Register("key", echo)
	assert.Equal(t, 0, log.Count("warn"))

	reg.Register("key", echo)
	entry, ok := log.Find("warn", "Handler replaced for existing key")
	require.True(t, ok)
	assert.Equal(t, "notifications", entry.Fields["registry"])
	assert.Equal(t, "key", entry.Fields["key"])
}

func TestRegistry_DisposeIsIdempotentAndReusable(t *testing.T) {
	reg := New[string, string, string]()
	reg.Register("a", echo)
	reg.Register("b", echo)

	reg.Dispose()
	reg.Dispose()
	assert.Equal(t, 0, reg.Len())

	reg.Register("a", echo)
	assert.True(t, reg.Has("a"))
}

func TestRegistry_RegisterNilHandlerPanics(t *testing.T) {
	reg := New[string, string, string]()
	assert.PanicsWithValue(t, errspkg.ErrHandlerRequired, func() {
		reg.Register("key", nil)
	})
}
