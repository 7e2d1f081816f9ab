package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
)

type pluginKey struct {
	PluginID string `json:"pluginId"`
	Type     string `json:"type"`
}

func TestHashed_CompositeKeys(t *testing.T) {
	reg := NewHashed[pluginKey, string, string](nil)
	reg.Register(pluginKey{PluginID: "chat", Type: "send"}, echo)

	assert.True(t, reg.Has(pluginKey{PluginID: "chat", Type: "send"}))
	assert.False(t, reg.Has(pluginKey{PluginID: "chat", Type: "other"}))
	assert.False(t, reg.Has(pluginKey{PluginID: "other", Type: "send"}))

	out, err := reg.Handle(context.Background(), pluginKey{PluginID: "chat", Type: "send"}, "x")
	require.NoError(t, err)
	assert.Equal(t, "echo:x", out)
}

func TestHashed_MissingKey(t *testing.T) {
	reg := NewHashed[pluginKey, string, string](nil)

	_, err := reg.Handle(context.Background(), pluginKey{PluginID: "chat", Type: "send"}, "x")

	var notFound *errspkg.HandlerNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, `{"pluginId":"chat","type":"send"}`, notFound.Key)
}

func TestHashed_CustomHasher(t *testing.T) {
	calls := 0
	hasher := func(k pluginKey) string {
		calls++
		return k.PluginID + "/" + k.Type
	}
	reg := NewHashed[pluginKey, string, string](hasher)

	d := reg.Register(pluginKey{PluginID: "a", Type: "b"}, echo)
	assert.True(t, reg.Has(pluginKey{PluginID: "a", Type: "b"}))
	assert.Equal(t, 1, reg.Len())

	d.Dispose()
	assert.False(t, reg.Has(pluginKey{PluginID: "a", Type: "b"}))
	assert.Equal(t, 3, calls)

	reg.Register(pluginKey{PluginID: "a", Type: "c"}, echo)
	reg.Dispose()
	assert.Equal(t, 0, reg.Len())
}

func TestJSONHasherIsDeterministic(t *testing.T) {
	h := JSONHasher[map[string]string]()
	a := h(map[string]string{"b": "2", "a": "1"})
	b := h(map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, a, b)
}
