package hostfuncs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHostContext(t *testing.T) {
	hc := NewHostContext(context.Background(), "json_decode", "calc")

	require.NotNil(t, hc)
	assert.Equal(t, "json_decode", hc.FunctionName())
	assert.Equal(t, "calc", hc.PluginName())
}

func TestHostContext_SetGetValue(t *testing.T) {
	hc := NewHostContext(context.Background(), "test_func", "")

	// Initially no value
	_, ok := hc.GetValue("key1")
	assert.False(t, ok)

	hc.SetValue("key1", "value1")
	val, ok := hc.GetValue("key1")
	assert.True(t, ok)
	assert.Equal(t, "value1", val)

	hc.SetValue("key2", 42)
	val2, ok := hc.GetValue("key2")
	assert.True(t, ok)
	assert.Equal(t, 42, val2)

	// First value still there
	val, ok = hc.GetValue("key1")
	assert.True(t, ok)
	assert.Equal(t, "value1", val)
}

func TestHostContext_ImplementsContext(t *testing.T) {
	hc := NewHostContext(context.Background(), "log", "")

	var ctx context.Context = hc
	assert.NotNil(t, ctx)

	assert.Nil(t, hc.Done())
	assert.Nil(t, hc.Err())
	assert.Nil(t, hc.Value("nonexistent"))
}

func TestHostContextFrom(t *testing.T) {
	t.Run("wraps plain context", func(t *testing.T) {
		hc := HostContextFrom(context.Background(), "add", "calc")
		assert.Equal(t, "add", hc.FunctionName())
		assert.Equal(t, "calc", hc.PluginName())
	})

	t.Run("returns existing HostContext unchanged", func(t *testing.T) {
		original := NewHostContext(context.Background(), "original", "first")
		original.SetValue("marker", true)

		returned := HostContextFrom(original, "different", "second")

		assert.Equal(t, "original", returned.FunctionName())
		assert.Equal(t, "first", returned.PluginName())
		val, ok := returned.GetValue("marker")
		assert.True(t, ok)
		assert.Equal(t, true, val)
	})
}
