package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrappedContext_LocalWriteDoesNotLeakToDelegate(t *testing.T) {
	base := NewContext(&ProjectDescriptor{}, NewFullScope(false), NewMessageBus(), nil)
	wrapped := WrapContext(base)

	key := NewLocalKey[string]("scratch")
	PutData(wrapped, key, "chunk-local")

	_, ok := GetData(base, key)
	assert.False(t, ok, "a local write on a wrapped context must not be visible on the delegate")

	v, ok := GetData(wrapped, key)
	require.True(t, ok)
	assert.Equal(t, "chunk-local", v)
}

func TestWrappedContext_GlobalWriteVisibleOnDelegateAndSiblingWrappers(t *testing.T) {
	base := NewContext(&ProjectDescriptor{}, NewFullScope(false), NewMessageBus(), nil)
	w1 := WrapContext(base)
	w2 := WrapContext(base)

	key := NewGlobalKey[int]("shared-counter")
	PutData(w1, key, 42)

	v, ok := GetData(base, key)
	require.True(t, ok)
	assert.Equal(t, 42, v)

	v, ok = GetData(w2, key)
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestWrappedContext_DeleteTombstonesLocalKeyUntilOverwritten(t *testing.T) {
	base := NewContext(&ProjectDescriptor{}, NewFullScope(false), NewMessageBus(), nil)
	wrapped := WrapContext(base)

	key := NewLocalKey[string]("scratch")
	PutData(wrapped, key, "value")
	DeleteData(wrapped, key)

	_, ok := GetData(wrapped, key)
	assert.False(t, ok, "a deleted local key must not be readable")

	PutData(wrapped, key, "value-2")
	v, ok := GetData(wrapped, key)
	require.True(t, ok, "writing after a delete must clear the tombstone")
	assert.Equal(t, "value-2", v)
}

func TestWrappedContext_ErrorsDetectedIsLocalOnly(t *testing.T) {
	bus := NewMessageBus()
	base := NewContext(&ProjectDescriptor{}, NewFullScope(false), bus, nil)
	wrapped := WrapContext(base)

	wrapped.Emit(CompilerMessage{Source: "a", Kind: Error, Text: "boom"})

	assert.True(t, wrapped.HasErrorsDetected())
	assert.False(t, base.HasErrorsDetected(), "an ERROR emitted through a wrapped context must not mark the delegate's own flag")
}

func TestWrappedContext_DelegatesScopeAndBus(t *testing.T) {
	scope := NewFullScope(true)
	bus := NewMessageBus()
	base := NewContext(&ProjectDescriptor{}, scope, bus, nil)
	wrapped := WrapContext(base)

	assert.Same(t, scope, wrapped.GetScope())
	assert.Same(t, bus, wrapped.GetBus())
}
