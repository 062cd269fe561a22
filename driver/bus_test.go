package driver

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageBus_FansOutToAllSubscribers(t *testing.T) {
	bus := NewMessageBus()

	var mu sync.Mutex
	var gotA, gotB []Message
	bus.Subscribe(func(m Message) {
		mu.Lock()
		gotA = append(gotA, m)
		mu.Unlock()
	})
	bus.Subscribe(func(m Message) {
		mu.Lock()
		gotB = append(gotB, m)
		mu.Unlock()
	})

	bus.Progress("hello")

	require.Len(t, gotA, 1)
	require.Len(t, gotB, 1)
	assert.Equal(t, ProgressMessage{Text: "hello"}, gotA[0])
}

func TestMessageBus_CompilerMessageFields(t *testing.T) {
	bus := NewMessageBus()
	var got CompilerMessage
	bus.Subscribe(func(m Message) {
		if cm, ok := m.(CompilerMessage); ok {
			got = cm
		}
	})

	bus.Compiler("widget", Error, "boom")
	assert.Equal(t, "widget", got.Source)
	assert.Equal(t, Error, got.Kind)
	assert.Equal(t, "boom", got.Text)
}

func TestMessageBus_TargetProgress(t *testing.T) {
	bus := NewMessageBus()
	tgt := mkTarget("a")
	var got BuildingTargetProgressMessage
	bus.Subscribe(func(m Message) {
		if p, ok := m.(BuildingTargetProgressMessage); ok {
			got = p
		}
	})

	bus.TargetProgress([]*Target{tgt}, TargetStarted)
	assert.Equal(t, TargetStarted, got.Stage)
	require.Len(t, got.Targets, 1)
	assert.Same(t, tgt, got.Targets[0])
}
