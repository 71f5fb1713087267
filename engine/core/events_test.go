package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listener struct {
	name string
	got  []SystemEventCode
}

func (l *listener) on(handled bool) FnOnEvent {
	return func(code SystemEventCode, sender, inst interface{}, data EventContext) bool {
		l.got = append(l.got, code)
		return handled
	}
}

func TestEventBusFireStopsWhenHandled(t *testing.T) {
	bus := NewEventBus(0)
	first, second := &listener{name: "first"}, &listener{name: "second"}

	require.True(t, bus.Register(EVENT_CODE_RESIZED, first, first.on(true)))
	require.True(t, bus.Register(EVENT_CODE_RESIZED, second, second.on(false)))
	assert.False(t, bus.Register(EVENT_CODE_RESIZED, first, first.on(false)), "duplicate listener")

	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, ResizeEventContext(10, 20)))
	assert.Len(t, first.got, 1)
	assert.Empty(t, second.got)

	require.True(t, bus.Unregister(EVENT_CODE_RESIZED, first))
	assert.False(t, bus.Unregister(EVENT_CODE_RESIZED, first))
	assert.False(t, bus.Fire(EVENT_CODE_RESIZED, nil, EventContext{}))
	assert.Len(t, second.got, 1)
}

func TestEventBusPostWaitsForDispatch(t *testing.T) {
	bus := NewEventBus(2)
	var sizes [][2]uint32
	bus.Register(EVENT_CODE_RESIZED, nil, func(code SystemEventCode, sender, inst interface{}, data EventContext) bool {
		sizes = append(sizes, [2]uint32{data.Data.U32[0], data.Data.U32[1]})
		return true
	})

	require.NoError(t, bus.Post(EVENT_CODE_RESIZED, nil, ResizeEventContext(1, 2)))
	require.NoError(t, bus.Post(EVENT_CODE_RESIZED, nil, ResizeEventContext(3, 4)))
	assert.Error(t, bus.Post(EVENT_CODE_RESIZED, nil, ResizeEventContext(5, 6)), "queue is bounded")
	assert.Empty(t, sizes)

	assert.Equal(t, 2, bus.Dispatch())
	assert.Equal(t, [][2]uint32{{1, 2}, {3, 4}}, sizes)
	assert.Zero(t, bus.Dispatch())
}

func TestInputPostsTransitionsOnly(t *testing.T) {
	bus := NewEventBus(0)
	var keys []KeyCode
	var codes []SystemEventCode
	record := func(code SystemEventCode, sender, inst interface{}, data EventContext) bool {
		codes = append(codes, code)
		keys = append(keys, KeyCode(data.Data.U16[0]))
		return true
	}
	bus.Register(EVENT_CODE_KEY_PRESSED, nil, record)
	bus.Register(EVENT_CODE_KEY_RELEASED, nil, record)

	in := NewInput(bus)
	in.ProcessKey(KEY_ESCAPE, true)
	in.ProcessKey(KEY_ESCAPE, true)
	assert.True(t, in.IsKeyDown(KEY_ESCAPE))
	assert.False(t, in.WasKeyDown(KEY_ESCAPE))
	in.Update()
	assert.True(t, in.WasKeyDown(KEY_ESCAPE))
	in.ProcessKey(KEY_ESCAPE, false)
	assert.True(t, in.IsKeyUp(KEY_ESCAPE))

	bus.Dispatch()
	assert.Equal(t, []SystemEventCode{EVENT_CODE_KEY_PRESSED, EVENT_CODE_KEY_RELEASED}, codes)
	assert.Equal(t, []KeyCode{KEY_ESCAPE, KEY_ESCAPE}, keys)
}

func TestClock(t *testing.T) {
	now := time.Unix(100, 0)
	c := &Clock{now: func() time.Time { return now }}
	c.Update()
	assert.Zero(t, c.Elapsed(), "a stopped clock does not advance")

	c.Start()
	now = now.Add(250 * time.Millisecond)
	c.Update()
	assert.Equal(t, 250*time.Millisecond, c.Elapsed())

	c.Stop()
	assert.False(t, c.Running())
	now = now.Add(time.Second)
	c.Update()
	assert.Equal(t, 250*time.Millisecond, c.Elapsed())
}

func TestFrameMetrics(t *testing.T) {
	m := NewFrameMetrics()
	refreshed := false
	for i := 0; i < 60; i++ {
		if m.Update(20 * time.Millisecond) {
			refreshed = true
		}
	}
	assert.True(t, refreshed)
	assert.InDelta(t, 50, m.FPS(), 1)
	assert.InDelta(t, 20, m.FrameTime(), 0.001)
	assert.Equal(t, uint64(60), m.Frames())
}
