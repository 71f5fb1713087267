package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/vulx/engine/core"
)

func TestTranslateKey(t *testing.T) {
	tests := []struct {
		key  glfw.Key
		want core.KeyCode
		ok   bool
	}{
		{glfw.KeyEscape, core.KEY_ESCAPE, true},
		{glfw.KeyLeft, core.KEY_LEFT, true},
		{glfw.KeyKPAdd, core.KEY_PLUS, true},
		{glfw.KeyEqual, core.KEY_PLUS, true},
		{glfw.KeyF12, 0, false},
	}
	for _, tt := range tests {
		got, ok := translateKey(tt.key)
		assert.Equal(t, tt.ok, ok, "key %d", tt.key)
		assert.Equal(t, tt.want, got, "key %d", tt.key)
	}
}

func TestCallbacksPostEvents(t *testing.T) {
	bus := core.NewEventBus(0)
	input := core.NewInput(bus)
	p := New(bus, input)

	var got []core.SystemEventCode
	record := func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		got = append(got, code)
		return true
	}
	bus.Register(core.EVENT_CODE_RESIZED, nil, record)
	bus.Register(core.EVENT_CODE_KEY_PRESSED, nil, record)
	bus.Register(core.EVENT_CODE_APPLICATION_QUIT, nil, record)

	p.framebufferSizeCallback(nil, 800, 600)
	p.keyCallback(nil, glfw.KeyEscape, 0, glfw.Press, 0)
	p.keyCallback(nil, glfw.KeyEscape, 0, glfw.Repeat, 0)
	p.closeCallback(nil)
	assert.Empty(t, got, "events wait for dispatch")

	bus.Dispatch()
	assert.Equal(t, []core.SystemEventCode{
		core.EVENT_CODE_RESIZED,
		core.EVENT_CODE_KEY_PRESSED,
		core.EVENT_CODE_APPLICATION_QUIT,
	}, got)
	assert.True(t, input.IsKeyDown(core.KEY_ESCAPE))
}
