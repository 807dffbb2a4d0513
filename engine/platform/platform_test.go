package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/stretchr/testify/assert"
)

func TestTranslateKey(t *testing.T) {
	code, ok := translateKey(glfw.KeyW)
	assert.True(t, ok)
	assert.Equal(t, core.KEY_W, code)

	code, ok = translateKey(glfw.KeyEscape)
	assert.True(t, ok)
	assert.Equal(t, core.KEY_ESCAPE, code)

	_, ok = translateKey(glfw.KeyF12)
	assert.False(t, ok)
}

func TestCallbacksFeedInputAndEvents(t *testing.T) {
	events := core.NewEventSystem(8)
	input := core.NewInputState(events)
	p := New(input, events)

	p.keyCallback(nil, glfw.KeyA, 0, glfw.Press, 0)
	assert.True(t, input.IsKeyDown(core.KEY_A))
	p.keyCallback(nil, glfw.KeyA, 0, glfw.Release, 0)
	assert.False(t, input.IsKeyDown(core.KEY_A))

	p.mouseButtonCallback(nil, glfw.MouseButtonRight, glfw.Press, 0)
	assert.True(t, input.IsButtonDown(core.BUTTON_RIGHT))

	var resized *core.SystemEvent
	events.Register(core.EVENT_CODE_RESIZED, "test", func(ctx core.EventContext) bool {
		resized = ctx.Data.(*core.SystemEvent)
		return true
	})
	p.framebufferSizeCallback(nil, 800, 600)
	events.Dispatch()
	if assert.NotNil(t, resized) {
		assert.Equal(t, uint32(800), resized.WindowWidth)
		assert.Equal(t, uint32(600), resized.WindowHeight)
	}
}
