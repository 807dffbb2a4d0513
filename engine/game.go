package engine

import (
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
	"github.com/spaghettifunk/renderworld/engine/world"
)

// Game is the application hooked into the engine. Scene and Input are set by
// the engine before FnInitialize runs.
type Game struct {
	Scene *Scene
	Input *core.InputState
	State interface{}

	FnBootMap    BootMap
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// BootMap returns the map loaded when no map file is configured.
type BootMap func() (*world.Map, error)
type Initialize func() error
type Update func(deltaTime float64) error
type Render func(stats metadata.FrameStats, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
