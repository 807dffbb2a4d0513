package testbed

import (
	"fmt"

	"github.com/spaghettifunk/renderworld/engine"
	"github.com/spaghettifunk/renderworld/engine/config"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/math"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
	"github.com/spaghettifunk/renderworld/engine/world"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	moveSpeed   float32
	rotateSpeed float32

	width  uint32
	height uint32

	lastStats metadata.FrameStats
}

func NewTestGame(cfg *config.Config) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			State: &gameState{
				moveSpeed:   cfg.Camera.MoveSpeed,
				rotateSpeed: cfg.Camera.RotateSpeed,
			},
		},
	}

	tg.FnBootMap = tg.BootMap
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) BootMap() (*world.Map, error) {
	core.LogInfo("booting testbed with the demo map...")
	return DemoMap(), nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.Scene == nil {
		return fmt.Errorf("the engine has not set up the scene yet")
	}
	g.Scene.Camera.LookAt(math.NewVec3Zero())
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	camera := g.Scene.Camera
	input := g.Input

	rotate := state.rotateSpeed * float32(deltaTime)
	if input.IsKeyDown(core.KEY_A) || input.IsKeyDown(core.KEY_LEFT) {
		camera.Yaw(rotate)
	}
	if input.IsKeyDown(core.KEY_D) || input.IsKeyDown(core.KEY_RIGHT) {
		camera.Yaw(-rotate)
	}
	if input.IsKeyDown(core.KEY_UP) {
		camera.Pitch(rotate)
	}
	if input.IsKeyDown(core.KEY_DOWN) {
		camera.Pitch(-rotate)
	}

	move := state.moveSpeed * float32(deltaTime)
	if input.IsKeyDown(core.KEY_W) {
		camera.MoveForward(move)
	}
	if input.IsKeyDown(core.KEY_S) {
		camera.MoveBackward(move)
	}
	if input.IsKeyDown(core.KEY_Q) {
		camera.MoveLeft(move)
	}
	if input.IsKeyDown(core.KEY_E) {
		camera.MoveRight(move)
	}
	if input.IsKeyDown(core.KEY_SPACE) {
		camera.MoveUp(move)
	}
	if input.IsKeyDown(core.KEY_X) {
		camera.MoveDown(move)
	}

	// Reset the camera on release of R.
	if input.IsKeyUp(core.KEY_R) && input.WasKeyDown(core.KEY_R) {
		camera.Reset()
		camera.SetPosition(math.NewVec3(0, 10, 40))
		camera.LookAt(math.NewVec3Zero())
	}
	return nil
}

func (g *TestGame) Render(stats metadata.FrameStats, deltaTime float64) error {
	state := g.State.(*gameState)
	if stats != state.lastStats {
		core.LogDebug("drawing %d entities, %d vertices", stats.DrawCalls, stats.Vertices)
		state.lastStats = stats
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed")
	return nil
}
