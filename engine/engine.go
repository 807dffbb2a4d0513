package engine

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/renderworld/engine/assets"
	"github.com/spaghettifunk/renderworld/engine/config"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/platform"
	"github.com/spaghettifunk/renderworld/engine/renderer"
	"github.com/spaghettifunk/renderworld/engine/systems"
	"github.com/spaghettifunk/renderworld/engine/world"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const (
	// How often frame statistics are logged, in frames.
	statsInterval  = 300
	eventQueueSize = 256
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *config.Config
	isRunning    bool
	isSuspended  bool

	events   *core.EventSystem
	input    *core.InputState
	platform *platform.Platform
	backend  renderer.Backend
	jobs     *systems.JobSystem
	watcher  *assets.MapWatcher
	scene    *Scene

	width       uint32
	height      uint32
	clock       *core.Clock
	metrics     *core.Metrics
	lastTime    float64
	frameNumber uint64

	// Maps parsed off the main loop, applied by Run.
	mapResults chan *world.Map
}

func New(g *Game, cfg *config.Config) (*Engine, error) {
	if g == nil || cfg == nil {
		return nil, fmt.Errorf("func New - game and config are required")
	}
	if err := cfg.Validate(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	core.SetLogLevel(cfg.Application.LogLevel)

	events := core.NewEventSystem(eventQueueSize)
	input := core.NewInputState(events)

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		events:       events,
		input:        input,
		width:        cfg.Application.StartWidth,
		height:       cfg.Application.StartHeight,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		mapResults:   make(chan *world.Map, 1),
	}
	if windowed(cfg) {
		e.platform = platform.New(input, events)
	}
	return e, nil
}

func (e *Engine) Initialize(ctx context.Context) error {
	e.currentStage = EngineStageInitializing

	// register some events
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_MAP_CHANGED, e, e.onMapChanged)

	appConfig := e.config.Application
	if e.platform != nil {
		if err := e.platform.Startup(appConfig.Name, appConfig.StartPosX, appConfig.StartPosY, appConfig.StartWidth, appConfig.StartHeight); err != nil {
			return err
		}
	}

	backend, width, height, err := createBackend(e.config, e.platform)
	if err != nil {
		return err
	}
	e.backend = backend
	e.width, e.height = width, height

	scene, err := NewScene(e.config, backend, width, height)
	if err != nil {
		return err
	}
	e.scene = scene

	jobs, err := systems.NewJobSystem(e.config.Jobs.Workers, e.config.Jobs.QueueSize)
	if err != nil {
		return err
	}
	e.jobs = jobs

	m, err := e.bootMap()
	if err != nil {
		return err
	}
	if _, err := e.scene.Populate(ctx, m); err != nil {
		return err
	}

	if e.config.World.Watch && e.config.World.MapFile != "" {
		watcher, err := assets.NewMapWatcher(e.config.World.MapFile, e.events)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		e.watcher = watcher
	}

	e.gameInstance.Scene = e.scene
	e.gameInstance.Input = e.input
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) bootMap() (*world.Map, error) {
	if path := e.config.World.MapFile; path != "" {
		return world.LoadMap(path)
	}
	if e.gameInstance.FnBootMap != nil {
		return e.gameInstance.FnBootMap()
	}
	return &world.Map{Name: "empty"}, nil
}

/**
 * @brief Runs the frame loop until the window closes, a quit event arrives,
 * the context is canceled or the configured number of frames is rendered.
 * A frame whose submission fails is logged and skipped; the loop goes on.
 */
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine: %w", core.ErrNotInitialized)
	}
	e.currentStage = EngineStageRunning
	e.isRunning = true

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		select {
		case <-ctx.Done():
			core.LogInfo("context canceled, shutting down.")
			e.isRunning = false
			continue
		default:
		}

		if e.platform != nil {
			e.platform.PumpMessages()
			if e.platform.ShouldClose() {
				e.isRunning = false
			}
		}
		e.events.Dispatch()
		e.applyReloadedMaps(ctx)

		if e.isSuspended || !e.isRunning {
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				return err
			}
		}

		if err := e.drawFrame(delta); err != nil {
			return err
		}

		e.clock.Update()
		e.metrics.Update(e.clock.Elapsed() - currentTime)

		// NOTE: Input update/state copying should always be handled
		// after any input should be recorded; I.E. before this line.
		e.input.Update()

		e.lastTime = currentTime
		e.frameNumber++
		if limit := e.config.Application.MaxFrames; limit > 0 && e.frameNumber >= limit {
			e.isRunning = false
		}
	}
	return nil
}

func (e *Engine) drawFrame(delta float64) error {
	if err := e.backend.BeginFrame(delta); err != nil {
		core.LogError("begin frame failed: %s", err)
		return nil
	}

	stats, renderErr := e.scene.Render()
	if renderErr != nil {
		core.LogError("frame %d: %s", e.frameNumber, renderErr)
	}

	if err := e.backend.EndFrame(delta); err != nil {
		core.LogError("end frame failed: %s", err)
		return nil
	}

	if renderErr == nil && e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(stats, delta); err != nil {
			core.LogError("Game render failed, shutting down: %s", err)
			return err
		}
	}

	if e.frameNumber%statsInterval == 0 {
		fps, frameMS := e.metrics.Frame()
		core.Logger().Debug("frame",
			"number", e.frameNumber,
			"draws", stats.DrawCalls,
			"vertices", stats.Vertices,
			"fps", fps,
			"ms", frameMS,
		)
	}
	return nil
}

func (e *Engine) applyReloadedMaps(ctx context.Context) {
	for {
		select {
		case m := <-e.mapResults:
			if _, err := e.scene.Populate(ctx, m); err != nil {
				core.LogError("map reload failed: %s", err)
			}
		default:
			return
		}
	}
}

// reloadMap parses the map on the job system; the result is applied by Run.
func (e *Engine) reloadMap(path string) error {
	return e.jobs.Submit(systems.JobTask{
		Name: "load map " + path,
		Run: func(ctx context.Context) (interface{}, error) {
			return world.LoadMap(path)
		},
		OnComplete: func(result interface{}) {
			select {
			case e.mapResults <- result.(*world.Map):
			default:
				core.LogWarn("a map reload is already pending, dropping %s", path)
			}
		},
	})
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			core.LogWarn("closing map watcher: %s", err)
		}
	}
	if e.jobs != nil {
		if err := e.jobs.Shutdown(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogWarn("game shutdown: %s", err)
		}
	}
	if e.scene != nil {
		e.scene.Shutdown()
	}
	if e.backend != nil {
		if err := e.backend.Shutdown(); err != nil {
			return err
		}
	}
	if e.platform != nil {
		if err := e.platform.Shutdown(); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageUninitialized
	return nil
}

func (e *Engine) Scene() *Scene {
	return e.scene
}

func (e *Engine) Backend() renderer.Backend {
	return e.backend
}

func (e *Engine) Events() *core.EventSystem {
	return e.events
}

func (e *Engine) FrameNumber() uint64 {
	return e.frameNumber
}

// GetFramebufferSize returns the width and height (in this order)
// of the application framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) bool {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	if ke.KeyCode == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		// Block anything else from processing this.
		return true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}

	width, height := se.WindowWidth, se.WindowHeight
	if width == e.width && height == e.height {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}

	e.scene.Resize(width, height)
	if err := e.backend.Resized(width, height); err != nil {
		core.LogError("%s", err)
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError("%s", err)
		}
	}
	return true
}

func (e *Engine) onMapChanged(context core.EventContext) bool {
	fe, ok := context.Data.(*core.FileEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	core.LogInfo("map file %s changed, reloading", fe.Path)
	if err := e.reloadMap(fe.Path); err != nil {
		core.LogError("map reload: %s", err)
	}
	return true
}
