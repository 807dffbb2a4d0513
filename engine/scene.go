package engine

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/renderworld/engine/config"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/geometry"
	"github.com/spaghettifunk/renderworld/engine/math"
	"github.com/spaghettifunk/renderworld/engine/renderer"
	"github.com/spaghettifunk/renderworld/engine/renderer/components"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
	"github.com/spaghettifunk/renderworld/engine/world"
)

// PopulateResult reports what a Populate call did.
type PopulateResult struct {
	world.ApplyResult
	// Geometry entities that received a render entity.
	Registered []world.EntityID
	// Geometry entities left without a render entity after a recoverable error.
	Skipped []world.EntityID
}

/**
 * @brief The game world together with what renders it: the camera, the view
 * and the render world. All methods run on the engine main loop.
 */
type Scene struct {
	World    *world.World
	Camera   *components.Camera
	View     *components.ViewInfo
	Renderer *renderer.RenderWorld

	workers    int
	registered map[world.EntityID]uint32
}

func NewScene(cfg *config.Config, backend renderer.Backend, width, height uint32) (*Scene, error) {
	w := world.New()
	camera := components.NewCameraAt(math.NewVec3(cfg.Camera.Position[0], cfg.Camera.Position[1], cfg.Camera.Position[2]))
	view := components.NewViewInfo(width, height, cfg.Camera.FOVDegrees, cfg.Camera.NearClip, cfg.Camera.FarClip)

	rw, err := renderer.NewRenderWorld(renderer.NewRenderWorldConfig(cfg.Renderer), backend, w, camera, view)
	if err != nil {
		return nil, err
	}
	if err := rw.Init(); err != nil {
		return nil, err
	}

	return &Scene{
		World:      w,
		Camera:     camera,
		View:       view,
		Renderer:   rw,
		workers:    cfg.Jobs.Workers,
		registered: make(map[world.EntityID]uint32),
	}, nil
}

/**
 * @brief Applies the map to the world and gives every geometry entity that
 * has none yet a render entity. Meshes are generated in parallel and named
 * after their shape, so identical shapes share one mesh. Used both at startup
 * and when the map file is reloaded: known entities only move.
 */
func (s *Scene) Populate(ctx context.Context, m *world.Map) (PopulateResult, error) {
	result := PopulateResult{}
	applied, err := s.World.Apply(m)
	if err != nil {
		return result, err
	}
	result.ApplyResult = applied

	var pending []world.GeometryEntity
	var names []string
	var shapes []geometry.Shape
	seen := map[string]bool{}
	for _, ge := range s.World.GeometryEntities() {
		if _, ok := s.registered[ge.Entity]; ok {
			continue
		}
		pending = append(pending, ge)

		name := geometry.Name(ge.Shape)
		if _, cached := s.Renderer.Meshes().Lookup(name); cached || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
		shapes = append(shapes, ge.Shape)
	}
	if len(pending) == 0 {
		return result, nil
	}

	meshes, err := geometry.GenerateAll(ctx, shapes, s.workers)
	if err != nil {
		return result, fmt.Errorf("generating meshes for map `%s`: %w", m.Name, err)
	}
	for i, name := range names {
		if _, err := s.Renderer.AddMesh(name, meshes[i]); err != nil {
			core.LogWarn("mesh `%s` not added: %s", name, err)
		}
	}

	for _, ge := range pending {
		handle, ok := s.Renderer.Meshes().Lookup(geometry.Name(ge.Shape))
		if !ok {
			result.Skipped = append(result.Skipped, ge.Entity)
			continue
		}
		slot, err := s.Renderer.MakeRenderEntity(ge.Entity, handle)
		if err != nil {
			core.LogWarn("entity %d not registered: %s", ge.Entity, err)
			result.Skipped = append(result.Skipped, ge.Entity)
			continue
		}
		s.registered[ge.Entity] = slot
		result.Registered = append(result.Registered, ge.Entity)
	}

	core.Logger().Info("map populated",
		"map", m.Name,
		"created", len(result.Created),
		"updated", len(result.Updated),
		"registered", len(result.Registered),
		"skipped", len(result.Skipped),
		"meshes", s.Renderer.Meshes().MeshCount(),
	)
	return result, nil
}

func (s *Scene) Render() (metadata.FrameStats, error) {
	return s.Renderer.Render()
}

func (s *Scene) Resize(width, height uint32) {
	s.View.Resize(width, height)
}

func (s *Scene) Shutdown() {
	s.Renderer.Shutdown()
}
