package renderer

import (
	"fmt"

	"github.com/spaghettifunk/renderworld/engine/config"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/geometry"
	"github.com/spaghettifunk/renderworld/engine/math"
	"github.com/spaghettifunk/renderworld/engine/renderer/components"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
	"github.com/spaghettifunk/renderworld/engine/world"
)

// WorldReader is the part of the game world the renderer reads.
type WorldReader interface {
	Entity(id world.EntityID) (world.Entity, error)
	LightCount() uint32
}

type State uint8

const (
	StateUninitialized State = iota
	StateInitialized
	StatePopulating
	StateRendering
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StatePopulating:
		return "populating"
	case StateRendering:
		return "rendering"
	}
	return "unknown"
}

/** @brief Initial capacities and shader registers of the render world buffers. */
type RenderWorldConfig struct {
	MeshCapacity        uint32
	WorldMatrixCapacity uint32
	IndexCapacity       uint32
	VertexCapacity      uint32
	Registers           config.RegisterConfig
}

func NewRenderWorldConfig(cfg config.RendererConfig) *RenderWorldConfig {
	return &RenderWorldConfig{
		MeshCapacity:        cfg.MeshCapacity,
		WorldMatrixCapacity: cfg.WorldMatrixCapacity,
		IndexCapacity:       cfg.IndexCapacity,
		VertexCapacity:      cfg.VertexCapacity,
		Registers:           cfg.Registers,
	}
}

/**
 * @brief The GPU side of the scene. It owns the mesh cache, the world matrix
 * table and the render entities, and submits one draw per render entity
 * every frame.
 */
type RenderWorld struct {
	config  *RenderWorldConfig
	backend Backend
	world   WorldReader
	camera  *components.Camera
	view    *components.ViewInfo

	state State
	// set by Shutdown; a render world is not initialized twice
	closed bool

	meshes        *MeshCache
	worldMatrices *StructuredBuffer[math.Mat4]
	matrices      []math.Mat4
	entities      []metadata.RenderEntity

	frameConstants *ConstantBuffer[metadata.FrameConstants]
	drawConstants  *ConstantBuffer[metadata.DrawConstants]
}

func NewRenderWorld(cfg *RenderWorldConfig, backend Backend, reader WorldReader, camera *components.Camera, view *components.ViewInfo) (*RenderWorld, error) {
	if cfg == nil || backend == nil || reader == nil || camera == nil || view == nil {
		err := fmt.Errorf("func NewRenderWorld - config, backend, world, camera and view are required")
		core.LogError("%s", err)
		return nil, err
	}
	return &RenderWorld{
		config:  cfg,
		backend: backend,
		world:   reader,
		camera:  camera,
		view:    view,
	}, nil
}

/**
 * @brief Allocates the structured buffers and the constant buffers. Must be
 * called once before anything else.
 */
func (rw *RenderWorld) Init() error {
	if rw.state != StateUninitialized || rw.closed {
		return fmt.Errorf("render world: %w", core.ErrAlreadyInitialized)
	}

	regs := rw.config.Registers
	meshRecords := NewStructuredBuffer[metadata.MeshRecord](rw.backend, "mesh_records", regs.Meshes, metadata.ShaderStageVertex)
	vertices := NewStructuredBuffer[math.Vertex](rw.backend, "vertices", regs.Vertices, metadata.ShaderStageVertex)
	indices := NewStructuredBuffer[uint32](rw.backend, "indices", regs.Indices, metadata.ShaderStageVertex)
	worldMatrices := NewStructuredBuffer[math.Mat4](rw.backend, "world_matrices", regs.WorldMatrices, metadata.ShaderStageVertex)

	release := func() {
		meshRecords.Free()
		vertices.Free()
		indices.Free()
		worldMatrices.Free()
	}

	allocations := []struct {
		allocate func(uint32) error
		capacity uint32
	}{
		{meshRecords.Allocate, rw.config.MeshCapacity},
		{worldMatrices.Allocate, rw.config.WorldMatrixCapacity},
		{indices.Allocate, rw.config.IndexCapacity},
		{vertices.Allocate, rw.config.VertexCapacity},
	}
	for _, a := range allocations {
		if err := a.allocate(a.capacity); err != nil {
			release()
			return err
		}
	}

	frameConstants, err := NewConstantBuffer[metadata.FrameConstants](rw.backend, "frame_constants", regs.FrameConstants, metadata.ShaderStageVertex|metadata.ShaderStagePixel)
	if err != nil {
		release()
		return err
	}
	drawConstants, err := NewConstantBuffer[metadata.DrawConstants](rw.backend, "draw_constants", regs.DrawConstants, metadata.ShaderStageVertex)
	if err != nil {
		frameConstants.Free()
		release()
		return err
	}

	rw.meshes = NewMeshCache(meshRecords, vertices, indices)
	rw.worldMatrices = worldMatrices
	rw.frameConstants = frameConstants
	rw.drawConstants = drawConstants
	rw.state = StateInitialized

	core.LogInfo("render world initialized (meshes %d, world matrices %d, indices %d, vertices %d)",
		rw.config.MeshCapacity, rw.config.WorldMatrixCapacity, rw.config.IndexCapacity, rw.config.VertexCapacity)
	return nil
}

// AddMesh adds a mesh to the mesh cache, see MeshCache.AddMesh.
func (rw *RenderWorld) AddMesh(name string, mesh *geometry.Mesh) (metadata.MeshHandle, error) {
	if rw.state == StateUninitialized {
		return metadata.InvalidMeshHandle, fmt.Errorf("render world: %w", core.ErrNotInitialized)
	}
	rw.state = StatePopulating
	return rw.meshes.AddMesh(name, mesh)
}

/**
 * @brief Makes the entity drawable with the given mesh. The entity gets a
 * slot in the world matrix table holding its current translation.
 *
 * @return The world matrix slot of the new render entity.
 */
func (rw *RenderWorld) MakeRenderEntity(entityID world.EntityID, mesh metadata.MeshHandle) (uint32, error) {
	if rw.state == StateUninitialized {
		return 0, fmt.Errorf("render world: %w", core.ErrNotInitialized)
	}
	entity, err := rw.world.Entity(entityID)
	if err != nil {
		return 0, fmt.Errorf("%w: %d: %w", core.ErrUnknownEntity, entityID, err)
	}
	if _, ok := rw.meshes.Record(mesh); !ok {
		return 0, fmt.Errorf("%w: %d", core.ErrUnknownMesh, mesh)
	}
	rw.state = StatePopulating

	// One slot per render entity, in registration order.
	slot := uint32(len(rw.entities))
	rw.matrices = append(rw.matrices[:slot], math.NewMat4Translation(entity.Position))
	if err := rw.worldMatrices.Update(rw.matrices); err != nil {
		rw.matrices = rw.matrices[:slot]
		return 0, err
	}

	rw.entities = append(rw.entities, metadata.RenderEntity{
		EntityID:        entityID,
		Mesh:            mesh,
		WorldMatrixSlot: slot,
	})
	return slot, nil
}

/**
 * @brief Rebuilds the world matrix table from the current entity positions,
 * in render entity order, and uploads it. A failed lookup leaves the table
 * as it was.
 */
func (rw *RenderWorld) UpdateWorldMatrices() error {
	if rw.state == StateUninitialized {
		return fmt.Errorf("render world: %w", core.ErrNotInitialized)
	}
	matrices := make([]math.Mat4, 0, len(rw.entities))
	for _, re := range rw.entities {
		entity, err := rw.world.Entity(re.EntityID)
		if err != nil {
			return fmt.Errorf("%w: %d: %w", core.ErrUnknownEntity, re.EntityID, err)
		}
		matrices = append(matrices, math.NewMat4Translation(entity.Position))
	}
	rw.matrices = matrices
	return rw.worldMatrices.Update(rw.matrices)
}

// Shutdown releases every GPU resource. Calling it again does nothing.
func (rw *RenderWorld) Shutdown() {
	if rw.state == StateUninitialized {
		return
	}
	rw.meshes.Free()
	rw.worldMatrices.Free()
	rw.frameConstants.Free()
	rw.drawConstants.Free()
	rw.state = StateUninitialized
	rw.closed = true
	core.LogInfo("render world shut down")
}

func (rw *RenderWorld) State() State {
	return rw.state
}

func (rw *RenderWorld) RenderEntities() []metadata.RenderEntity {
	return rw.entities
}

func (rw *RenderWorld) Meshes() *MeshCache {
	return rw.meshes
}

// WorldMatrices returns the CPU copy of the world matrix table as last uploaded.
func (rw *RenderWorld) WorldMatrices() []math.Mat4 {
	return rw.matrices
}
