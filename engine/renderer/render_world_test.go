package renderer

import (
	"testing"
	"unsafe"

	"github.com/spaghettifunk/renderworld/engine/config"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/geometry"
	"github.com/spaghettifunk/renderworld/engine/math"
	"github.com/spaghettifunk/renderworld/engine/renderer/components"
	"github.com/spaghettifunk/renderworld/engine/renderer/headless"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
	"github.com/spaghettifunk/renderworld/engine/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	backend *headless.Backend
	world   *world.World
	camera  *components.Camera
	view    *components.ViewInfo
	rw      *RenderWorld
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: headless.New(),
		world:   world.New(),
		camera:  components.NewCameraAt(math.NewVec3(0, 10, 40)),
		view:    components.NewViewInfo(1280, 720, 45, 0.1, 1000),
	}
	rw, err := NewRenderWorld(NewRenderWorldConfig(config.Default().Renderer), f.backend, f.world, f.camera, f.view)
	require.NoError(t, err)
	f.rw = rw
	return f
}

func (f *fixture) addGeometry(t *testing.T, position math.Vec3, shape geometry.Shape) (world.EntityID, metadata.MeshHandle) {
	t.Helper()
	id, err := f.world.MakeGeometryEntity(position, shape)
	require.NoError(t, err)
	mesh, err := geometry.Generate(shape)
	require.NoError(t, err)
	handle, err := f.rw.AddMesh(geometry.Name(shape), mesh)
	require.NoError(t, err)
	_, err = f.rw.MakeRenderEntity(id, handle)
	require.NoError(t, err)
	return id, handle
}

func TestLayouts(t *testing.T) {
	assert.Equal(t, uintptr(176), unsafe.Sizeof(metadata.FrameConstants{}))
	assert.Equal(t, uintptr(16), unsafe.Sizeof(metadata.DrawConstants{}))
	assert.Equal(t, uintptr(16), unsafe.Sizeof(metadata.MeshRecord{}))
	assert.Equal(t, uintptr(32), unsafe.Sizeof(math.Vertex{}))
	assert.Equal(t, uintptr(64), unsafe.Sizeof(math.Mat4{}))
}

func TestRenderWorldLifecycle(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, StateUninitialized, f.rw.State())

	_, err := f.rw.AddMesh("Box_1_1_1", &geometry.Mesh{})
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	_, err = f.rw.MakeRenderEntity(0, 0)
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	_, err = f.rw.Render()
	assert.ErrorIs(t, err, core.ErrNotInitialized)

	require.NoError(t, f.rw.Init())
	assert.Equal(t, StateInitialized, f.rw.State())
	assert.ErrorIs(t, f.rw.Init(), core.ErrAlreadyInitialized)
	assert.Equal(t, 6, f.backend.LiveBuffers())

	f.addGeometry(t, math.NewVec3Zero(), geometry.NewBox())
	assert.Equal(t, StatePopulating, f.rw.State())

	_, err = f.rw.Render()
	require.NoError(t, err)
	assert.Equal(t, StateRendering, f.rw.State())

	f.rw.Shutdown()
	f.rw.Shutdown()
	assert.Zero(t, f.backend.LiveBuffers())
	assert.ErrorIs(t, f.rw.Init(), core.ErrAlreadyInitialized)
}

func TestRenderWorldInitFailureReleasesBuffers(t *testing.T) {
	f := newFixture(t)
	f.backend.FailCreate = func(desc metadata.BufferDesc) error {
		if desc.Label == "draw_constants" {
			return errInjected
		}
		return nil
	}
	err := f.rw.Init()
	assert.ErrorIs(t, err, core.ErrAllocation)
	assert.Zero(t, f.backend.LiveBuffers())
	assert.Equal(t, StateUninitialized, f.rw.State())

	f.backend.FailCreate = nil
	require.NoError(t, f.rw.Init())
}

func TestRenderBoxAndGrid(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rw.Init())
	_, err := f.world.MakePointLight(math.NewVec3(0, 5, 0), math.NewVec3One(), 20)
	require.NoError(t, err)

	f.addGeometry(t, math.NewVec3(0, 0, 10), geometry.NewBox())
	f.addGeometry(t, math.NewVec3Zero(), geometry.Grid{Width: 100, Depth: 100, Rows: 10, Columns: 10})

	f.backend.Reset()
	stats, err := f.rw.Render()
	require.NoError(t, err)
	assert.Equal(t, metadata.FrameStats{DrawCalls: 2, Vertices: 636}, stats)

	draws := f.backend.Draws()
	require.Len(t, draws, 2)
	assert.Equal(t, uint32(36), draws[0].VertexCount)
	assert.Equal(t, uint32(600), draws[1].VertexCount)

	for i, draw := range draws {
		dc := headless.Decode[metadata.DrawConstants](draw.Constants[2])[0]
		assert.Equal(t, uint32(i), dc.MeshID)
		assert.Equal(t, uint32(i), dc.WorldMatrixID)

		assert.Equal(t, map[uint32]string{2: "mesh_records", 3: "world_matrices", 4: "indices", 5: "vertices"}, draw.Resources)

		frame := headless.Decode[metadata.FrameConstants](draw.Constants[1])[0]
		assert.Equal(t, f.camera.GetView(), frame.View)
		assert.Equal(t, f.view.Projection, frame.Projection)
		assert.Equal(t, f.camera.Position, frame.CameraPosition)
		assert.Equal(t, f.camera.Forward(), frame.CameraDirection)
		assert.Equal(t, uint32(1), frame.LightCount)
	}

	matrices := headless.Records[math.Mat4](f.backend, 3, 2)
	assert.Equal(t, math.NewVec3(0, 0, 10), matrices[0].Translation())
	assert.Equal(t, math.NewVec3Zero(), matrices[1].Translation())
	assert.Len(t, f.rw.WorldMatrices(), 2)

	// the frame constants are bound for both stages before any draw
	var sawFrame bool
	for _, c := range f.backend.Commands() {
		if c.Op == headless.OpBindConstants && c.Register == 1 {
			sawFrame = true
		}
		if c.Op == headless.OpDraw {
			assert.True(t, sawFrame)
			break
		}
	}
}

func TestRenderSharesMeshes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rw.Init())

	_, a := f.addGeometry(t, math.NewVec3(-2, 0, 0), geometry.NewBox())
	_, b := f.addGeometry(t, math.NewVec3(2, 0, 0), geometry.NewBox())
	assert.Equal(t, a, b)
	assert.Equal(t, 1, f.rw.Meshes().MeshCount())

	stats, err := f.rw.Render()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), stats.DrawCalls)

	entities := f.rw.RenderEntities()
	require.Len(t, entities, 2)
	assert.Equal(t, uint32(0), entities[0].WorldMatrixSlot)
	assert.Equal(t, uint32(1), entities[1].WorldMatrixSlot)
}

func TestMakeRenderEntityErrors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rw.Init())

	_, handle := f.addGeometry(t, math.NewVec3Zero(), geometry.NewBox())

	_, err := f.rw.MakeRenderEntity(42, handle)
	assert.ErrorIs(t, err, core.ErrUnknownEntity)

	id, err := f.world.MakeEntity(world.KindCommon, math.NewVec3Zero())
	require.NoError(t, err)
	_, err = f.rw.MakeRenderEntity(id, 7)
	assert.ErrorIs(t, err, core.ErrUnknownMesh)
	_, err = f.rw.MakeRenderEntity(id, metadata.InvalidMeshHandle)
	assert.ErrorIs(t, err, core.ErrUnknownMesh)

	assert.Len(t, f.rw.RenderEntities(), 1)
}

func TestMakeRenderEntityRollsBack(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rw.Init())
	_, handle := f.addGeometry(t, math.NewVec3Zero(), geometry.NewBox())

	id, err := f.world.MakeEntity(world.KindCommon, math.NewVec3One())
	require.NoError(t, err)

	f.backend.FailMap = failOn("world_matrices")
	_, err = f.rw.MakeRenderEntity(id, handle)
	assert.ErrorIs(t, err, core.ErrMap)
	assert.Len(t, f.rw.RenderEntities(), 1)
	assert.Len(t, f.rw.WorldMatrices(), 1)
}

func TestRenderFollowsPositions(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rw.Init())
	id, _ := f.addGeometry(t, math.NewVec3Zero(), geometry.NewBox())

	require.NoError(t, f.world.SetPosition(id, math.NewVec3(3, 4, 5)))
	_, err := f.rw.Render()
	require.NoError(t, err)

	matrices := headless.Records[math.Mat4](f.backend, 3, 1)
	assert.Equal(t, math.NewVec3(3, 4, 5), matrices[0].Translation())
}

func TestRenderAbortsOnMapFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rw.Init())
	f.addGeometry(t, math.NewVec3Zero(), geometry.NewBox())

	f.backend.Reset()
	f.backend.FailMap = failOn("world_matrices")
	_, err := f.rw.Render()
	assert.ErrorIs(t, err, core.ErrMap)
	assert.Empty(t, f.backend.Draws())

	f.backend.FailMap = nil
	stats, err := f.rw.Render()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), stats.DrawCalls)
}

func TestRenderResyncsStaleMeshes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rw.Init())
	f.addGeometry(t, math.NewVec3Zero(), geometry.NewBox())

	id, err := f.world.MakeGeometryEntity(math.NewVec3Zero(), geometry.NewBox())
	require.NoError(t, err)
	grid, err := geometry.Generate(geometry.Grid{Width: 1, Depth: 1, Rows: 1, Columns: 1})
	require.NoError(t, err)

	f.backend.FailMap = failOn("vertices")
	_, err = f.rw.AddMesh("Grid_1_1_1_1", grid)
	require.ErrorIs(t, err, core.ErrMap)
	assert.True(t, f.rw.Meshes().Stale())
	f.backend.FailMap = nil

	_, err = f.rw.MakeRenderEntity(id, 0)
	require.NoError(t, err)

	stats, err := f.rw.Render()
	require.NoError(t, err)
	assert.False(t, f.rw.Meshes().Stale())
	assert.Equal(t, uint32(2), stats.DrawCalls)

	records := headless.Records[metadata.MeshRecord](f.backend, 2, 1)
	assert.Equal(t, uint32(36), records[0].IndexCount)
}

// failingWorld reports entities listed in fail as unknown.
type failingWorld struct {
	*world.World
	fail map[world.EntityID]bool
}

func (fw *failingWorld) Entity(id world.EntityID) (world.Entity, error) {
	if fw.fail[id] {
		return world.Entity{}, errInjected
	}
	return fw.World.Entity(id)
}

func TestFailedMatrixRefreshKeepsSlots(t *testing.T) {
	f := newFixture(t)
	reader := &failingWorld{World: f.world, fail: map[world.EntityID]bool{}}
	rw, err := NewRenderWorld(NewRenderWorldConfig(config.Default().Renderer), f.backend, reader, f.camera, f.view)
	require.NoError(t, err)
	f.rw = rw
	require.NoError(t, f.rw.Init())

	var ids []world.EntityID
	for i := 0; i < 3; i++ {
		id, _ := f.addGeometry(t, math.NewVec3(float32(i), 0, 0), geometry.NewBox())
		ids = append(ids, id)
	}

	reader.fail[ids[1]] = true
	_, err = f.rw.Render()
	assert.ErrorIs(t, err, core.ErrUnknownEntity)
	assert.Len(t, f.rw.WorldMatrices(), 3, "a failed refresh keeps the previous table")
	delete(reader.fail, ids[1])

	id, _ := f.addGeometry(t, math.NewVec3(9, 0, 0), geometry.NewBox())
	entities := f.rw.RenderEntities()
	require.Len(t, entities, 4)
	assert.Equal(t, id, entities[3].EntityID)
	for i, re := range entities {
		assert.Equal(t, uint32(i), re.WorldMatrixSlot)
	}

	_, err = f.rw.Render()
	require.NoError(t, err)
	matrices := headless.Records[math.Mat4](f.backend, 3, 4)
	for i := 0; i < 3; i++ {
		assert.Equal(t, math.NewVec3(float32(i), 0, 0), matrices[i].Translation())
	}
	assert.Equal(t, math.NewVec3(9, 0, 0), matrices[3].Translation())
}

func TestDrawOrderFollowsRegistration(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rw.Init())

	grid := geometry.Grid{Width: 10, Depth: 10, Rows: 2, Columns: 2}
	_, gridHandle := f.addGeometry(t, math.NewVec3Zero(), grid)
	_, boxHandle := f.addGeometry(t, math.NewVec3(0, 0, 10), geometry.NewBox())
	_, again := f.addGeometry(t, math.NewVec3(5, 0, 0), grid)
	require.Equal(t, gridHandle, again)
	require.Equal(t, metadata.MeshHandle(0), gridHandle)
	require.Equal(t, metadata.MeshHandle(1), boxHandle)

	f.backend.Reset()
	_, err := f.rw.Render()
	require.NoError(t, err)

	expected := []metadata.DrawConstants{
		{MeshID: 0, WorldMatrixID: 0},
		{MeshID: 1, WorldMatrixID: 1},
		{MeshID: 0, WorldMatrixID: 2},
	}
	draws := f.backend.Draws()
	require.Len(t, draws, 3)
	for i, draw := range draws {
		dc := headless.Decode[metadata.DrawConstants](draw.Constants[2])[0]
		assert.Equal(t, expected[i].MeshID, dc.MeshID, "draw %d", i)
		assert.Equal(t, expected[i].WorldMatrixID, dc.WorldMatrixID, "draw %d", i)
	}
	assert.Equal(t, []uint32{24, 36, 24}, []uint32{draws[0].VertexCount, draws[1].VertexCount, draws[2].VertexCount})
}
