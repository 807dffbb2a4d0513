package world

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/geometry"
	"github.com/spaghettifunk/renderworld/engine/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeEntities(t *testing.T) {
	w := New()

	box, err := w.MakeGeometryEntity(math.NewVec3(0, 0, 10), geometry.NewBox())
	require.NoError(t, err)
	light, err := w.MakePointLight(math.NewVec3(0, 5, 0), math.NewVec3One(), 20)
	require.NoError(t, err)
	common, err := w.MakeEntity(KindCommon, math.NewVec3Zero())
	require.NoError(t, err)

	assert.Equal(t, []EntityID{0, 1, 2}, []EntityID{box, light, common})
	assert.Equal(t, uint32(1), w.LightCount())
	require.Len(t, w.GeometryEntities(), 1)
	assert.Equal(t, box, w.GeometryEntities()[0].Entity)

	e, err := w.Entity(box)
	require.NoError(t, err)
	assert.Equal(t, KindGeometry, e.Kind)
	assert.Equal(t, math.NewVec3(-0.5, -0.5, 9.5), e.Bounds.Min)
	assert.Equal(t, math.NewVec3(0.5, 0.5, 10.5), e.Bounds.Max)

	found, ok := w.FindByGUID(e.GUID)
	assert.True(t, ok)
	assert.Equal(t, box, found)

	_, err = w.MakeEntity(KindLight, math.NewVec3Zero())
	assert.Error(t, err)
	_, err = w.MakeGeometryEntity(math.NewVec3Zero(), nil)
	assert.ErrorIs(t, err, geometry.ErrUnknownShape)
}

func TestUnknownEntity(t *testing.T) {
	w := New()
	_, err := w.Entity(3)
	assert.ErrorIs(t, err, core.ErrUnknownEntity)
	assert.ErrorIs(t, w.SetPosition(3, math.NewVec3Zero()), core.ErrUnknownEntity)
	assert.ErrorIs(t, w.SetBounds(3, math.Extents3D{}), core.ErrUnknownEntity)
}

func TestSetPositionMovesBounds(t *testing.T) {
	w := New()
	id, err := w.MakeGeometryEntity(math.NewVec3Zero(), geometry.NewBox())
	require.NoError(t, err)
	require.NoError(t, w.SetPosition(id, math.NewVec3(1, 2, 3)))

	e, _ := w.Entity(id)
	assert.Equal(t, math.NewVec3(1, 2, 3), e.Position)
	assert.Equal(t, math.NewVec3(0.5, 1.5, 2.5), e.Bounds.Min)
}

func TestLightCap(t *testing.T) {
	w := New()
	for i := 0; i < MaxLights; i++ {
		_, err := w.MakeDirectionalLight(math.NewVec3Down(), math.NewVec3One())
		require.NoError(t, err)
	}
	_, err := w.MakeSpotLight(math.NewVec3Zero(), math.NewVec3Down(), math.NewVec3One(), 2)
	assert.ErrorIs(t, err, core.ErrTooManyLights)
	assert.Equal(t, uint32(MaxLights), w.LightCount())
	assert.Equal(t, MaxLights, w.EntityCount(), "a rejected light creates no entity")
}

const demoMap = `
name = "demo"

[[entities]]
guid = "6f1c1f9e-8d53-4b43-9e5e-2b0f3a9f2a11"
name = "box"
kind = "geometry"
position = [0.0, 0.0, 10.0]
[entities.geometry]
type = "box"
width = 1.0
height = 1.0
depth = 1.0

[[entities]]
name = "floor"
kind = "geometry"
position = [0.0, 0.0, 0.0]
[entities.geometry]
type = "grid"
width = 100.0
depth = 100.0
rows = 10
columns = 10

[[entities]]
name = "sun"
kind = "light"
position = [0.0, 0.0, 0.0]
[entities.light]
type = "directional"
color = [1.0, 1.0, 0.9]
direction = [0.0, -1.0, 0.0]
`

func TestApplyCreatesThenUpdates(t *testing.T) {
	m, err := DecodeMap(strings.NewReader(demoMap))
	require.NoError(t, err)

	w := New()
	res, err := w.Apply(m)
	require.NoError(t, err)
	assert.Equal(t, []EntityID{0, 1, 2}, res.Created)
	assert.Empty(t, res.Updated)
	assert.Len(t, w.GeometryEntities(), 2)
	assert.Equal(t, uint32(1), w.LightCount())

	shape, ok := w.GeometryOf(1)
	require.True(t, ok)
	assert.Equal(t, geometry.Grid{Width: 100, Depth: 100, Rows: 10, Columns: 10}, shape)

	// move the box, drop the others
	extra, err := w.MakeEntity(KindCommon, math.NewVec3Zero())
	require.NoError(t, err)
	m.Entities = m.Entities[:1]
	m.Entities[0].Position = [3]float32{5, 0, 0}

	res, err = w.Apply(m)
	require.NoError(t, err)
	assert.Equal(t, []EntityID{0}, res.Updated)
	assert.Empty(t, res.Created)
	assert.Equal(t, []EntityID{1, 2, extra}, res.Missing)

	e, _ := w.Entity(0)
	assert.Equal(t, math.NewVec3(5, 0, 0), e.Position)
	assert.Equal(t, 4, w.EntityCount(), "missing entities are kept")
}

func TestApplyRejectsWithoutSideEffects(t *testing.T) {
	w := New()
	m := &Map{Entities: []MapEntity{
		{Kind: "geometry", Geometry: &MapShape{Type: "box", Width: 1, Height: 1, Depth: 1}},
		{Kind: "geometry", Geometry: &MapShape{Type: "torus"}},
	}}
	_, err := w.Apply(m)
	assert.ErrorIs(t, err, geometry.ErrUnknownShape)
	assert.Zero(t, w.EntityCount())

	guid := uuid.NewString()
	m = &Map{Entities: []MapEntity{{GUID: guid, Kind: "common"}, {GUID: guid, Kind: "common"}}}
	_, err = w.Apply(m)
	assert.Error(t, err)
	assert.Zero(t, w.EntityCount())

	m = &Map{Entities: []MapEntity{{GUID: "not-a-guid"}}}
	_, err = w.Apply(m)
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := DecodeMap(strings.NewReader(`
[[entities]]
kind = "common"
colour = "red"
`))
	assert.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	w := New()
	_, err := w.MakeGeometryEntity(math.NewVec3(1, 2, 3), geometry.Sphere{Radius: 1, Slices: 16, Stacks: 16})
	require.NoError(t, err)
	_, err = w.MakeSpotLight(math.NewVec3(0, 4, 0), math.NewVec3Down(), math.NewVec3(1, 0, 0), 3)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "world.toml")
	require.NoError(t, SaveMap(path, w.Snapshot("saved")))

	m, err := LoadMap(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", m.Name)

	other := New()
	res, err := other.Apply(m)
	require.NoError(t, err)
	assert.Len(t, res.Created, 2)
	assert.Equal(t, w.Entities(), other.Entities())
	assert.Equal(t, w.Lights(), other.Lights())
	assert.Equal(t, w.GeometryEntities(), other.GeometryEntities())
}
