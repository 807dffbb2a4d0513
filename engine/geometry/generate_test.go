package geometry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertIndicesInBounds(t *testing.T, mesh *Mesh) {
	t.Helper()
	for i, idx := range mesh.Indices {
		require.Less(t, int(idx), len(mesh.Vertices), "index %d out of range", i)
	}
}

func TestBox(t *testing.T) {
	mesh, err := Generate(NewBox())
	require.NoError(t, err)
	assert.Len(t, mesh.Vertices, 24)
	assert.Len(t, mesh.Indices, 36)
	assert.Equal(t, 12, mesh.TriangleCount())
	assertIndicesInBounds(t, mesh)

	// every face is split (0,1,2),(2,3,0)
	for face := uint32(0); face < 6; face++ {
		base := face * 4
		assert.Equal(t, []uint32{base, base + 1, base + 2, base + 2, base + 3, base}, mesh.Indices[face*6:face*6+6])
	}

	for _, v := range mesh.Vertices {
		assert.InDelta(t, 0.5, abs(v.Position.X), 1e-6)
		assert.InDelta(t, 0.5, abs(v.Position.Y), 1e-6)
		assert.InDelta(t, 0.5, abs(v.Position.Z), 1e-6)
		assert.InDelta(t, 1.0, v.Normal.Length(), 1e-6)
	}
}

func TestGrid(t *testing.T) {
	mesh, err := Generate(Grid{Width: 100, Depth: 100, Rows: 10, Columns: 10})
	require.NoError(t, err)
	assert.Len(t, mesh.Vertices, 121)
	assert.Equal(t, 200, mesh.TriangleCount())
	assert.Len(t, mesh.Indices, 600)
	assertIndicesInBounds(t, mesh)

	first := mesh.Vertices[0].Position
	last := mesh.Vertices[120].Position
	assert.Equal(t, float32(-50), first.X)
	assert.Equal(t, float32(-50), first.Z)
	assert.Equal(t, float32(50), last.X)
	assert.Equal(t, float32(50), last.Z)

	// first cell: quad (11,12,1,0)
	assert.Equal(t, []uint32{11, 12, 1, 1, 0, 11}, mesh.Indices[:6])
}

func TestSphere(t *testing.T) {
	s := Sphere{Radius: 2, Slices: 16, Stacks: 8}
	mesh, err := Generate(s)
	require.NoError(t, err)
	assert.Len(t, mesh.Vertices, int((s.Stacks-1)*(s.Slices+1)+2))
	assert.Len(t, mesh.Indices, int(6*s.Slices*(s.Stacks-1)))
	assertIndicesInBounds(t, mesh)

	for _, v := range mesh.Vertices {
		assert.InDelta(t, 2.0, v.Position.Length(), 1e-4)
	}
}

func TestInvalidShapes(t *testing.T) {
	for _, shape := range []Shape{
		Box{Width: 0, Height: 1, Depth: 1},
		Grid{Width: 10, Depth: 10, Rows: 0, Columns: 1},
		Grid{Width: -1, Depth: 10, Rows: 1, Columns: 1},
		Sphere{Radius: 1, Slices: 2, Stacks: 4},
		Sphere{Radius: 0, Slices: 8, Stacks: 4},
	} {
		_, err := Generate(shape)
		assert.ErrorIs(t, err, ErrInvalidShape, "%#v", shape)
	}

	_, err := Generate(nil)
	assert.ErrorIs(t, err, ErrUnknownShape)
}

func TestName(t *testing.T) {
	assert.Equal(t, "Box_1_1_1", Name(NewBox()))
	assert.Equal(t, "Box_2.5_1_3", Name(Box{Width: 2.5, Height: 1, Depth: 3}))
	assert.Equal(t, "Grid_100_100_10_10", Name(Grid{Width: 100, Depth: 100, Rows: 10, Columns: 10}))
	assert.Equal(t, "Sphere_1_16_16", Name(Sphere{Radius: 1, Slices: 16, Stacks: 16}))
	assert.NotEqual(t, Name(Grid{Width: 10, Depth: 10, Rows: 2, Columns: 4}), Name(Grid{Width: 10, Depth: 10, Rows: 4, Columns: 2}))
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindBox, KindGrid, KindSphere} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("torus")
	assert.ErrorIs(t, err, ErrUnknownShape)
}

func TestGenerateAllPreservesOrder(t *testing.T) {
	shapes := []Shape{
		Grid{Width: 100, Depth: 100, Rows: 10, Columns: 10},
		NewBox(),
		Sphere{Radius: 1, Slices: 8, Stacks: 4},
		Grid{Width: 1, Depth: 1, Rows: 1, Columns: 1},
	}
	meshes, err := GenerateAll(context.Background(), shapes, 3)
	require.NoError(t, err)
	require.Len(t, meshes, 4)
	assert.Len(t, meshes[0].Indices, 600)
	assert.Len(t, meshes[1].Indices, 36)
	assert.Len(t, meshes[2].Vertices, 3*9+2)
	assert.Len(t, meshes[3].Vertices, 4)
}

func TestGenerateAllFails(t *testing.T) {
	_, err := GenerateAll(context.Background(), []Shape{NewBox(), Box{}}, 2)
	assert.ErrorIs(t, err, ErrInvalidShape)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = GenerateAll(ctx, []Shape{NewBox()}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
