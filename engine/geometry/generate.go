package geometry

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/math"
	"golang.org/x/sync/errgroup"
)

// Mesh is a triangle list. Every three indices form one triangle.
type Mesh struct {
	Vertices []math.Vertex
	Indices  []uint32
}

func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

/**
 * @brief Generates the triangle mesh for the given shape.
 *
 * @param shape One of Box, Grid or Sphere.
 * @return The generated mesh, or ErrUnknownShape / ErrInvalidShape.
 */
func Generate(shape Shape) (*Mesh, error) {
	if shape == nil {
		return nil, fmt.Errorf("%w: nil", ErrUnknownShape)
	}
	if err := shape.validate(); err != nil {
		core.LogWarn("%s", err)
		return nil, err
	}

	switch s := shape.(type) {
	case Box:
		return generateBox(s), nil
	case Grid:
		return generateGrid(s), nil
	case Sphere:
		return generateSphere(s), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownShape, shape)
}

/**
 * @brief Generates the meshes of all shapes using at most workers goroutines.
 * The result keeps the order of shapes. The first failure cancels the rest.
 */
func GenerateAll(ctx context.Context, shapes []Shape, workers int) ([]*Mesh, error) {
	if workers < 1 {
		workers = 1
	}
	meshes := make([]*Mesh, len(shapes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, shape := range shapes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			mesh, err := Generate(shape)
			if err != nil {
				return fmt.Errorf("shape %d (%s): %w", i, Name(shape), err)
			}
			meshes[i] = mesh
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return meshes, nil
}

// appendQuad adds the two triangles of the quad a,b,c,d as (a,b,c),(c,d,a).
func appendQuad(indices []uint32, a, b, c, d uint32) []uint32 {
	return append(indices, a, b, c, c, d, a)
}

func generateBox(b Box) *Mesh {
	hx := b.Width * 0.5
	hy := b.Height * 0.5
	hz := b.Depth * 0.5

	// 4 verts per side, corners counter clockwise seen from outside.
	faces := [6]struct {
		normal  math.Vec3
		corners [4]math.Vec3
	}{
		// Front
		{math.NewVec3(0, 0, 1), [4]math.Vec3{{X: -hx, Y: -hy, Z: hz}, {X: hx, Y: -hy, Z: hz}, {X: hx, Y: hy, Z: hz}, {X: -hx, Y: hy, Z: hz}}},
		// Back
		{math.NewVec3(0, 0, -1), [4]math.Vec3{{X: hx, Y: -hy, Z: -hz}, {X: -hx, Y: -hy, Z: -hz}, {X: -hx, Y: hy, Z: -hz}, {X: hx, Y: hy, Z: -hz}}},
		// Left
		{math.NewVec3(-1, 0, 0), [4]math.Vec3{{X: -hx, Y: -hy, Z: -hz}, {X: -hx, Y: -hy, Z: hz}, {X: -hx, Y: hy, Z: hz}, {X: -hx, Y: hy, Z: -hz}}},
		// Right
		{math.NewVec3(1, 0, 0), [4]math.Vec3{{X: hx, Y: -hy, Z: hz}, {X: hx, Y: -hy, Z: -hz}, {X: hx, Y: hy, Z: -hz}, {X: hx, Y: hy, Z: hz}}},
		// Top
		{math.NewVec3(0, 1, 0), [4]math.Vec3{{X: -hx, Y: hy, Z: hz}, {X: hx, Y: hy, Z: hz}, {X: hx, Y: hy, Z: -hz}, {X: -hx, Y: hy, Z: -hz}}},
		// Bottom
		{math.NewVec3(0, -1, 0), [4]math.Vec3{{X: -hx, Y: -hy, Z: -hz}, {X: hx, Y: -hy, Z: -hz}, {X: hx, Y: -hy, Z: hz}, {X: -hx, Y: -hy, Z: hz}}},
	}
	uvs := [4]math.Vec2{{X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}

	mesh := &Mesh{
		Vertices: make([]math.Vertex, 0, 4*6),
		Indices:  make([]uint32, 0, 6*6),
	}
	for _, face := range faces {
		base := uint32(len(mesh.Vertices))
		for i, corner := range face.corners {
			mesh.Vertices = append(mesh.Vertices, math.Vertex{
				Position: corner,
				Normal:   face.normal,
				UV:       uvs[i],
			})
		}
		mesh.Indices = appendQuad(mesh.Indices, base, base+1, base+2, base+3)
	}
	return mesh
}

func generateGrid(g Grid) *Mesh {
	columns := g.Columns + 1
	rows := g.Rows + 1
	cellWidth := g.Width / float32(g.Columns)
	cellDepth := g.Depth / float32(g.Rows)
	minX := -g.Width * 0.5
	minZ := -g.Depth * 0.5

	mesh := &Mesh{
		Vertices: make([]math.Vertex, 0, rows*columns),
		Indices:  make([]uint32, 0, 6*g.Rows*g.Columns),
	}
	for r := uint32(0); r < rows; r++ {
		for c := uint32(0); c < columns; c++ {
			mesh.Vertices = append(mesh.Vertices, math.Vertex{
				Position: math.NewVec3(minX+float32(c)*cellWidth, 0, minZ+float32(r)*cellDepth),
				Normal:   math.NewVec3Up(),
				UV:       math.NewVec2(float32(c)/float32(g.Columns), float32(r)/float32(g.Rows)),
			})
		}
	}

	at := func(r, c uint32) uint32 { return r*columns + c }
	for r := uint32(0); r < g.Rows; r++ {
		for c := uint32(0); c < g.Columns; c++ {
			mesh.Indices = appendQuad(mesh.Indices, at(r+1, c), at(r+1, c+1), at(r, c+1), at(r, c))
		}
	}
	return mesh
}

func generateSphere(s Sphere) *Mesh {
	ring := s.Slices + 1
	vertexCount := (s.Stacks-1)*ring + 2

	mesh := &Mesh{
		Vertices: make([]math.Vertex, 0, vertexCount),
		Indices:  make([]uint32, 0, 6*s.Slices*(s.Stacks-1)),
	}

	mesh.Vertices = append(mesh.Vertices, math.Vertex{
		Position: math.NewVec3(0, s.Radius, 0),
		Normal:   math.NewVec3Up(),
		UV:       math.NewVec2(0, 0),
	})
	for i := uint32(1); i < s.Stacks; i++ {
		phi := float32(i) * math.K_PI / float32(s.Stacks)
		for j := uint32(0); j <= s.Slices; j++ {
			theta := float32(j) * math.K_PI_2 / float32(s.Slices)
			normal := math.NewVec3(math.Sin(phi)*math.Cos(theta), math.Cos(phi), math.Sin(phi)*math.Sin(theta))
			mesh.Vertices = append(mesh.Vertices, math.Vertex{
				Position: normal.MulScalar(s.Radius),
				Normal:   normal,
				UV:       math.NewVec2(float32(j)/float32(s.Slices), float32(i)/float32(s.Stacks)),
			})
		}
	}
	mesh.Vertices = append(mesh.Vertices, math.Vertex{
		Position: math.NewVec3(0, -s.Radius, 0),
		Normal:   math.NewVec3Down(),
		UV:       math.NewVec2(0, 1),
	})

	top := uint32(0)
	bottom := vertexCount - 1

	for j := uint32(0); j < s.Slices; j++ {
		mesh.Indices = append(mesh.Indices, top, 1+j+1, 1+j)
	}
	for i := uint32(0); i < s.Stacks-2; i++ {
		base := 1 + i*ring
		for j := uint32(0); j < s.Slices; j++ {
			a := base + j
			mesh.Indices = appendQuad(mesh.Indices, a, a+1, a+ring+1, a+ring)
		}
	}
	last := 1 + (s.Stacks-2)*ring
	for j := uint32(0); j < s.Slices; j++ {
		mesh.Indices = append(mesh.Indices, bottom, last+j, last+j+1)
	}
	return mesh
}
