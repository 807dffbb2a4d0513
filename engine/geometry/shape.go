package geometry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spaghettifunk/renderworld/engine/math"
)

var (
	ErrUnknownShape = errors.New("unknown shape")
	ErrInvalidShape = errors.New("invalid shape parameters")
)

type Kind uint8

const (
	KindBox Kind = iota
	KindGrid
	KindSphere
)

func (k Kind) String() string {
	switch k {
	case KindBox:
		return "box"
	case KindGrid:
		return "grid"
	case KindSphere:
		return "sphere"
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "box":
		return KindBox, nil
	case "grid":
		return KindGrid, nil
	case "sphere":
		return KindSphere, nil
	}
	return 0, fmt.Errorf("%w: `%s`", ErrUnknownShape, s)
}

/**
 * @brief A procedural shape. The set of shapes is closed: only Box, Grid
 * and Sphere implement it.
 */
type Shape interface {
	Kind() Kind
	validate() error
}

// Box is an axis aligned box centered at the origin.
type Box struct {
	Width  float32
	Height float32
	Depth  float32
}

// Grid is a flat plane on XZ centered at the origin, split into
// Rows x Columns cells. Rows run along Z and columns along X.
type Grid struct {
	Width   float32
	Depth   float32
	Rows    uint32
	Columns uint32
}

// Sphere is a UV sphere with poles on the Y axis.
type Sphere struct {
	Radius float32
	Slices uint32
	Stacks uint32
}

func NewBox() Box { return Box{Width: 1, Height: 1, Depth: 1} }

func (Box) Kind() Kind    { return KindBox }
func (Grid) Kind() Kind   { return KindGrid }
func (Sphere) Kind() Kind { return KindSphere }

func (b Box) validate() error {
	if b.Width <= 0 || b.Height <= 0 || b.Depth <= 0 {
		return fmt.Errorf("%w: box dimensions must be > 0 (got %gx%gx%g)", ErrInvalidShape, b.Width, b.Height, b.Depth)
	}
	return nil
}

func (g Grid) validate() error {
	if g.Width <= 0 || g.Depth <= 0 {
		return fmt.Errorf("%w: grid size must be > 0 (got %gx%g)", ErrInvalidShape, g.Width, g.Depth)
	}
	if g.Rows == 0 || g.Columns == 0 {
		return fmt.Errorf("%w: grid needs at least one row and one column", ErrInvalidShape)
	}
	return nil
}

func (s Sphere) validate() error {
	if s.Radius <= 0 {
		return fmt.Errorf("%w: sphere radius must be > 0", ErrInvalidShape)
	}
	if s.Slices < 3 || s.Stacks < 2 {
		return fmt.Errorf("%w: sphere needs at least 3 slices and 2 stacks", ErrInvalidShape)
	}
	return nil
}

/**
 * @brief Returns the canonical mesh name of the shape. Every parameter that
 * changes the generated geometry is part of the name, so two shapes share a
 * name only if they generate the same mesh.
 */
func Name(shape Shape) string {
	switch s := shape.(type) {
	case Box:
		return join("Box", f(s.Width), f(s.Height), f(s.Depth))
	case Grid:
		return join("Grid", f(s.Width), f(s.Depth), u(s.Rows), u(s.Columns))
	case Sphere:
		return join("Sphere", f(s.Radius), u(s.Slices), u(s.Stacks))
	}
	return ""
}

// Bounds returns the local space extents of the shape.
func Bounds(shape Shape) math.Extents3D {
	switch s := shape.(type) {
	case Box:
		half := math.NewVec3(s.Width*0.5, s.Height*0.5, s.Depth*0.5)
		return math.Extents3D{Min: half.MulScalar(-1), Max: half}
	case Grid:
		return math.Extents3D{
			Min: math.NewVec3(-s.Width*0.5, 0, -s.Depth*0.5),
			Max: math.NewVec3(s.Width*0.5, 0, s.Depth*0.5),
		}
	case Sphere:
		r := math.NewVec3(s.Radius, s.Radius, s.Radius)
		return math.Extents3D{Min: r.MulScalar(-1), Max: r}
	}
	return math.Extents3D{}
}

func join(parts ...string) string { return strings.Join(parts, "_") }

func f(v float32) string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }

func u(v uint32) string { return strconv.FormatUint(uint64(v), 10) }
