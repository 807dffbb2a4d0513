package world

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/geometry"
	"github.com/spaghettifunk/renderworld/engine/math"
)

// MaxLights is the maximum number of lights a world can hold.
const MaxLights = 255

type EntityID uint32

type Kind uint8

const (
	KindCommon Kind = iota
	KindLight
	KindGeometry
)

func (k Kind) String() string {
	switch k {
	case KindCommon:
		return "common"
	case KindLight:
		return "light"
	case KindGeometry:
		return "geometry"
	}
	return "unknown"
}

func parseKind(s string) (Kind, error) {
	switch s {
	case "", "common":
		return KindCommon, nil
	case "light":
		return KindLight, nil
	case "geometry":
		return KindGeometry, nil
	}
	return 0, fmt.Errorf("unknown entity kind `%s`", s)
}

type LightType uint32

const (
	LightSpot        LightType = 0
	LightPoint       LightType = 1
	LightDirectional LightType = 2
)

func (t LightType) String() string {
	switch t {
	case LightSpot:
		return "spot"
	case LightPoint:
		return "point"
	case LightDirectional:
		return "directional"
	}
	return "unknown"
}

func parseLightType(s string) (LightType, error) {
	switch s {
	case "spot":
		return LightSpot, nil
	case "point":
		return LightPoint, nil
	case "directional":
		return LightDirectional, nil
	}
	return 0, fmt.Errorf("unknown light type `%s`", s)
}

type Entity struct {
	ID       EntityID
	GUID     uuid.UUID
	Name     string
	Kind     Kind
	Position math.Vec3
	// Bounds is the world space AABB, empty for entities without a shape.
	Bounds math.Extents3D
}

type Light struct {
	Entity    EntityID
	Type      LightType
	Color     math.Vec3
	Direction math.Vec3
	Range     float32
	Radius    float32
}

type GeometryEntity struct {
	Entity EntityID
	Shape  geometry.Shape
}

/**
 * @brief The game world: every entity lives in one arena indexed by its
 * EntityID. Lights and geometry entities keep their extra data in side
 * tables that point back into the arena. Entities are never removed, so an
 * EntityID stays valid for the lifetime of the world.
 */
type World struct {
	entities []Entity
	lights   []Light
	geometry []GeometryEntity
	byGUID   map[uuid.UUID]EntityID
}

func New() *World {
	return &World{
		byGUID: make(map[uuid.UUID]EntityID),
	}
}

// MakeEntity creates a common entity. Lights and geometry entities have
// their own constructors.
func (w *World) MakeEntity(kind Kind, position math.Vec3) (EntityID, error) {
	if kind != KindCommon {
		err := fmt.Errorf("MakeEntity only creates common entities, use the %s constructor", kind)
		core.LogError("%s", err)
		return 0, err
	}
	return w.makeEntity(KindCommon, position, uuid.New(), ""), nil
}

func (w *World) makeEntity(kind Kind, position math.Vec3, guid uuid.UUID, name string) EntityID {
	id := EntityID(len(w.entities))
	w.entities = append(w.entities, Entity{
		ID:       id,
		GUID:     guid,
		Name:     name,
		Kind:     kind,
		Position: position,
	})
	w.byGUID[guid] = id
	return id
}

func (w *World) MakeGeometryEntity(position math.Vec3, shape geometry.Shape) (EntityID, error) {
	return w.makeGeometryEntity(position, shape, uuid.New(), "")
}

func (w *World) makeGeometryEntity(position math.Vec3, shape geometry.Shape, guid uuid.UUID, name string) (EntityID, error) {
	if shape == nil {
		return 0, fmt.Errorf("%w: geometry entity without a shape", geometry.ErrUnknownShape)
	}
	id := w.makeEntity(KindGeometry, position, guid, name)
	w.geometry = append(w.geometry, GeometryEntity{Entity: id, Shape: shape})
	w.entities[id].Bounds = translate(geometry.Bounds(shape), position)
	return id, nil
}

func (w *World) MakeSpotLight(position, direction, color math.Vec3, radius float32) (EntityID, error) {
	return w.makeLight(position, uuid.New(), "", Light{
		Type:      LightSpot,
		Direction: direction,
		Color:     color,
		Radius:    radius,
	})
}

func (w *World) MakePointLight(position, color math.Vec3, lightRange float32) (EntityID, error) {
	return w.makeLight(position, uuid.New(), "", Light{
		Type:  LightPoint,
		Color: color,
		Range: lightRange,
	})
}

func (w *World) MakeDirectionalLight(direction, color math.Vec3) (EntityID, error) {
	return w.makeLight(math.NewVec3Zero(), uuid.New(), "", Light{
		Type:      LightDirectional,
		Direction: direction,
		Color:     color,
	})
}

func (w *World) makeLight(position math.Vec3, guid uuid.UUID, name string, light Light) (EntityID, error) {
	if len(w.lights) >= MaxLights {
		core.LogWarn("the world already holds %d lights, light not added", MaxLights)
		return 0, core.ErrTooManyLights
	}
	light.Entity = w.makeEntity(KindLight, position, guid, name)
	w.lights = append(w.lights, light)
	return light.Entity, nil
}

// Entity returns a copy of the entity.
func (w *World) Entity(id EntityID) (Entity, error) {
	if int(id) >= len(w.entities) {
		return Entity{}, fmt.Errorf("%w: %d", core.ErrUnknownEntity, id)
	}
	return w.entities[id], nil
}

// SetPosition moves the entity. The bounds of geometry entities follow.
func (w *World) SetPosition(id EntityID, position math.Vec3) error {
	if int(id) >= len(w.entities) {
		return fmt.Errorf("%w: %d", core.ErrUnknownEntity, id)
	}
	e := &w.entities[id]
	delta := position.Sub(e.Position)
	e.Position = position
	if e.Kind == KindGeometry {
		e.Bounds = translate(e.Bounds, delta)
	}
	return nil
}

func (w *World) SetBounds(id EntityID, bounds math.Extents3D) error {
	if int(id) >= len(w.entities) {
		return fmt.Errorf("%w: %d", core.ErrUnknownEntity, id)
	}
	w.entities[id].Bounds = bounds
	return nil
}

func (w *World) FindByGUID(guid uuid.UUID) (EntityID, bool) {
	id, ok := w.byGUID[guid]
	return id, ok
}

func (w *World) Entities() []Entity {
	return w.entities
}

func (w *World) Lights() []Light {
	return w.lights
}

func (w *World) GeometryEntities() []GeometryEntity {
	return w.geometry
}

// GeometryOf returns the shape of a geometry entity.
func (w *World) GeometryOf(id EntityID) (geometry.Shape, bool) {
	for _, g := range w.geometry {
		if g.Entity == id {
			return g.Shape, true
		}
	}
	return nil, false
}

func (w *World) LightCount() uint32 {
	return uint32(len(w.lights))
}

func (w *World) EntityCount() int {
	return len(w.entities)
}

func translate(e math.Extents3D, by math.Vec3) math.Extents3D {
	return math.Extents3D{Min: e.Min.Add(by), Max: e.Max.Add(by)}
}
