package world

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/geometry"
	"github.com/spaghettifunk/renderworld/engine/math"
)

// Map is the on-disk (TOML) description of a world.
type Map struct {
	Name     string      `toml:"name"`
	Entities []MapEntity `toml:"entities"`
}

type MapEntity struct {
	// GUID identifies the entity across reloads. Entities without one get a
	// fresh GUID when applied.
	GUID     string     `toml:"guid,omitempty"`
	Name     string     `toml:"name,omitempty"`
	Kind     string     `toml:"kind"`
	Position [3]float32 `toml:"position"`
	Geometry *MapShape  `toml:"geometry,omitempty"`
	Light    *MapLight  `toml:"light,omitempty"`
}

type MapShape struct {
	Type    string  `toml:"type"`
	Width   float32 `toml:"width,omitempty"`
	Height  float32 `toml:"height,omitempty"`
	Depth   float32 `toml:"depth,omitempty"`
	Radius  float32 `toml:"radius,omitempty"`
	Rows    uint32  `toml:"rows,omitempty"`
	Columns uint32  `toml:"columns,omitempty"`
	Slices  uint32  `toml:"slices,omitempty"`
	Stacks  uint32  `toml:"stacks,omitempty"`
}

type MapLight struct {
	Type      string     `toml:"type"`
	Color     [3]float32 `toml:"color"`
	Direction [3]float32 `toml:"direction,omitempty"`
	Range     float32    `toml:"range,omitempty"`
	Radius    float32    `toml:"radius,omitempty"`
}

// ApplyResult reports what Apply did to the world.
type ApplyResult struct {
	Updated []EntityID
	Created []EntityID
	// Missing lists entities of the world that the map does not mention.
	// They are kept.
	Missing []EntityID
}

func LoadMap(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map %s: %w", path, err)
	}
	m, err := DecodeMap(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	return m, nil
}

func DecodeMap(r io.Reader) (*Map, error) {
	m := &Map{}
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(m); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, errors.New(strict.String())
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return nil, err
	}
	return m, nil
}

func SaveMap(path string, m *Map) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding map: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *MapShape) Shape() (geometry.Shape, error) {
	kind, err := geometry.ParseKind(s.Type)
	if err != nil {
		return nil, err
	}
	switch kind {
	case geometry.KindBox:
		return geometry.Box{Width: s.Width, Height: s.Height, Depth: s.Depth}, nil
	case geometry.KindGrid:
		return geometry.Grid{Width: s.Width, Depth: s.Depth, Rows: s.Rows, Columns: s.Columns}, nil
	default:
		return geometry.Sphere{Radius: s.Radius, Slices: s.Slices, Stacks: s.Stacks}, nil
	}
}

func mapShapeOf(shape geometry.Shape) *MapShape {
	ms := &MapShape{Type: shape.Kind().String()}
	switch s := shape.(type) {
	case geometry.Box:
		ms.Width, ms.Height, ms.Depth = s.Width, s.Height, s.Depth
	case geometry.Grid:
		ms.Width, ms.Depth, ms.Rows, ms.Columns = s.Width, s.Depth, s.Rows, s.Columns
	case geometry.Sphere:
		ms.Radius, ms.Slices, ms.Stacks = s.Radius, s.Slices, s.Stacks
	}
	return ms
}

// resolved is a map entity after validation.
type resolved struct {
	guid     uuid.UUID
	known    bool
	id       EntityID
	kind     Kind
	name     string
	position math.Vec3
	shape    geometry.Shape
	light    Light
}

/**
 * @brief Applies a map to the world. Entities whose GUID is already known are
 * moved to the position of the map; unknown GUIDs are created. Entities of
 * the world that the map does not list are kept and reported as missing.
 * The whole map is validated first, so a failing Apply leaves the world
 * untouched.
 */
func (w *World) Apply(m *Map) (ApplyResult, error) {
	result := ApplyResult{}
	entries, err := w.resolve(m)
	if err != nil {
		core.LogError("map `%s` rejected: %s", m.Name, err)
		return result, err
	}

	seen := make(map[EntityID]bool, len(entries))
	for _, r := range entries {
		if r.known {
			w.entities[r.id].Name = r.name
			if err := w.SetPosition(r.id, r.position); err != nil {
				return result, err
			}
			seen[r.id] = true
			result.Updated = append(result.Updated, r.id)
			continue
		}

		var id EntityID
		switch r.kind {
		case KindGeometry:
			id, err = w.makeGeometryEntity(r.position, r.shape, r.guid, r.name)
		case KindLight:
			id, err = w.makeLight(r.position, r.guid, r.name, r.light)
		default:
			id = w.makeEntity(KindCommon, r.position, r.guid, r.name)
		}
		if err != nil {
			return result, err
		}
		seen[id] = true
		result.Created = append(result.Created, id)
	}

	for _, e := range w.entities {
		if !seen[e.ID] {
			result.Missing = append(result.Missing, e.ID)
		}
	}
	return result, nil
}

func (w *World) resolve(m *Map) ([]resolved, error) {
	entries := make([]resolved, 0, len(m.Entities))
	guids := make(map[uuid.UUID]bool, len(m.Entities))
	newLights := 0

	for i, me := range m.Entities {
		r := resolved{
			name:     me.Name,
			position: math.NewVec3(me.Position[0], me.Position[1], me.Position[2]),
		}

		kind, err := parseKind(me.Kind)
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		r.kind = kind

		if me.GUID == "" {
			r.guid = uuid.New()
		} else {
			if r.guid, err = uuid.Parse(me.GUID); err != nil {
				return nil, fmt.Errorf("entity %d: invalid guid `%s`: %w", i, me.GUID, err)
			}
		}
		if guids[r.guid] {
			return nil, fmt.Errorf("entity %d: duplicate guid %s", i, r.guid)
		}
		guids[r.guid] = true

		if id, ok := w.byGUID[r.guid]; ok {
			if w.entities[id].Kind != kind {
				return nil, fmt.Errorf("entity %d: guid %s is a %s entity, not %s", i, r.guid, w.entities[id].Kind, kind)
			}
			r.known = true
			r.id = id
			entries = append(entries, r)
			continue
		}

		switch kind {
		case KindGeometry:
			if me.Geometry == nil {
				return nil, fmt.Errorf("entity %d: geometry entity without a [geometry] table", i)
			}
			if r.shape, err = me.Geometry.Shape(); err != nil {
				return nil, fmt.Errorf("entity %d: %w", i, err)
			}
		case KindLight:
			if me.Light == nil {
				return nil, fmt.Errorf("entity %d: light entity without a [light] table", i)
			}
			lt, err := parseLightType(me.Light.Type)
			if err != nil {
				return nil, fmt.Errorf("entity %d: %w", i, err)
			}
			r.light = Light{
				Type:      lt,
				Color:     toVec3(me.Light.Color),
				Direction: toVec3(me.Light.Direction),
				Range:     me.Light.Range,
				Radius:    me.Light.Radius,
			}
			newLights++
		}
		entries = append(entries, r)
	}

	if len(w.lights)+newLights > MaxLights {
		return nil, fmt.Errorf("%w: %d lights requested, %d allowed", core.ErrTooManyLights, len(w.lights)+newLights, MaxLights)
	}
	return entries, nil
}

// Snapshot writes the current state of the world as a map.
func (w *World) Snapshot(name string) *Map {
	m := &Map{Name: name, Entities: make([]MapEntity, 0, len(w.entities))}
	lights := make(map[EntityID]Light, len(w.lights))
	for _, l := range w.lights {
		lights[l.Entity] = l
	}
	shapes := make(map[EntityID]geometry.Shape, len(w.geometry))
	for _, g := range w.geometry {
		shapes[g.Entity] = g.Shape
	}

	for _, e := range w.entities {
		me := MapEntity{
			GUID:     e.GUID.String(),
			Name:     e.Name,
			Kind:     e.Kind.String(),
			Position: [3]float32{e.Position.X, e.Position.Y, e.Position.Z},
		}
		switch e.Kind {
		case KindGeometry:
			me.Geometry = mapShapeOf(shapes[e.ID])
		case KindLight:
			l := lights[e.ID]
			me.Light = &MapLight{
				Type:      l.Type.String(),
				Color:     [3]float32{l.Color.X, l.Color.Y, l.Color.Z},
				Direction: [3]float32{l.Direction.X, l.Direction.Y, l.Direction.Z},
				Range:     l.Range,
				Radius:    l.Radius,
			}
		}
		m.Entities = append(m.Entities, me)
	}
	return m
}

func toVec3(v [3]float32) math.Vec3 {
	return math.NewVec3(v[0], v[1], v[2])
}
