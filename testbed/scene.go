package testbed

import "github.com/spaghettifunk/renderworld/engine/world"

// DemoMap is the scene booted when no map file is configured: a unit box in
// front of the origin, a floor grid, a sphere and a few lights. Every entity
// has a fixed GUID so a saved copy can be edited and hot reloaded.
func DemoMap() *world.Map {
	return &world.Map{
		Name: "demo",
		Entities: []world.MapEntity{
			{
				GUID:     "6f1c1f9e-8d53-4b43-9e5e-2b0f3a9f2a11",
				Name:     "box",
				Kind:     "geometry",
				Position: [3]float32{0, 0, 10},
				Geometry: &world.MapShape{Type: "box", Width: 1, Height: 1, Depth: 1},
			},
			{
				GUID:     "0b7e2c55-1f44-4f0e-a7a5-4f8f1d1c9e02",
				Name:     "floor",
				Kind:     "geometry",
				Position: [3]float32{0, 0, 0},
				Geometry: &world.MapShape{Type: "grid", Width: 100, Depth: 100, Rows: 10, Columns: 10},
			},
			{
				GUID:     "c3a4d0f2-5e8b-4d6a-9b21-7d3e6f0a8b13",
				Name:     "ball",
				Kind:     "geometry",
				Position: [3]float32{5, 1, 5},
				Geometry: &world.MapShape{Type: "sphere", Radius: 1, Slices: 16, Stacks: 16},
			},
			{
				GUID:     "9d2f6b1a-3c7e-4e15-8a0d-5b4c2e1f7a24",
				Name:     "sun",
				Kind:     "light",
				Light: &world.MapLight{
					Type:      "directional",
					Color:     [3]float32{1, 1, 0.9},
					Direction: [3]float32{-0.3, -1, -0.2},
				},
			},
			{
				GUID:     "e8b1c7d4-6a2f-4b39-b5e0-1c9d8f3a6e35",
				Name:     "lamp",
				Kind:     "light",
				Position: [3]float32{0, 5, 10},
				Light: &world.MapLight{
					Type:  "point",
					Color: [3]float32{1, 0.8, 0.6},
					Range: 20,
				},
			},
		},
	}
}
