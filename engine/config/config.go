package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/renderworld/engine/core"
)

type BackendType string

const (
	BackendHeadless BackendType = "headless"
	BackendWGPU     BackendType = "wgpu"
	BackendVulkan   BackendType = "vulkan"
)

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
	World       WorldConfig       `toml:"world"`
	Camera      CameraConfig      `toml:"camera"`
	Jobs        JobsConfig        `toml:"jobs"`
}

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position, if applicable.
	StartPosX uint32 `toml:"start_pos_x"`
	StartPosY uint32 `toml:"start_pos_y"`
	// Window starting size, if applicable.
	StartWidth  uint32        `toml:"start_width"`
	StartHeight uint32        `toml:"start_height"`
	LogLevel    core.LogLevel `toml:"log_level"`
	// Frames to render before exiting. Zero runs until the window closes.
	MaxFrames uint64 `toml:"max_frames"`
}

type RendererConfig struct {
	Backend BackendType `toml:"backend"`
	VSync   bool        `toml:"vsync"`

	// Initial structured buffer capacities, in records.
	MeshCapacity        uint32 `toml:"mesh_capacity"`
	WorldMatrixCapacity uint32 `toml:"world_matrix_capacity"`
	IndexCapacity       uint32 `toml:"index_capacity"`
	VertexCapacity      uint32 `toml:"vertex_capacity"`

	Registers RegisterConfig `toml:"registers"`
	Vulkan    VulkanConfig   `toml:"vulkan"`
}

type VulkanConfig struct {
	// Directory holding renderworld.vert.spv and renderworld.frag.spv.
	ShaderDir string `toml:"shader_dir"`
	// Frames the CPU may record ahead of the GPU.
	FramesInFlight uint32 `toml:"frames_in_flight"`
	// Enables VK_LAYER_KHRONOS_validation.
	Validation bool `toml:"validation"`
}

// RegisterConfig holds the shader register (binding) of each buffer.
type RegisterConfig struct {
	FrameConstants uint32 `toml:"frame_constants"`
	DrawConstants  uint32 `toml:"draw_constants"`
	Meshes         uint32 `toml:"meshes"`
	WorldMatrices  uint32 `toml:"world_matrices"`
	Indices        uint32 `toml:"indices"`
	Vertices       uint32 `toml:"vertices"`
}

type WorldConfig struct {
	// Map file loaded at startup. Empty boots the built-in demo scene.
	MapFile string `toml:"map_file"`
	// Reload the map when the file changes on disk.
	Watch bool `toml:"watch"`
}

type CameraConfig struct {
	Position    [3]float32 `toml:"position"`
	FOVDegrees  float32    `toml:"fov_degrees"`
	NearClip    float32    `toml:"near_clip"`
	FarClip     float32    `toml:"far_clip"`
	MoveSpeed   float32    `toml:"move_speed"`
	RotateSpeed float32    `toml:"rotate_speed"`
}

type JobsConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:        "RenderWorld",
			StartPosX:   100,
			StartPosY:   100,
			StartWidth:  1280,
			StartHeight: 720,
			LogLevel:    core.InfoLevel,
		},
		Renderer: RendererConfig{
			Backend:             BackendHeadless,
			VSync:               true,
			MeshCapacity:        1000,
			WorldMatrixCapacity: 1000,
			IndexCapacity:       100000,
			VertexCapacity:      100000,
			Registers: RegisterConfig{
				FrameConstants: 1,
				DrawConstants:  2,
				Meshes:         2,
				WorldMatrices:  3,
				Indices:        4,
				Vertices:       5,
			},
			Vulkan: VulkanConfig{
				ShaderDir:      "bin/shaders",
				FramesInFlight: 2,
			},
		},
		Camera: CameraConfig{
			Position:    [3]float32{0, 10, 40},
			FOVDegrees:  45,
			NearClip:    0.1,
			FarClip:     1000,
			MoveSpeed:   50,
			RotateSpeed: 1.5,
		},
		Jobs: JobsConfig{
			Workers:   4,
			QueueSize: 64,
		},
	}
}

// Load reads a TOML file on top of the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("config %s: %s", path, strict.String())
		}
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Renderer.Backend {
	case BackendHeadless, BackendWGPU, BackendVulkan:
	default:
		return fmt.Errorf("unknown renderer backend `%s`", c.Renderer.Backend)
	}
	if c.Renderer.Vulkan.FramesInFlight < 1 {
		return fmt.Errorf("renderer.vulkan.frames_in_flight must be at least 1")
	}

	caps := map[string]uint32{
		"mesh_capacity":         c.Renderer.MeshCapacity,
		"world_matrix_capacity": c.Renderer.WorldMatrixCapacity,
		"index_capacity":        c.Renderer.IndexCapacity,
		"vertex_capacity":       c.Renderer.VertexCapacity,
	}
	for name, v := range caps {
		if v == 0 {
			return fmt.Errorf("renderer.%s must be greater than zero", name)
		}
	}

	r := c.Renderer.Registers
	if r.FrameConstants == r.DrawConstants {
		return fmt.Errorf("frame and draw constants cannot share slot %d", r.FrameConstants)
	}
	seen := map[uint32]string{}
	for name, reg := range map[string]uint32{
		"meshes":         r.Meshes,
		"world_matrices": r.WorldMatrices,
		"indices":        r.Indices,
		"vertices":       r.Vertices,
	} {
		if other, ok := seen[reg]; ok {
			return fmt.Errorf("structured buffers %s and %s share register %d", name, other, reg)
		}
		seen[reg] = name
	}

	if c.Camera.NearClip <= 0 || c.Camera.FarClip <= c.Camera.NearClip {
		return fmt.Errorf("invalid camera clip range [%f, %f]", c.Camera.NearClip, c.Camera.FarClip)
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("jobs.workers must be at least 1")
	}
	return nil
}

// Save writes the configuration as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
