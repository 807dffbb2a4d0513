package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "renderworld.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint32(1000), cfg.Renderer.MeshCapacity)
	assert.Equal(t, uint32(1000), cfg.Renderer.WorldMatrixCapacity)
	assert.Equal(t, uint32(100000), cfg.Renderer.IndexCapacity)
	assert.Equal(t, uint32(100000), cfg.Renderer.VertexCapacity)

	r := cfg.Renderer.Registers
	assert.Equal(t, []uint32{1, 2, 2, 3, 4, 5}, []uint32{r.FrameConstants, r.DrawConstants, r.Meshes, r.WorldMatrices, r.Indices, r.Vertices})
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
[application]
name = "test"
max_frames = 3

[renderer]
backend = "headless"
vertex_capacity = 64

[world]
map_file = "maps/demo.toml"
watch = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Application.Name)
	assert.Equal(t, uint64(3), cfg.Application.MaxFrames)
	assert.Equal(t, uint32(64), cfg.Renderer.VertexCapacity)
	assert.Equal(t, uint32(100000), cfg.Renderer.IndexCapacity, "untouched keys keep their default")
	assert.Equal(t, "maps/demo.toml", cfg.World.MapFile)
	assert.True(t, cfg.World.Watch)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, `
[renderer]
backnd = "wgpu"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Renderer.Backend = "metal"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Renderer.IndexCapacity = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Renderer.Registers.Vertices = cfg.Renderer.Registers.Indices
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Camera.FarClip = cfg.Camera.NearClip
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.toml")
	cfg := Default()
	cfg.Application.Name = "saved"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadVulkanBackend(t *testing.T) {
	path := writeFile(t, `
[renderer]
backend = "vulkan"

[renderer.vulkan]
shader_dir = "build/spv"
frames_in_flight = 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendVulkan, cfg.Renderer.Backend)
	assert.Equal(t, "build/spv", cfg.Renderer.Vulkan.ShaderDir)
	assert.Equal(t, uint32(3), cfg.Renderer.Vulkan.FramesInFlight)
	assert.False(t, cfg.Renderer.Vulkan.Validation)

	cfg.Renderer.Vulkan.FramesInFlight = 0
	assert.Error(t, cfg.Validate())
}
