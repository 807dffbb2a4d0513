package engine

import (
	"fmt"

	"github.com/spaghettifunk/renderworld/engine/config"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/platform"
	"github.com/spaghettifunk/renderworld/engine/renderer"
	"github.com/spaghettifunk/renderworld/engine/renderer/headless"
	"github.com/spaghettifunk/renderworld/engine/renderer/vulkan"
	"github.com/spaghettifunk/renderworld/engine/renderer/webgpu"
)

// windowed reports whether the backend presents to a window.
func windowed(cfg *config.Config) bool {
	return cfg.Renderer.Backend != config.BackendHeadless
}

// createBackend builds the configured backend. Windowed backends need the
// platform to be started.
func createBackend(cfg *config.Config, p *platform.Platform) (renderer.Backend, uint32, uint32, error) {
	width, height := cfg.Application.StartWidth, cfg.Application.StartHeight

	switch cfg.Renderer.Backend {
	case config.BackendHeadless:
		return headless.New(), width, height, nil
	case config.BackendWGPU:
		if p == nil || p.Window == nil {
			return nil, 0, 0, fmt.Errorf("backend `%s` needs a window", cfg.Renderer.Backend)
		}
		width, height = p.FramebufferSize()
		b, err := webgpu.New(p.SurfaceDescriptor(), width, height, cfg.Renderer)
		if err != nil {
			return nil, 0, 0, err
		}
		return b, width, height, nil
	case config.BackendVulkan:
		if p == nil || p.Window == nil {
			return nil, 0, 0, fmt.Errorf("backend `%s` needs a window", cfg.Renderer.Backend)
		}
		width, height = p.FramebufferSize()
		b, err := createVulkanBackend(cfg, p)
		if err != nil {
			return nil, 0, 0, err
		}
		return b, width, height, nil
	}

	err := fmt.Errorf("unknown renderer backend `%s`", cfg.Renderer.Backend)
	core.LogError("%s", err)
	return nil, 0, 0, err
}

func createVulkanBackend(cfg *config.Config, p *platform.Platform) (*vulkan.Backend, error) {
	host, err := vulkan.NewHost(p.Window, cfg.Application.Name, cfg.Renderer)
	if err != nil {
		return nil, err
	}
	b, err := vulkan.New(host.Device(), host, cfg.Renderer)
	if err != nil {
		if closeErr := host.Close(); closeErr != nil {
			core.LogWarn("%s", closeErr)
		}
		return nil, err
	}
	if err := host.CreatePipeline(b.PipelineLayout(), cfg.Renderer.Vulkan.ShaderDir); err != nil {
		core.LogError("failed to create the Vulkan pipeline: %s", err)
		if shutdownErr := b.Shutdown(); shutdownErr != nil {
			core.LogWarn("%s", shutdownErr)
		}
		return nil, err
	}
	return b, nil
}
