package vulkan

import (
	"errors"
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/renderworld/engine/config"
	"github.com/spaghettifunk/renderworld/engine/core"
)

var (
	errMinimized  = errors.New("window is minimized")
	errOutOfDate  = errors.New("swapchain is out of date")
	errNotStarted = errors.New("no frame was acquired")
)

var _ FrameTarget = (*Host)(nil)

/**
 * @brief Presents the backend's frames to a GLFW window. The host owns the
 * instance, the device, the swapchain and the per slot synchronization.
 */
type Host struct {
	instance vk.Instance
	surface  vk.Surface
	device   Device

	graphicsFamily uint32
	presentFamily  uint32
	graphicsQueue  vk.Queue
	presentQueue   vk.Queue

	vsync       bool
	depthFormat vk.Format
	swapchain   *swapchain
	renderPass  vk.RenderPass
	pipeline    vk.Pipeline

	commandPool    vk.CommandPool
	commandBuffers []vk.CommandBuffer
	// indexed by slot
	imageAvailable []vk.Semaphore
	inFlight       []vk.Fence
	// indexed by swapchain image
	renderFinished []vk.Semaphore

	width, height uint32
	recreate      bool

	recording  bool
	slot       uint32
	imageIndex uint32
}

// NewHost opens Vulkan on the window. The window must be created without a
// client API.
func NewHost(window *glfw.Window, appName string, cfg config.RendererConfig) (*Host, error) {
	h := &Host{vsync: cfg.VSync}
	if err := h.initialize(window, appName, cfg); err != nil {
		core.LogError("failed to initialize Vulkan: %s", err)
		if closeErr := h.Close(); closeErr != nil {
			core.LogWarn("%s", closeErr)
		}
		return nil, err
	}
	return h, nil
}

func (h *Host) initialize(window *glfw.Window, appName string, cfg config.RendererConfig) error {
	var err error
	if h.instance, err = createInstance(window, appName, cfg.Vulkan.Validation); err != nil {
		return err
	}
	if h.surface, err = createSurface(window, h.instance); err != nil {
		return err
	}
	candidate, err := selectPhysicalDevice(h.instance, h.surface)
	if err != nil {
		return err
	}
	h.graphicsFamily, h.presentFamily = candidate.graphics, candidate.present
	logical, graphicsQueue, presentQueue, err := createLogicalDevice(candidate)
	if err != nil {
		return err
	}
	h.device = Device{PhysicalDevice: candidate.physical, LogicalDevice: logical}
	h.graphicsQueue, h.presentQueue = graphicsQueue, presentQueue

	if h.depthFormat, err = detectDepthFormat(candidate.physical); err != nil {
		return err
	}
	if err := h.createSyncObjects(max(cfg.Vulkan.FramesInFlight, 1)); err != nil {
		return err
	}

	width, height := window.GetFramebufferSize()
	h.width, h.height = uint32(width), uint32(height)
	if err := h.createSwapchain(h.width, h.height); err != nil {
		return err
	}
	return h.ensureRenderFinished(len(h.swapchain.images))
}

func (h *Host) createSyncObjects(slots uint32) error {
	dev := h.device.LogicalDevice
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: h.graphicsFamily,
	}
	if err := checkResult(vk.CreateCommandPool(dev, &poolInfo, nil, &h.commandPool), "vkCreateCommandPool"); err != nil {
		return err
	}
	h.commandBuffers = make([]vk.CommandBuffer, slots)
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        h.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: slots,
	}
	if err := checkResult(vk.AllocateCommandBuffers(dev, &allocateInfo, h.commandBuffers), "vkAllocateCommandBuffers"); err != nil {
		return err
	}

	h.imageAvailable = make([]vk.Semaphore, slots)
	h.inFlight = make([]vk.Fence, slots)
	for i := range slots {
		if err := checkResult(vk.CreateSemaphore(dev, &vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}, nil, &h.imageAvailable[i]), "vkCreateSemaphore"); err != nil {
			return err
		}
		// signaled, so the first wait on every slot returns at once
		fenceInfo := vk.FenceCreateInfo{
			SType: vk.StructureTypeFenceCreateInfo,
			Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
		}
		if err := checkResult(vk.CreateFence(dev, &fenceInfo, nil, &h.inFlight[i]), "vkCreateFence"); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) ensureRenderFinished(images int) error {
	for len(h.renderFinished) < images {
		var semaphore vk.Semaphore
		if err := checkResult(vk.CreateSemaphore(h.device.LogicalDevice, &vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}, nil, &semaphore), "vkCreateSemaphore"); err != nil {
			return err
		}
		h.renderFinished = append(h.renderFinished, semaphore)
	}
	return nil
}

// Device is the device buffers and descriptors are created on.
func (h *Host) Device() Device {
	return h.device
}

// CreatePipeline builds the graphics pipeline handed out by Acquire.
func (h *Host) CreatePipeline(layout vk.PipelineLayout, shaderDir string) error {
	pipeline, err := createPipeline(h.device, h.renderPass, layout, shaderDir)
	if err != nil {
		return err
	}
	if h.pipeline != vk.NullPipeline {
		vk.DestroyPipeline(h.device.LogicalDevice, h.pipeline, nil)
	}
	h.pipeline = pipeline
	return nil
}

func (h *Host) recreateSwapchain() error {
	if err := checkResult(vk.DeviceWaitIdle(h.device.LogicalDevice), "vkDeviceWaitIdle"); err != nil {
		return err
	}
	if err := h.createSwapchain(h.width, h.height); err != nil {
		return err
	}
	h.recreate = false
	return h.ensureRenderFinished(len(h.swapchain.images))
}

func (h *Host) Acquire(slot uint32) (vk.CommandBuffer, vk.Pipeline, error) {
	if h.recording {
		return nil, vk.NullPipeline, fmt.Errorf("frame in slot %d was never submitted", h.slot)
	}
	if int(slot) >= len(h.inFlight) {
		return nil, vk.NullPipeline, fmt.Errorf("slot %d out of range, the host has %d", slot, len(h.inFlight))
	}
	if h.pipeline == vk.NullPipeline {
		return nil, vk.NullPipeline, fmt.Errorf("no graphics pipeline, call CreatePipeline first")
	}
	dev := h.device.LogicalDevice
	if err := checkResult(vk.WaitForFences(dev, 1, []vk.Fence{h.inFlight[slot]}, vk.True, vk.MaxUint64), "vkWaitForFences"); err != nil {
		return nil, vk.NullPipeline, err
	}
	if h.recreate {
		if err := h.recreateSwapchain(); err != nil {
			return nil, vk.NullPipeline, err
		}
	}

	var imageIndex uint32
	switch result := vk.AcquireNextImage(dev, h.swapchain.handle, vk.MaxUint64, h.imageAvailable[slot], vk.NullFence, &imageIndex); result {
	case vk.Success:
	case vk.Suboptimal:
		// the semaphore is signaled, draw this one and rebuild after presenting
		h.recreate = true
	case vk.ErrorOutOfDate:
		h.recreate = true
		return nil, vk.NullPipeline, errOutOfDate
	default:
		return nil, vk.NullPipeline, checkResult(result, "vkAcquireNextImageKHR")
	}

	commandBuffer := h.commandBuffers[slot]
	if err := checkResult(vk.ResetCommandBuffer(commandBuffer, 0), "vkResetCommandBuffer"); err != nil {
		return nil, vk.NullPipeline, err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := checkResult(vk.BeginCommandBuffer(commandBuffer, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		return nil, vk.NullPipeline, err
	}

	extent := h.swapchain.extent
	area := vk.Rect2D{Offset: vk.Offset2D{X: 0, Y: 0}, Extent: extent}
	clearValues := []vk.ClearValue{
		vk.NewClearValue([]float32{0.1, 0.1, 0.12, 1.0}),
		vk.NewClearDepthStencil(1.0, 0),
	}
	vk.CmdBeginRenderPass(commandBuffer, &vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      h.renderPass,
		Framebuffer:     h.swapchain.framebuffers[imageIndex],
		RenderArea:      area,
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}, vk.SubpassContentsInline)
	vk.CmdSetViewport(commandBuffer, 0, 1, []vk.Viewport{{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}})
	vk.CmdSetScissor(commandBuffer, 0, 1, []vk.Rect2D{area})

	h.recording = true
	h.slot = slot
	h.imageIndex = imageIndex
	return commandBuffer, h.pipeline, nil
}

func (h *Host) Submit(commandBuffer vk.CommandBuffer) error {
	if !h.recording {
		return errNotStarted
	}
	h.recording = false
	if commandBuffer != h.commandBuffers[h.slot] {
		return fmt.Errorf("command buffer does not belong to slot %d", h.slot)
	}

	vk.CmdEndRenderPass(commandBuffer)
	if err := checkResult(vk.EndCommandBuffer(commandBuffer), "vkEndCommandBuffer"); err != nil {
		return err
	}

	dev := h.device.LogicalDevice
	fence := h.inFlight[h.slot]
	if err := checkResult(vk.ResetFences(dev, 1, []vk.Fence{fence}), "vkResetFences"); err != nil {
		return err
	}
	submit := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{h.imageAvailable[h.slot]},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{commandBuffer},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{h.renderFinished[h.imageIndex]},
	}
	if err := checkResult(vk.QueueSubmit(h.graphicsQueue, 1, []vk.SubmitInfo{submit}, fence), "vkQueueSubmit"); err != nil {
		// an empty submission signals the fence again, so the slot is not lost
		if resignal := checkResult(vk.QueueSubmit(h.graphicsQueue, 0, nil, fence), "vkQueueSubmit"); resignal != nil {
			core.LogWarn("%s", resignal)
		}
		return err
	}

	switch result := vk.QueuePresent(h.presentQueue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{h.renderFinished[h.imageIndex]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{h.swapchain.handle},
		PImageIndices:      []uint32{h.imageIndex},
	}); result {
	case vk.Success:
	case vk.Suboptimal, vk.ErrorOutOfDate:
		h.recreate = true
	default:
		return checkResult(result, "vkQueuePresentKHR")
	}
	return nil
}

// Resize rebuilds the swapchain before the next image is acquired.
func (h *Host) Resize(width, height uint32) error {
	h.width, h.height = width, height
	h.recreate = true
	if width == 0 || height == 0 {
		core.LogDebug("Vulkan surface minimized")
	}
	return nil
}

// Close waits for the device and releases everything the host created. It is
// safe on a partially initialized host.
func (h *Host) Close() error {
	dev := h.device.LogicalDevice
	if dev != nil {
		if err := checkResult(vk.DeviceWaitIdle(dev), "vkDeviceWaitIdle"); err != nil {
			core.LogWarn("%s", err)
		}
		if h.pipeline != vk.NullPipeline {
			vk.DestroyPipeline(dev, h.pipeline, nil)
			h.pipeline = vk.NullPipeline
		}
		for _, semaphores := range [][]vk.Semaphore{h.imageAvailable, h.renderFinished} {
			for _, s := range semaphores {
				if s != vk.NullSemaphore {
					vk.DestroySemaphore(dev, s, nil)
				}
			}
		}
		h.imageAvailable, h.renderFinished = nil, nil
		for _, f := range h.inFlight {
			if f != vk.NullFence {
				vk.DestroyFence(dev, f, nil)
			}
		}
		h.inFlight = nil
		if h.commandPool != vk.NullCommandPool {
			// frees the command buffers as well
			vk.DestroyCommandPool(dev, h.commandPool, nil)
			h.commandPool = vk.NullCommandPool
			h.commandBuffers = nil
		}
		h.destroySwapchain()
		if h.renderPass != vk.NullRenderPass {
			vk.DestroyRenderPass(dev, h.renderPass, nil)
			h.renderPass = vk.NullRenderPass
		}
		vk.DestroyDevice(dev, nil)
		h.device = Device{}
	}
	if h.instance != nil {
		if h.surface != vk.NullSurface {
			vk.DestroySurface(h.instance, h.surface, nil)
			h.surface = vk.NullSurface
		}
		vk.DestroyInstance(h.instance, nil)
		h.instance = nil
	}
	core.LogInfo("Vulkan host closed")
	return nil
}
