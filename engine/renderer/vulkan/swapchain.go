package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/math"
)

var depthFormats = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
}

type swapchain struct {
	handle vk.Swapchain
	format vk.SurfaceFormat
	extent vk.Extent2D
	images []vk.Image
	views  []vk.ImageView

	depthFormat vk.Format
	depthImage  vk.Image
	depthMemory vk.DeviceMemory
	depthView   vk.ImageView

	framebuffers []vk.Framebuffer
}

// chooseSurfaceFormat prefers 8 bit BGRA in the sRGB color space.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	if len(formats) == 0 {
		return vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	if formats[0].Format == vk.FormatUndefined {
		// the surface has no preference
		return vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: formats[0].ColorSpace}
	}
	return formats[0]
}

// choosePresentMode always finds FIFO, the only mode every driver supports.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	best := vk.PresentModeFifo
	for _, m := range modes {
		switch m {
		case vk.PresentModeMailbox:
			return m
		case vk.PresentModeImmediate:
			best = m
		}
	}
	return best
}

// chooseExtent uses the surface extent when the window system fixes it.
func chooseExtent(capabilities vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if capabilities.CurrentExtent.Width != vk.MaxUint32 {
		return capabilities.CurrentExtent
	}
	return vk.Extent2D{
		Width:  math.Clamp(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: math.Clamp(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

// chooseImageCount asks for one image more than the minimum, within bounds.
func chooseImageCount(capabilities vk.SurfaceCapabilities) uint32 {
	count := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && count > capabilities.MaxImageCount {
		count = capabilities.MaxImageCount
	}
	return count
}

func surfaceSupport(physical vk.PhysicalDevice, surface vk.Surface) (vk.SurfaceCapabilities, []vk.SurfaceFormat, []vk.PresentMode, error) {
	var capabilities vk.SurfaceCapabilities
	if err := checkResult(vk.GetPhysicalDeviceSurfaceCapabilities(physical, surface, &capabilities), "vkGetPhysicalDeviceSurfaceCapabilitiesKHR"); err != nil {
		return capabilities, nil, nil, err
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, nil)
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, formats)
	for i := range formats {
		formats[i].Deref()
	}

	var modeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, nil)
	modes := make([]vk.PresentMode, modeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, modes)
	return capabilities, formats, modes, nil
}

func detectDepthFormat(physical vk.PhysicalDevice) (vk.Format, error) {
	required := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range depthFormats {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(physical, candidate, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&required == required {
			return candidate, nil
		}
	}
	return vk.FormatUndefined, fmt.Errorf("no supported depth format")
}

func (h *Host) createSwapchain(width, height uint32) error {
	capabilities, formats, modes, err := surfaceSupport(h.device.PhysicalDevice, h.surface)
	if err != nil {
		return err
	}
	sc := &swapchain{
		format:      chooseSurfaceFormat(formats),
		extent:      chooseExtent(capabilities, width, height),
		depthFormat: h.depthFormat,
	}
	if sc.extent.Width == 0 || sc.extent.Height == 0 {
		return errMinimized
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          h.surface,
		MinImageCount:    chooseImageCount(capabilities),
		ImageFormat:      sc.format.Format,
		ImageColorSpace:  sc.format.ColorSpace,
		ImageExtent:      sc.extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      choosePresentMode(modes, h.vsync),
		Clipped:          vk.True,
	}
	if h.graphicsFamily != h.presentFamily {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{h.graphicsFamily, h.presentFamily}
	}
	if h.swapchain != nil {
		createInfo.OldSwapchain = h.swapchain.handle
	}

	dev := h.device.LogicalDevice
	if err := checkResult(vk.CreateSwapchain(dev, &createInfo, nil, &sc.handle), "vkCreateSwapchainKHR"); err != nil {
		return err
	}
	if h.swapchain != nil {
		h.destroySwapchain()
	}
	h.swapchain = sc

	var imageCount uint32
	if err := checkResult(vk.GetSwapchainImages(dev, sc.handle, &imageCount, nil), "vkGetSwapchainImagesKHR"); err != nil {
		return err
	}
	sc.images = make([]vk.Image, imageCount)
	if err := checkResult(vk.GetSwapchainImages(dev, sc.handle, &imageCount, sc.images), "vkGetSwapchainImagesKHR"); err != nil {
		return err
	}
	sc.views = make([]vk.ImageView, imageCount)
	for i, image := range sc.images {
		view, err := createImageView(dev, image, sc.format.Format, vk.ImageAspectColorBit)
		if err != nil {
			return err
		}
		sc.views[i] = view
	}

	if err := h.createDepthAttachment(sc); err != nil {
		return err
	}
	if h.renderPass == vk.NullRenderPass {
		if err := h.createRenderPass(sc.format.Format, sc.depthFormat); err != nil {
			return err
		}
	}

	sc.framebuffers = make([]vk.Framebuffer, imageCount)
	for i, view := range sc.views {
		attachments := []vk.ImageView{view, sc.depthView}
		framebufferInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      h.renderPass,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			Width:           sc.extent.Width,
			Height:          sc.extent.Height,
			Layers:          1,
		}
		if err := checkResult(vk.CreateFramebuffer(dev, &framebufferInfo, nil, &sc.framebuffers[i]), "vkCreateFramebuffer"); err != nil {
			return err
		}
	}

	core.LogInfo("Swapchain created: %dx%d, %d images", sc.extent.Width, sc.extent.Height, imageCount)
	return nil
}

func createImageView(dev vk.Device, image vk.Image, format vk.Format, aspect vk.ImageAspectFlagBits) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	err := checkResult(vk.CreateImageView(dev, &viewInfo, nil, &view), "vkCreateImageView")
	return view, err
}

func (h *Host) createDepthAttachment(sc *swapchain) error {
	dev := h.device.LogicalDevice
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    sc.depthFormat,
		Extent: vk.Extent3D{
			Width:  sc.extent.Width,
			Height: sc.extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if err := checkResult(vk.CreateImage(dev, &imageInfo, nil, &sc.depthImage), "vkCreateImage"); err != nil {
		return err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, sc.depthImage, &requirements)
	requirements.Deref()
	memoryIndex := h.device.FindMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if memoryIndex == -1 {
		return fmt.Errorf("no device local memory for the depth attachment")
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	if err := checkResult(vk.AllocateMemory(dev, &allocateInfo, nil, &sc.depthMemory), "vkAllocateMemory"); err != nil {
		return err
	}
	if err := checkResult(vk.BindImageMemory(dev, sc.depthImage, sc.depthMemory, 0), "vkBindImageMemory"); err != nil {
		return err
	}
	view, err := createImageView(dev, sc.depthImage, sc.depthFormat, vk.ImageAspectDepthBit)
	if err != nil {
		return err
	}
	sc.depthView = view
	return nil
}

func (h *Host) createRenderPass(colorFormat, depthFormat vk.Format) error {
	attachments := []vk.AttachmentDescription{
		{
			Format:         colorFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
		{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
		PDepthStencilAttachment: &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}
	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) | vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  stages,
		DstStageMask:  stages,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}
	renderPassInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	return checkResult(vk.CreateRenderPass(h.device.LogicalDevice, &renderPassInfo, nil, &h.renderPass), "vkCreateRenderPass")
}

// destroySwapchain releases the current swapchain. The device must be idle.
func (h *Host) destroySwapchain() {
	sc := h.swapchain
	if sc == nil {
		return
	}
	dev := h.device.LogicalDevice
	for _, fb := range sc.framebuffers {
		if fb != vk.NullFramebuffer {
			vk.DestroyFramebuffer(dev, fb, nil)
		}
	}
	if sc.depthView != vk.NullImageView {
		vk.DestroyImageView(dev, sc.depthView, nil)
	}
	if sc.depthImage != vk.NullImage {
		vk.DestroyImage(dev, sc.depthImage, nil)
	}
	if sc.depthMemory != vk.NullDeviceMemory {
		vk.FreeMemory(dev, sc.depthMemory, nil)
	}
	// the images belong to the swapchain
	for _, view := range sc.views {
		if view != vk.NullImageView {
			vk.DestroyImageView(dev, view, nil)
		}
	}
	vk.DestroySwapchain(dev, sc.handle, nil)
	h.swapchain = nil
}
