package webgpu

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"runtime"
	"text/template"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/spaghettifunk/renderworld/engine/config"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/renderer"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
)

//go:embed shader.wgsl
var shaderSource string

// WebGPU requires buffer writes to be a multiple of 4 bytes.
const copyAlignment = 4

var errNoFrame = errors.New("no frame in progress")

type buffer struct {
	gpu *wgpu.Buffer
	// upload staging for map/unmap
	staging []byte
}

type draw struct {
	vertexCount uint32
	drawIndex   uint32
}

var _ renderer.Backend = (*Backend)(nil)

/**
 * @brief WebGPU backend. Structured buffers are read only storage buffers in
 * bind group 0, at their register. Frame constants are a uniform buffer in
 * bind group 1; draw constants of a frame are collected into a storage array
 * in bind group 1 and every draw selects its entry through the instance
 * index. Draws are recorded on the CPU and encoded in one pass at EndFrame.
 */
type Backend struct {
	instance *wgpu.Instance
	surface  *wgpu.Surface
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	surfaceFormat wgpu.TextureFormat
	alphaMode     wgpu.CompositeAlphaMode
	presentMode   wgpu.PresentMode
	depthTexture  *wgpu.Texture
	depthView     *wgpu.TextureView
	width         uint32
	height        uint32

	registers config.RegisterConfig
	cullMode  metadata.FaceCullMode

	resourceLayout *wgpu.BindGroupLayout
	constantLayout *wgpu.BindGroupLayout
	pipeline       *wgpu.RenderPipeline

	resources     map[uint32]*wgpu.Buffer
	resourceGroup *wgpu.BindGroup
	resourceDirty bool

	frameConstants *wgpu.Buffer
	drawStorage    *wgpu.Buffer
	drawCapacity   uint32
	constantGroup  *wgpu.BindGroup
	constantDirty  bool

	inFrame   bool
	drawData  []byte
	drawCount uint32
	draws     []draw
}

func New(surfaceDescriptor *wgpu.SurfaceDescriptor, width, height uint32, cfg config.RendererConfig) (*Backend, error) {
	runtime.LockOSThread()

	b := &Backend{
		instance:    wgpu.CreateInstance(nil),
		width:       width,
		height:      height,
		registers:   cfg.Registers,
		cullMode:    metadata.FaceCullModeBack,
		presentMode: wgpu.PresentModeImmediate,
		resources:   make(map[uint32]*wgpu.Buffer),
	}
	if cfg.VSync {
		b.presentMode = wgpu.PresentModeFifo
	}
	b.surface = b.instance.CreateSurface(surfaceDescriptor)

	adapter, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: b.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("requesting adapter: %w", err)
	}
	b.adapter = adapter

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "RenderWorld Device",
	})
	if err != nil {
		return nil, fmt.Errorf("requesting device: %w", err)
	}
	b.device = device
	b.queue = device.GetQueue()

	if err := b.configure(width, height); err != nil {
		return nil, err
	}
	if err := b.createPipeline(); err != nil {
		return nil, err
	}

	core.LogInfo("WebGPU backend initialized (%dx%d)", width, height)
	return b, nil
}

func (b *Backend) configure(width, height uint32) error {
	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = capabilities.Formats[0]
	b.alphaMode = capabilities.AlphaModes[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       width,
		Height:      height,
		PresentMode: b.presentMode,
		AlphaMode:   b.alphaMode,
	})

	if b.depthView != nil {
		b.depthView.Release()
		b.depthTexture.Release()
	}
	depthTexture, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Depth Texture",
		Size: wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth24Plus,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("creating depth texture: %w", err)
	}
	depthView, err := depthTexture.CreateView(nil)
	if err != nil {
		depthTexture.Release()
		return fmt.Errorf("creating depth view: %w", err)
	}
	b.depthTexture = depthTexture
	b.depthView = depthView
	b.width, b.height = width, height
	return nil
}

func (b *Backend) shaderCode() (string, error) {
	tmpl, err := template.New("shader").Parse(shaderSource)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, b.registers); err != nil {
		return "", err
	}
	return out.String(), nil
}

func (b *Backend) createPipeline() error {
	code, err := b.shaderCode()
	if err != nil {
		return fmt.Errorf("building shader: %w", err)
	}
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "scene",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: code,
		},
	})
	if err != nil {
		return fmt.Errorf("compiling shader: %w", err)
	}
	defer module.Release()

	storage := func(binding uint32) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageVertex,
			Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
		}
	}

	b.resourceLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "scene resources",
		Entries: []wgpu.BindGroupLayoutEntry{
			storage(b.registers.Meshes),
			storage(b.registers.WorldMatrices),
			storage(b.registers.Indices),
			storage(b.registers.Vertices),
		},
	})
	if err != nil {
		return err
	}

	b.constantLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "scene constants",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    b.registers.FrameConstants,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
			},
			storage(b.registers.DrawConstants),
		},
	})
	if err != nil {
		return err
	}

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "scene",
		BindGroupLayouts: []*wgpu.BindGroupLayout{b.resourceLayout, b.constantLayout},
	})
	if err != nil {
		return err
	}
	defer layout.Release()

	b.pipeline, err = b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "scene Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    b.surfaceFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  cullMode(b.cullMode),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth24Plus,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		},
	})
	return err
}

func cullMode(mode metadata.FaceCullMode) wgpu.CullMode {
	switch mode {
	case metadata.FaceCullModeFront:
		return wgpu.CullModeFront
	case metadata.FaceCullModeBack:
		return wgpu.CullModeBack
	}
	return wgpu.CullModeNone
}

func (b *Backend) Resized(width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	return b.configure(width, height)
}

func (b *Backend) BeginFrame(deltaTime float64) error {
	if b.inFrame {
		return fmt.Errorf("previous frame not ended")
	}
	b.inFrame = true
	b.drawData = b.drawData[:0]
	b.drawCount = 0
	b.draws = b.draws[:0]
	return nil
}

func (b *Backend) CreateBuffer(desc metadata.BufferDesc) (*metadata.RenderBuffer, error) {
	size := metadata.GetAligned(desc.Size(), copyAlignment)
	usage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	if desc.Kind == metadata.BufferKindConstant {
		if desc.Register == b.registers.DrawConstants {
			// backed by the per frame draw array, see UpdateConstants
			return &metadata.RenderBuffer{Desc: desc, TotalSize: size}, nil
		}
		usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	}

	gpu, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, err
	}
	rb := &metadata.RenderBuffer{
		Desc:         desc,
		TotalSize:    size,
		InternalData: &buffer{gpu: gpu},
	}
	if desc.Kind == metadata.BufferKindConstant {
		b.frameConstants = gpu
		b.constantDirty = true
	}
	return rb, nil
}

func (b *Backend) DestroyBuffer(rb *metadata.RenderBuffer) {
	if rb == nil {
		return
	}
	buf, ok := rb.InternalData.(*buffer)
	if !ok {
		return
	}
	for register, bound := range b.resources {
		if bound == buf.gpu {
			delete(b.resources, register)
			b.resourceDirty = true
		}
	}
	if b.frameConstants == buf.gpu {
		b.frameConstants = nil
		b.constantDirty = true
	}
	buf.gpu.Release()
	rb.InternalData = nil
}

func (b *Backend) MapBuffer(rb *metadata.RenderBuffer) ([]byte, error) {
	buf, ok := rb.InternalData.(*buffer)
	if !ok {
		return nil, fmt.Errorf("buffer `%s` is not a WebGPU buffer", rb.Desc.Label)
	}
	if uint64(cap(buf.staging)) < rb.TotalSize {
		buf.staging = make([]byte, rb.TotalSize)
	}
	buf.staging = buf.staging[:rb.TotalSize]
	return buf.staging, nil
}

// UnmapBuffer uploads the staging memory with a queue write.
func (b *Backend) UnmapBuffer(rb *metadata.RenderBuffer) {
	buf, ok := rb.InternalData.(*buffer)
	if !ok || len(buf.staging) == 0 {
		return
	}
	b.queue.WriteBuffer(buf.gpu, 0, buf.staging)
}

func (b *Backend) BindShaderResource(rb *metadata.RenderBuffer) error {
	buf, ok := rb.InternalData.(*buffer)
	if !ok {
		return fmt.Errorf("buffer `%s` is not a WebGPU buffer", rb.Desc.Label)
	}
	if b.resources[rb.Desc.Register] != buf.gpu {
		b.resources[rb.Desc.Register] = buf.gpu
		b.resourceDirty = true
	}
	return nil
}

func (b *Backend) UpdateConstants(rb *metadata.RenderBuffer, data []byte) error {
	if rb.Desc.Register == b.registers.DrawConstants {
		if !b.inFrame {
			return errNoFrame
		}
		b.drawData = append(b.drawData, data...)
		b.drawCount++
		return nil
	}
	buf, ok := rb.InternalData.(*buffer)
	if !ok {
		return fmt.Errorf("buffer `%s` is not a WebGPU buffer", rb.Desc.Label)
	}
	b.queue.WriteBuffer(buf.gpu, 0, data)
	return nil
}

// BindConstants is a no-op: both constant bindings live in bind group 1.
func (b *Backend) BindConstants(rb *metadata.RenderBuffer) error {
	return nil
}

func (b *Backend) Draw(vertexCount uint32) error {
	if !b.inFrame {
		return errNoFrame
	}
	if b.drawCount == 0 {
		return fmt.Errorf("draw without draw constants")
	}
	b.draws = append(b.draws, draw{vertexCount: vertexCount, drawIndex: b.drawCount - 1})
	return nil
}

func (b *Backend) prepareBindGroups() error {
	if b.drawCount > b.drawCapacity || b.drawStorage == nil {
		capacity := max(b.drawCount, 64)
		storage, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "draw_constants",
			Size:  uint64(capacity) * uint64(metadata.SizeOf[metadata.DrawConstants]()),
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return err
		}
		if b.drawStorage != nil {
			b.drawStorage.Release()
		}
		b.drawStorage = storage
		b.drawCapacity = capacity
		b.constantDirty = true
	}
	if len(b.drawData) > 0 {
		b.queue.WriteBuffer(b.drawStorage, 0, b.drawData)
	}

	if b.resourceDirty || b.resourceGroup == nil {
		entries := make([]wgpu.BindGroupEntry, 0, len(b.resources))
		for _, register := range []uint32{b.registers.Meshes, b.registers.WorldMatrices, b.registers.Indices, b.registers.Vertices} {
			gpu, ok := b.resources[register]
			if !ok {
				return fmt.Errorf("no buffer bound at register %d", register)
			}
			entries = append(entries, wgpu.BindGroupEntry{Binding: register, Buffer: gpu, Size: wgpu.WholeSize})
		}
		group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "scene resources",
			Layout:  b.resourceLayout,
			Entries: entries,
		})
		if err != nil {
			return err
		}
		if b.resourceGroup != nil {
			b.resourceGroup.Release()
		}
		b.resourceGroup = group
		b.resourceDirty = false
	}

	if b.constantDirty || b.constantGroup == nil {
		if b.frameConstants == nil {
			return fmt.Errorf("no frame constants buffer")
		}
		group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  "scene constants",
			Layout: b.constantLayout,
			Entries: []wgpu.BindGroupEntry{
				{Binding: b.registers.FrameConstants, Buffer: b.frameConstants, Size: wgpu.WholeSize},
				{Binding: b.registers.DrawConstants, Buffer: b.drawStorage, Size: wgpu.WholeSize},
			},
		})
		if err != nil {
			return err
		}
		if b.constantGroup != nil {
			b.constantGroup.Release()
		}
		b.constantGroup = group
		b.constantDirty = false
	}
	return nil
}

func (b *Backend) EndFrame(deltaTime float64) error {
	if !b.inFrame {
		return errNoFrame
	}
	b.inFrame = false

	if len(b.draws) > 0 {
		if err := b.prepareBindGroups(); err != nil {
			return fmt.Errorf("preparing bind groups: %w", err)
		}
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	defer surfaceTexture.Release()

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return err
	}
	defer view.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1.0},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            b.depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})
	if len(b.draws) > 0 {
		pass.SetPipeline(b.pipeline)
		pass.SetBindGroup(0, b.resourceGroup, nil)
		pass.SetBindGroup(1, b.constantGroup, nil)
		for _, d := range b.draws {
			pass.Draw(d.vertexCount, 1, 0, d.drawIndex)
		}
	}
	pass.End()
	pass.Release()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	defer commandBuffer.Release()

	b.queue.Submit(commandBuffer)
	b.surface.Present()
	return nil
}

func (b *Backend) Shutdown() error {
	if b.device == nil {
		return nil
	}
	if b.constantGroup != nil {
		b.constantGroup.Release()
	}
	if b.resourceGroup != nil {
		b.resourceGroup.Release()
	}
	if b.drawStorage != nil {
		b.drawStorage.Release()
	}
	if b.pipeline != nil {
		b.pipeline.Release()
	}
	if b.constantLayout != nil {
		b.constantLayout.Release()
	}
	if b.resourceLayout != nil {
		b.resourceLayout.Release()
	}
	if b.depthView != nil {
		b.depthView.Release()
		b.depthTexture.Release()
	}
	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	b.surface.Release()
	b.instance.Release()
	b.device = nil

	core.LogInfo("WebGPU backend shut down")
	return nil
}
