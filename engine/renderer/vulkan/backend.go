package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/renderworld/engine/config"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/renderer"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
)

const (
	resourceSet uint32 = 0
	constantSet uint32 = 1
	setCount           = 2
)

var (
	errNoFrame       = errors.New("no frame in progress")
	errBindingsFixed = errors.New("descriptor sets are already bound for this frame")
)

var _ renderer.Backend = (*Backend)(nil)

/**
 * @brief Supplies the command buffer each frame is recorded into. The target
 * owns the swapchain and the render pass.
 */
type FrameTarget interface {
	/**
	 * @brief Waits for the fence of the last frame recorded in slot, then
	 * returns a command buffer of that slot recording inside the render pass,
	 * together with a graphics pipeline built on Backend.PipelineLayout.
	 */
	Acquire(slot uint32) (vk.CommandBuffer, vk.Pipeline, error)
	// Submit ends the render pass, submits the command buffer and presents.
	Submit(commandBuffer vk.CommandBuffer) error
	Resize(width, height uint32) error
	Close() error
}

// deviceBuffer is the device side of a RenderBuffer. It grows a new copy
// whenever the CPU writes while frames in flight may still read the current one.
type deviceBuffer struct {
	desc   metadata.BufferDesc
	copies *versions[*VulkanBuffer]
}

/**
 * @brief Vulkan backend. Structured buffers are storage buffers in descriptor
 * set 0 at their register; frame constants are a uniform buffer in set 1;
 * draw constants are push constants. Every frame slot has its own pair of
 * descriptor sets, written at the first draw of the frame.
 */
type Backend struct {
	device    Device
	target    FrameTarget
	registers config.RegisterConfig
	clock     frameClock

	resourceLayout vk.DescriptorSetLayout
	constantLayout vk.DescriptorSetLayout
	pipelineLayout vk.PipelineLayout
	descriptorPool vk.DescriptorPool
	// indexed by slot, then by set
	descriptorSets [][]vk.DescriptorSet

	// buffers bound per register, written into the slot's sets on flush
	resources map[uint32]*metadata.RenderBuffer
	constants map[uint32]*metadata.RenderBuffer
	retired   retired[*VulkanBuffer]

	commandBuffer vk.CommandBuffer
	setsBound     bool
	// Pending draw constants, pushed before the next draw.
	push []byte
}

/**
 * @brief Creates the backend on a device owned by the host. The backend takes
 * ownership of target and closes it on Shutdown.
 */
func New(device Device, target FrameTarget, cfg config.RendererConfig) (*Backend, error) {
	b := &Backend{
		device:    device,
		target:    target,
		registers: cfg.Registers,
		clock:     newFrameClock(cfg.Vulkan.FramesInFlight),
		resources: make(map[uint32]*metadata.RenderBuffer),
		constants: make(map[uint32]*metadata.RenderBuffer),
	}
	if err := b.createDescriptors(); err != nil {
		core.LogError("failed to create Vulkan descriptors: %s", err)
		b.destroyDescriptors()
		return nil, err
	}
	core.LogInfo("Vulkan backend initialized with %d frames in flight", b.clock.inFlight)
	return b, nil
}

// PipelineLayout is the layout the host builds its graphics pipeline against.
func (b *Backend) PipelineLayout() vk.PipelineLayout {
	return b.pipelineLayout
}

func (b *Backend) createDescriptors() error {
	storage := func(register uint32) vk.DescriptorSetLayoutBinding {
		return vk.DescriptorSetLayoutBinding{
			Binding:         register,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		}
	}
	resourceBindings := []vk.DescriptorSetLayoutBinding{
		storage(b.registers.Meshes),
		storage(b.registers.WorldMatrices),
		storage(b.registers.Indices),
		storage(b.registers.Vertices),
	}
	constantBindings := []vk.DescriptorSetLayoutBinding{{
		Binding:         b.registers.FrameConstants,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      stageFlags(metadata.ShaderStageVertex | metadata.ShaderStagePixel),
	}}

	for _, l := range []struct {
		bindings []vk.DescriptorSetLayoutBinding
		out      *vk.DescriptorSetLayout
	}{
		{resourceBindings, &b.resourceLayout},
		{constantBindings, &b.constantLayout},
	} {
		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(l.bindings)),
			PBindings:    l.bindings,
		}
		if err := checkResult(vk.CreateDescriptorSetLayout(b.device.LogicalDevice, &layoutInfo, b.device.Allocator, l.out), "vkCreateDescriptorSetLayout"); err != nil {
			return err
		}
	}

	slots := uint32(b.clock.inFlight)
	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: slots * uint32(len(resourceBindings))},
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: slots * uint32(len(constantBindings))},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       slots * setCount,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if err := checkResult(vk.CreateDescriptorPool(b.device.LogicalDevice, &poolInfo, b.device.Allocator, &b.descriptorPool), "vkCreateDescriptorPool"); err != nil {
		return err
	}

	layouts := []vk.DescriptorSetLayout{b.resourceLayout, b.constantLayout}
	b.descriptorSets = make([][]vk.DescriptorSet, slots)
	for slot := range b.descriptorSets {
		b.descriptorSets[slot] = make([]vk.DescriptorSet, setCount)
		allocateInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     b.descriptorPool,
			DescriptorSetCount: setCount,
			PSetLayouts:        layouts,
		}
		if err := checkResult(vk.AllocateDescriptorSets(b.device.LogicalDevice, &allocateInfo, &b.descriptorSets[slot][0]), "vkAllocateDescriptorSets"); err != nil {
			return err
		}
	}

	pushRange := []vk.PushConstantRange{{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		Offset:     0,
		Size:       uint32(metadata.SizeOf[metadata.DrawConstants]()),
	}}
	pipelineLayoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(layouts)),
		PSetLayouts:            layouts,
		PushConstantRangeCount: uint32(len(pushRange)),
		PPushConstantRanges:    pushRange,
	}
	return checkResult(vk.CreatePipelineLayout(b.device.LogicalDevice, &pipelineLayoutInfo, b.device.Allocator, &b.pipelineLayout), "vkCreatePipelineLayout")
}

func (b *Backend) destroyDescriptors() {
	dev := b.device.LogicalDevice
	if b.pipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(dev, b.pipelineLayout, b.device.Allocator)
		b.pipelineLayout = vk.NullPipelineLayout
	}
	if b.descriptorPool != vk.NullDescriptorPool {
		// frees the sets as well
		vk.DestroyDescriptorPool(dev, b.descriptorPool, b.device.Allocator)
		b.descriptorPool = vk.NullDescriptorPool
		b.descriptorSets = nil
	}
	for _, layout := range []*vk.DescriptorSetLayout{&b.resourceLayout, &b.constantLayout} {
		if *layout != vk.NullDescriptorSetLayout {
			vk.DestroyDescriptorSetLayout(dev, *layout, b.device.Allocator)
			*layout = vk.NullDescriptorSetLayout
		}
	}
}

func (b *Backend) Resized(width, height uint32) error {
	return b.target.Resize(width, height)
}

func (b *Backend) BeginFrame(deltaTime float64) error {
	if b.clock.inFrame {
		return fmt.Errorf("previous frame not ended")
	}
	next := b.clock
	next.begin()
	commandBuffer, pipeline, err := b.target.Acquire(next.slot())
	if err != nil {
		return err
	}
	b.clock = next

	// the fence of the slot has signaled, so older frames are done with these
	for _, buffer := range b.retired.release(b.clock) {
		buffer.destroy(b.device)
	}

	vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointGraphics, pipeline)
	b.commandBuffer = commandBuffer
	b.setsBound = false
	b.push = b.push[:0]
	return nil
}

func (b *Backend) EndFrame(deltaTime float64) error {
	if !b.clock.inFrame {
		return errNoFrame
	}
	b.clock.end()
	return b.target.Submit(b.commandBuffer)
}

func (b *Backend) CreateBuffer(desc metadata.BufferDesc) (*metadata.RenderBuffer, error) {
	if desc.Kind == metadata.BufferKindConstant && desc.Register == b.registers.DrawConstants {
		// push constants, no device memory
		return &metadata.RenderBuffer{Desc: desc, TotalSize: desc.Size()}, nil
	}
	buffer, err := newBuffer(b.device, desc)
	if err != nil {
		return nil, err
	}
	return &metadata.RenderBuffer{
		Desc:         desc,
		TotalSize:    uint64(buffer.Size),
		InternalData: &deviceBuffer{desc: desc, copies: newVersions(buffer)},
	}, nil
}

// DestroyBuffer defers the release of every copy until no frame in flight reads it.
func (b *Backend) DestroyBuffer(rb *metadata.RenderBuffer) {
	if rb == nil {
		return
	}
	if db, ok := rb.InternalData.(*deviceBuffer); ok {
		for _, v := range db.copies.all() {
			v.value.unmapMemory(b.device)
			b.retired.add(v)
		}
	}
	for _, bindings := range []map[uint32]*metadata.RenderBuffer{b.resources, b.constants} {
		for register, bound := range bindings {
			if bound == rb {
				delete(bindings, register)
			}
		}
	}
	rb.InternalData = nil
}

func (b *Backend) internal(rb *metadata.RenderBuffer) (*deviceBuffer, error) {
	db, ok := rb.InternalData.(*deviceBuffer)
	if !ok {
		return nil, fmt.Errorf("buffer `%s` has no Vulkan memory", rb.Desc.Label)
	}
	return db, nil
}

// MapBuffer maps a copy no frame in flight reads. The previous contents are
// carried over, so partial writes keep the rest of the buffer.
func (b *Backend) MapBuffer(rb *metadata.RenderBuffer) ([]byte, error) {
	db, err := b.internal(rb)
	if err != nil {
		return nil, err
	}
	i := db.copies.writable(b.clock)
	if i < 0 {
		buffer, err := newBuffer(b.device, db.desc)
		if err != nil {
			return nil, err
		}
		i = db.copies.add(buffer)
		core.LogDebug("buffer `%s` now has %d copies", db.desc.Label, len(db.copies.all()))
	}
	if i != db.copies.current {
		next := db.copies.all()[i].value
		if err := carryOver(b.device, db.copies.Current(), next); err != nil {
			return nil, err
		}
		db.copies.setCurrent(i)
	}
	return db.copies.Current().mapMemory(b.device)
}

func carryOver(device Device, from, to *VulkanBuffer) error {
	src, err := from.mapMemory(device)
	if err != nil {
		return err
	}
	defer from.unmapMemory(device)
	dst, err := to.mapMemory(device)
	if err != nil {
		return err
	}
	defer to.unmapMemory(device)
	copy(dst, src)
	return nil
}

func (b *Backend) UnmapBuffer(rb *metadata.RenderBuffer) {
	if db, err := b.internal(rb); err == nil {
		db.copies.Current().unmapMemory(b.device)
	}
}

func (b *Backend) bind(bindings map[uint32]*metadata.RenderBuffer, rb *metadata.RenderBuffer) error {
	if _, err := b.internal(rb); err != nil {
		return err
	}
	if b.clock.inFrame && b.setsBound {
		if bindings[rb.Desc.Register] == rb {
			return nil
		}
		return errBindingsFixed
	}
	bindings[rb.Desc.Register] = rb
	b.setsBound = false
	return nil
}

func (b *Backend) BindShaderResource(rb *metadata.RenderBuffer) error {
	return b.bind(b.resources, rb)
}

func (b *Backend) UpdateConstants(rb *metadata.RenderBuffer, data []byte) error {
	if rb.Desc.Register == b.registers.DrawConstants && rb.InternalData == nil {
		if !b.clock.inFrame {
			return errNoFrame
		}
		b.push = append(b.push[:0], data...)
		return nil
	}
	mapped, err := b.MapBuffer(rb)
	if err != nil {
		return err
	}
	defer b.UnmapBuffer(rb)
	copy(mapped, data)
	return nil
}

func (b *Backend) BindConstants(rb *metadata.RenderBuffer) error {
	if rb.InternalData == nil {
		if !b.clock.inFrame {
			return errNoFrame
		}
		if len(b.push) == 0 {
			return fmt.Errorf("no draw constants to push")
		}
		vk.CmdPushConstants(b.commandBuffer, b.pipelineLayout, vk.ShaderStageFlags(vk.ShaderStageVertexBit), 0, uint32(len(b.push)), unsafe.Pointer(&b.push[0]))
		return nil
	}
	return b.bind(b.constants, rb)
}

// flush writes the current copy of every bound buffer into the sets of this
// frame's slot and marks those copies as read by this frame.
func (b *Backend) flush() {
	sets := b.descriptorSets[b.clock.slot()]
	stamp := b.clock.stamp()

	writes := make([]vk.WriteDescriptorSet, 0, len(b.resources)+len(b.constants))
	for set, bindings := range [setCount]map[uint32]*metadata.RenderBuffer{resourceSet: b.resources, constantSet: b.constants} {
		for register, rb := range bindings {
			db := rb.InternalData.(*deviceBuffer)
			db.copies.use(stamp)
			buffer := db.copies.Current()
			writes = append(writes, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          sets[set],
				DstBinding:      register,
				DescriptorCount: 1,
				DescriptorType:  buffer.descriptor,
				PBufferInfo: []vk.DescriptorBufferInfo{{
					Buffer: buffer.Handle,
					Offset: 0,
					Range:  vk.DeviceSize(vk.WholeSize),
				}},
			})
		}
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(b.device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	}
	vk.CmdBindDescriptorSets(b.commandBuffer, vk.PipelineBindPointGraphics, b.pipelineLayout,
		0, uint32(len(sets)), sets, 0, nil)
	b.setsBound = true
}

func (b *Backend) Draw(vertexCount uint32) error {
	if !b.clock.inFrame {
		return errNoFrame
	}
	if !b.setsBound {
		b.flush()
	}
	vk.CmdDraw(b.commandBuffer, vertexCount, 1, 0, 0)
	return nil
}

func (b *Backend) Shutdown() error {
	if err := checkResult(vk.DeviceWaitIdle(b.device.LogicalDevice), "vkDeviceWaitIdle"); err != nil {
		core.LogWarn("%s", err)
	}
	for _, buffer := range b.retired.drain() {
		buffer.destroy(b.device)
	}
	b.destroyDescriptors()
	core.LogInfo("Vulkan backend shut down")
	return b.target.Close()
}
