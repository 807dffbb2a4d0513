package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
)

/**
 * @brief A host visible, coherent Vulkan buffer. Host coherent memory needs no
 * flush after the CPU writes, so unmapping is enough to publish an update.
 */
type VulkanBuffer struct {
	Handle     vk.Buffer
	Memory     vk.DeviceMemory
	Size       vk.DeviceSize
	Usage      vk.BufferUsageFlagBits
	mapped     unsafe.Pointer
	isMapped   bool
	descriptor vk.DescriptorType
}

func bufferUsage(desc metadata.BufferDesc) (vk.BufferUsageFlagBits, vk.DescriptorType) {
	if desc.Kind == metadata.BufferKindConstant {
		return vk.BufferUsageUniformBufferBit, vk.DescriptorTypeUniformBuffer
	}
	return vk.BufferUsageStorageBufferBit, vk.DescriptorTypeStorageBuffer
}

func stageFlags(stages metadata.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	if stages.Has(metadata.ShaderStageVertex) {
		flags |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if stages.Has(metadata.ShaderStagePixel) {
		flags |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return flags
}

func newBuffer(device Device, desc metadata.BufferDesc) (*VulkanBuffer, error) {
	usage, descriptor := bufferUsage(desc)
	buffer := &VulkanBuffer{
		// zero sized buffers are invalid in Vulkan
		Size:       vk.DeviceSize(metadata.GetAligned(max(desc.Size(), 4), 4)),
		Usage:      usage,
		descriptor: descriptor,
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        buffer.Size,
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if err := checkResult(vk.CreateBuffer(device.LogicalDevice, &bufferInfo, device.Allocator, &buffer.Handle), "vkCreateBuffer"); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device.LogicalDevice, buffer.Handle, &requirements)
	requirements.Deref()

	flags := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	memoryIndex := device.FindMemoryIndex(requirements.MemoryTypeBits, flags)
	if memoryIndex == -1 {
		vk.DestroyBuffer(device.LogicalDevice, buffer.Handle, device.Allocator)
		return nil, fmt.Errorf("no host visible memory type for buffer `%s`", desc.Label)
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	if err := checkResult(vk.AllocateMemory(device.LogicalDevice, &allocateInfo, device.Allocator, &buffer.Memory), "vkAllocateMemory"); err != nil {
		vk.DestroyBuffer(device.LogicalDevice, buffer.Handle, device.Allocator)
		return nil, err
	}
	if err := checkResult(vk.BindBufferMemory(device.LogicalDevice, buffer.Handle, buffer.Memory, 0), "vkBindBufferMemory"); err != nil {
		buffer.destroy(device)
		return nil, err
	}
	return buffer, nil
}

func (vb *VulkanBuffer) mapMemory(device Device) ([]byte, error) {
	if vb.isMapped {
		return nil, fmt.Errorf("buffer already mapped")
	}
	if err := checkResult(vk.MapMemory(device.LogicalDevice, vb.Memory, 0, vb.Size, 0, &vb.mapped), "vkMapMemory"); err != nil {
		return nil, err
	}
	vb.isMapped = true
	return unsafe.Slice((*byte)(vb.mapped), int(vb.Size)), nil
}

func (vb *VulkanBuffer) unmapMemory(device Device) {
	if !vb.isMapped {
		return
	}
	vk.UnmapMemory(device.LogicalDevice, vb.Memory)
	vb.mapped = nil
	vb.isMapped = false
}

func (vb *VulkanBuffer) destroy(device Device) {
	vb.unmapMemory(device)
	if vb.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device.LogicalDevice, vb.Memory, device.Allocator)
		vb.Memory = vk.NullDeviceMemory
	}
	if vb.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device.LogicalDevice, vb.Handle, device.Allocator)
		vb.Handle = vk.NullBuffer
	}
}
