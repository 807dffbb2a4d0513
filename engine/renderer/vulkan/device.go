package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/renderworld/engine/core"
)

// Device is a Vulkan device created and owned by the host application.
type Device struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device
	Allocator      *vk.AllocationCallbacks
}

func (d Device) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()
	return findMemoryIndex(memoryProperties, typeFilter, propertyFlags)
}

func findMemoryIndex(memoryProperties vk.PhysicalDeviceMemoryProperties, typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (memoryProperties.MemoryTypes[i].PropertyFlags&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}
