package vulkan

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
)

func TestFindMemoryIndex(t *testing.T) {
	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)

	var props vk.PhysicalDeviceMemoryProperties
	props.MemoryTypeCount = 3
	props.MemoryTypes[0].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	props.MemoryTypes[1].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	props.MemoryTypes[2].PropertyFlags = hostVisible

	assert.Equal(t, int32(2), findMemoryIndex(props, 0b111, hostVisible))
	assert.Equal(t, int32(-1), findMemoryIndex(props, 0b011, hostVisible), "type 2 is filtered out")
	assert.Equal(t, int32(0), findMemoryIndex(props, 0b001, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)))
}

func TestCheckResult(t *testing.T) {
	assert.NoError(t, checkResult(vk.Success, "vkCreateBuffer"))
	assert.NoError(t, checkResult(vk.Suboptimal, "vkQueuePresentKHR"))

	err := checkResult(vk.ErrorOutOfDeviceMemory, "vkAllocateMemory")
	assert.EqualError(t, err, "vkAllocateMemory: VK_ERROR_OUT_OF_DEVICE_MEMORY")

	var result ResultError
	assert.True(t, errors.As(err, &result))
	assert.Equal(t, vk.ErrorOutOfDeviceMemory, vk.Result(result))
}

func TestBufferUsage(t *testing.T) {
	usage, descriptor := bufferUsage(metadata.BufferDesc{Kind: metadata.BufferKindStructured})
	assert.Equal(t, vk.BufferUsageStorageBufferBit, usage)
	assert.Equal(t, vk.DescriptorTypeStorageBuffer, descriptor)

	usage, descriptor = bufferUsage(metadata.BufferDesc{Kind: metadata.BufferKindConstant})
	assert.Equal(t, vk.BufferUsageUniformBufferBit, usage)
	assert.Equal(t, vk.DescriptorTypeUniformBuffer, descriptor)
}

func TestStageFlags(t *testing.T) {
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageVertexBit), stageFlags(metadata.ShaderStageVertex))
	assert.Equal(t,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit)|vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		stageFlags(metadata.ShaderStageVertex|metadata.ShaderStagePixel))
	assert.Zero(t, stageFlags(0))
}
