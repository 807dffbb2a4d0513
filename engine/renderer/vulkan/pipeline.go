package vulkan

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/renderworld/engine/core"
)

const (
	spirvMagic     uint32 = 0x07230203
	vertexShader          = "renderworld.vert.spv"
	fragmentShader        = "renderworld.frag.spv"
)

// decodeSPIRV turns a compiled module into the words the driver expects.
func decodeSPIRV(code []byte) ([]uint32, error) {
	if len(code) < 20 || len(code)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V module of %d bytes is truncated", len(code))
	}
	if binary.LittleEndian.Uint32(code) != spirvMagic {
		return nil, fmt.Errorf("not a little endian SPIR-V module")
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

func loadShaderModule(device Device, path string) (vk.ShaderModule, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return vk.NullShaderModule, fmt.Errorf("reading shader: %w", err)
	}
	words, err := decodeSPIRV(code)
	if err != nil {
		return vk.NullShaderModule, fmt.Errorf("%s: %w", path, err)
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	if err := checkResult(vk.CreateShaderModule(device.LogicalDevice, &createInfo, device.Allocator, &module), "vkCreateShaderModule"); err != nil {
		return vk.NullShaderModule, err
	}
	core.LogDebug("Loaded shader module %s", path)
	return module, nil
}

/**
 * @brief Builds the single graphics pipeline. Vertices are pulled from storage
 * buffers, so there is no vertex input state. Viewport and scissor are dynamic
 * and survive swapchain recreation.
 */
func createPipeline(device Device, renderPass vk.RenderPass, layout vk.PipelineLayout, shaderDir string) (vk.Pipeline, error) {
	vert, err := loadShaderModule(device, filepath.Join(shaderDir, vertexShader))
	if err != nil {
		return vk.NullPipeline, err
	}
	defer vk.DestroyShaderModule(device.LogicalDevice, vert, device.Allocator)
	frag, err := loadShaderModule(device, filepath.Join(shaderDir, fragmentShader))
	if err != nil {
		return vk.NullPipeline, err
	}
	defer vk.DestroyShaderModule(device.LogicalDevice, frag, device.Allocator)

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vert,
			PName:  "main\x00",
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: frag,
			PName:  "main\x00",
		},
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  vk.True,
			DepthWriteEnable: vk.True,
			DepthCompareOp:   vk.CompareOpLess,
			MaxDepthBounds:   1.0,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamicStates)),
			PDynamicStates:    dynamicStates,
		},
		Layout:     layout,
		RenderPass: renderPass,
		Subpass:    0,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := checkResult(vk.CreateGraphicsPipelines(device.LogicalDevice, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineInfo}, device.Allocator, pipelines), "vkCreateGraphicsPipelines"); err != nil {
		return vk.NullPipeline, err
	}
	core.LogInfo("Graphics pipeline created")
	return pipelines[0], nil
}
