package hephaestus

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// GraphicsPipelineConfig is a utility object to ease construction of graphics
// pipelines. Viewport and scissor are always dynamic, set by the recording at
// replay, so a pipeline does not depend on the swapchain extent.
type GraphicsPipelineConfig struct {
	ShaderStages []vk.PipelineShaderStageCreateInfo
	Layout       *PipelineLayout

	// PrimitiveTopology defaults to VK_PRIMITIVE_TOPOLOGY_TRIANGLE_LIST
	PrimitiveTopology vk.PrimitiveTopology

	// PolygonMode defaults to VK_POLYGON_MODE_FILL
	PolygonMode vk.PolygonMode

	// LineWidth of rasterized lines, defaults to 1.0
	LineWidth float32

	// CullMode defaults to vk.CullModeNone
	CullMode vk.CullModeFlagBits

	// FrontFace defaults to vk.FrontFaceCounterClockwise
	FrontFace vk.FrontFace

	// BlendAttachments default to a single attachment writing all channels
	// without blending.
	BlendAttachments []vk.PipelineColorBlendAttachmentState

	VertexInputBindingDescriptions   []vk.VertexInputBindingDescription
	VertexInputAttributeDescriptions []vk.VertexInputAttributeDescription
}

// NewGraphicsPipelineConfig creates a config with the default fixed state.
func NewGraphicsPipelineConfig() *GraphicsPipelineConfig {
	return &GraphicsPipelineConfig{
		PrimitiveTopology: vk.PrimitiveTopologyTriangleList,
		PolygonMode:       vk.PolygonModeFill,
		LineWidth:         1.0,
		CullMode:          vk.CullModeNone,
		FrontFace:         vk.FrontFaceCounterClockwise,
	}
}

// SetCullMode sets the cull mode
func (g *GraphicsPipelineConfig) SetCullMode(mode vk.CullModeFlagBits) *GraphicsPipelineConfig {
	g.CullMode = mode
	return g
}

// SetPipelineLayout sets the pipeline layout
func (g *GraphicsPipelineConfig) SetPipelineLayout(layout *PipelineLayout) *GraphicsPipelineConfig {
	g.Layout = layout
	return g
}

// AddShaderStage appends the stage of a shader module.
func (g *GraphicsPipelineConfig) AddShaderStage(s *ShaderModule) *GraphicsPipelineConfig {
	g.ShaderStages = append(g.ShaderStages, s.VKPipelineShaderStageCreateInfo())
	return g
}

// AddVertexDescriptor adds the bindings and attributes of vd.
// A nil descriptor is ignored, for shaders that generate their vertices.
func (g *GraphicsPipelineConfig) AddVertexDescriptor(v VertexDescriptor) *GraphicsPipelineConfig {
	if v == nil {
		return g
	}
	g.VertexInputBindingDescriptions = append(g.VertexInputBindingDescriptions, v.GetBindingDescription())
	g.VertexInputAttributeDescriptions = append(g.VertexInputAttributeDescriptions, v.GetAttributeDescriptions()...)
	return g
}

// DynamicStates are set by every recording that binds a pipeline.
var DynamicStates = []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}

// VKGraphicsPipelineCreateInfo uses the config to create a
// vk.GraphicsPipelineCreateInfo. The render pass is left for the caller.
func (g *GraphicsPipelineConfig) VKGraphicsPipelineCreateInfo() (vk.GraphicsPipelineCreateInfo, error) {
	if len(g.ShaderStages) == 0 {
		return vk.GraphicsPipelineCreateInfo{}, errors.New("graphics pipeline has no shader stages")
	}
	if g.Layout == nil {
		return vk.GraphicsPipelineCreateInfo{}, errors.New("graphics pipeline has no layout")
	}

	var vertexInputState = vk.PipelineVertexInputStateCreateInfo{}
	vertexInputState.SType = vk.StructureTypePipelineVertexInputStateCreateInfo
	vertexInputState.VertexBindingDescriptionCount = uint32(len(g.VertexInputBindingDescriptions))
	vertexInputState.PVertexBindingDescriptions = g.VertexInputBindingDescriptions
	vertexInputState.VertexAttributeDescriptionCount = uint32(len(g.VertexInputAttributeDescriptions))
	vertexInputState.PVertexAttributeDescriptions = g.VertexInputAttributeDescriptions

	var inputAssemblyState = vk.PipelineInputAssemblyStateCreateInfo{}
	inputAssemblyState.SType = vk.StructureTypePipelineInputAssemblyStateCreateInfo
	inputAssemblyState.Topology = g.PrimitiveTopology
	inputAssemblyState.PrimitiveRestartEnable = vk.False

	// counts only, the values come from vkCmdSetViewport and vkCmdSetScissor
	var viewportState = vk.PipelineViewportStateCreateInfo{}
	viewportState.SType = vk.StructureTypePipelineViewportStateCreateInfo
	viewportState.ViewportCount = 1
	viewportState.ScissorCount = 1

	var rasterState = vk.PipelineRasterizationStateCreateInfo{}
	rasterState.SType = vk.StructureTypePipelineRasterizationStateCreateInfo
	rasterState.DepthClampEnable = vk.False
	rasterState.RasterizerDiscardEnable = vk.False
	rasterState.PolygonMode = g.PolygonMode
	rasterState.LineWidth = g.LineWidth
	rasterState.CullMode = vk.CullModeFlags(g.CullMode)
	rasterState.FrontFace = g.FrontFace
	rasterState.DepthBiasEnable = vk.False

	var multisampleState = vk.PipelineMultisampleStateCreateInfo{}
	multisampleState.SType = vk.StructureTypePipelineMultisampleStateCreateInfo
	multisampleState.SampleShadingEnable = vk.False
	multisampleState.RasterizationSamples = vk.SampleCount1Bit
	multisampleState.MinSampleShading = 1.0

	blendAttachments := g.BlendAttachments
	if blendAttachments == nil {
		blendAttachments = []vk.PipelineColorBlendAttachmentState{{
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
			BlendEnable:    vk.False,
		}}
	}

	var colorBlendState = vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		PDynamicStates:    DynamicStates,
		DynamicStateCount: uint32(len(DynamicStates)),
	}

	return vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(g.ShaderStages)),
		PStages:             g.ShaderStages,
		PVertexInputState:   &vertexInputState,
		PInputAssemblyState: &inputAssemblyState,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterState,
		PMultisampleState:   &multisampleState,
		PColorBlendState:    &colorBlendState,
		PDynamicState:       &dynamicState,
		Layout:              g.Layout.VKPipelineLayout,
		Subpass:             0,
	}, nil
}
