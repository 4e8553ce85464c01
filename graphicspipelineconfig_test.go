package hephaestus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestGraphicsPipelineConfigRequiresStagesAndLayout(t *testing.T) {
	g := NewGraphicsPipelineConfig()
	_, err := g.VKGraphicsPipelineCreateInfo()
	assert.Error(t, err)

	g.ShaderStages = []vk.PipelineShaderStageCreateInfo{{}}
	_, err = g.VKGraphicsPipelineCreateInfo()
	assert.Error(t, err)
}

func TestGraphicsPipelineConfigCreateInfo(t *testing.T) {
	g := NewGraphicsPipelineConfig().
		SetPipelineLayout(&PipelineLayout{}).
		AddVertexDescriptor(DefaultVertexLayout()).
		AddVertexDescriptor(nil)
	g.ShaderStages = make([]vk.PipelineShaderStageCreateInfo, 2)

	info, err := g.VKGraphicsPipelineCreateInfo()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), info.StageCount)
	assert.Equal(t, uint32(1), info.PVertexInputState.VertexBindingDescriptionCount)
	assert.Equal(t, uint32(2), info.PVertexInputState.VertexAttributeDescriptionCount)
	assert.Equal(t, DynamicStates, info.PDynamicState.PDynamicStates)
	assert.Equal(t, uint32(1), info.PViewportState.ViewportCount)
	assert.Len(t, info.PColorBlendState.PAttachments, 1)
	assert.Equal(t, vk.PrimitiveTopologyTriangleList, info.PInputAssemblyState.Topology)
}
