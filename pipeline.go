package hephaestus

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

type PipelineCache struct {
	Device          *Device
	VKPipelineCache vk.PipelineCache
}

func (d *Device) CreatePipelineCache() (*PipelineCache, error) {
	var pipelineCacheCreate = vk.PipelineCacheCreateInfo{}
	pipelineCacheCreate.SType = vk.StructureTypePipelineCacheCreateInfo

	var pipelineCache vk.PipelineCache
	err := CheckResult(vk.CreatePipelineCache(d.VKDevice, &pipelineCacheCreate, nil, &pipelineCache), "vkCreatePipelineCache")
	if err != nil {
		return nil, err
	}
	return &PipelineCache{Device: d, VKPipelineCache: pipelineCache}, nil
}

func (c *PipelineCache) Destroy() {
	vk.DestroyPipelineCache(c.Device.VKDevice, c.VKPipelineCache, nil)
}

// CreateGraphicsPipeline builds the pipeline described by config for subpass 0
// of renderPass. cache may be nil.
func (d *Device) CreateGraphicsPipeline(cache *PipelineCache, config *GraphicsPipelineConfig, renderPass vk.RenderPass) (vk.Pipeline, error) {
	info, err := config.VKGraphicsPipelineCreateInfo()
	if err != nil {
		return vk.Pipeline(vk.NullHandle), err
	}
	info.RenderPass = renderPass

	vkCache := vk.PipelineCache(vk.NullHandle)
	if cache != nil {
		vkCache = cache.VKPipelineCache
	}
	pipelines := make([]vk.Pipeline, 1)
	err = CheckResult(vk.CreateGraphicsPipelines(d.VKDevice, vkCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines), "vkCreateGraphicsPipelines")
	if err != nil {
		return vk.Pipeline(vk.NullHandle), errors.Wrap(err, "creating graphics pipeline")
	}
	return pipelines[0], nil
}

func (d *Device) DestroyPipeline(p vk.Pipeline) {
	if p != vk.Pipeline(vk.NullHandle) {
		vk.DestroyPipeline(d.VKDevice, p, nil)
	}
}
