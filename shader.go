package hephaestus

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/ROTARTSI82/Hephaestus/shaderpack"
)

type ShaderModule struct {
	Device         *Device
	Kind           shaderpack.Kind
	Entry          string
	VKShaderModule vk.ShaderModule
}

// CreateShaderModule wraps SPIR-V bytecode. len(code) must be a multiple of 4.
func (d *Device) CreateShaderModule(code []byte) (vk.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return vk.ShaderModule(vk.NullHandle), errors.Newf("shader bytecode of %d bytes is not SPIR-V", len(code))
	}
	var module vk.ShaderModule
	err := CheckResult(vk.CreateShaderModule(d.VKDevice, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}, nil, &module), "vkCreateShaderModule")
	return module, err
}

// LoadShaderModule creates a module for a loaded descriptor stage.
func (d *Device) LoadShaderModule(stage shaderpack.Stage) (*ShaderModule, error) {
	module, err := d.CreateShaderModule(stage.Code)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s module from %s", stage.Kind, stage.File)
	}
	return &ShaderModule{Device: d, Kind: stage.Kind, Entry: stage.Entry, VKShaderModule: module}, nil
}

func stageFlag(k shaderpack.Kind) vk.ShaderStageFlagBits {
	switch k {
	case shaderpack.Fragment:
		return vk.ShaderStageFragmentBit
	case shaderpack.Geometry:
		return vk.ShaderStageGeometryBit
	}
	return vk.ShaderStageVertexBit
}

func (s *ShaderModule) VKPipelineShaderStageCreateInfo() vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stageFlag(s.Kind),
		Module: s.VKShaderModule,
		PName:  safeString(s.Entry),
	}
}

func (s *ShaderModule) Destroy() {
	vk.DestroyShaderModule(s.Device.VKDevice, s.VKShaderModule, nil)
}
