package hephaestus

import (
	"context"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/ROTARTSI82/Hephaestus/handle"
	"github.com/ROTARTSI82/Hephaestus/shaderpack"
)

// ShaderID refers to a shader program owned by a Context.
type ShaderID = handle.ID

// pipelineTarget is what every pipeline of a context is built against. The
// render pass changes with each swapchain generation.
type pipelineTarget struct {
	device     *Device
	cache      *PipelineCache
	renderPass vk.RenderPass
}

// ShaderProgram is a graphics pipeline built from a shader descriptor
// directory.
type ShaderProgram struct {
	Dir        string
	Descriptor string

	target *pipelineTarget
	layout *VertexLayout

	stages         []shaderpack.Stage
	modules        []*ShaderModule
	pipelineLayout *PipelineLayout
	pipeline       vk.Pipeline
}

func newShaderProgram(target *pipelineTarget, dir, descriptor string, layout *VertexLayout) (*ShaderProgram, error) {
	pl, err := target.device.CreatePipelineLayout()
	if err != nil {
		return nil, errors.Wrap(err, "creating pipeline layout")
	}
	p := &ShaderProgram{
		Dir:            dir,
		Descriptor:     descriptor,
		target:         target,
		layout:         layout,
		pipelineLayout: pl,
	}
	if err := p.ReloadFromFile(); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// ReloadFromFile re-reads the descriptor and bytecode and rebuilds the
// modules and the pipeline. On failure the program keeps its previous
// pipeline. Pipelines in use by the device must not be replaced; go through
// Context.ReloadShaderProgram.
func (p *ShaderProgram) ReloadFromFile() error {
	pack, err := shaderpack.Load(context.Background(), p.Dir, p.Descriptor, logger())
	if err != nil {
		return err
	}
	if len(pack.Stages) == 0 {
		return errors.Newf("shader program %s has no loadable stages", pack.DescriptorPath())
	}

	modules := make([]*ShaderModule, 0, len(pack.Stages))
	for _, st := range pack.Stages {
		m, err := p.target.device.LoadShaderModule(st)
		if err != nil {
			destroyModules(modules)
			return err
		}
		modules = append(modules, m)
	}

	pipeline, err := p.build(modules, p.layout)
	if err != nil {
		destroyModules(modules)
		return errors.Wrapf(err, "shader program %s", p.Dir)
	}

	p.target.device.DestroyPipeline(p.pipeline)
	destroyModules(p.modules)
	p.stages = pack.Stages
	p.modules = modules
	p.pipeline = pipeline

	logger().Info("loaded shader program", slog.String("dir", p.Dir), slog.Int("stages", len(modules)))
	return nil
}

// RebuildPipeline rebuilds only the pipeline from the loaded modules. A nil
// layout keeps the current vertex layout.
func (p *ShaderProgram) RebuildPipeline(layout *VertexLayout) error {
	if layout == nil {
		layout = p.layout
	}
	pipeline, err := p.build(p.modules, layout)
	if err != nil {
		return errors.Wrapf(err, "shader program %s", p.Dir)
	}
	p.target.device.DestroyPipeline(p.pipeline)
	p.pipeline = pipeline
	p.layout = layout
	return nil
}

func (p *ShaderProgram) build(modules []*ShaderModule, layout *VertexLayout) (vk.Pipeline, error) {
	cfg := NewGraphicsPipelineConfig().SetPipelineLayout(p.pipelineLayout)
	for _, m := range modules {
		cfg.AddShaderStage(m)
	}
	if layout != nil {
		if !layout.Finalized() {
			logger().Warn("building a pipeline with a vertex layout that is not finalized", slog.String("dir", p.Dir))
		}
		cfg.AddVertexDescriptor(layout)
	}
	return p.target.device.CreateGraphicsPipeline(p.target.cache, cfg, p.target.renderPass)
}

// Pipeline returns the current pipeline handle.
func (p *ShaderProgram) Pipeline() vk.Pipeline {
	return p.pipeline
}

func (p *ShaderProgram) Layout() *VertexLayout {
	return p.layout
}

// Stages returns the stages that were loaded.
func (p *ShaderProgram) Stages() []shaderpack.Stage {
	return p.stages
}

func destroyModules(modules []*ShaderModule) {
	for _, m := range modules {
		m.Destroy()
	}
}

func (p *ShaderProgram) Destroy() {
	d := p.target.device
	d.DestroyPipeline(p.pipeline)
	p.pipeline = vk.Pipeline(vk.NullHandle)
	destroyModules(p.modules)
	p.modules = nil
	if p.pipelineLayout != nil {
		p.pipelineLayout.Destroy()
		p.pipelineLayout = nil
	}
}
