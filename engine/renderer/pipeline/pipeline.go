package pipeline

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-terrain/engine/logger"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender
)

// ErrMissingEntryPoint is returned when the shader declares no function for a required stage.
var ErrMissingEntryPoint = errors.New("pipeline: shader has no entry point for stage")

// Device is the subset of *wgpu.Device pipelines are compiled with.
type Device interface {
	CreateShaderModule(descriptor *wgpu.ShaderModuleDescriptor) (*wgpu.ShaderModule, error)
	CreateRenderPipeline(descriptor *wgpu.RenderPipelineDescriptor) (*wgpu.RenderPipeline, error)
	CreateComputePipeline(descriptor *wgpu.ComputePipelineDescriptor) (*wgpu.ComputePipeline, error)
}

// pipeline is the implementation of the Pipeline interface.
// It holds the compiled shader module and either a render or a compute pipeline, both with auto layouts.
type pipeline struct {
	pipelineType PipelineType
	shader       shader.Shader
	logger       *zap.Logger

	desc              Description
	computeEntryPoint string

	module          *wgpu.ShaderModule
	renderPipeline  *wgpu.RenderPipeline
	computePipeline *wgpu.ComputePipeline
}

// Pipeline is a compiled render or compute pipeline whose bind group layouts were derived by the
// driver from the shader ("auto" layout).
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the pipeline's label, which is the shader key unless WithLabel overrode it.
	//
	// Returns:
	//   - string: the pipeline key
	PipelineKey() string

	// Shader returns the shader the pipeline was compiled from.
	//
	// Returns:
	//   - shader.Shader: the shader
	Shader() shader.Shader

	// Description returns the resolved render description. Entry points hold the names actually used.
	// For compute pipelines only Label is meaningful.
	//
	// Returns:
	//   - Description: the resolved description
	Description() Description

	// EntryPoint returns the resolved entry point for a stage, or an empty string if the pipeline does not use it.
	//
	// Parameters:
	//   - stage: the shader stage
	//
	// Returns:
	//   - string: the entry point name
	EntryPoint(stage shader.Stage) string

	// VertexStride returns the array stride of vertex buffer slot 0, or 0 for compute pipelines and
	// render pipelines without vertex buffers.
	//
	// Returns:
	//   - uint64: the stride in bytes
	VertexStride() uint64

	// Pipeline returns the underlying pipeline object, either *wgpu.RenderPipeline or *wgpu.ComputePipeline
	// Note: The caller is responsible for type asserting the returned value as either pipeline type.
	//
	// Returns:
	//   - any: the underlying pipeline object.
	Pipeline() any

	// RenderPipeline returns the render pipeline, or nil for a compute pipeline.
	RenderPipeline() *wgpu.RenderPipeline

	// ComputePipeline returns the compute pipeline, or nil for a render pipeline.
	ComputePipeline() *wgpu.ComputePipeline

	// BindGroupLayout returns the auto-generated layout for a bind group index.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the layout
	//   - error: error if the pipeline was released or the layout cannot be acquired
	BindGroupLayout(group uint32) (*wgpu.BindGroupLayout, error)

	// Release releases the pipeline and its shader module.
	Release()
}

var _ Pipeline = &pipeline{}

// NewRender compiles a render pipeline from s. The description starts from DefaultDescription and is
// modified by opts. An empty entry point resolves to vertexMain / fragmentMain when the shader declares
// it, otherwise to the first function the shader declares for the stage.
//
// Parameters:
//   - device: the device to compile with
//   - s: the shader holding both the vertex and fragment entry points
//   - opts: optional PipelineBuilderOption functions
//
// Returns:
//   - Pipeline: the compiled render pipeline
//   - error: ErrMissingEntryPoint, or the device error
func NewRender(device Device, s shader.Shader, opts ...PipelineBuilderOption) (Pipeline, error) {
	p := &pipeline{
		pipelineType: PipelineTypeRender,
		shader:       s,
		desc:         DefaultDescription(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.OrNop(p.logger)

	descriptor, err := p.renderDescriptor()
	if err != nil {
		return nil, err
	}

	module, err := device.CreateShaderModule(s.Module())
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: create shader module: %w", p.desc.Label, err)
	}
	p.module = module
	descriptor.Vertex.Module = module
	descriptor.Fragment.Module = module

	created, err := device.CreateRenderPipeline(descriptor)
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("pipeline %s: create render pipeline: %w", p.desc.Label, err)
	}
	p.renderPipeline = created

	p.logger.Debug("created render pipeline",
		zap.String("pipeline", p.desc.Label),
		zap.String("vertex", p.desc.VertexEntryPoint),
		zap.String("fragment", p.desc.FragmentEntryPoint),
		zap.Uint32("samples", p.desc.SampleCount),
	)
	return p, nil
}

// NewCompute compiles a compute pipeline from s. The entry point resolves like NewRender's, with computeMain as the preferred name.
//
// Parameters:
//   - device: the device to compile with
//   - s: the shader holding the compute entry point
//   - opts: optional PipelineBuilderOption functions; render-only options are ignored
//
// Returns:
//   - Pipeline: the compiled compute pipeline
//   - error: ErrMissingEntryPoint, or the device error
func NewCompute(device Device, s shader.Shader, opts ...PipelineBuilderOption) (Pipeline, error) {
	p := &pipeline{
		pipelineType: PipelineTypeCompute,
		shader:       s,
		desc:         Description{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.OrNop(p.logger)

	descriptor, err := p.computeDescriptor()
	if err != nil {
		return nil, err
	}

	module, err := device.CreateShaderModule(s.Module())
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: create shader module: %w", p.desc.Label, err)
	}
	p.module = module
	descriptor.Compute.Module = module

	created, err := device.CreateComputePipeline(descriptor)
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("pipeline %s: create compute pipeline: %w", p.desc.Label, err)
	}
	p.computePipeline = created

	size := s.WorkgroupSize()
	p.logger.Debug("created compute pipeline",
		zap.String("pipeline", p.desc.Label),
		zap.String("entry", p.computeEntryPoint),
		zap.Uint32s("workgroupSize", size[:]),
	)
	return p, nil
}

// renderDescriptor resolves entry points and builds the descriptor without a module.
func (p *pipeline) renderDescriptor() (*wgpu.RenderPipelineDescriptor, error) {
	refl := p.shader.Reflection()
	if p.desc.Label == "" {
		p.desc.Label = p.shader.Key()
	}

	var err error
	if p.desc.VertexEntryPoint, err = resolveEntryPoint(p.desc.VertexEntryPoint, refl, shader.StageVertex, DefaultVertexEntryPoint); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", p.desc.Label, err)
	}
	if p.desc.FragmentEntryPoint, err = resolveEntryPoint(p.desc.FragmentEntryPoint, refl, shader.StageFragment, DefaultFragmentEntryPoint); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", p.desc.Label, err)
	}
	p.desc.SampleCount = max(p.desc.SampleCount, 1)

	layouts := p.desc.vertexLayouts()
	buffers := make([]wgpu.VertexBufferLayout, len(layouts))
	for i, l := range layouts {
		buffers[i] = l.toWGPU()
	}

	target := wgpu.ColorTargetState{
		Format:    p.desc.ColorFormat,
		WriteMask: p.desc.WriteMask,
		Blend:     p.desc.Blend,
	}

	return &wgpu.RenderPipelineDescriptor{
		Label: p.desc.Label + " Render Pipeline",
		// nil selects the auto layout derived from the shader
		Layout: nil,
		Vertex: wgpu.VertexState{
			EntryPoint: p.desc.VertexEntryPoint,
			Buffers:    buffers,
		},
		Fragment: &wgpu.FragmentState{
			EntryPoint: p.desc.FragmentEntryPoint,
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.desc.Topology,
			FrontFace: p.desc.FrontFace,
			CullMode:  p.desc.CullMode,
		},
		Multisample: wgpu.MultisampleState{
			Count: p.desc.SampleCount,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:              p.desc.DepthFormat,
			DepthWriteEnabled:   p.desc.DepthWrite,
			DepthCompare:        p.desc.DepthCompare,
			DepthBias:           p.desc.DepthBias,
			DepthBiasSlopeScale: p.desc.DepthBiasSlopeScale,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
	}, nil
}

func (p *pipeline) computeDescriptor() (*wgpu.ComputePipelineDescriptor, error) {
	if p.desc.Label == "" {
		p.desc.Label = p.shader.Key()
	}
	entry, err := resolveEntryPoint(p.computeEntryPoint, p.shader.Reflection(), shader.StageCompute, DefaultComputeEntryPoint)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", p.desc.Label, err)
	}
	p.computeEntryPoint = entry

	return &wgpu.ComputePipelineDescriptor{
		Label:  p.desc.Label + " Compute Pipeline",
		Layout: nil,
		Compute: wgpu.ProgrammableStageDescriptor{
			EntryPoint: entry,
		},
	}, nil
}

// resolveEntryPoint picks the explicit name, then the preferred name if declared, then the first declared function.
func resolveEntryPoint(explicit string, refl *shader.Reflection, stage shader.Stage, preferred string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	declared := refl.EntryPoints[stage]
	for _, name := range declared {
		if name == preferred {
			return name, nil
		}
	}
	if len(declared) > 0 {
		return declared[0], nil
	}
	return "", fmt.Errorf("%w %s", ErrMissingEntryPoint, stage)
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.desc.Label
}

func (p *pipeline) Shader() shader.Shader {
	return p.shader
}

func (p *pipeline) Description() Description {
	return p.desc
}

func (p *pipeline) EntryPoint(stage shader.Stage) string {
	switch {
	case p.pipelineType == PipelineTypeCompute && stage == shader.StageCompute:
		return p.computeEntryPoint
	case p.pipelineType == PipelineTypeRender && stage == shader.StageVertex:
		return p.desc.VertexEntryPoint
	case p.pipelineType == PipelineTypeRender && stage == shader.StageFragment:
		return p.desc.FragmentEntryPoint
	default:
		return ""
	}
}

func (p *pipeline) VertexStride() uint64 {
	if p.pipelineType != PipelineTypeRender {
		return 0
	}
	layouts := p.desc.vertexLayouts()
	if len(layouts) == 0 {
		return 0
	}
	return layouts[0].ArrayStride
}

func (p *pipeline) Pipeline() any {
	switch p.pipelineType {
	case PipelineTypeRender:
		return p.renderPipeline
	case PipelineTypeCompute:
		return p.computePipeline
	default:
		return nil
	}
}

func (p *pipeline) RenderPipeline() *wgpu.RenderPipeline {
	return p.renderPipeline
}

func (p *pipeline) ComputePipeline() *wgpu.ComputePipeline {
	return p.computePipeline
}

func (p *pipeline) BindGroupLayout(group uint32) (*wgpu.BindGroupLayout, error) {
	var layout *wgpu.BindGroupLayout
	switch {
	case p.renderPipeline != nil:
		layout = p.renderPipeline.GetBindGroupLayout(group)
	case p.computePipeline != nil:
		layout = p.computePipeline.GetBindGroupLayout(group)
	default:
		return nil, fmt.Errorf("pipeline %s: not compiled or released", p.desc.Label)
	}
	if layout == nil {
		return nil, fmt.Errorf("pipeline %s: no bind group layout for group %d", p.desc.Label, group)
	}
	return layout, nil
}

func (p *pipeline) Release() {
	if p.renderPipeline != nil {
		p.renderPipeline.Release()
		p.renderPipeline = nil
	}
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
	if p.module != nil {
		p.module.Release()
		p.module = nil
	}
}
