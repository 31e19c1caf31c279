package pipeline

import (
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithDescription replaces the whole render description, defaults included. Options applied after it
// still modify the replacement.
//
// Parameters:
//   - desc: the full description
//
// Returns:
//   - PipelineBuilderOption: a function that replaces the description
func WithDescription(desc Description) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc = desc
	}
}

// WithLabel sets the debug label of the pipeline and its shader module.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - PipelineBuilderOption: a function that sets the label
func WithLabel(label string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.Label = label
	}
}

// WithEntryPoints sets the vertex and fragment entry points. An empty name resolves against the shader's reflection.
//
// Parameters:
//   - vertex: the vertex entry point
//   - fragment: the fragment entry point
//
// Returns:
//   - PipelineBuilderOption: a function that sets the entry points
func WithEntryPoints(vertex, fragment string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.VertexEntryPoint = vertex
		p.desc.FragmentEntryPoint = fragment
	}
}

// WithComputeEntryPoint sets the compute entry point.
//
// Parameters:
//   - entryPoint: the compute entry point
//
// Returns:
//   - PipelineBuilderOption: a function that sets the compute entry point
func WithComputeEntryPoint(entryPoint string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.computeEntryPoint = entryPoint
	}
}

// WithTopology sets the primitive topology for this pipeline.
//
// Parameters:
//   - topology: the primitive topology to use for this pipeline (e.g., wgpu.PrimitiveTopologyTriangleStrip)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the primitive topology for this pipeline
func WithTopology(topology wgpu.PrimitiveTopology) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.Topology = topology
	}
}

// WithCullMode sets the cull mode for this pipeline.
//
// Parameters:
//   - mode: the cull mode to use for this pipeline (e.g., wgpu.CullModeNone, wgpu.CullModeFront, wgpu.CullModeBack)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the cull mode for this pipeline
func WithCullMode(mode wgpu.CullMode) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.CullMode = mode
	}
}

// WithFrontFace sets the front face winding order for this pipeline.
func WithFrontFace(frontFace wgpu.FrontFace) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.FrontFace = frontFace
	}
}

// WithDepthCompare sets the depth comparison function.
//
// Parameters:
//   - compare: the comparison, e.g. wgpu.CompareFunctionLessEqual for a sky drawn at the far plane
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth comparison
func WithDepthCompare(compare wgpu.CompareFunction) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.DepthCompare = compare
	}
}

// WithDepthWriteEnabled sets whether depth writing is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether depth writing should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth write enabled state for this pipeline
func WithDepthWriteEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.DepthWrite = enabled
	}
}

// WithDepthBias sets the depth bias parameters for this pipeline.
//
// Parameters:
//   - bias: the constant depth bias to apply
//   - slopeScale: the slope scale depth bias to apply
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth bias parameters for this pipeline
func WithDepthBias(bias int32, slopeScale float32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.DepthBias = bias
		p.desc.DepthBiasSlopeScale = slopeScale
	}
}

// WithColorFormat sets the format of the color target. The orchestrator injects the surface format.
func WithColorFormat(format wgpu.TextureFormat) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.ColorFormat = format
	}
}

// WithSampleCount sets the MSAA sample count. The orchestrator injects its configured count.
func WithSampleCount(count uint32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.SampleCount = count
	}
}

// WithBlendState sets the blend state for this pipeline. Nil disables blending.
//
// Parameters:
//   - blendState: the blend state to use for this pipeline, e.g. &AlphaBlend
//
// Returns:
//   - PipelineBuilderOption: a function that sets the blend state for this pipeline
func WithBlendState(blendState *wgpu.BlendState) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.Blend = blendState
	}
}

// WithWriteMask sets the color write mask for this pipeline.
func WithWriteMask(writeMask wgpu.ColorWriteMask) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.WriteMask = writeMask
	}
}

// WithVertexLayouts sets the vertex buffer layouts, one per vertex buffer slot.
//
// Parameters:
//   - layouts: the vertex buffer layouts
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex layouts
func WithVertexLayouts(layouts ...VertexBufferLayout) PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.VertexLayouts = layouts
	}
}

// WithoutVertexBuffers declares that the vertex shader consumes no vertex buffers.
func WithoutVertexBuffers() PipelineBuilderOption {
	return func(p *pipeline) {
		p.desc.NoVertexBuffers = true
	}
}

// WithLogger sets the logger for pipeline creation events.
func WithLogger(logger *zap.Logger) PipelineBuilderOption {
	return func(p *pipeline) {
		p.logger = logger
	}
}
