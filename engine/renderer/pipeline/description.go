package pipeline

import "github.com/cogentcore/webgpu/wgpu"

const (
	// DefaultVertexEntryPoint is the vertex entry point used when the description leaves it empty and the shader declares it.
	DefaultVertexEntryPoint = "vertexMain"
	// DefaultFragmentEntryPoint is the fragment counterpart of DefaultVertexEntryPoint.
	DefaultFragmentEntryPoint = "fragmentMain"
	// DefaultComputeEntryPoint is the compute counterpart of DefaultVertexEntryPoint.
	DefaultComputeEntryPoint = "computeMain"

	// DefaultSampleCount is the MSAA sample count of render pipelines.
	DefaultSampleCount uint32 = 4
)

// Description holds everything a render pipeline is created from apart from the shader module.
// Empty entry points resolve against the shader's reflection; see NewRender.
type Description struct {
	Label string

	VertexEntryPoint   string
	FragmentEntryPoint string

	Topology  wgpu.PrimitiveTopology
	FrontFace wgpu.FrontFace
	CullMode  wgpu.CullMode

	DepthCompare        wgpu.CompareFunction
	DepthWrite          bool
	DepthFormat         wgpu.TextureFormat
	DepthBias           int32
	DepthBiasSlopeScale float32

	ColorFormat wgpu.TextureFormat
	WriteMask   wgpu.ColorWriteMask
	// Blend is nil for opaque output.
	Blend *wgpu.BlendState

	SampleCount uint32

	// VertexLayouts is one entry per vertex buffer slot. Empty means DefaultVertexLayout
	// unless NoVertexBuffers is set.
	VertexLayouts []VertexBufferLayout
	// NoVertexBuffers declares a pipeline whose vertex shader reads only builtins, such as a
	// full-screen strip generated from vertex_index.
	NoVertexBuffers bool
}

// DefaultDescription returns the description every render pipeline starts from: triangle list, no culling,
// depth24plus with less-than test and depth writes, 4x MSAA, opaque output, and DefaultVertexLayout.
func DefaultDescription() Description {
	return Description{
		Topology:     wgpu.PrimitiveTopologyTriangleList,
		FrontFace:    wgpu.FrontFaceCCW,
		CullMode:     wgpu.CullModeNone,
		DepthCompare: wgpu.CompareFunctionLess,
		DepthWrite:   true,
		DepthFormat:  wgpu.TextureFormatDepth24Plus,
		ColorFormat:  wgpu.TextureFormatBGRA8Unorm,
		WriteMask:    wgpu.ColorWriteMaskAll,
		SampleCount:  DefaultSampleCount,
	}
}

// AlphaBlend is the standard source-over blend state.
var AlphaBlend = wgpu.BlendState{
	Color: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorSrcAlpha,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
	Alpha: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
}

func (d Description) vertexLayouts() []VertexBufferLayout {
	if d.NoVertexBuffers {
		return nil
	}
	if len(d.VertexLayouts) == 0 {
		return []VertexBufferLayout{DefaultVertexLayout()}
	}
	return d.VertexLayouts
}
