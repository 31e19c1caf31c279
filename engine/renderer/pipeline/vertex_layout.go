package pipeline

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// vertexFormatInfo pairs a vertex format with its byte size.
type vertexFormatInfo struct {
	format wgpu.VertexFormat
	size   uint64
}

// wgslVertexFormatMap maps WGSL type names to their corresponding wgpu vertex format and byte size.
var wgslVertexFormatMap = map[string]vertexFormatInfo{
	"f32":       {wgpu.VertexFormatFloat32, 4},
	"vec2f":     {wgpu.VertexFormatFloat32x2, 8},
	"vec2<f32>": {wgpu.VertexFormatFloat32x2, 8},
	"vec3f":     {wgpu.VertexFormatFloat32x3, 12},
	"vec3<f32>": {wgpu.VertexFormatFloat32x3, 12},
	"vec4f":     {wgpu.VertexFormatFloat32x4, 16},
	"vec4<f32>": {wgpu.VertexFormatFloat32x4, 16},
	"i32":       {wgpu.VertexFormatSint32, 4},
	"vec2i":     {wgpu.VertexFormatSint32x2, 8},
	"vec2<i32>": {wgpu.VertexFormatSint32x2, 8},
	"vec3i":     {wgpu.VertexFormatSint32x3, 12},
	"vec3<i32>": {wgpu.VertexFormatSint32x3, 12},
	"vec4i":     {wgpu.VertexFormatSint32x4, 16},
	"vec4<i32>": {wgpu.VertexFormatSint32x4, 16},
	"u32":       {wgpu.VertexFormatUint32, 4},
	"vec2u":     {wgpu.VertexFormatUint32x2, 8},
	"vec2<u32>": {wgpu.VertexFormatUint32x2, 8},
	"vec3u":     {wgpu.VertexFormatUint32x3, 12},
	"vec3<u32>": {wgpu.VertexFormatUint32x3, 12},
	"vec4u":     {wgpu.VertexFormatUint32x4, 16},
	"vec4<u32>": {wgpu.VertexFormatUint32x4, 16},
	"vec2h":     {wgpu.VertexFormatFloat16x2, 4},
	"vec2<f16>": {wgpu.VertexFormatFloat16x2, 4},
	"vec4h":     {wgpu.VertexFormatFloat16x4, 8},
	"vec4<f16>": {wgpu.VertexFormatFloat16x4, 8},
}

// VertexBufferLayout describes one vertex buffer slot: its stride, step mode and attributes.
type VertexBufferLayout struct {
	ArrayStride uint64
	StepMode    wgpu.VertexStepMode
	Attributes  []wgpu.VertexAttribute
}

// NewVertexLayout packs tightly one attribute per WGSL type, at consecutive shader locations
// starting at firstLocation. The stride is the sum of the attribute sizes.
//
// Parameters:
//   - stepMode: wgpu.VertexStepModeVertex or wgpu.VertexStepModeInstance
//   - firstLocation: the @location of the first attribute
//   - wgslTypes: the WGSL type of each attribute, e.g. "vec4f" or "vec2<f32>"
//
// Returns:
//   - VertexBufferLayout: the packed layout
//   - error: error if a type has no vertex format
func NewVertexLayout(stepMode wgpu.VertexStepMode, firstLocation uint32, wgslTypes ...string) (VertexBufferLayout, error) {
	layout := VertexBufferLayout{StepMode: stepMode}
	for i, t := range wgslTypes {
		info, ok := wgslVertexFormatMap[t]
		if !ok {
			return VertexBufferLayout{}, fmt.Errorf("no vertex format for WGSL type %q", t)
		}
		layout.Attributes = append(layout.Attributes, wgpu.VertexAttribute{
			Format:         info.format,
			Offset:         layout.ArrayStride,
			ShaderLocation: firstLocation + uint32(i),
		})
		layout.ArrayStride += info.size
	}
	return layout, nil
}

// DefaultVertexLayout is a per-vertex float32x4 position at offset 0 and float32x4 color at offset 16.
func DefaultVertexLayout() VertexBufferLayout {
	return VertexBufferLayout{
		ArrayStride: 32,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 0},
			{Format: wgpu.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 1},
		},
	}
}

func (l VertexBufferLayout) toWGPU() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: l.ArrayStride,
		StepMode:    l.StepMode,
		Attributes:  l.Attributes,
	}
}
