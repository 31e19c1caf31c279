package pass

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/binding_set"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groundSource = `
struct GroundInfo {
    tint: vec4f,
}

@group(0) @binding(0) var<uniform> ground: GroundInfo;

@vertex
fn vertexMain(@location(0) position: vec4f, @location(1) normal: vec4f) -> @builtin(position) vec4f {
    return position;
}

@fragment
fn fragmentMain() -> @location(0) vec4f {
    return ground.tint;
}
`

const idleSource = `
@compute @workgroup_size(1)
fn computeMain() {
}
`

// fakeDevice serves pipelines, binding sets and passes with empty handles.
// Nothing it returns may be released or recorded into.
type fakeDevice struct {
	buffers []*wgpu.BufferDescriptor
}

func (d *fakeDevice) CreateShaderModule(*wgpu.ShaderModuleDescriptor) (*wgpu.ShaderModule, error) {
	return &wgpu.ShaderModule{}, nil
}

func (d *fakeDevice) CreateRenderPipeline(*wgpu.RenderPipelineDescriptor) (*wgpu.RenderPipeline, error) {
	return &wgpu.RenderPipeline{}, nil
}

func (d *fakeDevice) CreateComputePipeline(*wgpu.ComputePipelineDescriptor) (*wgpu.ComputePipeline, error) {
	return &wgpu.ComputePipeline{}, nil
}

func (d *fakeDevice) CreateBuffer(desc *wgpu.BufferDescriptor) (*wgpu.Buffer, error) {
	d.buffers = append(d.buffers, desc)
	return &wgpu.Buffer{}, nil
}

func (d *fakeDevice) CreateTexture(*wgpu.TextureDescriptor) (*wgpu.Texture, error) {
	return nil, errors.New("textures unavailable")
}

func (d *fakeDevice) CreateSampler(*wgpu.SamplerDescriptor) (*wgpu.Sampler, error) {
	return nil, errors.New("samplers unavailable")
}

func (d *fakeDevice) CreateBindGroup(*wgpu.BindGroupDescriptor) (*wgpu.BindGroup, error) {
	return &wgpu.BindGroup{}, nil
}

func (d *fakeDevice) CreateCommandEncoder(*wgpu.CommandEncoderDescriptor) (*wgpu.CommandEncoder, error) {
	return nil, errors.New("encoders unavailable")
}

type fakeQueue struct {
	writes [][]byte
}

func (q *fakeQueue) WriteBuffer(_ *wgpu.Buffer, _ uint64, data []byte) error {
	q.writes = append(q.writes, append([]byte(nil), data...))
	return nil
}

func (q *fakeQueue) WriteTexture(*wgpu.ImageCopyTexture, []byte, *wgpu.TextureDataLayout, *wgpu.Extent3D) error {
	return nil
}

func stubLayouts(uint32) (*wgpu.BindGroupLayout, error) {
	return &wgpu.BindGroupLayout{}, nil
}

type fixture struct {
	device *fakeDevice
	queue  *fakeQueue
	gpu    GPU
}

func newFixture() *fixture {
	f := &fixture{device: &fakeDevice{}, queue: &fakeQueue{}}
	f.gpu = GPU{
		Device: f.device,
		Queue:  f.queue,
		Submit: func(...*wgpu.CommandBuffer) {},
		Poll:   func() {},
	}
	return f
}

func (f *fixture) pipelineAndBindings(t *testing.T, key, source string, compute bool) (pipeline.Pipeline, binding_set.BindingSet) {
	t.Helper()
	s, err := shader.NewShader(key, source)
	require.NoError(t, err)

	var p pipeline.Pipeline
	if compute {
		p, err = pipeline.NewCompute(f.device, s)
	} else {
		p, err = pipeline.NewRender(f.device, s)
	}
	require.NoError(t, err)

	b, err := binding_set.New(f.device, f.queue, s.Reflection(), binding_set.WithLabel(key))
	require.NoError(t, err)
	return p, b
}

func (f *fixture) renderPass(t *testing.T, opts ...PassOption) (RenderPass, binding_set.BindingSet) {
	t.Helper()
	p, b := f.pipelineAndBindings(t, "ground", groundSource, false)
	rp, err := NewRender("ground", f.gpu, p, b, opts...)
	require.NoError(t, err)
	return rp, b
}

func TestRenderPassBecomesReady(t *testing.T) {
	f := newFixture()
	rp, b := f.renderPass(t)

	assert.Equal(t, KindRender, rp.Kind())
	assert.True(t, rp.EveryFrame())
	assert.Equal(t, StateCreated, rp.State())

	require.NoError(t, b.Build(stubLayouts))
	assert.Equal(t, StateCreated, rp.State(), "no vertex data yet")

	require.NoError(t, rp.SetVertexBuffer(make([]byte, 3*32)))
	assert.Equal(t, StateCreated, rp.State(), "vertex count still zero")

	require.NoError(t, rp.AutoVertexCount())
	vertices, instances := rp.DrawCounts()
	assert.Equal(t, uint32(3), vertices)
	assert.Equal(t, uint32(1), instances)
	assert.Equal(t, StateReady, rp.State())
}

func TestRenderPassEncodeBeforeReady(t *testing.T) {
	f := newFixture()
	rp, _ := f.renderPass(t)

	_, err := rp.Encode(Targets{})
	assert.ErrorIs(t, err, ErrPassNotReady)
}

func TestRenderPassVertexBufferReuse(t *testing.T) {
	f := newFixture()
	rp, _ := f.renderPass(t)
	created := len(f.device.buffers)

	require.NoError(t, rp.SetVertexBuffer(make([]byte, 64)))
	require.NoError(t, rp.SetVertexBuffer(make([]byte, 32)))
	assert.Len(t, f.device.buffers, created+1, "smaller upload reuses the buffer")

	last := f.queue.writes[len(f.queue.writes)-1]
	assert.Len(t, last, 32)
}

func TestRenderPassVertexPadding(t *testing.T) {
	f := newFixture()
	rp, _ := f.renderPass(t)

	require.NoError(t, rp.SetVertexBuffer([]byte{1, 2, 3, 4, 5}))
	last := f.queue.writes[len(f.queue.writes)-1]
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 0, 0, 0}, last)

	err := rp.AutoVertexCount()
	assert.ErrorIs(t, err, ErrVertexStride, "5 bytes is not a whole vertex")
}

func TestRenderPassWithoutVertexBuffers(t *testing.T) {
	f := newFixture()
	s, err := shader.NewShader("sky", groundSource)
	require.NoError(t, err)
	p, err := pipeline.NewRender(f.device, s, pipeline.WithoutVertexBuffers())
	require.NoError(t, err)
	b, err := binding_set.New(f.device, f.queue, s.Reflection())
	require.NoError(t, err)

	rp, err := NewRender("sky", f.gpu, p, b)
	require.NoError(t, err)

	assert.ErrorIs(t, rp.SetVertexBuffer(make([]byte, 16)), ErrVertexStride)
	assert.ErrorIs(t, rp.AutoVertexCount(), ErrVertexStride)

	require.NoError(t, b.Build(stubLayouts))
	four := uint32(4)
	rp.SetDrawCounts(&four, nil)
	assert.Equal(t, StateReady, rp.State(), "builtin-only vertex shader needs no buffer")
}

func TestRenderPassSetDrawCounts(t *testing.T) {
	f := newFixture()
	rp, _ := f.renderPass(t)

	six, many := uint32(6), uint32(1024)
	rp.SetDrawCounts(&six, nil)
	v, i := rp.DrawCounts()
	assert.Equal(t, uint32(6), v)
	assert.Equal(t, uint32(1), i)

	rp.SetDrawCounts(nil, &many)
	v, i = rp.DrawCounts()
	assert.Equal(t, uint32(6), v)
	assert.Equal(t, uint32(1024), i)

	rp.SetDrawCounts(nil, nil)
	v, i = rp.DrawCounts()
	assert.Equal(t, uint32(6), v)
	assert.Equal(t, uint32(1024), i)
}

func TestRenderPassDescriptor(t *testing.T) {
	f := newFixture()
	sky := wgpu.Color{R: 0.1, G: 0.2, B: 0.3, A: 1}
	rp, _ := f.renderPass(t, WithClear(sky))
	assert.True(t, rp.Clears())

	color, resolve, depth := &wgpu.TextureView{}, &wgpu.TextureView{}, &wgpu.TextureView{}
	desc := rp.(*renderPass).descriptor(Targets{Color: color, Resolve: resolve, Depth: depth})
	require.Len(t, desc.ColorAttachments, 1)
	att := desc.ColorAttachments[0]
	assert.Same(t, color, att.View)
	assert.Same(t, resolve, att.ResolveTarget)
	assert.Equal(t, wgpu.LoadOpClear, att.LoadOp)
	assert.Equal(t, wgpu.StoreOpStore, att.StoreOp)
	assert.Equal(t, sky, att.ClearValue)
	require.NotNil(t, desc.DepthStencilAttachment)
	assert.Same(t, depth, desc.DepthStencilAttachment.View)
	assert.Equal(t, wgpu.LoadOpClear, desc.DepthStencilAttachment.DepthLoadOp)
	assert.Equal(t, float32(1.0), desc.DepthStencilAttachment.DepthClearValue)

	rp.SetClear(false, wgpu.Color{})
	desc = rp.(*renderPass).descriptor(Targets{Color: color, Depth: depth})
	assert.Equal(t, wgpu.LoadOpLoad, desc.ColorAttachments[0].LoadOp)
	assert.Nil(t, desc.ColorAttachments[0].ResolveTarget)
	assert.Equal(t, wgpu.LoadOpLoad, desc.DepthStencilAttachment.DepthLoadOp)

	night := wgpu.Color{B: 0.05, A: 1}
	desc = rp.(*renderPass).descriptor(Targets{Color: color, Depth: depth, Clear: &night})
	assert.Equal(t, wgpu.LoadOpClear, desc.ColorAttachments[0].LoadOp)
	assert.Equal(t, night, desc.ColorAttachments[0].ClearValue)
	assert.Equal(t, wgpu.LoadOpClear, desc.DepthStencilAttachment.DepthLoadOp)
	assert.False(t, rp.Clears())
}

func TestNewPassRejectsWrongPipeline(t *testing.T) {
	f := newFixture()
	render, rb := f.pipelineAndBindings(t, "ground", groundSource, false)
	compute, cb := f.pipelineAndBindings(t, "idle", idleSource, true)

	_, err := NewRender("idle", f.gpu, compute, cb)
	assert.Error(t, err)
	_, err = NewCompute("ground", f.gpu, render, rb)
	assert.Error(t, err)
}

func TestVertexCount(t *testing.T) {
	tests := []struct {
		name    string
		bytes   uint64
		stride  uint64
		want    uint32
		wantErr bool
	}{
		{name: "whole vertices", bytes: 96, stride: 32, want: 3},
		{name: "empty", bytes: 0, stride: 32, want: 0},
		{name: "partial vertex", bytes: 40, stride: 32, wantErr: true},
		{name: "no stride", bytes: 32, stride: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vertexCount(tt.bytes, tt.stride)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrVertexStride)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputePassDispatch(t *testing.T) {
	f := newFixture()
	p, b := f.pipelineAndBindings(t, "idle", idleSource, true)

	cp, err := NewCompute("idle", f.gpu, p, b, WithDispatch(4, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, KindCompute, cp.Kind())
	assert.False(t, cp.EveryFrame())
	assert.Equal(t, [3]uint32{4, 1, 2}, cp.Dispatch(), "zero clamps to one")

	cp.SetDispatch(0, 0, 0)
	assert.Equal(t, [3]uint32{1, 1, 1}, cp.Dispatch())

	every, err := NewCompute("idle", f.gpu, p, b, WithEveryFrame(true))
	require.NoError(t, err)
	assert.True(t, every.EveryFrame())
}

func TestComputePassLifecycle(t *testing.T) {
	f := newFixture()
	p, b := f.pipelineAndBindings(t, "idle", idleSource, true)
	cp, err := NewCompute("idle", f.gpu, p, b)
	require.NoError(t, err)

	assert.Equal(t, StateCreated, cp.State())
	_, err = cp.Run(context.Background())
	assert.ErrorIs(t, err, ErrPassNotReady)

	require.NoError(t, b.Build(stubLayouts))
	assert.Equal(t, StateReady, cp.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cp.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateReady, cp.State(), "a cancelled run records nothing")

	cp.Clear()
	assert.Equal(t, StateCleared, cp.State())
	assert.Nil(t, cp.Results())

	_, err = cp.Run(context.Background())
	assert.ErrorIs(t, err, ErrPassCleared)
	_, err = cp.Encode(Targets{})
	assert.ErrorIs(t, err, ErrPassCleared)

	cp.Clear()
	assert.Equal(t, StateCleared, cp.State(), "clearing twice is a no-op")
}

func TestResultsGet(t *testing.T) {
	results := NewResults(map[string][]float32{
		"vertices": {3, 1, 2, 3, 0, 0},
		"empty":    {0, 9, 9},
		"corrupt":  {100, 1},
	})
	assert.Equal(t, []string{"corrupt", "empty", "vertices"}, results.Names())

	got, err := results.Get("vertices", true)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got)

	got[0] = 42
	again, err := results.Get("vertices", false)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, again, "preserved data is unaffected by caller writes")

	_, err = results.Get("vertices", true)
	assert.ErrorIs(t, err, ErrUnknownReadback, "dropped after a non-preserving get")

	got, err = results.Get("empty", true)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = results.Get("corrupt", true)
	assert.ErrorIs(t, err, binding_set.ErrReadbackOverflow)

	_, err = results.Get("missing", true)
	assert.ErrorIs(t, err, ErrUnknownReadback)
}

func TestResultsNegativePrefix(t *testing.T) {
	results := NewResults(map[string][]float32{"bad": {float32(math.Inf(-1)), 1}})
	_, err := results.Get("bad", true)
	assert.ErrorIs(t, err, binding_set.ErrReadbackOverflow)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "rendered", StateRendered.String())
	assert.Equal(t, "cleared", StateCleared.String())
	assert.Equal(t, "State(9)", State(9).String())
}
