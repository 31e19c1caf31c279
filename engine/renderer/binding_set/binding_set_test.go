package binding_set

import (
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-terrain/common"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const terrainSource = `
struct TerrainInfo {
    seed: f32,
    offset: vec3f,
    world: mat4x4f,
}

@group(0) @binding(0) var<uniform> info: TerrainInfo;
@group(0) @binding(1) var<storage, read> heights: array<f32>;
@group(0) @binding(2) var<storage, read_write> _vertices: array<f32>;
@group(0) @binding(3) var<storage, read_write> counter: atomic<u32>;

@compute @workgroup_size(8, 8)
fn computeMain(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
}
`

const texturedSource = `
struct Tint {
    color: vec4f,
}

@group(0) @binding(0) var<uniform> tint: Tint;
@group(0) @binding(1) var tex: texture_2d<f32>;
@group(0) @binding(2) var samp: sampler;
`

type bufferCall struct {
	buffer *wgpu.Buffer
	offset uint64
	data   []byte
}

// fakeDevice hands out empty handles and records descriptors. Textures and samplers
// fail unless textures is set.
type fakeDevice struct {
	buffers     []*wgpu.BufferDescriptor
	bindGroups  []*wgpu.BindGroupDescriptor
	failBuffer  error
	textures    bool
	failSampler error
}

func (d *fakeDevice) CreateBuffer(desc *wgpu.BufferDescriptor) (*wgpu.Buffer, error) {
	if d.failBuffer != nil {
		return nil, d.failBuffer
	}
	d.buffers = append(d.buffers, desc)
	return &wgpu.Buffer{}, nil
}

func (d *fakeDevice) CreateTexture(*wgpu.TextureDescriptor) (*wgpu.Texture, error) {
	if !d.textures {
		return nil, errors.New("textures unavailable")
	}
	return &wgpu.Texture{}, nil
}

func (d *fakeDevice) CreateSampler(*wgpu.SamplerDescriptor) (*wgpu.Sampler, error) {
	if !d.textures {
		return nil, errors.New("samplers unavailable")
	}
	if d.failSampler != nil {
		return nil, d.failSampler
	}
	return &wgpu.Sampler{}, nil
}

func (d *fakeDevice) CreateBindGroup(desc *wgpu.BindGroupDescriptor) (*wgpu.BindGroup, error) {
	d.bindGroups = append(d.bindGroups, desc)
	return &wgpu.BindGroup{}, nil
}

type fakeQueue struct {
	writes   []bufferCall
	failNext error
}

func (q *fakeQueue) WriteBuffer(buffer *wgpu.Buffer, offset uint64, data []byte) error {
	if q.failNext != nil {
		err := q.failNext
		q.failNext = nil
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	q.writes = append(q.writes, bufferCall{buffer: buffer, offset: offset, data: cp})
	return nil
}

func (q *fakeQueue) WriteTexture(*wgpu.ImageCopyTexture, []byte, *wgpu.TextureDataLayout, *wgpu.Extent3D) error {
	return nil
}

// releaseLog records every handle a set gives back.
type releaseLog struct {
	released []releasable
}

func (r *releaseLog) has(h releasable) bool {
	for _, got := range r.released {
		if got == h {
			return true
		}
	}
	return false
}

// stubDriver keeps a set's view creation and releases away from the driver.
func stubDriver(t *testing.T, set BindingSet) *releaseLog {
	t.Helper()
	b, ok := set.(*bindingSet)
	require.True(t, ok)
	log := &releaseLog{}
	b.createView = func(*wgpu.Texture) (*wgpu.TextureView, error) {
		return &wgpu.TextureView{}, nil
	}
	b.release = func(h releasable) {
		log.released = append(log.released, h)
	}
	return log
}

func mustReflect(t *testing.T, src string) *shader.Reflection {
	t.Helper()
	refl, err := shader.Reflect(src)
	require.NoError(t, err)
	return refl
}

func TestPlanBuffers(t *testing.T) {
	refl := mustReflect(t, terrainSource)
	cfg := newBindingSet(nil, nil, refl, WithReadbackCapacity(1024))

	plans, err := planBuffers(refl, cfg)
	require.NoError(t, err)
	require.Len(t, plans, 4)

	uniform := plans[0]
	assert.Equal(t, "info", uniform.binding.Name)
	assert.Equal(t, uniform.binding.Layout.MinBindingSize(), uniform.size)
	assert.Equal(t, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, uniform.usage)
	assert.Zero(t, uniform.mappedSize)

	heights := plans[1]
	assert.Equal(t, DefaultArrayCapacity, heights.size)
	assert.Equal(t, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst, heights.usage)

	verts := plans[2]
	assert.Equal(t, uint64(1024), verts.size)
	assert.Equal(t, uint64(1024), verts.mappedSize)
	assert.NotZero(t, verts.usage&wgpu.BufferUsageCopySrc)

	counter := plans[3]
	assert.Equal(t, scalarStorageSize, counter.size)
	assert.NotZero(t, counter.usage&wgpu.BufferUsageCopySrc)
}

func TestPlanBuffersSizeOverride(t *testing.T) {
	refl := mustReflect(t, terrainSource)

	cfg := newBindingSet(nil, nil, refl, WithBufferSize("vertices", 64), WithBufferSize("heights", 128))
	plans, err := planBuffers(refl, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(128), plans[1].size)
	assert.Equal(t, uint64(64), plans[2].size)
	assert.Equal(t, uint64(64), plans[2].mappedSize)

	cfg = newBindingSet(nil, nil, refl, WithBufferSize("heights", 6))
	_, err = planBuffers(refl, cfg)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestValidateCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity uint64
		wantErr  bool
	}{
		{"zero", 0, true},
		{"below prefix", 4, true},
		{"unaligned", 10, true},
		{"minimum", 8, false},
		{"default readback", DefaultReadbackCapacity, false},
		{"default array", DefaultArrayCapacity, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCapacity(tt.capacity)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCapacity)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewRejectsBadCapacity(t *testing.T) {
	device := &fakeDevice{}
	_, err := New(device, &fakeQueue{}, mustReflect(t, terrainSource), WithReadbackCapacity(3))
	assert.ErrorIs(t, err, ErrInvalidCapacity)
	assert.Empty(t, device.buffers, "nothing is allocated before planning succeeds")
}

func TestNewAllocatesBuffers(t *testing.T) {
	device := &fakeDevice{}
	set, err := New(device, &fakeQueue{}, mustReflect(t, terrainSource), WithLabel("Terrain"), WithReadbackCapacity(256))
	require.NoError(t, err)

	// four bindings plus the mapped partner of the readback
	require.Len(t, device.buffers, 5)
	assert.Equal(t, "Terrain vertices Readback Buffer", device.buffers[3].Label)
	assert.Equal(t, wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst, device.buffers[3].Usage)

	rb, ok := set.Readback("vertices")
	require.True(t, ok)
	assert.Equal(t, uint64(256), rb.Capacity)
	assert.NotNil(t, rb.Storage)
	assert.NotNil(t, rb.Mapped)
	assert.Len(t, set.Readbacks(), 1)

	_, ok = set.Readback("heights")
	assert.False(t, ok)

	assert.True(t, set.HasUniform("TerrainInfo"))
	assert.True(t, set.HasUniform("info"))
	assert.False(t, set.HasUniform("SkyInfo"))
}

func TestNewPropagatesDeviceError(t *testing.T) {
	boom := errors.New("out of memory")
	_, err := New(&fakeDevice{failBuffer: boom}, &fakeQueue{}, mustReflect(t, terrainSource))
	assert.ErrorIs(t, err, boom)
}

func TestSetUniformUploadsWholeStaging(t *testing.T) {
	queue := &fakeQueue{}
	set, err := New(&fakeDevice{}, queue, mustReflect(t, terrainSource))
	require.NoError(t, err)

	require.NoError(t, set.SetUniform("TerrainInfo", "offset", []float32{1, 2, 3}))
	require.NoError(t, set.SetUniform("info", "seed", []float32{7}))
	require.Len(t, queue.writes, 2)

	u, ok := set.Uniform("TerrainInfo")
	require.True(t, ok)
	assert.Same(t, u.Buffer, queue.writes[1].buffer)
	assert.Zero(t, queue.writes[1].offset)
	assert.Len(t, queue.writes[1].data, int(u.Layout.ByteSize()))

	got := common.BytesToFloat32s(queue.writes[1].data)
	assert.Equal(t, []float32{7, 1, 2, 3}, got[:4])
	assert.Equal(t, u.Staging(), got)
}

func TestSetUniformErrors(t *testing.T) {
	queue := &fakeQueue{}
	set, err := New(&fakeDevice{}, queue, mustReflect(t, terrainSource))
	require.NoError(t, err)

	err = set.SetUniform("TerrainInfo", "missing", []float32{1})
	assert.ErrorIs(t, err, ErrUnknownUniformField)

	err = set.SetUniform("SkyInfo", "colorOne", []float32{1})
	assert.ErrorIs(t, err, ErrUnknownUniformField)

	err = set.SetUniform("TerrainInfo", "offset", []float32{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrFieldOverflow)
	assert.Empty(t, queue.writes, "rejected writes never reach the queue")

	boom := errors.New("queue lost")
	queue.failNext = boom
	err = set.SetUniform("TerrainInfo", "seed", []float32{1})
	assert.ErrorIs(t, err, boom)
}

func TestUniformStagePartialWrite(t *testing.T) {
	refl := mustReflect(t, terrainSource)
	desc, ok := refl.Uniform("TerrainInfo")
	require.True(t, ok)

	u := newUniformBuffer(desc)
	require.NoError(t, u.Stage("offset", []float32{1, 2, 3}))
	require.NoError(t, u.Stage("offset", []float32{9}))
	assert.Equal(t, []float32{0, 9, 2, 3}, u.Staging()[:4])

	staging := u.Staging()
	staging[0] = 100
	assert.Zero(t, u.Staging()[0], "Staging returns a copy")
}

func TestUniformCheckStagesNothing(t *testing.T) {
	desc, ok := mustReflect(t, terrainSource).Uniform("TerrainInfo")
	require.True(t, ok)
	u := newUniformBuffer(desc)

	assert.NoError(t, u.Check("offset", []float32{1, 2, 3}))
	assert.ErrorIs(t, u.Check("offset", []float32{1, 2, 3, 4}), ErrFieldOverflow)
	assert.ErrorIs(t, u.Check("missing", nil), ErrUnknownUniformField)
	assert.Equal(t, make([]float32, len(u.Staging())), u.Staging())
}

func TestWriteStorage(t *testing.T) {
	queue := &fakeQueue{}
	set, err := New(&fakeDevice{}, queue, mustReflect(t, terrainSource), WithBufferSize("heights", 16))
	require.NoError(t, err)

	data := common.SliceToBytes([]float32{1, 2, 3, 4})
	require.NoError(t, set.WriteStorage("heights", data))
	require.Len(t, queue.writes, 1)
	assert.Equal(t, data, queue.writes[0].data)

	err = set.WriteStorage("heights", common.SliceToBytes([]float32{1, 2, 3, 4, 5}))
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	err = set.WriteStorage("info", data)
	assert.ErrorIs(t, err, ErrUnknownBuffer)

	err = set.WriteStorage("nope", data)
	assert.ErrorIs(t, err, ErrUnknownBuffer)
}

func TestBuildCreatesGroups(t *testing.T) {
	device := &fakeDevice{}
	set, err := New(device, &fakeQueue{}, mustReflect(t, terrainSource), WithLabel("Terrain"))
	require.NoError(t, err)

	_, err = set.BindGroups()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, set.Ready())

	layout := &wgpu.BindGroupLayout{}
	var asked []uint32
	require.NoError(t, set.Build(func(group uint32) (*wgpu.BindGroupLayout, error) {
		asked = append(asked, group)
		return layout, nil
	}))

	assert.Equal(t, []uint32{0}, asked)
	assert.True(t, set.Ready())
	groups, err := set.BindGroups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, uint32(0), groups[0].Index)

	require.Len(t, device.bindGroups, 1)
	desc := device.bindGroups[0]
	assert.Same(t, layout, desc.Layout)
	require.Len(t, desc.Entries, 4)
	for i, e := range desc.Entries {
		assert.Equal(t, uint32(i), e.Binding)
		assert.NotNil(t, e.Buffer)
		assert.Equal(t, uint64(wgpu.WholeSize), e.Size)
	}
}

func TestBuildDefersUntilTextureSet(t *testing.T) {
	device := &fakeDevice{}
	set, err := New(device, &fakeQueue{}, mustReflect(t, texturedSource))
	require.NoError(t, err)

	require.NoError(t, set.Build(func(uint32) (*wgpu.BindGroupLayout, error) {
		return &wgpu.BindGroupLayout{}, nil
	}))
	assert.False(t, set.Ready())
	assert.Empty(t, device.bindGroups)

	_, err = set.BindGroups()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestBuildPropagatesLayoutError(t *testing.T) {
	set, err := New(&fakeDevice{}, &fakeQueue{}, mustReflect(t, terrainSource))
	require.NoError(t, err)

	boom := errors.New("no layout")
	err = set.Build(func(uint32) (*wgpu.BindGroupLayout, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, set.Ready())
}

func TestSetTextureValidation(t *testing.T) {
	set, err := New(&fakeDevice{}, &fakeQueue{}, mustReflect(t, terrainSource))
	require.NoError(t, err)

	img := common.TextureStagingData{Pixels: make([]byte, 16), Width: 2, Height: 2}
	assert.ErrorIs(t, set.SetTexture(img, nil), ErrNoTextureSlot)

	textured, err := New(&fakeDevice{}, &fakeQueue{}, mustReflect(t, texturedSource))
	require.NoError(t, err)

	bad := common.TextureStagingData{Pixels: make([]byte, 15), Width: 2, Height: 2}
	assert.Error(t, textured.SetTexture(bad, nil))

	err = textured.SetTexture(img, nil)
	require.Error(t, err, "the fake device cannot create textures")
	assert.Contains(t, err.Error(), "textures unavailable")
}

func TestSetTextureReplacesResources(t *testing.T) {
	device := &fakeDevice{textures: true}
	set, err := New(device, &fakeQueue{}, mustReflect(t, texturedSource))
	require.NoError(t, err)
	log := stubDriver(t, set)
	b := set.(*bindingSet)

	require.NoError(t, set.Build(func(uint32) (*wgpu.BindGroupLayout, error) {
		return &wgpu.BindGroupLayout{}, nil
	}))
	img := common.TextureStagingData{Pixels: make([]byte, 16), Width: 2, Height: 2}
	require.NoError(t, set.SetTexture(img, nil))
	assert.True(t, set.Ready())
	assert.Empty(t, log.released)

	first := b.textures
	firstGroups, err := set.BindGroups()
	require.NoError(t, err)
	require.Len(t, firstGroups, 1)

	require.NoError(t, set.SetTexture(img, nil))
	assert.True(t, set.Ready())
	second, err := set.BindGroups()
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotSame(t, firstGroups[0].BindGroup, second[0].BindGroup)
	assert.NotSame(t, first.view, b.textures.view)

	assert.True(t, log.has(firstGroups[0].BindGroup))
	assert.True(t, log.has(first.texture))
	assert.True(t, log.has(first.view))
	assert.True(t, log.has(first.sampler))
	assert.False(t, log.has(b.textures.view))

	last := device.bindGroups[len(device.bindGroups)-1]
	var boundView bool
	for _, e := range last.Entries {
		if e.TextureView != nil {
			assert.Same(t, b.textures.view, e.TextureView)
			boundView = true
		}
	}
	assert.True(t, boundView)
}

func TestSetTextureFailureKeepsResources(t *testing.T) {
	device := &fakeDevice{textures: true}
	set, err := New(device, &fakeQueue{}, mustReflect(t, texturedSource))
	require.NoError(t, err)
	log := stubDriver(t, set)
	b := set.(*bindingSet)

	require.NoError(t, set.Build(func(uint32) (*wgpu.BindGroupLayout, error) {
		return &wgpu.BindGroupLayout{}, nil
	}))
	img := common.TextureStagingData{Pixels: make([]byte, 16), Width: 2, Height: 2}
	require.NoError(t, set.SetTexture(img, nil))
	kept := b.textures
	keptGroups, err := set.BindGroups()
	require.NoError(t, err)

	device.failSampler = errors.New("sampler limit reached")
	err = set.SetTexture(img, nil)
	require.ErrorIs(t, err, device.failSampler)

	assert.True(t, set.Ready())
	groups, err := set.BindGroups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Same(t, keptGroups[0].BindGroup, groups[0].BindGroup)
	assert.Same(t, kept.view, b.textures.view)
	assert.Same(t, kept.sampler, b.textures.sampler)

	// only the half-built texture and view went back
	require.Len(t, log.released, 2)
	for _, h := range log.released {
		assert.NotSame(t, kept.texture, h)
		assert.NotSame(t, kept.view, h)
	}
	assert.False(t, log.has(keptGroups[0].BindGroup))
}

func TestSetTextureLayoutFailureKeepsResources(t *testing.T) {
	device := &fakeDevice{textures: true}
	set, err := New(device, &fakeQueue{}, mustReflect(t, texturedSource))
	require.NoError(t, err)
	log := stubDriver(t, set)
	b := set.(*bindingSet)

	fail := false
	boom := errors.New("layout gone")
	require.NoError(t, set.Build(func(uint32) (*wgpu.BindGroupLayout, error) {
		if fail {
			return nil, boom
		}
		return &wgpu.BindGroupLayout{}, nil
	}))
	img := common.TextureStagingData{Pixels: make([]byte, 16), Width: 2, Height: 2}
	require.NoError(t, set.SetTexture(img, nil))
	kept := b.textures

	fail = true
	require.ErrorIs(t, set.SetTexture(img, nil), boom)
	assert.True(t, set.Ready())
	assert.Same(t, kept.texture, b.textures.texture)
	assert.Same(t, kept.view, b.textures.view)
	assert.Len(t, log.released, 3)
	assert.False(t, log.has(kept.view))
	assert.False(t, log.has(kept.sampler))
}

func TestDecodeReadback(t *testing.T) {
	tests := []struct {
		name    string
		raw     []float32
		want    []float32
		wantErr bool
	}{
		{"empty payload", []float32{0, 9, 9}, []float32{}, false},
		{"exact prefix", []float32{3, 1, 2, 3, 99}, []float32{1, 2, 3}, false},
		{"fills buffer", []float32{2, 5, 6}, []float32{5, 6}, false},
		{"no prefix", nil, nil, true},
		{"overflow", []float32{4, 1, 2, 3}, nil, true},
		{"negative", []float32{-1, 1}, nil, true},
		{"fractional", []float32{1.5, 1, 2}, nil, true},
		{"nan", []float32{float32(math.NaN()), 1}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeReadback(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrReadbackOverflow)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeReadbackCopies(t *testing.T) {
	raw := []float32{2, 1, 2}
	got, err := DecodeReadback(raw)
	require.NoError(t, err)
	raw[1] = 42
	assert.Equal(t, []float32{1, 2}, got)
}
