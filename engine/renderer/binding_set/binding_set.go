package binding_set

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-terrain/common"
	"github.com/Carmen-Shannon/oxy-terrain/engine/logger"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// Device is the subset of *wgpu.Device a binding set allocates through.
type Device interface {
	CreateBuffer(descriptor *wgpu.BufferDescriptor) (*wgpu.Buffer, error)
	CreateTexture(descriptor *wgpu.TextureDescriptor) (*wgpu.Texture, error)
	CreateSampler(descriptor *wgpu.SamplerDescriptor) (*wgpu.Sampler, error)
	CreateBindGroup(descriptor *wgpu.BindGroupDescriptor) (*wgpu.BindGroup, error)
}

// Queue is the subset of *wgpu.Queue a binding set uploads through.
type Queue interface {
	WriteBuffer(buffer *wgpu.Buffer, bufferOffset uint64, data []byte) error
	WriteTexture(destination *wgpu.ImageCopyTexture, data []byte, dataLayout *wgpu.TextureDataLayout, writeSize *wgpu.Extent3D) error
}

// LayoutProvider returns the bind group layout for a group index, typically a pipeline's
// auto-generated layout.
type LayoutProvider func(group uint32) (*wgpu.BindGroupLayout, error)

// GroupBinding is a built bind group and the group index it binds to.
type GroupBinding struct {
	Index     uint32
	BindGroup *wgpu.BindGroup
}

// slotKey addresses a binding by group and binding index.
type slotKey [2]uint32

// releasable is any GPU handle the set owns.
type releasable interface {
	Release()
}

// textureResources are the objects bound to a shader's texture and sampler slots.
type textureResources struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
	sampler *wgpu.Sampler
}

// bindingSet is the implementation of the BindingSet interface.
type bindingSet struct {
	mu     *sync.Mutex
	label  string
	device Device
	queue  Queue
	logger *zap.Logger
	refl   *shader.Reflection

	readbackCapacity uint64
	arrayCapacity    uint64
	sizeOverrides    map[string]uint64
	defaultSampler   common.SamplerStagingData

	buffers     map[slotKey]*wgpu.Buffer
	bufferSizes map[slotKey]uint64
	uniforms    []*UniformBuffer
	readbacks   []*ReadbackBuffer

	textures textureResources

	// createView and release reach the driver; they are replaced in tests
	createView func(*wgpu.Texture) (*wgpu.TextureView, error)
	release    func(releasable)

	layouts    LayoutProvider
	bindGroups []GroupBinding
	released   bool
}

// BindingSet owns every GPU resource a pass's shader binds: uniform buffers with CPU staging,
// storage and readback buffers, the optional texture and sampler, and the bind groups built over them.
type BindingSet interface {
	// Label returns the debug label of the binding set.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// Reflection returns the shader reflection the set was planned from.
	//
	// Returns:
	//   - *shader.Reflection: the reflection data
	Reflection() *shader.Reflection

	// Build creates the bind groups once every slot has a resource. If a texture or sampler slot
	// is still empty, the layouts are remembered and the groups are built by the SetTexture call
	// that fills it.
	//
	// Parameters:
	//   - layouts: resolves the bind group layout for each group index
	//
	// Returns:
	//   - error: an error if a layout cannot be resolved or a bind group cannot be created
	Build(layouts LayoutProvider) error

	// Ready reports whether bind groups have been built for every group.
	//
	// Returns:
	//   - bool: true when BindGroups can be used for drawing or dispatch
	Ready() bool

	// BindGroups returns the built bind groups in group order.
	//
	// Returns:
	//   - []GroupBinding: the bind groups
	//   - error: ErrNotReady before every slot is filled, or ErrReleased after Release
	BindGroups() ([]GroupBinding, error)

	// SetUniform writes values into one field of a uniform struct and uploads the full staging array.
	//
	// Parameters:
	//   - name: the uniform's struct name or variable name
	//   - field: the field within the struct
	//   - values: the values to write, at most the field's element count
	//
	// Returns:
	//   - error: ErrUnknownUniformField, ErrFieldOverflow or ErrReleased, or the queue's write error
	SetUniform(name, field string, values []float32) error

	// HasUniform reports whether the shader declares a uniform with the given struct or variable name.
	//
	// Parameters:
	//   - name: the struct or variable name
	//
	// Returns:
	//   - bool: true if the uniform exists
	HasUniform(name string) bool

	// Uniform returns the uniform buffer for a struct or variable name.
	//
	// Parameters:
	//   - name: the struct or variable name
	//
	// Returns:
	//   - *UniformBuffer: the uniform buffer
	//   - bool: true if found
	Uniform(name string) (*UniformBuffer, bool)

	// WriteStorage uploads raw bytes to the start of a storage buffer.
	//
	// Parameters:
	//   - name: the storage binding name
	//   - data: the bytes to upload, no larger than the buffer
	//
	// Returns:
	//   - error: ErrUnknownBuffer, ErrInvalidCapacity if data does not fit, or the queue's write error
	WriteStorage(name string, data []byte) error

	// SetTexture replaces the texture and sampler, releasing any previous ones first, and rebuilds
	// every bind group.
	//
	// Parameters:
	//   - img: RGBA8 pixel data
	//   - sampler: the sampler configuration, or nil for the default (clamp-to-edge, nearest)
	//
	// Returns:
	//   - error: ErrNoTextureSlot, a validation error for img, or a device error
	SetTexture(img common.TextureStagingData, sampler *common.SamplerStagingData) error

	// Readback returns the readback buffer pair for a binding name without the readback marker.
	//
	// Parameters:
	//   - name: the readback name
	//
	// Returns:
	//   - *ReadbackBuffer: the buffer pair
	//   - bool: true if found
	Readback(name string) (*ReadbackBuffer, bool)

	// Readbacks returns every readback buffer pair in binding order.
	//
	// Returns:
	//   - []*ReadbackBuffer: the readback buffers
	Readbacks() []*ReadbackBuffer

	// Release releases every GPU resource held by the set. Later operations return ErrReleased.
	Release()
}

var _ BindingSet = &bindingSet{}

// New plans and allocates the buffers for every buffer binding in refl.
//
// Parameters:
//   - device: allocates buffers, textures, samplers and bind groups
//   - queue: uploads uniform, storage and texture data
//   - refl: the reflection of the shader the set binds
//   - opts: optional BindingSetOption functions
//
// Returns:
//   - BindingSet: the allocated binding set
//   - error: ErrInvalidCapacity for a bad capacity, or the device's allocation error
func New(device Device, queue Queue, refl *shader.Reflection, opts ...BindingSetOption) (BindingSet, error) {
	b := newBindingSet(device, queue, refl, opts...)

	plans, err := planBuffers(refl, b)
	if err != nil {
		return nil, err
	}
	if err := b.allocate(plans); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

func newBindingSet(device Device, queue Queue, refl *shader.Reflection, opts ...BindingSetOption) *bindingSet {
	b := &bindingSet{
		mu:               &sync.Mutex{},
		device:           device,
		queue:            queue,
		refl:             refl,
		readbackCapacity: DefaultReadbackCapacity,
		arrayCapacity:    DefaultArrayCapacity,
		sizeOverrides:    make(map[string]uint64),
		defaultSampler: common.SamplerStagingData{
			AddressModeU: wgpu.AddressModeClampToEdge,
			AddressModeV: wgpu.AddressModeClampToEdge,
			AddressModeW: wgpu.AddressModeClampToEdge,
			MagFilter:    wgpu.FilterModeNearest,
			MinFilter:    wgpu.FilterModeNearest,
		},
		buffers:     make(map[slotKey]*wgpu.Buffer),
		bufferSizes: make(map[slotKey]uint64),
		createView: func(t *wgpu.Texture) (*wgpu.TextureView, error) {
			return t.CreateView(nil)
		},
		release: func(r releasable) { r.Release() },
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logger.OrNop(b.logger)
	return b
}

func (b *bindingSet) allocate(plans []bufferPlan) error {
	for _, p := range plans {
		key := slotKey{p.binding.Group, p.binding.Binding}
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: fmt.Sprintf("%s %s Buffer", b.label, p.binding.Name),
			Size:  p.size,
			Usage: p.usage,
		})
		if err != nil {
			return fmt.Errorf("binding set %s: create buffer %s: %w", b.label, p.binding.Name, err)
		}
		b.buffers[key] = buf
		b.bufferSizes[key] = p.size

		switch {
		case p.binding.Access == shader.AccessUniform:
			u := newUniformBuffer(p.binding)
			u.Buffer = buf
			b.uniforms = append(b.uniforms, u)
		case p.mappedSize > 0:
			mapped, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
				Label: fmt.Sprintf("%s %s Readback Buffer", b.label, p.binding.Name),
				Size:  p.mappedSize,
				Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
			})
			if err != nil {
				return fmt.Errorf("binding set %s: create readback buffer %s: %w", b.label, p.binding.Name, err)
			}
			b.readbacks = append(b.readbacks, &ReadbackBuffer{
				Name:     p.binding.Name,
				Binding:  p.binding,
				Storage:  buf,
				Mapped:   mapped,
				Capacity: p.mappedSize,
			})
		}
		b.logger.Debug("allocated binding buffer",
			zap.String("set", b.label),
			zap.String("binding", p.binding.String()),
			zap.Uint64("size", p.size),
		)
	}
	return nil
}

func (b *bindingSet) Label() string {
	return b.label
}

func (b *bindingSet) Reflection() *shader.Reflection {
	return b.refl
}

func (b *bindingSet) Build(layouts LayoutProvider) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return ErrReleased
	}
	b.layouts = layouts
	err := b.rebuild()
	if errors.Is(err, ErrNotReady) {
		// a texture slot is still empty; SetTexture builds the groups
		return nil
	}
	return err
}

// rebuild recreates every bind group from the current resources.
func (b *bindingSet) rebuild() error {
	built, err := b.buildGroups(b.textures)
	if err != nil {
		return err
	}
	b.releaseGroups(b.bindGroups)
	b.bindGroups = built
	return nil
}

// buildGroups creates bind groups over the buffers and tex without touching the current groups.
func (b *bindingSet) buildGroups(tex textureResources) ([]GroupBinding, error) {
	if b.layouts == nil {
		return nil, ErrNotReady
	}

	groups := b.refl.Groups()
	entries := make(map[uint32][]wgpu.BindGroupEntry, len(groups))
	for _, desc := range b.refl.Bindings {
		entry := wgpu.BindGroupEntry{Binding: desc.Binding}
		switch desc.Access {
		case shader.AccessTexture:
			if tex.view == nil {
				return nil, fmt.Errorf("%w: texture %s is unset", ErrNotReady, desc.VarName)
			}
			entry.TextureView = tex.view
		case shader.AccessSampler:
			if tex.sampler == nil {
				return nil, fmt.Errorf("%w: sampler %s is unset", ErrNotReady, desc.VarName)
			}
			entry.Sampler = tex.sampler
		default:
			entry.Buffer = b.buffers[slotKey{desc.Group, desc.Binding}]
			entry.Offset = 0
			entry.Size = wgpu.WholeSize
		}
		entries[desc.Group] = append(entries[desc.Group], entry)
	}

	built := make([]GroupBinding, 0, len(groups))
	for _, g := range groups {
		layout, err := b.layouts(g)
		if err != nil {
			b.releaseGroups(built)
			return nil, fmt.Errorf("binding set %s: layout for group %d: %w", b.label, g, err)
		}
		bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s Bind Group %d", b.label, g),
			Layout:  layout,
			Entries: entries[g],
		})
		if err != nil {
			b.releaseGroups(built)
			return nil, fmt.Errorf("binding set %s: create bind group %d: %w", b.label, g, err)
		}
		built = append(built, GroupBinding{Index: g, BindGroup: bg})
	}
	return built, nil
}

func (b *bindingSet) releaseGroups(groups []GroupBinding) {
	for _, g := range groups {
		if g.BindGroup != nil {
			b.release(g.BindGroup)
		}
	}
}

func (b *bindingSet) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.released && b.bindGroups != nil
}

func (b *bindingSet) BindGroups() ([]GroupBinding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return nil, ErrReleased
	}
	if b.bindGroups == nil {
		return nil, ErrNotReady
	}
	return b.bindGroups, nil
}

func (b *bindingSet) SetUniform(name, field string, values []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return ErrReleased
	}
	u := b.uniform(name)
	if u == nil {
		return fmt.Errorf("%w: no uniform %s in %s", ErrUnknownUniformField, name, b.label)
	}
	if err := u.Stage(field, values); err != nil {
		return err
	}
	if err := b.queue.WriteBuffer(u.Buffer, 0, u.Bytes()); err != nil {
		return fmt.Errorf("binding set %s: upload %s: %w", b.label, name, err)
	}
	return nil
}

func (b *bindingSet) HasUniform(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uniform(name) != nil
}

func (b *bindingSet) Uniform(name string) (*UniformBuffer, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.uniform(name)
	return u, u != nil
}

func (b *bindingSet) uniform(name string) *UniformBuffer {
	for _, u := range b.uniforms {
		if u.Binding.StructName == name || u.Binding.VarName == name {
			return u
		}
	}
	return nil
}

func (b *bindingSet) WriteStorage(name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return ErrReleased
	}
	desc, ok := b.refl.Binding(name)
	if !ok || !desc.Access.IsBuffer() || desc.Access == shader.AccessUniform {
		return fmt.Errorf("%w: %s in %s", ErrUnknownBuffer, name, b.label)
	}
	key := slotKey{desc.Group, desc.Binding}
	if size := b.bufferSizes[key]; uint64(len(data)) > size || len(data)%4 != 0 {
		return fmt.Errorf("%w: %d bytes into %s (%d bytes)", ErrInvalidCapacity, len(data), name, size)
	}
	if err := b.queue.WriteBuffer(b.buffers[key], 0, data); err != nil {
		return fmt.Errorf("binding set %s: upload %s: %w", b.label, name, err)
	}
	return nil
}

func (b *bindingSet) SetTexture(img common.TextureStagingData, sampler *common.SamplerStagingData) error {
	if err := img.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return ErrReleased
	}
	hasSlot := false
	for _, desc := range b.refl.Bindings {
		if desc.Access == shader.AccessTexture {
			hasSlot = true
			break
		}
	}
	if !hasSlot {
		return ErrNoTextureSlot
	}

	next, err := b.createTexture(img, sampler)
	if err != nil {
		return err
	}

	// the current groups stay bound until the replacements exist
	if b.layouts != nil {
		groups, err := b.buildGroups(next)
		if err != nil {
			b.releaseTexture(next)
			return err
		}
		b.releaseGroups(b.bindGroups)
		b.bindGroups = groups
	}
	b.releaseTexture(b.textures)
	b.textures = next

	b.logger.Debug("replaced texture",
		zap.String("set", b.label),
		zap.Uint32("width", img.Width),
		zap.Uint32("height", img.Height),
	)
	return nil
}

// createTexture uploads img and creates its view and sampler. On error nothing it created survives.
func (b *bindingSet) createTexture(img common.TextureStagingData, sampler *common.SamplerStagingData) (textureResources, error) {
	var next textureResources
	fail := func(step string, err error) (textureResources, error) {
		b.releaseTexture(next)
		return textureResources{}, fmt.Errorf("binding set %s: %s: %w", b.label, step, err)
	}

	size := wgpu.Extent3D{Width: img.Width, Height: img.Height, DepthOrArrayLayers: 1}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         b.label + " Texture",
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst | wgpu.TextureUsageRenderAttachment,
		Dimension:     wgpu.TextureDimension2D,
		Size:          size,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return fail("create texture", err)
	}
	next.texture = tex

	err = b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		img.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  img.Width * 4,
			RowsPerImage: img.Height,
		},
		&size,
	)
	if err != nil {
		return fail("upload texture", err)
	}

	view, err := b.createView(tex)
	if err != nil {
		return fail("create texture view", err)
	}
	next.view = view

	s := b.defaultSampler
	if sampler != nil {
		s = *sampler
	}
	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         b.label + " Sampler",
		AddressModeU:  common.Coalesce(s.AddressModeU, wgpu.AddressModeClampToEdge),
		AddressModeV:  common.Coalesce(s.AddressModeV, wgpu.AddressModeClampToEdge),
		AddressModeW:  common.Coalesce(s.AddressModeW, wgpu.AddressModeClampToEdge),
		MagFilter:     s.MagFilter,
		MinFilter:     s.MinFilter,
		MipmapFilter:  s.MipmapFilter,
		LodMinClamp:   s.LodMinClamp,
		LodMaxClamp:   common.Coalesce(s.LodMaxClamp, 32.0),
		MaxAnisotropy: common.Coalesce(s.MaxAnisotropy, 1),
		Compare:       s.Compare,
	})
	if err != nil {
		return fail("create sampler", err)
	}
	next.sampler = samp
	return next, nil
}

func (b *bindingSet) releaseTexture(t textureResources) {
	if t.view != nil {
		b.release(t.view)
	}
	if t.texture != nil {
		b.release(t.texture)
	}
	if t.sampler != nil {
		b.release(t.sampler)
	}
}

func (b *bindingSet) Readback(name string) (*ReadbackBuffer, bool) {
	for _, r := range b.readbacks {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

func (b *bindingSet) Readbacks() []*ReadbackBuffer {
	return b.readbacks
}

func (b *bindingSet) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return
	}
	b.released = true

	b.releaseGroups(b.bindGroups)
	b.bindGroups = nil
	b.releaseTexture(b.textures)
	b.textures = textureResources{}

	for key, buf := range b.buffers {
		if buf != nil {
			b.release(buf)
		}
		delete(b.buffers, key)
	}
	for _, r := range b.readbacks {
		if r.Mapped != nil {
			b.release(r.Mapped)
			r.Mapped = nil
		}
		r.Storage = nil
	}
	for _, u := range b.uniforms {
		u.Buffer = nil
	}
}
