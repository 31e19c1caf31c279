package pass

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-terrain/engine/logger"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/binding_set"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// renderPass is the implementation of the RenderPass interface.
type renderPass struct {
	mu       *sync.Mutex
	name     string
	gpu      GPU
	pipeline pipeline.Pipeline
	bindings binding_set.BindingSet
	logger   *zap.Logger

	clear      bool
	clearColor wgpu.Color

	vertexBuffer   *wgpu.Buffer
	vertexCapacity uint64
	vertexBytes    uint64

	vertexCount   uint32
	instanceCount uint32

	rendered bool
	cleared  bool
}

// RenderPass draws with a render pipeline into the frame's attachments.
type RenderPass interface {
	Pass

	// SetVertexBuffer uploads vertex data for buffer slot 0, replacing the previous data.
	// The device buffer is reused while it is large enough.
	//
	// Parameters:
	//   - data: the vertex bytes
	//
	// Returns:
	//   - error: ErrVertexStride if the pipeline declares no vertex buffer, ErrPassCleared, or a device error
	SetVertexBuffer(data []byte) error

	// AutoVertexCount derives the vertex count from the uploaded bytes and the pipeline's stride.
	//
	// Returns:
	//   - error: ErrVertexStride if the byte length is not a multiple of the stride or the pipeline has no stride
	AutoVertexCount() error

	// SetDrawCounts sets the vertex and instance counts. A nil pointer leaves that count unchanged.
	//
	// Parameters:
	//   - vertex: the vertex count, or nil
	//   - instance: the instance count, or nil
	SetDrawCounts(vertex, instance *uint32)

	// DrawCounts returns the vertex and instance counts the next Encode draws with.
	//
	// Returns:
	//   - uint32: the vertex count
	//   - uint32: the instance count
	DrawCounts() (uint32, uint32)

	// SetClear sets whether the pass clears its attachments rather than loading them.
	//
	// Parameters:
	//   - clear: true to clear
	//   - color: the clear color
	SetClear(clear bool, color wgpu.Color)

	// Clears reports whether the pass clears its attachments.
	//
	// Returns:
	//   - bool: true if the pass clears
	Clears() bool
}

var _ RenderPass = &renderPass{}

// NewRender creates a render pass. The pass loads its attachments unless WithClear is given and draws
// one instance by default.
//
// Parameters:
//   - name: the unique pass name
//   - gpu: the device and queue
//   - p: a render pipeline
//   - bindings: the binding set built against p
//   - opts: optional PassOption functions
//
// Returns:
//   - RenderPass: the pass, in StateCreated until bind groups and a draw source exist
//   - error: error if p is not a render pipeline
func NewRender(name string, gpu GPU, p pipeline.Pipeline, bindings binding_set.BindingSet, opts ...PassOption) (RenderPass, error) {
	if p.Type() != pipeline.PipelineTypeRender {
		return nil, fmt.Errorf("pass %s: pipeline %s is not a render pipeline", name, p.PipelineKey())
	}
	cfg := newPassConfig(opts)

	return &renderPass{
		mu:            &sync.Mutex{},
		name:          name,
		gpu:           gpu,
		pipeline:      p,
		bindings:      bindings,
		logger:        logger.OrNop(cfg.logger),
		clear:         cfg.clear,
		clearColor:    cfg.clearColor,
		instanceCount: 1,
	}, nil
}

func (r *renderPass) Name() string {
	return r.name
}

func (r *renderPass) Kind() Kind {
	return KindRender
}

func (r *renderPass) Pipeline() pipeline.Pipeline {
	return r.pipeline
}

func (r *renderPass) Bindings() binding_set.BindingSet {
	return r.bindings
}

func (r *renderPass) EveryFrame() bool {
	return true
}

func (r *renderPass) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state()
}

func (r *renderPass) state() State {
	switch {
	case r.cleared:
		return StateCleared
	case !r.ready():
		return StateCreated
	case r.rendered:
		return StateRendered
	default:
		return StateReady
	}
}

// ready requires built bind groups, a vertex count, and a vertex buffer when the pipeline reads one.
func (r *renderPass) ready() bool {
	if !r.bindings.Ready() || r.vertexCount == 0 || r.instanceCount == 0 {
		return false
	}
	if r.pipeline.VertexStride() > 0 && r.vertexBuffer == nil {
		return false
	}
	return true
}

func (r *renderPass) SetVertexBuffer(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cleared {
		return ErrPassCleared
	}
	if r.pipeline.VertexStride() == 0 {
		return fmt.Errorf("%w: pipeline %s declares no vertex buffer", ErrVertexStride, r.pipeline.PipelineKey())
	}

	// buffer writes must be 4-byte aligned
	padded := data
	if rem := len(data) % 4; rem != 0 {
		padded = make([]byte, len(data)+4-rem)
		copy(padded, data)
	}
	size := uint64(len(padded))
	if size == 0 {
		r.vertexBytes = 0
		return nil
	}

	if r.vertexBuffer == nil || r.vertexCapacity < size {
		buf, err := r.gpu.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: r.name + " Vertex Buffer",
			Size:  size,
			Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("pass %s: create vertex buffer: %w", r.name, err)
		}
		if r.vertexBuffer != nil {
			r.vertexBuffer.Release()
		}
		r.vertexBuffer = buf
		r.vertexCapacity = size
	}
	if err := r.gpu.Queue.WriteBuffer(r.vertexBuffer, 0, padded); err != nil {
		return fmt.Errorf("pass %s: upload vertex data: %w", r.name, err)
	}
	r.vertexBytes = uint64(len(data))

	r.logger.Debug("uploaded vertex data",
		zap.String("pass", r.name),
		zap.Uint64("bytes", r.vertexBytes),
		zap.Uint64("capacity", r.vertexCapacity),
	)
	return nil
}

func (r *renderPass) AutoVertexCount() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	count, err := vertexCount(r.vertexBytes, r.pipeline.VertexStride())
	if err != nil {
		return fmt.Errorf("pass %s: %w", r.name, err)
	}
	r.vertexCount = count
	return nil
}

// vertexCount is bytes/stride when bytes is a whole number of strides.
func vertexCount(bytes, stride uint64) (uint32, error) {
	if stride == 0 {
		return 0, fmt.Errorf("%w: pipeline has no vertex stride", ErrVertexStride)
	}
	if bytes%stride != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrVertexStride, bytes, stride)
	}
	return uint32(bytes / stride), nil
}

func (r *renderPass) SetDrawCounts(vertex, instance *uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if vertex != nil {
		r.vertexCount = *vertex
	}
	if instance != nil {
		r.instanceCount = *instance
	}
}

func (r *renderPass) DrawCounts() (uint32, uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vertexCount, r.instanceCount
}

func (r *renderPass) SetClear(clear bool, color wgpu.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clear = clear
	r.clearColor = color
}

func (r *renderPass) Clears() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clear
}

// descriptor builds the attachment ops for this pass over the frame targets.
func (r *renderPass) descriptor(targets Targets) *wgpu.RenderPassDescriptor {
	loadOp := wgpu.LoadOpLoad
	clearColor := r.clearColor
	if r.clear {
		loadOp = wgpu.LoadOpClear
	}
	if targets.Clear != nil {
		loadOp = wgpu.LoadOpClear
		clearColor = *targets.Clear
	}
	return &wgpu.RenderPassDescriptor{
		Label: r.name + " Render Pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:          targets.Color,
				ResolveTarget: targets.Resolve,
				LoadOp:        loadOp,
				StoreOp:       wgpu.StoreOpStore,
				ClearValue:    clearColor,
			},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            targets.Depth,
			DepthLoadOp:     loadOp,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	}
}

func (r *renderPass) Encode(targets Targets) (*wgpu.CommandBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state() {
	case StateCleared:
		return nil, ErrPassCleared
	case StateCreated:
		return nil, fmt.Errorf("%w: %s", ErrPassNotReady, r.name)
	}
	groups, err := r.bindings.BindGroups()
	if err != nil {
		return nil, fmt.Errorf("pass %s: %w", r.name, err)
	}

	encoder, err := r.gpu.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: r.name + " Encoder"})
	if err != nil {
		return nil, fmt.Errorf("pass %s: create encoder: %w", r.name, err)
	}
	defer encoder.Release()

	rp := encoder.BeginRenderPass(r.descriptor(targets))
	rp.SetPipeline(r.pipeline.RenderPipeline())
	for _, g := range groups {
		rp.SetBindGroup(g.Index, g.BindGroup, nil)
	}
	if r.vertexBuffer != nil {
		rp.SetVertexBuffer(0, r.vertexBuffer, 0, wgpu.WholeSize)
	}
	rp.Draw(r.vertexCount, r.instanceCount, 0, 0)
	rp.End()
	rp.Release()

	commands, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("pass %s: finish: %w", r.name, err)
	}
	r.rendered = true
	return commands, nil
}

func (r *renderPass) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cleared {
		return
	}
	r.cleared = true
	if r.vertexBuffer != nil {
		r.vertexBuffer.Release()
		r.vertexBuffer = nil
	}
	r.bindings.Release()
	r.pipeline.Release()
}
