package pass

import (
	"context"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-terrain/common"
	"github.com/Carmen-Shannon/oxy-terrain/engine/logger"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/binding_set"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// computePass is the implementation of the ComputePass interface.
type computePass struct {
	mu         *sync.Mutex
	name       string
	gpu        GPU
	pipeline   pipeline.Pipeline
	bindings   binding_set.BindingSet
	logger     *zap.Logger
	everyFrame bool

	dispatch [3]uint32
	last     *Results

	rendered bool
	cleared  bool
}

// ComputePass dispatches a compute pipeline, either on demand through Run or every frame.
type ComputePass interface {
	Pass

	// SetDispatch sets the workgroup counts of the next dispatch.
	//
	// Parameters:
	//   - x, y, z: the workgroup counts, each at least 1
	SetDispatch(x, y, z uint32)

	// Dispatch returns the current workgroup counts.
	//
	// Returns:
	//   - [3]uint32: the workgroup counts
	Dispatch() [3]uint32

	// Run dispatches, copies every readback into its mapped buffer, submits, and waits for the mappings.
	//
	// Parameters:
	//   - ctx: checked before submitting and after each mapping completes
	//
	// Returns:
	//   - *Results: the mapped readback data
	//   - error: ErrPassNotReady, ErrPassCleared, ErrMapFailed, ErrMapDeviceLost, or the context's error
	Run(ctx context.Context) (*Results, error)

	// Results returns the results of the most recent Run, or nil.
	//
	// Returns:
	//   - *Results: the last results
	Results() *Results

	// Clear releases the pass's buffers and cached results. Later Run and Encode calls return ErrPassCleared.
	Clear()
}

var _ ComputePass = &computePass{}

// NewCompute creates a compute pass with a dispatch of {1, 1, 1} unless WithDispatch is given.
//
// Parameters:
//   - name: the unique pass name
//   - gpu: the device, queue, submit and poll functions
//   - p: a compute pipeline
//   - bindings: the binding set built against p
//   - opts: optional PassOption functions
//
// Returns:
//   - ComputePass: the pass
//   - error: error if p is not a compute pipeline
func NewCompute(name string, gpu GPU, p pipeline.Pipeline, bindings binding_set.BindingSet, opts ...PassOption) (ComputePass, error) {
	if p.Type() != pipeline.PipelineTypeCompute {
		return nil, fmt.Errorf("pass %s: pipeline %s is not a compute pipeline", name, p.PipelineKey())
	}
	cfg := newPassConfig(opts)

	c := &computePass{
		mu:         &sync.Mutex{},
		name:       name,
		gpu:        gpu,
		pipeline:   p,
		bindings:   bindings,
		logger:     logger.OrNop(cfg.logger),
		everyFrame: cfg.everyFrame,
	}
	c.setDispatch(cfg.dispatch)
	return c, nil
}

func (c *computePass) Name() string {
	return c.name
}

func (c *computePass) Kind() Kind {
	return KindCompute
}

func (c *computePass) Pipeline() pipeline.Pipeline {
	return c.pipeline
}

func (c *computePass) Bindings() binding_set.BindingSet {
	return c.bindings
}

func (c *computePass) EveryFrame() bool {
	return c.everyFrame
}

func (c *computePass) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

func (c *computePass) state() State {
	switch {
	case c.cleared:
		return StateCleared
	case !c.bindings.Ready():
		return StateCreated
	case c.rendered:
		return StateRendered
	default:
		return StateReady
	}
}

func (c *computePass) SetDispatch(x, y, z uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setDispatch([3]uint32{x, y, z})
}

func (c *computePass) setDispatch(d [3]uint32) {
	for i := range d {
		d[i] = max(d[i], 1)
	}
	c.dispatch = d
}

func (c *computePass) Dispatch() [3]uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatch
}

func (c *computePass) Results() *Results {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// checkUsable reports why the pass cannot record commands, if it cannot.
func (c *computePass) checkUsable() error {
	switch c.state() {
	case StateCleared:
		return ErrPassCleared
	case StateCreated:
		return fmt.Errorf("%w: %s", ErrPassNotReady, c.name)
	}
	return nil
}

// record begins an encoder and records the dispatch. When withReadback is set the readback
// storage buffers are copied into their mapped partners after the dispatch.
func (c *computePass) record(withReadback bool) (*wgpu.CommandBuffer, error) {
	groups, err := c.bindings.BindGroups()
	if err != nil {
		return nil, fmt.Errorf("pass %s: %w", c.name, err)
	}

	encoder, err := c.gpu.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: c.name + " Encoder"})
	if err != nil {
		return nil, fmt.Errorf("pass %s: create encoder: %w", c.name, err)
	}
	defer encoder.Release()

	cp := encoder.BeginComputePass(nil)
	cp.SetPipeline(c.pipeline.ComputePipeline())
	for _, g := range groups {
		cp.SetBindGroup(g.Index, g.BindGroup, nil)
	}
	cp.DispatchWorkgroups(c.dispatch[0], c.dispatch[1], c.dispatch[2])
	cp.End()
	cp.Release()

	if withReadback {
		for _, rb := range c.bindings.Readbacks() {
			encoder.CopyBufferToBuffer(rb.Storage, 0, rb.Mapped, 0, rb.Capacity)
		}
	}

	commands, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("pass %s: finish: %w", c.name, err)
	}
	return commands, nil
}

func (c *computePass) Encode(Targets) (*wgpu.CommandBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	commands, err := c.record(false)
	if err != nil {
		return nil, err
	}
	c.rendered = true
	return commands, nil
}

func (c *computePass) Run(ctx context.Context) (*Results, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	commands, err := c.record(true)
	if err != nil {
		return nil, err
	}
	c.gpu.Submit(commands)
	commands.Release()
	c.rendered = true

	raw := make(map[string][]float32)
	for _, rb := range c.bindings.Readbacks() {
		data, err := c.mapRead(ctx, rb)
		if err != nil {
			return nil, fmt.Errorf("pass %s: readback %s: %w", c.name, rb.Name, err)
		}
		raw[rb.Name] = data
	}

	c.last = NewResults(raw)
	c.logger.Debug("compute pass completed",
		zap.String("pass", c.name),
		zap.Uint32s("dispatch", c.dispatch[:]),
		zap.Int("readbacks", len(raw)),
	)
	return c.last, nil
}

// mapRead maps rb.Mapped, polling the device until the callback fires, and copies its contents out.
func (c *computePass) mapRead(ctx context.Context, rb *binding_set.ReadbackBuffer) ([]float32, error) {
	var (
		done   bool
		status wgpu.BufferMapAsyncStatus
	)
	err := rb.Mapped.MapAsync(wgpu.MapModeRead, 0, rb.Capacity, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		done = true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMapFailed, err)
	}

	for !done {
		c.gpu.Poll()
	}

	switch status {
	case wgpu.BufferMapAsyncStatusSuccess:
	case wgpu.BufferMapAsyncStatusDeviceLost:
		return nil, ErrMapDeviceLost
	default:
		return nil, fmt.Errorf("%w: status %d", ErrMapFailed, status)
	}
	defer rb.Mapped.Unmap()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return common.BytesToFloat32s(rb.Mapped.GetMappedRange(0, uint(rb.Capacity))), nil
}

func (c *computePass) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cleared {
		return
	}
	c.cleared = true
	c.last = nil
	c.bindings.Release()
}

func (c *computePass) Release() {
	c.Clear()
	c.pipeline.Release()
}
