package renderer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-terrain/engine/loader"
	"github.com/Carmen-Shannon/oxy-terrain/engine/logger"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/binding_set"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

var (
	// ErrCapabilityUnavailable is returned by New when no adapter or device can be acquired.
	// Callers treat it as the absence of WebGPU rather than as a crash.
	ErrCapabilityUnavailable = errors.New("renderer: webgpu unavailable")

	// ErrDeviceLost is returned by every operation after the device was lost.
	// The orchestrator cannot recover; build a new one.
	ErrDeviceLost = errors.New("renderer: device lost")

	// ErrDuplicatePass is returned when a pass is created under a name already in use.
	ErrDuplicatePass = errors.New("renderer: duplicate pass name")

	// ErrUnknownPass is returned when no pass is registered under the given name.
	ErrUnknownPass = errors.New("renderer: unknown pass")

	// ErrPassKind is returned when a render-only or compute-only operation names a pass of the other kind.
	ErrPassKind = errors.New("renderer: wrong pass kind")

	// ErrReleased is returned by every operation after Release.
	ErrReleased = errors.New("renderer: released")
)

// PassSettings describes the shader and pipeline of a pass to create.
type PassSettings struct {
	// Name is the unique name the pass is registered under.
	Name string
	// ShaderPath is loaded through the orchestrator's loader. Source is used when it is empty.
	ShaderPath string
	// Source is inline WGSL source.
	Source string
	// Pipeline holds pipeline options. The color format and sample count are always set by the orchestrator.
	Pipeline []pipeline.PipelineBuilderOption
	// Bindings holds binding set options applied after the orchestrator's defaults.
	Bindings []binding_set.BindingSetOption
}

// FrameStats are counters of the frames rendered so far.
type FrameStats struct {
	Frames      uint64
	Submissions int
	Passes      int
}

// orchestrator is the implementation of the Orchestrator interface.
type orchestrator struct {
	mu       *sync.Mutex
	backend  backend
	logger   *zap.Logger
	pp       shader.PreProcessor
	loader   loader.Loader
	textures *textureLoader
	targets  *RenderTargets
	batch    *Batcher
	layouts  func(p pipeline.Pipeline) binding_set.LayoutProvider

	passes     map[string]pass.Pass
	order      []string
	clearPass  string
	clearColor wgpu.Color

	width, height int
	frames        uint64

	sampleCount          MSAASampleCount
	presentMode          PresentMode
	forceFallbackAdapter bool
	batchCapacity        int
	readbackCapacity     uint64
	arrayCapacity        uint64
	textureWorkers       int
	validate             bool

	// lost is set from the driver's device-lost callback, which must not take mu
	lost     atomic.Bool
	released bool
}

// Orchestrator owns the device, the named passes and the per-frame schedule.
// All methods are serialized; frames never overlap.
type Orchestrator interface {
	// AddConstants registers module-scope constants prepended to every shader created afterwards.
	//
	// Parameters:
	//   - constants: constant names mapped to integer, float, bool or WGSL expression values
	//
	// Returns:
	//   - error: error if a name or value is rejected
	AddConstants(constants map[string]any) error

	// AddLibrary loads shader libraries in parallel and prepends them, in the given order, to every
	// shader created afterwards.
	//
	// Parameters:
	//   - ctx: cancels the loads
	//   - paths: the library files
	//
	// Returns:
	//   - error: error if a file cannot be read or was already added
	AddLibrary(ctx context.Context, paths ...string) error

	// AddLibrarySource prepends inline library source to every shader created afterwards.
	//
	// Parameters:
	//   - name: a unique library name
	//   - source: the WGSL source
	//
	// Returns:
	//   - error: error if the name was already added
	AddLibrarySource(name, source string) error

	// CreateRenderPass composes and reflects the shader, builds the render pipeline and bindings,
	// and registers the pass. The first render pass created clears the frame; all others load.
	//
	// Parameters:
	//   - ctx: cancels shader loading
	//   - settings: the pass name, shader and pipeline options
	//   - opts: pass options
	//
	// Returns:
	//   - pass.RenderPass: the registered pass
	//   - error: ErrDuplicatePass, a *shader.ShaderParseError, or a device error
	CreateRenderPass(ctx context.Context, settings PassSettings, opts ...pass.PassOption) (pass.RenderPass, error)

	// CreateComputePass composes and reflects the shader, builds the compute pipeline and bindings,
	// and registers the pass.
	//
	// Parameters:
	//   - ctx: cancels shader loading
	//   - settings: the pass name, shader and pipeline options
	//   - opts: pass options, such as WithDispatch and WithEveryFrame
	//
	// Returns:
	//   - pass.ComputePass: the registered pass
	//   - error: ErrDuplicatePass, a *shader.ShaderParseError, or a device error
	CreateComputePass(ctx context.Context, settings PassSettings, opts ...pass.PassOption) (pass.ComputePass, error)

	// Pass returns the pass registered under name.
	//
	// Parameters:
	//   - name: the pass name
	//
	// Returns:
	//   - pass.Pass: the pass
	//   - error: ErrUnknownPass
	Pass(name string) (pass.Pass, error)

	// Passes returns the registered pass names in registration order, which is frame order.
	//
	// Returns:
	//   - []string: the pass names
	Passes() []string

	// SetUniform writes values into a uniform field of one pass and uploads the uniform.
	//
	// Parameters:
	//   - passName: the pass name
	//   - structName: the uniform's struct or variable name
	//   - field: the struct member
	//   - values: the values to write at the member's offset
	//
	// Returns:
	//   - error: ErrUnknownPass or binding_set.ErrUnknownUniformField
	SetUniform(passName, structName, field string, values []float32) error

	// MustSetUniform is SetUniform that panics on error.
	MustSetUniform(passName, structName, field string, values []float32)

	// SetGlobalUniform writes values into every pass that declares the uniform struct.
	//
	// Parameters:
	//   - structName: the uniform's struct name
	//   - field: the struct member
	//   - values: the values to write
	//
	// Returns:
	//   - error: binding_set.ErrUnknownUniformField if no pass declares the struct
	SetGlobalUniform(structName, field string, values []float32) error

	// SetVertexBuffer replaces the vertex data of a render pass.
	//
	// Parameters:
	//   - passName: the render pass name
	//   - data: the vertex bytes
	//
	// Returns:
	//   - error: ErrUnknownPass, ErrPassKind, or the pass's error
	SetVertexBuffer(passName string, data []byte) error

	// AutoVertexCount derives a render pass's vertex count from its vertex data.
	//
	// Parameters:
	//   - passName: the render pass name
	//
	// Returns:
	//   - error: ErrUnknownPass, ErrPassKind, or pass.ErrVertexStride
	AutoVertexCount(passName string) error

	// SetDrawCounts sets a render pass's vertex and instance counts. nil leaves a count unchanged.
	//
	// Parameters:
	//   - passName: the render pass name
	//   - vertex: the vertex count, or nil
	//   - instance: the instance count, or nil
	//
	// Returns:
	//   - error: ErrUnknownPass or ErrPassKind
	SetDrawCounts(passName string, vertex, instance *uint32) error

	// SetDispatch sets a compute pass's workgroup counts.
	//
	// Parameters:
	//   - passName: the compute pass name
	//   - x, y, z: the workgroup counts
	//
	// Returns:
	//   - error: ErrUnknownPass or ErrPassKind
	SetDispatch(passName string, x, y, z uint32) error

	// SetTexture decodes src on the worker pool and swaps it into the pass's texture slot at the
	// start of the next frame.
	//
	// Parameters:
	//   - passName: the pass name
	//   - src: the image and optional sampler
	//
	// Returns:
	//   - *TextureRequest: completes once the texture is bound, or with the failure
	SetTexture(passName string, src TextureSource) *TextureRequest

	// RunCompute dispatches a compute pass and waits for its readbacks.
	//
	// Parameters:
	//   - ctx: checked before submitting and after each mapping
	//   - passName: the compute pass name
	//
	// Returns:
	//   - *pass.Results: the readback results
	//   - error: ErrUnknownPass, ErrPassKind, ErrDeviceLost, or the pass's error
	RunCompute(ctx context.Context, passName string) (*pass.Results, error)

	// ClearPass releases the buffers of a compute pass. The pass stays registered in StateCleared.
	//
	// Parameters:
	//   - passName: the compute pass name
	//
	// Returns:
	//   - error: ErrUnknownPass or ErrPassKind
	ClearPass(passName string) error

	// SetClearColor sets the color the clearing pass clears to.
	//
	// Parameters:
	//   - color: the clear color
	SetClearColor(color wgpu.Color)

	// Resize reconfigures the surface. Render targets follow on the next frame.
	//
	// Parameters:
	//   - width, height: the new surface size; zero pauses rendering
	//
	// Returns:
	//   - error: ErrDeviceLost or a surface error
	Resize(width, height int) error

	// SetPresentMode changes the present mode and reconfigures the surface.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	//
	// Returns:
	//   - error: ErrDeviceLost or a surface error
	SetPresentMode(mode PresentMode) error

	// RenderFrame applies finished texture loads, encodes every scheduled pass in registration
	// order into batched submissions, and presents.
	//
	// Returns:
	//   - error: ErrDeviceLost, or the first acquire, target or encode error
	RenderFrame() error

	// DeviceLost marks the device lost. Every later operation returns ErrDeviceLost.
	//
	// Parameters:
	//   - reason: logged with the loss
	DeviceLost(reason string)

	// Lost reports whether the device was lost.
	Lost() bool

	// Stats returns frame counters.
	Stats() FrameStats

	// Release releases every pass, the render targets and the device.
	Release()
}

var _ Orchestrator = &orchestrator{}

// New creates an Orchestrator rendering to the surface of src.
//
// Parameters:
//   - src: the window to create the surface for
//   - options: variadic list of RendererBuilderOption functions
//
// Returns:
//   - Orchestrator: the orchestrator, with its surface configured to src's size
//   - error: ErrCapabilityUnavailable when no adapter or device exists
func New(src SurfaceSource, options ...RendererBuilderOption) (Orchestrator, error) {
	o := newOrchestrator(options...)

	b, err := newWGPURendererBackend(src.SurfaceDescriptor(), o.forceFallbackAdapter, o.presentMode, o.onDeviceLost)
	if err != nil {
		return nil, err
	}
	o.attach(b)

	if err := o.Resize(src.Width(), src.Height()); err != nil {
		o.Release()
		return nil, err
	}
	o.logger.Info("renderer ready",
		zap.Int("width", src.Width()),
		zap.Int("height", src.Height()),
		zap.Uint32("samples", uint32(o.sampleCount)),
	)
	return o, nil
}

func newOrchestrator(options ...RendererBuilderOption) *orchestrator {
	o := &orchestrator{
		mu:               &sync.Mutex{},
		pp:               shader.NewPreProcessor(),
		passes:           make(map[string]pass.Pass),
		clearColor:       wgpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1.0},
		sampleCount:      MSAA4x,
		presentMode:      PresentModeUncapped,
		batchCapacity:    DefaultBatchCapacity,
		readbackCapacity: binding_set.DefaultReadbackCapacity,
		arrayCapacity:    binding_set.DefaultArrayCapacity,
		textureWorkers:   2,
		layouts: func(p pipeline.Pipeline) binding_set.LayoutProvider {
			return p.BindGroupLayout
		},
	}
	for _, opt := range options {
		opt(o)
	}
	o.logger = logger.OrNop(o.logger)
	if o.loader == nil {
		o.loader = loader.NewLoader(loader.WithLogger(o.logger))
	}
	o.textures = newTextureLoader(o.textureWorkers, o.logger)
	return o
}

// attach binds the orchestrator to its backend.
func (o *orchestrator) attach(b backend) {
	o.backend = b
	o.targets = newRenderTargets(b.AllocateTargets)
	o.batch = NewBatcher(o.batchCapacity, o.submit)
}

// submit submits a batch and releases its command buffers.
func (o *orchestrator) submit(commands ...*wgpu.CommandBuffer) {
	o.backend.Submit(commands...)
	for _, c := range commands {
		if c != nil {
			c.Release()
		}
	}
}

// usable reports why the orchestrator cannot take work, if it cannot.
func (o *orchestrator) usable() error {
	switch {
	case o.released:
		return ErrReleased
	case o.lost.Load():
		return ErrDeviceLost
	}
	return nil
}

func (o *orchestrator) gpu() pass.GPU {
	return pass.GPU{
		Device: o.backend.Device(),
		Queue:  o.backend.Queue(),
		Submit: o.backend.Submit,
		Poll:   o.backend.Poll,
	}
}

func (o *orchestrator) AddConstants(constants map[string]any) error {
	names := make([]string, 0, len(constants))
	for name := range constants {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := o.pp.AddConstant(name, constants[name]); err != nil {
			return err
		}
	}
	return nil
}

func (o *orchestrator) AddLibrary(ctx context.Context, paths ...string) error {
	sources, err := o.loader.Sources(ctx, paths...)
	if err != nil {
		return err
	}
	for i, path := range paths {
		if err := o.pp.AddLibrary(path, sources[i]); err != nil {
			return err
		}
	}
	return nil
}

func (o *orchestrator) AddLibrarySource(name, source string) error {
	return o.pp.AddLibrary(name, source)
}

// compile composes and reflects the shader of settings.
func (o *orchestrator) compile(ctx context.Context, settings PassSettings) (shader.Shader, error) {
	opts := []shader.ShaderBuilderOption{
		shader.WithPreProcessor(o.pp),
		shader.WithValidation(o.validate),
		shader.WithLoader(o.loader),
		shader.WithLogger(o.logger),
	}
	if settings.ShaderPath != "" {
		return shader.LoadShader(ctx, settings.Name, settings.ShaderPath, opts...)
	}
	return shader.NewShader(settings.Name, settings.Source, opts...)
}

// prepare validates the name and compiles the shader of a new pass.
func (o *orchestrator) prepare(ctx context.Context, settings PassSettings) (shader.Shader, error) {
	if err := o.usable(); err != nil {
		return nil, err
	}
	if settings.Name == "" {
		return nil, errors.New("renderer: pass name is empty")
	}
	if _, exists := o.passes[settings.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePass, settings.Name)
	}
	return o.compile(ctx, settings)
}

// bind allocates and builds the binding set of a new pass against p.
func (o *orchestrator) bind(settings PassSettings, s shader.Shader, p pipeline.Pipeline) (binding_set.BindingSet, error) {
	opts := []binding_set.BindingSetOption{
		binding_set.WithLabel(settings.Name),
		binding_set.WithReadbackCapacity(o.readbackCapacity),
		binding_set.WithArrayCapacity(o.arrayCapacity),
		binding_set.WithLogger(o.logger),
	}
	opts = append(opts, settings.Bindings...)

	b, err := binding_set.New(o.backend.Device(), o.backend.Queue(), s.Reflection(), opts...)
	if err != nil {
		return nil, err
	}
	if err := b.Build(o.layouts(p)); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

func (o *orchestrator) register(p pass.Pass) {
	o.passes[p.Name()] = p
	o.order = append(o.order, p.Name())
	o.logger.Info("pass created",
		zap.String("pass", p.Name()),
		zap.Int("order", len(o.order)-1),
		zap.Stringer("state", p.State()),
	)
}

func (o *orchestrator) CreateRenderPass(ctx context.Context, settings PassSettings, opts ...pass.PassOption) (pass.RenderPass, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, err := o.prepare(ctx, settings)
	if err != nil {
		return nil, err
	}

	popts := []pipeline.PipelineBuilderOption{pipeline.WithLabel(settings.Name)}
	popts = append(popts, settings.Pipeline...)
	popts = append(popts,
		pipeline.WithColorFormat(o.backend.SurfaceFormat()),
		pipeline.WithSampleCount(uint32(o.sampleCount)),
		pipeline.WithLogger(o.logger),
	)
	p, err := pipeline.NewRender(o.backend.Device(), s, popts...)
	if err != nil {
		return nil, err
	}

	b, err := o.bind(settings, s, p)
	if err != nil {
		p.Release()
		return nil, err
	}

	rp, err := pass.NewRender(settings.Name, o.gpu(), p, b, append([]pass.PassOption{pass.WithLogger(o.logger)}, opts...)...)
	if err != nil {
		b.Release()
		p.Release()
		return nil, err
	}

	first := o.clearPass == ""
	if first {
		o.clearPass = settings.Name
	}
	rp.SetClear(first, o.clearColor)

	o.register(rp)
	return rp, nil
}

func (o *orchestrator) CreateComputePass(ctx context.Context, settings PassSettings, opts ...pass.PassOption) (pass.ComputePass, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, err := o.prepare(ctx, settings)
	if err != nil {
		return nil, err
	}

	popts := []pipeline.PipelineBuilderOption{pipeline.WithLabel(settings.Name)}
	popts = append(popts, settings.Pipeline...)
	popts = append(popts, pipeline.WithLogger(o.logger))
	p, err := pipeline.NewCompute(o.backend.Device(), s, popts...)
	if err != nil {
		return nil, err
	}

	b, err := o.bind(settings, s, p)
	if err != nil {
		p.Release()
		return nil, err
	}

	cp, err := pass.NewCompute(settings.Name, o.gpu(), p, b, append([]pass.PassOption{pass.WithLogger(o.logger)}, opts...)...)
	if err != nil {
		b.Release()
		p.Release()
		return nil, err
	}

	o.register(cp)
	return cp, nil
}

// lookup returns a registered pass. The caller holds o.mu.
func (o *orchestrator) lookup(name string) (pass.Pass, error) {
	if err := o.usable(); err != nil {
		return nil, err
	}
	p, ok := o.passes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPass, name)
	}
	return p, nil
}

func (o *orchestrator) renderPass(name string) (pass.RenderPass, error) {
	p, err := o.lookup(name)
	if err != nil {
		return nil, err
	}
	rp, ok := p.(pass.RenderPass)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a render pass", ErrPassKind, name)
	}
	return rp, nil
}

func (o *orchestrator) computePass(name string) (pass.ComputePass, error) {
	p, err := o.lookup(name)
	if err != nil {
		return nil, err
	}
	cp, ok := p.(pass.ComputePass)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a compute pass", ErrPassKind, name)
	}
	return cp, nil
}

func (o *orchestrator) Pass(name string) (pass.Pass, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lookup(name)
}

func (o *orchestrator) Passes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.order...)
}

func (o *orchestrator) SetUniform(passName, structName, field string, values []float32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, err := o.lookup(passName)
	if err != nil {
		return err
	}
	if err := p.Bindings().SetUniform(structName, field, values); err != nil {
		return fmt.Errorf("pass %s: %w", passName, err)
	}
	return nil
}

func (o *orchestrator) MustSetUniform(passName, structName, field string, values []float32) {
	if err := o.SetUniform(passName, structName, field, values); err != nil {
		panic(err)
	}
}

func (o *orchestrator) SetGlobalUniform(structName, field string, values []float32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.usable(); err != nil {
		return err
	}
	// every declaring pass must accept the write before any is written
	var targets []string
	for _, name := range o.order {
		u, ok := o.passes[name].Bindings().Uniform(structName)
		if !ok {
			continue
		}
		if err := u.Check(field, values); err != nil {
			return fmt.Errorf("pass %s: %w", name, err)
		}
		targets = append(targets, name)
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: no pass declares uniform %s", binding_set.ErrUnknownUniformField, structName)
	}
	for _, name := range targets {
		if err := o.passes[name].Bindings().SetUniform(structName, field, values); err != nil {
			return fmt.Errorf("pass %s: %w", name, err)
		}
	}
	return nil
}

func (o *orchestrator) SetVertexBuffer(passName string, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rp, err := o.renderPass(passName)
	if err != nil {
		return err
	}
	return rp.SetVertexBuffer(data)
}

func (o *orchestrator) AutoVertexCount(passName string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rp, err := o.renderPass(passName)
	if err != nil {
		return err
	}
	return rp.AutoVertexCount()
}

func (o *orchestrator) SetDrawCounts(passName string, vertex, instance *uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rp, err := o.renderPass(passName)
	if err != nil {
		return err
	}
	rp.SetDrawCounts(vertex, instance)
	return nil
}

func (o *orchestrator) SetDispatch(passName string, x, y, z uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	cp, err := o.computePass(passName)
	if err != nil {
		return err
	}
	cp.SetDispatch(x, y, z)
	return nil
}

func (o *orchestrator) SetTexture(passName string, src TextureSource) *TextureRequest {
	o.mu.Lock()
	_, err := o.lookup(passName)
	o.mu.Unlock()
	if err != nil {
		return failedTextureRequest(passName, err)
	}
	return o.textures.submit(passName, src)
}

// applyTextures uploads every decoded texture and rebuilds the owning pass's bind groups.
// The caller holds o.mu.
func (o *orchestrator) applyTextures() {
	for _, t := range o.textures.drain() {
		p, ok := o.passes[t.request.Pass()]
		if !ok {
			t.request.complete(fmt.Errorf("%w: %s", ErrUnknownPass, t.request.Pass()))
			continue
		}
		err := p.Bindings().SetTexture(t.image, t.sampler)
		if err != nil {
			o.logger.Warn("texture upload failed", zap.String("pass", p.Name()), zap.Error(err))
		} else {
			o.logger.Debug("texture applied", zap.String("pass", p.Name()), zap.Stringer("state", p.State()))
		}
		t.request.complete(err)
	}
}

func (o *orchestrator) RunCompute(ctx context.Context, passName string) (*pass.Results, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cp, err := o.computePass(passName)
	if err != nil {
		return nil, err
	}
	results, err := cp.Run(ctx)
	if errors.Is(err, pass.ErrMapDeviceLost) {
		o.markLost(err.Error())
		return nil, fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}
	return results, err
}

func (o *orchestrator) ClearPass(passName string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	cp, err := o.computePass(passName)
	if err != nil {
		return err
	}
	cp.Clear()
	return nil
}

func (o *orchestrator) SetClearColor(color wgpu.Color) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.clearColor = color
	if p, ok := o.passes[o.clearPass].(pass.RenderPass); ok {
		p.SetClear(true, color)
	}
}

func (o *orchestrator) Resize(width, height int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.usable(); err != nil {
		return err
	}
	o.width, o.height = width, height
	if width <= 0 || height <= 0 {
		return nil
	}
	return o.backend.ConfigureSurface(width, height)
}

func (o *orchestrator) SetPresentMode(mode PresentMode) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.usable(); err != nil {
		return err
	}
	o.presentMode = mode
	o.backend.SetPresentMode(mode)
	if o.width <= 0 || o.height <= 0 {
		return nil
	}
	return o.backend.ConfigureSurface(o.width, o.height)
}

// schedule returns the passes encoded this frame and the index among them of the last render pass.
func (o *orchestrator) schedule() ([]pass.Pass, int) {
	scheduled := make([]pass.Pass, 0, len(o.order))
	lastRender := -1
	for _, name := range o.order {
		p := o.passes[name]
		if !p.EveryFrame() {
			continue
		}
		switch p.State() {
		case pass.StateReady, pass.StateRendered:
		default:
			continue
		}
		if p.Kind() == pass.KindRender {
			lastRender = len(scheduled)
		}
		scheduled = append(scheduled, p)
	}
	return scheduled, lastRender
}

// frameTargets assigns each scheduled pass its attachments. When the pass that owns the clear
// sits out the frame, the first scheduled render pass clears in its place.
// Caller must hold the mutex.
func (o *orchestrator) frameTargets(scheduled []pass.Pass, lastRender int, surface, msaa, depth *wgpu.TextureView) []pass.Targets {
	ownerScheduled := false
	for _, p := range scheduled {
		if p.Name() == o.clearPass {
			ownerScheduled = true
			break
		}
	}

	targets := make([]pass.Targets, len(scheduled))
	needClear := !ownerScheduled
	for i, p := range scheduled {
		t := pass.Targets{Color: surface, Depth: depth}
		if msaa != nil {
			t.Color = msaa
			if i == lastRender {
				t.Resolve = surface
			}
		}
		if needClear && p.Kind() == pass.KindRender {
			color := o.clearColor
			t.Clear = &color
			needClear = false
		}
		targets[i] = t
	}
	return targets
}

func (o *orchestrator) RenderFrame() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.usable(); err != nil {
		return err
	}
	o.applyTextures()
	if o.width <= 0 || o.height <= 0 {
		return nil
	}

	frame, err := o.backend.AcquireFrame()
	if err != nil {
		return fmt.Errorf("acquire surface texture: %w", err)
	}

	spec := TargetSpec{
		Width:       uint32(o.width),
		Height:      uint32(o.height),
		SampleCount: uint32(o.sampleCount),
		Format:      o.backend.SurfaceFormat(),
	}
	changed, err := o.targets.Ensure(spec)
	if err != nil {
		frame.release()
		return err
	}
	if changed {
		o.logger.Debug("render targets recreated",
			zap.Uint32("width", spec.Width),
			zap.Uint32("height", spec.Height),
			zap.Uint32("samples", spec.SampleCount),
		)
	}
	msaa, depth := o.targets.Views()

	scheduled, lastRender := o.schedule()
	targets := o.frameTargets(scheduled, lastRender, frame.view, msaa, depth)
	for i, p := range scheduled {
		commands, err := p.Encode(targets[i])
		if err != nil {
			o.batch.Flush()
			frame.release()
			return fmt.Errorf("pass %s: %w", p.Name(), err)
		}
		o.batch.Push(commands)
	}
	o.batch.Flush()
	o.backend.Present(frame)
	o.frames++
	return nil
}

func (o *orchestrator) markLost(reason string) {
	if o.lost.Swap(true) {
		return
	}
	o.logger.Error("device lost", zap.String("reason", reason))
}

// onDeviceLost is the device's lost callback. It runs on the driver's thread.
func (o *orchestrator) onDeviceLost(reason wgpu.DeviceLostReason, message string) {
	if reason == wgpu.DeviceLostReasonDestroyed {
		// Release destroyed it
		return
	}
	o.markLost(message)
}

func (o *orchestrator) DeviceLost(reason string) {
	o.markLost(reason)
}

func (o *orchestrator) Lost() bool {
	return o.lost.Load()
}

func (o *orchestrator) Stats() FrameStats {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats := FrameStats{Frames: o.frames, Passes: len(o.order)}
	if o.batch != nil {
		stats.Submissions = o.batch.Submissions()
	}
	return stats
}

func (o *orchestrator) Release() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.released {
		return
	}
	o.released = true
	o.textures.close()

	for i := len(o.order) - 1; i >= 0; i-- {
		o.passes[o.order[i]].Release()
	}
	o.passes = map[string]pass.Pass{}
	o.order = nil

	if o.targets != nil {
		o.targets.Release()
	}
	if o.backend != nil {
		o.backend.Release()
	}
	o.logger.Info("renderer released", zap.Uint64("frames", o.frames))
}
