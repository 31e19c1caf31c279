package renderer

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// wgpuRendererBackend is the wgpu-native implementation of backend.
type wgpuRendererBackend struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode
}

var _ backend = &wgpuRendererBackend{}

// newWGPURendererBackend creates the instance, surface, adapter, device and queue.
// The calling goroutine is locked to its OS thread, which must be the window's thread.
// onLost is handed to the device and may run on any thread.
func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, presentMode PresentMode, onLost wgpu.DeviceLostCallback) (*wgpuRendererBackend, error) {
	runtime.LockOSThread()
	b := &wgpuRendererBackend{
		mu:       &sync.Mutex{},
		instance: wgpu.CreateInstance(nil),
	}
	b.SetPresentMode(presentMode)
	b.surface = b.instance.CreateSurface(surfaceDescriptor)

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil || a == nil {
		b.Release()
		return nil, fmt.Errorf("%w: no adapter: %v", ErrCapabilityUnavailable, err)
	}
	b.adapter = a

	limits := wgpu.DefaultLimits()
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
		DeviceLostCallback: onLost,
	})
	if err != nil || d == nil {
		b.Release()
		return nil, fmt.Errorf("%w: no device: %v", ErrCapabilityUnavailable, err)
	}
	b.device = d
	b.queue = d.GetQueue()
	return b, nil
}

func (b *wgpuRendererBackend) Device() Device {
	return b.device
}

func (b *wgpuRendererBackend) Queue() Queue {
	return b.queue
}

func (b *wgpuRendererBackend) SurfaceFormat() wgpu.TextureFormat {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surfaceFormat
}

func (b *wgpuRendererBackend) ConfigureSurface(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 || len(capabilities.AlphaModes) == 0 {
		return fmt.Errorf("%w: surface reports no formats", ErrCapabilityUnavailable)
	}
	b.surfaceFormat = capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	return nil
}

func (b *wgpuRendererBackend) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

func (b *wgpuRendererBackend) AcquireFrame() (*surfaceFrame, error) {
	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return nil, err
	}

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return nil, err
	}

	return &surfaceFrame{
		view: view,
		release: func() {
			view.Release()
			surfaceTexture.Release()
		},
	}, nil
}

func (b *wgpuRendererBackend) Present(frame *surfaceFrame) {
	if frame == nil {
		return
	}
	b.surface.Present()
	frame.release()
}

func (b *wgpuRendererBackend) AllocateTargets(spec TargetSpec) (*targetSet, error) {
	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	create := func(label string, format wgpu.TextureFormat) (*wgpu.TextureView, error) {
		tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
			Label: label,
			Size: wgpu.Extent3D{
				Width:              spec.Width,
				Height:             spec.Height,
				DepthOrArrayLayers: 1,
			},
			MipLevelCount: 1,
			SampleCount:   spec.SampleCount,
			Dimension:     wgpu.TextureDimension2D,
			Format:        format,
			Usage:         wgpu.TextureUsageRenderAttachment,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", label, err)
		}
		view, err := tex.CreateView(nil)
		if err != nil {
			tex.Release()
			return nil, fmt.Errorf("failed to create %s view: %w", label, err)
		}
		releases = append(releases, func() {
			view.Release()
			tex.Destroy()
			tex.Release()
		})
		return view, nil
	}

	set := &targetSet{release: releaseAll}
	var err error
	if spec.SampleCount > 1 {
		// the MSAA texture is the color attachment; the swapchain view is the resolve target
		if set.msaa, err = create("MSAA Texture", spec.Format); err != nil {
			return nil, err
		}
	}
	// depth sample count must match the color attachment
	if set.depth, err = create("Depth Texture", wgpu.TextureFormatDepth24Plus); err != nil {
		releaseAll()
		return nil, err
	}
	return set, nil
}

func (b *wgpuRendererBackend) Submit(commands ...*wgpu.CommandBuffer) {
	b.queue.Submit(commands...)
}

func (b *wgpuRendererBackend) Poll() {
	b.device.Poll(true, nil)
}

func (b *wgpuRendererBackend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
