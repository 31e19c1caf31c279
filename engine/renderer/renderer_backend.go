package renderer

import (
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/binding_set"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// WebGPU guarantees support for 1 (off) and 4.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4x multisample anti-aliasing. This is the default.
	MSAA4x MSAASampleCount = 4
)

// Device is everything the orchestrator's pipelines, binding sets and passes create through.
// *wgpu.Device satisfies it.
type Device interface {
	pipeline.Device
	binding_set.Device
	pass.Device
}

// Queue is everything the orchestrator's binding sets and passes upload through.
// *wgpu.Queue satisfies it.
type Queue interface {
	binding_set.Queue
	pass.Queue
}

// SurfaceSource is a window that a surface can be created for. window.Window satisfies it.
type SurfaceSource interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	Width() int
	Height() int
}

// TargetSpec describes the render targets a frame draws into.
type TargetSpec struct {
	Width       uint32
	Height      uint32
	SampleCount uint32
	Format      wgpu.TextureFormat
}

// targetSet is one allocation of render targets. msaa is nil when SampleCount is 1.
type targetSet struct {
	msaa    *wgpu.TextureView
	depth   *wgpu.TextureView
	release func()
}

// surfaceFrame is an acquired swapchain image.
type surfaceFrame struct {
	view    *wgpu.TextureView
	release func()
}

// backend owns the platform GPU objects behind an orchestrator.
type backend interface {
	// Device returns the logical device.
	Device() Device

	// Queue returns the device's queue.
	Queue() Queue

	// SurfaceFormat returns the format the surface was configured with.
	SurfaceFormat() wgpu.TextureFormat

	// ConfigureSurface (re)configures the surface for the given size.
	//
	// Parameters:
	//   - width, height: the surface size in pixels
	//
	// Returns:
	//   - error: error if the surface reports no formats
	ConfigureSurface(width, height int) error

	// SetPresentMode sets the present mode applied on the next ConfigureSurface.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	SetPresentMode(mode PresentMode)

	// AcquireFrame acquires the next swapchain image.
	//
	// Returns:
	//   - *surfaceFrame: the image and its view
	//   - error: error if the surface has no image available
	AcquireFrame() (*surfaceFrame, error)

	// Present presents and releases an acquired frame.
	//
	// Parameters:
	//   - frame: the frame from AcquireFrame
	Present(frame *surfaceFrame)

	// AllocateTargets creates the depth texture and, when multisampled, the MSAA color texture.
	//
	// Parameters:
	//   - spec: the size, sample count and color format
	//
	// Returns:
	//   - *targetSet: the views and a func releasing them
	//   - error: error if texture creation fails
	AllocateTargets(spec TargetSpec) (*targetSet, error)

	// Submit submits command buffers to the queue.
	Submit(commands ...*wgpu.CommandBuffer)

	// Poll blocks until the device has processed submitted work.
	Poll()

	// Release releases the device, surface, adapter and instance.
	Release()
}
