package renderer

import (
	"github.com/Carmen-Shannon/oxy-terrain/engine/loader"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// RendererBuilderOption is a functional option applied to an Orchestrator during construction via New.
type RendererBuilderOption func(*orchestrator)

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to an orchestrator
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(o *orchestrator) {
		o.presentMode = mode
	}
}

// WithMSAA sets the multisample anti-aliasing sample count of every render pipeline and target.
// When not specified, the default is MSAA4x. Use MSAAOff to disable MSAA entirely.
//
// Parameters:
//   - count: the MSAASampleCount to use
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option to an orchestrator
func WithMSAA(count MSAASampleCount) RendererBuilderOption {
	return func(o *orchestrator) {
		o.sampleCount = max(count, MSAAOff)
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to an orchestrator
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(o *orchestrator) {
		o.forceFallbackAdapter = force
	}
}

// WithClearColor sets the color the first render pass clears the frame to.
//
// Parameters:
//   - color: the clear color
//
// Returns:
//   - RendererBuilderOption: a function that applies the clear color to an orchestrator
func WithClearColor(color wgpu.Color) RendererBuilderOption {
	return func(o *orchestrator) {
		o.clearColor = color
	}
}

// WithBatchCapacity sets how many command buffers are submitted together. Defaults to DefaultBatchCapacity.
//
// Parameters:
//   - capacity: the batch size, at least 1
//
// Returns:
//   - RendererBuilderOption: a function that applies the batch capacity to an orchestrator
func WithBatchCapacity(capacity int) RendererBuilderOption {
	return func(o *orchestrator) {
		o.batchCapacity = max(capacity, 1)
	}
}

// WithReadbackCapacity sets the byte capacity of every readback buffer pair.
//
// Parameters:
//   - capacity: bytes, a multiple of 4 holding at least the length prefix and one element
//
// Returns:
//   - RendererBuilderOption: a function that applies the readback capacity to an orchestrator
func WithReadbackCapacity(capacity uint64) RendererBuilderOption {
	return func(o *orchestrator) {
		o.readbackCapacity = capacity
	}
}

// WithArrayCapacity sets the byte capacity of runtime-sized storage arrays.
//
// Parameters:
//   - capacity: bytes, a multiple of 4
//
// Returns:
//   - RendererBuilderOption: a function that applies the array capacity to an orchestrator
func WithArrayCapacity(capacity uint64) RendererBuilderOption {
	return func(o *orchestrator) {
		o.arrayCapacity = capacity
	}
}

// WithTextureWorkers sets how many workers decode textures for SetTexture.
//
// Parameters:
//   - n: the worker count, at least 1
//
// Returns:
//   - RendererBuilderOption: a function that applies the worker count to an orchestrator
func WithTextureWorkers(n int) RendererBuilderOption {
	return func(o *orchestrator) {
		o.textureWorkers = n
	}
}

// WithLoader sets the loader shader files and libraries are read through.
//
// Parameters:
//   - l: the loader
//
// Returns:
//   - RendererBuilderOption: a function that applies the loader to an orchestrator
func WithLoader(l loader.Loader) RendererBuilderOption {
	return func(o *orchestrator) {
		o.loader = l
	}
}

// WithShaderValidation runs naga's validator on every composed shader before its pipeline is created.
//
// Parameters:
//   - enabled: whether validation runs
//
// Returns:
//   - RendererBuilderOption: a function that toggles validation on an orchestrator
func WithShaderValidation(enabled bool) RendererBuilderOption {
	return func(o *orchestrator) {
		o.validate = enabled
	}
}

// WithLogger sets the logger of the orchestrator and of every pipeline, binding set and pass it creates.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger to an orchestrator
func WithLogger(logger *zap.Logger) RendererBuilderOption {
	return func(o *orchestrator) {
		o.logger = logger
	}
}
