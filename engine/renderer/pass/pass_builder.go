package pass

import (
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// passConfig collects the options shared by render and compute passes.
type passConfig struct {
	logger     *zap.Logger
	clear      bool
	clearColor wgpu.Color
	everyFrame bool
	dispatch   [3]uint32
}

// PassOption is a functional option used to configure a Pass during construction.
type PassOption func(*passConfig)

func newPassConfig(opts []PassOption) *passConfig {
	cfg := &passConfig{
		dispatch: [3]uint32{1, 1, 1},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithClear makes a render pass clear its color and depth attachments instead of loading them.
//
// Parameters:
//   - color: the clear color
//
// Returns:
//   - PassOption: a function that enables clearing
func WithClear(color wgpu.Color) PassOption {
	return func(c *passConfig) {
		c.clear = true
		c.clearColor = color
	}
}

// WithEveryFrame schedules a compute pass into every frame, in registration order with the render passes.
// Scheduled dispatches do not read results back.
//
// Parameters:
//   - enabled: true to encode the pass each frame
//
// Returns:
//   - PassOption: a function that sets per-frame scheduling
func WithEveryFrame(enabled bool) PassOption {
	return func(c *passConfig) {
		c.everyFrame = enabled
	}
}

// WithDispatch sets the initial workgroup counts of a compute pass.
//
// Parameters:
//   - x, y, z: the workgroup counts
//
// Returns:
//   - PassOption: a function that sets the dispatch size
func WithDispatch(x, y, z uint32) PassOption {
	return func(c *passConfig) {
		c.dispatch = [3]uint32{x, y, z}
	}
}

// WithLogger sets the logger for pass events.
func WithLogger(logger *zap.Logger) PassOption {
	return func(c *passConfig) {
		c.logger = logger
	}
}
