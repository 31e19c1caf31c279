package binding_set

import (
	"github.com/Carmen-Shannon/oxy-terrain/common"
	"go.uber.org/zap"
)

// BindingSetOption is a functional option used to configure a BindingSet during construction.
type BindingSetOption func(*bindingSet)

// WithLabel sets the debug label used for every GPU object the binding set creates.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - BindingSetOption: a function that sets the label
func WithLabel(label string) BindingSetOption {
	return func(b *bindingSet) {
		b.label = label
	}
}

// WithReadbackCapacity sets the byte size of each readback buffer pair.
//
// Parameters:
//   - capacity: bytes per buffer, at least 8 and a multiple of 4
//
// Returns:
//   - BindingSetOption: a function that sets the readback capacity
func WithReadbackCapacity(capacity uint64) BindingSetOption {
	return func(b *bindingSet) {
		b.readbackCapacity = capacity
	}
}

// WithArrayCapacity sets the byte size of storage buffers declared with an array type.
//
// Parameters:
//   - capacity: bytes per buffer, at least 8 and a multiple of 4
//
// Returns:
//   - BindingSetOption: a function that sets the array capacity
func WithArrayCapacity(capacity uint64) BindingSetOption {
	return func(b *bindingSet) {
		b.arrayCapacity = capacity
	}
}

// WithBufferSize overrides the byte size of a single named storage or readback buffer.
//
// Parameters:
//   - name: the binding name, without the readback marker
//   - size: the buffer size in bytes
//
// Returns:
//   - BindingSetOption: a function that records the override
func WithBufferSize(name string, size uint64) BindingSetOption {
	return func(b *bindingSet) {
		b.sizeOverrides[name] = size
	}
}

// WithDefaultSampler sets the sampler configuration used when SetTexture is called without one.
//
// Parameters:
//   - sampler: the default sampler configuration
//
// Returns:
//   - BindingSetOption: a function that sets the default sampler
func WithDefaultSampler(sampler common.SamplerStagingData) BindingSetOption {
	return func(b *bindingSet) {
		b.defaultSampler = sampler
	}
}

// WithLogger sets the logger for resource lifecycle events.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - BindingSetOption: a function that sets the logger
func WithLogger(logger *zap.Logger) BindingSetOption {
	return func(b *bindingSet) {
		b.logger = logger
	}
}
