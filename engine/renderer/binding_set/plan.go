package binding_set

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	// DefaultReadbackCapacity is the byte size of each readback buffer pair, 4^12.
	DefaultReadbackCapacity uint64 = 1 << 24

	// DefaultArrayCapacity is the byte size of storage buffers whose type is an array, 4*35^3.
	DefaultArrayCapacity uint64 = 4 * 35 * 35 * 35

	// scalarStorageSize is the byte size of atomic counters and scalar storage buffers.
	scalarStorageSize uint64 = 4
)

// bufferPlan is the allocation decided for one buffer binding before any device call.
type bufferPlan struct {
	binding shader.BindingDescriptor
	size    uint64
	usage   wgpu.BufferUsage

	// mappedSize is non-zero for readback bindings and sizes the MAP_READ partner buffer.
	mappedSize uint64
}

// ValidateCapacity checks that a buffer capacity is usable for float32 data with a length prefix.
//
// Parameters:
//   - capacity: the buffer size in bytes
//
// Returns:
//   - error: ErrInvalidCapacity if capacity is smaller than 8 bytes or not a multiple of 4
func ValidateCapacity(capacity uint64) error {
	if capacity < 8 || capacity%4 != 0 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidCapacity, capacity)
	}
	return nil
}

// planBuffers decides size and usage for every buffer binding of refl.
func planBuffers(refl *shader.Reflection, cfg *bindingSet) ([]bufferPlan, error) {
	if err := ValidateCapacity(cfg.readbackCapacity); err != nil {
		return nil, fmt.Errorf("readback capacity: %w", err)
	}
	if err := ValidateCapacity(cfg.arrayCapacity); err != nil {
		return nil, fmt.Errorf("array capacity: %w", err)
	}

	var plans []bufferPlan
	for _, b := range refl.Bindings {
		if !b.Access.IsBuffer() {
			continue
		}
		p := bufferPlan{binding: b}
		switch {
		case b.Access == shader.AccessUniform:
			p.size = b.Layout.MinBindingSize()
			p.usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
		case b.Access == shader.AccessAtomicCounter:
			p.size = scalarStorageSize
			p.usage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
		case b.Readback:
			p.size = cfg.readbackCapacity
			p.mappedSize = cfg.readbackCapacity
			p.usage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
		case b.Array:
			p.size = cfg.arrayCapacity
			p.usage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
		case b.Layout != nil:
			p.size = b.Layout.MinBindingSize()
			p.usage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
		default:
			p.size = scalarStorageSize
			p.usage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
		}
		if override, ok := cfg.sizeOverrides[b.Name]; ok {
			if err := ValidateCapacity(override); err != nil {
				return nil, fmt.Errorf("buffer %s: %w", b.Name, err)
			}
			p.size = override
			if p.mappedSize != 0 {
				p.mappedSize = override
			}
		}
		plans = append(plans, p)
	}
	return plans, nil
}
