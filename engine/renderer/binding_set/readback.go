package binding_set

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// ReadbackBuffer is the storage/mapped buffer pair behind a readback binding.
// The shader writes into Storage; after dispatch Storage is copied into Mapped, which the CPU maps.
// Element 0 of the data is the number of valid payload elements that follow it.
type ReadbackBuffer struct {
	Name     string
	Binding  shader.BindingDescriptor
	Storage  *wgpu.Buffer
	Mapped   *wgpu.Buffer
	Capacity uint64
}

// DecodeReadback extracts the payload from raw readback data. raw[0] holds the payload length k
// as a float; exactly k elements starting at raw[1] are returned in a new slice.
//
// Parameters:
//   - raw: the mapped buffer contents reinterpreted as float32
//
// Returns:
//   - []float32: the k payload elements
//   - error: ErrReadbackOverflow if k is negative, fractional, NaN, or does not fit in raw
func DecodeReadback(raw []float32) ([]float32, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: buffer has no length prefix", ErrReadbackOverflow)
	}
	k := float64(raw[0])
	if math.IsNaN(k) || k < 0 || k != math.Trunc(k) {
		return nil, fmt.Errorf("%w: invalid length prefix %v", ErrReadbackOverflow, raw[0])
	}
	if k > float64(len(raw)-1) {
		return nil, fmt.Errorf("%w: prefix %v exceeds %d available elements", ErrReadbackOverflow, raw[0], len(raw)-1)
	}
	n := int(k)
	out := make([]float32, n)
	copy(out, raw[1:1+n])
	return out, nil
}
