package binding_set

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-terrain/common"
	"github.com/Carmen-Shannon/oxy-terrain/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// UniformBuffer pairs a uniform binding's device buffer with its CPU staging array.
// Every write replaces a field in staging and re-uploads the whole array.
type UniformBuffer struct {
	Binding shader.BindingDescriptor
	Layout  shader.StructLayout
	Buffer  *wgpu.Buffer

	staging []float32
}

func newUniformBuffer(desc shader.BindingDescriptor) *UniformBuffer {
	return &UniformBuffer{
		Binding: desc,
		Layout:  *desc.Layout,
		staging: make([]float32, desc.Layout.Size),
	}
}

// Stage copies values into the staging array at the field's offset.
// Writing fewer values than the field holds leaves the remainder untouched.
//
// Parameters:
//   - field: the struct field name
//   - values: the values to write
//
// Returns:
//   - error: ErrUnknownUniformField or ErrFieldOverflow, wrapped with the struct and field names
func (u *UniformBuffer) Stage(field string, values []float32) error {
	f, err := u.field(field, values)
	if err != nil {
		return err
	}
	copy(u.staging[f.Offset:], values)
	return nil
}

// Check reports the error Stage would return for field and values, without staging anything.
func (u *UniformBuffer) Check(field string, values []float32) error {
	_, err := u.field(field, values)
	return err
}

func (u *UniformBuffer) field(field string, values []float32) (shader.FieldLayout, error) {
	f, ok := u.Layout.Field(field)
	if !ok {
		return f, fmt.Errorf("%w: %s.%s", ErrUnknownUniformField, u.Layout.Name, field)
	}
	if uint32(len(values)) > f.Kind.Elements() {
		return f, fmt.Errorf("%w: %s.%s is a %s, got %d values", ErrFieldOverflow, u.Layout.Name, field, f.Kind, len(values))
	}
	return f, nil
}

// Staging returns a copy of the staging array.
func (u *UniformBuffer) Staging() []float32 {
	out := make([]float32, len(u.staging))
	copy(out, u.staging)
	return out
}

// Bytes returns the staging array as bytes for upload. The slice aliases the staging array.
func (u *UniformBuffer) Bytes() []byte {
	return common.SliceToBytes(u.staging)
}
