package shader

import (
	"fmt"
	"sort"
	"strings"
)

// ReadbackMarker is the variable-name prefix that flags a storage binding for CPU readback.
// The marker is stripped from the binding's Name.
const ReadbackMarker = "_"

// AccessKind classifies how a binding is accessed by the shader.
type AccessKind int

const (
	// AccessUniform is a var<uniform> binding backed by a struct layout.
	AccessUniform AccessKind = iota
	// AccessStorage is a read-only var<storage> binding.
	AccessStorage
	// AccessStorageReadWrite is a var<storage, read_write> binding.
	AccessStorageReadWrite
	// AccessTexture is any texture_* binding.
	AccessTexture
	// AccessSampler is a sampler or sampler_comparison binding.
	AccessSampler
	// AccessAtomicCounter is a storage binding of type atomic<u32> or atomic<i32>.
	AccessAtomicCounter
)

func (a AccessKind) String() string {
	switch a {
	case AccessUniform:
		return "uniform"
	case AccessStorage:
		return "storage"
	case AccessStorageReadWrite:
		return "storage_read_write"
	case AccessTexture:
		return "texture"
	case AccessSampler:
		return "sampler"
	case AccessAtomicCounter:
		return "atomic_counter"
	default:
		return fmt.Sprintf("AccessKind(%d)", int(a))
	}
}

// IsBuffer reports whether bindings of this kind are backed by a device buffer.
func (a AccessKind) IsBuffer() bool {
	switch a {
	case AccessUniform, AccessStorage, AccessStorageReadWrite, AccessAtomicCounter:
		return true
	}
	return false
}

// FieldKind is the shape of a single uniform field.
type FieldKind int

const (
	FieldScalar FieldKind = iota
	FieldVec2
	FieldVec3
	FieldVec4
	FieldMat3x3
	FieldMat4x4
)

// fieldStrides is the element count each FieldKind advances the running offset by.
// Offsets grow by these strides with no implicit padding.
var fieldStrides = [...]uint32{
	FieldScalar: 1,
	FieldVec2:   2,
	FieldVec3:   3,
	FieldVec4:   4,
	FieldMat3x3: 12,
	FieldMat4x4: 16,
}

// wgslSizeAlign is the byte size and alignment WGSL's host-shareable layout rules give each FieldKind.
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var wgslSizeAlign = [...][2]uint64{
	FieldScalar: {4, 4},
	FieldVec2:   {8, 8},
	FieldVec3:   {12, 16},
	FieldVec4:   {16, 16},
	FieldMat3x3: {48, 16},
	FieldMat4x4: {64, 16},
}

// Elements returns the number of 32-bit elements a field of this kind occupies.
func (k FieldKind) Elements() uint32 {
	if k < 0 || int(k) >= len(fieldStrides) {
		return 0
	}
	return fieldStrides[k]
}

func (k FieldKind) String() string {
	switch k {
	case FieldScalar:
		return "scalar"
	case FieldVec2:
		return "vec2"
	case FieldVec3:
		return "vec3"
	case FieldVec4:
		return "vec4"
	case FieldMat3x3:
		return "mat3x3"
	case FieldMat4x4:
		return "mat4x4"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// FieldLayout is one field of a StructLayout. Offset is measured in 32-bit elements.
type FieldLayout struct {
	Name   string
	Kind   FieldKind
	Offset uint32
}

// ByteOffset returns the field's offset in bytes.
func (f FieldLayout) ByteOffset() uint64 {
	return uint64(f.Offset) * 4
}

// StructLayout is the flat element layout of a struct used as uniform or storage data.
type StructLayout struct {
	Name   string
	Fields []FieldLayout
	// Size is the total element count, the sum of every field's stride.
	Size uint32
}

// ByteSize returns the size of the layout in bytes.
func (s StructLayout) ByteSize() uint64 {
	return uint64(s.Size) * 4
}

// MinBindingSize returns the size the GPU requires for a buffer bound to this struct, applying
// WGSL alignment rules. It is never smaller than ByteSize, so the flat staging data always fits.
func (s StructLayout) MinBindingSize() uint64 {
	var offset, maxAlign uint64 = 0, 4
	for _, f := range s.Fields {
		sa := wgslSizeAlign[f.Kind]
		offset = roundUp(sa[1], offset) + sa[0]
		maxAlign = max(maxAlign, sa[1])
	}
	return max(roundUp(maxAlign, offset), s.ByteSize())
}

// roundUp rounds n up to the next multiple of k.
func roundUp(k, n uint64) uint64 {
	return (n + k - 1) / k * k
}

// Field looks up a field by name.
func (s StructLayout) Field(name string) (FieldLayout, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldLayout{}, false
}

// BindingDescriptor describes one @group/@binding resource declared by a shader.
type BindingDescriptor struct {
	Group   uint32
	Binding uint32
	Access  AccessKind

	// VarName is the variable name exactly as declared.
	VarName string
	// Name is VarName with the readback marker removed.
	Name string
	// TypeName is the declared type, e.g. "SceneInfo" or "array<f32>".
	TypeName string
	// StructName is set when the binding's type resolves to a struct.
	StructName string

	// Readback marks a storage binding whose contents are copied back to the CPU after dispatch.
	Readback bool
	// Array marks a storage binding whose type is an array, or a struct that cannot be flattened.
	Array bool

	// Layout is set for uniform bindings and for storage bindings whose struct flattens cleanly.
	Layout *StructLayout
}

// Stage identifies a shader entry point stage.
type Stage int

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Reflection is everything derived from a single shader module's source.
type Reflection struct {
	// Bindings are ordered by group, then binding.
	Bindings []BindingDescriptor
	// Structs holds the layouts resolved for uniform and storage bindings, keyed by struct name.
	Structs map[string]StructLayout
	// EntryPoints lists function names per stage in source order.
	EntryPoints map[Stage][]string
	// WorkgroupSize is the @workgroup_size of the first compute entry point, or all zero without one.
	WorkgroupSize [3]uint32
	// Constants maps module-scope const names to their initializer text when it is a literal.
	Constants map[string]string
}

// Binding finds a binding by Name or VarName.
func (r *Reflection) Binding(name string) (BindingDescriptor, bool) {
	for _, b := range r.Bindings {
		if b.Name == name || b.VarName == name {
			return b, true
		}
	}
	return BindingDescriptor{}, false
}

// Uniform finds a uniform binding by struct name or variable name.
func (r *Reflection) Uniform(name string) (BindingDescriptor, bool) {
	for _, b := range r.Bindings {
		if b.Access != AccessUniform {
			continue
		}
		if b.StructName == name || b.VarName == name {
			return b, true
		}
	}
	return BindingDescriptor{}, false
}

// Readbacks returns the readback bindings in binding order.
func (r *Reflection) Readbacks() []BindingDescriptor {
	var out []BindingDescriptor
	for _, b := range r.Bindings {
		if b.Readback {
			out = append(out, b)
		}
	}
	return out
}

// Groups returns the distinct bind group indices in ascending order.
func (r *Reflection) Groups() []uint32 {
	seen := make(map[uint32]struct{})
	var groups []uint32
	for _, b := range r.Bindings {
		if _, ok := seen[b.Group]; ok {
			continue
		}
		seen[b.Group] = struct{}{}
		groups = append(groups, b.Group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

// EntryPoint returns the first entry point declared for stage, or "" when there is none.
func (r *Reflection) EntryPoint(stage Stage) string {
	if eps := r.EntryPoints[stage]; len(eps) > 0 {
		return eps[0]
	}
	return ""
}

func (b BindingDescriptor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "@group(%d) @binding(%d) %s %s: %s", b.Group, b.Binding, b.Access, b.VarName, b.TypeName)
	if b.Readback {
		sb.WriteString(" [readback]")
	}
	return sb.String()
}
