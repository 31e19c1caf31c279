package shader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const scalarVecSource = `
struct Params {
    a: f32,
    b: vec3f,
}

@group(0) @binding(0) var<uniform> params: Params;
`

func TestReflectScalarThenVec3(t *testing.T) {
	refl, err := Reflect(scalarVecSource)
	require.NoError(t, err)
	require.Len(t, refl.Bindings, 1)

	b := refl.Bindings[0]
	assert.Equal(t, AccessUniform, b.Access)
	assert.Equal(t, uint32(0), b.Group)
	assert.Equal(t, uint32(0), b.Binding)
	assert.Equal(t, "Params", b.StructName)
	assert.Equal(t, "params", b.VarName)
	require.NotNil(t, b.Layout)

	a, ok := b.Layout.Field("a")
	require.True(t, ok)
	assert.Equal(t, uint32(0), a.Offset)
	assert.Equal(t, FieldScalar, a.Kind)

	v, ok := b.Layout.Field("b")
	require.True(t, ok)
	assert.Equal(t, uint32(1), v.Offset)
	assert.Equal(t, FieldVec3, v.Kind)

	assert.Equal(t, uint32(4), b.Layout.Size)
	assert.Equal(t, uint64(16), b.Layout.ByteSize())
}

func TestReflectWarnsOnHostLayoutMismatch(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	_, err := NewShader("params", scalarVecSource, WithLogger(zap.New(core)))
	require.NoError(t, err)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "params", fields["shader"])
	assert.Equal(t, "Params", fields["struct"])
	assert.Equal(t, "b", fields["field"])
	assert.Equal(t, uint64(4), fields["offset"])
	assert.Equal(t, uint64(16), fields["wgsl_offset"])
}

func TestReflectQuietOnAlignedLayout(t *testing.T) {
	const aligned = `
struct Scene {
    world: mat4x4f,
    eye: vec3f,
    time: f32,
    tint: vec4f,
}

@group(0) @binding(0) var<uniform> scene: Scene;
`
	core, logs := observer.New(zapcore.WarnLevel)
	_, err := NewShader("scene", aligned, WithLogger(zap.New(core)))
	require.NoError(t, err)
	assert.Zero(t, logs.Len())
}

func TestReflectStrideTable(t *testing.T) {
	src := `
struct Everything {
    s: f32,
    v2: vec2f,
    v3: vec3<f32>,
    v4: vec4f,
    m3: mat3x3f,
    m4: mat4x4<f32>,
    u: u32,
}

@group(0) @binding(0) var<uniform> everything: Everything;
`
	refl, err := Reflect(src)
	require.NoError(t, err)

	layout := refl.Structs["Everything"]
	want := []struct {
		name   string
		kind   FieldKind
		offset uint32
	}{
		{"s", FieldScalar, 0},
		{"v2", FieldVec2, 1},
		{"v3", FieldVec3, 3},
		{"v4", FieldVec4, 6},
		{"m3", FieldMat3x3, 10},
		{"m4", FieldMat4x4, 22},
		{"u", FieldScalar, 38},
	}
	require.Len(t, layout.Fields, len(want))
	for i, w := range want {
		assert.Equal(t, w.name, layout.Fields[i].Name)
		assert.Equal(t, w.kind, layout.Fields[i].Kind, w.name)
		assert.Equal(t, w.offset, layout.Fields[i].Offset, w.name)
	}
	assert.Equal(t, uint32(39), layout.Size)
	assert.Equal(t, uint64(22*4), layout.Fields[5].ByteOffset())
}

func TestReflectAliasedField(t *testing.T) {
	src := `
alias Color = vec4f;

struct SkyInfo {
    colorOne: Color,
    colorTwo: Color,
}

@group(0) @binding(1) var<uniform> sky: SkyInfo;
`
	refl, err := Reflect(src)
	require.NoError(t, err)

	b, ok := refl.Uniform("SkyInfo")
	require.True(t, ok)
	assert.Equal(t, uint32(1), b.Binding)
	assert.Equal(t, uint32(8), b.Layout.Size)
	f, _ := b.Layout.Field("colorTwo")
	assert.Equal(t, uint32(4), f.Offset)
}

func TestReflectClassifiesBindings(t *testing.T) {
	src := `
struct Info {
    time: f32,
}

@group(0) @binding(4) var tex: texture_2d<f32>;
@group(0) @binding(5) var samp: sampler;
@group(0) @binding(0) var<uniform> info: Info;
@group(0) @binding(1) var<storage, read> heights: array<f32>;
@group(0) @binding(2) var<storage, read_write> _vertices: array<f32>;
@group(0) @binding(3) var<storage, read_write> counter: atomic<u32>;

@compute @workgroup_size(8, 4)
fn computeMain(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
}
`
	refl, err := Reflect(src)
	require.NoError(t, err)
	require.Len(t, refl.Bindings, 6)

	for i, b := range refl.Bindings {
		assert.Equal(t, uint32(i), b.Binding, "bindings are ordered")
	}

	assert.Equal(t, AccessUniform, refl.Bindings[0].Access)

	heights := refl.Bindings[1]
	assert.Equal(t, AccessStorage, heights.Access)
	assert.True(t, heights.Array)
	assert.False(t, heights.Readback)
	assert.Equal(t, "array<f32>", heights.TypeName)

	verts := refl.Bindings[2]
	assert.Equal(t, AccessStorageReadWrite, verts.Access)
	assert.True(t, verts.Readback)
	assert.True(t, verts.Array)
	assert.Equal(t, "vertices", verts.Name)
	assert.Equal(t, "_vertices", verts.VarName)

	assert.Equal(t, AccessAtomicCounter, refl.Bindings[3].Access)
	assert.Equal(t, AccessTexture, refl.Bindings[4].Access)
	assert.Equal(t, AccessSampler, refl.Bindings[5].Access)
	assert.Nil(t, refl.Bindings[4].Layout)

	rb := refl.Readbacks()
	require.Len(t, rb, 1)
	assert.Equal(t, "vertices", rb[0].Name)

	found, ok := refl.Binding("vertices")
	require.True(t, ok)
	assert.Equal(t, uint32(2), found.Binding)

	assert.Equal(t, "computeMain", refl.EntryPoint(StageCompute))
	assert.Equal(t, [3]uint32{8, 4, 1}, refl.WorkgroupSize)
	assert.Equal(t, []uint32{0}, refl.Groups())
}

func TestReflectEntryPoints(t *testing.T) {
	src := `
struct SceneInfo {
    perspective: mat4x4f,
}

@group(0) @binding(0) var<uniform> sceneInfo: SceneInfo;

@vertex
fn vertexMain(@location(0) pos: vec4f) -> @builtin(position) vec4f {
    return sceneInfo.perspective * pos;
}

@fragment
fn fragmentMain() -> @location(0) vec4f {
    return vec4f(1.0, 0.0, 0.0, 1.0);
}
`
	refl, err := Reflect(src)
	require.NoError(t, err)
	assert.Equal(t, "vertexMain", refl.EntryPoint(StageVertex))
	assert.Equal(t, "fragmentMain", refl.EntryPoint(StageFragment))
	assert.Equal(t, "", refl.EntryPoint(StageCompute))
	assert.Equal(t, [3]uint32{}, refl.WorkgroupSize)
}

func TestReflectWorkgroupSizeFromConstant(t *testing.T) {
	src := `
const WORKGROUP = 16u;

@compute @workgroup_size(WORKGROUP)
fn computeMain() {
}
`
	refl, err := Reflect(src)
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{16, 1, 1}, refl.WorkgroupSize)
	assert.Equal(t, "16u", refl.Constants["WORKGROUP"])
}

func TestReflectUniformScalarBinding(t *testing.T) {
	refl, err := Reflect(`@group(1) @binding(0) var<uniform> time: f32;`)
	require.NoError(t, err)
	b, ok := refl.Uniform("time")
	require.True(t, ok)
	assert.Equal(t, uint32(1), b.Layout.Size)
	assert.Equal(t, uint32(1), b.Group)
}

func TestReflectErrors(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		positioned bool
	}{
		{
			name:       "syntax",
			source:     "struct Ok {\n    a: f32,\n}\n@group(0) @binding(0) var<uniform> : Ok;",
			positioned: true,
		},
		{
			name:       "unknown struct",
			source:     "@group(0) @binding(0) var<uniform> u: Missing;",
			positioned: true,
		},
		{
			name:       "unsupported field",
			source:     "struct U {\n    values: array<f32, 4>,\n}\n@group(0) @binding(0) var<uniform> u: U;",
			positioned: true,
		},
		{
			name:       "duplicate binding",
			source:     "@group(0) @binding(0) var<uniform> a: f32;\n@group(0) @binding(0) var<uniform> b: f32;",
			positioned: true,
		},
		{
			name:       "binding without group",
			source:     "@binding(0) var<uniform> a: f32;",
			positioned: true,
		},
		{
			name:       "missing address space",
			source:     "@group(0) @binding(0) var a: f32;",
			positioned: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reflect(tt.source)
			require.Error(t, err)

			var pe *ShaderParseError
			require.True(t, errors.As(err, &pe), "got %T: %v", err, err)
			assert.NotEmpty(t, pe.Message)
			if tt.positioned {
				assert.Greater(t, pe.Line, 0, pe.Error())
			}
		})
	}
}

func TestReflectStorageStructWithRuntimeArray(t *testing.T) {
	src := `
struct Particles {
    count: u32,
    data: array<vec4f>,
}

@group(0) @binding(0) var<storage, read_write> particles: Particles;
`
	refl, err := Reflect(src)
	require.NoError(t, err)
	b := refl.Bindings[0]
	assert.Equal(t, "Particles", b.StructName)
	assert.True(t, b.Array)
	assert.Nil(t, b.Layout)
}

func TestMinBindingSizeHonorsAlignment(t *testing.T) {
	refl, err := Reflect(scalarVecSource)
	require.NoError(t, err)

	layout := refl.Structs["Params"]
	// f32 at 0, vec3f aligned to 16, struct rounded to 16
	assert.Equal(t, uint64(32), layout.MinBindingSize())
	assert.GreaterOrEqual(t, layout.MinBindingSize(), layout.ByteSize())

	packed := StructLayout{Fields: []FieldLayout{{Kind: FieldMat4x4}, {Kind: FieldVec4, Offset: 16}}, Size: 20}
	assert.Equal(t, uint64(80), packed.MinBindingSize())
}
