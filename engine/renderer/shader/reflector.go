package shader

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gogpu/naga/wgsl"
	"go.uber.org/zap"
)

// scalarTypes are the WGSL scalar type names accepted as uniform fields.
var scalarTypes = map[string]struct{}{
	"f32":  {},
	"u32":  {},
	"i32":  {},
	"f16":  {},
	"bool": {},
}

// shorthandFieldKinds maps predeclared vector and matrix aliases to their FieldKind.
var shorthandFieldKinds = map[string]FieldKind{
	"vec2f": FieldVec2, "vec2i": FieldVec2, "vec2u": FieldVec2, "vec2h": FieldVec2,
	"vec3f": FieldVec3, "vec3i": FieldVec3, "vec3u": FieldVec3, "vec3h": FieldVec3,
	"vec4f": FieldVec4, "vec4i": FieldVec4, "vec4u": FieldVec4, "vec4h": FieldVec4,
	"mat3x3f": FieldMat3x3, "mat3x3h": FieldMat3x3,
	"mat4x4f": FieldMat4x4, "mat4x4h": FieldMat4x4,
}

// genericFieldKinds maps templated vector and matrix type names to their FieldKind.
var genericFieldKinds = map[string]FieldKind{
	"vec2":   FieldVec2,
	"vec3":   FieldVec3,
	"vec4":   FieldVec4,
	"mat3x3": FieldMat3x3,
	"mat4x4": FieldMat4x4,
}

// reflector carries the parsed module while bindings and layouts are resolved.
type reflector struct {
	module  *wgsl.Module
	structs map[string]*wgsl.StructDecl
	aliases map[string]wgsl.Type
	consts  map[string]string
	layouts map[string]StructLayout
	logger  *zap.Logger
}

// Reflect parses WGSL source and derives its bindings, struct layouts, entry points and workgroup size.
//
// Parameters:
//   - source: the complete WGSL module source
//
// Returns:
//   - *Reflection: the derived binding and layout information
//   - error: a *ShaderParseError when the source cannot be parsed or a binding cannot be classified
func Reflect(source string) (*Reflection, error) {
	module, err := parseModule(source)
	if err != nil {
		return nil, err
	}
	return reflectModule(module, zap.NewNop())
}

func parseModule(source string) (*wgsl.Module, error) {
	tokens, err := wgsl.NewLexer(source).Tokenize()
	if err != nil {
		return nil, wrapNagaError("tokenize", err)
	}
	module, err := wgsl.NewParser(tokens).Parse()
	if err != nil {
		return nil, wrapNagaError("parse", err)
	}
	return module, nil
}

func reflectModule(module *wgsl.Module, log *zap.Logger) (*Reflection, error) {
	r := &reflector{
		logger:  log,
		module:  module,
		structs: make(map[string]*wgsl.StructDecl, len(module.Structs)),
		aliases: make(map[string]wgsl.Type, len(module.Aliases)),
		consts:  make(map[string]string, len(module.Constants)),
		layouts: make(map[string]StructLayout),
	}
	for _, s := range module.Structs {
		r.structs[s.Name] = s
	}
	for _, a := range module.Aliases {
		r.aliases[a.Name] = a.Type
	}
	for _, c := range module.Constants {
		if lit, ok := c.Init.(*wgsl.Literal); ok {
			r.consts[c.Name] = lit.Value
		}
	}

	out := &Reflection{
		Structs:     r.layouts,
		EntryPoints: make(map[Stage][]string),
		Constants:   r.consts,
	}

	seen := make(map[[2]uint32]string)
	for _, v := range module.GlobalVars {
		group, hasGroup, err := r.intAttribute(v.Attributes, "group")
		if err != nil {
			return nil, err
		}
		binding, hasBinding, err := r.intAttribute(v.Attributes, "binding")
		if err != nil {
			return nil, err
		}
		if !hasGroup && !hasBinding {
			continue
		}
		if hasGroup != hasBinding {
			return nil, parseErrorAt(v.Span, "variable %q needs both @group and @binding", v.Name)
		}

		key := [2]uint32{group, binding}
		if prev, dup := seen[key]; dup {
			return nil, parseErrorAt(v.Span, "@group(%d) @binding(%d) declared by both %q and %q", group, binding, prev, v.Name)
		}
		seen[key] = v.Name

		desc, err := r.classify(v, group, binding)
		if err != nil {
			return nil, err
		}
		out.Bindings = append(out.Bindings, desc)
	}
	sort.SliceStable(out.Bindings, func(i, j int) bool {
		a, b := out.Bindings[i], out.Bindings[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Binding < b.Binding
	})

	for _, fn := range module.Functions {
		for _, attr := range fn.Attributes {
			switch attr.Name {
			case "vertex":
				out.EntryPoints[StageVertex] = append(out.EntryPoints[StageVertex], fn.Name)
			case "fragment":
				out.EntryPoints[StageFragment] = append(out.EntryPoints[StageFragment], fn.Name)
			case "compute":
				out.EntryPoints[StageCompute] = append(out.EntryPoints[StageCompute], fn.Name)
				if len(out.EntryPoints[StageCompute]) == 1 {
					size, err := r.workgroupSize(fn)
					if err != nil {
						return nil, err
					}
					out.WorkgroupSize = size
				}
			}
		}
	}

	return out, nil
}

// classify turns a bound global variable into a BindingDescriptor.
func (r *reflector) classify(v *wgsl.VarDecl, group, binding uint32) (BindingDescriptor, error) {
	desc := BindingDescriptor{
		Group:    group,
		Binding:  binding,
		VarName:  v.Name,
		Name:     v.Name,
		TypeName: typeString(v.Type),
	}
	if v.Type == nil {
		return desc, parseErrorAt(v.Span, "binding %q has no type", v.Name)
	}

	resolved := r.resolveAlias(v.Type)
	named, _ := resolved.(*wgsl.NamedType)

	switch v.AddressSpace {
	case "uniform":
		desc.Access = AccessUniform
		layout, err := r.bindingLayout(v, resolved)
		if err != nil {
			return desc, err
		}
		desc.Layout = &layout
		if named != nil {
			if _, isStruct := r.structs[named.Name]; isStruct {
				desc.StructName = named.Name
			}
		}
		return desc, nil

	case "storage":
		desc.Access = AccessStorage
		if v.AccessMode == "read_write" || v.AccessMode == "write" {
			desc.Access = AccessStorageReadWrite
		}
		if strings.HasPrefix(v.Name, ReadbackMarker) && len(v.Name) > len(ReadbackMarker) {
			desc.Readback = true
			desc.Name = strings.TrimPrefix(v.Name, ReadbackMarker)
		}

		switch t := resolved.(type) {
		case *wgsl.ArrayType:
			desc.Array = true
		case *wgsl.NamedType:
			if t.Name == "atomic" {
				desc.Access = AccessAtomicCounter
				break
			}
			if _, isStruct := r.structs[t.Name]; isStruct {
				desc.StructName = t.Name
				layout, err := r.structLayout(t.Name)
				if err != nil {
					// runtime-sized or nested members; size it like an array
					desc.Array = true
					break
				}
				desc.Layout = &layout
				break
			}
			if kind, ok := r.fieldKind(t); ok {
				layout := StructLayout{Name: v.Name, Fields: []FieldLayout{{Name: v.Name, Kind: kind}}, Size: kind.Elements()}
				desc.Layout = &layout
				break
			}
			return desc, parseErrorAt(v.Span, "storage binding %q has unsupported type %s", v.Name, desc.TypeName)
		default:
			return desc, parseErrorAt(v.Span, "storage binding %q has unsupported type %s", v.Name, desc.TypeName)
		}
		return desc, nil

	case "":
		if named != nil {
			switch {
			case strings.HasPrefix(named.Name, "texture_"):
				desc.Access = AccessTexture
				return desc, nil
			case named.Name == "sampler" || named.Name == "sampler_comparison":
				desc.Access = AccessSampler
				return desc, nil
			}
		}
		return desc, parseErrorAt(v.Span, "binding %q of type %s needs an address space", v.Name, desc.TypeName)

	default:
		return desc, parseErrorAt(v.Span, "binding %q uses unsupported address space %q", v.Name, v.AddressSpace)
	}
}

// bindingLayout resolves the layout of a uniform binding. Struct types use their declared
// members; bare vector or scalar types become a single-field layout named after the variable.
func (r *reflector) bindingLayout(v *wgsl.VarDecl, t wgsl.Type) (StructLayout, error) {
	named, ok := t.(*wgsl.NamedType)
	if !ok {
		return StructLayout{}, parseErrorAt(v.Span, "uniform %q has unsupported type %s", v.Name, typeString(t))
	}
	if _, isStruct := r.structs[named.Name]; isStruct {
		return r.structLayout(named.Name)
	}
	if kind, ok := r.fieldKind(named); ok {
		return StructLayout{Name: v.Name, Fields: []FieldLayout{{Name: v.Name, Kind: kind}}, Size: kind.Elements()}, nil
	}
	return StructLayout{}, parseErrorAt(v.Span, "uniform %q references unknown struct %s", v.Name, named.Name)
}

// structLayout flattens a struct into consecutive element offsets, caching the result.
func (r *reflector) structLayout(name string) (StructLayout, error) {
	if l, ok := r.layouts[name]; ok {
		return l, nil
	}
	decl, ok := r.structs[name]
	if !ok {
		return StructLayout{}, &ShaderParseError{Message: "unknown struct " + name}
	}
	if len(decl.Members) == 0 {
		return StructLayout{}, parseErrorAt(decl.Span, "struct %s has no fields", name)
	}

	layout := StructLayout{Name: name, Fields: make([]FieldLayout, 0, len(decl.Members))}
	var hostOffset uint64
	for _, m := range decl.Members {
		named, ok := r.resolveAlias(m.Type).(*wgsl.NamedType)
		var kind FieldKind
		if ok {
			kind, ok = r.fieldKind(named)
		}
		if !ok {
			span := decl.Span
			if m.Span.Start.Line > 0 {
				span = m.Span
			}
			return StructLayout{}, parseErrorAt(span, "field %s.%s has unsupported type %s", name, m.Name, typeString(m.Type))
		}
		field := FieldLayout{Name: m.Name, Kind: kind, Offset: layout.Size}
		sa := wgslSizeAlign[kind]
		hostOffset = roundUp(sa[1], hostOffset)
		if field.ByteOffset() != hostOffset {
			r.logger.Warn("struct field offset differs from WGSL layout",
				zap.String("struct", name),
				zap.String("field", m.Name),
				zap.Uint64("offset", field.ByteOffset()),
				zap.Uint64("wgsl_offset", hostOffset),
			)
		}
		hostOffset += sa[0]
		layout.Fields = append(layout.Fields, field)
		layout.Size += kind.Elements()
	}

	r.layouts[name] = layout
	return layout, nil
}

func (r *reflector) fieldKind(t *wgsl.NamedType) (FieldKind, bool) {
	if _, ok := scalarTypes[t.Name]; ok && len(t.TypeParams) == 0 {
		return FieldScalar, true
	}
	if k, ok := shorthandFieldKinds[t.Name]; ok {
		return k, true
	}
	if k, ok := genericFieldKinds[t.Name]; ok && len(t.TypeParams) == 1 {
		if p, ok := r.resolveAlias(t.TypeParams[0]).(*wgsl.NamedType); ok {
			if _, scalar := scalarTypes[p.Name]; scalar {
				return k, true
			}
		}
	}
	return 0, false
}

// resolveAlias follows type aliases until a non-alias type is reached.
func (r *reflector) resolveAlias(t wgsl.Type) wgsl.Type {
	for range len(r.aliases) + 1 {
		named, ok := t.(*wgsl.NamedType)
		if !ok || len(named.TypeParams) != 0 {
			return t
		}
		next, ok := r.aliases[named.Name]
		if !ok {
			return t
		}
		t = next
	}
	return t
}

// intAttribute reads the single unsigned integer argument of the named attribute.
func (r *reflector) intAttribute(attrs []wgsl.Attribute, name string) (uint32, bool, error) {
	for _, a := range attrs {
		if a.Name != name {
			continue
		}
		if len(a.Args) != 1 {
			return 0, true, parseErrorAt(a.Span, "@%s takes exactly one argument", name)
		}
		v, err := r.intExpr(a.Args[0])
		if err != nil {
			return 0, true, parseErrorAt(a.Span, "@%s: %v", name, err)
		}
		return v, true, nil
	}
	return 0, false, nil
}

// intExpr evaluates an integer literal, or an identifier naming a literal constant.
func (r *reflector) intExpr(e wgsl.Expr) (uint32, error) {
	var text string
	switch x := e.(type) {
	case *wgsl.Literal:
		if x.Kind != wgsl.TokenIntLiteral {
			return 0, strconvError(x.Value)
		}
		text = x.Value
	case *wgsl.Ident:
		v, ok := r.consts[x.Name]
		if !ok {
			return 0, strconvError(x.Name)
		}
		text = v
	default:
		return 0, strconvError("expression")
	}
	text = strings.TrimRight(text, "iu")
	v, err := strconv.ParseUint(text, 0, 32)
	if err != nil {
		return 0, strconvError(text)
	}
	return uint32(v), nil
}

// workgroupSize reads @workgroup_size from a compute function. Omitted dimensions default to 1.
func (r *reflector) workgroupSize(fn *wgsl.FunctionDecl) ([3]uint32, error) {
	size := [3]uint32{1, 1, 1}
	for _, a := range fn.Attributes {
		if a.Name != "workgroup_size" {
			continue
		}
		if len(a.Args) == 0 || len(a.Args) > 3 {
			return size, parseErrorAt(fn.Span, "@workgroup_size on %s takes one to three arguments", fn.Name)
		}
		for i, arg := range a.Args {
			v, err := r.intExpr(arg)
			if err != nil {
				return size, parseErrorAt(fn.Span, "@workgroup_size on %s: %v", fn.Name, err)
			}
			size[i] = v
		}
	}
	return size, nil
}

type strconvError string

func (e strconvError) Error() string {
	return "expected an unsigned integer, got " + string(e)
}

// typeString renders an AST type the way it is written in WGSL source.
func typeString(t wgsl.Type) string {
	switch x := t.(type) {
	case nil:
		return ""
	case *wgsl.NamedType:
		if len(x.TypeParams) == 0 {
			return x.Name
		}
		params := make([]string, len(x.TypeParams))
		for i, p := range x.TypeParams {
			params[i] = typeString(p)
		}
		return x.Name + "<" + strings.Join(params, ", ") + ">"
	case *wgsl.ArrayType:
		if x.Size == nil {
			return "array<" + typeString(x.Element) + ">"
		}
		size := "N"
		switch s := x.Size.(type) {
		case *wgsl.Literal:
			size = s.Value
		case *wgsl.Ident:
			size = s.Name
		}
		return "array<" + typeString(x.Element) + ", " + size + ">"
	case *wgsl.BindingArrayType:
		return "binding_array<" + typeString(x.Element) + ">"
	case *wgsl.PtrType:
		return "ptr<" + x.AddressSpace + ", " + typeString(x.PointeeType) + ">"
	default:
		return "?"
	}
}
