package shader

import (
	"context"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-terrain/engine/loader"
	"github.com/Carmen-Shannon/oxy-terrain/engine/logger"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/wgsl"
	"go.uber.org/zap"
)

// shader is the implementation of the Shader interface.
// It holds the composed source together with everything reflected from it.
type shader struct {
	key        string
	source     string
	reflection *Reflection
	module     *wgpu.ShaderModuleDescriptor

	pp       PreProcessor
	validate bool
	loader   loader.Loader
	logger   *zap.Logger
}

// ShaderBuilderOption is a functional option for configuring a Shader during construction.
type ShaderBuilderOption func(*shader)

// WithPreProcessor composes the shader source through pp before reflection.
//
// Parameters:
//   - pp: the pre-processor holding shared constants and libraries
//
// Returns:
//   - ShaderBuilderOption: a function that applies the pre-processor to a shader
func WithPreProcessor(pp PreProcessor) ShaderBuilderOption {
	return func(s *shader) {
		s.pp = pp
	}
}

// WithValidation lowers the parsed module to naga IR and runs naga's validator, so semantic
// errors surface as a ShaderParseError instead of at pipeline creation.
//
// Parameters:
//   - enabled: whether validation runs
//
// Returns:
//   - ShaderBuilderOption: a function that toggles validation on a shader
func WithValidation(enabled bool) ShaderBuilderOption {
	return func(s *shader) {
		s.validate = enabled
	}
}

// WithLoader reads LoadShader paths through l, sharing its cache and filesystem.
//
// Parameters:
//   - l: the source loader
//
// Returns:
//   - ShaderBuilderOption: a function that applies the loader to a shader
func WithLoader(l loader.Loader) ShaderBuilderOption {
	return func(s *shader) {
		s.loader = l
	}
}

// WithLogger reports layout problems found during reflection, such as struct fields whose flat
// offset differs from WGSL's host-shareable offset.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - ShaderBuilderOption: a function that sets the shader's logger
func WithLogger(l *zap.Logger) ShaderBuilderOption {
	return func(s *shader) {
		s.logger = l
	}
}

// Shader is a composed and reflected WGSL module ready for pipeline creation.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for labels and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the composed WGSL source, including prepended constants and libraries.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// Reflection retrieves the bindings, layouts and entry points derived from the source.
	//
	// Returns:
	//   - *Reflection: the shader's reflection data
	Reflection() *Reflection

	// EntryPoint returns the first entry point declared for the stage.
	//
	// Parameters:
	//   - stage: the pipeline stage
	//
	// Returns:
	//   - string: the entry point name, or an empty string if the stage has none
	EntryPoint(stage Stage) string

	// WorkgroupSize returns the workgroup size of the compute entry point.
	// Omitted dimensions are 1; a shader without a compute entry point returns [0, 0, 0].
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Module returns the wgpu.ShaderModuleDescriptor built from the composed source.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the shader module descriptor containing the WGSL code and label
	Module() *wgpu.ShaderModuleDescriptor
}

var _ Shader = &shader{}

// NewShader composes, parses and reflects WGSL source.
//
// Parameters:
//   - key: a unique identifier for the shader, used as the module label
//   - source: the WGSL source of the shader
//   - opts: optional ShaderBuilderOption functions
//
// Returns:
//   - Shader: the reflected shader
//   - error: a *ShaderParseError if the source is malformed or declares an unsupported binding
func NewShader(key, source string, opts ...ShaderBuilderOption) (Shader, error) {
	s := &shader{key: key}
	for _, opt := range opts {
		opt(s)
	}

	composed := source
	if s.pp != nil {
		var err error
		composed, err = s.pp.Process(source)
		if err != nil {
			return nil, &ShaderParseError{Shader: key, Message: err.Error(), Err: err}
		}
	}
	if strings.TrimSpace(composed) == "" {
		return nil, &ShaderParseError{Shader: key, Message: "shader source is empty"}
	}
	s.source = composed

	module, err := parseModule(composed)
	if err != nil {
		return nil, withShader(key, err)
	}
	s.reflection, err = reflectModule(module, logger.OrNop(s.logger).With(zap.String("shader", key)))
	if err != nil {
		return nil, withShader(key, err)
	}
	if s.validate {
		if err := validateModule(module, composed); err != nil {
			return nil, withShader(key, err)
		}
	}

	s.module = &wgpu.ShaderModuleDescriptor{
		Label: key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.source,
		},
	}
	return s, nil
}

// LoadShader reads WGSL source through the shader's loader and passes it to NewShader.
// Without WithLoader the path is read from disk relative to the working directory.
//
// Parameters:
//   - ctx: cancels the read
//   - key: a unique identifier for the shader
//   - path: the file path to read WGSL source from
//   - opts: optional ShaderBuilderOption functions
//
// Returns:
//   - Shader: the reflected shader
//   - error: an error if the file cannot be read or the source is rejected
func LoadShader(ctx context.Context, key, path string, opts ...ShaderBuilderOption) (Shader, error) {
	cfg := &shader{}
	for _, opt := range opts {
		opt(cfg)
	}
	l := cfg.loader
	if l == nil {
		l = loader.NewLoader()
	}

	source, err := l.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}
	return NewShader(key, source, opts...)
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) Reflection() *Reflection {
	return s.reflection
}

func (s *shader) EntryPoint(stage Stage) string {
	return s.reflection.EntryPoint(stage)
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.reflection.WorkgroupSize
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}

// validateModule runs naga's lowering and validation passes over an already parsed module.
func validateModule(module *wgsl.Module, source string) error {
	irModule, err := naga.LowerWithSource(module, source)
	if err != nil {
		return wrapNagaError("lower", err)
	}
	problems, err := naga.Validate(irModule)
	if err != nil {
		return wrapNagaError("validate", err)
	}
	if len(problems) > 0 {
		msgs := make([]string, len(problems))
		for i, p := range problems {
			msgs[i] = p.Error()
		}
		return &ShaderParseError{Message: "validation failed: " + strings.Join(msgs, "; ")}
	}
	return nil
}

// withShader stamps the shader key onto a ShaderParseError.
func withShader(key string, err error) error {
	if pe, ok := err.(*ShaderParseError); ok {
		pe.Shader = key
		return pe
	}
	return &ShaderParseError{Shader: key, Message: err.Error(), Err: err}
}
