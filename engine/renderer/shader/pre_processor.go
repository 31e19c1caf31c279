// pre_processor.go composes a pass's WGSL source from the shared constants and library
// sources registered on the orchestrator. Constants are emitted first as module-scope
// const declarations, sorted by name, followed by every library in registration order,
// followed by the pass's own source.
package shader

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// library is a named chunk of WGSL prepended to every processed source.
type library struct {
	name   string
	source string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	mu        *sync.Mutex
	constants map[string]string
	libraries []library
}

// PreProcessor composes shader sources from shared constants and library code.
type PreProcessor interface {
	// AddConstant registers a module-scope constant emitted as `const NAME = value;`.
	// Registering an existing name replaces its value.
	//
	// Parameters:
	//   - name: a valid WGSL identifier
	//   - value: an integer, float, bool or string holding a WGSL expression
	//
	// Returns:
	//   - error: an error if the name is not an identifier or the value type is unsupported
	AddConstant(name string, value any) error

	// AddLibrary registers WGSL source prepended to every processed shader, after the constants
	// and after any previously added library.
	//
	// Parameters:
	//   - name: a unique name for the library, used in error messages
	//   - source: the WGSL source of the library
	//
	// Returns:
	//   - error: an error if a library with the same name was already added
	AddLibrary(name, source string) error

	// Process prepends the registered constants and libraries to source.
	//
	// Parameters:
	//   - source: the pass's own WGSL source
	//
	// Returns:
	//   - string: the composed WGSL module source
	//   - error: an error if source is empty
	Process(source string) (string, error)

	// Constants returns a copy of the registered constants and their WGSL text.
	//
	// Returns:
	//   - map[string]string: constant names mapped to their emitted value text
	Constants() map[string]string
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with no constants or libraries.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		mu:        &sync.Mutex{},
		constants: make(map[string]string),
	}
}

func (p *preProcessor) AddConstant(name string, value any) error {
	if !isIdentifier(name) {
		return fmt.Errorf("constant name %q is not a WGSL identifier", name)
	}
	text, err := constantText(value)
	if err != nil {
		return fmt.Errorf("constant %s: %w", name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.constants[name] = text
	return nil
}

func (p *preProcessor) AddLibrary(name, source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, l := range p.libraries {
		if l.name == name {
			return fmt.Errorf("library %q already added", name)
		}
	}
	p.libraries = append(p.libraries, library{name: name, source: source})
	return nil
}

func (p *preProcessor) Process(source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", fmt.Errorf("shader source is empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.constants))
	for name := range p.constants {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "const %s = %s;\n", name, p.constants[name])
	}
	for _, l := range p.libraries {
		sb.WriteString(l.source)
		if !strings.HasSuffix(l.source, "\n") {
			sb.WriteByte('\n')
		}
	}
	sb.WriteString(source)
	return sb.String(), nil
}

func (p *preProcessor) Constants() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]string, len(p.constants))
	for k, v := range p.constants {
		out[k] = v
	}
	return out
}

// constantText renders a Go value as a WGSL literal.
func constantText(value any) (string, error) {
	switch v := value.(type) {
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10) + "u", nil
	case uint:
		return strconv.FormatUint(uint64(v), 10) + "u", nil
	case float32:
		return floatText(float64(v))
	case float64:
		return floatText(v)
	case bool:
		return strconv.FormatBool(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("empty expression")
		}
		return v, nil
	default:
		return "", fmt.Errorf("unsupported constant type %T", value)
	}
}

// floatText formats f so that WGSL reads it as a float rather than an integer.
func floatText(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%v has no WGSL literal form", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return s != "_" && !strings.HasPrefix(s, "__")
}
