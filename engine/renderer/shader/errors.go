package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga/wgsl"
)

// ShaderParseError reports malformed or unrecognized shader text. Line and Column are 1-based
// and zero when the failure has no source position.
type ShaderParseError struct {
	Shader  string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ShaderParseError) Error() string {
	prefix := "shader"
	if e.Shader != "" {
		prefix = fmt.Sprintf("shader %q", e.Shader)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s: %d:%d: %s", prefix, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ShaderParseError) Unwrap() error {
	return e.Err
}

// parseErrorAt builds a ShaderParseError positioned at span.
func parseErrorAt(span wgsl.Span, format string, args ...any) *ShaderParseError {
	return &ShaderParseError{
		Line:    span.Start.Line,
		Column:  span.Start.Column,
		Message: fmt.Sprintf(format, args...),
	}
}

// wrapNagaError converts an error returned by the naga front end into a ShaderParseError,
// lifting the source position out of whichever naga error type carries one.
func wrapNagaError(stage string, err error) *ShaderParseError {
	out := &ShaderParseError{Message: fmt.Sprintf("%s: %v", stage, err), Err: err}

	var pe wgsl.ParseError
	var ppe *wgsl.ParseError
	var se *wgsl.SourceError
	switch {
	case errors.As(err, &pe):
		out.Line, out.Column, out.Message = pe.Token.Line, pe.Token.Column, pe.Message
	case errors.As(err, &ppe):
		out.Line, out.Column, out.Message = ppe.Token.Line, ppe.Token.Column, ppe.Message
	case errors.As(err, &se):
		out.Line, out.Column, out.Message = se.Span.Start.Line, se.Span.Start.Column, se.Message
	}
	return out
}
