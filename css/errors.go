package css

import "fmt"

// SyntaxError reports malformed input with its location.
type SyntaxError struct {
	Module  string
	Line    int
	Column  int
	Message string
}

// NewSyntaxError creates a SyntaxError with formatted message.
func NewSyntaxError(module string, line, column int, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Module:  module,
		Line:    line,
		Column:  column,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *SyntaxError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("syntax error: %s:%d:%d: %s", e.Module, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("syntax error: %s:%d: %s", e.Module, e.Line, e.Message)
	default:
		return fmt.Sprintf("syntax error: %s: %s", e.Module, e.Message)
	}
}
