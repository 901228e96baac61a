package policy

import "fmt"

// Diagnostic is a fatal compile-time error citing the offending
// position in the source text, per spec.md §4.1: the policy file is
// small and author-facing, so no error recovery is attempted — the
// first diagnostic aborts compilation.
type Diagnostic struct {
	Line     int
	Column   int
	Message  string
	Expected string // token/construct expected, empty if not applicable
}

func (d *Diagnostic) Error() string {
	if d.Expected != "" {
		return fmt.Sprintf("policy:%d:%d: %s (expected %s)", d.Line, d.Column, d.Message, d.Expected)
	}
	return fmt.Sprintf("policy:%d:%d: %s", d.Line, d.Column, d.Message)
}

func newDiagnostic(line, col int, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{Line: line, Column: col, Message: fmt.Sprintf(format, args...)}
}

func newExpected(line, col int, expected string, found string) *Diagnostic {
	return &Diagnostic{Line: line, Column: col, Message: fmt.Sprintf("unexpected %s", found), Expected: expected}
}
