// Package diagnostic formats positioned analysis messages.
package diagnostic

import (
	"fmt"

	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"
)

// Diagnostic is one positioned message about a construct that blocked or
// shaped a parallelization decision.
type Diagnostic struct {
	Pos     ast.Pos
	Message string
}

// New builds a diagnostic at pos from a format string.
func New(pos ast.Pos, format string, args ...any) Diagnostic {
	return Diagnostic{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// String renders as "line:col: message", or just the message when the
// position is unknown.
func (d Diagnostic) String() string {
	if !d.Pos.IsValid() {
		return d.Message
	}
	return fmt.Sprintf("%s: %s", d.Pos, d.Message)
}

// List accumulates diagnostics in discovery order.
type List struct {
	items []Diagnostic
}

// Add appends a diagnostic built from a format string.
func (l *List) Add(pos ast.Pos, format string, args ...any) {
	l.items = append(l.items, New(pos, format, args...))
}

// Append copies every diagnostic from other onto l.
func (l *List) Append(other *List) {
	l.items = append(l.items, other.items...)
}

// Empty reports whether the list holds no diagnostics.
func (l *List) Empty() bool { return len(l.items) == 0 }

// Len returns the number of diagnostics.
func (l *List) Len() int { return len(l.items) }

// Strings renders every diagnostic, in order.
func (l *List) Strings() []string {
	out := make([]string, len(l.items))
	for i, d := range l.items {
		out[i] = d.String()
	}
	return out
}
