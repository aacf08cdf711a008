package downlevel

import (
	"fmt"
	"strings"

	"downlevel/internal/syntax"
)

// Kind identifies a structural problem the engine cannot lower.
type Kind int

const (
	// KindUnsupportedMemberName is an eligible decorator on a member whose
	// name is computed, so it cannot key propDecorators.
	KindUnsupportedMemberName Kind = iota + 1
)

var kindMessages = map[Kind]string{
	KindUnsupportedMemberName: "cannot process decorators on strangely named method",
}

// Message is the fixed text reported for k.
func (k Kind) Message() string {
	if m, ok := kindMessages[k]; ok {
		return m
	}
	return "unknown decorator problem"
}

// Diagnostic is a position-tagged error. Line and Column are 1-based;
// columns count UTF-16 code units.
type Diagnostic struct {
	Kind    Kind
	File    string
	Line    int
	Column  int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("Error at %s:%d:%d: %s", d.File, d.Line, d.Column, d.Message)
}

func (d Diagnostic) Error() string { return d.String() }

// Reporter accumulates the diagnostics of one file.
type Reporter struct {
	file  *syntax.File
	diags []Diagnostic
}

// NewReporter returns an empty reporter for f.
func NewReporter(f *syntax.File) *Reporter {
	return &Reporter{file: f}
}

// Report records a diagnostic of kind at byte offset and returns it.
func (r *Reporter) Report(kind Kind, offset int) Diagnostic {
	line, col := r.file.Lines().Position(offset)
	d := Diagnostic{
		Kind:    kind,
		File:    r.file.Name,
		Line:    line,
		Column:  col,
		Message: kind.Message(),
	}
	r.diags = append(r.diags, d)
	return d
}

// Diagnostics returns what was reported, in report order.
func (r *Reporter) Diagnostics() []Diagnostic {
	return r.diags
}

// FormatDiagnostics renders one diagnostic per line.
func FormatDiagnostics(diags []Diagnostic) string {
	lines := make([]string, len(diags))
	for i, d := range diags {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}
