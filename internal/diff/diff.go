// Package diff renders the difference between a source file and its
// lowered output as a unified diff, for previewing a transform without
// writing anything.
package diff

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType classifies a diff line.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

// Line is one line of a hunk. LineNum is in the old text for context and
// removed lines, in the new text for added lines.
type Line struct {
	LineNum int
	Content string
	Type    LineType
}

// Hunk is a run of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff is the line diff of one file.
type FileDiff struct {
	Path  string
	Hunks []Hunk
}

// Empty reports whether the texts were identical.
func (d *FileDiff) Empty() bool { return len(d.Hunks) == 0 }

// Engine computes line diffs.
type Engine struct {
	dmp     *diffmatchpatch.DiffMatchPatch
	context int
}

// NewEngine returns an engine that keeps contextLines of unchanged text
// around every change.
func NewEngine(contextLines int) *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{dmp: dmp, context: contextLines}
}

// Compute diffs before against after line by line.
func (e *Engine) Compute(path, before, after string) *FileDiff {
	fd := &FileDiff{Path: path}
	if before == after {
		return fd
	}
	// Diffing line-encoded text keeps hunks on line boundaries.
	a, b, lines := e.dmp.DiffLinesToChars(before, after)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lines)
	fd.Hunks = group(toOps(diffs), e.context)
	return fd
}

type op struct {
	typ     LineType
	oldLine int // 0-based, -1 for additions
	newLine int // 0-based, -1 for removals
	content string
}

func toOps(diffs []diffmatchpatch.Diff) []op {
	var ops []op
	oldLine, newLine := 0, 0
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" && d.Text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, op{LineContext, oldLine, newLine, line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, op{LineRemoved, oldLine, -1, line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, op{LineAdded, -1, newLine, line})
				newLine++
			}
		}
	}
	return ops
}

// group splits ops into hunks, merging changes whose context overlaps.
func group(ops []op, context int) []Hunk {
	var hunks []Hunk
	i := 0
	for i < len(ops) {
		if ops[i].typ == LineContext {
			i++
			continue
		}
		start := max(0, i-context)
		// Extend while the gap to the next change fits in 2*context.
		end := i
		for j := i; j < len(ops); j++ {
			if ops[j].typ != LineContext {
				end = j
				continue
			}
			if j-end > 2*context {
				break
			}
		}
		stop := min(len(ops), end+context+1)

		h := Hunk{}
		oldPos, newPos := -1, -1
		for _, o := range ops[start:stop] {
			line := Line{Content: o.content, Type: o.typ, LineNum: o.oldLine + 1}
			if o.typ == LineAdded {
				line.LineNum = o.newLine + 1
			}
			if o.typ != LineAdded {
				h.OldCount++
				if oldPos < 0 {
					oldPos = o.oldLine
				}
			}
			if o.typ != LineRemoved {
				h.NewCount++
				if newPos < 0 {
					newPos = o.newLine
				}
			}
			h.Lines = append(h.Lines, line)
		}
		h.OldStart = startOf(oldPos, ops, start, true)
		h.NewStart = startOf(newPos, ops, start, false)
		hunks = append(hunks, h)
		i = stop
	}
	return hunks
}

// startOf is the 1-based start line of a hunk side. A side with no lines
// starts after the last line before the hunk, as in unified diff output.
func startOf(pos int, ops []op, start int, old bool) int {
	if pos >= 0 {
		return pos + 1
	}
	for k := start - 1; k >= 0; k-- {
		n := ops[k].newLine
		if old {
			n = ops[k].oldLine
		}
		if n >= 0 {
			return n + 1
		}
	}
	return 0
}

// Styles colors unified diff output.
type Styles struct {
	Header  lipgloss.Style
	Hunk    lipgloss.Style
	Added   lipgloss.Style
	Removed lipgloss.Style
}

// base keeps tabs in source lines as they are.
func base() lipgloss.Style {
	return lipgloss.NewStyle().TabWidth(lipgloss.NoTabConversion)
}

// PlainStyles renders without escapes.
func PlainStyles() Styles {
	return Styles{Header: base(), Hunk: base(), Added: base(), Removed: base()}
}

// ColorStyles are the terminal styles. lipgloss drops the colors when the
// output is not a terminal.
func ColorStyles() Styles {
	return Styles{
		Header:  base().Bold(true),
		Hunk:    base().Foreground(lipgloss.Color("6")),
		Added:   base().Foreground(lipgloss.Color("2")),
		Removed: base().Foreground(lipgloss.Color("1")),
	}
}

// Unified formats d as a unified diff. The result is empty for an empty
// diff.
func (d *FileDiff) Unified(s Styles) string {
	if d.Empty() {
		return ""
	}
	var b strings.Builder
	b.WriteString(s.Header.Render("--- "+d.Path) + "\n")
	b.WriteString(s.Header.Render("+++ "+d.Path+" (lowered)") + "\n")
	for _, h := range d.Hunks {
		b.WriteString(s.Hunk.Render(fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldCount, h.NewStart, h.NewCount)) + "\n")
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				b.WriteString(s.Added.Render("+"+l.Content) + "\n")
			case LineRemoved:
				b.WriteString(s.Removed.Render("-"+l.Content) + "\n")
			default:
				b.WriteString(" " + l.Content + "\n")
			}
		}
	}
	return b.String()
}
