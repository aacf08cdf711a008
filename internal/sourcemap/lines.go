package sourcemap

import (
	"sort"
	"unicode/utf8"
)

// LineIndex converts byte offsets to 1-based line and column numbers.
// Columns count UTF-16 code units, the unit source maps use.
type LineIndex struct {
	text   []byte
	starts []int
}

// NewLineIndex indexes the line starts of text.
func NewLineIndex(text []byte) *LineIndex {
	starts := []int{0}
	for i, b := range text {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{text: text, starts: starts}
}

// Lines returns the number of lines, counting a trailing partial line.
func (l *LineIndex) Lines() int { return len(l.starts) }

// LineStart returns the byte offset where the 1-based line begins.
func (l *LineIndex) LineStart(line int) int {
	if line < 1 {
		return 0
	}
	if line > len(l.starts) {
		return len(l.text)
	}
	return l.starts[line-1]
}

// Position returns the 1-based line and column of off.
func (l *LineIndex) Position(off int) (line, col int) {
	if off < 0 {
		off = 0
	}
	if off > len(l.text) {
		off = len(l.text)
	}
	i := sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > off }) - 1
	return i + 1, UTF16Len(l.text[l.starts[i]:off]) + 1
}

// Offset is the inverse of Position. Columns past the end of the line
// clamp to the line end.
func (l *LineIndex) Offset(line, col int) int {
	off := l.LineStart(line)
	for units := 1; units < col && off < len(l.text) && l.text[off] != '\n'; {
		r, size := utf8.DecodeRune(l.text[off:])
		units += runeUnits(r)
		off += size
	}
	return off
}

// UTF16Len returns the number of UTF-16 code units needed to encode b.
func UTF16Len(b []byte) int {
	n := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		n += runeUnits(r)
		b = b[size:]
	}
	return n
}

func runeUnits(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}
