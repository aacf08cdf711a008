package downlevel

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"downlevel/internal/sourcemap"
	"downlevel/internal/syntax"
)

type editKind int

const (
	editBlank editKind = iota
	editInsert
)

// edit replaces span with text. Inserts have an empty span.
type edit struct {
	kind editKind
	span syntax.Span
	text string
}

// editList is an ordered set of non-overlapping edits against an
// immutable source buffer.
type editList struct {
	src   []byte
	edits []edit
}

func newEditList(src []byte) *editList {
	return &editList{src: src}
}

// insert adds text at offset at. Inserts at the same offset keep the order
// they were added in.
func (l *editList) insert(at int, text string) {
	if text == "" {
		return
	}
	i := sort.Search(len(l.edits), func(i int) bool { return l.edits[i].span.Start > at })
	l.edits = append(l.edits, edit{})
	copy(l.edits[i+1:], l.edits[i:])
	l.edits[i] = edit{kind: editInsert, span: syntax.Span{Start: at, End: at}, text: text}
}

// blank replaces span with whitespace of the same UTF-16 width, keeping
// line terminators. Edits strictly inside span are absorbed: the caller is
// expected to have copied the inner text out with render first.
func (l *editList) blank(span syntax.Span) error {
	if span.Start < 0 || span.End > len(l.src) || span.Start > span.End {
		return fmt.Errorf("blank %d..%d outside source of %d bytes", span.Start, span.End, len(l.src))
	}
	orig := l.src[span.Start:span.End]
	repl := whitespace(orig)
	if got, want := lineBreaks(repl), lineBreaks(orig); got != want {
		return fmt.Errorf("blank %d..%d changes line count from %d to %d", span.Start, span.End, want, got)
	}

	kept := make([]edit, 0, len(l.edits)+1)
	for _, e := range l.edits {
		if l.inside(e, span) {
			continue
		}
		if e.kind == editBlank && e.span.Start < span.End && span.Start < e.span.End {
			return fmt.Errorf("blank %d..%d overlaps blank %d..%d", span.Start, span.End, e.span.Start, e.span.End)
		}
		kept = append(kept, e)
	}
	i := sort.Search(len(kept), func(i int) bool { return kept[i].span.Start >= span.Start })
	kept = append(kept, edit{})
	copy(kept[i+1:], kept[i:])
	kept[i] = edit{kind: editBlank, span: span, text: string(repl)}
	l.edits = kept
	return nil
}

// snapshot returns the current edits for a later restore.
func (l *editList) snapshot() []edit {
	return append([]edit(nil), l.edits...)
}

func (l *editList) restore(saved []edit) {
	l.edits = saved
}

// inside reports whether e lies within span. An insert on either boundary
// belongs to the surrounding text.
func (l *editList) inside(e edit, span syntax.Span) bool {
	if e.kind == editInsert {
		return e.span.Start > span.Start && e.span.Start < span.End
	}
	return span.Contains(e.span)
}

// render returns the text of span with the edits inside it applied.
func (l *editList) render(span syntax.Span) string {
	var b strings.Builder
	cur := span.Start
	for _, e := range l.edits {
		if !l.inside(e, span) {
			continue
		}
		b.Write(l.src[cur:e.span.Start])
		b.WriteString(e.text)
		cur = e.span.End
	}
	b.Write(l.src[cur:span.End])
	return b.String()
}

// apply produces the rewritten text and one delta per edit.
func (l *editList) apply() ([]byte, []sourcemap.Delta) {
	if len(l.edits) == 0 {
		return l.src, nil
	}
	var out bytes.Buffer
	out.Grow(len(l.src))
	deltas := make([]sourcemap.Delta, 0, len(l.edits))
	cur := 0
	for _, e := range l.edits {
		out.Write(l.src[cur:e.span.Start])
		out.WriteString(e.text)
		deltas = append(deltas, sourcemap.Delta{Offset: e.span.Start, Removed: e.span.Len(), Inserted: len(e.text)})
		cur = e.span.End
	}
	out.Write(l.src[cur:])
	return out.Bytes(), deltas
}

// whitespace returns one space per UTF-16 code unit of b, keeping line
// terminators (\n, \r, U+2028, U+2029) in place.
func whitespace(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		switch r {
		case '\n', '\r', '\u2028', '\u2029':
			out = append(out, b[:size]...)
		default:
			n := 1
			if r != utf8.RuneError || size > 1 {
				if units := utf16.RuneLen(r); units > 0 {
					n = units
				}
			}
			for ; n > 0; n-- {
				out = append(out, ' ')
			}
		}
		b = b[size:]
	}
	return out
}

func lineBreaks(b []byte) int {
	return bytes.Count(b, []byte("\n")) + bytes.Count(b, []byte("\u2028")) + bytes.Count(b, []byte("\u2029"))
}
