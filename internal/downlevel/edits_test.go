package downlevel

import (
	"testing"

	"downlevel/internal/sourcemap"
	"downlevel/internal/syntax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhitespace_KeepsLineBreaksAndUTF16Width(t *testing.T) {
	assert.Equal(t, "      ", string(whitespace([]byte("@Test1"))))
	assert.Equal(t, "   \n  ", string(whitespace([]byte("@A(\n1)"))))
	assert.Equal(t, " \r\n ", string(whitespace([]byte("a\r\nb"))))

	// é is one UTF-16 unit, 😀 is two.
	assert.Equal(t, "    ", string(whitespace([]byte("é😀x"))))
	assert.Equal(t, "   ", string(whitespace([]byte("a b"))))
}

func TestEditList_ApplyAndDeltas(t *testing.T) {
	src := []byte("@Dec class A {\n}\n")
	l := newEditList(src)
	require.NoError(t, l.blank(syntax.Span{Start: 0, End: 4}))
	l.insert(15, "  static x = 1;\n")

	out, deltas := l.apply()
	assert.Equal(t, "     class A {\n  static x = 1;\n}\n", string(out))
	assert.Equal(t, []sourcemap.Delta{
		{Offset: 0, Removed: 4, Inserted: 4},
		{Offset: 15, Removed: 0, Inserted: 16},
	}, deltas)
}

func TestEditList_NoEditsReturnsSource(t *testing.T) {
	src := []byte("class A {}")
	out, deltas := newEditList(src).apply()
	assert.Equal(t, src, out)
	assert.Empty(t, deltas)
}

func TestEditList_BlankAbsorbsInnerEdits(t *testing.T) {
	//            0         1         2
	//            0123456789012345678901234567
	src := []byte("@Outer(class { @In x; }) y;")
	l := newEditList(src)

	require.NoError(t, l.blank(syntax.Span{Start: 15, End: 18}))
	l.insert(22, "META ")
	assert.Equal(t, "class {     x; META }", l.render(syntax.Span{Start: 7, End: 23}))

	require.NoError(t, l.blank(syntax.Span{Start: 0, End: 24}))
	out, deltas := l.apply()
	assert.Equal(t, "                         y;", string(out[:27]))
	assert.Len(t, deltas, 1, "inner edits are absorbed by the outer blank")
}

func TestEditList_InsertsAtSameOffsetKeepOrder(t *testing.T) {
	l := newEditList([]byte("ab"))
	l.insert(1, "1")
	l.insert(1, "2")
	out, _ := l.apply()
	assert.Equal(t, "a12b", string(out))
}

func TestEditList_RejectsBadBlanks(t *testing.T) {
	l := newEditList([]byte("@A @B class C {}"))
	require.NoError(t, l.blank(syntax.Span{Start: 0, End: 5}))
	assert.Error(t, l.blank(syntax.Span{Start: 3, End: 8}), "partial overlap")
	assert.Error(t, l.blank(syntax.Span{Start: 10, End: 100}), "out of range")
}

func TestEditList_RenderIgnoresBoundaryInserts(t *testing.T) {
	l := newEditList([]byte("(abc)"))
	l.insert(1, "<")
	l.insert(4, ">")
	l.insert(2, "|")
	assert.Equal(t, "a|bc", l.render(syntax.Span{Start: 1, End: 4}))
}
